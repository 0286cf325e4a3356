package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-ttm-coach/internal/services"
)

// StyleRequest is the JSON payload for a tone rewrite.
type StyleRequest struct {
	Items []services.StyleItem `json:"items" binding:"required"`
	// Tone is one of plain, mi, polite; blank means mi.
	Tone string `json:"tone" example:"polite"`
}

// RewriteStyle godoc
// @ID          rewriteStyle
// @Summary     Rewrite messages in a tone
// @Description Rephrases fixed coaching messages without adding advice. When the model is unavailable or its reply cannot be parsed, the original items are returned with a note.
// @Tags        Style
// @Accept      json
// @Produce     json
//
// @Param       body  body  handlers.StyleRequest  true  "Items and tone"
//
// @Success     200  {object} services.StyleResult
// @Failure     400  {object} handlers.ErrorResponse "Invalid tone or no items"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /style [post]
func (h *Handlers) RewriteStyle(c *gin.Context) {
	var req StyleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "items required")
		return
	}
	tone, err := services.ParseTone(req.Tone)
	if err != nil {
		failService(c, err, ErrCodeInternal)
		return
	}
	res, err := h.style.Rewrite(c.Request.Context(), req.Items, tone)
	if err != nil {
		failService(c, err, ErrCodeInternal)
		return
	}
	ok(c, http.StatusOK, res)
}
