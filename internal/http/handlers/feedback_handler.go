package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// LeaveFeedbackRequest rates one coach reply: 1 helpful, -1 not helpful.
type LeaveFeedbackRequest struct {
	Value int `json:"value" binding:"required,oneof=-1 1" example:"1"`
}

// LeaveFeedback godoc
// @ID          leaveFeedback
// @Summary     Rate a coach reply
// @Description Stores a thumbs-up (1) or thumbs-down (-1) for an assistant message of one of the caller's sessions. Each reply can be rated once.
// @Tags        Feedback
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID (demo header)"  example(user123)
// @Param       id         path    string  true  "Message ID (UUID)"      format(uuid)
// @Param       body       body    handlers.LeaveFeedbackRequest true "Rating"
//
// @Success     201  {object} domain.Feedback
// @Failure     400  {object} handlers.ErrorResponse "Bad id or value"
// @Failure     403  {object} handlers.ErrorResponse "Not the caller's coach reply"
// @Failure     404  {object} handlers.ErrorResponse "Message not found"
// @Failure     409  {object} handlers.ErrorResponse "Already rated"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /messages/{id}/feedback [post]
func (h *Handlers) LeaveFeedback(c *gin.Context) {
	id, valid := idParam(c, "message")
	if !valid {
		return
	}
	var req LeaveFeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "value must be -1 or 1")
		return
	}

	fb, err := h.feedback.Leave(c.Request.Context(), userID(c), id, req.Value)
	if err != nil {
		failService(c, err, ErrCodeInternal)
		return
	}
	ok(c, http.StatusCreated, fb)
}
