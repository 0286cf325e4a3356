// Stateless coaching endpoints.
//
//   - GET  /stages/{id}                  (stage metadata and opening choices)
//   - POST /workchat                     (client-held conversation)
//   - POST /workchat/evaluate-example    (judge a suggested opener)
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-ttm-coach/internal/services"
)

// WorkChatRequest is a conversation held by the client. The last message must
// come from the user.
type WorkChatRequest struct {
	Messages []services.ChatTurn `json:"messages" binding:"required,min=1"`
	Stage    string              `json:"stage" example:"C"`
}

// EvaluateExampleRequest carries a suggested conversation opener.
type EvaluateExampleRequest struct {
	Stage string `json:"stage" example:"PC"`
	Text  string `json:"text" binding:"required" example:"What would make this week a little less stressful?"`
}

// GetStage godoc
// @ID          getStage
// @Summary     Stage guide
// @Description Returns the stage description, coaching strategy and opening choices. Unknown codes fall back to precontemplation.
// @Tags        Work chat
// @Produce     json
//
// @Param       id  path  string  true  "Stage code"  example(PR)
//
// @Success     200  {object} services.StageGuide
// @Router      /stages/{id} [get]
func (h *Handlers) GetStage(c *gin.Context) {
	ok(c, http.StatusOK, h.chat.StageGuide(c.Param("id")))
}

// WorkChat godoc
// @ID          workChat
// @Summary     Stateless coach reply
// @Description Answers a conversation the client keeps itself. Nothing is stored.
// @Tags        Work chat
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID (demo header)"  example(user123)
// @Param       body       body    handlers.WorkChatRequest  true  "Conversation"
//
// @Success     200  {object} services.ChatReply
// @Failure     400  {object} handlers.ErrorResponse "Invalid conversation"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /workchat [post]
func (h *Handlers) WorkChat(c *gin.Context) {
	var req WorkChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "messages required")
		return
	}
	reply, err := h.chat.Chat(c.Request.Context(), userID(c), req.Messages, req.Stage)
	if err != nil {
		failService(c, err, ErrCodeAnswerFailed)
		return
	}
	ok(c, http.StatusOK, reply)
}

// EvaluateExample godoc
// @ID          evaluateExample
// @Summary     Judge a conversation opener
// @Description Asks the model whether the text is user friendly, aligned with the stage and related to stress management.
// @Tags        Work chat
// @Accept      json
// @Produce     json
//
// @Param       body  body  handlers.EvaluateExampleRequest  true  "Opener"
//
// @Success     200  {object} services.Evaluation
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     502  {object} handlers.ErrorResponse "Model reply unparseable"
// @Failure     503  {object} handlers.ErrorResponse "Model unavailable"
// @Router      /workchat/evaluate-example [post]
func (h *Handlers) EvaluateExample(c *gin.Context) {
	var req EvaluateExampleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "text required")
		return
	}
	ev, err := h.chat.EvaluateExample(c.Request.Context(), req.Stage, req.Text)
	if err != nil {
		failService(c, err, ErrCodeInternal)
		return
	}
	ok(c, http.StatusOK, ev)
}
