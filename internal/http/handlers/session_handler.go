// Work-chat session HTTP handlers.
//
// This file exposes REST endpoints for sessions and their messages:
//   - POST /sessions                 (create)
//   - GET  /sessions                 (list, paginated, ETag support)
//   - PUT  /sessions/{id}/title      (rename)
//   - GET  /sessions/{id}/messages   (history, paginated)
//   - POST /sessions/{id}/messages   (send a message, Idempotency-Key aware)
package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-ttm-coach/internal/domain"
	"github.com/tbourn/go-ttm-coach/internal/services"
)

// CreateSessionRequest is the JSON payload for opening a session.
type CreateSessionRequest struct {
	// Title optionally sets the session title; a placeholder is used when empty.
	Title string `json:"title" example:"Evening walks"`
	// Stage is a TTM stage code; defaults to the prescription's stage or PC.
	Stage string `json:"stage" example:"PR"`
	// PrescriptionID grounds the coach in a stored work plan.
	PrescriptionID string `json:"prescription_id" example:"0f9c1a52-6d1e-4c1b-9b59-2b0e5c3f8d11"`
}

// UpdateSessionTitleRequest is the JSON payload for renaming a session.
type UpdateSessionTitleRequest struct {
	Title string `json:"title" binding:"required,min=1,max=255" example:"Breathing practice"`
}

// ListSessionsResponse wraps a page of sessions, most recently active first.
type ListSessionsResponse struct {
	Sessions   []domain.WorkSession `json:"sessions"`
	Pagination Pagination           `json:"pagination"`
}

// PostMessageRequest is the JSON payload for sending a chat message.
type PostMessageRequest struct {
	Content string `json:"content" binding:"required,min=1" example:"I keep skipping my walks when work gets busy."`
}

// PostMessageResponse carries the coach's reply.
type PostMessageResponse struct {
	Message *domain.Message `json:"message"`
}

// ListMessagesResponse wraps a page of messages, oldest first.
type ListMessagesResponse struct {
	Messages   []domain.Message `json:"messages"`
	Pagination Pagination       `json:"pagination"`
}

// CreateSession godoc
// @ID          createSession
// @Summary     Open a work-chat session
// @Tags        Sessions
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID (demo header)"  example(user123)
// @Param       body       body    handlers.CreateSessionRequest  true  "Session payload"
//
// @Success     201  {object}  domain.WorkSession
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse  "Prescription not found"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /sessions [post]
func (h *Handlers) CreateSession(c *gin.Context) {
	var req CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	s, err := h.sessions.Create(c.Request.Context(), userID(c), services.CreateSessionInput{
		Title:          strings.TrimSpace(req.Title),
		Stage:          req.Stage,
		PrescriptionID: req.PrescriptionID,
	})
	if err != nil {
		failService(c, err, ErrCodeCreateFailed)
		return
	}
	ok(c, http.StatusCreated, s)
}

// ListSessions godoc
// @ID          listSessions
// @Summary     List sessions (paginated)
// @Description Returns a page of the user's sessions. Supports weak ETag via If-None-Match and may return 304.
// @Tags        Sessions
// @Produce     json
//
// @Param       X-User-ID      header  string  false "User ID (demo header)"       example(user123)
// @Param       If-None-Match  header  string  false "Return 304 if ETag matches"
// @Param       page           query   int     false "Page number"                  minimum(1) default(1)
// @Param       page_size      query   int     false "Items per page"               minimum(1) maximum(100) default(20)
//
// @Success     200  {object} handlers.ListSessionsResponse
// @Header      200  {string} ETag  "Weak ETag for current result"
// @Success     304  {string} string "Not Modified"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /sessions [get]
func (h *Handlers) ListSessions(c *gin.Context) {
	ctx := c.Request.Context()
	uid := userID(c)
	page, pageSize := clampPagination(c)

	if count, latest, err := h.sessions.Stats(ctx, uid); err == nil {
		if notModified(c, "sessions", uid, count, latest) {
			return
		}
	}

	items, total, err := h.sessions.ListPage(ctx, uid, page, pageSize)
	if err != nil {
		failService(c, err, ErrCodeListFailed)
		return
	}
	if items == nil {
		items = []domain.WorkSession{}
	}
	ok(c, http.StatusOK, ListSessionsResponse{
		Sessions:   items,
		Pagination: newPagination(page, pageSize, total),
	})
}

// UpdateSessionTitle godoc
// @ID          updateSessionTitle
// @Summary     Rename a session
// @Tags        Sessions
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID (demo header)"  example(user123)
// @Param       id         path    string  true  "Session ID (UUID)"      format(uuid)
// @Param       body       body    handlers.UpdateSessionTitleRequest  true  "New title"
//
// @Success     204  {string} string "No Content"
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Session not found"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /sessions/{id}/title [put]
func (h *Handlers) UpdateSessionTitle(c *gin.Context) {
	id, valid := idParam(c, "session")
	if !valid {
		return
	}
	var req UpdateSessionTitleRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Title) == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "title required (1-255 chars)")
		return
	}
	if err := h.sessions.UpdateTitle(c.Request.Context(), userID(c), id, req.Title); err != nil {
		failService(c, err, ErrCodeInternal)
		return
	}
	noContent(c)
}

// ListMessages godoc
// @ID          listMessages
// @Summary     List messages of a session (paginated)
// @Tags        Sessions
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID (demo header)"  example(user123)
// @Param       id         path    string  true  "Session ID (UUID)"      format(uuid)
// @Param       page       query   int     false "Page number"            minimum(1) default(1)
// @Param       page_size  query   int     false "Items per page"         minimum(1) maximum(100) default(20)
//
// @Success     200  {object} handlers.ListMessagesResponse
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Session not found"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /sessions/{id}/messages [get]
func (h *Handlers) ListMessages(c *gin.Context) {
	id, valid := idParam(c, "session")
	if !valid {
		return
	}
	page, pageSize := clampPagination(c)

	items, total, err := h.sessions.MessagesPage(c.Request.Context(), userID(c), id, page, pageSize)
	if err != nil {
		failService(c, err, ErrCodeListFailed)
		return
	}
	if items == nil {
		items = []domain.Message{}
	}
	ok(c, http.StatusOK, ListMessagesResponse{
		Messages:   items,
		Pagination: newPagination(page, pageSize, total),
	})
}

// PostMessage godoc
// @ID          postMessage
// @Summary     Send a message to the coach
// @Description Stores the user message and the coach's reply. A repeated Idempotency-Key returns the original reply with Idempotency-Replayed: true.
// @Tags        Sessions
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID        header  string  false "User ID (demo header)"  example(user123)
// @Param       Idempotency-Key  header  string  false "Key making retries safe"
// @Param       id               path    string  true  "Session ID (UUID)"      format(uuid)
// @Param       body             body    handlers.PostMessageRequest  true  "Message payload"
//
// @Success     200  {object} handlers.PostMessageResponse
// @Header      200  {string} Idempotency-Replayed "true on replay"
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Session not found"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /sessions/{id}/messages [post]
func (h *Handlers) PostMessage(c *gin.Context) {
	id, valid := idParam(c, "session")
	if !valid {
		return
	}
	var req PostMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "content required")
		return
	}

	m, replayed, err := h.chat.Reply(c.Request.Context(), userID(c), id, idempotencyKey(c), req.Content)
	if err != nil {
		failService(c, err, ErrCodeAnswerFailed)
		return
	}
	if replayed {
		markReplayed(c)
	}
	ok(c, http.StatusOK, PostMessageResponse{Message: m})
}
