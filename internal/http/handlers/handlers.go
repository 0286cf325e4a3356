package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/tbourn/go-ttm-coach/internal/domain"
	"github.com/tbourn/go-ttm-coach/internal/http/middleware"
	"github.com/tbourn/go-ttm-coach/internal/services"
	"github.com/tbourn/go-ttm-coach/internal/skeleton"
)

//
// Service contracts (context-aware)
//

// PrescriptionService evaluates questionnaire results and stores them.
type PrescriptionService interface {
	// Submit evaluates and stores in; replayed reports an idempotent replay.
	Submit(ctx context.Context, userID, idemKey string, in services.SubmitInput) (p *services.Prescription, replayed bool, err error)
	Get(ctx context.Context, userID, id string) (*services.Prescription, error)
	ListPage(ctx context.Context, userID string, page, pageSize int) ([]services.Prescription, int64, error)
	// Stats returns the count and newest creation time used for ETags.
	Stats(ctx context.Context, userID string) (int64, *time.Time, error)
	// Plan builds a work skeleton without persisting anything.
	Plan(ctx context.Context, in services.SubmitInput) (*skeleton.Result, error)
	// Skeleton rebuilds the work skeleton of a stored prescription.
	Skeleton(ctx context.Context, userID, id string) (*skeleton.Result, error)
}

// StyleService rewrites fixed messages in a requested tone.
type StyleService interface {
	Rewrite(ctx context.Context, items []services.StyleItem, tone services.Tone) (services.StyleResult, error)
}

// SessionService manages work-chat sessions and their message history.
type SessionService interface {
	Create(ctx context.Context, userID string, in services.CreateSessionInput) (*domain.WorkSession, error)
	ListPage(ctx context.Context, userID string, page, pageSize int) ([]domain.WorkSession, int64, error)
	Stats(ctx context.Context, userID string) (int64, *time.Time, error)
	UpdateTitle(ctx context.Context, userID, sessionID, title string) error
	MessagesPage(ctx context.Context, userID, sessionID string, page, pageSize int) ([]domain.Message, int64, error)
}

// ChatService produces coach replies.
type ChatService interface {
	StageGuide(code string) services.StageGuide
	// Reply appends a user message and the coach's answer to a session.
	Reply(ctx context.Context, userID, sessionID, idemKey, content string) (m *domain.Message, replayed bool, err error)
	Chat(ctx context.Context, userID string, turns []services.ChatTurn, stage string) (*services.ChatReply, error)
	EvaluateExample(ctx context.Context, stage, text string) (*services.Evaluation, error)
}

// FeedbackService captures user ratings of assistant messages.
type FeedbackService interface {
	Leave(ctx context.Context, userID, messageID string, value int) (*domain.Feedback, error)
}

//
// Handler wiring
//

// Handlers groups the HTTP endpoints. It depends on service interfaces to
// keep transport concerns separate from business logic.
type Handlers struct {
	prescriptions PrescriptionService
	style         StyleService
	sessions      SessionService
	chat          ChatService
	feedback      FeedbackService
}

// New constructs a Handlers bound to the given services.
func New(p PrescriptionService, st StyleService, s SessionService, ch ChatService, fb FeedbackService) *Handlers {
	return &Handlers{prescriptions: p, style: st, sessions: s, chat: ch, feedback: fb}
}

func userID(c *gin.Context) string { return middleware.UserID(c) }

// idempotencyKey returns the key validated by the idempotency middleware.
func idempotencyKey(c *gin.Context) string {
	k, _ := middleware.GetIdempotencyKey(c)
	return k
}

func markReplayed(c *gin.Context) {
	c.Header(middleware.HeaderIdempotencyReplayed, "true")
}

// idParam returns the :id path parameter, or writes a 400 naming kind when
// it is not a UUID.
func idParam(c *gin.Context, kind string) (string, bool) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, kind+" id must be a UUID")
		return "", false
	}
	return id, true
}
