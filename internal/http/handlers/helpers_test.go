package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-ttm-coach/internal/domain"
	"github.com/tbourn/go-ttm-coach/internal/services"
	"github.com/tbourn/go-ttm-coach/internal/skeleton"
)

// ---------- stub services (nil func fields return zero values) ----------

type stubPrescriptions struct {
	submit   func(ctx context.Context, userID, key string, in services.SubmitInput) (*services.Prescription, bool, error)
	get      func(ctx context.Context, userID, id string) (*services.Prescription, error)
	listPage func(ctx context.Context, userID string, page, size int) ([]services.Prescription, int64, error)
	stats    func(ctx context.Context, userID string) (int64, *time.Time, error)
	plan     func(ctx context.Context, in services.SubmitInput) (*skeleton.Result, error)
	skel     func(ctx context.Context, userID, id string) (*skeleton.Result, error)
}

func (s stubPrescriptions) Submit(ctx context.Context, userID, key string, in services.SubmitInput) (*services.Prescription, bool, error) {
	if s.submit != nil {
		return s.submit(ctx, userID, key, in)
	}
	return &services.Prescription{ID: "p1", UserID: userID}, false, nil
}

func (s stubPrescriptions) Get(ctx context.Context, userID, id string) (*services.Prescription, error) {
	if s.get != nil {
		return s.get(ctx, userID, id)
	}
	return &services.Prescription{ID: id, UserID: userID}, nil
}

func (s stubPrescriptions) ListPage(ctx context.Context, userID string, page, size int) ([]services.Prescription, int64, error) {
	if s.listPage != nil {
		return s.listPage(ctx, userID, page, size)
	}
	return nil, 0, nil
}

func (s stubPrescriptions) Stats(ctx context.Context, userID string) (int64, *time.Time, error) {
	if s.stats != nil {
		return s.stats(ctx, userID)
	}
	return 0, nil, nil
}

func (s stubPrescriptions) Plan(ctx context.Context, in services.SubmitInput) (*skeleton.Result, error) {
	if s.plan != nil {
		return s.plan(ctx, in)
	}
	return &skeleton.Result{}, nil
}

func (s stubPrescriptions) Skeleton(ctx context.Context, userID, id string) (*skeleton.Result, error) {
	if s.skel != nil {
		return s.skel(ctx, userID, id)
	}
	return &skeleton.Result{}, nil
}

type stubStyle struct {
	rewrite func(ctx context.Context, items []services.StyleItem, tone services.Tone) (services.StyleResult, error)
}

func (s stubStyle) Rewrite(ctx context.Context, items []services.StyleItem, tone services.Tone) (services.StyleResult, error) {
	if s.rewrite != nil {
		return s.rewrite(ctx, items, tone)
	}
	return services.StyleResult{Items: items}, nil
}

type stubSessions struct {
	create   func(ctx context.Context, userID string, in services.CreateSessionInput) (*domain.WorkSession, error)
	listPage func(ctx context.Context, userID string, page, size int) ([]domain.WorkSession, int64, error)
	stats    func(ctx context.Context, userID string) (int64, *time.Time, error)
	rename   func(ctx context.Context, userID, id, title string) error
	messages func(ctx context.Context, userID, id string, page, size int) ([]domain.Message, int64, error)
}

func (s stubSessions) Create(ctx context.Context, userID string, in services.CreateSessionInput) (*domain.WorkSession, error) {
	if s.create != nil {
		return s.create(ctx, userID, in)
	}
	return &domain.WorkSession{ID: "s1", UserID: userID, Title: in.Title}, nil
}

func (s stubSessions) ListPage(ctx context.Context, userID string, page, size int) ([]domain.WorkSession, int64, error) {
	if s.listPage != nil {
		return s.listPage(ctx, userID, page, size)
	}
	return nil, 0, nil
}

func (s stubSessions) Stats(ctx context.Context, userID string) (int64, *time.Time, error) {
	if s.stats != nil {
		return s.stats(ctx, userID)
	}
	return 0, nil, nil
}

func (s stubSessions) UpdateTitle(ctx context.Context, userID, id, title string) error {
	if s.rename != nil {
		return s.rename(ctx, userID, id, title)
	}
	return nil
}

func (s stubSessions) MessagesPage(ctx context.Context, userID, id string, page, size int) ([]domain.Message, int64, error) {
	if s.messages != nil {
		return s.messages(ctx, userID, id, page, size)
	}
	return nil, 0, nil
}

type stubChat struct {
	reply    func(ctx context.Context, userID, sessionID, key, content string) (*domain.Message, bool, error)
	chat     func(ctx context.Context, userID string, turns []services.ChatTurn, stage string) (*services.ChatReply, error)
	evaluate func(ctx context.Context, stage, text string) (*services.Evaluation, error)
}

func (stubChat) StageGuide(code string) services.StageGuide {
	return services.StageGuide{Stage: "PC", Name: "Precontemplation " + code}
}

func (s stubChat) Reply(ctx context.Context, userID, sessionID, key, content string) (*domain.Message, bool, error) {
	if s.reply != nil {
		return s.reply(ctx, userID, sessionID, key, content)
	}
	return &domain.Message{ID: "m1", SessionID: sessionID, Role: domain.RoleAssistant}, false, nil
}

func (s stubChat) Chat(ctx context.Context, userID string, turns []services.ChatTurn, stage string) (*services.ChatReply, error) {
	if s.chat != nil {
		return s.chat(ctx, userID, turns, stage)
	}
	return &services.ChatReply{Reply: "ok", Source: domain.SourceLLM}, nil
}

func (s stubChat) EvaluateExample(ctx context.Context, stage, text string) (*services.Evaluation, error) {
	if s.evaluate != nil {
		return s.evaluate(ctx, stage, text)
	}
	return &services.Evaluation{}, nil
}

type stubFeedback struct {
	leave func(ctx context.Context, userID, messageID string, value int) (*domain.Feedback, error)
}

func (s stubFeedback) Leave(ctx context.Context, userID, messageID string, value int) (*domain.Feedback, error) {
	if s.leave != nil {
		return s.leave(ctx, userID, messageID, value)
	}
	return &domain.Feedback{ID: "f1", MessageID: messageID, UserID: userID, Value: value}, nil
}

// ---------- router + request helpers ----------

type stubs struct {
	prescriptions stubPrescriptions
	style         stubStyle
	sessions      stubSessions
	chat          stubChat
	feedback      stubFeedback
}

// newTestRouter mounts every handler the way the API router does, with the
// caller identified as "u1" and an optional idempotency key.
func newTestRouter(s stubs) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := New(s.prescriptions, s.style, s.sessions, s.chat, s.feedback)

	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("X-Request-ID", "rid-test")
		c.Set("userID", "u1")
		if k := c.GetHeader("Idempotency-Key"); k != "" {
			c.Set("idem.key", k)
		}
		c.Next()
	})
	r.POST("/prescriptions", h.SubmitPrescription)
	r.GET("/prescriptions", h.ListPrescriptions)
	r.GET("/prescriptions/:id", h.GetPrescription)
	r.GET("/prescriptions/:id/skeleton", h.GetPrescriptionSkeleton)
	r.POST("/skeleton", h.PlanSkeleton)
	r.POST("/style", h.RewriteStyle)
	r.GET("/stages/:id", h.GetStage)
	r.POST("/sessions", h.CreateSession)
	r.GET("/sessions", h.ListSessions)
	r.PUT("/sessions/:id/title", h.UpdateSessionTitle)
	r.GET("/sessions/:id/messages", h.ListMessages)
	r.POST("/sessions/:id/messages", h.PostMessage)
	r.POST("/workchat", h.WorkChat)
	r.POST("/workchat/evaluate-example", h.EvaluateExample)
	r.POST("/messages/:id/feedback", h.LeaveFeedback)
	return r
}

func do(r http.Handler, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	var rd *bytes.Buffer
	if body != "" {
		rd = bytes.NewBufferString(body)
	} else {
		rd = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, path, rd)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var er ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &er); err != nil {
		t.Fatalf("error body is not JSON: %v (%s)", err, w.Body.String())
	}
	if er.RequestID != "rid-test" {
		t.Fatalf("request id not echoed: %+v", er)
	}
	return er
}

const (
	validID   = "0f9c1a52-6d1e-4c1b-9b59-2b0e5c3f8d11"
	otherUUID = "6a3e51b0-1f0b-4f8e-8d7c-3b9c7e0e2a44"
)
