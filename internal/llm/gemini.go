package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	genai "google.golang.org/api/generativelanguage/v1beta"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/tbourn/go-ttm-coach/internal/config"
	"github.com/tbourn/go-ttm-coach/internal/observability"
)

// Gemini calls the Generative Language REST API.
type Gemini struct {
	svc        *genai.Service
	model      string
	timeout    time.Duration
	maxRetries int

	// Backoff is the delay before the first retry; it doubles per attempt.
	Backoff time.Duration
}

// NewGemini builds a client from cfg. It returns ErrDisabled when no API
// key is configured.
func NewGemini(ctx context.Context, cfg config.LLMConfig) (*Gemini, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, ErrDisabled
	}
	opts := []option.ClientOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.Endpoint != "" {
		ep := cfg.Endpoint
		if !strings.HasSuffix(ep, "/") {
			ep += "/"
		}
		opts = append(opts, option.WithEndpoint(ep))
	}
	svc, err := genai.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}
	return &Gemini{
		svc:        svc,
		model:      cfg.Model,
		timeout:    cfg.Timeout,
		maxRetries: cfg.MaxRetries,
		Backoff:    time.Second,
	}, nil
}

// Generate sends req and returns the concatenated text of the first
// candidate. Transient failures (429, 5xx, timeouts) are retried with
// exponential backoff up to the configured retry count.
func (g *Gemini) Generate(ctx context.Context, req Request) (string, error) {
	op := req.Op
	if op == "" {
		op = "generate"
	}
	ctx, span := otel.Tracer("llm/Gemini").Start(ctx, "Generate",
		trace.WithAttributes(
			attribute.String("llm.op", op),
			attribute.String("llm.model", g.model),
			attribute.Int("llm.messages", len(req.Messages)),
		),
	)
	defer span.End()

	body := g.buildRequest(req)

	var lastErr error
	for attempt := 0; attempt <= g.maxRetries; attempt++ {
		if attempt > 0 {
			observability.LLMCalls.WithLabelValues(op, "retry").Inc()
			backoff := g.Backoff * time.Duration(1<<uint(attempt-1))
			select {
			case <-ctx.Done():
				span.SetStatus(codes.Error, ctx.Err().Error())
				return "", ctx.Err()
			case <-time.After(backoff):
			}
		}

		start := time.Now()
		text, err := g.once(ctx, body)
		if err == nil {
			observability.LLMCalls.WithLabelValues(op, "ok").Inc()
			observability.LLMLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
			span.SetAttributes(attribute.Int("llm.attempts", attempt+1))
			return text, nil
		}
		lastErr = err
		if !transient(ctx, err) {
			break
		}
	}

	observability.LLMCalls.WithLabelValues(op, "error").Inc()
	span.RecordError(lastErr)
	span.SetStatus(codes.Error, lastErr.Error())
	return "", lastErr
}

func (g *Gemini) once(ctx context.Context, body *genai.GenerateContentRequest) (string, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}
	resp, err := g.svc.Models.GenerateContent("models/"+g.model, body).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}
	return replyText(resp)
}

func (g *Gemini) buildRequest(req Request) *genai.GenerateContentRequest {
	out := &genai.GenerateContentRequest{}
	if strings.TrimSpace(req.System) != "" {
		out.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: req.System}}}
	}
	for _, m := range req.Messages {
		role := RoleUser
		if m.Role != RoleUser {
			role = RoleModel
		}
		out.Contents = append(out.Contents, &genai.Content{
			Role:  role,
			Parts: []*genai.Part{{Text: m.Content}},
		})
	}
	if req.JSON || req.Temperature != nil {
		gc := &genai.GenerationConfig{}
		if req.JSON {
			gc.ResponseMimeType = "application/json"
		}
		if req.Temperature != nil {
			gc.Temperature = *req.Temperature
			// omitempty would drop 0.
			gc.ForceSendFields = append(gc.ForceSendFields, "Temperature")
		}
		out.GenerationConfig = gc
	}
	return out
}

func replyText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", ErrEmptyReply
	}
	var b strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		if p != nil {
			b.WriteString(p.Text)
		}
	}
	text := strings.TrimSpace(b.String())
	if text == "" {
		return "", ErrEmptyReply
	}
	return text, nil
}

// transient reports whether err is worth another attempt.
func transient(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return gerr.Code == 429 || gerr.Code >= 500
	}
	return !errors.Is(err, ErrEmptyReply)
}
