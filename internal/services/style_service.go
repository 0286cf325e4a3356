// Package services – StyleService
//
// StyleService rewrites curated coaching messages into a requested tone with
// the language model. The model may only rephrase: ids are preserved, new ids
// are ignored and any failure returns the original items with a note.
package services

import (
	"context"
	"encoding/json"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-ttm-coach/internal/llm"
)

// Tone is the voice a rewrite should use.
type Tone string

const (
	TonePlain  Tone = "plain"
	ToneMI     Tone = "mi"
	TonePolite Tone = "polite"

	// DefaultTone is motivational-interviewing style.
	DefaultTone = ToneMI
)

// NoteRewriteFailed marks a response that carries the unmodified items.
const NoteRewriteFailed = "LLM parse failed, returned original"

// structuredTemperature is the sampling temperature for calls that must
// return machine-readable JSON.
func structuredTemperature() *float64 {
	t := 0.2
	return &t
}

// ParseTone normalizes a tone; blank means DefaultTone.
func ParseTone(s string) (Tone, error) {
	switch t := Tone(strings.ToLower(strings.TrimSpace(s))); t {
	case "":
		return DefaultTone, nil
	case TonePlain, ToneMI, TonePolite:
		return t, nil
	}
	return "", ErrInvalidTone
}

// StyleItem is one rewritable message.
type StyleItem struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Body  string `json:"body"`
}

// StyleResult is the rewritten list. Note is set when the originals were
// returned.
type StyleResult struct {
	Items []StyleItem `json:"items"`
	Note  string      `json:"note,omitempty"`
}

const styleSystemPrompt = `You are a health-literacy copy editor. The input is a list of reviewed, fixed coaching messages.
Rephrase each message in the requested tone without changing its meaning.
- Do not add new advice or medical information.
- Do not speculate or diagnose.
- Keep every id unchanged.
- Output JSON only: [{"id":"...","title":"...","body":"..."}]
- Tones: plain = simple everyday words; mi = motivational-interviewing style, empathetic with open questions; polite = courteous and formal.`

// StyleService performs tone rewrites.
type StyleService struct {
	LLM llm.Client
}

// Rewrite returns items rewritten in tone. Items whose id the model dropped
// keep their original text; ids the model invented are ignored.
func (s *StyleService) Rewrite(ctx context.Context, items []StyleItem, tone Tone) (StyleResult, error) {
	ctx, span := otel.Tracer("services/StyleService").Start(ctx, "Rewrite",
		trace.WithAttributes(
			attribute.String("tone", string(tone)),
			attribute.Int("items", len(items)),
		),
	)
	defer span.End()

	if len(items) == 0 {
		return StyleResult{}, ErrNoItems
	}
	if tone == "" {
		tone = DefaultTone
	}
	if _, err := ParseTone(string(tone)); err != nil {
		return StyleResult{}, err
	}

	original := append([]StyleItem(nil), items...)
	fallback := StyleResult{Items: original, Note: NoteRewriteFailed}

	client := s.LLM
	if client == nil {
		return fallback, nil
	}
	input, err := json.Marshal(items)
	if err != nil {
		return StyleResult{}, err
	}
	reply, err := client.Generate(ctx, llm.Request{
		Op:          "style",
		System:      styleSystemPrompt,
		Messages:    []llm.Message{{Role: llm.RoleUser, Content: "Tone: " + string(tone) + "\nInput: " + string(input)}},
		JSON:        true,
		Temperature: structuredTemperature(),
	})
	if err != nil {
		span.RecordError(err)
		return fallback, nil
	}

	rewritten, ok := parseStyleReply(reply)
	if !ok {
		return fallback, nil
	}
	out := make([]StyleItem, len(original))
	for i, it := range original {
		if r, found := rewritten[it.ID]; found {
			if strings.TrimSpace(r.Title) != "" {
				it.Title = r.Title
			}
			if strings.TrimSpace(r.Body) != "" {
				it.Body = r.Body
			}
		}
		out[i] = it
	}
	return StyleResult{Items: out}, nil
}

// parseStyleReply accepts a bare array or an {"items": [...]} wrapper.
func parseStyleReply(reply string) (map[string]StyleItem, bool) {
	doc, err := llm.ExtractJSON(reply)
	if err != nil {
		return nil, false
	}
	var list []StyleItem
	if err := json.Unmarshal([]byte(doc), &list); err != nil {
		var wrapped struct {
			Items []StyleItem `json:"items"`
		}
		if err := json.Unmarshal([]byte(doc), &wrapped); err != nil || wrapped.Items == nil {
			return nil, false
		}
		list = wrapped.Items
	}
	if len(list) == 0 {
		return nil, false
	}
	byID := make(map[string]StyleItem, len(list))
	for _, it := range list {
		if it.ID != "" {
			byID[it.ID] = it
		}
	}
	return byID, len(byID) > 0
}
