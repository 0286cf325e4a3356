// Package llm is the thin model-access layer used by the coaching features.
// Callers depend on the Client interface; Gemini is the production
// implementation.
package llm

import (
	"context"
	"errors"
	"regexp"
	"strings"
)

// Roles accepted in a conversation history.
const (
	RoleUser  = "user"
	RoleModel = "model"
)

var (
	// ErrDisabled is returned when no API key is configured.
	ErrDisabled = errors.New("llm: not configured")
	// ErrEmptyReply is returned when the model produced no text.
	ErrEmptyReply = errors.New("llm: empty reply")
	// ErrNoJSON is returned by ExtractJSON when no JSON value is found.
	ErrNoJSON = errors.New("llm: no json in reply")
)

// Message is one conversation turn.
type Message struct {
	Role    string
	Content string
}

// Request is a single generation call.
type Request struct {
	// Op names the feature issuing the call (style, chat, evaluate); it is
	// used for metrics and spans only.
	Op       string
	System   string
	Messages []Message
	// JSON asks the model for an application/json response.
	JSON bool
	// Temperature overrides the model's sampling temperature; nil keeps the
	// model default.
	Temperature *float64
}

// Client generates text from a conversation.
type Client interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// Disabled is a Client that always fails with ErrDisabled. It lets callers
// take their offline path without nil checks.
type Disabled struct{}

func (Disabled) Generate(context.Context, Request) (string, error) { return "", ErrDisabled }

var fenceRE = regexp.MustCompile("(?s)```(?:json|JSON)?\\s*(.*?)```")

// ExtractJSON returns the JSON document embedded in a model reply. Fenced
// ```json blocks win; otherwise the outermost {...} or [...] span is used.
func ExtractJSON(text string) (string, error) {
	if m := fenceRE.FindStringSubmatch(text); m != nil {
		if body := strings.TrimSpace(m[1]); body != "" {
			return body, nil
		}
	}
	t := strings.TrimSpace(text)
	if t == "" {
		return "", ErrNoJSON
	}
	start := strings.IndexAny(t, "{[")
	if start < 0 {
		return "", ErrNoJSON
	}
	closer := byte('}')
	if t[start] == '[' {
		closer = ']'
	}
	end := strings.LastIndexByte(t, closer)
	if end <= start {
		return "", ErrNoJSON
	}
	return t[start : end+1], nil
}
