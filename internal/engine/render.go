package engine

import (
	"regexp"
	"strings"

	"github.com/tbourn/go-ttm-coach/internal/catalog"
)

var placeholder = regexp.MustCompile(`\{\{(.*?)\}\}`)

// Rendered is a message ready for display.
type Rendered struct {
	ID               string   `json:"id"                example:"HEADER.STAGE"`
	Slot             Slot     `json:"slot"              example:"header"`
	Title            string   `json:"title"             example:"Your stage: Preparation stage"`
	Body             string   `json:"body"`
	SuggestedActions []string `json:"suggested_actions"`
}

// Interpolate replaces every {{name}} in s with vars[name]. Unknown names
// render as the empty string.
func Interpolate(s string, vars map[string]string) string {
	if !strings.Contains(s, "{{") {
		return s
	}
	return placeholder.ReplaceAllStringFunc(s, func(m string) string {
		name := strings.TrimSpace(placeholder.FindStringSubmatch(m)[1])
		return vars[name]
	})
}

// Render interpolates the message template. It never fails.
func Render(m catalog.Message, slot Slot, vars map[string]string) Rendered {
	actions := make([]string, len(m.SuggestedActions))
	copy(actions, m.SuggestedActions)
	return Rendered{
		ID:               m.ID,
		Slot:             slot,
		Title:            Interpolate(m.Template.Title, vars),
		Body:             Interpolate(m.Template.Body, vars),
		SuggestedActions: actions,
	}
}
