// Package knowledge is a small, deterministic, in-memory retrieval index over
// the coaching guide. The work chat uses it to answer when no language model
// is available.
//
//   - Paragraphs are split on blank lines and tagged with their nearest
//     Markdown heading, so results can say which section they came from
//   - Markdown tables are flattened into one fact per row before indexing
//   - Tokens are Unicode words; runs of CJK characters become bigrams so
//     unsegmented text still matches
//   - The index is immutable after construction and safe for concurrent use
//
// Scoring is Jaccard similarity between the query token set and each
// paragraph's token set: score = |Q ∩ P| / |Q ∪ P|. Paragraphs in a section
// whose heading names the requested stage get a fixed boost.
package knowledge

import (
	"bytes"
	_ "embed"
	"io"
	"os"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"
)

//go:embed guide.md
var guideMD []byte

// Result is a ranked snippet with its similarity score.
type Result struct {
	Snippet string  `json:"snippet"`
	Section string  `json:"section,omitempty"`
	Score   float64 `json:"score"`
}

// ----------------------------------------------------------------------------
// Options

type Option func(*config)

type config struct {
	minParagraphRunes int
	stopwords         map[string]struct{}
	stageBoost        float64
}

func defaultConfig() config {
	return config{
		minParagraphRunes: 40,
		stopwords:         defaultStopwords,
		stageBoost:        0.05,
	}
}

// WithMinParagraphRunes drops paragraphs shorter than n runes. Negative
// values are ignored.
func WithMinParagraphRunes(n int) Option {
	return func(c *config) {
		if n >= 0 {
			c.minParagraphRunes = n
		}
	}
}

// WithStopwords replaces the built-in stop-word list. An empty list keeps
// the default.
func WithStopwords(words []string) Option {
	return func(c *config) {
		m := make(map[string]struct{}, len(words))
		for _, w := range words {
			w = strings.ToLower(strings.TrimSpace(w))
			if w != "" {
				m[w] = struct{}{}
			}
		}
		if len(m) > 0 {
			c.stopwords = m
		}
	}
}

// WithStageBoost sets the score added to paragraphs of the requested stage.
func WithStageBoost(v float64) Option {
	return func(c *config) {
		if v >= 0 {
			c.stageBoost = v
		}
	}
}

// ----------------------------------------------------------------------------
// Index

type doc struct {
	text    string
	section string
	tokens  map[string]struct{}
}

// Index is a read-only paragraph index.
type Index struct {
	cfg  config
	docs []doc
}

// Default builds the index over the embedded coaching guide.
func Default(opts ...Option) *Index {
	return New(guideMD, opts...)
}

// Load builds the index from the Markdown file at path.
func Load(path string, opts ...Option) (*Index, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return New(b, opts...), nil
}

// FromReader builds the index from UTF-8 Markdown provided by r.
func FromReader(r io.Reader, opts ...Option) (*Index, error) {
	all, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return New(all, opts...), nil
}

// New builds the index from Markdown bytes.
func New(md []byte, opts ...Option) *Index {
	cfg := defaultConfig()
	for _, o := range opts {
		o(&cfg)
	}
	idx := &Index{cfg: cfg}
	for _, p := range splitSections(flattenTables(md)) {
		t := strings.TrimSpace(normalizeWhitespace(p.text))
		if t == "" {
			continue
		}
		if cfg.minParagraphRunes > 0 && utf8.RuneCountInString(t) < cfg.minParagraphRunes {
			continue
		}
		toks := tokenize(t, cfg.stopwords)
		if len(toks) == 0 {
			continue
		}
		idx.docs = append(idx.docs, doc{text: t, section: p.section, tokens: toks})
	}
	return idx
}

// Len returns the number of indexed paragraphs.
func (i *Index) Len() int { return len(i.docs) }

// TopK returns up to k best-matching paragraphs by Jaccard similarity.
func (i *Index) TopK(query string, k int) []Result {
	return i.Search(query, "", k)
}

// Search is TopK with a stage hint: paragraphs whose section heading
// names stage (e.g. "preparation") are boosted.
func (i *Index) Search(query, stage string, k int) []Result {
	if i == nil || len(i.docs) == 0 || strings.TrimSpace(query) == "" {
		return nil
	}
	if k <= 0 {
		k = 3
	}
	qTokens := tokenize(query, i.cfg.stopwords)
	if len(qTokens) == 0 {
		return nil
	}
	stage = strings.ToLower(strings.TrimSpace(stage))

	type scored struct {
		Result
		lenRunes int
	}
	buf := make([]scored, 0, len(i.docs))
	for _, d := range i.docs {
		over := overlap(qTokens, d.tokens)
		if over == 0 {
			continue
		}
		union := float64(len(qTokens) + len(d.tokens) - over)
		score := float64(over) / union
		if stage != "" && sectionMentions(d.section, stage) {
			score += i.cfg.stageBoost
		}
		buf = append(buf, scored{
			Result:   Result{Snippet: d.text, Section: d.section, Score: score},
			lenRunes: utf8.RuneCountInString(d.text),
		})
	}
	if len(buf) == 0 {
		return nil
	}

	sort.SliceStable(buf, func(a, b int) bool {
		if buf[a].Score != buf[b].Score {
			return buf[a].Score > buf[b].Score
		}
		if buf[a].lenRunes != buf[b].lenRunes {
			return buf[a].lenRunes < buf[b].lenRunes
		}
		return buf[a].Snippet < buf[b].Snippet
	})

	if k > len(buf) {
		k = len(buf)
	}
	out := make([]Result, k)
	for j := 0; j < k; j++ {
		out[j] = buf[j].Result
	}
	return out
}

// sectionMentions reports whether stage appears as a whole word in the
// section heading, so "contemplation" does not match "Precontemplation".
func sectionMentions(section, stage string) bool {
	for _, w := range wordRE.FindAllString(strings.ToLower(section), -1) {
		if w == stage {
			return true
		}
	}
	return false
}

// ----------------------------------------------------------------------------
// Markdown handling

type para struct {
	section string
	text    string
}

var headingRE = regexp.MustCompile(`^#{1,6}\s+(.*)$`)

// splitSections splits on blank lines; heading lines start a new section
// and are not indexed themselves.
func splitSections(md []byte) []para {
	var (
		out     []para
		section string
		cur     []string
	)
	flush := func() {
		if len(cur) > 0 {
			out = append(out, para{section: section, text: strings.Join(cur, "\n")})
			cur = nil
		}
	}
	for _, line := range strings.Split(strings.ReplaceAll(string(md), "\r\n", "\n"), "\n") {
		t := strings.TrimSpace(line)
		if t == "" {
			flush()
			continue
		}
		if m := headingRE.FindStringSubmatch(t); m != nil {
			flush()
			section = strings.TrimSpace(m[1])
			continue
		}
		cur = append(cur, t)
	}
	flush()
	return out
}

// flattenTables rewrites Markdown table rows as standalone one-line facts,
// dropping separator rows. Non-table content is unchanged.
func flattenTables(md []byte) []byte {
	if !bytes.Contains(md, []byte("|")) {
		return md
	}
	var b strings.Builder
	for _, line := range strings.Split(string(md), "\n") {
		t := strings.TrimSpace(line)
		if !(strings.HasPrefix(t, "|") && strings.HasSuffix(t, "|")) {
			b.WriteString(line)
			b.WriteByte('\n')
			continue
		}
		cols := strings.Split(strings.Trim(t, "|"), "|")
		allSep := true
		cells := make([]string, 0, len(cols))
		for _, c := range cols {
			cell := strings.TrimSpace(c)
			if cell != "" {
				cells = append(cells, cell)
			}
			if strings.Trim(cell, ":- ") != "" {
				allSep = false
			}
		}
		if allSep || len(cells) == 0 {
			continue
		}
		b.WriteString(strings.Join(cells, " "))
		b.WriteString("\n\n")
	}
	return []byte(b.String())
}

func normalizeWhitespace(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	prevSpace := false
	for _, r := range s {
		if r == ' ' || r == '\t' || r == '\r' || r == '\n' {
			if !prevSpace {
				b.WriteByte(' ')
				prevSpace = true
			}
			continue
		}
		prevSpace = false
		b.WriteRune(r)
	}
	return b.String()
}
