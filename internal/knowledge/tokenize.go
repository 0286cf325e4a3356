package knowledge

import (
	"regexp"
	"strings"
	"unicode"
)

var wordRE = regexp.MustCompile(`[\p{L}\p{N}]+`)

var defaultStopwords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "and": {}, "or": {}, "of": {}, "to": {}, "in": {},
	"is": {}, "are": {}, "for": {}, "on": {}, "with": {}, "by": {}, "from": {},
	"at": {}, "as": {}, "that": {}, "this": {}, "it": {}, "be": {}, "was": {}, "were": {},
	"i": {}, "me": {}, "my": {}, "you": {}, "your": {}, "do": {}, "does": {}, "can": {},
	"what": {}, "how": {}, "which": {}, "about": {},
}

// tokenize lower-cases s and returns its token set. Letters of scripts
// written without spaces (Han, Hiragana, Katakana, Hangul) are emitted as
// overlapping bigrams; a lone CJK character is kept as a unigram.
func tokenize(s string, stop map[string]struct{}) map[string]struct{} {
	words := wordRE.FindAllString(strings.ToLower(s), -1)
	if len(words) == 0 {
		return nil
	}
	out := make(map[string]struct{}, len(words))
	add := func(w string) {
		if w == "" {
			return
		}
		if _, skip := stop[w]; skip {
			return
		}
		out[w] = struct{}{}
	}
	for _, w := range words {
		var (
			plain []rune
			cjk   []rune
		)
		flushPlain := func() {
			add(string(plain))
			plain = plain[:0]
		}
		flushCJK := func() {
			switch len(cjk) {
			case 0:
			case 1:
				add(string(cjk))
			default:
				for i := 0; i+1 < len(cjk); i++ {
					add(string(cjk[i : i+2]))
				}
			}
			cjk = cjk[:0]
		}
		for _, r := range w {
			if isCJK(r) {
				flushPlain()
				cjk = append(cjk, r)
				continue
			}
			flushCJK()
			plain = append(plain, r)
		}
		flushPlain()
		flushCJK()
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func isCJK(r rune) bool {
	return unicode.Is(unicode.Han, r) ||
		unicode.Is(unicode.Hiragana, r) ||
		unicode.Is(unicode.Katakana, r) ||
		unicode.Is(unicode.Hangul, r)
}

func overlap(a, b map[string]struct{}) int {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	if len(a) > len(b) {
		a, b = b, a
	}
	n := 0
	for k := range a {
		if _, ok := b[k]; ok {
			n++
		}
	}
	return n
}
