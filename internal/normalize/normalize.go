// Package normalize turns free text (resumes, job descriptions, possibly HTML)
// into a deterministic sequence of normalized tokens.
//
// The output is a fixed point: Normalize(Join(Normalize(t))) == Normalize(t).
package normalize

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/kljensen/snowball/english"
	"golang.org/x/text/unicode/norm"
)

// maxStemRounds bounds the fixed-point stemming loop. Stems never grow, so in
// practice this settles in one or two rounds.
const maxStemRounds = 8

// Normalizer is safe for concurrent use once built.
type Normalizer struct {
	stop        map[string]bool
	boilerplate [][]string
}

// Option customizes a Normalizer.
type Option func(*Normalizer)

// WithBoilerplate adds phrases that are stripped from every document.
func WithBoilerplate(phrases ...string) Option {
	return func(n *Normalizer) {
		n.addBoilerplate(phrases)
	}
}

// WithStopwords adds extra stopwords on top of the English list.
func WithStopwords(words ...string) Option {
	return func(n *Normalizer) {
		for _, w := range words {
			for _, t := range n.tokens(w) {
				n.stop[t] = true
			}
		}
	}
}

// New builds a Normalizer with the default English stopwords and boilerplate
// phrases plus whatever the options add.
func New(opts ...Option) *Normalizer {
	n := &Normalizer{stop: make(map[string]bool, len(englishStopwords))}
	for _, w := range englishStopwords {
		n.stop[w] = true
	}
	n.addBoilerplate(defaultBoilerplate)
	for _, opt := range opts {
		opt(n)
	}
	return n
}

var std = New()

// Default returns the shared Normalizer with default settings.
func Default() *Normalizer { return std }

// Normalize runs the full pipeline with the default Normalizer.
func Normalize(text string) []string { return std.Normalize(text) }

// Join renders tokens back into a single string.
func Join(tokens []string) string { return strings.Join(tokens, " ") }

// Normalize strips markup, folds Unicode and case, tokenizes, reduces words
// to their stems, and drops stopwords and boilerplate phrases.
// It never returns nil.
func (n *Normalizer) Normalize(text string) []string {
	toks := n.tokens(text)
	return removePhrases(toks, n.boilerplate)
}

// tokens is Normalize without boilerplate removal. Boilerplate phrases are
// themselves normalized through it.
func (n *Normalizer) tokens(text string) []string {
	out := []string{}
	if strings.TrimSpace(text) == "" {
		return out
	}
	if LooksLikeHTML(text) {
		text = PlainText(text)
	}
	text = fold(text)

	for _, raw := range split(text) {
		tok := trimToken(raw)
		if tok == "" || !hasLetter(tok) || n.stop[tok] {
			continue
		}
		tok = stem(tok)
		if tok == "" || n.stop[tok] {
			continue
		}
		out = append(out, tok)
	}
	return out
}

func (n *Normalizer) addBoilerplate(phrases []string) {
	for _, p := range phrases {
		toks := n.tokens(p)
		if len(toks) == 0 {
			continue
		}
		n.boilerplate = append(n.boilerplate, toks)
	}
}

func fold(s string) string {
	s = norm.NFKC.String(s)
	s = strings.ToLower(s)
	return norm.NFKC.String(s)
}

func isTokenRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsMark(r) ||
		r == '+' || r == '#' || r == '.'
}

func split(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool { return !isTokenRune(r) })
}

// trimToken drops leading ".#+" and trailing "." so that sentence punctuation
// doesn't stick to words while "c++", "c#" and "node.js" survive. A single
// leading dot before a letter is kept for names like ".net".
func trimToken(t string) string {
	t = strings.TrimLeft(t, "#+")
	dotted := len(t) > 1 && t[0] == '.' && t[1] != '.'
	t = strings.TrimLeft(t, ".#+")
	t = strings.TrimRight(t, ".")
	if dotted && t != "" {
		if r, _ := utf8.DecodeRuneInString(t); unicode.IsLetter(r) {
			t = "." + t
		}
	}
	return t
}

func hasLetter(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) {
			return true
		}
	}
	return false
}

func isASCIIWord(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c < 'a' || c > 'z' {
			return false
		}
	}
	return s != ""
}

// stem reduces plain ASCII words with the Snowball English stemmer, repeated
// until it stops changing. Anything else (digits, tech punctuation, other
// scripts) is returned untouched.
func stem(t string) string {
	if !isASCIIWord(t) {
		return t
	}
	for i := 0; i < maxStemRounds; i++ {
		next := english.Stem(t, false)
		if next == t || next == "" {
			break
		}
		t = next
	}
	return t
}

// removePhrases deletes every occurrence of each phrase, repeating until the
// sequence stops changing.
func removePhrases(toks []string, phrases [][]string) []string {
	if len(phrases) == 0 || len(toks) == 0 {
		return toks
	}
	for {
		next, changed := removeOnce(toks, phrases)
		if !changed {
			return next
		}
		toks = next
	}
}

func removeOnce(toks []string, phrases [][]string) ([]string, bool) {
	out := make([]string, 0, len(toks))
	changed := false
	for i := 0; i < len(toks); {
		if l := matchAt(toks, i, phrases); l > 0 {
			i += l
			changed = true
			continue
		}
		out = append(out, toks[i])
		i++
	}
	return out, changed
}

// matchAt returns the length of the longest phrase starting at toks[i].
func matchAt(toks []string, i int, phrases [][]string) int {
	best := 0
	for _, p := range phrases {
		if len(p) <= best || i+len(p) > len(toks) {
			continue
		}
		ok := true
		for j, w := range p {
			if toks[i+j] != w {
				ok = false
				break
			}
		}
		if ok {
			best = len(p)
		}
	}
	return best
}
