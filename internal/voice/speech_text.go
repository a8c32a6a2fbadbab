package voice

import (
	"regexp"
	"strings"
	"unicode"
)

type speechRewrite struct {
	pattern *regexp.Regexp
	with    string
}

// Applied in order. Code goes first so its contents are never spoken.
var speechRewrites = []speechRewrite{
	{regexp.MustCompile("(?s)```.*?```"), " "},
	{regexp.MustCompile("`[^`]*`"), " "},
	{regexp.MustCompile(`\[(.*?)\]\((.*?)\)`), "$1"},
	{regexp.MustCompile(`https?://\S+`), " "},
	{regexp.MustCompile(`#\s?(\d)`), "number $1"},
	{regexp.MustCompile(`(\d)\s?%`), "$1 percent"},
}

var speechSymbols = strings.NewReplacer(
	"&", " and ",
	"*", " ", "_", " ", "\\", " ", "/", " ",
	"|", " ", "#", " ", "~", " ", "<", " ", ">", " ",
)

// SanitizeSpeechText turns a reply into plain text a voice can read aloud:
// markup, links and code are dropped, case numbers and percentages are
// spelled out, and whitespace is collapsed.
func SanitizeSpeechText(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	for _, rw := range speechRewrites {
		raw = rw.pattern.ReplaceAllString(raw, rw.with)
	}
	raw = speechSymbols.Replace(raw)

	var b strings.Builder
	b.Grow(len(raw))
	pendingSpace := false
	for _, r := range raw {
		switch speechClass(r) {
		case speechDrop:
			continue
		case speechGap:
			pendingSpace = b.Len() > 0
		case speechKeep:
			if pendingSpace {
				b.WriteByte(' ')
				pendingSpace = false
			}
			b.WriteRune(r)
		}
	}
	return b.String()
}

type speechRuneClass int

const (
	speechKeep speechRuneClass = iota
	speechGap
	speechDrop
)

func speechClass(r rune) speechRuneClass {
	switch {
	case r == '\u200d' || r == '\ufe0f' || r == '\u20e3':
		return speechDrop
	case unicode.IsSpace(r):
		return speechGap
	case unicode.IsControl(r), unicode.In(r, unicode.So, unicode.Sm, unicode.Sk):
		return speechDrop
	}
	switch r {
	case '.', ',', '!', '?', ':', ';', '\'', '"', '-', '(', ')':
		return speechKeep
	}
	if unicode.IsPunct(r) {
		return speechGap
	}
	return speechKeep
}
