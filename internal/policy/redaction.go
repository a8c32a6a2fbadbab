// Package policy masks personal details in caller speech before it reaches
// log output. Stored call records keep the full text.
package policy

import "regexp"

type rule struct {
	label   string
	pattern *regexp.Regexp
}

// Order matters: cards and SSNs are digit runs a phone rule would also match.
var rules = []rule{
	{"EMAIL", regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)},
	{"CARD", regexp.MustCompile(`\b(?:\d[ -]*?){13,19}\b`)},
	{"SSN", regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)},
	{"PHONE", regexp.MustCompile(`\+?[0-9][0-9\-() ]{7,}[0-9]`)},
}

// RedactTranscript replaces emails, card numbers, SSNs and phone numbers
// with [REDACTED_<KIND>] and reports how many spans were masked.
func RedactTranscript(input string) (string, int) {
	out := input
	masked := 0
	for _, r := range rules {
		replacement := "[REDACTED_" + r.label + "]"
		out = r.pattern.ReplaceAllStringFunc(out, func(string) string {
			masked++
			return replacement
		})
	}
	return out, masked
}
