package respond

import (
	"fmt"
	"strings"

	"github.com/ent0n29/dispatchdesk/internal/session"
)

func classifyPrompt(utterance string) string {
	return fmt.Sprintf(`Is this question related to police work, law enforcement, emergencies, public safety, or filing reports?

Question: %q

Consider these as police-related:
- Crime reporting
- Emergency situations
- Legal inquiries
- Traffic violations
- Community safety
- Police procedures
- Filing complaints
- Security concerns

Answer only "YES" or "NO".`, utterance)
}

func replyPrompt(utterance string, window []session.Exchange) string {
	return fmt.Sprintf(`You are a professional police receptionist AI assistant.

Previous conversation:
%s

Current user query: %q

Provide a helpful, professional response for police-related inquiries. Keep responses concise, clear, and under 150 words.
If this is about filing a report, ask for necessary details. If it's an emergency, direct them to call 911 immediately.`,
		FormatTranscript(window), utterance)
}

// FormatTranscript renders exchanges as alternating User and Bot lines.
func FormatTranscript(exchanges []session.Exchange) string {
	if len(exchanges) == 0 {
		return "(none)"
	}
	var b strings.Builder
	for i, ex := range exchanges {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString("User: ")
		b.WriteString(ex.Transcript)
		b.WriteString("\nBot: ")
		b.WriteString(ex.Response)
	}
	return b.String()
}
