package brain

import (
	"context"
	"fmt"
	"strings"
)

// MockGenerator provides deterministic replies when no model is configured.
// InScope decides classification answers; nil treats every input as in scope.
type MockGenerator struct {
	InScope func(text string) bool
}

func NewMockGenerator(inScope func(string) bool) *MockGenerator {
	return &MockGenerator{InScope: inScope}
}

func (g *MockGenerator) Generate(ctx context.Context, req Request) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}

	input := strings.TrimSpace(req.Input)
	switch req.Kind {
	case KindClassify:
		if g.InScope == nil || g.InScope(input) {
			return "YES", nil
		}
		return "NO", nil
	case KindSummary:
		if input == "" {
			return "Caller contacted the front desk. No details were recorded.", nil
		}
		return fmt.Sprintf("Caller reported: %s. Follow-up: an officer should review the report and contact the caller.", strings.TrimRight(input, ".")), nil
	default:
		if input == "" {
			return "I'm listening. How can I help you today?", nil
		}
		return fmt.Sprintf("Thank you for letting us know about this: %q. To file a report, can you share more details, such as when and where it happened and a description of anything or anyone involved? If anyone is in danger, please call 911 immediately.", input), nil
	}
}
