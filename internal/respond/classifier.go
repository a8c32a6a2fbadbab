package respond

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/ent0n29/dispatchdesk/internal/brain"
)

// Classifier decides whether an utterance is within the desk's scope.
type Classifier interface {
	InDomain(ctx context.Context, utterance string) (bool, error)
}

// DefaultKeywords covers crime reports, emergencies, traffic and public
// safety questions.
var DefaultKeywords = []string{
	"police", "officer", "cop", "sheriff", "detective", "precinct", "station",
	"crime", "criminal", "stolen", "steal", "stole", "theft", "thief", "rob", "robbed", "robbery",
	"burglar", "burglary", "break-in", "broke in", "broke into", "broken into", "shoplift", "pickpocket",
	"assault", "attack", "attacked", "fight", "violence", "violent", "abuse", "harass", "harassment",
	"stalk", "threat", "threaten", "weapon", "gun", "knife", "shot", "shooting",
	"emergency", "911", "danger", "dangerous", "unsafe", "injured", "hurt",
	"accident", "crash", "collision", "hit and run", "traffic", "speeding", "dui", "drunk driver",
	"ticket", "citation", "parking",
	"missing", "lost", "kidnap", "runaway", "found property",
	"suspicious", "trespass", "vandal", "vandalism", "graffiti", "noise complaint", "disturbance",
	"fraud", "scam", "identity theft", "counterfeit",
	"report", "complaint", "file a", "arrest", "warrant", "court", "law", "legal", "illegal",
	"safety", "security", "neighborhood watch", "restraining order",
}

// KeywordClassifier matches whole words or phrases from a fixed list.
type KeywordClassifier struct {
	pattern *regexp.Regexp
}

func NewKeywordClassifier(keywords []string) *KeywordClassifier {
	if len(keywords) == 0 {
		keywords = DefaultKeywords
	}
	parts := make([]string, 0, len(keywords))
	for _, k := range keywords {
		k = strings.ToLower(strings.TrimSpace(k))
		if k != "" {
			parts = append(parts, regexp.QuoteMeta(k))
		}
	}
	return &KeywordClassifier{
		pattern: regexp.MustCompile(`(?i)\b(?:` + strings.Join(parts, "|") + `)(?:s|es)?\b`),
	}
}

// Match reports whether text contains any keyword.
func (c *KeywordClassifier) Match(text string) bool {
	return c.pattern.MatchString(text)
}

func (c *KeywordClassifier) InDomain(_ context.Context, utterance string) (bool, error) {
	return c.Match(utterance), nil
}

// LLMClassifier asks the generator for a YES or NO answer. Anything other
// than YES is out of domain.
type LLMClassifier struct {
	gen brain.Generator
}

func NewLLMClassifier(gen brain.Generator) *LLMClassifier {
	return &LLMClassifier{gen: gen}
}

func (c *LLMClassifier) InDomain(ctx context.Context, utterance string) (bool, error) {
	answer, err := c.gen.Generate(ctx, brain.Request{
		Kind:   brain.KindClassify,
		Prompt: classifyPrompt(utterance),
		Input:  utterance,
	})
	if err != nil {
		return false, err
	}
	answer = strings.ToUpper(strings.Trim(strings.TrimSpace(answer), `."'`))
	return answer == "YES", nil
}

// HybridClassifier accepts keyword hits without a model call and asks the
// LLM about everything else.
type HybridClassifier struct {
	keywords *KeywordClassifier
	llm      *LLMClassifier
}

func NewHybridClassifier(keywords *KeywordClassifier, llm *LLMClassifier) *HybridClassifier {
	return &HybridClassifier{keywords: keywords, llm: llm}
}

func (c *HybridClassifier) InDomain(ctx context.Context, utterance string) (bool, error) {
	if c.keywords.Match(utterance) {
		return true, nil
	}
	return c.llm.InDomain(ctx, utterance)
}

// NewClassifier builds the classifier for mode: keyword, llm or hybrid.
func NewClassifier(mode string, gen brain.Generator) (Classifier, error) {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "keyword":
		return NewKeywordClassifier(nil), nil
	case "llm":
		if gen == nil {
			return nil, fmt.Errorf("llm classifier requires a generator")
		}
		return NewLLMClassifier(gen), nil
	case "", "hybrid":
		if gen == nil {
			return NewKeywordClassifier(nil), nil
		}
		return NewHybridClassifier(NewKeywordClassifier(nil), NewLLMClassifier(gen)), nil
	default:
		return nil, fmt.Errorf("unsupported CLASSIFIER_MODE %q (expected keyword|llm|hybrid)", mode)
	}
}
