// Package intent classifies a user request into a coarse intent used to
// pick which orchestrator waves are worth running.
package intent

import (
	"regexp"
	"strings"
)

// Type is a classified request intent.
type Type string

const (
	TypeCode     Type = "code"
	TypeTest     Type = "test"
	TypeDocs     Type = "docs"
	TypeReview   Type = "review"
	TypeResearch Type = "research"
	TypePlan     Type = "plan"
	TypeGeneral  Type = "general"
)

// Result is the outcome of a classification.
type Result struct {
	Type       Type    `json:"type"`
	Confidence float64 `json:"confidence"`
}

// Classifier maps a prompt to an intent.
type Classifier interface {
	Classify(prompt string) Result
}

// Compile-time check.
var _ Classifier = (*KeywordClassifier)(nil)

type rule struct {
	typ      Type
	patterns []*regexp.Regexp
}

// KeywordClassifier matches word-boundary keyword patterns. Rules are
// checked in precedence order and the first rule with any match wins.
type KeywordClassifier struct {
	rules []rule
}

func words(ws ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(ws))
	for i, w := range ws {
		out[i] = regexp.MustCompile(`(?i)\b` + w + `\b`)
	}
	return out
}

// NewKeywordClassifier returns the default keyword classifier.
func NewKeywordClassifier() *KeywordClassifier {
	return &KeywordClassifier{
		rules: []rule{
			{TypeTest, words(`tests?`, `unit[- ]tests?`, `testing`, `test cases?`, `coverage`, `spec files?`, `assertions?`)},
			{TypeDocs, words(`docs`, `documentation`, `document`, `readme`, `docstrings?`, `comments?`, `changelog`)},
			{TypeReview, words(`review`, `audit`, `critique`, `code review`, `look over`)},
			{TypeResearch, words(`research`, `investigate`, `compare`, `explain`, `what is`, `how does`, `why does`)},
			{TypePlan, words(`plan`, `roadmap`, `design`, `architecture`, `outline`, `break down`)},
			{TypeCode, words(`implement`, `write`, `add`, `fix`, `refactor`, `build`, `create`, `code`, `bug`, `function`)},
		},
	}
}

// Classify returns the highest-precedence matching intent. Confidence starts
// at 0.6 for one matching keyword and grows by 0.1 per additional match, up
// to 0.95. No match yields TypeGeneral with zero confidence.
func (c *KeywordClassifier) Classify(prompt string) Result {
	text := strings.TrimSpace(prompt)
	if text == "" {
		return Result{Type: TypeGeneral}
	}

	for _, r := range c.rules {
		n := 0
		for _, p := range r.patterns {
			if p.MatchString(text) {
				n++
			}
		}
		if n == 0 {
			continue
		}
		conf := 0.6 + 0.1*float64(n-1)
		if conf > 0.95 {
			conf = 0.95
		}
		return Result{Type: r.typ, Confidence: conf}
	}
	return Result{Type: TypeGeneral}
}
