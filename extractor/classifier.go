package extractor

import (
	"context"
	"strings"

	"go.uber.org/zap"
)

// assumptionKeywords short-circuit the classifier without a model call.
var assumptionKeywords = []string{
	"calculate yourself",
	"you calculate",
	"figure it out",
	"figure out",
	"estimate",
	"you decide",
	"assume",
	"your own",
	"work it out",
	"determine",
	"guess",
}

// Classifier decides whether the user permits the assistant to estimate
// missing invoice details.
type Classifier struct {
	llm    LLMClient
	logger *zap.Logger
}

func NewClassifier(llm LLMClient, logger *zap.Logger) *Classifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Classifier{llm: llm, logger: logger}
}

// MatchesKeyword reports whether msg contains one of the fast-path phrases.
func MatchesKeyword(msg string) bool {
	lower := strings.ToLower(msg)
	for _, k := range assumptionKeywords {
		if strings.Contains(lower, k) {
			return true
		}
	}
	return false
}

// AllowAssumptions returns true for assumption mode. Any failure of the
// model fallback resolves to strict mode; it never returns an error.
func (c *Classifier) AllowAssumptions(ctx context.Context, msg string) bool {
	if strings.TrimSpace(msg) == "" {
		return false
	}
	if MatchesKeyword(msg) {
		return true
	}
	if c.llm == nil {
		return false
	}

	reply, err := c.llm.Complete(ctx, BuildIntentPrompt(msg))
	if err != nil {
		c.logger.Warn("intent classification failed, using strict mode", zap.Error(err))
		return false
	}
	return strings.Contains(strings.ToUpper(strings.TrimSpace(reply)), "YES")
}
