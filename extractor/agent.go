package extractor

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"invoice_nft_receipt/invoice"
)

// Agent issues extraction and revision requests and parses the replies.
type Agent struct {
	llm    LLMClient
	logger *zap.Logger
}

func NewAgent(llm LLMClient, logger *zap.Logger) (*Agent, error) {
	if llm == nil {
		return nil, errors.New("llm client is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Agent{llm: llm, logger: logger}, nil
}

// Extract produces the first draft from the user's description.
func (a *Agent) Extract(ctx context.Context, input string, allowAssumptions bool) (invoice.Draft, error) {
	return a.run(ctx, BuildExtractionPrompt(input, allowAssumptions))
}

// Revise asks for an updated draft. The reply is returned as parsed; the
// caller merges it over current.
func (a *Agent) Revise(ctx context.Context, current invoice.Draft, feedback string) (invoice.Draft, error) {
	return a.run(ctx, BuildUpdatePrompt(current, feedback))
}

func (a *Agent) run(ctx context.Context, prompt Prompt) (invoice.Draft, error) {
	start := time.Now()
	raw, err := a.llm.Complete(ctx, prompt)
	if err != nil {
		return invoice.Draft{}, err
	}
	a.logger.Debug("llm reply",
		zap.String("kind", string(prompt.Kind)),
		zap.Int("bytes", len(raw)),
		zap.Duration("took", time.Since(start)),
	)
	return PostProcess(raw)
}
