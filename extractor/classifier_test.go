package extractor

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestClassifierKeywordFastPath(t *testing.T) {
	inputs := []string{
		"I did work, figure out the rate",
		"Logo for Acme, you calculate yourself",
		"please ESTIMATE the cost",
		"Just assume a fair rate",
		"use your own judgement",
	}
	for _, in := range inputs {
		llm := NewMockLLM()
		c := NewClassifier(llm, nil)
		assert.True(t, c.AllowAssumptions(context.Background(), in), in)
		assert.Zero(t, llm.CallCount(), "keyword match must not call the model: %q", in)
	}
}

func TestClassifierFallback(t *testing.T) {
	tests := []struct {
		reply string
		want  bool
	}{
		{reply: "YES", want: true},
		{reply: "  yes\n", want: true},
		{reply: "Yes, they want an estimate", want: true},
		{reply: "NO", want: false},
		{reply: "no", want: false},
		{reply: "", want: false},
	}
	for _, tt := range tests {
		llm := NewMockLLM(tt.reply)
		c := NewClassifier(llm, nil)
		got := c.AllowAssumptions(context.Background(), "I built a website for $5000 for Acme")
		assert.Equal(t, tt.want, got, "reply %q", tt.reply)
		require.Equal(t, 1, llm.CallCount())

		p := llm.Calls[0]
		assert.Equal(t, KindIntent, p.Kind)
		assert.Equal(t, 0.1, p.Temperature)
		assert.Equal(t, 10, p.MaxTokens)
		assert.Contains(t, p.User, "I built a website for $5000 for Acme")
	}
}

func TestClassifierFailsClosed(t *testing.T) {
	llm := &MockLLM{Replies: []MockReply{{Err: errors.New("connection refused")}}}
	c := NewClassifier(llm, nil)
	assert.False(t, c.AllowAssumptions(context.Background(), "Built a site for Bob"))
	assert.Equal(t, 1, llm.CallCount())
}

func TestClassifierEmptyInput(t *testing.T) {
	llm := NewMockLLM("YES")
	c := NewClassifier(llm, nil)
	assert.False(t, c.AllowAssumptions(context.Background(), "   "))
	assert.Zero(t, llm.CallCount())
}

func TestMatchesKeyword(t *testing.T) {
	assert.True(t, MatchesKeyword("Can you GUESS the hours?"))
	assert.False(t, MatchesKeyword("I built a website for $5000 for Acme"))
}
