package extractor

import (
	"context"
	"encoding/json"
	"errors"
	"regexp"
	"strings"
	"sync"
)

// MockReply is one scripted response.
type MockReply struct {
	Text string
	Err  error
}

// MockLLM replays queued replies in order and records every prompt it
// receives. Once the queue is empty it answers with Fallback, or an error
// when Fallback is nil.
type MockLLM struct {
	mu       sync.Mutex
	Replies  []MockReply
	Calls    []Prompt
	Fallback *MockReply
}

// NewMockLLM queues plain-text replies.
func NewMockLLM(replies ...string) *MockLLM {
	m := &MockLLM{}
	for _, r := range replies {
		m.Replies = append(m.Replies, MockReply{Text: r})
	}
	return m
}

// Then queues another reply and returns m for chaining.
func (m *MockLLM) Then(text string, err error) *MockLLM {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Replies = append(m.Replies, MockReply{Text: text, Err: err})
	return m
}

func (m *MockLLM) Complete(ctx context.Context, prompt Prompt) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, prompt)
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(m.Replies) == 0 {
		if m.Fallback != nil {
			return m.Fallback.Text, m.Fallback.Err
		}
		return "", errors.New("mock llm: no scripted reply")
	}
	r := m.Replies[0]
	m.Replies = m.Replies[1:]
	return r.Text, r.Err
}

// CallCount reports how many prompts were received.
func (m *MockLLM) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}

// CallsOf returns the recorded prompts of one kind.
func (m *MockLLM) CallsOf(kind PromptKind) []Prompt {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Prompt
	for _, p := range m.Calls {
		if p.Kind == kind {
			out = append(out, p)
		}
	}
	return out
}

// DemoLLM is an offline client for local runs without an API key. It
// answers with a rough regex reading of the user's text, enough to walk
// through the approval loop.
type DemoLLM struct{}

var (
	demoAmount    = regexp.MustCompile(`(?i)(?:\$\s*([\d,]+(?:\.\d+)?)|([\d,]+(?:\.\d+)?)\s*(?:dollars?|usd|bucks))`)
	demoBareNum   = regexp.MustCompile(`(?i)\b(?:amount|make it|is)\s+\$?([\d,]+(?:\.\d+)?)`)
	demoPayer     = regexp.MustCompile(`\b(?:[Ff]or|[Pp]ayer is|[Cc]lient is)\s+([A-Z][\w&.]*(?:\s+[A-Z][\w&.]*)*)`)
	demoRecipient = regexp.MustCompile(`\b(?:I am|I'm|[Mm]y name is)\s+([A-Z][\w.]*(?:\s+[A-Z][\w.]*)*)`)
	demoHours     = regexp.MustCompile(`(?i)([\d.]+)\s*(?:hours?|hrs?)\b`)
)

func (DemoLLM) Complete(_ context.Context, prompt Prompt) (string, error) {
	switch prompt.Kind {
	case KindIntent:
		return "NO", nil
	case KindUpdate:
		return demoFields(strings.TrimPrefix(prompt.User, "Update: "), false)
	default:
		return demoFields(prompt.User, true)
	}
}

// demoFields emits only what it can find; with describe set it also
// echoes the text as the description.
func demoFields(text string, describe bool) (string, error) {
	out := map[string]any{}
	if m := demoAmount.FindStringSubmatch(text); m != nil {
		out["amount"] = firstNonEmpty(m[1], m[2])
	} else if m := demoBareNum.FindStringSubmatch(text); m != nil {
		out["amount"] = m[1]
	}
	if m := demoPayer.FindStringSubmatch(text); m != nil {
		out["payer"] = strings.TrimSpace(m[1])
	}
	if m := demoRecipient.FindStringSubmatch(text); m != nil {
		out["recipient"] = strings.TrimSpace(m[1])
	}
	if m := demoHours.FindStringSubmatch(text); m != nil {
		out["workingHours"] = m[1]
	}
	if describe {
		out["description"] = strings.TrimSpace(text)
	}
	b, err := json.Marshal(out)
	return string(b), err
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
