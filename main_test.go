package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"invoice_nft_receipt/app"
	"invoice_nft_receipt/config"
)

func newChatApp(t *testing.T) *app.App {
	t.Helper()
	c := config.DefaultConfig()
	c.LLM = config.LLMConfig{Provider: "mock"}
	a, err := app.New(context.Background(), c, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func TestRunChatApproves(t *testing.T) {
	a := newChatApp(t)
	in := strings.NewReader("I am Aman and I built a website for Acme for $5000\n\nmake it 70 dollars\nyes\n")
	var out bytes.Buffer

	require.NoError(t, runChat(context.Background(), a.NewSession("cli"), in, &out))
	s := out.String()
	assert.Contains(t, s, "=== Invoice Details ===")
	assert.Contains(t, s, "$70.00")
	assert.Contains(t, s, "Invoice approved.")
	assert.Contains(t, s, `"amount": 70`)
}

func TestRunChatCancel(t *testing.T) {
	a := newChatApp(t)
	var out bytes.Buffer
	require.NoError(t, runChat(context.Background(), a.NewSession("cli"), strings.NewReader("Built a site for Acme, $10\n/cancel\n"), &out))
	assert.Contains(t, out.String(), "Cancelled")
}

func TestRunChatEndOfInput(t *testing.T) {
	a := newChatApp(t)
	var out bytes.Buffer
	require.NoError(t, runChat(context.Background(), a.NewSession("cli"), strings.NewReader(""), &out))
	assert.Contains(t, out.String(), "Describe the work")
}

func TestClassifyKeyword(t *testing.T) {
	cfg = config.DefaultConfig()
	logger = zap.NewNop()
	var out bytes.Buffer
	classifyCmd.SetOut(&out)
	classifyCmd.SetContext(context.Background())
	require.NoError(t, classifyCmd.RunE(classifyCmd, []string{"please", "estimate", "the", "hours"}))
	assert.Equal(t, "allow assumptions: true (keyword)\n", out.String())
}
