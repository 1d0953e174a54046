package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"mime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"invoice_nft_receipt/extractor"
	"invoice_nft_receipt/invoice"
	"invoice_nft_receipt/store"
)

type testEnv struct {
	server  *Server
	srv     *httptest.Server
	llm     *extractor.MockLLM
	records *store.Memory
}

func newTestEnv(t *testing.T, replies ...string) *testEnv {
	t.Helper()
	llm := extractor.NewMockLLM(replies...)
	agent, err := extractor.NewAgent(llm, nil)
	require.NoError(t, err)
	records := store.NewMemory()
	factory := func(id string) *extractor.Session {
		return extractor.NewSession(id, agent, extractor.NewClassifier(llm, nil), nil, extractor.SessionOptions{})
	}
	s, err := New(factory, records, nil)
	require.NoError(t, err)
	srv := httptest.NewServer(s.Routes())
	t.Cleanup(srv.Close)
	return &testEnv{server: s, srv: srv, llm: llm, records: records}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) (*http.Response, []byte) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, e.srv.URL+path, &buf)
	require.NoError(t, err)
	resp, err := e.srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	var out bytes.Buffer
	_, err = out.ReadFrom(resp.Body)
	require.NoError(t, err)
	return resp, out.Bytes()
}

func decodeSnap(t *testing.T, raw []byte) extractor.Snapshot {
	t.Helper()
	var snap extractor.Snapshot
	require.NoError(t, json.Unmarshal(raw, &snap))
	return snap
}

func TestSessionLifecycle(t *testing.T) {
	env := newTestEnv(t,
		"NO",
		`{"amount": 5000, "description": "Built a website", "payer": "Acme"}`,
		`{"amount": 5500, "description": "Built a website", "payer": "Acme"}`,
	)

	resp, raw := env.do(t, http.MethodPost, "/api/sessions", map[string]string{"text": "I built a website for $5000 for Acme"})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(raw))
	snap := decodeSnap(t, raw)
	require.NotEmpty(t, snap.SessionID)
	assert.Equal(t, extractor.StateAwaitingApproval, snap.State)
	id := snap.SessionID

	resp, raw = env.do(t, http.MethodGet, "/api/sessions/"+id, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, id, decodeSnap(t, raw).SessionID)

	resp, raw = env.do(t, http.MethodGet, "/api/sessions/"+id+"/preview", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")
	assert.Contains(t, string(raw), "<table>")
	assert.Contains(t, string(raw), "Acme")

	resp, raw = env.do(t, http.MethodPost, "/api/sessions/"+id+"/reply", map[string]string{"text": "amount is 5500"})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(raw))
	snap = decodeSnap(t, raw)
	assert.Equal(t, "5500", snap.Draft.Amount.Decimal.String())

	resp, raw = env.do(t, http.MethodPost, "/api/sessions/"+id+"/reply", map[string]string{"text": "yes"})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(raw))
	snap = decodeSnap(t, raw)
	assert.Equal(t, extractor.StateApproved, snap.State)
	require.NotNil(t, snap.Receipt)

	resp, _ = env.do(t, http.MethodGet, "/api/sessions/"+id, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode, "closed sessions are dropped")
}

func TestSessionRequestErrors(t *testing.T) {
	env := newTestEnv(t, "NO", `{"amount": 10, "description": "x", "payer": "Acme"}`)

	resp, _ := env.do(t, http.MethodPost, "/api/sessions", map[string]string{"text": "  "})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = env.do(t, http.MethodPost, "/api/sessions/nope/reply", map[string]string{"text": "yes"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, raw := env.do(t, http.MethodPost, "/api/sessions", map[string]string{"text": "x for Acme, $10"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	id := decodeSnap(t, raw).SessionID

	resp, _ = env.do(t, http.MethodPost, "/api/sessions/"+id+"/retry", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode, "nothing to retry")

	resp, raw = env.do(t, http.MethodDelete, "/api/sessions/"+id, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, extractor.StateCancelled, decodeSnap(t, raw).State)
}

func TestStrictSessionFailsImmediately(t *testing.T) {
	env := newTestEnv(t, "NO", `{"amount": null, "description": "Built a website", "payer": null}`)
	resp, raw := env.do(t, http.MethodPost, "/api/sessions", map[string]string{"text": "Built a website"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	snap := decodeSnap(t, raw)
	assert.Equal(t, extractor.StateFailed, snap.State)
	assert.Equal(t, []string{"amount", "payer"}, snap.MissingFields)

	resp, _ = env.do(t, http.MethodGet, "/api/sessions/"+snap.SessionID, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func TestIdleSessionsAreEvicted(t *testing.T) {
	env := newTestEnv(t,
		"NO",
		`{"amount": 10, "description": "Logo design", "payer": "Acme"}`,
		"NO",
		`{"amount": 20, "description": "Copywriting", "payer": "Globex"}`,
	)
	clock := &fakeClock{t: time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)}
	env.server.sessions.now = clock.Now
	env.server.SetSessionTTL(10 * time.Minute)

	resp, raw := env.do(t, http.MethodPost, "/api/sessions", map[string]string{"text": "Logo design for Acme, $10"})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(raw))
	abandoned := decodeSnap(t, raw).SessionID

	clock.Advance(5 * time.Minute)
	resp, _ = env.do(t, http.MethodGet, "/api/sessions/"+abandoned, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, "a read keeps the session alive")

	clock.Advance(11 * time.Minute)
	resp, raw = env.do(t, http.MethodPost, "/api/sessions", map[string]string{"text": "Copywriting for Globex, $20"})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(raw))
	fresh := decodeSnap(t, raw).SessionID
	assert.Equal(t, 1, env.server.sessions.count())

	resp, _ = env.do(t, http.MethodGet, "/api/sessions/"+abandoned, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp, _ = env.do(t, http.MethodGet, "/api/sessions/"+fresh, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestReceiptEndpoints(t *testing.T) {
	env := newTestEnv(t)
	d := invoice.NewDraft()
	d.Amount = invoice.Amount("12.5")
	d.Payer = invoice.Str("Initech")
	d.Description = invoice.Str("Consulting")
	at := time.Date(2024, 5, 2, 10, 0, 0, 0, time.UTC)
	rec, err := invoice.NewRecord(d, at, "")
	require.NoError(t, err)
	require.NoError(t, env.records.Save(context.Background(), invoice.Receipt{
		CID:      "bafkreiserve",
		TokenURI: "https://gateway.pinata.cloud/ipfs/bafkreiserve",
		Record:   rec,
		PinnedAt: at,
	}))

	resp, raw := env.do(t, http.MethodGet, "/api/receipts?limit=10", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list []invoice.Receipt
	require.NoError(t, json.Unmarshal(raw, &list))
	require.Len(t, list, 1)
	assert.Equal(t, "bafkreiserve", list[0].CID)

	resp, _ = env.do(t, http.MethodGet, "/api/receipts?limit=abc", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, raw = env.do(t, http.MethodGet, "/api/receipts/bafkreiserve", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(raw), `"cid":"bafkreiserve"`)

	resp, _ = env.do(t, http.MethodGet, "/api/receipts/missing", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, raw = env.do(t, http.MethodGet, "/api/receipts/bafkreiserve/pdf", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/pdf", resp.Header.Get("Content-Type"))
	assert.True(t, strings.HasPrefix(string(raw), "%PDF"))
	disposition, params, err := mime.ParseMediaType(resp.Header.Get("Content-Disposition"))
	require.NoError(t, err)
	assert.Equal(t, "attachment", disposition)
	assert.Equal(t, "invoice-bafkreiserve.pdf", params["filename"])
}

func TestReceiptPDFQuotesFilename(t *testing.T) {
	env := newTestEnv(t)
	d := invoice.NewDraft()
	d.Amount = invoice.Amount("7")
	d.Payer = invoice.Str("Initech")
	d.Description = invoice.Str("Review")
	at := time.Date(2024, 5, 2, 10, 0, 0, 0, time.UTC)
	rec, err := invoice.NewRecord(d, at, "")
	require.NoError(t, err)
	cid := `odd cid";x=1`
	require.NoError(t, env.records.Save(context.Background(), invoice.Receipt{
		CID:      cid,
		TokenURI: "https://gateway.pinata.cloud/ipfs/odd",
		Record:   rec,
		PinnedAt: at,
	}))

	resp, _ := env.do(t, http.MethodGet, "/api/receipts/odd%20cid%22%3Bx=1/pdf", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	_, params, err := mime.ParseMediaType(resp.Header.Get("Content-Disposition"))
	require.NoError(t, err)
	assert.Equal(t, "invoice-"+cid+".pdf", params["filename"])
	assert.NotContains(t, params, "x")
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	resp, raw := env.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"ok"}`, string(raw))
}
