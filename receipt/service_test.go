package receipt

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"invoice_nft_receipt/invoice"
	"invoice_nft_receipt/store"
)

type fakePinner struct {
	cid   string
	err   error
	names []string
	data  [][]byte
}

func (p *fakePinner) PinJSON(_ context.Context, name string, data []byte) (string, error) {
	p.names = append(p.names, name)
	p.data = append(p.data, data)
	return p.cid, p.err
}

func (p *fakePinner) GatewayURL(cid string) string {
	return "https://gateway.pinata.cloud/ipfs/" + cid
}

type memArchive struct {
	mu    sync.Mutex
	puts  map[string][]byte
	fails bool
}

func (a *memArchive) Put(_ context.Context, name string, data []byte) error {
	if a.fails {
		return errors.New("bucket unavailable")
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.puts == nil {
		a.puts = map[string][]byte{}
	}
	a.puts[name] = data
	return nil
}

func approvedRecord(t *testing.T) invoice.Record {
	t.Helper()
	d := invoice.NewDraft()
	d.Amount = invoice.Amount("12.5")
	d.Payer = invoice.Str("Initech")
	d.Description = invoice.Str("Consulting")
	rec, err := invoice.NewRecord(d, time.Date(2024, 8, 1, 0, 0, 0, 0, time.UTC), "")
	require.NoError(t, err)
	return rec
}

func TestFinalize(t *testing.T) {
	pinner := &fakePinner{cid: "bafkreiabc"}
	records := store.NewMemory()
	archive := &memArchive{}
	svc, err := NewService(pinner, records, []store.Archive{archive}, nil)
	require.NoError(t, err)
	svc.now = func() time.Time { return time.UnixMilli(1700000000000) }

	rec := approvedRecord(t)
	receipt, err := svc.Finalize(context.Background(), rec)
	require.NoError(t, err)
	assert.Equal(t, "bafkreiabc", receipt.CID)
	assert.Equal(t, "https://gateway.pinata.cloud/ipfs/bafkreiabc", receipt.TokenURI)

	require.Len(t, pinner.names, 1)
	assert.Equal(t, "invoice-1700000000000.json", pinner.names[0])
	var pinned map[string]any
	require.NoError(t, json.Unmarshal(pinner.data[0], &pinned))
	assert.Equal(t, "Initech", pinned["payee"])
	assert.Equal(t, 12.5, pinned["amount"])

	saved, err := records.Get(context.Background(), "bafkreiabc")
	require.NoError(t, err)
	assert.Equal(t, receipt.TokenURI, saved.TokenURI)
	assert.Contains(t, archive.puts, "bafkreiabc.json")
}

func TestFinalizePinFailure(t *testing.T) {
	pinner := &fakePinner{err: errors.New("pinata: status 401")}
	records := store.NewMemory()
	svc, err := NewService(pinner, records, nil, nil)
	require.NoError(t, err)

	_, err = svc.Finalize(context.Background(), approvedRecord(t))
	require.Error(t, err)
	all, _ := records.List(context.Background(), 0)
	assert.Empty(t, all)
}

func TestFinalizeRejectsUnmintableAmountBeforePinning(t *testing.T) {
	pinner := &fakePinner{cid: "bafy"}
	svc, err := NewService(pinner, nil, nil, nil)
	require.NoError(t, err)

	rec := approvedRecord(t)
	rec.Amount = decimal.RequireFromString("0.0000000000000000001")
	for i := 0; i < 3; i++ {
		_, err = svc.Finalize(context.Background(), rec)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "decimal places")
	}
	assert.Empty(t, pinner.names)
}

func TestFinalizeArchiveFailureIsNotFatal(t *testing.T) {
	svc, err := NewService(&fakePinner{cid: "bafy"}, nil, []store.Archive{&memArchive{fails: true}}, nil)
	require.NoError(t, err)
	receipt, err := svc.Finalize(context.Background(), approvedRecord(t))
	require.NoError(t, err)
	assert.Equal(t, "bafy", receipt.CID)
}
