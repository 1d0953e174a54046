package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"invoice_nft_receipt/invoice"
)

func sampleReceipt(cid string, at time.Time) invoice.Receipt {
	d := invoice.NewDraft()
	d.Amount = invoice.Amount("5000")
	d.Payer = invoice.Str("Acme")
	d.Description = invoice.Str("Built a website")
	rec, err := invoice.NewRecord(d, at, "")
	if err != nil {
		panic(err)
	}
	return invoice.Receipt{
		CID:      cid,
		TokenURI: "https://gateway.pinata.cloud/ipfs/" + cid,
		Record:   rec,
		PinnedAt: at,
	}
}

var receiptCmp = cmp.Comparer(func(a, b decimal.Decimal) bool { return a.Equal(b) })

func exerciseStore(t *testing.T, s RecordStore) {
	t.Helper()
	ctx := context.Background()
	base := time.Date(2024, 7, 1, 8, 0, 0, 0, time.UTC)

	_, err := s.Get(ctx, "missing")
	assert.True(t, errors.Is(err, ErrNotFound))

	first := sampleReceipt("bafyA", base)
	second := sampleReceipt("bafyB", base.Add(time.Minute))
	require.NoError(t, s.Save(ctx, first))
	require.NoError(t, s.Save(ctx, second))
	require.NoError(t, s.Save(ctx, first), "save is an upsert")

	got, err := s.Get(ctx, "bafyA")
	require.NoError(t, err)
	if diff := cmp.Diff(first, got, receiptCmp); diff != "" {
		t.Errorf("Get mismatch (-want +got):\n%s", diff)
	}

	all, err := s.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "bafyB", all[0].CID, "newest first")

	one, err := s.List(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, one, 1)
}

func TestMemoryStore(t *testing.T) {
	s := NewMemory()
	defer s.Close()
	exerciseStore(t, s)
}

func TestSQLiteStore(t *testing.T) {
	s, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "receipts.db"))
	require.NoError(t, err)
	defer s.Close()
	exerciseStore(t, s)
}

func TestMemoryRejectsEmptyCID(t *testing.T) {
	assert.Error(t, NewMemory().Save(context.Background(), invoice.Receipt{}))
}
