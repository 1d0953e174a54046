// Package store persists pinned invoice receipts and archives their JSON.
package store

import (
	"context"
	"errors"
	"sort"
	"sync"

	"invoice_nft_receipt/invoice"
)

// ErrNotFound is returned when no receipt has the requested CID.
var ErrNotFound = errors.New("receipt not found")

// RecordStore keeps finalized receipts keyed by CID. Save is an upsert.
type RecordStore interface {
	Save(ctx context.Context, r invoice.Receipt) error
	Get(ctx context.Context, cid string) (invoice.Receipt, error)
	// List returns the newest receipts first; limit <= 0 means all.
	List(ctx context.Context, limit int) ([]invoice.Receipt, error)
	Close() error
}

// Archive is a write-once blob sink for serialized records.
type Archive interface {
	Put(ctx context.Context, name string, data []byte) error
}

// Memory is an in-process RecordStore.
type Memory struct {
	mu   sync.RWMutex
	byID map[string]invoice.Receipt
}

func NewMemory() *Memory {
	return &Memory{byID: make(map[string]invoice.Receipt)}
}

func (m *Memory) Save(_ context.Context, r invoice.Receipt) error {
	if r.CID == "" {
		return errors.New("receipt has no cid")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byID[r.CID] = r
	return nil
}

func (m *Memory) Get(_ context.Context, cid string) (invoice.Receipt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.byID[cid]
	if !ok {
		return invoice.Receipt{}, ErrNotFound
	}
	return r, nil
}

func (m *Memory) List(_ context.Context, limit int) ([]invoice.Receipt, error) {
	m.mu.RLock()
	out := make([]invoice.Receipt, 0, len(m.byID))
	for _, r := range m.byID {
		out = append(out, r)
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].PinnedAt.Equal(out[j].PinnedAt) {
			return out[i].CID < out[j].CID
		}
		return out[i].PinnedAt.After(out[j].PinnedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) Close() error { return nil }
