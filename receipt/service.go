// Package receipt finalizes approved invoices: it pins the record, checks
// the ledger hand-off values and persists the result.
package receipt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"invoice_nft_receipt/invoice"
	"invoice_nft_receipt/ledger"
	"invoice_nft_receipt/store"
)

// Pinner uploads a JSON payload and knows how to address it afterwards.
type Pinner interface {
	PinJSON(ctx context.Context, name string, data []byte) (string, error)
	GatewayURL(cid string) string
}

// Service implements the extractor's Finalizer.
type Service struct {
	pinner   Pinner
	records  store.RecordStore
	archives []store.Archive
	logger   *zap.Logger
	now      func() time.Time
}

func NewService(pinner Pinner, records store.RecordStore, archives []store.Archive, logger *zap.Logger) (*Service, error) {
	if pinner == nil {
		return nil, errors.New("pinner is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		pinner:   pinner,
		records:  records,
		archives: archives,
		logger:   logger,
		now:      time.Now,
	}, nil
}

// Finalize pins rec and returns its receipt. Only a pinning or ledger
// validation failure is returned as an error; once the content is pinned,
// storage problems are logged.
func (s *Service) Finalize(ctx context.Context, rec invoice.Record) (invoice.Receipt, error) {
	if err := ledger.CheckAmount(rec.Amount); err != nil {
		return invoice.Receipt{}, fmt.Errorf("ledger hand-off: %w", err)
	}
	body, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return invoice.Receipt{}, fmt.Errorf("serialize record: %w", err)
	}

	name := fmt.Sprintf("invoice-%d.json", s.now().UnixMilli())
	cid, err := s.pinner.PinJSON(ctx, name, body)
	if err != nil {
		return invoice.Receipt{}, err
	}

	receipt := invoice.Receipt{
		CID:      cid,
		TokenURI: s.pinner.GatewayURL(cid),
		Record:   rec,
		PinnedAt: s.now().UTC(),
	}
	mint, err := ledger.FromReceipt(receipt)
	if err != nil {
		return invoice.Receipt{}, fmt.Errorf("ledger hand-off: %w", err)
	}
	wei, err := mint.Wei()
	if err != nil {
		return invoice.Receipt{}, fmt.Errorf("ledger hand-off: %w", err)
	}
	s.logger.Info("invoice pinned",
		zap.String("cid", cid),
		zap.String("token_uri", mint.TokenURI),
		zap.String("amount", mint.Amount.String()),
		zap.String("wei", wei.String()),
	)

	s.persist(ctx, receipt, body)
	return receipt, nil
}

func (s *Service) persist(ctx context.Context, receipt invoice.Receipt, body []byte) {
	var g errgroup.Group
	if s.records != nil {
		g.Go(func() error {
			if err := s.records.Save(ctx, receipt); err != nil {
				s.logger.Warn("failed to save receipt", zap.String("cid", receipt.CID), zap.Error(err))
			}
			return nil
		})
	}
	for _, a := range s.archives {
		g.Go(func() error {
			if err := a.Put(ctx, receipt.CID+".json", body); err != nil {
				s.logger.Warn("failed to archive record", zap.String("cid", receipt.CID), zap.Error(err))
			}
			return nil
		})
	}
	_ = g.Wait()
}
