package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"invoice_nft_receipt/invoice"
)

// DefaultCollection is the Firestore collection receipts are written to.
const DefaultCollection = "invoiceReceipts"

// Firestore is a RecordStore on a Firestore collection; document ids are CIDs.
type Firestore struct {
	client     *firestore.Client
	collection string
}

type firestoreDoc struct {
	CID      string    `firestore:"cid"`
	TokenURI string    `firestore:"tokenUri"`
	Record   string    `firestore:"record"`
	PinnedAt time.Time `firestore:"pinnedAt"`
}

func OpenFirestore(ctx context.Context, projectID, collection string) (*Firestore, error) {
	if projectID == "" {
		return nil, fmt.Errorf("firestore store requires a project id")
	}
	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("firestore.NewClient: %w", err)
	}
	if collection == "" {
		collection = DefaultCollection
	}
	return &Firestore{client: client, collection: collection}, nil
}

func (f *Firestore) Save(ctx context.Context, r invoice.Receipt) error {
	rec, err := json.Marshal(r.Record)
	if err != nil {
		return err
	}
	_, err = f.client.Collection(f.collection).Doc(r.CID).Set(ctx, firestoreDoc{
		CID:      r.CID,
		TokenURI: r.TokenURI,
		Record:   string(rec),
		PinnedAt: r.PinnedAt,
	})
	return err
}

func (f *Firestore) Get(ctx context.Context, cid string) (invoice.Receipt, error) {
	snap, err := f.client.Collection(f.collection).Doc(cid).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return invoice.Receipt{}, ErrNotFound
	}
	if err != nil {
		return invoice.Receipt{}, err
	}
	return decodeFirestore(snap)
}

func (f *Firestore) List(ctx context.Context, limit int) ([]invoice.Receipt, error) {
	q := f.client.Collection(f.collection).OrderBy("pinnedAt", firestore.Desc)
	if limit > 0 {
		q = q.Limit(limit)
	}
	snaps, err := q.Documents(ctx).GetAll()
	if err != nil {
		return nil, err
	}
	out := make([]invoice.Receipt, 0, len(snaps))
	for _, s := range snaps {
		r, err := decodeFirestore(s)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

func (f *Firestore) Close() error { return f.client.Close() }

func decodeFirestore(snap *firestore.DocumentSnapshot) (invoice.Receipt, error) {
	var doc firestoreDoc
	if err := snap.DataTo(&doc); err != nil {
		return invoice.Receipt{}, err
	}
	r := invoice.Receipt{CID: doc.CID, TokenURI: doc.TokenURI, PinnedAt: doc.PinnedAt}
	if err := json.Unmarshal([]byte(doc.Record), &r.Record); err != nil {
		return invoice.Receipt{}, fmt.Errorf("decode record %s: %w", doc.CID, err)
	}
	return r, nil
}
