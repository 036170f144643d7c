package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vodalab/vzorec/internal/model"
)

// TransferParams describes one custody handoff to record. ExpectedStatus is
// the sample status observed before the write; the status update is
// compare-and-swap against it so concurrent transfers of the same sample are
// detected instead of silently racing.
type TransferParams struct {
	SampleID       string
	TransferredBy  string
	ReceivedBy     string
	Signature      []byte // already encrypted
	PhotoURL       string
	Latitude       *float64
	Longitude      *float64
	TransferredAt  time.Time
	ExpectedStatus string
	NextStatus     string
}

// CreateCustodyTransfer records a single custody handoff: a ledger insert and
// a CAS sample status update in one transaction. The ledger insert runs
// first, so a sample is never marked transferred without a durable record.
func CreateCustodyTransfer(ctx context.Context, db *sql.DB, p TransferParams) (*model.CustodyTransfer, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	id, err := insertTransfer(ctx, tx, p)
	if err != nil {
		return nil, err
	}

	if err := casSampleStatus(ctx, tx, p.SampleID, p.ExpectedStatus, p.NextStatus); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing transfer: %w", err)
	}

	return GetCustodyTransfer(ctx, db, id)
}

// BulkCreateCustodyTransfers records one handoff event covering multiple
// samples. All ledger inserts and all status updates commit together or not
// at all.
func BulkCreateCustodyTransfers(ctx context.Context, db *sql.DB, batch []TransferParams) ([]model.CustodyTransfer, error) {
	if len(batch) == 0 {
		return nil, fmt.Errorf("empty transfer batch")
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	ids := make([]string, 0, len(batch))
	for _, p := range batch {
		id, err := insertTransfer(ctx, tx, p)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	for _, p := range batch {
		if err := casSampleStatus(ctx, tx, p.SampleID, p.ExpectedStatus, p.NextStatus); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing bulk transfer: %w", err)
	}

	transfers := make([]model.CustodyTransfer, 0, len(ids))
	for _, id := range ids {
		t, err := GetCustodyTransfer(ctx, db, id)
		if err != nil {
			return nil, err
		}
		if t != nil {
			transfers = append(transfers, *t)
		}
	}
	return transfers, nil
}

func insertTransfer(ctx context.Context, tx *sql.Tx, p TransferParams) (string, error) {
	id := uuid.NewString()
	_, err := tx.ExecContext(ctx,
		`INSERT INTO custody_transfers (id, sample_id, transferred_by, received_by,
		                                signature, photo_url, latitude, longitude, transferred_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, COALESCE(?, CURRENT_TIMESTAMP))`,
		id, p.SampleID, p.TransferredBy, p.ReceivedBy,
		p.Signature, nullString(p.PhotoURL), p.Latitude, p.Longitude, nullTime(p.TransferredAt),
	)
	if err != nil {
		return "", fmt.Errorf("recording transfer for sample %s: %w", p.SampleID, err)
	}
	return id, nil
}

func casSampleStatus(ctx context.Context, tx *sql.Tx, sampleID, expected, next string) error {
	result, err := tx.ExecContext(ctx,
		`UPDATE samples SET status = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND status = ? AND deleted_at IS NULL`,
		next, sampleID, expected,
	)
	if err != nil {
		return fmt.Errorf("updating status for sample %s: %w", sampleID, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating status for sample %s: %w", sampleID, err)
	}
	if n == 0 {
		return fmt.Errorf("sample %s: %w", sampleID, ErrStatusConflict)
	}
	return nil
}

// GetCustodyTransfer returns a transfer by ID.
func GetCustodyTransfer(ctx context.Context, db *sql.DB, id string) (*model.CustodyTransfer, error) {
	t := &model.CustodyTransfer{}
	var photoURL sql.NullString
	err := db.QueryRowContext(ctx,
		`SELECT id, sample_id, transferred_by, received_by, signature, photo_url,
		        latitude, longitude, transferred_at, created_at, deleted_at
		 FROM custody_transfers WHERE id = ?`, id,
	).Scan(&t.ID, &t.SampleID, &t.TransferredBy, &t.ReceivedBy, &t.Signature, &photoURL,
		&t.Latitude, &t.Longitude, &t.TransferredAt, &t.CreatedAt, &t.DeletedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting transfer: %w", err)
	}
	t.PhotoURL = photoURL.String
	return t, nil
}

// ListSampleTransfers returns the non-deleted custody history of a sample,
// oldest first. The last row is the current custody state.
func ListSampleTransfers(ctx context.Context, db *sql.DB, sampleID string) ([]model.CustodyTransfer, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, sample_id, transferred_by, received_by, signature, photo_url,
		        latitude, longitude, transferred_at, created_at, deleted_at
		 FROM custody_transfers
		 WHERE sample_id = ? AND deleted_at IS NULL
		 ORDER BY transferred_at ASC, created_at ASC`, sampleID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing sample transfers: %w", err)
	}
	defer rows.Close()

	var transfers []model.CustodyTransfer
	for rows.Next() {
		var t model.CustodyTransfer
		var photoURL sql.NullString
		if err := rows.Scan(&t.ID, &t.SampleID, &t.TransferredBy, &t.ReceivedBy, &t.Signature, &photoURL,
			&t.Latitude, &t.Longitude, &t.TransferredAt, &t.CreatedAt, &t.DeletedAt); err != nil {
			return nil, fmt.Errorf("scanning transfer: %w", err)
		}
		t.PhotoURL = photoURL.String
		transfers = append(transfers, t)
	}
	return transfers, rows.Err()
}
