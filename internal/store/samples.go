package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/vodalab/vzorec/internal/model"
)

// ErrStatusConflict is returned when a compare-and-swap status update finds
// the sample in a different status than expected (concurrent transfer, or a
// resubmission of a sample that is not in 'fail').
var ErrStatusConflict = errors.New("sample status changed concurrently")

const sampleColumns = `s.id, s.agency_id, s.account_id, s.created_by, s.test_type_id,
       s.description, s.status, s.latitude, s.longitude,
       s.collected_at, s.created_at, s.updated_at, s.deleted_at`

// CreateSample creates a new sample in 'pending' status.
func CreateSample(ctx context.Context, db *sql.DB, s *model.Sample) (*model.Sample, error) {
	id := uuid.NewString()
	_, err := db.ExecContext(ctx,
		`INSERT INTO samples (id, agency_id, account_id, created_by, test_type_id,
		                      description, status, latitude, longitude, collected_at)
		 VALUES (?, ?, ?, ?, ?, ?, 'pending', ?, ?, COALESCE(?, CURRENT_TIMESTAMP))`,
		id, s.AgencyID, nullString(s.AccountID), s.CreatedBy, nullString(s.TestTypeID),
		nullString(s.Description), s.Latitude, s.Longitude, nullTime(s.CollectedAt),
	)
	if err != nil {
		return nil, fmt.Errorf("creating sample: %w", err)
	}
	return GetSample(ctx, db, id)
}

// GetSample returns a sample by ID, including soft-deleted rows. Callers
// decide how to treat a non-nil DeletedAt.
func GetSample(ctx context.Context, db *sql.DB, id string) (*model.Sample, error) {
	row := db.QueryRowContext(ctx,
		`SELECT `+sampleColumns+` FROM samples s WHERE s.id = ?`, id,
	)
	s, err := scanSample(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting sample: %w", err)
	}
	return s, nil
}

// GetSamplesByIDs returns all samples matching the given IDs, including
// soft-deleted rows, in no particular order.
func GetSamplesByIDs(ctx context.Context, db *sql.DB, ids []string) ([]model.Sample, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := db.QueryContext(ctx,
		`SELECT `+sampleColumns+` FROM samples s WHERE s.id IN (`+placeholders+`)`, args...,
	)
	if err != nil {
		return nil, fmt.Errorf("getting samples by ids: %w", err)
	}
	defer rows.Close()

	var samples []model.Sample
	for rows.Next() {
		s, err := scanSample(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning sample: %w", err)
		}
		samples = append(samples, *s)
	}
	return samples, rows.Err()
}

// ListSamples returns non-deleted samples, optionally filtered by agency
// and/or status, newest first.
func ListSamples(ctx context.Context, db *sql.DB, agencyID, status string) ([]model.Sample, error) {
	query := `SELECT ` + sampleColumns + `, a.name AS agency_name
	          FROM samples s
	          JOIN agencies a ON a.id = s.agency_id
	          WHERE s.deleted_at IS NULL`
	var args []any

	if agencyID != "" {
		query += ` AND s.agency_id = ?`
		args = append(args, agencyID)
	}
	if status != "" {
		query += ` AND s.status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY s.created_at DESC`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing samples: %w", err)
	}
	defer rows.Close()

	var samples []model.Sample
	for rows.Next() {
		var s model.Sample
		var accountID, testTypeID, description sql.NullString
		if err := rows.Scan(&s.ID, &s.AgencyID, &accountID, &s.CreatedBy, &testTypeID,
			&description, &s.Status, &s.Latitude, &s.Longitude,
			&s.CollectedAt, &s.CreatedAt, &s.UpdatedAt, &s.DeletedAt, &s.AgencyName); err != nil {
			return nil, fmt.Errorf("scanning sample: %w", err)
		}
		s.AccountID = accountID.String
		s.TestTypeID = testTypeID.String
		s.Description = description.String
		samples = append(samples, s)
	}
	return samples, rows.Err()
}

// DeleteSample soft-deletes a sample, excluding it from all custody
// operations.
func DeleteSample(ctx context.Context, db *sql.DB, id string) error {
	_, err := db.ExecContext(ctx,
		`UPDATE samples SET deleted_at = CURRENT_TIMESTAMP WHERE id = ? AND deleted_at IS NULL`,
		id,
	)
	if err != nil {
		return fmt.Errorf("deleting sample: %w", err)
	}
	return nil
}

// ResubmitSample promotes a failed sample back to 'submitted'. This is the
// edit-and-resubmit path, separate from custody transfer. Returns
// ErrStatusConflict if the sample is not currently in 'fail'.
func ResubmitSample(ctx context.Context, db *sql.DB, id string) error {
	result, err := db.ExecContext(ctx,
		`UPDATE samples SET status = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND status = ? AND deleted_at IS NULL`,
		model.StatusSubmitted, id, model.StatusFail,
	)
	if err != nil {
		return fmt.Errorf("resubmitting sample: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("resubmitting sample: %w", err)
	}
	if n == 0 {
		return ErrStatusConflict
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSample(row rowScanner) (*model.Sample, error) {
	s := &model.Sample{}
	var accountID, testTypeID, description sql.NullString
	err := row.Scan(&s.ID, &s.AgencyID, &accountID, &s.CreatedBy, &testTypeID,
		&description, &s.Status, &s.Latitude, &s.Longitude,
		&s.CollectedAt, &s.CreatedAt, &s.UpdatedAt, &s.DeletedAt)
	if err != nil {
		return nil, err
	}
	s.AccountID = accountID.String
	s.TestTypeID = testTypeID.String
	s.Description = description.String
	return s, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
