package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/vodalab/vzorec/internal/model"
)

// CreateAgency creates a new agency.
func CreateAgency(ctx context.Context, db *sql.DB, name, contactEmail string) (*model.Agency, error) {
	id := uuid.NewString()
	_, err := db.ExecContext(ctx,
		`INSERT INTO agencies (id, name, contact_email) VALUES (?, ?, ?)`,
		id, name, nullString(contactEmail),
	)
	if err != nil {
		return nil, fmt.Errorf("creating agency: %w", err)
	}
	return GetAgency(ctx, db, id)
}

// GetAgency returns an agency by ID.
func GetAgency(ctx context.Context, db *sql.DB, id string) (*model.Agency, error) {
	a := &model.Agency{}
	var contactEmail sql.NullString
	err := db.QueryRowContext(ctx,
		`SELECT id, name, contact_email, created_at, deleted_at FROM agencies WHERE id = ?`, id,
	).Scan(&a.ID, &a.Name, &contactEmail, &a.CreatedAt, &a.DeletedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting agency: %w", err)
	}
	a.ContactEmail = contactEmail.String
	return a, nil
}

// ListAgencies returns all non-deleted agencies.
func ListAgencies(ctx context.Context, db *sql.DB) ([]model.Agency, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, name, contact_email, created_at, deleted_at
		 FROM agencies WHERE deleted_at IS NULL ORDER BY name`,
	)
	if err != nil {
		return nil, fmt.Errorf("listing agencies: %w", err)
	}
	defer rows.Close()

	var agencies []model.Agency
	for rows.Next() {
		var a model.Agency
		var contactEmail sql.NullString
		if err := rows.Scan(&a.ID, &a.Name, &contactEmail, &a.CreatedAt, &a.DeletedAt); err != nil {
			return nil, fmt.Errorf("scanning agency: %w", err)
		}
		a.ContactEmail = contactEmail.String
		agencies = append(agencies, a)
	}
	return agencies, rows.Err()
}
