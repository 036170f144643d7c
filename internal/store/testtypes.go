package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/vodalab/vzorec/internal/model"
)

// CreateTestType creates a new test type.
func CreateTestType(ctx context.Context, db *sql.DB, name, method string) (*model.TestType, error) {
	id := uuid.NewString()
	_, err := db.ExecContext(ctx,
		`INSERT INTO test_types (id, name, method) VALUES (?, ?, ?)`,
		id, name, nullString(method),
	)
	if err != nil {
		return nil, fmt.Errorf("creating test type: %w", err)
	}
	return GetTestType(ctx, db, id)
}

// GetTestType returns a test type by ID.
func GetTestType(ctx context.Context, db *sql.DB, id string) (*model.TestType, error) {
	tt := &model.TestType{}
	var method sql.NullString
	err := db.QueryRowContext(ctx,
		`SELECT id, name, method, created_at, deleted_at FROM test_types WHERE id = ?`, id,
	).Scan(&tt.ID, &tt.Name, &method, &tt.CreatedAt, &tt.DeletedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting test type: %w", err)
	}
	tt.Method = method.String
	return tt, nil
}

// ListTestTypes returns all non-deleted test types.
func ListTestTypes(ctx context.Context, db *sql.DB) ([]model.TestType, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, name, method, created_at, deleted_at
		 FROM test_types WHERE deleted_at IS NULL ORDER BY name`,
	)
	if err != nil {
		return nil, fmt.Errorf("listing test types: %w", err)
	}
	defer rows.Close()

	var types []model.TestType
	for rows.Next() {
		var tt model.TestType
		var method sql.NullString
		if err := rows.Scan(&tt.ID, &tt.Name, &method, &tt.CreatedAt, &tt.DeletedAt); err != nil {
			return nil, fmt.Errorf("scanning test type: %w", err)
		}
		tt.Method = method.String
		types = append(types, tt)
	}
	return types, rows.Err()
}
