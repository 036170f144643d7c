package store

import (
	"context"
	"testing"

	"github.com/vodalab/vzorec/internal/db"
	"github.com/vodalab/vzorec/internal/model"
)

func TestCreateAndGetUser(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	user, err := CreateUser(ctx, database, "tech@example.com", "Tech", "hash", model.RoleUser, "")
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	got, err := GetUserByEmail(ctx, database, "tech@example.com")
	if err != nil {
		t.Fatalf("GetUserByEmail: %v", err)
	}
	if got == nil || got.ID != user.ID {
		t.Error("expected to find created user by email")
	}
	if got.AgencyID != "" {
		t.Errorf("expected empty agency, got %q", got.AgencyID)
	}
}

func TestDuplicateActiveEmailRejected(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	if _, err := CreateUser(ctx, database, "dup@example.com", "", "hash", model.RoleUser, ""); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if _, err := CreateUser(ctx, database, "dup@example.com", "", "hash", model.RoleUser, ""); err == nil {
		t.Error("expected duplicate email to be rejected")
	}
}

func TestDeletedUserEmailReusable(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	user, err := CreateUser(ctx, database, "gone@example.com", "", "hash", model.RoleUser, "")
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if err := DeleteUser(ctx, database, user.ID); err != nil {
		t.Fatalf("DeleteUser: %v", err)
	}

	// The unique index only covers active rows.
	if _, err := CreateUser(ctx, database, "gone@example.com", "", "hash", model.RoleUser, ""); err != nil {
		t.Errorf("expected deleted user's email to be reusable, got %v", err)
	}
}

func TestUpdateUserPassword(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	user, err := CreateUser(ctx, database, "pw@example.com", "", "old", model.RoleUser, "")
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if err := UpdateUserPassword(ctx, database, user.ID, "new"); err != nil {
		t.Fatalf("UpdateUserPassword: %v", err)
	}

	got, _ := GetUser(ctx, database, user.ID)
	if got.PasswordHash != "new" {
		t.Errorf("expected updated hash, got %q", got.PasswordHash)
	}
}
