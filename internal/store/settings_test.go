package store

import (
	"context"
	"testing"

	"github.com/vodalab/vzorec/internal/db"
)

func TestJWTSecretStable(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	first, err := GetJWTSecret(ctx, database)
	if err != nil {
		t.Fatalf("GetJWTSecret: %v", err)
	}
	if first == "" {
		t.Fatal("expected a generated secret")
	}

	second, err := GetJWTSecret(ctx, database)
	if err != nil {
		t.Fatalf("GetJWTSecret: %v", err)
	}
	if first != second {
		t.Error("secret changed between reads")
	}
}

func TestSignatureKeyLength(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	key, err := GetSignatureKey(ctx, database)
	if err != nil {
		t.Fatalf("GetSignatureKey: %v", err)
	}
	if len(key) != 32 {
		t.Errorf("expected 32-byte key, got %d", len(key))
	}

	again, err := GetSignatureKey(ctx, database)
	if err != nil {
		t.Fatalf("GetSignatureKey: %v", err)
	}
	if string(key) != string(again) {
		t.Error("key changed between reads")
	}
}
