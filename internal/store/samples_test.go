package store

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/vodalab/vzorec/internal/db"
	"github.com/vodalab/vzorec/internal/model"
)

// seedSample creates an agency, a user, and one pending sample.
func seedSample(t *testing.T, database *sql.DB) (*model.Agency, *model.User, *model.Sample) {
	t.Helper()
	ctx := context.Background()

	agency, err := CreateAgency(ctx, database, "Field Agency", "field@example.com")
	if err != nil {
		t.Fatalf("CreateAgency: %v", err)
	}
	user, err := CreateUser(ctx, database, "courier@example.com", "Courier", "hash", model.RoleAgency, agency.ID)
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	sample, err := CreateSample(ctx, database, &model.Sample{
		AgencyID:    agency.ID,
		CreatedBy:   user.ID,
		Description: "creek water, site 4",
	})
	if err != nil {
		t.Fatalf("CreateSample: %v", err)
	}
	return agency, user, sample
}

func TestCreateSampleStartsPending(t *testing.T) {
	database := db.NewTestDB(t)
	_, _, sample := seedSample(t, database)

	if sample.Status != model.StatusPending {
		t.Errorf("expected status pending, got %q", sample.Status)
	}
	if sample.ID == "" {
		t.Error("expected generated sample ID")
	}
}

func TestGetSampleMissing(t *testing.T) {
	database := db.NewTestDB(t)

	sample, err := GetSample(context.Background(), database, "no-such-id")
	if err != nil {
		t.Fatalf("GetSample: %v", err)
	}
	if sample != nil {
		t.Error("expected nil for missing sample")
	}
}

func TestGetSamplesByIDs(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	agency, user, first := seedSample(t, database)

	second, err := CreateSample(ctx, database, &model.Sample{AgencyID: agency.ID, CreatedBy: user.ID})
	if err != nil {
		t.Fatalf("CreateSample: %v", err)
	}

	samples, err := GetSamplesByIDs(ctx, database, []string{first.ID, second.ID, "missing"})
	if err != nil {
		t.Fatalf("GetSamplesByIDs: %v", err)
	}
	if len(samples) != 2 {
		t.Errorf("expected 2 samples, got %d", len(samples))
	}
}

func TestListSamplesFilters(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	agency, user, _ := seedSample(t, database)

	other, _ := CreateAgency(ctx, database, "Other Agency", "")
	if _, err := CreateSample(ctx, database, &model.Sample{AgencyID: other.ID, CreatedBy: user.ID}); err != nil {
		t.Fatalf("CreateSample: %v", err)
	}

	all, err := ListSamples(ctx, database, "", "")
	if err != nil {
		t.Fatalf("ListSamples: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("expected 2 samples, got %d", len(all))
	}

	scoped, err := ListSamples(ctx, database, agency.ID, "")
	if err != nil {
		t.Fatalf("ListSamples: %v", err)
	}
	if len(scoped) != 1 {
		t.Errorf("expected 1 sample for agency, got %d", len(scoped))
	}
	if scoped[0].AgencyName != "Field Agency" {
		t.Errorf("expected joined agency name, got %q", scoped[0].AgencyName)
	}

	none, err := ListSamples(ctx, database, "", model.StatusSubmitted)
	if err != nil {
		t.Fatalf("ListSamples: %v", err)
	}
	if len(none) != 0 {
		t.Errorf("expected no submitted samples, got %d", len(none))
	}
}

func TestDeleteSampleIsSoft(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	_, _, sample := seedSample(t, database)

	if err := DeleteSample(ctx, database, sample.ID); err != nil {
		t.Fatalf("DeleteSample: %v", err)
	}

	// Row remains readable, marked deleted.
	got, err := GetSample(ctx, database, sample.ID)
	if err != nil {
		t.Fatalf("GetSample: %v", err)
	}
	if got == nil || got.DeletedAt == nil {
		t.Error("expected soft-deleted sample to remain with DeletedAt set")
	}

	// Excluded from listings.
	all, _ := ListSamples(ctx, database, "", "")
	if len(all) != 0 {
		t.Errorf("expected deleted sample excluded from list, got %d", len(all))
	}
}

func TestResubmitSampleOnlyFromFail(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	_, _, sample := seedSample(t, database)

	// Pending sample cannot be resubmitted.
	err := ResubmitSample(ctx, database, sample.ID)
	if !errors.Is(err, ErrStatusConflict) {
		t.Errorf("expected ErrStatusConflict for pending sample, got %v", err)
	}

	if _, err := database.ExecContext(ctx,
		`UPDATE samples SET status = 'fail' WHERE id = ?`, sample.ID); err != nil {
		t.Fatalf("setting status: %v", err)
	}

	if err := ResubmitSample(ctx, database, sample.ID); err != nil {
		t.Fatalf("ResubmitSample: %v", err)
	}

	got, _ := GetSample(ctx, database, sample.ID)
	if got.Status != model.StatusSubmitted {
		t.Errorf("expected status submitted, got %q", got.Status)
	}
}
