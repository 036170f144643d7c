package coc

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"
	"time"

	"github.com/vodalab/vzorec/internal/auth"
	"github.com/vodalab/vzorec/internal/blob"
	"github.com/vodalab/vzorec/internal/db"
	"github.com/vodalab/vzorec/internal/evidence"
	"github.com/vodalab/vzorec/internal/model"
	"github.com/vodalab/vzorec/internal/notify"
	"github.com/vodalab/vzorec/internal/store"
)

const testIntakeID = "lab-intake"

func testSignature(t *testing.T) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 50, 50))
	for y := 0; y < 50; y++ {
		for x := 0; x < 50; x++ {
			img.Set(x, y, color.NRGBA{A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encoding test png: %v", err)
	}
	return buf.Bytes()
}

func newTestService(t *testing.T) (*Service, *sql.DB, *notify.Memory) {
	t.Helper()
	database := db.NewTestDB(t)

	key := make([]byte, 32)
	enc, err := evidence.NewEncoder(key, blob.NewMemory())
	if err != nil {
		t.Fatalf("NewEncoder: %v", err)
	}

	mails := &notify.Memory{}
	svc := &Service{
		DB:          database,
		Encoder:     enc,
		Notifier:    mails,
		LabIntakeID: testIntakeID,
		AdminEmail:  "admin@lab.example.com",
	}
	return svc, database, mails
}

// seedAgencySample creates an agency, an agency user, and one pending sample.
func seedAgencySample(t *testing.T, database *sql.DB) (*auth.Claims, *model.Sample) {
	t.Helper()
	ctx := context.Background()

	agency, err := store.CreateAgency(ctx, database, "Field Agency", "")
	if err != nil {
		t.Fatalf("CreateAgency: %v", err)
	}
	user, err := store.CreateUser(ctx, database, "courier@example.com", "Courier", "hash", model.RoleAgency, agency.ID)
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	sample, err := store.CreateSample(ctx, database, &model.Sample{
		AgencyID:  agency.ID,
		CreatedBy: user.ID,
	})
	if err != nil {
		t.Fatalf("CreateSample: %v", err)
	}

	return &auth.Claims{
		UserID:   user.ID,
		Email:    user.Email,
		Role:     user.Role,
		AgencyID: agency.ID,
	}, sample
}

// waitForMail polls until the recorder holds want messages or the deadline
// passes. Notifications are dispatched on a goroutine after commit.
func waitForMail(t *testing.T, mails *notify.Memory, want int) []notify.Message {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if sent := mails.Sent(); len(sent) >= want {
			return sent
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("expected %d notification(s), got %d", want, len(mails.Sent()))
	return nil
}

func TestTransferCustodyLifecycle(t *testing.T) {
	svc, database, mails := newTestService(t)
	ctx := context.Background()
	actor, sample := seedAgencySample(t, database)
	sig := testSignature(t)

	// First hop: to another courier, sample enters the chain.
	transfer, err := svc.TransferCustody(ctx, actor, TransferRequest{
		SampleID:   sample.ID,
		ReceivedBy: "courier-2",
		Signature:  sig,
	})
	if err != nil {
		t.Fatalf("TransferCustody: %v", err)
	}
	if transfer.ReceivedBy != "courier-2" {
		t.Errorf("expected received_by courier-2, got %q", transfer.ReceivedBy)
	}
	if bytes.Equal(transfer.Signature, sig) {
		t.Error("stored signature should be encrypted")
	}

	got, _ := store.GetSample(ctx, database, sample.ID)
	if got.Status != model.StatusInCOC {
		t.Errorf("expected in_coc after first hop, got %q", got.Status)
	}
	if len(mails.Sent()) != 0 {
		t.Error("no notification expected before submission")
	}

	// Second hop: to the lab intake, sample is submitted and the admin is
	// notified.
	if _, err := svc.TransferCustody(ctx, actor, TransferRequest{
		SampleID:   sample.ID,
		ReceivedBy: testIntakeID,
		Signature:  sig,
	}); err != nil {
		t.Fatalf("TransferCustody to intake: %v", err)
	}

	got, _ = store.GetSample(ctx, database, sample.ID)
	if got.Status != model.StatusSubmitted {
		t.Errorf("expected submitted, got %q", got.Status)
	}

	sent := waitForMail(t, mails, 1)
	if sent[0].To != "admin@lab.example.com" {
		t.Errorf("notification sent to %q", sent[0].To)
	}

	// The ledger holds both hops, oldest first.
	history, err := svc.History(ctx, actor, sample.ID)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 ledger rows, got %d", len(history))
	}
	if history[0].ReceivedBy != "courier-2" || history[1].ReceivedBy != testIntakeID {
		t.Error("history not in transfer order")
	}
}

func TestTransferCustodyRequiresActor(t *testing.T) {
	svc, database, _ := newTestService(t)
	_, sample := seedAgencySample(t, database)

	_, err := svc.TransferCustody(context.Background(), nil, TransferRequest{
		SampleID:   sample.ID,
		ReceivedBy: "courier-2",
		Signature:  testSignature(t),
	})
	if !errors.Is(err, ErrUnauthorized) {
		t.Errorf("expected ErrUnauthorized, got %v", err)
	}
}

func TestTransferCustodyValidatesBeforeWrites(t *testing.T) {
	svc, database, _ := newTestService(t)
	ctx := context.Background()
	actor, sample := seedAgencySample(t, database)

	_, err := svc.TransferCustody(ctx, actor, TransferRequest{SampleID: sample.ID})
	if !IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}

	transfers, _ := store.ListSampleTransfers(ctx, database, sample.ID)
	if len(transfers) != 0 {
		t.Errorf("validation failure must not write ledger rows, got %d", len(transfers))
	}
	got, _ := store.GetSample(ctx, database, sample.ID)
	if got.Status != model.StatusPending {
		t.Errorf("validation failure must not change status, got %q", got.Status)
	}
}

func TestTransferCustodyMissingSample(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.TransferCustody(ctx, &auth.Claims{UserID: "u1", Role: model.RoleLabAdmin}, TransferRequest{
		SampleID:   "no-such-sample",
		ReceivedBy: "courier-2",
		Signature:  testSignature(t),
	})
	if !errors.Is(err, ErrSampleNotFound) {
		t.Errorf("expected ErrSampleNotFound, got %v", err)
	}
}

func TestTransferCustodyDeletedSample(t *testing.T) {
	svc, database, _ := newTestService(t)
	ctx := context.Background()
	actor, sample := seedAgencySample(t, database)

	if err := store.DeleteSample(ctx, database, sample.ID); err != nil {
		t.Fatalf("DeleteSample: %v", err)
	}

	_, err := svc.TransferCustody(ctx, actor, TransferRequest{
		SampleID:   sample.ID,
		ReceivedBy: "courier-2",
		Signature:  testSignature(t),
	})
	if !errors.Is(err, ErrSampleNotFound) {
		t.Errorf("expected ErrSampleNotFound for deleted sample, got %v", err)
	}
}

func TestTransferCustodyPassedSampleImmutable(t *testing.T) {
	svc, database, _ := newTestService(t)
	ctx := context.Background()
	actor, sample := seedAgencySample(t, database)

	if _, err := database.ExecContext(ctx,
		`UPDATE samples SET status = 'pass' WHERE id = ?`, sample.ID); err != nil {
		t.Fatalf("setting status: %v", err)
	}

	_, err := svc.TransferCustody(ctx, actor, TransferRequest{
		SampleID:   sample.ID,
		ReceivedBy: "courier-2",
		Signature:  testSignature(t),
	})
	if !errors.Is(err, ErrSamplePassed) {
		t.Fatalf("expected ErrSamplePassed, got %v", err)
	}

	transfers, _ := store.ListSampleTransfers(ctx, database, sample.ID)
	if len(transfers) != 0 {
		t.Errorf("passed sample must stay untouched, got %d ledger rows", len(transfers))
	}
}

func TestTransferCustodyAgencyScope(t *testing.T) {
	svc, database, _ := newTestService(t)
	ctx := context.Background()
	_, sample := seedAgencySample(t, database)

	outsider := &auth.Claims{UserID: "u-x", Role: model.RoleAgency, AgencyID: "other-agency"}
	_, err := svc.TransferCustody(ctx, outsider, TransferRequest{
		SampleID:   sample.ID,
		ReceivedBy: "courier-2",
		Signature:  testSignature(t),
	})
	if !errors.Is(err, ErrForbidden) {
		t.Errorf("expected ErrForbidden, got %v", err)
	}
}

func TestBulkTransferCustody(t *testing.T) {
	svc, database, mails := newTestService(t)
	ctx := context.Background()
	actor, first := seedAgencySample(t, database)

	var ids []string
	ids = append(ids, first.ID)
	for i := 0; i < 2; i++ {
		s, err := store.CreateSample(ctx, database, &model.Sample{
			AgencyID:  first.AgencyID,
			CreatedBy: actor.UserID,
		})
		if err != nil {
			t.Fatalf("CreateSample: %v", err)
		}
		ids = append(ids, s.ID)
	}

	res, err := svc.BulkTransferCustody(ctx, actor, BulkTransferRequest{
		SampleIDs:  ids,
		ReceivedBy: testIntakeID,
		Signature:  testSignature(t),
	})
	if err != nil {
		t.Fatalf("BulkTransferCustody: %v", err)
	}
	if res.TransferCount != 3 {
		t.Errorf("expected 3 transfers, got %d", res.TransferCount)
	}

	for _, id := range ids {
		got, _ := store.GetSample(ctx, database, id)
		if got.Status != model.StatusSubmitted {
			t.Errorf("sample %s: expected submitted, got %q", id, got.Status)
		}
	}

	// One email per submitted sample.
	waitForMail(t, mails, 3)
}

func TestBulkTransferCustodyEmptyBatch(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.BulkTransferCustody(context.Background(), &auth.Claims{UserID: "u1", Role: model.RoleLabAdmin}, BulkTransferRequest{
		ReceivedBy: testIntakeID,
		Signature:  testSignature(t),
	})
	if !IsValidation(err) {
		t.Errorf("expected validation error for empty batch, got %v", err)
	}
}

func TestBulkTransferCustodyBlankIDs(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.BulkTransferCustody(context.Background(), &auth.Claims{UserID: "u1", Role: model.RoleLabAdmin}, BulkTransferRequest{
		SampleIDs:  []string{"", ""},
		ReceivedBy: testIntakeID,
		Signature:  testSignature(t),
	})
	if !IsValidation(err) {
		t.Errorf("expected validation error for blank IDs, got %v", err)
	}
}

func TestBulkTransferCustodyRejectsWholeBatch(t *testing.T) {
	svc, database, _ := newTestService(t)
	ctx := context.Background()
	actor, good := seedAgencySample(t, database)

	// One sample from another agency poisons the batch.
	other, err := store.CreateAgency(ctx, database, "Other Agency", "")
	if err != nil {
		t.Fatalf("CreateAgency: %v", err)
	}
	bad, err := store.CreateSample(ctx, database, &model.Sample{
		AgencyID:  other.ID,
		CreatedBy: actor.UserID,
	})
	if err != nil {
		t.Fatalf("CreateSample: %v", err)
	}

	_, err = svc.BulkTransferCustody(ctx, actor, BulkTransferRequest{
		SampleIDs:  []string{good.ID, bad.ID},
		ReceivedBy: testIntakeID,
		Signature:  testSignature(t),
	})
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}

	// Nothing landed, not even for the authorized sample.
	for _, id := range []string{good.ID, bad.ID} {
		transfers, _ := store.ListSampleTransfers(ctx, database, id)
		if len(transfers) != 0 {
			t.Errorf("sample %s: expected no ledger rows, got %d", id, len(transfers))
		}
		got, _ := store.GetSample(ctx, database, id)
		if got.Status != model.StatusPending {
			t.Errorf("sample %s: expected pending, got %q", id, got.Status)
		}
	}
}

func TestBulkTransferCustodyMissingSample(t *testing.T) {
	svc, database, _ := newTestService(t)
	ctx := context.Background()
	actor, sample := seedAgencySample(t, database)

	_, err := svc.BulkTransferCustody(ctx, actor, BulkTransferRequest{
		SampleIDs:  []string{sample.ID, "no-such-sample"},
		ReceivedBy: testIntakeID,
		Signature:  testSignature(t),
	})
	if !errors.Is(err, ErrSampleNotFound) {
		t.Errorf("expected ErrSampleNotFound, got %v", err)
	}
}

func TestNotificationFailureDoesNotAffectTransfer(t *testing.T) {
	svc, database, mails := newTestService(t)
	ctx := context.Background()
	actor, sample := seedAgencySample(t, database)
	mails.Fail = errors.New("smtp down")

	if _, err := svc.TransferCustody(ctx, actor, TransferRequest{
		SampleID:   sample.ID,
		ReceivedBy: testIntakeID,
		Signature:  testSignature(t),
	}); err != nil {
		t.Fatalf("transfer must succeed despite notifier failure: %v", err)
	}

	got, _ := store.GetSample(ctx, database, sample.ID)
	if got.Status != model.StatusSubmitted {
		t.Errorf("expected submitted, got %q", got.Status)
	}
}

func TestHistoryRequiresActor(t *testing.T) {
	svc, database, _ := newTestService(t)
	_, sample := seedAgencySample(t, database)

	_, err := svc.History(context.Background(), nil, sample.ID)
	if !errors.Is(err, ErrUnauthorized) {
		t.Errorf("expected ErrUnauthorized, got %v", err)
	}
}
