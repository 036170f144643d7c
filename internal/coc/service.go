package coc

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/vodalab/vzorec/internal/auth"
	"github.com/vodalab/vzorec/internal/evidence"
	"github.com/vodalab/vzorec/internal/metrics"
	"github.com/vodalab/vzorec/internal/model"
	"github.com/vodalab/vzorec/internal/notify"
	"github.com/vodalab/vzorec/internal/store"
)

// Service orchestrates custody transfers. LabIntakeID is the distinguished
// recipient identity representing the lab's intake point; it is injected from
// configuration and compared only in NextStatus.
type Service struct {
	DB          *sql.DB
	Encoder     *evidence.Encoder
	Notifier    notify.Notifier
	LabIntakeID string
	AdminEmail  string
}

// TransferRequest is one custody handoff as submitted by the caller.
// Signature and Photo are raw bytes; the service runs them through the
// evidence encoder.
type TransferRequest struct {
	SampleID   string
	ReceivedBy string
	Signature  []byte
	Photo      []byte
	Latitude   *float64
	Longitude  *float64
	Timestamp  time.Time
}

// BulkTransferRequest is one physical handoff event covering many samples.
// One signature, photo, timestamp, and location apply to the whole batch.
type BulkTransferRequest struct {
	SampleIDs  []string
	ReceivedBy string
	Signature  []byte
	Photo      []byte
	Timestamp  time.Time
}

// BulkTransferResult reports a completed bulk handoff.
type BulkTransferResult struct {
	TransferCount int
	Transfers     []model.CustodyTransfer
}

// TransferCustody records a single handoff: authorization, evidence
// preparation, ledger insert, and status transition, in that order. The
// ledger insert and status update commit in one transaction.
func (s *Service) TransferCustody(ctx context.Context, actor *auth.Claims, req TransferRequest) (*model.CustodyTransfer, error) {
	t, err := s.transferCustody(ctx, actor, req)
	metrics.TransfersTotal.WithLabelValues("single", resultLabel(err)).Inc()
	return t, err
}

func (s *Service) transferCustody(ctx context.Context, actor *auth.Claims, req TransferRequest) (*model.CustodyTransfer, error) {
	if actor == nil {
		return nil, ErrUnauthorized
	}
	if req.ReceivedBy == "" || len(req.Signature) == 0 {
		return nil, Validationf("received by and signature are required")
	}

	sample, err := store.GetSample(ctx, s.DB, req.SampleID)
	if err != nil {
		return nil, err
	}
	if sample == nil || sample.DeletedAt != nil {
		return nil, ErrSampleNotFound
	}
	if sample.Status == model.StatusPass {
		return nil, ErrSamplePassed
	}
	if !CanInitiateTransfer(actor, sample) {
		return nil, ErrForbidden
	}

	ev, err := s.Encoder.Prepare(ctx, req.Signature, req.Photo)
	if err != nil {
		return nil, err
	}

	// Transfer location defaults to the sample's own coordinates.
	lat, lng := req.Latitude, req.Longitude
	if lat == nil {
		lat = sample.Latitude
	}
	if lng == nil {
		lng = sample.Longitude
	}

	next := NextStatus(req.ReceivedBy, s.LabIntakeID)

	transfer, err := store.CreateCustodyTransfer(ctx, s.DB, store.TransferParams{
		SampleID:       sample.ID,
		TransferredBy:  actor.UserID,
		ReceivedBy:     req.ReceivedBy,
		Signature:      ev.Signature,
		PhotoURL:       ev.PhotoURL,
		Latitude:       lat,
		Longitude:      lng,
		TransferredAt:  req.Timestamp,
		ExpectedStatus: sample.Status,
		NextStatus:     next,
	})
	if err != nil {
		if errors.Is(err, store.ErrStatusConflict) {
			return nil, ErrConflict
		}
		return nil, err
	}

	slog.Info("custody transferred",
		"sample", sample.ID, "from", actor.UserID, "to", req.ReceivedBy, "status", next)

	if next == model.StatusSubmitted {
		s.notifySubmitted([]string{sample.ID})
	}

	return transfer, nil
}

// BulkTransferCustody records one handoff event across many samples. Every
// sample is loaded and authorized up front; evidence is prepared once; all
// ledger inserts and status updates commit in a single transaction, so the
// batch lands entirely or not at all.
func (s *Service) BulkTransferCustody(ctx context.Context, actor *auth.Claims, req BulkTransferRequest) (*BulkTransferResult, error) {
	res, err := s.bulkTransferCustody(ctx, actor, req)
	metrics.TransfersTotal.WithLabelValues("bulk", resultLabel(err)).Inc()
	return res, err
}

func (s *Service) bulkTransferCustody(ctx context.Context, actor *auth.Claims, req BulkTransferRequest) (*BulkTransferResult, error) {
	if actor == nil {
		return nil, ErrUnauthorized
	}
	if len(req.SampleIDs) == 0 || req.ReceivedBy == "" || len(req.Signature) == 0 {
		return nil, Validationf("sample IDs, recipient, and signature are required")
	}

	// Drop blank entries; an empty result fails before any persistence.
	ids := make([]string, 0, len(req.SampleIDs))
	for _, id := range req.SampleIDs {
		if id != "" {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return nil, Validationf("invalid or empty sample IDs")
	}

	samples, err := store.GetSamplesByIDs(ctx, s.DB, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*model.Sample, len(samples))
	for i := range samples {
		byID[samples[i].ID] = &samples[i]
	}

	// Re-run the single-transfer policy per sample; any failure rejects the
	// whole batch.
	ordered := make([]*model.Sample, 0, len(ids))
	for _, id := range ids {
		sample, ok := byID[id]
		if !ok || sample.DeletedAt != nil {
			return nil, fmt.Errorf("sample %s: %w", id, ErrSampleNotFound)
		}
		if sample.Status == model.StatusPass {
			return nil, fmt.Errorf("sample %s: %w", id, ErrSamplePassed)
		}
		if !CanInitiateTransfer(actor, sample) {
			return nil, fmt.Errorf("sample %s: %w", id, ErrForbidden)
		}
		ordered = append(ordered, sample)
	}

	// One physical handoff event: evidence prepared once, shared by every
	// ledger entry in the batch.
	ev, err := s.Encoder.Prepare(ctx, req.Signature, req.Photo)
	if err != nil {
		return nil, err
	}

	// A bulk handoff happens at one location; default it from the first
	// sample in the batch.
	lat, lng := ordered[0].Latitude, ordered[0].Longitude

	next := NextStatus(req.ReceivedBy, s.LabIntakeID)

	batch := make([]store.TransferParams, 0, len(ordered))
	for _, sample := range ordered {
		batch = append(batch, store.TransferParams{
			SampleID:       sample.ID,
			TransferredBy:  actor.UserID,
			ReceivedBy:     req.ReceivedBy,
			Signature:      ev.Signature,
			PhotoURL:       ev.PhotoURL,
			Latitude:       lat,
			Longitude:      lng,
			TransferredAt:  req.Timestamp,
			ExpectedStatus: sample.Status,
			NextStatus:     next,
		})
	}

	transfers, err := store.BulkCreateCustodyTransfers(ctx, s.DB, batch)
	if err != nil {
		if errors.Is(err, store.ErrStatusConflict) {
			return nil, ErrConflict
		}
		slog.Error("bulk transfer write failed", "samples", ids, "error", err)
		return nil, Persistencef("failed to create transfer records: %v", err)
	}

	slog.Info("bulk custody transfer",
		"samples", len(transfers), "from", actor.UserID, "to", req.ReceivedBy, "status", next)

	if next == model.StatusSubmitted {
		s.notifySubmitted(ids)
	}

	return &BulkTransferResult{TransferCount: len(transfers), Transfers: transfers}, nil
}

// History returns a sample's custody trail, oldest first.
func (s *Service) History(ctx context.Context, actor *auth.Claims, sampleID string) ([]model.CustodyTransfer, error) {
	if actor == nil {
		return nil, ErrUnauthorized
	}

	sample, err := store.GetSample(ctx, s.DB, sampleID)
	if err != nil {
		return nil, err
	}
	if sample == nil || sample.DeletedAt != nil {
		return nil, ErrSampleNotFound
	}
	if !CanViewHistory(actor, sample) {
		return nil, ErrForbidden
	}

	return store.ListSampleTransfers(ctx, s.DB, sampleID)
}

// notifySubmitted dispatches one email per sample to the lab admin,
// asynchronously. Transfers are already committed; a notification failure is
// logged and never rolls anything back.
func (s *Service) notifySubmitted(sampleIDs []string) {
	if s.Notifier == nil || s.AdminEmail == "" {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		for _, id := range sampleIDs {
			if err := s.sendSubmissionEmail(ctx, id); err != nil {
				metrics.NotificationsTotal.WithLabelValues("error").Inc()
				slog.Warn("submission notification failed", "sample", id, "error", err)
				continue
			}
			metrics.NotificationsTotal.WithLabelValues("ok").Inc()
		}
	}()
}

func (s *Service) sendSubmissionEmail(ctx context.Context, sampleID string) error {
	sample, err := store.GetSample(ctx, s.DB, sampleID)
	if err != nil {
		return err
	}
	if sample == nil {
		return fmt.Errorf("sample %s vanished before notification", sampleID)
	}

	transfers, err := store.ListSampleTransfers(ctx, s.DB, sampleID)
	if err != nil {
		return err
	}

	subject, html, err := notify.RenderSubmission(sample, transfers)
	if err != nil {
		return err
	}

	return s.Notifier.Send(ctx, notify.Message{To: s.AdminEmail, Subject: subject, HTML: html})
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case IsValidation(err), evidence.IsRejection(err),
		errors.Is(err, ErrForbidden), errors.Is(err, ErrUnauthorized),
		errors.Is(err, ErrSampleNotFound), errors.Is(err, ErrSamplePassed),
		errors.Is(err, ErrConflict):
		return "rejected"
	default:
		return "error"
	}
}
