package evidence

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/vodalab/vzorec/internal/blob"
)

func testKey() []byte {
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}
	return key
}

// signaturePNG renders a size x size PNG with every pixel opaque black,
// enough ink to pass the default quality check when size*size >= 250.
func signaturePNG(t *testing.T, size int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, size, size))
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			img.Set(x, y, color.NRGBA{A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encoding test png: %v", err)
	}
	return buf.Bytes()
}

// transparentPNG renders a PNG with zero opaque pixels.
func transparentPNG(t *testing.T, size int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, size, size))
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encoding test png: %v", err)
	}
	return buf.Bytes()
}

func newTestEncoder(t *testing.T, blobs blob.Store) *Encoder {
	t.Helper()
	enc, err := NewEncoder(testKey(), blobs)
	if err != nil {
		t.Fatalf("NewEncoder: %v", err)
	}
	return enc
}

func TestNewEncoderRejectsShortKey(t *testing.T) {
	if _, err := NewEncoder([]byte("too short"), blob.NewMemory()); err == nil {
		t.Error("expected error for short key")
	}
}

func TestPrepareRequiresSignature(t *testing.T) {
	enc := newTestEncoder(t, blob.NewMemory())

	_, err := enc.Prepare(context.Background(), nil, nil)
	if !errors.Is(err, ErrSignatureRequired) {
		t.Errorf("expected ErrSignatureRequired, got %v", err)
	}
}

func TestPrepareRejectsNonImageSignature(t *testing.T) {
	enc := newTestEncoder(t, blob.NewMemory())

	_, err := enc.Prepare(context.Background(), []byte("not an image"), nil)
	if !errors.Is(err, ErrSignatureInvalid) {
		t.Errorf("expected ErrSignatureInvalid, got %v", err)
	}
}

func TestPrepareRejectsSparseSignature(t *testing.T) {
	enc := newTestEncoder(t, blob.NewMemory())

	_, err := enc.Prepare(context.Background(), transparentPNG(t, 100), nil)
	if !errors.Is(err, ErrSignatureTooSimple) {
		t.Errorf("expected ErrSignatureTooSimple, got %v", err)
	}
	if !IsRejection(err) {
		t.Error("quality rejection should be a rejection error")
	}
}

func TestSignatureRoundTrip(t *testing.T) {
	enc := newTestEncoder(t, blob.NewMemory())
	raw := signaturePNG(t, 50)

	ev, err := enc.Prepare(context.Background(), raw, nil)
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if bytes.Equal(ev.Signature, raw) {
		t.Error("stored signature should not be plaintext")
	}

	plain, err := enc.Decrypt(ev.Signature)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if !bytes.Equal(plain, raw) {
		t.Error("decrypted signature does not match original")
	}
}

func TestEncryptProducesUniqueCiphertexts(t *testing.T) {
	enc := newTestEncoder(t, blob.NewMemory())

	a, err := enc.Encrypt([]byte("payload"))
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	b, err := enc.Encrypt([]byte("payload"))
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if bytes.Equal(a, b) {
		t.Error("two encryptions of the same payload should differ (random nonce)")
	}
}

func TestDecryptRejectsTruncatedCiphertext(t *testing.T) {
	enc := newTestEncoder(t, blob.NewMemory())

	if _, err := enc.Decrypt([]byte{1, 2, 3}); err == nil {
		t.Error("expected error for truncated ciphertext")
	}
}

func TestPreparePhotoUploaded(t *testing.T) {
	blobs := blob.NewMemory()
	enc := newTestEncoder(t, blobs)

	ev, err := enc.Prepare(context.Background(), signaturePNG(t, 50), signaturePNG(t, 50))
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if ev.PhotoURL == "" {
		t.Error("expected a photo URL")
	}
	if blobs.Len() != 1 {
		t.Errorf("expected 1 stored blob, got %d", blobs.Len())
	}
}

func TestPrepareRejectsOversizedPhoto(t *testing.T) {
	enc := newTestEncoder(t, blob.NewMemory())

	huge := make([]byte, MaxPhotoBytes+1)
	_, err := enc.Prepare(context.Background(), signaturePNG(t, 50), huge)
	if !errors.Is(err, ErrPhotoTooLarge) {
		t.Errorf("expected ErrPhotoTooLarge, got %v", err)
	}
}

func TestPrepareRejectsUnsupportedPhoto(t *testing.T) {
	enc := newTestEncoder(t, blob.NewMemory())

	_, err := enc.Prepare(context.Background(), signaturePNG(t, 50), []byte("plain text, not an image"))
	if !errors.Is(err, ErrPhotoUnsupported) {
		t.Errorf("expected ErrPhotoUnsupported, got %v", err)
	}
}

func TestPrepareToleratesPhotoUploadFailure(t *testing.T) {
	blobs := blob.NewMemory()
	blobs.FailPuts = errors.New("storage down")
	enc := newTestEncoder(t, blobs)

	ev, err := enc.Prepare(context.Background(), signaturePNG(t, 50), signaturePNG(t, 50))
	if err != nil {
		t.Fatalf("Prepare should tolerate upload failure, got %v", err)
	}
	if ev.PhotoURL != "" {
		t.Error("photo URL should be empty when upload fails")
	}
	if len(ev.Signature) == 0 {
		t.Error("signature should still be prepared")
	}
}

func TestCustomQualityCheck(t *testing.T) {
	enc := newTestEncoder(t, blob.NewMemory())
	enc.SetQualityCheck(PixelDensityCheck{MinInkPixels: 1})

	// A 5x5 opaque image has only 25 ink pixels, too sparse for the default
	// check but enough for the relaxed one.
	if _, err := enc.Prepare(context.Background(), signaturePNG(t, 5), nil); err != nil {
		t.Errorf("relaxed quality check should accept small signature, got %v", err)
	}
}
