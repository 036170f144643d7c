// Package evidence validates and normalizes custody handoff evidence:
// the captured signature image (encrypted at rest) and the optional photo
// (downscaled and uploaded to blob storage).
package evidence

import (
	"bytes"
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"image"
	"log/slog"

	"github.com/google/uuid"
	"golang.org/x/crypto/chacha20poly1305"

	"github.com/vodalab/vzorec/internal/blob"
	"github.com/vodalab/vzorec/internal/imaging"
)

// Rejection reasons. API handlers map these to 400 responses with messages
// specific enough for a client to re-prompt appropriately.
var (
	ErrSignatureRequired  = errors.New("signature required")
	ErrSignatureInvalid   = errors.New("signature must be a valid image")
	ErrSignatureTooSimple = errors.New("not a detailed signature")
	ErrPhotoTooLarge      = errors.New("photo exceeds maximum size")
	ErrPhotoUnsupported   = errors.New("photo must be a JPEG or PNG image")
)

// MaxPhotoBytes is the upload ceiling for handoff photos.
const MaxPhotoBytes = 2 << 20 // 2 MB

// DefaultMinInkPixels is the minimum ink coverage for the default signature
// quality check.
const DefaultMinInkPixels = 250

// QualityCheck decides whether a decoded signature image is detailed enough
// to count as a signature. Implementations return a rejection error or nil.
type QualityCheck interface {
	Check(img image.Image) error
}

// PixelDensityCheck rejects signatures with fewer than MinInkPixels
// non-transparent pixels. Signature pads capture strokes on a transparent
// canvas, so opaque pixel count approximates ink coverage.
type PixelDensityCheck struct {
	MinInkPixels int
}

func (c PixelDensityCheck) Check(img image.Image) error {
	min := c.MinInkPixels
	if min <= 0 {
		min = DefaultMinInkPixels
	}

	bounds := img.Bounds()
	ink := 0
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			if _, _, _, a := img.At(x, y).RGBA(); a > 0 {
				ink++
				if ink >= min {
					return nil
				}
			}
		}
	}
	return ErrSignatureTooSimple
}

// Evidence is the storable form of handoff proof.
type Evidence struct {
	Signature []byte // encrypted signature payload
	PhotoURL  string // empty if no photo was supplied or the upload failed
}

// Encoder prepares evidence for persistence. The signature key must be
// 32 bytes (XChaCha20-Poly1305).
type Encoder struct {
	key     []byte
	quality QualityCheck
	blobs   blob.Store
}

// NewEncoder creates an Encoder with the default pixel-density quality check.
func NewEncoder(key []byte, blobs blob.Store) (*Encoder, error) {
	if len(key) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("signature key must be %d bytes, got %d", chacha20poly1305.KeySize, len(key))
	}
	return &Encoder{
		key:     key,
		quality: PixelDensityCheck{MinInkPixels: DefaultMinInkPixels},
		blobs:   blobs,
	}, nil
}

// SetQualityCheck replaces the signature quality strategy.
func (e *Encoder) SetQualityCheck(q QualityCheck) {
	e.quality = q
}

// Prepare validates the raw signature, encrypts it, and (if supplied)
// processes and uploads the photo. A photo upload failure is logged and
// tolerated: the photo is supplementary evidence, not required for a legally
// valid custody transfer.
func (e *Encoder) Prepare(ctx context.Context, rawSignature, rawPhoto []byte) (*Evidence, error) {
	if len(rawSignature) == 0 {
		return nil, ErrSignatureRequired
	}

	img, _, err := image.Decode(bytes.NewReader(rawSignature))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
	}
	if err := e.quality.Check(img); err != nil {
		return nil, err
	}

	encrypted, err := e.Encrypt(rawSignature)
	if err != nil {
		return nil, fmt.Errorf("encrypting signature: %w", err)
	}

	ev := &Evidence{Signature: encrypted}

	if len(rawPhoto) > 0 {
		url, err := e.preparePhoto(ctx, rawPhoto)
		if err != nil {
			return nil, err
		}
		ev.PhotoURL = url
	}

	return ev, nil
}

func (e *Encoder) preparePhoto(ctx context.Context, rawPhoto []byte) (string, error) {
	if int64(len(rawPhoto)) > MaxPhotoBytes {
		return "", ErrPhotoTooLarge
	}

	processed, err := imaging.Process(bytes.NewReader(rawPhoto))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrPhotoUnsupported, err)
	}

	key := "photos/" + uuid.NewString() + ".jpg"
	if err := e.blobs.Put(ctx, key, processed.Data, processed.MIME); err != nil {
		slog.Warn("photo upload failed, continuing without photo", "error", err)
		return "", nil
	}
	return e.blobs.PublicURL(key), nil
}

// Encrypt seals plaintext with XChaCha20-Poly1305. The random nonce is
// prepended to the ciphertext.
func (e *Encoder) Encrypt(plaintext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(e.key)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generating nonce: %w", err)
	}
	return aead.Seal(nonce, nonce, plaintext, nil), nil
}

// Decrypt reverses Encrypt. Used by back-office tooling and tests; the
// stored form must always round-trip to the submitted signature.
func (e *Encoder) Decrypt(ciphertext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(e.key)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}
	if len(ciphertext) < aead.NonceSize() {
		return nil, fmt.Errorf("ciphertext too short")
	}

	nonce, sealed := ciphertext[:aead.NonceSize()], ciphertext[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("decrypting signature: %w", err)
	}
	return plaintext, nil
}

// IsRejection reports whether err is an evidence validation rejection (as
// opposed to an infrastructure failure).
func IsRejection(err error) bool {
	return errors.Is(err, ErrSignatureRequired) ||
		errors.Is(err, ErrSignatureInvalid) ||
		errors.Is(err, ErrSignatureTooSimple) ||
		errors.Is(err, ErrPhotoTooLarge) ||
		errors.Is(err, ErrPhotoUnsupported)
}
