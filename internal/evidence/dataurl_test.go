package evidence

import (
	"bytes"
	"encoding/base64"
	"testing"
)

func TestDecodeSignatureDataURL(t *testing.T) {
	raw := []byte{0x89, 'P', 'N', 'G'}
	encoded := "data:image/png;base64," + base64.StdEncoding.EncodeToString(raw)

	got, err := DecodeSignature(encoded)
	if err != nil {
		t.Fatalf("DecodeSignature: %v", err)
	}
	if !bytes.Equal(got, raw) {
		t.Errorf("expected %v, got %v", raw, got)
	}
}

func TestDecodeSignaturePlainBase64(t *testing.T) {
	raw := []byte("signature bytes")
	got, err := DecodeSignature(base64.StdEncoding.EncodeToString(raw))
	if err != nil {
		t.Fatalf("DecodeSignature: %v", err)
	}
	if !bytes.Equal(got, raw) {
		t.Errorf("expected %q, got %q", raw, got)
	}
}

func TestDecodeSignatureInvalid(t *testing.T) {
	if _, err := DecodeSignature("%%% not base64 %%%"); err == nil {
		t.Error("expected error for invalid base64")
	}
}
