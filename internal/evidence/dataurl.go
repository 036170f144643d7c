package evidence

import (
	"encoding/base64"
	"fmt"
	"strings"
)

// DecodeSignature decodes a signature submitted as either a data URL
// ("data:image/png;base64,....") or plain base64. Signature pads on the web
// form submit canvas captures as data URLs.
func DecodeSignature(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, ErrSignatureRequired
	}

	if strings.HasPrefix(s, "data:") {
		idx := strings.Index(s, ",")
		if idx < 0 {
			return nil, fmt.Errorf("%w: malformed data URL", ErrSignatureInvalid)
		}
		meta, payload := s[len("data:"):idx], s[idx+1:]
		if !strings.HasSuffix(meta, ";base64") {
			return nil, fmt.Errorf("%w: data URL must be base64-encoded", ErrSignatureInvalid)
		}
		data, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
		}
		return data, nil
	}

	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
	}
	return data, nil
}
