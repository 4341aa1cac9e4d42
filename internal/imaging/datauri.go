package imaging

import (
	"encoding/base64"
	"errors"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// DefaultMIME is reported for payloads that are not a recognized image.
const DefaultMIME = "image/png"

var supportedMIME = []string{"image/jpeg", "image/png", "image/gif", "image/bmp"}

// ErrNotDataURI is returned by DecodeDataURI for values without a data: envelope.
var ErrNotDataURI = errors.New("value is not a base64 data URI")

// DetectMIME sniffs the image type of b from its magic header. Only JPEG,
// PNG, GIF and BMP are recognized; everything else reports DefaultMIME.
func DetectMIME(b []byte) string {
	if len(b) == 0 {
		return DefaultMIME
	}
	m := mimetype.Detect(b)
	for _, s := range supportedMIME {
		if m.Is(s) {
			return s
		}
	}
	return DefaultMIME
}

// EncodeDataURI wraps b as data:<mime>;base64,<payload>.
func EncodeDataURI(b []byte) string {
	return "data:" + DetectMIME(b) + ";base64," + base64.StdEncoding.EncodeToString(b)
}

// DecodeDataURI extracts the payload of a base64 data URI.
func DecodeDataURI(s string) ([]byte, error) {
	if !strings.HasPrefix(s, "data:") {
		return nil, ErrNotDataURI
	}
	meta, payload, ok := strings.Cut(s[len("data:"):], ",")
	if !ok || !strings.HasSuffix(meta, ";base64") {
		return nil, ErrNotDataURI
	}
	return base64.StdEncoding.DecodeString(payload)
}

// IsDataURI reports whether s looks like a base64 data URI.
func IsDataURI(s string) bool {
	if !strings.HasPrefix(s, "data:") {
		return false
	}
	meta, _, ok := strings.Cut(s[len("data:"):], ",")
	return ok && strings.HasSuffix(meta, ";base64")
}
