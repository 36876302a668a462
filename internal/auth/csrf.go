package auth

import (
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/BradenHooton/gatekeeper/internal/models"
)

// CSRFTokenBytes is the entropy of one CSRF token (256 bits).
const CSRFTokenBytes = 32

// GenerateCSRFToken reads CSRFTokenBytes from src and hex-encodes them.
// A short or failed read is reported as ErrRandomnessUnavailable; there is
// no fallback source.
func GenerateCSRFToken(src io.Reader) (string, error) {
	randomBytes := make([]byte, CSRFTokenBytes)
	if _, err := io.ReadFull(src, randomBytes); err != nil {
		return "", fmt.Errorf("%w: %v", models.ErrRandomnessUnavailable, err)
	}
	return hex.EncodeToString(randomBytes), nil
}

// CompareCSRFTokens compares in constant time. An empty value never matches.
func CompareCSRFTokens(stored, supplied string) bool {
	if stored == "" || supplied == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(stored), []byte(supplied)) == 1
}
