package auth

import (
	"crypto/subtle"
	"strings"
	"time"

	pkgauth "github.com/BradenHooton/gatekeeper/pkg/auth"
)

// AdminCredentials verifies the single configured administrator.
type AdminCredentials struct {
	email        string
	passwordHash string
	totp         *TOTPVerifier
}

// NewAdminCredentials creates a verifier. totp may be nil.
func NewAdminCredentials(email, passwordHash string, totp *TOTPVerifier) *AdminCredentials {
	return &AdminCredentials{
		email:        strings.ToLower(strings.TrimSpace(email)),
		passwordHash: passwordHash,
		totp:         totp,
	}
}

// Configured reports whether an administrator account exists at all
func (c *AdminCredentials) Configured() bool {
	return c.email != "" && c.passwordHash != ""
}

// Verify checks email, password and (when enabled) the TOTP code. Every
// branch does one bcrypt comparison.
func (c *AdminCredentials) Verify(email, password, totpCode string, now time.Time) bool {
	email = strings.ToLower(strings.TrimSpace(email))
	emailMatch := subtle.ConstantTimeCompare([]byte(email), []byte(c.email)) == 1

	if !c.Configured() || !emailMatch {
		pkgauth.BurnComparison(password)
		return false
	}

	if err := pkgauth.ComparePassword(c.passwordHash, password); err != nil {
		return false
	}

	if c.totp.Enabled() {
		ok, err := c.totp.Validate(totpCode, now)
		if err != nil || !ok {
			return false
		}
	}

	return true
}
