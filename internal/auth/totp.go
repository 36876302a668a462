package auth

import (
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	qrcode "github.com/skip2/go-qrcode"
)

const totpReplayWindow = 90 * time.Second

var totpValidateOpts = totp.ValidateOpts{
	Period:    30,
	Skew:      1, // ±1 time step
	Digits:    otp.DigitsSix,
	Algorithm: otp.AlgorithmSHA1,
}

// TOTPVerifier checks the admin second factor against a fixed base32 secret.
// An empty secret disables the second factor.
type TOTPVerifier struct {
	secret  string
	issuer  string
	account string

	mu       sync.Mutex
	lastCode string
	lastUsed time.Time
}

// NewTOTPVerifier creates a verifier for the configured admin secret
func NewTOTPVerifier(secret, issuer, account string) *TOTPVerifier {
	return &TOTPVerifier{
		secret:  strings.ToUpper(strings.TrimSpace(secret)),
		issuer:  issuer,
		account: account,
	}
}

// Enabled reports whether a second factor is configured
func (v *TOTPVerifier) Enabled() bool {
	return v != nil && v.secret != ""
}

// Validate checks code at now. A code that was already accepted within the
// replay window is rejected.
func (v *TOTPVerifier) Validate(code string, now time.Time) (bool, error) {
	if !v.Enabled() {
		return true, nil
	}

	valid, err := totp.ValidateCustom(strings.TrimSpace(code), v.secret, now, totpValidateOpts)
	if err != nil {
		return false, fmt.Errorf("failed to validate TOTP: %w", err)
	}
	if !valid {
		return false, nil
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if code == v.lastCode && now.Sub(v.lastUsed) < totpReplayWindow {
		return false, nil
	}
	v.lastCode = code
	v.lastUsed = now

	return true, nil
}

// ProvisioningURL returns the otpauth:// URL for authenticator apps
func (v *TOTPVerifier) ProvisioningURL() (string, error) {
	if !v.Enabled() {
		return "", fmt.Errorf("TOTP is not configured")
	}

	params := url.Values{}
	params.Set("secret", v.secret)
	params.Set("issuer", v.issuer)
	params.Set("algorithm", "SHA1")
	params.Set("digits", "6")
	params.Set("period", "30")

	u := url.URL{
		Scheme:   "otpauth",
		Host:     "totp",
		Path:     "/" + v.issuer + ":" + v.account,
		RawQuery: params.Encode(),
	}

	key, err := otp.NewKeyFromURL(u.String())
	if err != nil {
		return "", fmt.Errorf("failed to build TOTP key: %w", err)
	}
	return key.URL(), nil
}

// ProvisioningQR renders the provisioning URL as a PNG
func (v *TOTPVerifier) ProvisioningQR(size int) ([]byte, error) {
	provisioningURL, err := v.ProvisioningURL()
	if err != nil {
		return nil, err
	}

	png, err := qrcode.Encode(provisioningURL, qrcode.Medium, size)
	if err != nil {
		return nil, fmt.Errorf("failed to encode QR code: %w", err)
	}
	return png, nil
}
