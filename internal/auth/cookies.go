package auth

import (
	"net/http"
	"time"
)

const (
	SessionCookieName = "gk_session"
	CSRFCookieName    = "csrf_token"
)

// CookieConfig holds cookie configuration settings
type CookieConfig struct {
	Domain   string // Empty string = current host only
	Secure   bool   // HTTPS only
	SameSite string // "strict", "lax", or "none"
}

// SetSessionCookie stores the session token in an httpOnly cookie
func SetSessionCookie(w http.ResponseWriter, token string, maxAge time.Duration, config CookieConfig) {
	http.SetCookie(w, newCookie(SessionCookieName, token, maxAge, true, config))
}

// SetCSRFTokenCookie sets a CSRF token in a readable cookie (not httpOnly)
// so scripts can echo it in the X-CSRF-Token header
func SetCSRFTokenCookie(w http.ResponseWriter, csrfToken string, maxAge time.Duration, config CookieConfig) {
	http.SetCookie(w, newCookie(CSRFCookieName, csrfToken, maxAge, false, config))
}

// ClearSessionCookies expires both the session and CSRF cookies
func ClearSessionCookies(w http.ResponseWriter, config CookieConfig) {
	http.SetCookie(w, newCookie(SessionCookieName, "", -1, true, config))
	http.SetCookie(w, newCookie(CSRFCookieName, "", -1, false, config))
}

// GetSessionCookie retrieves the session token from cookies
func GetSessionCookie(r *http.Request) (string, error) {
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil {
		return "", err
	}
	return cookie.Value, nil
}

// GetCSRFTokenCookie retrieves the CSRF token from cookies
func GetCSRFTokenCookie(r *http.Request) (string, error) {
	cookie, err := r.Cookie(CSRFCookieName)
	if err != nil {
		return "", err
	}
	return cookie.Value, nil
}

// newCookie builds a cookie; a negative maxAge deletes it
func newCookie(name, value string, maxAge time.Duration, httpOnly bool, config CookieConfig) *http.Cookie {
	cookie := &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   config.Domain,
		HttpOnly: httpOnly,
		Secure:   config.Secure,
		SameSite: parseSameSite(config.SameSite),
	}

	if maxAge < 0 {
		cookie.MaxAge = -1
		return cookie
	}

	cookie.MaxAge = int(maxAge.Seconds())
	cookie.Expires = time.Now().Add(maxAge)
	return cookie
}

// parseSameSite converts string to http.SameSite constant
func parseSameSite(sameSite string) http.SameSite {
	switch sameSite {
	case "strict":
		return http.SameSiteStrictMode
	case "lax":
		return http.SameSiteLaxMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteDefaultMode
	}
}
