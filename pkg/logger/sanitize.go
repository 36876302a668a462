package logger

import (
	"log/slog"
	"strings"
)

// SanitizedEmail masks an email address for logging (e.g., "u***@e***.com")
func SanitizedEmail(email string) string {
	username, domain, ok := strings.Cut(email, "@")
	if !ok || strings.Contains(domain, "@") {
		return "[invalid-email]"
	}

	if len(username) > 1 {
		username = username[:1] + strings.Repeat("*", len(username)-1)
	}

	// Keep only the TLD readable
	labels := strings.Split(domain, ".")
	for i := 0; i < len(labels)-1; i++ {
		labels[i] = strings.Repeat("*", len(labels[i]))
	}

	return username + "@" + strings.Join(labels, ".")
}

// RedactedAttr returns "[REDACTED]" in production and the value elsewhere
func RedactedAttr(key, value, env string) slog.Attr {
	if env == "production" {
		return slog.String(key, "[REDACTED]")
	}
	return slog.String(key, value)
}

var sensitiveQueryParams = []string{
	"password", "token", "secret", "totp", "email", "auth", "csrf", "session",
}

// SanitizeQueryString reports whether the query string should be redacted
// before it is logged.
func SanitizeQueryString(rawQuery string) bool {
	query := strings.ToLower(rawQuery)
	for _, param := range sensitiveQueryParams {
		if strings.Contains(query, param) {
			return true
		}
	}
	return false
}
