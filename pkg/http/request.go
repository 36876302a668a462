package http

import (
	"net"
	"net/http"
	"strings"

	"github.com/BradenHooton/gatekeeper/internal/models"
)

// ResolveClientIP returns the normalized identity of the client that sent r.
//
// Candidates are examined in fixed order:
// 1. X-Forwarded-For (left-most entry of the list, trimmed)
// 2. X-Real-IP
// 3. RemoteAddr (port stripped)
//
// The first candidate that parses as an IPv4 or IPv6 literal wins. When none
// does, the loopback identity is returned instead of an error.
//
// Headers are trusted as sent. Deployments exposed to untrusted clients must sit
// behind a reverse proxy that overwrites them.
func ResolveClientIP(r *http.Request) string {
	return string(ResolveIdentity(r))
}

// ResolveIdentity is ResolveClientIP returning the typed identity.
func ResolveIdentity(r *http.Request) models.Identity {
	for _, candidate := range candidateAddrs(r) {
		if id, err := models.ParseIdentity(candidate); err == nil {
			return id
		}
	}
	return models.LoopbackIdentity
}

func candidateAddrs(r *http.Request) []string {
	candidates := make([]string, 0, 3)

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		candidates = append(candidates, strings.TrimSpace(first))
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		candidates = append(candidates, strings.TrimSpace(xri))
	}

	candidates = append(candidates, getRemoteAddr(r))
	return candidates
}

// getRemoteAddr extracts the IP address from RemoteAddr (removing port if present)
func getRemoteAddr(r *http.Request) string {
	if r.RemoteAddr == "" {
		return ""
	}
	if ip, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return ip
	}
	return r.RemoteAddr
}
