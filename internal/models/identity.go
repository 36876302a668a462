package models

import (
	"net/netip"
	"strings"
)

// Identity is the normalized client address the defense engine keys on.
// It is never bound to a user account; clients behind one NAT share it.
type Identity string

// LoopbackIdentity is returned when no request candidate yields a valid address.
const LoopbackIdentity Identity = "127.0.0.1"

// ParseIdentity validates an IPv4 or IPv6 literal and returns its canonical form.
// IPv4-mapped IPv6 addresses collapse to their IPv4 text so that one client
// cannot occupy two ledger rows.
func ParseIdentity(raw string) (Identity, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrInvalidIdentity
	}

	addr, err := netip.ParseAddr(raw)
	if err != nil {
		return "", ErrInvalidIdentity
	}
	// Zones are link-local noise, not part of the address
	addr = addr.WithZone("").Unmap()

	return Identity(addr.String()), nil
}

func (i Identity) String() string {
	return string(i)
}
