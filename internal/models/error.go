package models

import "errors"

// Sentinel errors for common failure conditions
var (
	ErrNotFound       = errors.New("resource not found")
	ErrConflict       = errors.New("resource already exists")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrBadRequest     = errors.New("bad request")
	ErrInternalServer = errors.New("internal server error")

	// Defense engine errors
	ErrStorageUnavailable    = errors.New("storage unavailable")
	ErrInvalidIdentity       = errors.New("invalid identity")
	ErrRandomnessUnavailable = errors.New("secure randomness unavailable")
	ErrSessionExpired        = errors.New("session expired")
	ErrSessionRevoked        = errors.New("session revoked")
)
