package sentinel

import "errors"

// Sentinel errors for persistence and infrastructure facts. Stores return
// these (optionally wrapped) and services translate them into domain errors:
// - ErrNotFound: row does not exist
// - ErrConflict: a uniqueness constraint was hit
// - ErrExpired: a confirmation code is past its expiry
// - ErrAlreadyUsed: a confirmation code was already consumed
// - ErrInvalidState: a conditional update found the row in another status
// - ErrUnavailable: a backing service could not be reached
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrExpired      = errors.New("expired")
	ErrAlreadyUsed  = errors.New("already used")
	ErrInvalidState = errors.New("invalid state")
	ErrUnavailable  = errors.New("unavailable")
)
