package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Ledger and audit stores return
// these (optionally wrapped) and services translate them into coded domain
// errors.
//
//   - ErrNotFound: no record under the key
//   - ErrAlreadyUsed: the record was already taken by another caller
//   - ErrInvalidState: the record cannot serve the requested operation
//   - ErrUnavailable: the backing service cannot be reached
var (
	ErrNotFound     = errors.New("not found")
	ErrAlreadyUsed  = errors.New("already used")
	ErrInvalidState = errors.New("invalid state")
	ErrUnavailable  = errors.New("unavailable")
)
