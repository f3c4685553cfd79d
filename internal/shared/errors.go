package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUnknownSubject indicates no user record matches the presented id.
	ErrUnknownSubject = errors.New("unknown subject")
	// ErrStoreUnavailable indicates a transient failure reaching the permission store.
	ErrStoreUnavailable = errors.New("permission store unavailable")
	// ErrAccountInactive indicates the account exists but may not sign in.
	ErrAccountInactive = errors.New("account inactive")
)
