package types

import "errors"

var (
	// ErrNotFound is returned when a user, project or file does not exist
	// or is not visible to the caller.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a path is already taken.
	ErrConflict = errors.New("path already exists")
	// ErrInvalidPath is returned for malformed FileRecord paths.
	ErrInvalidPath = errors.New("invalid file path")
	// ErrNoEntryHTML is returned when a preview has no HTML entry file.
	ErrNoEntryHTML = errors.New("no HTML entry file found")
	// ErrUnauthenticated is returned when no wallet credential is present.
	ErrUnauthenticated = errors.New("missing wallet public key")
	// ErrInvalidPublicKey is returned for malformed Stellar public keys.
	ErrInvalidPublicKey = errors.New("invalid Stellar public key")
	// ErrInvalidArgument is returned for malformed request values other than paths.
	ErrInvalidArgument = errors.New("invalid argument")
)
