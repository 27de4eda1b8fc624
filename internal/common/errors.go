// Package common defines shared constants and sentinel errors used across
// the otpkeeper packages. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Store-level errors.
	ErrNotFound       = errors.New("not found")
	ErrLocked         = errors.New("record requires elevated authentication")
	ErrCorruptedStore = errors.New("store corrupted")

	// Validation errors. Construction of OTP/Token values fails with one of
	// these; nothing is persisted past the parse boundary.
	ErrInvalidEncoding  = errors.New("invalid base32 encoding")
	ErrMissingSecret    = errors.New("missing secret")
	ErrInvalidAlgorithm = errors.New("invalid algorithm")
	ErrInvalidDigits    = errors.New("invalid digit count")
	ErrInvalidURL       = errors.New("invalid otpauth url")

	// Vault unlock errors.
	ErrWrongPassphrase    = errors.New("wrong passphrase")
	ErrVaultUninitialized = errors.New("vault not initialized")

	// Elevation session errors.
	ErrSessionExpired = errors.New("elevation session expired")
)
