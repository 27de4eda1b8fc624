// Package securestore defines the abstract secure key-value store that
// token data lives in, plus its memory, SQLite, and Postgres backends.
//
// Records are grouped by type and keyed by opaque account identifiers.
// Database backends encrypt every value with the vault's master key; a
// record stored as locked additionally requires a valid elevation before
// it can be read back.
package securestore

import "context"

// RecordType partitions the key space of a store.
type RecordType string

const (
	RecordOTP    RecordType = "otp"
	RecordToken  RecordType = "token"
	RecordOrder  RecordType = "order"
	RecordLegacy RecordType = "legacy"
)

// Elevation reports whether the caller currently holds elevated
// authentication, required for reading locked records.
type Elevation interface {
	Valid() bool
}

// Store is the key-value contract all backends implement.
//
// Get returns common.ErrNotFound for an absent record and common.ErrLocked
// for a locked record read without a valid elevation. Put with locked=true
// on a store whose LockingSupported is false stores the record unlocked.
type Store interface {
	Get(ctx context.Context, recordType RecordType, key string) ([]byte, error)
	Put(ctx context.Context, recordType RecordType, key string, data []byte, locked bool) error
	Delete(ctx context.Context, recordType RecordType, key string) error
	List(ctx context.Context, recordType RecordType) ([]string, error)
	LockingSupported() bool
}
