// Package cli implements the interactive otpkeeper shell: a small REPL over
// the token store with commands for adding, listing, and generating codes,
// reordering and sorting, file export/import, and encrypted S3 backups.
//
// The vault starts locked. The unlock command asks for the passphrase,
// derives the master key, and opens the configured store backend; lock
// wipes the key again. Commands that read locked entries additionally rely
// on the elevation session started at unlock time.
package cli
