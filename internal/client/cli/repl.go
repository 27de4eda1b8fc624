package cli

import (
	"bufio"
	"context"
	"fmt"
	"strings"
)

// printlnFn is a test seam for user-facing output. In tests, replace it with a stub.
var printlnFn = fmt.Println

// execIface defines the minimal command surface the REPL needs to operate.
// The real App type satisfies this interface; tests can provide a lightweight stub.
type execIface interface {
	isUnlocked() bool
	Unlock(ctx context.Context) error
	Lock(ctx context.Context) error
	Add(ctx context.Context) error
	List(ctx context.Context) error
	Code(ctx context.Context) error
	Move(ctx context.Context) error
	Sort(ctx context.Context) error
	Export(ctx context.Context) error
	Import(ctx context.Context) error
	Erase(ctx context.Context) error
	EraseAll(ctx context.Context) error
	ToggleLock(ctx context.Context) error
	Backup(ctx context.Context) error
	Restore(ctx context.Context) error
}

// runREPL starts a simple read-eval-print loop for the otpkeeper CLI.
//
// It reads a line from the provided scanner, parses the first token as the
// command, and dispatches to methods on 'a'. Unknown commands are reported
// back to the user. The loop exits on scanner EOF or when the user types
// "exit" or "quit".
//
// Prompt & Commands
//
// The prompt shows the current status (from statusFn) and accepts commands:
//
//	Locked:
//	  - help           — show available commands
//	  - unlock         — open the vault with the passphrase
//	  - exit | quit    — leave the program
//
//	Unlocked:
//	  - help           — show available commands
//	  - add            — add a token from an otpauth:// URL
//	  - list           — list tokens in order
//	  - code           — show the current code for a token
//	  - move           — move a token to a new position
//	  - sort           — sort tokens by issuer
//	  - export         — write selected tokens to a file
//	  - import         — add tokens from a file
//	  - erase          — erase a single token
//	  - eraseall       — erase every token
//	  - togglelock     — flip a token's protection level
//	  - backup         — upload an encrypted export to object storage
//	  - restore        — import from a previously uploaded backup
//	  - lock           — close the vault
//	  - exit | quit    — leave the program
//
// Any errors returned by command handlers are ignored here; handlers should
// report their own errors. This keeps the REPL loop resilient and focused on I/O.
func runREPL(ctx context.Context, a execIface, statusFn func() string, scanner *bufio.Scanner) {
	for {
		printlnFn(fmt.Sprintf("otp> %s > ", statusFn()))
		if !scanner.Scan() {
			return
		}
		line := scanner.Text()
		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}
		cmd := parts[0]

		switch cmd {
		case "help":
			if a.isUnlocked() {
				printlnFn("Available commands: add, (l)ist, code, move, sort, export, import, erase, eraseall, togglelock, backup, restore, lock, exit")
			} else {
				printlnFn("Available commands: unlock, exit")
			}

		case "unlock":
			_ = a.Unlock(ctx)

		case "lock":
			_ = a.Lock(ctx)

		case "add":
			_ = a.Add(ctx)

		case "l", "list":
			_ = a.List(ctx)

		case "code":
			_ = a.Code(ctx)

		case "move":
			_ = a.Move(ctx)

		case "sort":
			_ = a.Sort(ctx)

		case "export":
			_ = a.Export(ctx)

		case "import":
			_ = a.Import(ctx)

		case "erase":
			_ = a.Erase(ctx)

		case "eraseall":
			_ = a.EraseAll(ctx)

		case "togglelock":
			_ = a.ToggleLock(ctx)

		case "backup":
			_ = a.Backup(ctx)

		case "restore":
			_ = a.Restore(ctx)

		case "exit", "quit":
			printlnFn("Bye!")
			return

		default:
			printlnFn("Unknown command:", cmd)
		}
	}
}
