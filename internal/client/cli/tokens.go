package cli

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"otpkeeper/internal/token"
)

// getIndex prompts for a zero-based token position.
func (a *App) getIndex(prompt string) (int, error) {
	text, err := GetSimpleText(a.reader, prompt, a.out)
	if err != nil {
		return 0, err
	}
	index, err := strconv.Atoi(text)
	if err != nil {
		fmt.Fprintln(a.out, "Not a number:", text)
		return 0, err
	}
	return index, nil
}

// Add parses an otpauth:// URL entered by the user and stores the token.
func (a *App) Add(ctx context.Context) error {
	if err := a.requireUnlocked(); err != nil {
		return err
	}

	text, err := GetSimpleText(a.reader, "Enter otpauth:// URL", a.out)
	if err != nil {
		return err
	}

	u, err := url.Parse(text)
	if err != nil {
		fmt.Fprintln(a.out, "Not a valid URL:", err)
		return err
	}

	t, err := a.store.Add(ctx, u)
	if err != nil {
		fmt.Fprintln(a.out, "Error:", err)
		return err
	}

	fmt.Fprintf(a.out, "Added %s (%s)\n", t.Issuer, t.Label)
	return nil
}

// List prints every token in current order.
func (a *App) List(ctx context.Context) error {
	if err := a.requireUnlocked(); err != nil {
		return err
	}

	count := 0
	err := a.store.EnumerateTokens(ctx, func(index int, t *token.Token) {
		locked := ""
		if t.Locked {
			locked = " [locked]"
		}
		fmt.Fprintf(a.out, "%3d  %-4s  %s (%s)%s\n", index, t.Kind, t.Issuer, t.Label, locked)
		count++
	})
	if err != nil {
		fmt.Fprintln(a.out, "Error:", err)
		return err
	}
	if count == 0 {
		fmt.Fprintln(a.out, "No tokens yet. Use 'add' to create one.")
	}
	return nil
}

// Code shows the best current code for the token at a position: the current
// period's code while enough of it remains, otherwise the next one.
func (a *App) Code(ctx context.Context) error {
	if err := a.requireUnlocked(); err != nil {
		return err
	}

	index, err := a.getIndex("Token position")
	if err != nil {
		return err
	}

	t, err := a.store.Load(ctx, index)
	if err != nil {
		fmt.Fprintln(a.out, "Error:", err)
		return err
	}

	code, err := t.BestCode(ctx, a.store)
	if err != nil {
		fmt.Fprintln(a.out, "Error:", err)
		return err
	}

	if t.Kind == token.KindTOTP {
		fmt.Fprintf(a.out, "%s (valid until %s)\n", code.Value, code.To.Format("15:04:05"))
	} else {
		fmt.Fprintln(a.out, code.Value)
	}
	return nil
}

// Move repositions a token within the order.
func (a *App) Move(ctx context.Context) error {
	if err := a.requireUnlocked(); err != nil {
		return err
	}

	from, err := a.getIndex("Move from position")
	if err != nil {
		return err
	}
	to, err := a.getIndex("Move to position")
	if err != nil {
		return err
	}

	if err := a.store.Move(ctx, from, to); err != nil {
		fmt.Fprintln(a.out, "Error:", err)
		return err
	}
	fmt.Fprintf(a.out, "Moved %d to %d\n", from, to)
	return nil
}

// Sort orders tokens by issuer. Repeating the command flips the direction.
func (a *App) Sort(ctx context.Context) error {
	if err := a.requireUnlocked(); err != nil {
		return err
	}

	moves, err := a.store.SortTokens(ctx, func(t *token.Token) string { return t.Issuer })
	if err != nil {
		fmt.Fprintln(a.out, "Error:", err)
		return err
	}

	fmt.Fprintf(a.out, "Sorted, %d entries moved\n", len(moves))
	return nil
}

// Erase removes the token at a position.
func (a *App) Erase(ctx context.Context) error {
	if err := a.requireUnlocked(); err != nil {
		return err
	}

	index, err := a.getIndex("Token position")
	if err != nil {
		return err
	}

	if err := a.store.Erase(ctx, index); err != nil {
		fmt.Fprintln(a.out, "Error:", err)
		return err
	}
	fmt.Fprintln(a.out, "Erased")
	return nil
}

// EraseAll removes every token after an explicit confirmation.
func (a *App) EraseAll(ctx context.Context) error {
	if err := a.requireUnlocked(); err != nil {
		return err
	}

	answer, err := GetSimpleText(a.reader, "Type 'yes' to erase every token", a.out)
	if err != nil {
		return err
	}
	if answer != "yes" {
		fmt.Fprintln(a.out, "Cancelled")
		return nil
	}

	if err := a.store.EraseAll(ctx); err != nil {
		fmt.Fprintln(a.out, "Error:", err)
		return err
	}
	fmt.Fprintln(a.out, "All tokens erased")
	return nil
}

// ToggleLock flips the protection level of the token at a position.
func (a *App) ToggleLock(ctx context.Context) error {
	if err := a.requireUnlocked(); err != nil {
		return err
	}

	index, err := a.getIndex("Token position")
	if err != nil {
		return err
	}

	t, err := a.store.Load(ctx, index)
	if err != nil {
		fmt.Fprintln(a.out, "Error:", err)
		return err
	}

	if err := a.store.SetLocked(ctx, t, !t.Locked); err != nil {
		fmt.Fprintln(a.out, "Error:", err)
		return err
	}

	state := "unlocked"
	if t.Locked {
		state = "locked"
	}
	fmt.Fprintf(a.out, "%s (%s) is now %s\n", t.Issuer, t.Label, state)
	return nil
}
