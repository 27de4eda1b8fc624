// Package token wraps a stored secret with user-visible metadata and the
// counter or clock policy that turns it into one-time codes.
package token

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"otpkeeper/internal/common"
	"otpkeeper/internal/otp"
)

// test seam for window computations
var timeNow = time.Now

// Kind distinguishes counter-based from time-based tokens. It is fixed at
// creation time.
type Kind int

const (
	KindHOTP Kind = iota
	KindTOTP
)

func (k Kind) String() string {
	if k == KindTOTP {
		return "totp"
	}
	return "hotp"
}

// Code is a one-time code together with its validity interval. The interval
// is half-open: the code is valid from From up to but excluding To.
type Code struct {
	Value string
	From  time.Time
	To    time.Time
}

// Vault is the narrow slice of the token store that code generation needs:
// resolving the paired secret record and persisting an updated counter.
type Vault interface {
	Secret(ctx context.Context, account string) (*otp.OTP, error)
	SaveToken(ctx context.Context, t *Token) error
}

// Token carries the metadata half of a stored entry. Its account identifier
// joins it to the secret record with the same key.
//
// Issuer, Label, and Image each keep an original shadow copy captured at
// import time. Use the Set* methods for edits so an empty value falls back
// to the original instead of blanking the field.
type Token struct {
	Account    string `json:"account"`
	Kind       Kind   `json:"kind"`
	Issuer     string `json:"issuer"`
	IssuerOrig string `json:"issuer_orig"`
	Label      string `json:"label"`
	LabelOrig  string `json:"label_orig"`
	Image      string `json:"image,omitempty"`
	ImageOrig  string `json:"image_orig,omitempty"`
	Counter    int64  `json:"counter"`
	Period     int64  `json:"period"`
	Locked     bool   `json:"locked"`
}

// ParseOptions controls how an otpauth:// URL is interpreted.
type ParseOptions struct {
	// Load marks the URL as one of our own exports being reloaded. In that
	// mode the issuerorig/nameorig/imageorig parameters are honored; on a
	// fresh import the shadow fields capture the just-parsed values instead.
	Load bool

	// LockingSupported reports whether the backing store can honor a
	// lock=on request. When it cannot, the token is created unlocked.
	LockingSupported bool
}

// ParseURL builds a Token for the given secret record from an otpauth://
// URL. The scheme must be otpauth and the host hotp or totp. The path is
// split on the first colon into issuer and label. Unknown query parameters
// are ignored; period below 5 or a negative counter fail the parse.
func ParseURL(o *otp.OTP, u *url.URL, opts ParseOptions) (*Token, error) {
	if u.Scheme != "otpauth" || u.Host == "" {
		return nil, fmt.Errorf("%w: scheme must be otpauth", common.ErrInvalidURL)
	}

	t := &Token{Account: o.Account, Period: 30}

	switch strings.ToLower(u.Host) {
	case "hotp":
		t.Kind = KindHOTP
	case "totp":
		t.Kind = KindTOTP
	default:
		return nil, fmt.Errorf("%w: unknown kind %q", common.ErrInvalidURL, u.Host)
	}

	path := strings.TrimLeft(u.Path, "/")
	if path == "" {
		return nil, fmt.Errorf("%w: empty label path", common.ErrInvalidURL)
	}
	if issuer, label, found := strings.Cut(path, ":"); found {
		t.Issuer, t.Label = issuer, label
	} else {
		t.Issuer = path
	}

	for name, values := range u.Query() {
		if len(values) == 0 {
			continue
		}
		value := values[0]
		name = strings.ToLower(name)

		// an empty value is meaningful only for lock, where it means "off"
		if value == "" && name != "lock" {
			continue
		}

		switch name {
		case "period":
			parsed, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				continue
			}
			if parsed < 5 {
				return nil, fmt.Errorf("%w: period %d below minimum", common.ErrInvalidURL, parsed)
			}
			t.Period = parsed

		case "counter":
			parsed, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				continue
			}
			if parsed < 0 {
				return nil, fmt.Errorf("%w: negative counter", common.ErrInvalidURL)
			}
			t.Counter = parsed

		case "lock":
			switch strings.ToLower(value) {
			case "", "0", "off", "false":
				t.Locked = false
			default:
				t.Locked = opts.LockingSupported
			}

		case "image":
			t.Image = value

		case "issuerorig":
			if opts.Load {
				t.IssuerOrig = value
			}

		case "nameorig":
			if opts.Load {
				t.LabelOrig = value
			}

		case "imageorig":
			if opts.Load {
				t.ImageOrig = value
			}
		}
	}

	if !opts.Load {
		t.IssuerOrig = t.Issuer
		t.LabelOrig = t.Label
		t.ImageOrig = t.Image
	}

	return t, nil
}

// SetIssuer updates the visible issuer. An empty value restores the
// original captured at import time.
func (t *Token) SetIssuer(issuer string) {
	if issuer == "" {
		issuer = t.IssuerOrig
	}
	t.Issuer = issuer
}

// SetLabel updates the visible label. An empty value restores the original.
func (t *Token) SetLabel(label string) {
	if label == "" {
		label = t.LabelOrig
	}
	t.Label = label
}

// SetImage updates the image reference. An empty value restores the original.
func (t *Token) SetImage(image string) {
	if image == "" {
		image = t.ImageOrig
	}
	t.Image = image
}

// Codes computes the currently presentable code(s).
//
// For HOTP the counter is incremented and the token persisted before the
// code is returned; if the persist fails, the code is discarded and the
// in-memory counter restored so the next read matches what was durably
// written. For TOTP the result is always the current and the next window
// code, aligned to period boundaries from the UNIX epoch, with nothing to
// persist.
func (t *Token) Codes(ctx context.Context, vault Vault) ([]Code, error) {
	o, err := vault.Secret(ctx, t.Account)
	if err != nil {
		return nil, err
	}

	now := timeNow()

	switch t.Kind {
	case KindHOTP:
		code := Code{
			Value: o.Code(t.Counter),
			From:  now,
			To:    now.Add(time.Duration(t.Period) * time.Second),
		}
		t.Counter++
		if err := vault.SaveToken(ctx, t); err != nil {
			t.Counter--
			return nil, err
		}
		return []Code{code}, nil

	default:
		current := t.totpCode(o, now)
		next := t.totpCode(o, now.Add(time.Duration(t.Period)*time.Second))
		return []Code{current, next}, nil
	}
}

func (t *Token) totpCode(o *otp.OTP, when time.Time) Code {
	window := when.Unix() / t.Period
	start := time.Unix(window*t.Period, 0)
	return Code{
		Value: o.Code(window),
		From:  start,
		To:    start.Add(time.Duration(t.Period) * time.Second),
	}
}

// BestCode picks the single code most useful to hand the user right now.
// For HOTP that is the one generated code. For TOTP the current code is
// returned while strictly more than 3 seconds of its window remain,
// otherwise the next one, so the user does not paste a code that expires
// mid-flight. At exactly 3 seconds remaining the next code is chosen.
func (t *Token) BestCode(ctx context.Context, vault Vault) (*Code, error) {
	codes, err := t.Codes(ctx, vault)
	if err != nil {
		return nil, err
	}
	if len(codes) == 0 {
		return nil, nil
	}

	if t.Kind == KindHOTP {
		return &codes[0], nil
	}

	current := codes[0]
	if current.To.Sub(timeNow()) > 3*time.Second {
		return &current, nil
	}
	last := codes[len(codes)-1]
	return &last, nil
}

// AsURL reconstructs a shareable otpauth:// URL from the paired secret's
// exported parameters plus the token's period and issuer. Fails if the
// secret cannot be resolved or exports no parameters.
func (t *Token) AsURL(ctx context.Context, vault Vault) (*url.URL, error) {
	o, err := vault.Secret(ctx, t.Account)
	if err != nil {
		return nil, err
	}

	params := o.URLParameters()
	if params == nil {
		return nil, fmt.Errorf("%w: secret has no exportable parameters", common.ErrInvalidAlgorithm)
	}
	params.Set("period", strconv.FormatInt(t.Period, 10))
	params.Set("issuer", t.Issuer)

	return &url.URL{
		Scheme:   "otpauth",
		Host:     t.Kind.String(),
		Path:     "/" + t.Issuer + ":" + t.Label,
		RawQuery: params.Encode(),
	}, nil
}
