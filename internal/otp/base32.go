package otp

import (
	"encoding/base32"
	"fmt"
	"strings"

	"otpkeeper/internal/common"
)

// unpadded RFC 4648 alphabet, the encoding used inside otpauth:// URIs
var base32Codec = base32.StdEncoding.WithPadding(base32.NoPadding)

// Base32Decode converts a Base32 string into raw bytes. Decoding is
// case-insensitive and tolerates trailing '=' padding, since secrets copied
// from other tools come in both forms. Characters outside the alphabet fail
// with ErrInvalidEncoding.
func Base32Decode(text string) ([]byte, error) {
	normalized := strings.TrimRight(strings.ToUpper(text), "=")

	data, err := base32Codec.DecodeString(normalized)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", common.ErrInvalidEncoding, err)
	}
	return data, nil
}

// Base32Encode converts raw bytes into the canonical uppercase Base32 form
// without padding.
func Base32Encode(data []byte) string {
	return base32Codec.EncodeToString(data)
}
