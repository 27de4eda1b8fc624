// Package otp implements the HOTP code engine from RFC 4226: a decoded
// shared secret plus a 64-bit counter is turned into a fixed-width decimal
// code via HMAC and dynamic truncation.
package otp

import (
	"crypto/hmac"
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/binary"
	"fmt"
	"hash"
	"net/url"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"otpkeeper/internal/common"
)

// Algorithm identifies the HMAC hash function of a secret record.
type Algorithm string

const (
	AlgorithmMD5    Algorithm = "MD5"
	AlgorithmSHA1   Algorithm = "SHA1"
	AlgorithmSHA224 Algorithm = "SHA224"
	AlgorithmSHA256 Algorithm = "SHA256"
	AlgorithmSHA384 Algorithm = "SHA384"
	AlgorithmSHA512 Algorithm = "SHA512"
)

// ParseAlgorithm maps a case-insensitive algorithm name onto one of the six
// supported values. Unknown names fail with ErrInvalidAlgorithm.
func ParseAlgorithm(name string) (Algorithm, error) {
	switch Algorithm(strings.ToUpper(name)) {
	case AlgorithmMD5:
		return AlgorithmMD5, nil
	case AlgorithmSHA1:
		return AlgorithmSHA1, nil
	case AlgorithmSHA224:
		return AlgorithmSHA224, nil
	case AlgorithmSHA256:
		return AlgorithmSHA256, nil
	case AlgorithmSHA384:
		return AlgorithmSHA384, nil
	case AlgorithmSHA512:
		return AlgorithmSHA512, nil
	default:
		return "", fmt.Errorf("%w: %q", common.ErrInvalidAlgorithm, name)
	}
}

func (a Algorithm) hashFunc() func() hash.Hash {
	switch a {
	case AlgorithmMD5:
		return md5.New
	case AlgorithmSHA1:
		return sha1.New
	case AlgorithmSHA224:
		return sha256.New224
	case AlgorithmSHA256:
		return sha256.New
	case AlgorithmSHA384:
		return sha512.New384
	case AlgorithmSHA512:
		return sha512.New
	default:
		return nil
	}
}

// DigestSize returns the output length in bytes of the algorithm's hash,
// or 0 for an unknown algorithm.
func (a Algorithm) DigestSize() int {
	if f := a.hashFunc(); f != nil {
		return f().Size()
	}
	return 0
}

// OTP is a stored secret record. An OTP and its paired token record share
// the same account identifier and are always created and erased together.
type OTP struct {
	Account    string    `json:"account"`
	Algorithm  Algorithm `json:"algorithm"`
	DigestSize int       `json:"digest_size"`
	Secret     []byte    `json:"secret"`
	Digits     int       `json:"digits"`
}

// FromQuery builds a new secret record from otpauth:// query parameters.
// Parameter names and the algorithm value are matched case-insensitively.
// A fresh account identifier is assigned; the caller owns persisting it.
//
// Fails when the secret is missing, empty, or not valid Base32, when the
// algorithm name is not one of the six supported values, or when digits is
// neither 6 nor 8.
func FromQuery(query url.Values) (*OTP, error) {
	params := foldKeys(query)

	secretText := params.Get("secret")
	if secretText == "" {
		return nil, common.ErrMissingSecret
	}
	secret, err := Base32Decode(secretText)
	if err != nil {
		return nil, err
	}
	if len(secret) == 0 {
		return nil, common.ErrMissingSecret
	}

	algorithm := AlgorithmSHA1
	if name := params.Get("algorithm"); name != "" {
		algorithm, err = ParseAlgorithm(name)
		if err != nil {
			return nil, err
		}
	}

	digits := 6
	if text := params.Get("digits"); text != "" {
		digits, err = strconv.Atoi(text)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", common.ErrInvalidDigits, text)
		}
	}
	if digits != 6 && digits != 8 {
		return nil, fmt.Errorf("%w: %d", common.ErrInvalidDigits, digits)
	}

	return &OTP{
		Account:    uuid.NewString(),
		Algorithm:  algorithm,
		DigestSize: algorithm.DigestSize(),
		Secret:     secret,
		Digits:     digits,
	}, nil
}

// foldKeys lowercases parameter names so lookups match regardless of the
// producer's casing.
func foldKeys(query url.Values) url.Values {
	folded := make(url.Values, len(query))
	for key, values := range query {
		lower := strings.ToLower(key)
		folded[lower] = append(folded[lower], values...)
	}
	return folded
}

// Code computes the decimal code for the given counter per RFC 4226 §5.3:
// HMAC over the big-endian counter bytes, dynamic truncation to 31 bits,
// reduced modulo 10^digits and zero-padded to exactly Digits characters.
//
// Code has no side effects and is safe for concurrent readers.
func (o *OTP) Code(counter int64) string {
	var message [8]byte
	binary.BigEndian.PutUint64(message[:], uint64(counter))

	mac := hmac.New(o.Algorithm.hashFunc(), o.Secret)
	mac.Write(message[:])
	digest := mac.Sum(nil)

	// The offset nibble ranges over 0..15, but an MD5 digest is only 16
	// bytes, so offsets past len-4 must be clamped for the 4-byte word to
	// fit. RFC 4226 assumes a 20-byte digest and leaves this case open.
	offset := int(digest[len(digest)-1] & 0x0F)
	if offset > len(digest)-4 {
		offset = len(digest) - 4
	}
	value := binary.BigEndian.Uint32(digest[offset:offset+4]) & 0x7FFFFFFF

	modulus := uint32(1)
	for i := 0; i < o.Digits; i++ {
		modulus *= 10
	}

	return fmt.Sprintf("%0*d", o.Digits, value%modulus)
}

// URLParameters reconstructs the canonical query parameters for exporting
// the record inside an otpauth:// URI. Returns nil if the algorithm is not
// one of the known values, which cannot happen for records built through
// FromQuery.
func (o *OTP) URLParameters() url.Values {
	if o.Algorithm.hashFunc() == nil {
		return nil
	}

	params := url.Values{}
	params.Set("digits", strconv.Itoa(o.Digits))
	params.Set("algorithm", string(o.Algorithm))
	params.Set("secret", Base32Encode(o.Secret))
	return params
}
