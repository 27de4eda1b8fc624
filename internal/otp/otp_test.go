package otp

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"otpkeeper/internal/common"
)

// Base32 form of the RFC 4226 reference secret "12345678901234567890".
const rfcSecret = "GEZDGNBVGY3TQOJQGEZDGNBVGY3TQOJQ"

func newTestOTP(t *testing.T, params string) *OTP {
	t.Helper()
	query, err := url.ParseQuery(params)
	require.NoError(t, err)
	o, err := FromQuery(query)
	require.NoError(t, err)
	return o
}

func TestCode_RFC4226Vectors(t *testing.T) {
	o := newTestOTP(t, "secret="+rfcSecret)

	expected := []string{
		"755224", "287082", "359152", "969429", "338314",
		"254676", "287922", "162583", "399871", "520489",
	}
	for counter, want := range expected {
		assert.Equal(t, want, o.Code(int64(counter)), "counter %d", counter)
	}
}

func TestCode_AllAlgorithms(t *testing.T) {
	// Codes for counters 0..9 over the RFC 4226 reference secret. The SHA1
	// row is Appendix D verbatim; the MD5 row covers truncation offsets that
	// fall past the 16-byte digest (counters 0, 2, 4 and 7) and would read
	// out of range without clamping.
	vectors := map[Algorithm][]string{
		AlgorithmMD5: {
			"671151", "532013", "154574", "848120", "208349",
			"933450", "370042", "043485", "041625", "147077",
		},
		AlgorithmSHA1: {
			"755224", "287082", "359152", "969429", "338314",
			"254676", "287922", "162583", "399871", "520489",
		},
		AlgorithmSHA224: {
			"893239", "812810", "291286", "303565", "943696",
			"550023", "794718", "708553", "957603", "641410",
		},
		AlgorithmSHA256: {
			"875740", "247374", "254785", "496144", "480556",
			"697997", "191609", "579288", "895912", "184989",
		},
		AlgorithmSHA384: {
			"502125", "080675", "698930", "317355", "431422",
			"665174", "446854", "165020", "926248", "408529",
		},
		AlgorithmSHA512: {
			"125165", "342147", "730102", "778726", "937510",
			"848329", "266680", "588359", "039399", "643409",
		},
	}

	for alg, expected := range vectors {
		t.Run(string(alg), func(t *testing.T) {
			o := newTestOTP(t, "secret="+rfcSecret+"&algorithm="+string(alg))
			for counter, want := range expected {
				assert.Equal(t, want, o.Code(int64(counter)), "counter %d", counter)
			}
		})
	}
}

func TestCode_EightDigits(t *testing.T) {
	o := newTestOTP(t, "secret="+rfcSecret+"&digits=8")

	// same vector with the two extra leading digits retained
	assert.Equal(t, "94287082", o.Code(1))
}

func TestCode_ZeroPadded(t *testing.T) {
	o := newTestOTP(t, "secret="+rfcSecret)

	for counter := int64(0); counter < 50; counter++ {
		assert.Len(t, o.Code(counter), 6, "counter %d", counter)
	}
}

func TestFromQuery_Defaults(t *testing.T) {
	o := newTestOTP(t, "secret="+rfcSecret)

	assert.Equal(t, AlgorithmSHA1, o.Algorithm)
	assert.Equal(t, 20, o.DigestSize)
	assert.Equal(t, 6, o.Digits)
	assert.NotEmpty(t, o.Account)
	assert.Equal(t, []byte("12345678901234567890"), o.Secret)
}

func TestFromQuery_UniqueAccounts(t *testing.T) {
	o1 := newTestOTP(t, "secret="+rfcSecret)
	o2 := newTestOTP(t, "secret="+rfcSecret)
	assert.NotEqual(t, o1.Account, o2.Account)
}

func TestFromQuery_CaseInsensitiveParams(t *testing.T) {
	o := newTestOTP(t, "SECRET="+rfcSecret+"&Algorithm=sha256&DIGITS=8")

	assert.Equal(t, AlgorithmSHA256, o.Algorithm)
	assert.Equal(t, 32, o.DigestSize)
	assert.Equal(t, 8, o.Digits)
}

func TestFromQuery_Failures(t *testing.T) {
	tests := []struct {
		name   string
		params string
		want   error
	}{
		{name: "missing secret", params: "algorithm=SHA1", want: common.ErrMissingSecret},
		{name: "empty secret", params: "secret=", want: common.ErrMissingSecret},
		{name: "invalid base32", params: "secret=AB1!", want: common.ErrInvalidEncoding},
		{name: "unknown algorithm", params: "secret=" + rfcSecret + "&algorithm=SHA3", want: common.ErrInvalidAlgorithm},
		{name: "digits not 6 or 8", params: "secret=" + rfcSecret + "&digits=7", want: common.ErrInvalidDigits},
		{name: "digits not a number", params: "secret=" + rfcSecret + "&digits=six", want: common.ErrInvalidDigits},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			query, err := url.ParseQuery(tc.params)
			require.NoError(t, err)
			_, err = FromQuery(query)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestFromQuery_IgnoresUnknownParams(t *testing.T) {
	o := newTestOTP(t, "secret="+rfcSecret+"&frobnicate=yes")
	assert.Equal(t, 6, o.Digits)
}

func TestParseAlgorithm_DigestSizes(t *testing.T) {
	sizes := map[Algorithm]int{
		AlgorithmMD5:    16,
		AlgorithmSHA1:   20,
		AlgorithmSHA224: 28,
		AlgorithmSHA256: 32,
		AlgorithmSHA384: 48,
		AlgorithmSHA512: 64,
	}
	for alg, want := range sizes {
		parsed, err := ParseAlgorithm(string(alg))
		require.NoError(t, err)
		assert.Equal(t, want, parsed.DigestSize(), "algorithm %s", alg)
	}
}

func TestURLParameters(t *testing.T) {
	o := newTestOTP(t, "secret="+rfcSecret+"&algorithm=sha512&digits=8")

	params := o.URLParameters()
	require.NotNil(t, params)
	assert.Equal(t, "8", params.Get("digits"))
	assert.Equal(t, "SHA512", params.Get("algorithm"))
	assert.Equal(t, rfcSecret, params.Get("secret"))
}

func TestURLParameters_UnknownAlgorithm(t *testing.T) {
	o := &OTP{Account: "x", Algorithm: "BLAKE3", Secret: []byte("s"), Digits: 6}
	assert.Nil(t, o.URLParameters())
}

func TestURLParameters_RoundTrip(t *testing.T) {
	o := newTestOTP(t, "secret="+rfcSecret+"&algorithm=sha256&digits=8")

	restored, err := FromQuery(o.URLParameters())
	require.NoError(t, err)

	assert.Equal(t, o.Algorithm, restored.Algorithm)
	assert.Equal(t, o.Digits, restored.Digits)
	assert.Equal(t, o.Secret, restored.Secret)
	assert.Equal(t, o.Code(42), restored.Code(42))
}
