package wideint

import (
	"fmt"
	"math/rand"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdd(t *testing.T) {
	tests := []struct {
		name string
		x, y Digits
		base int
		want Digits
	}{
		{"empty", nil, nil, 10, Digits{}},
		{"no carry", Digits{1, 2}, Digits{3}, 10, Digits{4, 2}},
		{"final carry", Digits{9, 9}, Digits{1}, 10, Digits{0, 0, 1}},
		{"hex carry", Digits{15}, Digits{1}, 16, Digits{0, 1}},
		{"longer y", Digits{1}, Digits{0, 0, 7}, 10, Digits{1, 0, 7}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Add(tt.x, tt.y, tt.base))
		})
	}
}

func TestMulScalar(t *testing.T) {
	assert.Equal(t, Digits{}, MulScalar(0, Digits{5}, 10))
	assert.Equal(t, Digits{}, MulScalar(-3, Digits{5}, 10))
	assert.Equal(t, "1234567890", Format(MulScalar(10, Digits{9, 8, 7, 6, 5, 4, 3, 2, 1}, 10), 10))
	assert.Equal(t, "ff", Format(MulScalar(15, Digits{1, 1}, 16), 16))
	assert.Equal(t, "65536", Format(MulScalar(256, Digits{6, 5, 2}, 10), 10))
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "0", Format(nil, 10))
	assert.Equal(t, "0", Format(Digits{0, 0}, 16))
	assert.Equal(t, "10", Format(Digits{0, 1, 0, 0}, 10))
}

func TestParseRejectsBadDigits(t *testing.T) {
	_, err := Parse("12a", 10)
	assert.ErrorIs(t, err, ErrInvalidDigit)

	_, err = Parse("1", 1)
	assert.ErrorIs(t, err, ErrInvalidBase)
}

func TestConvertBase(t *testing.T) {
	tests := []struct {
		in       string
		from, to int
		want     string
	}{
		{"ff", 16, 10, "255"},
		{"255", 10, 16, "ff"},
		{"0", 10, 16, "0"},
		{"000", 16, 10, "0"},
		{"0010", 2, 10, "2"},
		{"ffffffffffffffff", 16, 10, "18446744073709551615"},
		{"18446744073709551615", 10, 16, "ffffffffffffffff"},
		{"zz", 36, 10, "1295"},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s_%d_to_%d", tt.in, tt.from, tt.to), func(t *testing.T) {
			got, err := ConvertBase(tt.in, tt.from, tt.to)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTwosComplement(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"ffffffffffffffff", "0000000000000001"},
		{"8000000000000000", "8000000000000000"},
		{"0000000000000000", "0000000000000000"},
		{"fffffffffffffffe", "0000000000000002"},
		{"ff", "01"},
	}
	for _, tt := range tests {
		got, err := TwosComplement(tt.in, 16)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestHexToDecimal(t *testing.T) {
	tests := []struct {
		hex    string
		signed bool
		want   string
	}{
		{"ffffffffffffffff", false, "18446744073709551615"},
		{"ffffffffffffffff", true, "-1"},
		{"8000000000000000", true, "-9223372036854775808"},
		{"8000000000000000", false, "9223372036854775808"},
		{"7fffffffffffffff", true, "9223372036854775807"},
		{"0000000000000000", true, "0"},
		{"000000000000002a", true, "42"},
		{"000fffffffffffff", true, "4503599627370495"},
		{"001fffffffffffff", true, "9007199254740991"},
		{"FFFFFFFFFFFFFFFE", true, "-2"},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s_%v", tt.hex, tt.signed), func(t *testing.T) {
			got, err := HexToDecimal(tt.hex, tt.signed)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestHexToDecimalErrors(t *testing.T) {
	_, err := HexToDecimal("", true)
	assert.ErrorIs(t, err, ErrInvalidDigit)

	_, err = HexToDecimal("12g4", false)
	assert.ErrorIs(t, err, ErrInvalidDigit)
}

func TestHexToDecimalMatchesNative(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 500; i++ {
		v := rng.Uint64() >> uint(rng.Intn(64))
		hex := fmt.Sprintf("%016x", v)

		unsigned, err := HexToDecimal(hex, false)
		require.NoError(t, err)
		assert.Equal(t, strconv.FormatUint(v, 10), unsigned, hex)

		signed, err := HexToDecimal(hex, true)
		require.NoError(t, err)
		assert.Equal(t, strconv.FormatInt(int64(v), 10), signed, hex)
	}
}

func TestConvertBaseRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 500; i++ {
		v := rng.Uint64() >> uint(rng.Intn(64))
		hex := fmt.Sprintf("%016x", v)

		dec, err := HexToDecimal(hex, false)
		require.NoError(t, err)

		back, err := ConvertBase(dec, 10, 16)
		require.NoError(t, err)
		assert.Equal(t, strconv.FormatUint(v, 16), back, hex)
	}
}
