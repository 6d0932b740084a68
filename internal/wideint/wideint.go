// Package wideint converts 64-bit hexadecimal values to exact decimal text.
//
// Values are held as digit sequences in an arbitrary base, least significant
// digit first, and combined with schoolbook addition. Multiplication by a
// machine integer is done by doubling and adding, so no intermediate result
// ever needs more than a machine word per digit. This keeps conversions exact
// for the full unsigned and signed 64-bit range regardless of the width of the
// host's native numbers.
package wideint

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// MaxBase is the largest supported base (digits 0-9 then a-z).
const MaxBase = 36

// fastPathBits is the largest significant width converted with native
// arithmetic instead of digit arithmetic.
const fastPathBits = 52

var (
	// ErrInvalidBase indicates a base outside [2, MaxBase].
	ErrInvalidBase = errors.New("invalid base")

	// ErrInvalidDigit indicates a character that is not a digit in the requested base.
	ErrInvalidDigit = errors.New("invalid digit")
)

// Digits is a little-endian digit sequence. Every element is smaller than the
// base the sequence was built for.
type Digits []int

// Add returns x+y in the given base.
// The result is max(len(x), len(y)) digits long, plus one for a final carry.
func Add(x, y Digits, base int) Digits {
	n := max(len(x), len(y))
	z := make(Digits, 0, n+1)
	carry := 0
	for i := 0; i < n || carry != 0; i++ {
		zi := carry
		if i < len(x) {
			zi += x[i]
		}
		if i < len(y) {
			zi += y[i]
		}
		z = append(z, zi%base)
		carry = zi / base
	}
	return z
}

// MulScalar returns n*x in the given base using double-and-add.
// A zero or negative n yields an empty sequence.
func MulScalar(n int, x Digits, base int) Digits {
	if n <= 0 {
		return Digits{}
	}
	var result Digits
	power := x
	for {
		if n&1 != 0 {
			result = Add(result, power, base)
		}
		n >>= 1
		if n == 0 {
			return result
		}
		power = Add(power, power, base)
	}
}

// Parse converts text in the given base into a digit sequence.
func Parse(s string, base int) (Digits, error) {
	if err := checkBase(base); err != nil {
		return nil, err
	}
	d := make(Digits, len(s))
	for i := 0; i < len(s); i++ {
		v, ok := digitValue(s[i])
		if !ok || v >= base {
			return nil, fmt.Errorf("%w: %q in base %d", ErrInvalidDigit, s[i], base)
		}
		d[len(s)-1-i] = v
	}
	return d, nil
}

// Format renders a digit sequence, most significant digit first, without
// leading zeros. An empty or all-zero sequence renders as "0".
func Format(d Digits, base int) string {
	hi := len(d) - 1
	for hi >= 0 && d[hi] == 0 {
		hi--
	}
	if hi < 0 {
		return "0"
	}
	var b strings.Builder
	b.Grow(hi + 1)
	for i := hi; i >= 0; i-- {
		b.WriteString(strconv.FormatInt(int64(d[i]), base))
	}
	return b.String()
}

// ConvertBase re-expresses a number written in fromBase using toBase.
// Each input digit contributes digit*fromBase^i, accumulated in the target base.
func ConvertBase(s string, fromBase, toBase int) (string, error) {
	if err := checkBase(toBase); err != nil {
		return "", err
	}
	digits, err := Parse(s, fromBase)
	if err != nil {
		return "", err
	}
	var out Digits
	power := Digits{1}
	for _, d := range digits {
		if d != 0 {
			out = Add(out, MulScalar(d, power, toBase), toBase)
		}
		power = MulScalar(fromBase, power, toBase)
	}
	return Format(out, toBase), nil
}

// TwosComplement negates s within its own digit count: every digit is
// complemented against base-1, one is added, and any carry out of the top
// digit is dropped. Leading zeros are preserved so the width is unchanged.
func TwosComplement(s string, base int) (string, error) {
	digits, err := Parse(s, base)
	if err != nil {
		return "", err
	}
	for i, d := range digits {
		digits[i] = base - 1 - d
	}
	neg := Add(digits, Digits{1}, base)
	if len(neg) > len(s) {
		neg = neg[:len(s)]
	}
	var b strings.Builder
	b.Grow(len(neg))
	for i := len(neg) - 1; i >= 0; i-- {
		b.WriteString(strconv.FormatInt(int64(neg[i]), base))
	}
	return b.String(), nil
}

// HexToDecimal converts hexadecimal text to decimal text.
// When signed is set, the top bit of the given width is the sign bit, so
// "ffffffffffffffff" is -1 and "8000000000000000" is the most negative 64-bit
// value. Values of at most 52 significant bits that are non-negative go
// through native arithmetic.
func HexToDecimal(hex string, signed bool) (string, error) {
	if hex == "" {
		return "", fmt.Errorf("%w: empty value", ErrInvalidDigit)
	}
	top, ok := digitValue(hex[0])
	if !ok || top >= 16 {
		return "", fmt.Errorf("%w: %q in base 16", ErrInvalidDigit, hex[0])
	}
	negative := signed && top >= 8

	significant := strings.TrimLeft(hex, "0")
	if !negative && len(significant)*4 <= fastPathBits {
		if significant == "" {
			return "0", nil
		}
		v, err := strconv.ParseUint(significant, 16, 64)
		if err != nil {
			return "", fmt.Errorf("%w: %s", ErrInvalidDigit, err)
		}
		return strconv.FormatUint(v, 10), nil
	}

	if negative {
		var err error
		if hex, err = TwosComplement(hex, 16); err != nil {
			return "", err
		}
	}
	dec, err := ConvertBase(hex, 16, 10)
	if err != nil {
		return "", err
	}
	if negative {
		return "-" + dec, nil
	}
	return dec, nil
}

func checkBase(base int) error {
	if base < 2 || base > MaxBase {
		return fmt.Errorf("%w: %d", ErrInvalidBase, base)
	}
	return nil
}

func digitValue(c byte) (int, bool) {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0'), true
	case c >= 'a' && c <= 'z':
		return int(c-'a') + 10, true
	case c >= 'A' && c <= 'Z':
		return int(c-'A') + 10, true
	}
	return 0, false
}
