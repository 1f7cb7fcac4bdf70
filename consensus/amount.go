package consensus

import (
	"math/big"

	"encoding/binary"
)

// AmountDecimalExponent is the number of decimal places the display
// unit is scaled by (10^AmountDecimalExponent raw units == 1 display
// unit), matching the original's amount-formatting convention
// (rai/common/numbers.cpp).
const AmountDecimalExponent = 30

// Amount is a 128-bit unsigned balance, serialized big-endian
// (section 3).
type Amount struct {
	Hi uint64 // most-significant 64 bits
	Lo uint64 // least-significant 64 bits
}

// ZeroAmount is the additive identity.
var ZeroAmount = Amount{}

// AmountFromUint64 builds an Amount whose value fits in 64 bits.
func AmountFromUint64(v uint64) Amount { return Amount{Lo: v} }

// Cmp returns -1, 0, or 1 as a is less than, equal to, or greater than b.
func (a Amount) Cmp(b Amount) int {
	if a.Hi != b.Hi {
		if a.Hi < b.Hi {
			return -1
		}
		return 1
	}
	switch {
	case a.Lo < b.Lo:
		return -1
	case a.Lo > b.Lo:
		return 1
	default:
		return 0
	}
}

// IsZero reports whether a is zero.
func (a Amount) IsZero() bool { return a.Hi == 0 && a.Lo == 0 }

// Add returns a+b and whether the addition overflowed 128 bits.
func (a Amount) Add(b Amount) (Amount, bool) {
	lo, carry := bits64Add(a.Lo, b.Lo, 0)
	hi, carry2 := bits64Add(a.Hi, b.Hi, carry)
	return Amount{Hi: hi, Lo: lo}, carry2 != 0
}

// Sub returns a-b and whether the subtraction underflowed.
func (a Amount) Sub(b Amount) (Amount, bool) {
	lo, borrow := bits64Sub(a.Lo, b.Lo, 0)
	hi, borrow2 := bits64Sub(a.Hi, b.Hi, borrow)
	return Amount{Hi: hi, Lo: lo}, borrow2 != 0
}

func bits64Add(x, y, carryIn uint64) (sum, carryOut uint64) {
	s := x + y + carryIn
	carryOut = 0
	if s < x || (carryIn == 1 && s == x) {
		carryOut = 1
	}
	return s, carryOut
}

func bits64Sub(x, y, borrowIn uint64) (diff, borrowOut uint64) {
	d := x - y - borrowIn
	borrowOut = 0
	if x < y || (x == y && borrowIn == 1) {
		borrowOut = 1
	}
	return d, borrowOut
}

// Bytes returns the 16-byte big-endian encoding of a.
func (a Amount) Bytes() [16]byte {
	var out [16]byte
	binary.BigEndian.PutUint64(out[0:8], a.Hi)
	binary.BigEndian.PutUint64(out[8:16], a.Lo)
	return out
}

// AmountFromBytes decodes a 16-byte big-endian amount.
func AmountFromBytes(b [16]byte) Amount {
	return Amount{
		Hi: binary.BigEndian.Uint64(b[0:8]),
		Lo: binary.BigEndian.Uint64(b[8:16]),
	}
}

// BigInt returns the value of a as a *big.Int, for display and
// decimal-scale formatting only; the wire/store representation stays
// the two-uint64 form above.
func (a Amount) BigInt() *big.Int {
	v := new(big.Int).Lsh(new(big.Int).SetUint64(a.Hi), 64)
	return v.Or(v, new(big.Int).SetUint64(a.Lo))
}

// String formats a at AmountDecimalExponent decimal places, e.g. the
// raw amount "1000000000000000000000000000000" at exponent 30 renders
// "1.0".
func (a Amount) String() string {
	v := a.BigInt()
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(AmountDecimalExponent), nil)
	whole := new(big.Int)
	frac := new(big.Int)
	whole.QuoRem(v, scale, frac)
	fracStr := frac.String()
	for len(fracStr) < AmountDecimalExponent {
		fracStr = "0" + fracStr
	}
	// Trim trailing zeros but keep at least one fractional digit.
	end := len(fracStr)
	for end > 1 && fracStr[end-1] == '0' {
		end--
	}
	return whole.String() + "." + fracStr[:end]
}

// ParseAmountDecimalString parses a decimal string at
// AmountDecimalExponent decimal places back into an Amount. It is the
// inverse of String for values the JSON wire form can carry as a
// decimal-string scalar (section 6.2: "All numeric scalars are decimal
// strings").
func ParseAmountDecimalString(s string) (Amount, error) {
	whole, frac, hasFrac := cutOnce(s, '.')
	w, ok := new(big.Int).SetString(whole, 10)
	if !ok {
		return Amount{}, xerrf(ERR_BALANCE_INVALID, "amount: bad integer part %q", s)
	}
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(AmountDecimalExponent), nil)
	v := new(big.Int).Mul(w, scale)
	if hasFrac {
		if len(frac) > AmountDecimalExponent {
			return Amount{}, xerrf(ERR_BALANCE_INVALID, "amount: too many fractional digits in %q", s)
		}
		for len(frac) < AmountDecimalExponent {
			frac += "0"
		}
		f, ok := new(big.Int).SetString(frac, 10)
		if !ok {
			return Amount{}, xerrf(ERR_BALANCE_INVALID, "amount: bad fractional part %q", s)
		}
		v.Add(v, f)
	}
	if v.Sign() < 0 || v.BitLen() > 128 {
		return Amount{}, xerrf(ERR_BALANCE_INVALID, "amount: out of range %q", s)
	}
	var b [16]byte
	v.FillBytes(b[:])
	return AmountFromBytes(b), nil
}

func cutOnce(s string, sep byte) (before, after string, found bool) {
	for i := 0; i < len(s); i++ {
		if s[i] == sep {
			return s[:i], s[i+1:], true
		}
	}
	return s, "", false
}
