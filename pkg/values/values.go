// Package values implements the fixed-width bit-vector value carried by every
// port in a flattened program. A Value is either fully defined or fully
// undefined; arithmetic on an undefined operand propagates an undefined result
// of the correct width instead of failing. Widths above 64 bits are supported
// through math/big.
package values

import (
	"fmt"
	"math/big"
)

// Value is a fixed-width bit vector with an explicit defined/undefined state.
// The zero Value is a 0-wide undefined vector; construct real values with
// Undef, Zero, FromUint64, FromBig or FromLEBytes.
type Value struct {
	width uint
	def   bool
	bits  *big.Int // nil when undefined; otherwise normalized to width bits
}

// Undef returns an undefined value of the given width.
func Undef(width uint) Value {
	return Value{width: width}
}

// Zero returns a defined all-zero value of the given width.
func Zero(width uint) Value {
	return Value{width: width, def: true, bits: new(big.Int)}
}

// FromUint64 returns a defined value holding v truncated to width bits.
func FromUint64(v uint64, width uint) Value {
	return FromBig(new(big.Int).SetUint64(v), width)
}

// FromInt64 returns a defined value holding the two's-complement encoding of v
// truncated to width bits.
func FromInt64(v int64, width uint) Value {
	return FromBig(new(big.Int).SetInt64(v), width)
}

// FromBig returns a defined value holding b truncated to width bits. Negative
// inputs are interpreted as two's complement.
func FromBig(b *big.Int, width uint) Value {
	n := new(big.Int).Set(b)
	if n.Sign() < 0 {
		n.Add(n, new(big.Int).Lsh(big.NewInt(1), width))
	}
	return Value{width: width, def: true, bits: truncate(n, width)}
}

func truncate(b *big.Int, width uint) *big.Int {
	mask := new(big.Int).Lsh(big.NewInt(1), width)
	mask.Sub(mask, big.NewInt(1))
	return b.And(b, mask)
}

// Width reports the bit width of the value.
func (v Value) Width() uint { return v.width }

// Defined reports whether every bit of the value is defined.
func (v Value) Defined() bool { return v.def }

// Unsigned returns the value interpreted as an unsigned integer. The result is
// a fresh big.Int. Calling Unsigned on an undefined value panics; callers must
// check Defined first.
func (v Value) Unsigned() *big.Int {
	v.mustDefined("Unsigned")
	return new(big.Int).Set(v.bits)
}

// Signed returns the value interpreted as a two's-complement signed integer.
func (v Value) Signed() *big.Int {
	v.mustDefined("Signed")
	n := new(big.Int).Set(v.bits)
	if v.width > 0 && n.Bit(int(v.width-1)) == 1 {
		n.Sub(n, new(big.Int).Lsh(big.NewInt(1), v.width))
	}
	return n
}

// Uint64 returns the value as a uint64. It reports false if the value is
// undefined or does not fit.
func (v Value) Uint64() (uint64, bool) {
	if !v.def || !v.bits.IsUint64() {
		return 0, false
	}
	return v.bits.Uint64(), true
}

// IsZero reports whether the value is defined and every bit is zero.
func (v Value) IsZero() bool {
	return v.def && v.bits.Sign() == 0
}

// Equal reports whether two values have the same width and the same contents.
// Two undefined values of equal width are equal; an undefined value never
// equals a defined one.
func (v Value) Equal(o Value) bool {
	if v.width != o.width || v.def != o.def {
		return false
	}
	if !v.def {
		return true
	}
	return v.bits.Cmp(o.bits) == 0
}

func (v Value) String() string {
	if !v.def {
		return fmt.Sprintf("undef[%d]", v.width)
	}
	return fmt.Sprintf("%d[%d]", v.bits, v.width)
}

func (v Value) mustDefined(op string) {
	if !v.def {
		panic("values: " + op + " on undefined value")
	}
}

func (v Value) mustWidth(o Value, op string) {
	if v.width != o.width {
		panic(fmt.Sprintf("values: width mismatch in %s: %d vs %d", op, v.width, o.width))
	}
}

// binop applies f to two same-width operands, truncating the result to the
// operand width. An undefined operand yields an undefined result.
func (v Value) binop(o Value, op string, f func(z, a, b *big.Int) *big.Int) Value {
	v.mustWidth(o, op)
	if !v.def || !o.def {
		return Undef(v.width)
	}
	z := f(new(big.Int), v.bits, o.bits)
	return Value{width: v.width, def: true, bits: truncate(z, v.width)}
}

// Add returns v + o truncated to the common width (wrap-around overflow).
func (v Value) Add(o Value) Value {
	return v.binop(o, "Add", func(z, a, b *big.Int) *big.Int { return z.Add(a, b) })
}

// Sub returns v - o truncated to the common width (wrap-around underflow).
func (v Value) Sub(o Value) Value {
	return v.binop(o, "Sub", func(z, a, b *big.Int) *big.Int { return z.Sub(a, b) })
}

// Mul returns v * o truncated to the common width.
func (v Value) Mul(o Value) Value {
	return v.binop(o, "Mul", func(z, a, b *big.Int) *big.Int { return z.Mul(a, b) })
}

// DivU returns the unsigned quotient v / o. Division by zero yields an
// undefined result.
func (v Value) DivU(o Value) Value {
	v.mustWidth(o, "DivU")
	if !v.def || !o.def || o.bits.Sign() == 0 {
		return Undef(v.width)
	}
	return Value{width: v.width, def: true, bits: new(big.Int).Div(v.bits, o.bits)}
}

// ModU returns the unsigned remainder v % o. Division by zero yields an
// undefined result.
func (v Value) ModU(o Value) Value {
	v.mustWidth(o, "ModU")
	if !v.def || !o.def || o.bits.Sign() == 0 {
		return Undef(v.width)
	}
	return Value{width: v.width, def: true, bits: new(big.Int).Mod(v.bits, o.bits)}
}

// DivS returns the signed quotient v / o (truncated toward zero).
func (v Value) DivS(o Value) Value {
	v.mustWidth(o, "DivS")
	if !v.def || !o.def || o.bits.Sign() == 0 {
		return Undef(v.width)
	}
	q := new(big.Int).Quo(v.Signed(), o.Signed())
	return FromBig(q, v.width)
}

// ModS returns the signed remainder v % o (sign follows the dividend).
func (v Value) ModS(o Value) Value {
	v.mustWidth(o, "ModS")
	if !v.def || !o.def || o.bits.Sign() == 0 {
		return Undef(v.width)
	}
	r := new(big.Int).Rem(v.Signed(), o.Signed())
	return FromBig(r, v.width)
}

// And returns the bitwise AND of v and o.
func (v Value) And(o Value) Value {
	return v.binop(o, "And", func(z, a, b *big.Int) *big.Int { return z.And(a, b) })
}

// Or returns the bitwise OR of v and o.
func (v Value) Or(o Value) Value {
	return v.binop(o, "Or", func(z, a, b *big.Int) *big.Int { return z.Or(a, b) })
}

// Xor returns the bitwise XOR of v and o.
func (v Value) Xor(o Value) Value {
	return v.binop(o, "Xor", func(z, a, b *big.Int) *big.Int { return z.Xor(a, b) })
}

// Not returns the bitwise complement of v.
func (v Value) Not() Value {
	if !v.def {
		return Undef(v.width)
	}
	z := new(big.Int).Not(v.bits)
	z.Add(z, new(big.Int).Lsh(big.NewInt(1), v.width+1)) // make positive before masking
	return Value{width: v.width, def: true, bits: truncate(z, v.width)}
}

// Shl returns v shifted left by o bit positions, truncated to width. A shift
// amount at or above the width yields zero.
func (v Value) Shl(o Value) Value {
	v.mustWidth(o, "Shl")
	if !v.def || !o.def {
		return Undef(v.width)
	}
	n, ok := shiftAmount(o, v.width)
	if !ok {
		return Zero(v.width)
	}
	z := new(big.Int).Lsh(v.bits, n)
	return Value{width: v.width, def: true, bits: truncate(z, v.width)}
}

// ShrU returns v logically shifted right by o bit positions.
func (v Value) ShrU(o Value) Value {
	v.mustWidth(o, "ShrU")
	if !v.def || !o.def {
		return Undef(v.width)
	}
	n, ok := shiftAmount(o, v.width)
	if !ok {
		return Zero(v.width)
	}
	return Value{width: v.width, def: true, bits: new(big.Int).Rsh(v.bits, n)}
}

// ShrS returns v arithmetically shifted right by o bit positions, replicating
// the sign bit.
func (v Value) ShrS(o Value) Value {
	v.mustWidth(o, "ShrS")
	if !v.def || !o.def {
		return Undef(v.width)
	}
	n, ok := shiftAmount(o, v.width)
	if !ok {
		n = v.width
	}
	z := new(big.Int).Rsh(v.Signed(), n)
	return FromBig(z, v.width)
}

func shiftAmount(o Value, width uint) (uint, bool) {
	n, ok := o.Uint64()
	if !ok || n >= uint64(width) {
		return 0, false
	}
	return uint(n), true
}

// Slice returns bits hi..lo (inclusive) of v as a value of width hi-lo+1.
func (v Value) Slice(hi, lo uint) Value {
	if hi < lo || hi >= v.width {
		panic(fmt.Sprintf("values: Slice [%d:%d] out of range for width %d", hi, lo, v.width))
	}
	w := hi - lo + 1
	if !v.def {
		return Undef(w)
	}
	z := new(big.Int).Rsh(v.bits, lo)
	return Value{width: w, def: true, bits: truncate(z, w)}
}

// ZeroExt returns v zero-extended (or truncated) to the given width.
func (v Value) ZeroExt(width uint) Value {
	if !v.def {
		return Undef(width)
	}
	return Value{width: width, def: true, bits: truncate(new(big.Int).Set(v.bits), width)}
}

// SignExt returns v sign-extended (or truncated) to the given width.
func (v Value) SignExt(width uint) Value {
	if !v.def {
		return Undef(width)
	}
	return FromBig(v.Signed(), width)
}

// Concat returns the concatenation of v (high bits) and o (low bits).
func (v Value) Concat(o Value) Value {
	w := v.width + o.width
	if !v.def || !o.def {
		return Undef(w)
	}
	z := new(big.Int).Lsh(v.bits, o.width)
	z.Or(z, o.bits)
	return Value{width: w, def: true, bits: z}
}

// SqrtU returns the integer square root (floor) of v.
func (v Value) SqrtU() Value {
	if !v.def {
		return Undef(v.width)
	}
	return Value{width: v.width, def: true, bits: new(big.Int).Sqrt(v.bits)}
}

// CmpU compares two same-width values as unsigned integers, returning
// -1, 0 or +1. Both operands must be defined.
func (v Value) CmpU(o Value) int {
	v.mustWidth(o, "CmpU")
	v.mustDefined("CmpU")
	o.mustDefined("CmpU")
	return v.bits.Cmp(o.bits)
}

// CmpS compares two same-width values as two's-complement signed integers.
func (v Value) CmpS(o Value) int {
	v.mustWidth(o, "CmpS")
	return v.Signed().Cmp(o.Signed())
}

// NumBytes returns the number of bytes needed to hold a value of the given
// width in the data-dump payload encoding.
func NumBytes(width uint) int {
	return int((width + 7) / 8)
}

// LEBytes returns the little-endian byte encoding of v, NumBytes(width) bytes
// long, with padding bits in the final byte masked to zero. Encoding an
// undefined value panics.
func (v Value) LEBytes() []byte {
	v.mustDefined("LEBytes")
	out := make([]byte, NumBytes(v.width))
	be := v.bits.Bytes() // big-endian, no leading zeros
	for i := range be {
		out[i] = be[len(be)-1-i]
	}
	return out
}

// FromLEBytes decodes a little-endian byte string into a defined value of the
// given width. Padding bits beyond the width are discarded.
func FromLEBytes(b []byte, width uint) Value {
	be := make([]byte, len(b))
	for i := range b {
		be[i] = b[len(b)-1-i]
	}
	return Value{width: width, def: true, bits: truncate(new(big.Int).SetBytes(be), width)}
}
