package values

import (
	"bytes"
	"testing"
)

func TestArithmeticWraps(t *testing.T) {
	tests := []struct {
		name     string
		got      Value
		expected uint64
	}{
		{"add", FromUint64(3, 8).Add(FromUint64(4, 8)), 7},
		{"add wrap", FromUint64(255, 8).Add(FromUint64(1, 8)), 0},
		{"sub wrap", FromUint64(0, 8).Sub(FromUint64(1, 8)), 255},
		{"mul wrap", FromUint64(16, 8).Mul(FromUint64(16, 8)), 0},
		{"and", FromUint64(0b1100, 4).And(FromUint64(0b1010, 4)), 0b1000},
		{"or", FromUint64(0b1100, 4).Or(FromUint64(0b1010, 4)), 0b1110},
		{"xor", FromUint64(0b1100, 4).Xor(FromUint64(0b1010, 4)), 0b0110},
		{"not", FromUint64(0b1100, 4).Not(), 0b0011},
		{"shl", FromUint64(1, 8).Shl(FromUint64(3, 8)), 8},
		{"shl overflow", FromUint64(1, 8).Shl(FromUint64(9, 8)), 0},
		{"shr", FromUint64(0x80, 8).ShrU(FromUint64(7, 8)), 1},
		{"sra", FromUint64(0x80, 8).ShrS(FromUint64(7, 8)), 0xff},
		{"divu", FromUint64(42, 8).DivU(FromUint64(5, 8)), 8},
		{"modu", FromUint64(42, 8).ModU(FromUint64(5, 8)), 2},
		{"sqrt", FromUint64(17, 8).SqrtU(), 4},
	}
	for _, tt := range tests {
		n, ok := tt.got.Uint64()
		if !ok {
			t.Fatalf("%s - result undefined, expected=%d", tt.name, tt.expected)
		}
		if n != tt.expected {
			t.Errorf("%s - wrong result. expected=%d, got=%d", tt.name, tt.expected, n)
		}
	}
}

func TestUndefinedPropagation(t *testing.T) {
	u := Undef(8)
	d := FromUint64(7, 8)

	for name, got := range map[string]Value{
		"add":    u.Add(d),
		"sub":    d.Sub(u),
		"and":    u.And(u),
		"not":    u.Not(),
		"div0":   d.DivU(Zero(8)),
		"shl":    d.Shl(u),
		"concat": u.Concat(d),
	} {
		if got.Defined() {
			t.Errorf("%s - expected undefined result, got=%s", name, got)
		}
	}
	if got := u.Concat(d).Width(); got != 16 {
		t.Errorf("concat width wrong. expected=16, got=%d", got)
	}
}

func TestSignedInterpretation(t *testing.T) {
	v := FromInt64(-3, 8)
	if got := v.Signed().Int64(); got != -3 {
		t.Fatalf("signed wrong. expected=-3, got=%d", got)
	}
	if got, _ := v.Uint64(); got != 253 {
		t.Fatalf("unsigned wrong. expected=253, got=%d", got)
	}
	if got := FromInt64(-1, 8).CmpS(FromUint64(1, 8)); got != -1 {
		t.Errorf("CmpS wrong. expected=-1, got=%d", got)
	}
	if got := FromInt64(-1, 8).CmpU(FromUint64(1, 8)); got != 1 {
		t.Errorf("CmpU wrong. expected=1, got=%d", got)
	}
	if got := FromInt64(-7, 8).DivS(FromInt64(2, 8)).Signed().Int64(); got != -3 {
		t.Errorf("DivS wrong. expected=-3, got=%d", got)
	}
	if got := FromInt64(-7, 8).ModS(FromInt64(2, 8)).Signed().Int64(); got != -1 {
		t.Errorf("ModS wrong. expected=-1, got=%d", got)
	}
}

func TestSliceExtend(t *testing.T) {
	v := FromUint64(0b10110100, 8)
	if got, _ := v.Slice(5, 2).Uint64(); got != 0b1101 {
		t.Errorf("slice wrong. expected=%b, got=%b", 0b1101, got)
	}
	if got, _ := v.ZeroExt(16).Uint64(); got != 0b10110100 {
		t.Errorf("zext wrong. got=%b", got)
	}
	if got := FromInt64(-4, 4).SignExt(8).Signed().Int64(); got != -4 {
		t.Errorf("sext wrong. expected=-4, got=%d", got)
	}
	if got, _ := v.ZeroExt(4).Uint64(); got != 0b0100 {
		t.Errorf("truncating zext wrong. got=%b", got)
	}
}

func TestEqual(t *testing.T) {
	if !FromUint64(5, 8).Equal(FromUint64(5, 8)) {
		t.Error("equal defined values reported unequal")
	}
	if FromUint64(5, 8).Equal(FromUint64(5, 9)) {
		t.Error("different widths reported equal")
	}
	if !Undef(8).Equal(Undef(8)) {
		t.Error("equal undefined values reported unequal")
	}
	if Undef(8).Equal(Zero(8)) {
		t.Error("undefined equals defined")
	}
}

func TestLEBytesRoundTrip(t *testing.T) {
	tests := []struct {
		v     uint64
		width uint
		bytes []byte
	}{
		{0x0102, 16, []byte{0x02, 0x01}},
		{0x5, 3, []byte{0x05}},
		{0xdeadbeef, 32, []byte{0xef, 0xbe, 0xad, 0xde}},
		{0x1ff, 9, []byte{0xff, 0x01}},
	}
	for _, tt := range tests {
		v := FromUint64(tt.v, tt.width)
		enc := v.LEBytes()
		if !bytes.Equal(enc, tt.bytes) {
			t.Errorf("encoding wrong for %#x. expected=%v, got=%v", tt.v, tt.bytes, enc)
		}
		back := FromLEBytes(enc, tt.width)
		if !back.Equal(v) {
			t.Errorf("round trip wrong for %#x. got=%s", tt.v, back)
		}
	}
}
