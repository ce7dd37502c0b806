package prims

import (
	"fmt"

	"github.com/loomhdl/loom/pkg/flat"
	"github.com/loomhdl/loom/pkg/values"
)

// comb is the shared base of all stateless primitives: Commit and Done are
// no-ops and Reset re-evaluates.
type comb struct{}

func (comb) Commit(Reader) ([]Update, error) { return nil, nil }
func (comb) Done() bool                      { return true }

// constant always evaluates to a fixed value.
type constant struct {
	comb
	out flat.PortRef
	val values.Value
}

func newConst(ps portSet, d *flat.Descriptor) (Primitive, error) {
	out, err := ps.get(pOut)
	if err != nil {
		return nil, err
	}
	return &constant{out: out, val: *d.Init}, nil
}

func (c *constant) Eval(Reader) ([]Update, error) {
	return []Update{{c.out, c.val}}, nil
}

func (c *constant) Reset(r Reader) ([]Update, error) { return c.Eval(r) }

// undefGen always evaluates to an undefined value of its width.
type undefGen struct {
	comb
	out   flat.PortRef
	width uint
}

func newUndefGen(ps portSet, width uint) (Primitive, error) {
	out, err := ps.get(pOut)
	if err != nil {
		return nil, err
	}
	return &undefGen{out: out, width: width}, nil
}

func (u *undefGen) Eval(Reader) ([]Update, error) {
	return []Update{{u.out, values.Undef(u.width)}}, nil
}

func (u *undefGen) Reset(r Reader) ([]Update, error) { return u.Eval(r) }

// unary covers wires, negation and other one-input operators.
type unary struct {
	comb
	in, out flat.PortRef
	f       func(values.Value) values.Value
}

func newUnary(ps portSet, f func(values.Value) values.Value) (Primitive, error) {
	refs, err := ps.ports(pIn, pOut)
	if err != nil {
		return nil, err
	}
	return &unary{in: refs[0], out: refs[1], f: f}, nil
}

func (u *unary) Eval(r Reader) ([]Update, error) {
	return []Update{{u.out, u.f(r.Value(u.in))}}, nil
}

func (u *unary) Reset(r Reader) ([]Update, error) { return u.Eval(r) }

// binary covers two-operand arithmetic and logic operators.
type binary struct {
	comb
	left, right, out flat.PortRef
	f                func(values.Value, values.Value) values.Value
}

func newBinary(ps portSet, f func(values.Value, values.Value) values.Value) (Primitive, error) {
	refs, err := ps.ports(pLeft, pRight, pOut)
	if err != nil {
		return nil, err
	}
	return &binary{left: refs[0], right: refs[1], out: refs[2], f: f}, nil
}

func (b *binary) Eval(r Reader) ([]Update, error) {
	return []Update{{b.out, b.f(r.Value(b.left), r.Value(b.right))}}, nil
}

func (b *binary) Reset(r Reader) ([]Update, error) { return b.Eval(r) }

// mux selects between two same-width inputs on a single-bit condition. An
// undefined condition yields an undefined output.
type mux struct {
	comb
	cond, tru, fal, out flat.PortRef
	width               uint
}

func newMux(ps portSet, width uint) (Primitive, error) {
	refs, err := ps.ports(pCond, pTru, pFal, pOut)
	if err != nil {
		return nil, err
	}
	return &mux{cond: refs[0], tru: refs[1], fal: refs[2], out: refs[3], width: width}, nil
}

func (m *mux) Eval(r Reader) ([]Update, error) {
	cond := r.Value(m.cond)
	if !cond.Defined() {
		return []Update{{m.out, values.Undef(m.width)}}, nil
	}
	if cond.IsZero() {
		return []Update{{m.out, r.Value(m.fal)}}, nil
	}
	return []Update{{m.out, r.Value(m.tru)}}, nil
}

func (m *mux) Reset(r Reader) ([]Update, error) { return m.Eval(r) }

// resize covers slicing to low bits and zero/sign extension.
type resize struct {
	comb
	in, out flat.PortRef
	width   uint
	f       func(values.Value, uint) values.Value
}

func newResize(ps portSet, d *flat.Descriptor, f func(values.Value, uint) values.Value) (Primitive, error) {
	refs, err := ps.ports(pIn, pOut)
	if err != nil {
		return nil, err
	}
	return &resize{in: refs[0], out: refs[1], width: d.Width, f: f}, nil
}

func (s *resize) Eval(r Reader) ([]Update, error) {
	return []Update{{s.out, s.f(r.Value(s.in), s.width)}}, nil
}

func (s *resize) Reset(r Reader) ([]Update, error) { return s.Eval(r) }

// concat joins its left (high bits) and right (low bits) inputs.
type concat struct {
	comb
	left, right, out flat.PortRef
}

func newConcat(ps portSet, d *flat.Descriptor) (Primitive, error) {
	refs, err := ps.ports(pLeft, pRight, pOut)
	if err != nil {
		return nil, err
	}
	return &concat{left: refs[0], right: refs[1], out: refs[2]}, nil
}

func (c *concat) Eval(r Reader) ([]Update, error) {
	return []Update{{c.out, r.Value(c.left).Concat(r.Value(c.right))}}, nil
}

func (c *concat) Reset(r Reader) ([]Update, error) { return c.Eval(r) }

// comparator produces a single-bit result; undefined operands propagate an
// undefined bit rather than failing, the guard evaluator is the one place
// that demands definedness.
type comparator struct {
	comb
	left, right, out flat.PortRef
	test             func(values.Value, values.Value) bool
}

func newComparator(ps portSet, d *flat.Descriptor) (Primitive, error) {
	refs, err := ps.ports(pLeft, pRight, pOut)
	if err != nil {
		return nil, err
	}
	test, err := cmpTest(d.Op)
	if err != nil {
		return nil, err
	}
	return &comparator{left: refs[0], right: refs[1], out: refs[2], test: test}, nil
}

func cmpTest(op flat.Op) (func(values.Value, values.Value) bool, error) {
	switch op {
	case flat.OpEq:
		return func(a, b values.Value) bool { return a.CmpU(b) == 0 }, nil
	case flat.OpNeq:
		return func(a, b values.Value) bool { return a.CmpU(b) != 0 }, nil
	case flat.OpGt:
		return func(a, b values.Value) bool { return a.CmpU(b) > 0 }, nil
	case flat.OpLt:
		return func(a, b values.Value) bool { return a.CmpU(b) < 0 }, nil
	case flat.OpGe:
		return func(a, b values.Value) bool { return a.CmpU(b) >= 0 }, nil
	case flat.OpLe:
		return func(a, b values.Value) bool { return a.CmpU(b) <= 0 }, nil
	case flat.OpSgt:
		return func(a, b values.Value) bool { return a.CmpS(b) > 0 }, nil
	case flat.OpSlt:
		return func(a, b values.Value) bool { return a.CmpS(b) < 0 }, nil
	case flat.OpSge:
		return func(a, b values.Value) bool { return a.CmpS(b) >= 0 }, nil
	case flat.OpSle:
		return func(a, b values.Value) bool { return a.CmpS(b) <= 0 }, nil
	}
	return nil, fmt.Errorf("prims: %s is not a comparison operator", op)
}

func (c *comparator) Eval(r Reader) ([]Update, error) {
	a, b := r.Value(c.left), r.Value(c.right)
	if !a.Defined() || !b.Defined() {
		return []Update{{c.out, values.Undef(1)}}, nil
	}
	return []Update{{c.out, bit(c.test(a, b))}}, nil
}

func (c *comparator) Reset(r Reader) ([]Update, error) { return c.Eval(r) }
