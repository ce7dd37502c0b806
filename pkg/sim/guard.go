package sim

import (
	"github.com/loomhdl/loom/pkg/flat"
	"github.com/loomhdl/loom/pkg/values"
)

// tri is a guard truth value during settling: a guard over undefined ports is
// neither true nor false yet and leaves its assignment unapplied.
type tri int8

const (
	triUnknown tri = iota
	triFalse
	triTrue
)

func triBool(b bool) tri {
	if b {
		return triTrue
	}
	return triFalse
}

// sweepGuards evaluates every guard node against the proposed port values in
// one arena-order pass. Children precede parents in the arena, so each node
// sees its children already evaluated.
func sweepGuards(prog *flat.Program, prop []values.Value, out []tri) {
	for i := range prog.Guards {
		gn := &prog.Guards[i]
		switch gn.Kind {
		case flat.GuardTrue:
			out[i] = triTrue
		case flat.GuardPort:
			v := prop[gn.Port]
			if !v.Defined() {
				out[i] = triUnknown
			} else {
				out[i] = triBool(!v.IsZero())
			}
		case flat.GuardNot:
			switch out[gn.Left] {
			case triTrue:
				out[i] = triFalse
			case triFalse:
				out[i] = triTrue
			default:
				out[i] = triUnknown
			}
		case flat.GuardAnd:
			// short-circuit: a known-false child decides the conjunction even
			// while the other side is still undefined
			l, r := out[gn.Left], out[gn.Right]
			switch {
			case l == triFalse || r == triFalse:
				out[i] = triFalse
			case l == triTrue && r == triTrue:
				out[i] = triTrue
			default:
				out[i] = triUnknown
			}
		case flat.GuardOr:
			l, r := out[gn.Left], out[gn.Right]
			switch {
			case l == triTrue || r == triTrue:
				out[i] = triTrue
			case l == triFalse && r == triFalse:
				out[i] = triFalse
			default:
				out[i] = triUnknown
			}
		case flat.GuardCmp:
			a, b := prop[gn.A], prop[gn.B]
			if !a.Defined() || !b.Defined() {
				out[i] = triUnknown
			} else {
				out[i] = triBool(compare(gn.Cmp, a, b))
			}
		}
	}
}

func compare(op flat.CmpOp, a, b values.Value) bool {
	var c int
	if op.Signed() {
		c = a.CmpS(b)
	} else {
		c = a.CmpU(b)
	}
	switch op {
	case flat.CmpEq:
		return c == 0
	case flat.CmpNeq:
		return c != 0
	case flat.CmpGt, flat.CmpSgt:
		return c > 0
	case flat.CmpLt, flat.CmpSlt:
		return c < 0
	case flat.CmpGe, flat.CmpSge:
		return c >= 0
	case flat.CmpLe, flat.CmpSle:
		return c <= 0
	}
	return false
}

// undefinedGuardPorts collects the ports of guard g whose proposed values are
// still undefined, walking the node and its children.
func undefinedGuardPorts(prog *flat.Program, g flat.GuardRef, prop []values.Value) []flat.PortRef {
	var out []flat.PortRef
	stack := []flat.GuardRef{g}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		gn := prog.Guard(cur)
		switch gn.Kind {
		case flat.GuardPort:
			if !prop[gn.Port].Defined() {
				out = append(out, gn.Port)
			}
		case flat.GuardNot:
			stack = append(stack, gn.Left)
		case flat.GuardAnd, flat.GuardOr:
			stack = append(stack, gn.Left, gn.Right)
		case flat.GuardCmp:
			if !prop[gn.A].Defined() {
				out = append(out, gn.A)
			}
			if !prop[gn.B].Defined() {
				out = append(out, gn.B)
			}
		}
	}
	return out
}
