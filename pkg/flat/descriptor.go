package flat

import (
	"fmt"

	"github.com/loomhdl/loom/pkg/values"
)

// Op tags a primitive operator kind. The set is closed: the primitive library
// dispatches over it at cell construction time, never by runtime type
// inspection.
type Op int

const (
	// Combinational operators.
	OpConst Op = iota
	OpWire
	OpUndef
	OpAdd
	OpSub
	OpMul
	OpAnd
	OpOr
	OpXor
	OpNot
	OpShl
	OpShrU
	OpShrS
	OpMux
	OpSlice
	OpPad
	OpSignPad
	OpConcat
	OpEq
	OpNeq
	OpGt
	OpLt
	OpGe
	OpLe
	OpSgt
	OpSlt
	OpSge
	OpSle

	// Sequential and multi-cycle operators.
	OpReg
	OpMem
	OpSeqMem
	OpMultPipe
	OpDivPipe
	OpSqrt
	OpFPMultPipe
	OpFPDivPipe
)

var opNames = map[Op]string{
	OpConst:      "const",
	OpWire:       "wire",
	OpUndef:      "undef",
	OpAdd:        "add",
	OpSub:        "sub",
	OpMul:        "mul",
	OpAnd:        "and",
	OpOr:         "or",
	OpXor:        "xor",
	OpNot:        "not",
	OpShl:        "shl",
	OpShrU:       "shr",
	OpShrS:       "sra",
	OpMux:        "mux",
	OpSlice:      "slice",
	OpPad:        "pad",
	OpSignPad:    "spad",
	OpConcat:     "concat",
	OpEq:         "eq",
	OpNeq:        "neq",
	OpGt:         "gt",
	OpLt:         "lt",
	OpGe:         "ge",
	OpLe:         "le",
	OpSgt:        "sgt",
	OpSlt:        "slt",
	OpSge:        "sge",
	OpSle:        "sle",
	OpReg:        "reg",
	OpMem:        "mem",
	OpSeqMem:     "seq_mem",
	OpMultPipe:   "mult_pipe",
	OpDivPipe:    "div_pipe",
	OpSqrt:       "sqrt",
	OpFPMultPipe: "fp_mult_pipe",
	OpFPDivPipe:  "fp_div_pipe",
}

var opByName = func() map[string]Op {
	m := make(map[string]Op, len(opNames))
	for op, n := range opNames {
		m[n] = op
	}
	return m
}()

func (op Op) String() string {
	if n, ok := opNames[op]; ok {
		return n
	}
	return fmt.Sprintf("op(%d)", int(op))
}

// ParseOp resolves an operator name used in the JSON program form.
func ParseOp(name string) (Op, bool) {
	op, ok := opByName[name]
	return op, ok
}

// Stateful reports whether cells of this kind carry internal state that
// commits at clock edges.
func (op Op) Stateful() bool {
	switch op {
	case OpReg, OpMem, OpSeqMem, OpMultPipe, OpDivPipe, OpSqrt, OpFPMultPipe, OpFPDivPipe:
		return true
	}
	return false
}

// Descriptor parameterizes one primitive instance: the operator kind plus the
// integer parameters the translator resolved for it. Fields not relevant to
// an operator are left zero.
type Descriptor struct {
	Op    Op
	Width uint // main port width (result width for slice/pad)

	InWidth  uint // slice/pad input width
	LeftWidth, RightWidth uint // concat operand widths

	Latency uint // pipelined operators: cycles from go to done

	IntWidth, FracWidth uint // fixed-point operators; IntWidth+FracWidth == Width

	Dims      []uint64 // memory dimension sizes, outermost first
	IdxWidths []uint   // memory per-dimension address port widths

	Init *values.Value // constants: the fixed value
}

// MemSize returns the flat element count of a memory descriptor.
func (d *Descriptor) MemSize() uint64 {
	size := uint64(1)
	for _, n := range d.Dims {
		size *= n
	}
	return size
}

func (d *Descriptor) validate() error {
	switch d.Op {
	case OpConst:
		if d.Init == nil {
			return fmt.Errorf("const descriptor missing value")
		}
		if d.Init.Width() != d.Width {
			return fmt.Errorf("const value width %d does not match descriptor width %d", d.Init.Width(), d.Width)
		}
	case OpSlice, OpPad, OpSignPad:
		if d.InWidth == 0 || d.Width == 0 {
			return fmt.Errorf("%s descriptor missing widths", d.Op)
		}
	case OpConcat:
		if d.LeftWidth+d.RightWidth != d.Width {
			return fmt.Errorf("concat widths %d+%d do not sum to %d", d.LeftWidth, d.RightWidth, d.Width)
		}
	case OpMem, OpSeqMem:
		if len(d.Dims) < 1 || len(d.Dims) > 4 {
			return fmt.Errorf("memory must have 1 to 4 dimensions, has %d", len(d.Dims))
		}
		if len(d.IdxWidths) != len(d.Dims) {
			return fmt.Errorf("memory has %d dimensions but %d index widths", len(d.Dims), len(d.IdxWidths))
		}
		for i, n := range d.Dims {
			if n == 0 {
				return fmt.Errorf("memory dimension %d is zero", i)
			}
		}
	case OpMultPipe, OpDivPipe, OpSqrt, OpFPMultPipe, OpFPDivPipe:
		if d.Latency == 0 {
			return fmt.Errorf("%s descriptor missing latency", d.Op)
		}
		if d.Op == OpFPMultPipe || d.Op == OpFPDivPipe {
			if d.IntWidth+d.FracWidth != d.Width {
				return fmt.Errorf("fixed-point widths %d+%d do not sum to %d", d.IntWidth, d.FracWidth, d.Width)
			}
		}
	}
	if d.Width == 0 {
		return fmt.Errorf("%s descriptor has zero width", d.Op)
	}
	return nil
}
