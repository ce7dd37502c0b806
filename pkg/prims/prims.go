// Package prims implements the primitive component library: one
// implementation per built-in hardware operator, constructed from a cell's
// descriptor and exposing the uniform evaluate/commit/done/reset contract the
// convergence engine drives. Dispatch over operator kinds is closed: New
// switches on the descriptor tag once at construction, never on runtime types.
package prims

import (
	"fmt"

	"github.com/loomhdl/loom/pkg/flat"
	"github.com/loomhdl/loom/pkg/values"
)

// Port name conventions shared by the primitive library and the translator.
const (
	pIn        = "in"
	pOut       = "out"
	pLeft      = "left"
	pRight     = "right"
	pCond      = "cond"
	pTru       = "tru"
	pFal       = "fal"
	pGo        = "go"
	pDone      = "done"
	pWriteEn   = "write_en"
	pWriteData = "write_data"
	pReadData  = "read_data"
	pContentEn = "content_en"
	pQuotient  = "out_quotient"
	pRemainder = "out_remainder"
)

// A Reader supplies the current (proposed or committed) value of a port.
type Reader interface {
	Value(flat.PortRef) values.Value
}

// An Update proposes a new value for a port.
type Update struct {
	Port flat.PortRef
	Val  values.Value
}

// Primitive is the uniform execution contract of every cell instance.
//
// Eval is pure with respect to internal state: it computes combinational
// outputs from the port values visible through r and may run any number of
// times per cycle. Commit runs exactly once per clock edge, after settling,
// and is the only place internal state mutates; the updates it returns are
// applied to the committed port values for the next cycle.
type Primitive interface {
	Eval(r Reader) ([]Update, error)
	Commit(r Reader) ([]Update, error)
	Done() bool
	Reset(r Reader) ([]Update, error)
}

// Storage is implemented by primitives whose internal state is addressable
// storage (registers and memories). The cycle stepper uses it to derive the
// settled read/write event set for the race detector and the read-before-write
// policy, and the observability layer uses it for state snapshots.
type Storage interface {
	Primitive

	// ReadPorts returns the ports whose consumption by an active assignment
	// constitutes a read of internal state.
	ReadPorts() []flat.PortRef
	// ObserveRead validates a performed read against the settled values and
	// returns the flat location index (0 for scalar storage).
	ObserveRead(r Reader) (int64, error)
	// PendingWrite reports whether the settled values commit a write this
	// cycle and to which flat location index.
	PendingWrite(r Reader) (int64, bool, error)
	// PendingRead reports whether Commit itself performs a read this cycle
	// (sequential memories); combinational reads are observed through
	// ReadPorts/ObserveRead instead.
	PendingRead(r Reader) (int64, bool, error)
	// EnablePort returns the port whose driving assignment carries the
	// provenance of pending commit events.
	EnablePort() flat.PortRef
	// Contents returns the internal storage for snapshots; undefined entries
	// are locations never written.
	Contents() []values.Value
	// SetContents preloads the storage, e.g. from a memory data dump.
	SetContents([]values.Value) error
}

// New constructs the primitive instance for cell c of prog.
func New(prog *flat.Program, c flat.CellRef) (Primitive, error) {
	d := &prog.Cell(c).Proto
	ps := newPortSet(prog, c)

	switch d.Op {
	case flat.OpConst:
		return newConst(ps, d)
	case flat.OpWire:
		return newUnary(ps, func(v values.Value) values.Value { return v })
	case flat.OpUndef:
		return newUndefGen(ps, d.Width)
	case flat.OpNot:
		return newUnary(ps, values.Value.Not)
	case flat.OpAdd:
		return newBinary(ps, values.Value.Add)
	case flat.OpSub:
		return newBinary(ps, values.Value.Sub)
	case flat.OpMul:
		return newBinary(ps, values.Value.Mul)
	case flat.OpAnd:
		return newBinary(ps, values.Value.And)
	case flat.OpOr:
		return newBinary(ps, values.Value.Or)
	case flat.OpXor:
		return newBinary(ps, values.Value.Xor)
	case flat.OpShl:
		return newBinary(ps, values.Value.Shl)
	case flat.OpShrU:
		return newBinary(ps, values.Value.ShrU)
	case flat.OpShrS:
		return newBinary(ps, values.Value.ShrS)
	case flat.OpMux:
		return newMux(ps, d.Width)
	case flat.OpSlice:
		return newResize(ps, d, values.Value.ZeroExt)
	case flat.OpPad:
		return newResize(ps, d, values.Value.ZeroExt)
	case flat.OpSignPad:
		return newResize(ps, d, values.Value.SignExt)
	case flat.OpConcat:
		return newConcat(ps, d)
	case flat.OpEq, flat.OpNeq, flat.OpGt, flat.OpLt, flat.OpGe, flat.OpLe,
		flat.OpSgt, flat.OpSlt, flat.OpSge, flat.OpSle:
		return newComparator(ps, d)
	case flat.OpReg:
		return newRegister(ps, d, c)
	case flat.OpMem, flat.OpSeqMem:
		return newMemory(ps, d, c)
	case flat.OpMultPipe, flat.OpDivPipe, flat.OpSqrt, flat.OpFPMultPipe, flat.OpFPDivPipe:
		return newPipeline(ps, d, c)
	}
	return nil, fmt.Errorf("prims: cell %q: unsupported op %s", prog.Cell(c).Name, d.Op)
}

// portSet resolves a cell's ports by conventional name at construction time.
type portSet struct {
	prog *flat.Program
	cell flat.CellRef
}

func newPortSet(prog *flat.Program, c flat.CellRef) portSet {
	return portSet{prog: prog, cell: c}
}

func (ps portSet) get(name string) (flat.PortRef, error) {
	p, ok := ps.prog.CellPort(ps.cell, name)
	if !ok {
		return 0, fmt.Errorf("prims: cell %q (%s) has no port %q",
			ps.prog.Cell(ps.cell).Name, ps.prog.Cell(ps.cell).Proto.Op, name)
	}
	return p, nil
}

func (ps portSet) ports(names ...string) ([]flat.PortRef, error) {
	out := make([]flat.PortRef, len(names))
	for i, n := range names {
		p, err := ps.get(n)
		if err != nil {
			return nil, err
		}
		out[i] = p
	}
	return out, nil
}

// bit converts a bool to a defined single-bit value.
func bit(b bool) values.Value {
	if b {
		return values.FromUint64(1, 1)
	}
	return values.Zero(1)
}

// asserted reports whether v is defined and nonzero.
func asserted(v values.Value) bool {
	return v.Defined() && !v.IsZero()
}
