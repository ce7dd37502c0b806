package prims

import (
	"errors"
	"testing"

	"github.com/loomhdl/loom/pkg/flat"
	"github.com/loomhdl/loom/pkg/values"
)

// mapReader is a trivial port-value store for driving primitives directly.
type mapReader map[flat.PortRef]values.Value

func (m mapReader) Value(p flat.PortRef) values.Value {
	if v, ok := m[p]; ok {
		return v
	}
	panic("test reads unset port")
}

func (m mapReader) apply(ups []Update) {
	for _, u := range ups {
		m[u.Port] = u.Val
	}
}

// buildCell makes a one-cell program and its primitive instance.
func buildCell(t *testing.T, d flat.Descriptor, ports []flat.PortDecl) (*flat.Program, flat.CellRef, Primitive, mapReader) {
	t.Helper()
	b := flat.NewBuilder("main")
	c := b.AddCell("dut", d, ports)
	prog, err := b.Program()
	if err != nil {
		t.Fatalf("program did not validate: %v", err)
	}
	p, err := New(prog, c)
	if err != nil {
		t.Fatalf("constructing primitive: %v", err)
	}
	r := mapReader{}
	for i := 0; i < prog.Cell(c).NumPorts; i++ {
		ref := prog.Cell(c).FirstPort + flat.PortRef(i)
		r[ref] = values.Undef(prog.Port(ref).Width)
	}
	return prog, c, p, r
}

func binaryPorts(w uint) []flat.PortDecl {
	return []flat.PortDecl{
		{Name: "left", Width: w, Dir: flat.DirIn},
		{Name: "right", Width: w, Dir: flat.DirIn},
		{Name: "out", Width: w, Dir: flat.DirOut},
	}
}

func regPorts(w uint) []flat.PortDecl {
	return []flat.PortDecl{
		{Name: "in", Width: w, Dir: flat.DirIn},
		{Name: "write_en", Width: 1, Dir: flat.DirIn},
		{Name: "out", Width: w, Dir: flat.DirOut},
		{Name: "done", Width: 1, Dir: flat.DirOut},
	}
}

func memPorts(w, idxw uint) []flat.PortDecl {
	return []flat.PortDecl{
		{Name: "addr0", Width: idxw, Dir: flat.DirIn},
		{Name: "write_data", Width: w, Dir: flat.DirIn},
		{Name: "write_en", Width: 1, Dir: flat.DirIn},
		{Name: "read_data", Width: w, Dir: flat.DirOut},
		{Name: "done", Width: 1, Dir: flat.DirOut},
	}
}

func port(t *testing.T, prog *flat.Program, c flat.CellRef, name string) flat.PortRef {
	t.Helper()
	p, ok := prog.CellPort(c, name)
	if !ok {
		t.Fatalf("no port %q", name)
	}
	return p
}

func TestAdderEvaluatesCombinationally(t *testing.T) {
	prog, c, p, r := buildCell(t, flat.Descriptor{Op: flat.OpAdd, Width: 8}, binaryPorts(8))
	r[port(t, prog, c, "left")] = values.FromUint64(3, 8)
	r[port(t, prog, c, "right")] = values.FromUint64(4, 8)

	ups, err := p.Eval(r)
	if err != nil {
		t.Fatalf("eval failed: %v", err)
	}
	r.apply(ups)
	got, ok := r[port(t, prog, c, "out")].Uint64()
	if !ok || got != 7 {
		t.Fatalf("adder output wrong. expected=7, got=%v", r[port(t, prog, c, "out")])
	}
}

func TestComparatorUndefinedOperand(t *testing.T) {
	prog, c, p, r := buildCell(t, flat.Descriptor{Op: flat.OpLt, Width: 8}, []flat.PortDecl{
		{Name: "left", Width: 8, Dir: flat.DirIn},
		{Name: "right", Width: 8, Dir: flat.DirIn},
		{Name: "out", Width: 1, Dir: flat.DirOut},
	})
	r[port(t, prog, c, "left")] = values.FromUint64(3, 8)

	ups, err := p.Eval(r)
	if err != nil {
		t.Fatalf("eval failed: %v", err)
	}
	r.apply(ups)
	if r[port(t, prog, c, "out")].Defined() {
		t.Fatal("comparator output defined despite undefined operand")
	}
}

func TestRegisterLatchesOnCommit(t *testing.T) {
	prog, c, p, r := buildCell(t, flat.Descriptor{Op: flat.OpReg, Width: 32}, regPorts(32))
	in := port(t, prog, c, "in")
	we := port(t, prog, c, "write_en")
	out := port(t, prog, c, "out")
	done := port(t, prog, c, "done")

	r[in] = values.FromUint64(42, 32)
	r[we] = values.FromUint64(1, 1)

	// during settle the old (undefined) contents stay visible
	ups, _ := p.Eval(r)
	r.apply(ups)
	if r[out].Defined() {
		t.Fatal("register exposed new value before commit")
	}

	ups, err := p.Commit(r)
	if err != nil {
		t.Fatalf("commit failed: %v", err)
	}
	r.apply(ups)
	if got, _ := r[out].Uint64(); got != 42 {
		t.Fatalf("register out wrong after commit. expected=42, got=%v", r[out])
	}
	if r[done].IsZero() {
		t.Fatal("done not asserted after write")
	}

	// write_en low: value held, done deasserted
	r[we] = values.Zero(1)
	ups, err = p.Commit(r)
	if err != nil {
		t.Fatalf("commit failed: %v", err)
	}
	r.apply(ups)
	if got, _ := r[out].Uint64(); got != 42 {
		t.Fatalf("register lost value. expected=42, got=%v", r[out])
	}
	if !r[done].IsZero() {
		t.Fatal("done still asserted without write")
	}
}

func TestRegisterUndefinedWrite(t *testing.T) {
	prog, c, p, r := buildCell(t, flat.Descriptor{Op: flat.OpReg, Width: 8}, regPorts(8))
	r[port(t, prog, c, "write_en")] = values.FromUint64(1, 1)
	r[port(t, prog, c, "in")] = values.Undef(8)

	_, err := p.Commit(r)
	var uw *UndefinedWriteError
	if !errors.As(err, &uw) {
		t.Fatalf("expected UndefinedWriteError, got=%v", err)
	}
}

func TestMemoryBounds(t *testing.T) {
	prog, c, p, r := buildCell(t, flat.Descriptor{
		Op: flat.OpMem, Width: 8, Dims: []uint64{4}, IdxWidths: []uint{3},
	}, memPorts(8, 3))
	r[port(t, prog, c, "addr0")] = values.FromUint64(5, 3)
	r[port(t, prog, c, "write_en")] = values.FromUint64(1, 1)
	r[port(t, prog, c, "write_data")] = values.FromUint64(9, 8)

	_, err := p.Commit(r)
	var oob *InvalidMemoryAccessError
	if !errors.As(err, &oob) {
		t.Fatalf("expected InvalidMemoryAccessError, got=%v", err)
	}
	if len(oob.Index) != 1 || oob.Index[0] != 5 {
		t.Errorf("offending index wrong. expected=[5], got=%v", oob.Index)
	}
	if len(oob.Dims) != 1 || oob.Dims[0] != 4 {
		t.Errorf("declared shape wrong. expected=[4], got=%v", oob.Dims)
	}
}

func TestMemoryWriteThenRead(t *testing.T) {
	prog, c, p, r := buildCell(t, flat.Descriptor{
		Op: flat.OpMem, Width: 8, Dims: []uint64{4}, IdxWidths: []uint{2},
	}, memPorts(8, 2))
	addr := port(t, prog, c, "addr0")
	r[addr] = values.FromUint64(2, 2)
	r[port(t, prog, c, "write_en")] = values.FromUint64(1, 1)
	r[port(t, prog, c, "write_data")] = values.FromUint64(77, 8)

	if _, err := p.Commit(r); err != nil {
		t.Fatalf("commit failed: %v", err)
	}

	r[port(t, prog, c, "write_en")] = values.Zero(1)
	ups, err := p.Eval(r)
	if err != nil {
		t.Fatalf("eval failed: %v", err)
	}
	r.apply(ups)
	if got, _ := r[port(t, prog, c, "read_data")].Uint64(); got != 77 {
		t.Fatalf("read_data wrong. expected=77, got=%v", r[port(t, prog, c, "read_data")])
	}

	st := p.(Storage)
	if idx, err := st.ObserveRead(r); err != nil || idx != 2 {
		t.Fatalf("observed read wrong. expected=2, got=%d err=%v", idx, err)
	}
}

func TestMemoryReadBeforeWrite(t *testing.T) {
	prog, c, p, r := buildCell(t, flat.Descriptor{
		Op: flat.OpMem, Width: 8, Dims: []uint64{4}, IdxWidths: []uint{2},
	}, memPorts(8, 2))
	r[port(t, prog, c, "addr0")] = values.FromUint64(1, 2)
	r[port(t, prog, c, "write_en")] = values.Zero(1)

	st := p.(Storage)
	_, err := st.ObserveRead(r)
	var ur *UndefinedReadAddrError
	if !errors.As(err, &ur) {
		t.Fatalf("expected UndefinedReadAddrError, got=%v", err)
	}
	if ur.Index != 1 {
		t.Errorf("uninitialized index wrong. expected=1, got=%d", ur.Index)
	}
}

func TestSeqMemoryReadLatency(t *testing.T) {
	ports := append(memPorts(8, 2), flat.PortDecl{Name: "content_en", Width: 1, Dir: flat.DirIn})
	prog, c, p, r := buildCell(t, flat.Descriptor{
		Op: flat.OpSeqMem, Width: 8, Dims: []uint64{4}, IdxWidths: []uint{2},
	}, ports)
	addr := port(t, prog, c, "addr0")
	ce := port(t, prog, c, "content_en")
	we := port(t, prog, c, "write_en")
	rd := port(t, prog, c, "read_data")

	// cycle 1: write 5 to address 3
	r[addr] = values.FromUint64(3, 2)
	r[ce] = values.FromUint64(1, 1)
	r[we] = values.FromUint64(1, 1)
	r[port(t, prog, c, "write_data")] = values.FromUint64(5, 8)
	if _, err := p.Commit(r); err != nil {
		t.Fatalf("write commit failed: %v", err)
	}

	// cycle 2: issue the read; data not visible during settle
	r[we] = values.Zero(1)
	ups, _ := p.Eval(r)
	r.apply(ups)
	if r[rd].Defined() {
		t.Fatal("sequential memory exposed read data combinationally")
	}
	ups, err := p.Commit(r)
	if err != nil {
		t.Fatalf("read commit failed: %v", err)
	}
	r.apply(ups)

	// cycle 3: latched read data visible
	if got, _ := r[rd].Uint64(); got != 5 {
		t.Fatalf("latched read wrong. expected=5, got=%v", r[rd])
	}
}

func TestPipelineLatency(t *testing.T) {
	prog, c, p, r := buildCell(t, flat.Descriptor{Op: flat.OpMultPipe, Width: 8, Latency: 3},
		append(binaryPorts(8),
			flat.PortDecl{Name: "go", Width: 1, Dir: flat.DirIn},
			flat.PortDecl{Name: "done", Width: 1, Dir: flat.DirOut},
		))
	r[port(t, prog, c, "left")] = values.FromUint64(6, 8)
	r[port(t, prog, c, "right")] = values.FromUint64(7, 8)
	r[port(t, prog, c, "go")] = values.FromUint64(1, 1)

	for cycle := 1; cycle <= 3; cycle++ {
		if p.Done() {
			t.Fatalf("done asserted early at cycle %d", cycle)
		}
		ups, err := p.Commit(r)
		if err != nil {
			t.Fatalf("commit %d failed: %v", cycle, err)
		}
		r.apply(ups)
	}
	if !p.Done() {
		t.Fatal("done not asserted after latency commits")
	}
	if got, _ := r[port(t, prog, c, "out")].Uint64(); got != 42 {
		t.Fatalf("product wrong. expected=42, got=%v", r[port(t, prog, c, "out")])
	}

	// deasserting go clears in-flight state
	r[port(t, prog, c, "go")] = values.Zero(1)
	ups, _ := p.Commit(r)
	r.apply(ups)
	if p.Done() {
		t.Fatal("done still asserted after go deasserted")
	}
	if r[port(t, prog, c, "out")].Defined() {
		t.Fatal("result still exposed after go deasserted")
	}
}

func TestDividerQuotientRemainder(t *testing.T) {
	ports := []flat.PortDecl{
		{Name: "left", Width: 8, Dir: flat.DirIn},
		{Name: "right", Width: 8, Dir: flat.DirIn},
		{Name: "go", Width: 1, Dir: flat.DirIn},
		{Name: "done", Width: 1, Dir: flat.DirOut},
		{Name: "out_quotient", Width: 8, Dir: flat.DirOut},
		{Name: "out_remainder", Width: 8, Dir: flat.DirOut},
	}
	prog, c, p, r := buildCell(t, flat.Descriptor{Op: flat.OpDivPipe, Width: 8, Latency: 1}, ports)
	r[port(t, prog, c, "left")] = values.FromUint64(43, 8)
	r[port(t, prog, c, "right")] = values.FromUint64(5, 8)
	r[port(t, prog, c, "go")] = values.FromUint64(1, 1)

	ups, err := p.Commit(r)
	if err != nil {
		t.Fatalf("commit failed: %v", err)
	}
	r.apply(ups)
	if !p.Done() {
		t.Fatal("divider not done after one commit with latency=1")
	}
	if got, _ := r[port(t, prog, c, "out_quotient")].Uint64(); got != 8 {
		t.Errorf("quotient wrong. expected=8, got=%v", r[port(t, prog, c, "out_quotient")])
	}
	if got, _ := r[port(t, prog, c, "out_remainder")].Uint64(); got != 3 {
		t.Errorf("remainder wrong. expected=3, got=%v", r[port(t, prog, c, "out_remainder")])
	}
}

func TestSqrtPipeline(t *testing.T) {
	ports := []flat.PortDecl{
		{Name: "in", Width: 8, Dir: flat.DirIn},
		{Name: "go", Width: 1, Dir: flat.DirIn},
		{Name: "out", Width: 8, Dir: flat.DirOut},
		{Name: "done", Width: 1, Dir: flat.DirOut},
	}
	prog, c, p, r := buildCell(t, flat.Descriptor{Op: flat.OpSqrt, Width: 8, Latency: 2}, ports)
	r[port(t, prog, c, "in")] = values.FromUint64(144, 8)
	r[port(t, prog, c, "go")] = values.FromUint64(1, 1)

	for cycle := 1; cycle <= 2; cycle++ {
		if p.Done() {
			t.Fatalf("done asserted early at cycle %d", cycle)
		}
		ups, err := p.Commit(r)
		if err != nil {
			t.Fatalf("commit %d failed: %v", cycle, err)
		}
		r.apply(ups)
	}
	if !p.Done() {
		t.Fatal("done not asserted after latency commits")
	}
	if got, _ := r[port(t, prog, c, "out")].Uint64(); got != 12 {
		t.Fatalf("root wrong. expected=12, got=%v", r[port(t, prog, c, "out")])
	}
}

func TestFixedPointMultiply(t *testing.T) {
	// Q4.4: 1.5 * 1.5 = 2.25, i.e. 24 * 24 -> 36
	prog, c, p, r := buildCell(t,
		flat.Descriptor{Op: flat.OpFPMultPipe, Width: 8, IntWidth: 4, FracWidth: 4, Latency: 1},
		append(binaryPorts(8),
			flat.PortDecl{Name: "go", Width: 1, Dir: flat.DirIn},
			flat.PortDecl{Name: "done", Width: 1, Dir: flat.DirOut},
		))
	r[port(t, prog, c, "left")] = values.FromUint64(24, 8)
	r[port(t, prog, c, "right")] = values.FromUint64(24, 8)
	r[port(t, prog, c, "go")] = values.FromUint64(1, 1)

	ups, err := p.Commit(r)
	if err != nil {
		t.Fatalf("commit failed: %v", err)
	}
	r.apply(ups)
	if !p.Done() {
		t.Fatal("multiplier not done after one commit with latency=1")
	}
	if got, _ := r[port(t, prog, c, "out")].Uint64(); got != 36 {
		t.Errorf("product wrong. expected=36, got=%v", r[port(t, prog, c, "out")])
	}
}

func TestFixedPointDivide(t *testing.T) {
	// Q4.4: 3.0 / 2.0 = 1.5, i.e. 48 / 32 -> quotient 24, remainder 48 mod 32
	ports := []flat.PortDecl{
		{Name: "left", Width: 8, Dir: flat.DirIn},
		{Name: "right", Width: 8, Dir: flat.DirIn},
		{Name: "go", Width: 1, Dir: flat.DirIn},
		{Name: "done", Width: 1, Dir: flat.DirOut},
		{Name: "out_quotient", Width: 8, Dir: flat.DirOut},
		{Name: "out_remainder", Width: 8, Dir: flat.DirOut},
	}
	prog, c, p, r := buildCell(t,
		flat.Descriptor{Op: flat.OpFPDivPipe, Width: 8, IntWidth: 4, FracWidth: 4, Latency: 1}, ports)
	r[port(t, prog, c, "left")] = values.FromUint64(48, 8)
	r[port(t, prog, c, "right")] = values.FromUint64(32, 8)
	r[port(t, prog, c, "go")] = values.FromUint64(1, 1)

	ups, err := p.Commit(r)
	if err != nil {
		t.Fatalf("commit failed: %v", err)
	}
	r.apply(ups)
	if !p.Done() {
		t.Fatal("divider not done after one commit with latency=1")
	}
	if got, _ := r[port(t, prog, c, "out_quotient")].Uint64(); got != 24 {
		t.Errorf("quotient wrong. expected=24, got=%v", r[port(t, prog, c, "out_quotient")])
	}
	if got, _ := r[port(t, prog, c, "out_remainder")].Uint64(); got != 16 {
		t.Errorf("remainder wrong. expected=16, got=%v", r[port(t, prog, c, "out_remainder")])
	}
}

func TestConstAndMux(t *testing.T) {
	five := values.FromUint64(5, 8)
	prog, c, p, r := buildCell(t, flat.Descriptor{Op: flat.OpConst, Width: 8, Init: &five},
		[]flat.PortDecl{{Name: "out", Width: 8, Dir: flat.DirOut}})
	ups, _ := p.Eval(r)
	r.apply(ups)
	if got, _ := r[port(t, prog, c, "out")].Uint64(); got != 5 {
		t.Fatalf("const output wrong. expected=5, got=%v", r[port(t, prog, c, "out")])
	}

	prog2, c2, m, r2 := buildCell(t, flat.Descriptor{Op: flat.OpMux, Width: 8}, []flat.PortDecl{
		{Name: "cond", Width: 1, Dir: flat.DirIn},
		{Name: "tru", Width: 8, Dir: flat.DirIn},
		{Name: "fal", Width: 8, Dir: flat.DirIn},
		{Name: "out", Width: 8, Dir: flat.DirOut},
	})
	r2[port(t, prog2, c2, "cond")] = values.FromUint64(1, 1)
	r2[port(t, prog2, c2, "tru")] = values.FromUint64(11, 8)
	r2[port(t, prog2, c2, "fal")] = values.FromUint64(22, 8)
	ups, _ = m.Eval(r2)
	r2.apply(ups)
	if got, _ := r2[port(t, prog2, c2, "out")].Uint64(); got != 11 {
		t.Fatalf("mux output wrong. expected=11, got=%v", r2[port(t, prog2, c2, "out")])
	}
}
