package prims

import (
	"fmt"

	"github.com/loomhdl/loom/pkg/flat"
	"github.com/loomhdl/loom/pkg/values"
)

// register is a width-wide D register. Eval always exposes the committed
// contents, so reads within a cycle observe pre-cycle state; the new value
// latches at Commit and becomes visible the following cycle. done is asserted
// for exactly one cycle after a write.
type register struct {
	cell                   flat.CellRef
	in, writeEn, out, done flat.PortRef
	width                  uint

	cur       values.Value
	justWrote bool
}

func newRegister(ps portSet, d *flat.Descriptor, c flat.CellRef) (Primitive, error) {
	refs, err := ps.ports(pIn, pWriteEn, pOut, pDone)
	if err != nil {
		return nil, err
	}
	return &register{
		cell:    c,
		in:      refs[0],
		writeEn: refs[1],
		out:     refs[2],
		done:    refs[3],
		width:   d.Width,
		cur:     values.Undef(d.Width),
	}, nil
}

func (g *register) Eval(Reader) ([]Update, error) {
	return []Update{{g.out, g.cur}, {g.done, bit(g.justWrote)}}, nil
}

func (g *register) Commit(r Reader) ([]Update, error) {
	if asserted(r.Value(g.writeEn)) {
		in := r.Value(g.in)
		if !in.Defined() {
			return nil, &UndefinedWriteError{Cell: g.cell}
		}
		g.cur = in
		g.justWrote = true
	} else {
		g.justWrote = false
	}
	return []Update{{g.out, g.cur}, {g.done, bit(g.justWrote)}}, nil
}

func (g *register) Done() bool { return g.justWrote }

func (g *register) Reset(Reader) ([]Update, error) {
	g.justWrote = false
	return []Update{{g.out, g.cur}, {g.done, bit(false)}}, nil
}

func (g *register) ReadPorts() []flat.PortRef { return []flat.PortRef{g.out} }

func (g *register) ObserveRead(Reader) (int64, error) { return 0, nil }

func (g *register) PendingWrite(r Reader) (int64, bool, error) {
	return 0, asserted(r.Value(g.writeEn)), nil
}

func (g *register) PendingRead(Reader) (int64, bool, error) { return 0, false, nil }

func (g *register) EnablePort() flat.PortRef { return g.writeEn }

func (g *register) Contents() []values.Value { return []values.Value{g.cur} }

func (g *register) SetContents(vs []values.Value) error {
	if len(vs) != 1 {
		return fmt.Errorf("prims: register takes 1 value, got %d", len(vs))
	}
	g.cur = vs[0]
	return nil
}

// memory backs both the combinational-read and the sequential-read memory
// variants, one to four dimensions. Locations never written (and not
// preloaded) hold undefined values; a performed read of such a location
// violates the read-before-write policy.
type memory struct {
	cell flat.CellRef
	seq  bool

	addr      []flat.PortRef
	writeData flat.PortRef
	writeEn   flat.PortRef
	readData  flat.PortRef
	done      flat.PortRef
	contentEn flat.PortRef // sequential variant only

	width uint
	dims  []uint64

	data      []values.Value
	justWrote bool
	opDone    bool         // sequential: done pulse for the last content_en op
	readLatch values.Value // sequential: read value latched at the last commit
}

func newMemory(ps portSet, d *flat.Descriptor, c flat.CellRef) (Primitive, error) {
	m := &memory{
		cell:      c,
		seq:       d.Op == flat.OpSeqMem,
		width:     d.Width,
		dims:      d.Dims,
		readLatch: values.Undef(d.Width),
	}
	for i := range d.Dims {
		p, err := ps.get(fmt.Sprintf("addr%d", i))
		if err != nil {
			return nil, err
		}
		m.addr = append(m.addr, p)
	}
	refs, err := ps.ports(pWriteData, pWriteEn, pReadData, pDone)
	if err != nil {
		return nil, err
	}
	m.writeData, m.writeEn, m.readData, m.done = refs[0], refs[1], refs[2], refs[3]
	if m.seq {
		if m.contentEn, err = ps.get(pContentEn); err != nil {
			return nil, err
		}
	}
	size := d.MemSize()
	m.data = make([]values.Value, size)
	for i := range m.data {
		m.data[i] = values.Undef(d.Width)
	}
	return m, nil
}

// index resolves the address ports into a flat element index. It reports
// ok=false when any address bit is still undefined, which is not an error
// during settling.
func (m *memory) index(r Reader) (int64, bool, error) {
	tuple := make([]uint64, len(m.addr))
	for i, p := range m.addr {
		v := r.Value(p)
		if !v.Defined() {
			return 0, false, nil
		}
		a, ok := v.Uint64()
		if !ok {
			a = ^uint64(0)
		}
		tuple[i] = a
	}
	idx := int64(0)
	for i, a := range tuple {
		if a >= m.dims[i] {
			return 0, false, &InvalidMemoryAccessError{Cell: m.cell, Index: tuple, Dims: m.dims}
		}
		idx = idx*int64(m.dims[i]) + int64(a)
	}
	return idx, true, nil
}

func (m *memory) Eval(r Reader) ([]Update, error) {
	if m.seq {
		return []Update{{m.readData, m.readLatch}, {m.done, bit(m.opDone)}}, nil
	}
	idx, ok, err := m.index(r)
	if err != nil {
		return nil, err
	}
	read := values.Undef(m.width)
	if ok {
		read = m.data[idx]
	}
	return []Update{{m.readData, read}, {m.done, bit(m.justWrote)}}, nil
}

func (m *memory) Commit(r Reader) ([]Update, error) {
	if m.seq {
		return m.commitSeq(r)
	}
	m.justWrote = false
	if asserted(r.Value(m.writeEn)) {
		idx, ok, err := m.index(r)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, &UndefinedWriteAddrError{Cell: m.cell}
		}
		wd := r.Value(m.writeData)
		if !wd.Defined() {
			return nil, &UndefinedWriteError{Cell: m.cell}
		}
		m.data[idx] = wd
		m.justWrote = true
	}
	return []Update{{m.done, bit(m.justWrote)}}, nil
}

func (m *memory) commitSeq(r Reader) ([]Update, error) {
	m.opDone = false
	ce := r.Value(m.contentEn)
	if asserted(ce) {
		idx, ok, err := m.index(r)
		if err != nil {
			return nil, err
		}
		if asserted(r.Value(m.writeEn)) {
			if !ok {
				return nil, &UndefinedWriteAddrError{Cell: m.cell}
			}
			wd := r.Value(m.writeData)
			if !wd.Defined() {
				return nil, &UndefinedWriteError{Cell: m.cell}
			}
			m.data[idx] = wd
			m.readLatch = values.Undef(m.width)
		} else {
			if !ok {
				return nil, &UndefinedReadAddrError{Cell: m.cell, Index: -1}
			}
			if !m.data[idx].Defined() {
				return nil, &UndefinedReadAddrError{Cell: m.cell, Index: idx}
			}
			m.readLatch = m.data[idx]
		}
		m.opDone = true
	}
	return []Update{{m.readData, m.readLatch}, {m.done, bit(m.opDone)}}, nil
}

func (m *memory) Done() bool {
	if m.seq {
		return m.opDone
	}
	return m.justWrote
}

func (m *memory) Reset(Reader) ([]Update, error) {
	m.justWrote = false
	m.opDone = false
	m.readLatch = values.Undef(m.width)
	out := []Update{{m.done, bit(false)}}
	if m.seq {
		out = append(out, Update{m.readData, m.readLatch})
	}
	return out, nil
}

// ReadPorts exposes the combinational variant's read port: consuming it is
// reading the memory. The sequential variant reads at commit, reported by
// PendingRead; its read_data port only replays the latched value, so
// consuming it is not a storage access and must not produce a read event.
func (m *memory) ReadPorts() []flat.PortRef {
	if m.seq {
		return nil
	}
	return []flat.PortRef{m.readData}
}

// ObserveRead enforces the read-before-write policy for the combinational
// variant: a settled, consumed read must have a defined, in-bounds address
// pointing at an initialized location.
func (m *memory) ObserveRead(r Reader) (int64, error) {
	if m.seq {
		return 0, nil
	}
	idx, ok, err := m.index(r)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, &UndefinedReadAddrError{Cell: m.cell, Index: -1}
	}
	if !m.data[idx].Defined() {
		return 0, &UndefinedReadAddrError{Cell: m.cell, Index: idx}
	}
	return idx, nil
}

func (m *memory) PendingWrite(r Reader) (int64, bool, error) {
	writing := asserted(r.Value(m.writeEn))
	if m.seq {
		writing = writing && asserted(r.Value(m.contentEn))
	}
	if !writing {
		return 0, false, nil
	}
	idx, ok, err := m.index(r)
	if err != nil {
		return 0, false, err
	}
	if !ok {
		return 0, false, &UndefinedWriteAddrError{Cell: m.cell}
	}
	return idx, true, nil
}

// PendingRead reports the sequential variant's commit-time read. Address
// errors are left to Commit, which performs the same resolution.
func (m *memory) PendingRead(r Reader) (int64, bool, error) {
	if !m.seq {
		return 0, false, nil
	}
	if !asserted(r.Value(m.contentEn)) || asserted(r.Value(m.writeEn)) {
		return 0, false, nil
	}
	idx, ok, err := m.index(r)
	if err != nil || !ok {
		return 0, false, err
	}
	return idx, true, nil
}

func (m *memory) EnablePort() flat.PortRef {
	if m.seq {
		return m.contentEn
	}
	return m.writeEn
}

func (m *memory) Contents() []values.Value { return m.data }

func (m *memory) SetContents(vs []values.Value) error {
	if len(vs) != len(m.data) {
		return fmt.Errorf("prims: memory %s takes %d values, got %d", m.cell, len(m.data), len(vs))
	}
	copy(m.data, vs)
	return nil
}
