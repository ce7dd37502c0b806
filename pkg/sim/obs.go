package sim

import (
	"fmt"

	"github.com/loomhdl/loom/pkg/flat"
	"github.com/loomhdl/loom/pkg/prims"
	"github.com/loomhdl/loom/pkg/values"
)

// Port returns the committed value of cell.port.
func (e *Environment) Port(cell, port string) (values.Value, error) {
	c, ok := e.prog.FindCell(cell)
	if !ok {
		return values.Value{}, fmt.Errorf("sim: no cell %q", cell)
	}
	p, ok := e.prog.CellPort(c, port)
	if !ok {
		return values.Value{}, fmt.Errorf("sim: cell %q has no port %q", cell, port)
	}
	return e.vals[p], nil
}

func (e *Environment) storageByName(cell string) (prims.Storage, error) {
	c, ok := e.prog.FindCell(cell)
	if !ok {
		return nil, fmt.Errorf("sim: no cell %q", cell)
	}
	st, ok := e.storage[c]
	if !ok {
		return nil, fmt.Errorf("sim: cell %q holds no internal state", cell)
	}
	return st, nil
}

// InitMemory preloads a stateful cell's contents, e.g. from a memory data
// dump, before simulation starts.
func (e *Environment) InitMemory(cell string, contents []values.Value) error {
	st, err := e.storageByName(cell)
	if err != nil {
		return err
	}
	return st.SetContents(contents)
}

// MemoryContents returns a copy of a stateful cell's contents.
func (e *Environment) MemoryContents(cell string) ([]values.Value, error) {
	st, err := e.storageByName(cell)
	if err != nil {
		return nil, err
	}
	return append([]values.Value(nil), st.Contents()...), nil
}

// PortState is the JSON-encodable rendering of one value: the unsigned
// decimal text when defined, or an explicit undefined marker.
type PortState struct {
	Width   uint   `json:"width"`
	Defined bool   `json:"defined"`
	Value   string `json:"value,omitempty"`
}

func portState(v values.Value) PortState {
	ps := PortState{Width: v.Width(), Defined: v.Defined()}
	if v.Defined() {
		ps.Value = v.Unsigned().String()
	}
	return ps
}

// Snapshot is a full-state dump: every cell's port values grouped by cell,
// plus stateful primitives' internal contents keyed the same way.
type Snapshot struct {
	TopLevel string                          `json:"top_level"`
	Clock    uint64                          `json:"clock"`
	Cells    map[string]map[string]PortState `json:"cells"`
	State    map[string][]PortState          `json:"state"`
}

// Snapshot captures the committed state of the environment.
func (e *Environment) Snapshot() *Snapshot {
	s := &Snapshot{
		TopLevel: e.prog.TopLevel,
		Clock:    e.cycle,
		Cells:    make(map[string]map[string]PortState, len(e.prog.Cells)),
		State:    make(map[string][]PortState, len(e.storage)),
	}
	for ci := range e.prog.Cells {
		cd := e.prog.Cell(flat.CellRef(ci))
		ports := make(map[string]PortState, cd.NumPorts)
		for i := 0; i < cd.NumPorts; i++ {
			p := cd.FirstPort + flat.PortRef(i)
			ports[e.prog.Port(p).Name] = portState(e.vals[p])
		}
		s.Cells[cd.Name] = ports
	}
	for _, c := range e.storageCells {
		contents := e.storage[c].Contents()
		states := make([]PortState, len(contents))
		for i, v := range contents {
			states[i] = portState(v)
		}
		s.State[e.prog.Cell(c).Name] = states
	}
	return s
}
