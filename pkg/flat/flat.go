// Package flat defines the flattened, index-addressed representation of a
// hardware circuit consumed by the interpreter core: arenas of ports, cells,
// guard nodes, assignments and groups, all referenced through small integer
// handles. A Program is produced by an external translator (or the JSON
// loader) and is read-only during simulation; only the active assignment set
// presented to the engine varies from cycle to cycle.
package flat

import (
	"fmt"
	"sort"
)

// Handles into the program arenas. Handle values index the corresponding
// arena slice directly and stay valid for the lifetime of the Program.
type (
	// PortRef identifies a port in Program.Ports.
	PortRef int
	// CellRef identifies a cell in Program.Cells.
	CellRef int
	// AssignRef identifies an assignment in Program.Assigns.
	AssignRef int
	// GuardRef identifies a guard node in Program.Guards.
	GuardRef int
	// GroupRef identifies a group in Program.Groups.
	GroupRef int
)

// Sentinel handles for optional references.
const (
	NoCell  CellRef  = -1
	NoGroup GroupRef = -1
)

// Direction is a port's direction relative to its owning cell.
type Direction int

const (
	// DirIn is an input of the owning cell.
	DirIn Direction = iota
	// DirOut is an output of the owning cell.
	DirOut
	// DirHole is a bidirectional hole of a group interface (go/done).
	DirHole
)

func (d Direction) String() string {
	switch d {
	case DirIn:
		return "in"
	case DirOut:
		return "out"
	case DirHole:
		return "hole"
	}
	return fmt.Sprintf("direction(%d)", int(d))
}

// PortDef is a named, fixed-width value slot. A port belongs to exactly one
// cell, or to a group when it is an interface hole.
type PortDef struct {
	Name  string
	Width uint
	Dir   Direction
	Cell  CellRef  // NoCell for group holes
	Group GroupRef // NoGroup for cell ports
}

// CellDef is a primitive instance owning a contiguous range of port handles.
type CellDef struct {
	Name      string
	Proto     Descriptor
	FirstPort PortRef
	NumPorts  int
}

// GuardKind discriminates guard expression nodes.
type GuardKind int

const (
	// GuardTrue is the literal true guard.
	GuardTrue GuardKind = iota
	// GuardPort is true iff the referenced single-bit port is defined and nonzero.
	GuardPort
	// GuardNot negates its Left child.
	GuardNot
	// GuardAnd is the conjunction of Left and Right.
	GuardAnd
	// GuardOr is the disjunction of Left and Right.
	GuardOr
	// GuardCmp compares ports A and B with Cmp.
	GuardCmp
)

// CmpOp is a guard comparison operator.
type CmpOp int

const (
	CmpEq CmpOp = iota
	CmpNeq
	CmpGt
	CmpLt
	CmpGe
	CmpLe
	CmpSgt
	CmpSlt
	CmpSge
	CmpSle
)

// Signed reports whether the comparison interprets its operands as
// two's-complement signed integers.
func (c CmpOp) Signed() bool { return c >= CmpSgt }

// GuardNode is one node of a guard expression tree, addressed by GuardRef so
// that evaluation can be iterative rather than recursive. Children always
// precede their parent in the arena (Validate enforces this), so a single
// in-order sweep evaluates any tree.
type GuardNode struct {
	Kind  GuardKind
	Port  PortRef  // GuardPort
	Left  GuardRef // GuardNot, GuardAnd, GuardOr
	Right GuardRef // GuardAnd, GuardOr
	Cmp   CmpOp    // GuardCmp
	A, B  PortRef  // GuardCmp operands
}

// Assignment is an immutable guarded point-to-point wire: when Guard holds,
// Src drives Dst. Continuous assignments are considered every cycle; group
// assignments only when their group is in the active set.
type Assignment struct {
	Dst, Src   PortRef
	Guard      GuardRef
	Continuous bool
	Group      GroupRef // NoGroup when continuous
}

// GroupDef is a named set of assignments with go/done interface holes used by
// the external scheduler.
type GroupDef struct {
	Name    string
	Go      PortRef
	Done    PortRef
	Assigns []AssignRef
}

// Program is the flattened arena form of one circuit.
type Program struct {
	TopLevel string
	Ports    []PortDef
	Cells    []CellDef
	Guards   []GuardNode
	Assigns  []Assignment
	Groups   []GroupDef

	// Continuous lists the assignments active on every cycle; kept explicit so
	// the engine never scans the full arena per step.
	Continuous []AssignRef

	cellIndex  map[string]CellRef
	groupIndex map[string]GroupRef
}

// Port returns the definition of p.
func (pr *Program) Port(p PortRef) *PortDef { return &pr.Ports[p] }

// Cell returns the definition of c.
func (pr *Program) Cell(c CellRef) *CellDef { return &pr.Cells[c] }

// Group returns the definition of g.
func (pr *Program) Group(g GroupRef) *GroupDef { return &pr.Groups[g] }

// Guard returns the guard node at g.
func (pr *Program) Guard(g GuardRef) *GuardNode { return &pr.Guards[g] }

// Assign returns the assignment at a.
func (pr *Program) Assign(a AssignRef) *Assignment { return &pr.Assigns[a] }

// CellPort resolves a port of cell c by name.
func (pr *Program) CellPort(c CellRef, name string) (PortRef, bool) {
	cd := &pr.Cells[c]
	for i := 0; i < cd.NumPorts; i++ {
		p := cd.FirstPort + PortRef(i)
		if pr.Ports[p].Name == name {
			return p, true
		}
	}
	return 0, false
}

// FindCell resolves a cell by name.
func (pr *Program) FindCell(name string) (CellRef, bool) {
	c, ok := pr.cellIndex[name]
	return c, ok
}

// FindGroup resolves a group by name.
func (pr *Program) FindGroup(name string) (GroupRef, bool) {
	g, ok := pr.groupIndex[name]
	return g, ok
}

// PortName renders the fully qualified name of p for diagnostics, e.g.
// "add0.left" or "run[done]" for a group hole.
func (pr *Program) PortName(p PortRef) string {
	pd := &pr.Ports[p]
	if pd.Group != NoGroup {
		return fmt.Sprintf("%s[%s]", pr.Groups[pd.Group].Name, pd.Name)
	}
	if pd.Cell != NoCell {
		return pr.Cells[pd.Cell].Name + "." + pd.Name
	}
	return pd.Name
}

// AssignName renders an assignment for diagnostics.
func (pr *Program) AssignName(a AssignRef) string {
	ad := &pr.Assigns[a]
	return pr.PortName(ad.Dst) + " = " + pr.PortName(ad.Src)
}

// Index rebuilds the name lookup tables. Load and the Builder call this;
// hand-built programs must call it before FindCell/FindGroup.
func (pr *Program) Index() {
	pr.cellIndex = make(map[string]CellRef, len(pr.Cells))
	for i := range pr.Cells {
		pr.cellIndex[pr.Cells[i].Name] = CellRef(i)
	}
	pr.groupIndex = make(map[string]GroupRef, len(pr.Groups))
	for i := range pr.Groups {
		pr.groupIndex[pr.Groups[i].Name] = GroupRef(i)
	}
}

// Validate checks the structural invariants the engine relies on: in-range
// handles, non-zero port widths, contiguous and disjoint cell port ranges,
// width-matched assignments and well-formed descriptors.
func (pr *Program) Validate() error {
	for i := range pr.Ports {
		pd := &pr.Ports[i]
		if pd.Width == 0 {
			return fmt.Errorf("port %q has zero width", pd.Name)
		}
		if pd.Cell != NoCell && (pd.Cell < 0 || int(pd.Cell) >= len(pr.Cells)) {
			return fmt.Errorf("port %q references cell %d out of range", pd.Name, pd.Cell)
		}
		if pd.Group != NoGroup && (pd.Group < 0 || int(pd.Group) >= len(pr.Groups)) {
			return fmt.Errorf("port %q references group %d out of range", pd.Name, pd.Group)
		}
	}

	// Port ranges of distinct cells never overlap.
	order := make([]int, len(pr.Cells))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(i, j int) bool {
		return pr.Cells[order[i]].FirstPort < pr.Cells[order[j]].FirstPort
	})
	prevEnd := PortRef(0)
	for _, ci := range order {
		cd := &pr.Cells[ci]
		if cd.NumPorts <= 0 {
			return fmt.Errorf("cell %q owns no ports", cd.Name)
		}
		end := cd.FirstPort + PortRef(cd.NumPorts)
		if cd.FirstPort < 0 || int(end) > len(pr.Ports) {
			return fmt.Errorf("cell %q port range [%d,%d) out of bounds", cd.Name, cd.FirstPort, end)
		}
		if cd.FirstPort < prevEnd {
			return fmt.Errorf("cell %q port range overlaps another cell", cd.Name)
		}
		prevEnd = end
		for i := 0; i < cd.NumPorts; i++ {
			if own := pr.Ports[cd.FirstPort+PortRef(i)].Cell; own != CellRef(ci) {
				return fmt.Errorf("port %d in range of cell %q owned by cell %d", cd.FirstPort+PortRef(i), cd.Name, own)
			}
		}
		if err := cd.Proto.validate(); err != nil {
			return fmt.Errorf("cell %q: %v", cd.Name, err)
		}
	}

	for i := range pr.Assigns {
		ad := &pr.Assigns[i]
		if err := pr.checkPort(ad.Dst); err != nil {
			return fmt.Errorf("assignment %d dst: %v", i, err)
		}
		if err := pr.checkPort(ad.Src); err != nil {
			return fmt.Errorf("assignment %d src: %v", i, err)
		}
		if ad.Guard < 0 || int(ad.Guard) >= len(pr.Guards) {
			return fmt.Errorf("assignment %d guard %d out of range", i, ad.Guard)
		}
		if dw, sw := pr.Ports[ad.Dst].Width, pr.Ports[ad.Src].Width; dw != sw {
			return fmt.Errorf("assignment %s: width mismatch %d vs %d", pr.AssignName(AssignRef(i)), dw, sw)
		}
	}

	for i := range pr.Guards {
		if err := pr.checkGuard(GuardRef(i)); err != nil {
			return err
		}
	}

	for gi := range pr.Groups {
		gd := &pr.Groups[gi]
		if err := pr.checkPort(gd.Go); err != nil {
			return fmt.Errorf("group %q go hole: %v", gd.Name, err)
		}
		if err := pr.checkPort(gd.Done); err != nil {
			return fmt.Errorf("group %q done hole: %v", gd.Name, err)
		}
		for _, a := range gd.Assigns {
			if a < 0 || int(a) >= len(pr.Assigns) {
				return fmt.Errorf("group %q assignment %d out of range", gd.Name, a)
			}
			if pr.Assigns[a].Group != GroupRef(gi) {
				return fmt.Errorf("group %q assignment %d not tagged with group", gd.Name, a)
			}
		}
	}
	for _, a := range pr.Continuous {
		if a < 0 || int(a) >= len(pr.Assigns) {
			return fmt.Errorf("continuous assignment %d out of range", a)
		}
		if !pr.Assigns[a].Continuous {
			return fmt.Errorf("assignment %d listed continuous but not tagged", a)
		}
	}
	return nil
}

func (pr *Program) checkPort(p PortRef) error {
	if p < 0 || int(p) >= len(pr.Ports) {
		return fmt.Errorf("port handle %d out of range", p)
	}
	return nil
}

func (pr *Program) checkGuard(g GuardRef) error {
	gn := &pr.Guards[g]
	switch gn.Kind {
	case GuardTrue:
	case GuardPort:
		if err := pr.checkPort(gn.Port); err != nil {
			return fmt.Errorf("guard %d: %v", g, err)
		}
		if w := pr.Ports[gn.Port].Width; w != 1 {
			return fmt.Errorf("guard %d: truth guard over %d-bit port %s, must be single-bit", g, w, pr.PortName(gn.Port))
		}
	case GuardNot:
		if gn.Left < 0 || gn.Left >= g {
			return fmt.Errorf("guard %d: child %d must precede its parent in the arena", g, gn.Left)
		}
	case GuardAnd, GuardOr:
		for _, ch := range []GuardRef{gn.Left, gn.Right} {
			if ch < 0 || ch >= g {
				return fmt.Errorf("guard %d: child %d must precede its parent in the arena", g, ch)
			}
		}
	case GuardCmp:
		if err := pr.checkPort(gn.A); err != nil {
			return fmt.Errorf("guard %d: %v", g, err)
		}
		if err := pr.checkPort(gn.B); err != nil {
			return fmt.Errorf("guard %d: %v", g, err)
		}
		if aw, bw := pr.Ports[gn.A].Width, pr.Ports[gn.B].Width; aw != bw {
			return fmt.Errorf("guard %d: comparison width mismatch %d vs %d", g, aw, bw)
		}
	default:
		return fmt.Errorf("guard %d: unknown kind %d", g, gn.Kind)
	}
	return nil
}
