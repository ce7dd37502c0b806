package flat

import "fmt"

// PortDecl declares one port of a cell being built.
type PortDecl struct {
	Name  string
	Width uint
	Dir   Direction
}

// Builder constructs a Program arena by arena. It maintains the contiguous
// port-range invariant for cells and interns the literal-true guard.
type Builder struct {
	prog      Program
	trueGuard GuardRef
	hasTrue   bool
}

// NewBuilder starts a program for the named top-level component.
func NewBuilder(topLevel string) *Builder {
	return &Builder{prog: Program{TopLevel: topLevel}}
}

// AddCell appends a cell and its contiguous port range.
func (b *Builder) AddCell(name string, proto Descriptor, ports []PortDecl) CellRef {
	c := CellRef(len(b.prog.Cells))
	first := PortRef(len(b.prog.Ports))
	for _, pd := range ports {
		b.prog.Ports = append(b.prog.Ports, PortDef{
			Name:  pd.Name,
			Width: pd.Width,
			Dir:   pd.Dir,
			Cell:  c,
			Group: NoGroup,
		})
	}
	b.prog.Cells = append(b.prog.Cells, CellDef{
		Name:      name,
		Proto:     proto,
		FirstPort: first,
		NumPorts:  len(ports),
	})
	return c
}

// AddGroup appends a group with fresh single-bit go/done holes.
func (b *Builder) AddGroup(name string) GroupRef {
	g := GroupRef(len(b.prog.Groups))
	goHole := PortRef(len(b.prog.Ports))
	b.prog.Ports = append(b.prog.Ports,
		PortDef{Name: "go", Width: 1, Dir: DirHole, Cell: NoCell, Group: g},
		PortDef{Name: "done", Width: 1, Dir: DirHole, Cell: NoCell, Group: g},
	)
	b.prog.Groups = append(b.prog.Groups, GroupDef{Name: name, Go: goHole, Done: goHole + 1})
	return g
}

// Port resolves a port of cell c by name, panicking if it does not exist.
// Intended for program construction, where a missing port is a builder bug.
func (b *Builder) Port(c CellRef, name string) PortRef {
	p, ok := b.prog.CellPort(c, name)
	if !ok {
		panic(fmt.Sprintf("flat: cell %q has no port %q", b.prog.Cells[c].Name, name))
	}
	return p
}

// GoHole returns group g's go hole.
func (b *Builder) GoHole(g GroupRef) PortRef { return b.prog.Groups[g].Go }

// DoneHole returns group g's done hole.
func (b *Builder) DoneHole(g GroupRef) PortRef { return b.prog.Groups[g].Done }

// True returns the interned literal-true guard.
func (b *Builder) True() GuardRef {
	if !b.hasTrue {
		b.trueGuard = b.addGuard(GuardNode{Kind: GuardTrue})
		b.hasTrue = true
	}
	return b.trueGuard
}

// PortGuard returns a guard that is true iff p is defined and nonzero.
func (b *Builder) PortGuard(p PortRef) GuardRef {
	return b.addGuard(GuardNode{Kind: GuardPort, Port: p})
}

// Not returns the negation of g.
func (b *Builder) Not(g GuardRef) GuardRef {
	return b.addGuard(GuardNode{Kind: GuardNot, Left: g})
}

// And returns the conjunction of l and r.
func (b *Builder) And(l, r GuardRef) GuardRef {
	return b.addGuard(GuardNode{Kind: GuardAnd, Left: l, Right: r})
}

// Or returns the disjunction of l and r.
func (b *Builder) Or(l, r GuardRef) GuardRef {
	return b.addGuard(GuardNode{Kind: GuardOr, Left: l, Right: r})
}

// Cmp returns a comparison guard over ports a and b.
func (b *Builder) Cmp(op CmpOp, a, c PortRef) GuardRef {
	return b.addGuard(GuardNode{Kind: GuardCmp, Cmp: op, A: a, B: c})
}

func (b *Builder) addGuard(n GuardNode) GuardRef {
	g := GuardRef(len(b.prog.Guards))
	b.prog.Guards = append(b.prog.Guards, n)
	return g
}

// Assign appends an assignment to group g, or a continuous assignment when g
// is NoGroup.
func (b *Builder) Assign(g GroupRef, dst, src PortRef, guard GuardRef) AssignRef {
	a := AssignRef(len(b.prog.Assigns))
	b.prog.Assigns = append(b.prog.Assigns, Assignment{
		Dst:        dst,
		Src:        src,
		Guard:      guard,
		Continuous: g == NoGroup,
		Group:      g,
	})
	if g == NoGroup {
		b.prog.Continuous = append(b.prog.Continuous, a)
	} else {
		gd := &b.prog.Groups[g]
		gd.Assigns = append(gd.Assigns, a)
	}
	return a
}

// Program validates and returns the built program. The builder must not be
// reused afterwards.
func (b *Builder) Program() (*Program, error) {
	b.prog.Index()
	if err := b.prog.Validate(); err != nil {
		return nil, err
	}
	return &b.prog, nil
}
