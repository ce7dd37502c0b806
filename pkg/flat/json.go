package flat

import (
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"strings"

	"github.com/pkg/errors"

	"github.com/loomhdl/loom/pkg/values"
)

// JSON wire form of a flattened program. Cells nest their port declarations so
// the contiguous-range invariant is implied by construction; guard nodes form
// a flat list whose children precede their parents; port references are name
// paths ("cell.port", "group[done]") rather than raw handles.

type jsonProgram struct {
	TopLevel string       `json:"top_level"`
	Cells    []jsonCell   `json:"cells"`
	Groups   []jsonGroup  `json:"groups,omitempty"`
	Guards   []jsonGuard  `json:"guards,omitempty"`
	Assigns  []jsonAssign `json:"assignments"`
}

type jsonPortDecl struct {
	Name  string `json:"name"`
	Width uint   `json:"width"`
	Dir   string `json:"dir"`
}

type jsonCell struct {
	Name       string         `json:"name"`
	Op         string         `json:"op"`
	Width      uint           `json:"width"`
	InWidth    uint           `json:"in_width,omitempty"`
	LeftWidth  uint           `json:"left_width,omitempty"`
	RightWidth uint           `json:"right_width,omitempty"`
	Latency    uint           `json:"latency,omitempty"`
	IntWidth   uint           `json:"int_width,omitempty"`
	FracWidth  uint           `json:"frac_width,omitempty"`
	Dims       []uint64       `json:"dimensions,omitempty"`
	IdxWidths  []uint         `json:"index_widths,omitempty"`
	Value      string         `json:"value,omitempty"` // const cells: decimal
	Ports      []jsonPortDecl `json:"ports"`
}

type jsonGroup struct {
	Name string `json:"name"`
}

type jsonGuard struct {
	Kind  string `json:"kind"`
	Port  string `json:"port,omitempty"`
	Left  int    `json:"left,omitempty"`
	Right int    `json:"right,omitempty"`
	Cmp   string `json:"cmp,omitempty"`
	A     string `json:"a,omitempty"`
	B     string `json:"b,omitempty"`
}

type jsonAssign struct {
	Dst   string `json:"dst"`
	Src   string `json:"src"`
	Guard *int   `json:"guard,omitempty"` // index into guards; nil means true
	Group string `json:"group,omitempty"` // empty means continuous
}

var cmpNames = map[CmpOp]string{
	CmpEq: "eq", CmpNeq: "neq", CmpGt: "gt", CmpLt: "lt", CmpGe: "ge", CmpLe: "le",
	CmpSgt: "sgt", CmpSlt: "slt", CmpSge: "sge", CmpSle: "sle",
}

var cmpByName = func() map[string]CmpOp {
	m := make(map[string]CmpOp, len(cmpNames))
	for op, n := range cmpNames {
		m[n] = op
	}
	return m
}()

var guardKindNames = map[GuardKind]string{
	GuardTrue: "true", GuardPort: "port", GuardNot: "not",
	GuardAnd: "and", GuardOr: "or", GuardCmp: "cmp",
}

var guardKindByName = func() map[string]GuardKind {
	m := make(map[string]GuardKind, len(guardKindNames))
	for k, n := range guardKindNames {
		m[n] = k
	}
	return m
}()

// Load reads the JSON program form, validates it and returns the arena
// representation.
func Load(r io.Reader) (*Program, error) {
	var jp jsonProgram
	dec := json.NewDecoder(r)
	if err := dec.Decode(&jp); err != nil {
		return nil, errors.Wrap(err, "decoding flat program")
	}

	b := NewBuilder(jp.TopLevel)
	for _, jc := range jp.Cells {
		op, ok := ParseOp(jc.Op)
		if !ok {
			return nil, errors.Errorf("cell %q: unknown op %q", jc.Name, jc.Op)
		}
		d := Descriptor{
			Op:         op,
			Width:      jc.Width,
			InWidth:    jc.InWidth,
			LeftWidth:  jc.LeftWidth,
			RightWidth: jc.RightWidth,
			Latency:    jc.Latency,
			IntWidth:   jc.IntWidth,
			FracWidth:  jc.FracWidth,
			Dims:       jc.Dims,
			IdxWidths:  jc.IdxWidths,
		}
		if op == OpConst {
			n, ok := new(big.Int).SetString(jc.Value, 10)
			if !ok {
				return nil, errors.Errorf("cell %q: bad const value %q", jc.Name, jc.Value)
			}
			v := values.FromBig(n, jc.Width)
			d.Init = &v
		}
		ports := make([]PortDecl, len(jc.Ports))
		for i, pd := range jc.Ports {
			dir, err := parseDir(pd.Dir)
			if err != nil {
				return nil, errors.Wrapf(err, "cell %q port %q", jc.Name, pd.Name)
			}
			ports[i] = PortDecl{Name: pd.Name, Width: pd.Width, Dir: dir}
		}
		b.AddCell(jc.Name, d, ports)
	}
	for _, jg := range jp.Groups {
		b.AddGroup(jg.Name)
	}
	b.prog.Index() // name paths resolved below need the lookup tables

	guardIdx := make([]GuardRef, len(jp.Guards))
	for i, jg := range jp.Guards {
		kind, ok := guardKindByName[jg.Kind]
		if !ok {
			return nil, errors.Errorf("guard %d: unknown kind %q", i, jg.Kind)
		}
		n := GuardNode{Kind: kind}
		var err error
		switch kind {
		case GuardPort:
			n.Port, err = b.prog.resolvePortPath(jg.Port)
		case GuardNot:
			n.Left, err = childGuard(guardIdx, i, jg.Left)
		case GuardAnd, GuardOr:
			if n.Left, err = childGuard(guardIdx, i, jg.Left); err == nil {
				n.Right, err = childGuard(guardIdx, i, jg.Right)
			}
		case GuardCmp:
			cmp, ok := cmpByName[jg.Cmp]
			if !ok {
				return nil, errors.Errorf("guard %d: unknown comparison %q", i, jg.Cmp)
			}
			n.Cmp = cmp
			if n.A, err = b.prog.resolvePortPath(jg.A); err == nil {
				n.B, err = b.prog.resolvePortPath(jg.B)
			}
		}
		if err != nil {
			return nil, errors.Wrapf(err, "guard %d", i)
		}
		guardIdx[i] = b.addGuard(n)
	}

	for i, ja := range jp.Assigns {
		dst, err := b.prog.resolvePortPath(ja.Dst)
		if err != nil {
			return nil, errors.Wrapf(err, "assignment %d dst", i)
		}
		src, err := b.prog.resolvePortPath(ja.Src)
		if err != nil {
			return nil, errors.Wrapf(err, "assignment %d src", i)
		}
		guard := b.True()
		if ja.Guard != nil {
			if *ja.Guard < 0 || *ja.Guard >= len(guardIdx) {
				return nil, errors.Errorf("assignment %d: guard index %d out of range", i, *ja.Guard)
			}
			guard = guardIdx[*ja.Guard]
		}
		group := NoGroup
		if ja.Group != "" {
			g, ok := b.prog.FindGroup(ja.Group)
			if !ok {
				return nil, errors.Errorf("assignment %d: unknown group %q", i, ja.Group)
			}
			group = g
		}
		b.Assign(group, dst, src, guard)
	}

	return b.Program()
}

func childGuard(idx []GuardRef, parent, child int) (GuardRef, error) {
	if child < 0 || child >= parent {
		return 0, errors.Errorf("child %d must precede parent %d", child, parent)
	}
	return idx[child], nil
}

func parseDir(s string) (Direction, error) {
	switch s {
	case "in":
		return DirIn, nil
	case "out":
		return DirOut, nil
	case "hole":
		return DirHole, nil
	}
	return 0, errors.Errorf("unknown port direction %q", s)
}

// resolvePortPath parses "cell.port" and "group[hole]" references.
func (pr *Program) resolvePortPath(path string) (PortRef, error) {
	if i := strings.IndexByte(path, '['); i >= 0 && strings.HasSuffix(path, "]") {
		g, ok := pr.FindGroup(path[:i])
		if !ok {
			return 0, errors.Errorf("unknown group in %q", path)
		}
		switch hole := path[i+1 : len(path)-1]; hole {
		case "go":
			return pr.Groups[g].Go, nil
		case "done":
			return pr.Groups[g].Done, nil
		default:
			return 0, errors.Errorf("unknown hole %q in %q", hole, path)
		}
	}
	i := strings.LastIndexByte(path, '.')
	if i < 0 {
		return 0, errors.Errorf("malformed port path %q", path)
	}
	c, ok := pr.FindCell(path[:i])
	if !ok {
		return 0, errors.Errorf("unknown cell in %q", path)
	}
	p, ok := pr.CellPort(c, path[i+1:])
	if !ok {
		return 0, errors.Errorf("cell %q has no port %q", path[:i], path[i+1:])
	}
	return p, nil
}

// WriteJSON emits the JSON form of the program. Programs written and reloaded
// through Load yield identical arenas.
func (pr *Program) WriteJSON(w io.Writer) error {
	jp := jsonProgram{TopLevel: pr.TopLevel}

	for ci := range pr.Cells {
		cd := &pr.Cells[ci]
		jc := jsonCell{
			Name:       cd.Name,
			Op:         cd.Proto.Op.String(),
			Width:      cd.Proto.Width,
			InWidth:    cd.Proto.InWidth,
			LeftWidth:  cd.Proto.LeftWidth,
			RightWidth: cd.Proto.RightWidth,
			Latency:    cd.Proto.Latency,
			IntWidth:   cd.Proto.IntWidth,
			FracWidth:  cd.Proto.FracWidth,
			Dims:       cd.Proto.Dims,
			IdxWidths:  cd.Proto.IdxWidths,
		}
		if cd.Proto.Init != nil {
			jc.Value = cd.Proto.Init.Unsigned().String()
		}
		for i := 0; i < cd.NumPorts; i++ {
			pd := &pr.Ports[cd.FirstPort+PortRef(i)]
			jc.Ports = append(jc.Ports, jsonPortDecl{Name: pd.Name, Width: pd.Width, Dir: pd.Dir.String()})
		}
		jp.Cells = append(jp.Cells, jc)
	}
	for gi := range pr.Groups {
		jp.Groups = append(jp.Groups, jsonGroup{Name: pr.Groups[gi].Name})
	}
	for i := range pr.Guards {
		gn := &pr.Guards[i]
		jg := jsonGuard{Kind: guardKindNames[gn.Kind]}
		switch gn.Kind {
		case GuardPort:
			jg.Port = pr.PortName(gn.Port)
		case GuardNot:
			jg.Left = int(gn.Left)
		case GuardAnd, GuardOr:
			jg.Left, jg.Right = int(gn.Left), int(gn.Right)
		case GuardCmp:
			jg.Cmp = cmpNames[gn.Cmp]
			jg.A, jg.B = pr.PortName(gn.A), pr.PortName(gn.B)
		}
		jp.Guards = append(jp.Guards, jg)
	}
	for i := range pr.Assigns {
		ad := &pr.Assigns[i]
		ja := jsonAssign{Dst: pr.PortName(ad.Dst), Src: pr.PortName(ad.Src)}
		g := int(ad.Guard)
		ja.Guard = &g
		if ad.Group != NoGroup {
			ja.Group = pr.Groups[ad.Group].Name
		}
		jp.Assigns = append(jp.Assigns, ja)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(&jp); err != nil {
		return errors.Wrap(err, "encoding flat program")
	}
	return nil
}

// Stringer support for handles keeps diagnostics readable when no name table
// is at hand.
func (p PortRef) String() string   { return fmt.Sprintf("port#%d", int(p)) }
func (c CellRef) String() string   { return fmt.Sprintf("cell#%d", int(c)) }
func (a AssignRef) String() string { return fmt.Sprintf("assign#%d", int(a)) }
