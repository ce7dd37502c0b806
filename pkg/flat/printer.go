package flat

import (
	"fmt"
	"io"
)

// Printer outputs a human-readable listing of the flattened program, shown
// by the driver's program-listing flag.
type Printer struct {
	w io.Writer
}

// NewPrinter creates a new program printer.
func NewPrinter(w io.Writer) *Printer {
	return &Printer{w: w}
}

// PrintProgram prints a complete program listing.
func (p *Printer) PrintProgram(prog *Program) {
	fmt.Fprintf(p.w, "component %s {\n", prog.TopLevel)

	fmt.Fprintln(p.w, "  cells {")
	for ci := range prog.Cells {
		cd := &prog.Cells[ci]
		fmt.Fprintf(p.w, "    %s = %s\n", cd.Name, describeProto(&cd.Proto))
	}
	fmt.Fprintln(p.w, "  }")

	if len(prog.Continuous) > 0 {
		fmt.Fprintln(p.w, "  wires {")
		for _, a := range prog.Continuous {
			p.printAssign(prog, a, "    ")
		}
		fmt.Fprintln(p.w, "  }")
	}

	for gi := range prog.Groups {
		gd := &prog.Groups[gi]
		fmt.Fprintf(p.w, "  group %s {\n", gd.Name)
		for _, a := range gd.Assigns {
			p.printAssign(prog, a, "    ")
		}
		fmt.Fprintln(p.w, "  }")
	}

	fmt.Fprintln(p.w, "}")
}

func (p *Printer) printAssign(prog *Program, a AssignRef, indent string) {
	ad := prog.Assign(a)
	fmt.Fprintf(p.w, "%s%s = %s", indent, prog.PortName(ad.Dst), prog.PortName(ad.Src))
	if prog.Guards[ad.Guard].Kind != GuardTrue {
		fmt.Fprintf(p.w, " when %s", prog.GuardString(ad.Guard))
	}
	fmt.Fprintln(p.w)
}

func describeProto(d *Descriptor) string {
	switch d.Op {
	case OpConst:
		return fmt.Sprintf("const(%s, %d)", d.Init, d.Width)
	case OpMem, OpSeqMem:
		return fmt.Sprintf("%s(%d, %v)", d.Op, d.Width, d.Dims)
	case OpMultPipe, OpDivPipe, OpSqrt:
		return fmt.Sprintf("%s(%d, latency=%d)", d.Op, d.Width, d.Latency)
	case OpFPMultPipe, OpFPDivPipe:
		return fmt.Sprintf("%s(%d.%d, latency=%d)", d.Op, d.IntWidth, d.FracWidth, d.Latency)
	case OpSlice, OpPad, OpSignPad:
		return fmt.Sprintf("%s(%d -> %d)", d.Op, d.InWidth, d.Width)
	default:
		return fmt.Sprintf("%s(%d)", d.Op, d.Width)
	}
}

// GuardString renders a guard expression tree as infix text.
func (pr *Program) GuardString(g GuardRef) string {
	gn := &pr.Guards[g]
	switch gn.Kind {
	case GuardTrue:
		return "1"
	case GuardPort:
		return pr.PortName(gn.Port)
	case GuardNot:
		return "!" + pr.GuardString(gn.Left)
	case GuardAnd:
		return "(" + pr.GuardString(gn.Left) + " & " + pr.GuardString(gn.Right) + ")"
	case GuardOr:
		return "(" + pr.GuardString(gn.Left) + " | " + pr.GuardString(gn.Right) + ")"
	case GuardCmp:
		return fmt.Sprintf("(%s %s %s)", pr.PortName(gn.A), cmpNames[gn.Cmp], pr.PortName(gn.B))
	}
	return fmt.Sprintf("guard#%d", g)
}
