package sim

import (
	"errors"
	"fmt"
	"strings"

	"github.com/loomhdl/loom/pkg/clock"
	"github.com/loomhdl/loom/pkg/flat"
	"github.com/loomhdl/loom/pkg/prims"
)

// FormatError renders a simulation error with the program's name tables. The
// error types themselves carry only handles and values; resolving them to
// names is the caller's concern, which keeps the core free of any printing.
func FormatError(prog *flat.Program, err error) string {
	var conflict *ConflictingAssignmentsError
	if errors.As(err, &conflict) {
		return fmt.Sprintf("conflicting assignments to %s:\n  %s drives %s\n  %s drives %s",
			prog.PortName(conflict.Port),
			prog.AssignName(conflict.A.Assign), conflict.A.Val,
			prog.AssignName(conflict.B.Assign), conflict.B.Val)
	}

	var undef *UndefinedGuardError
	if errors.As(err, &undef) {
		var b strings.Builder
		b.WriteString("guards never resolved to a defined truth value:")
		for _, u := range undef.Unstable {
			fmt.Fprintf(&b, "\n  %s gated by undefined %s", prog.AssignName(u.Assign), prog.PortName(u.Port))
		}
		return b.String()
	}

	var limit *ConvergenceLimitError
	if errors.As(err, &limit) {
		return fmt.Sprintf("combinational settling did not converge within %d iterations; the active set contains a combinational cycle", limit.Limit)
	}

	var uw *prims.UndefinedWriteError
	if errors.As(err, &uw) {
		return fmt.Sprintf("wrote an undefined value to %s", prog.Cell(uw.Cell).Name)
	}
	var uwa *prims.UndefinedWriteAddrError
	if errors.As(err, &uwa) {
		return fmt.Sprintf("wrote %s through an undefined address", prog.Cell(uwa.Cell).Name)
	}
	var ura *prims.UndefinedReadAddrError
	if errors.As(err, &ura) {
		if ura.Index < 0 {
			return fmt.Sprintf("read %s through an undefined address", prog.Cell(ura.Cell).Name)
		}
		return fmt.Sprintf("read %s[%d], which was never written or preloaded", prog.Cell(ura.Cell).Name, ura.Index)
	}
	var oob *prims.InvalidMemoryAccessError
	if errors.As(err, &oob) {
		return fmt.Sprintf("memory access %s%v outside declared shape %v", prog.Cell(oob.Cell).Name, oob.Index, oob.Dims)
	}
	var ovf *prims.OverflowError
	if errors.As(err, &ovf) {
		return fmt.Sprintf("arithmetic overflow in %s", prog.Cell(ovf.Cell).Name)
	}

	var race *clock.RaceError
	if errors.As(err, &race) {
		return fmt.Sprintf("%s race on %s[%d] in cycle %d:\n  %s (thread %d)\n  %s (thread %d)",
			race.Kind, prog.Cell(race.Loc.Cell).Name, race.Loc.Index, race.Second.Cycle,
			accessName(prog, race.First), race.First.Thread,
			accessName(prog, race.Second), race.Second.Thread)
	}

	return err.Error()
}

func accessName(prog *flat.Program, at clock.Epoch) string {
	if at.Thread == ThreadNone {
		return "(continuous or internal driver)"
	}
	return prog.AssignName(at.Assign)
}
