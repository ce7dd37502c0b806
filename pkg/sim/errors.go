package sim

import (
	"fmt"

	"github.com/loomhdl/loom/pkg/flat"
	"github.com/loomhdl/loom/pkg/values"
)

// AssignedValue records which assignment drove a value, for diagnostics. A
// negative thread marks a driver outside any scheduled group (a continuous
// assignment or a primitive's own output).
type AssignedValue struct {
	Assign flat.AssignRef
	Thread int
	Val    values.Value
}

// ConflictingAssignmentsError reports two active, true-guarded assignments
// that disagree on a destination port's value.
type ConflictingAssignmentsError struct {
	Port flat.PortRef
	A, B AssignedValue
}

func (e *ConflictingAssignmentsError) Error() string {
	return fmt.Sprintf("conflicting assignments to port %d: assignment %d drives %s, assignment %d drives %s",
		e.Port, e.A.Assign, e.A.Val, e.B.Assign, e.B.Val)
}

// UnstableGuard is one (cell, assignment, port) tuple whose guard never
// resolved to a stable truth value during settling.
type UnstableGuard struct {
	Cell   flat.CellRef // NoCell when the undefined port is a group hole
	Assign flat.AssignRef
	Port   flat.PortRef // the still-undefined port inside the guard
}

// UndefinedGuardError reports that settling finished with guards still
// undefined: some active assignments could be neither applied nor discarded.
type UndefinedGuardError struct {
	Unstable []UnstableGuard
}

func (e *UndefinedGuardError) Error() string {
	return fmt.Sprintf("%d assignment guard(s) never resolved to a defined truth value", len(e.Unstable))
}

// ConvergenceLimitError reports that port values were still changing when the
// iteration cap was reached, i.e. the active set contains a combinational
// cycle that does not settle.
type ConvergenceLimitError struct {
	Limit int
}

func (e *ConvergenceLimitError) Error() string {
	return fmt.Sprintf("combinational settling did not converge within %d iterations", e.Limit)
}
