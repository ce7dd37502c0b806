package prims

import (
	"fmt"

	"github.com/loomhdl/loom/pkg/flat"
)

// Typed storage-access errors. They carry handles only; callers resolve names
// through the flattened program's tables when pretty-printing.

// UndefinedWriteError reports a write of an undefined value to a register or
// memory.
type UndefinedWriteError struct {
	Cell flat.CellRef
}

func (e *UndefinedWriteError) Error() string {
	return fmt.Sprintf("undefined value written to %s", e.Cell)
}

// UndefinedWriteAddrError reports a memory write whose address signal is
// undefined while the write enable is asserted.
type UndefinedWriteAddrError struct {
	Cell flat.CellRef
}

func (e *UndefinedWriteAddrError) Error() string {
	return fmt.Sprintf("write to %s with undefined address", e.Cell)
}

// UndefinedReadAddrError reports a performed read with an undefined address
// signal, or of an address that was never written nor preloaded. Index is the
// flat location index, or -1 when the address itself was undefined.
type UndefinedReadAddrError struct {
	Cell  flat.CellRef
	Index int64
}

func (e *UndefinedReadAddrError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("read from %s with undefined address", e.Cell)
	}
	return fmt.Sprintf("read of uninitialized address %d of %s", e.Index, e.Cell)
}

// InvalidMemoryAccessError reports a memory index outside the declared
// per-dimension bounds.
type InvalidMemoryAccessError struct {
	Cell  flat.CellRef
	Index []uint64 // offending index tuple
	Dims  []uint64 // declared shape
}

func (e *InvalidMemoryAccessError) Error() string {
	return fmt.Sprintf("index %v out of bounds for %s with shape %v", e.Index, e.Cell, e.Dims)
}

// OverflowError is reserved for arithmetic results exceeding a configured
// width. The built-in primitives use wrap-around truncation and never raise
// it; the type exists so callers can already dispatch on it.
type OverflowError struct {
	Cell flat.CellRef
}

func (e *OverflowError) Error() string {
	return fmt.Sprintf("arithmetic overflow in %s", e.Cell)
}
