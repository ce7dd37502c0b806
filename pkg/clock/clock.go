// Package clock implements the logical-clock race detector for storage
// accesses. Each settled cycle yields a set of read and write events against
// storage locations, tagged with the logical thread (the scheduled group)
// that caused them; two events race when they touch the same location in the
// same cycle from different threads and at least one is a write.
package clock

import (
	"fmt"

	"github.com/loomhdl/loom/pkg/flat"
)

// Epoch identifies one access: the cycle it settled in (for diagnostics
// only), the logical thread whose assignments caused it, and the assignment.
type Epoch struct {
	Cycle  uint64
	Thread int
	Assign flat.AssignRef
}

// Ordered reports whether two epochs are ordered by happens-before. Within
// one schedule step, only a thread's own program order sequences its
// accesses; ordering across steps comes from Barrier, not from cycle counts,
// because a parallel arm keeps racing across clock edges until its join.
func (e Epoch) Ordered(o Epoch) bool {
	return e.Thread == o.Thread
}

// Location is a flat storage address: a cell plus the element index within
// it (always 0 for registers).
type Location struct {
	Cell  flat.CellRef
	Index int64
}

// Race kinds, named for the order the two conflicting accesses were reported.
type RaceKind int

const (
	ReadAfterWrite RaceKind = iota
	WriteAfterWrite
	WriteAfterRead
)

func (k RaceKind) String() string {
	switch k {
	case ReadAfterWrite:
		return "read-after-write"
	case WriteAfterWrite:
		return "write-after-write"
	case WriteAfterRead:
		return "write-after-read"
	}
	return fmt.Sprintf("race(%d)", int(k))
}

// RaceError reports two unordered accesses to the same location.
type RaceError struct {
	Kind          RaceKind
	Loc           Location
	First, Second Epoch
}

func (e *RaceError) Error() string {
	return fmt.Sprintf("%s race on cell %d index %d: threads %d and %d in cycle %d",
		e.Kind, e.Loc.Cell, e.Loc.Index, e.First.Thread, e.Second.Thread, e.Second.Cycle)
}

// A Detector receives the settled access events of each cycle. Read and
// Write return a RaceError when the new access is unordered with a recorded
// conflicting one. Barrier marks a join point in the schedule: everything
// recorded before it happens-before everything after.
type Detector interface {
	Read(loc Location, at Epoch) error
	Write(loc Location, at Epoch) error
	Barrier()
}

// Noop is the detector used when race checking is disabled.
type Noop struct{}

func (Noop) Read(Location, Epoch) error  { return nil }
func (Noop) Write(Location, Epoch) error { return nil }
func (Noop) Barrier()                    {}

// record tracks the last write epoch and the reads since it for one location.
type record struct {
	write    Epoch
	hasWrite bool
	reads    []Epoch
}

// Tracker is the per-location happens-before detector. It keeps the last
// write and the reads since it for every touched location; a Barrier orders
// all recorded accesses before everything that follows, so the records can
// simply be dropped there.
type Tracker struct {
	locs map[Location]*record
}

// NewTracker returns an empty race detector.
func NewTracker() *Tracker {
	return &Tracker{locs: make(map[Location]*record)}
}

func (t *Tracker) at(loc Location) *record {
	rec, ok := t.locs[loc]
	if !ok {
		rec = &record{}
		t.locs[loc] = rec
	}
	return rec
}

// Read records a read of loc and checks it against the last write.
func (t *Tracker) Read(loc Location, at Epoch) error {
	rec := t.at(loc)
	if rec.hasWrite && !rec.write.Ordered(at) {
		return &RaceError{Kind: ReadAfterWrite, Loc: loc, First: rec.write, Second: at}
	}
	rec.reads = append(rec.reads, at)
	return nil
}

// Write records a write of loc and checks it against the last write and all
// reads since that write.
func (t *Tracker) Write(loc Location, at Epoch) error {
	rec := t.at(loc)
	if rec.hasWrite && !rec.write.Ordered(at) {
		return &RaceError{Kind: WriteAfterWrite, Loc: loc, First: rec.write, Second: at}
	}
	for _, rd := range rec.reads {
		if !rd.Ordered(at) {
			return &RaceError{Kind: WriteAfterRead, Loc: loc, First: rd, Second: at}
		}
	}
	rec.write = at
	rec.hasWrite = true
	rec.reads = rec.reads[:0]
	return nil
}

// Barrier forgets all recorded accesses: a schedule join point sequences them
// before any later access.
func (t *Tracker) Barrier() {
	t.locs = make(map[Location]*record)
}
