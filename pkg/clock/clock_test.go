package clock

import (
	"errors"
	"testing"
)

func TestOrdered(t *testing.T) {
	tests := []struct {
		name     string
		a, b     Epoch
		expected bool
	}{
		{"same thread", Epoch{Cycle: 3, Thread: 2}, Epoch{Cycle: 5, Thread: 2}, true},
		{"different threads same cycle", Epoch{Cycle: 3, Thread: 0}, Epoch{Cycle: 3, Thread: 1}, false},
		{"different threads later cycle", Epoch{Cycle: 1, Thread: 0}, Epoch{Cycle: 7, Thread: 1}, false},
	}
	for _, tt := range tests {
		if got := tt.a.Ordered(tt.b); got != tt.expected {
			t.Errorf("%s: expected=%v, got=%v", tt.name, tt.expected, got)
		}
	}
}

func TestWriteAfterWrite(t *testing.T) {
	d := NewTracker()
	loc := Location{Cell: 4, Index: 0}
	if err := d.Write(loc, Epoch{Cycle: 7, Thread: 0}); err != nil {
		t.Fatalf("first write raced: %v", err)
	}
	// parallel arms keep racing across clock edges
	err := d.Write(loc, Epoch{Cycle: 8, Thread: 1})
	var race *RaceError
	if !errors.As(err, &race) {
		t.Fatalf("expected RaceError, got=%v", err)
	}
	if race.Kind != WriteAfterWrite {
		t.Errorf("kind wrong. expected=%v, got=%v", WriteAfterWrite, race.Kind)
	}
	if race.First.Thread != 0 || race.Second.Thread != 1 {
		t.Errorf("conflicting threads wrong: %+v", race)
	}
}

func TestWriteAfterRead(t *testing.T) {
	d := NewTracker()
	loc := Location{Cell: 2, Index: 5}
	if err := d.Read(loc, Epoch{Cycle: 3, Thread: 0}); err != nil {
		t.Fatalf("read raced: %v", err)
	}
	err := d.Write(loc, Epoch{Cycle: 3, Thread: 1})
	var race *RaceError
	if !errors.As(err, &race) {
		t.Fatalf("expected RaceError, got=%v", err)
	}
	if race.Kind != WriteAfterRead {
		t.Errorf("kind wrong. expected=%v, got=%v", WriteAfterRead, race.Kind)
	}
}

func TestReadAfterWrite(t *testing.T) {
	d := NewTracker()
	loc := Location{Cell: 1, Index: 0}
	if err := d.Write(loc, Epoch{Cycle: 9, Thread: 2}); err != nil {
		t.Fatalf("write raced: %v", err)
	}
	err := d.Read(loc, Epoch{Cycle: 10, Thread: 3})
	var race *RaceError
	if !errors.As(err, &race) {
		t.Fatalf("expected RaceError, got=%v", err)
	}
	if race.Kind != ReadAfterWrite {
		t.Errorf("kind wrong. expected=%v, got=%v", ReadAfterWrite, race.Kind)
	}
}

func TestSameThreadDoesNotRace(t *testing.T) {
	d := NewTracker()
	loc := Location{Cell: 0, Index: 0}
	if err := d.Write(loc, Epoch{Cycle: 1, Thread: 0}); err != nil {
		t.Fatalf("write raced: %v", err)
	}
	if err := d.Read(loc, Epoch{Cycle: 1, Thread: 0}); err != nil {
		t.Fatalf("same-thread read raced: %v", err)
	}
	if err := d.Write(loc, Epoch{Cycle: 2, Thread: 0}); err != nil {
		t.Fatalf("same-thread write raced: %v", err)
	}
}

func TestBarrierOrdersAcrossSteps(t *testing.T) {
	d := NewTracker()
	loc := Location{Cell: 3, Index: 1}
	if err := d.Write(loc, Epoch{Cycle: 1, Thread: 0}); err != nil {
		t.Fatalf("write raced: %v", err)
	}
	d.Barrier()
	// sequential composition: a different thread after the join is ordered
	if err := d.Write(loc, Epoch{Cycle: 2, Thread: 1}); err != nil {
		t.Fatalf("post-barrier write raced: %v", err)
	}
	if err := d.Read(loc, Epoch{Cycle: 2, Thread: 1}); err != nil {
		t.Fatalf("post-barrier read raced: %v", err)
	}
}

func TestDistinctLocationsDoNotRace(t *testing.T) {
	d := NewTracker()
	if err := d.Write(Location{Cell: 5, Index: 0}, Epoch{Cycle: 1, Thread: 0}); err != nil {
		t.Fatalf("write raced: %v", err)
	}
	if err := d.Write(Location{Cell: 5, Index: 1}, Epoch{Cycle: 1, Thread: 1}); err != nil {
		t.Fatalf("write to a different element raced: %v", err)
	}
	if err := d.Write(Location{Cell: 6, Index: 0}, Epoch{Cycle: 1, Thread: 2}); err != nil {
		t.Fatalf("write to a different cell raced: %v", err)
	}
}

func TestNoopNeverReports(t *testing.T) {
	var d Detector = Noop{}
	loc := Location{Cell: 0, Index: 0}
	if err := d.Write(loc, Epoch{Cycle: 1, Thread: 0}); err != nil {
		t.Fatalf("noop reported: %v", err)
	}
	if err := d.Write(loc, Epoch{Cycle: 1, Thread: 1}); err != nil {
		t.Fatalf("noop reported: %v", err)
	}
}
