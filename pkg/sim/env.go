// Package sim implements the interpreter execution engine: the combinational
// convergence loop that settles guarded assignments and primitive outputs to
// a fixpoint each cycle, and the two-phase cycle stepper that commits
// primitive state at clock edges. The external scheduler decides which groups
// are active each step; the engine holds no opinion about control flow.
package sim

import (
	"fmt"

	"github.com/loomhdl/loom/pkg/clock"
	"github.com/loomhdl/loom/pkg/flat"
	"github.com/loomhdl/loom/pkg/prims"
	"github.com/loomhdl/loom/pkg/values"
)

// DefaultSettleLimit caps the convergence iterations per cycle. An acyclic
// combinational network settles in at most its dependency depth, so hitting
// the cap means a cycle or an undefined guard, not a long computation.
const DefaultSettleLimit = 1000

// ThreadNone tags accesses not attributable to a scheduled group: continuous
// assignments and primitive-internal drivers.
const ThreadNone = -1

// Active names one group enabled for the current step. Groups scheduled in
// parallel carry distinct threads so the race detector treats their storage
// accesses as unordered; groups run in consecutive steps never race.
type Active struct {
	Group  flat.GroupRef
	Thread int
}

// Options configures an Environment.
type Options struct {
	// DetectRaces enables the logical-clock race detector. Off, the stepper
	// uses a no-op detector and pays nothing on the settle path.
	DetectRaces bool
	// SettleLimit overrides DefaultSettleLimit when positive.
	SettleLimit int
}

// Environment is one simulation instance: the committed port values, the
// primitive instances, the logical clock and the race detector.
type Environment struct {
	prog  *flat.Program
	vals  []values.Value
	insts []prims.Primitive

	storageCells []flat.CellRef
	storage      map[flat.CellRef]prims.Storage
	readOwner    map[flat.PortRef]flat.CellRef

	det   clock.Detector
	limit int
	cycle uint64
}

// portVals adapts a value slice to the primitive Reader contract.
type portVals []values.Value

func (v portVals) Value(p flat.PortRef) values.Value { return v[p] }

// New instantiates every cell's primitive and seeds the committed port values
// from their reset outputs. prog must already be validated.
func New(prog *flat.Program, opts Options) (*Environment, error) {
	e := &Environment{
		prog:      prog,
		vals:      make([]values.Value, len(prog.Ports)),
		storage:   make(map[flat.CellRef]prims.Storage),
		readOwner: make(map[flat.PortRef]flat.CellRef),
		det:       clock.Noop{},
		limit:     opts.SettleLimit,
	}
	if e.limit <= 0 {
		e.limit = DefaultSettleLimit
	}
	if opts.DetectRaces {
		e.det = clock.NewTracker()
	}

	for i := range e.vals {
		e.vals[i] = values.Undef(prog.Ports[i].Width)
	}
	for gi := range prog.Groups {
		gd := prog.Group(flat.GroupRef(gi))
		e.vals[gd.Go] = values.Zero(1)
		e.vals[gd.Done] = values.Zero(1)
	}

	for ci := range prog.Cells {
		c := flat.CellRef(ci)
		inst, err := prims.New(prog, c)
		if err != nil {
			return nil, err
		}
		e.insts = append(e.insts, inst)
		if st, ok := inst.(prims.Storage); ok {
			e.storage[c] = st
			e.storageCells = append(e.storageCells, c)
			for _, p := range st.ReadPorts() {
				e.readOwner[p] = c
			}
		}
		ups, err := inst.Reset(portVals(e.vals))
		if err != nil {
			return nil, err
		}
		for _, u := range ups {
			e.vals[u.Port] = u.Val
		}
	}
	return e, nil
}

// Clock returns the current logical cycle count.
func (e *Environment) Clock() uint64 { return e.cycle }

// Barrier tells the race detector the schedule reached a join point: every
// access recorded so far happens-before everything that follows. The external
// scheduler calls it between sequential steps.
func (e *Environment) Barrier() { e.det.Barrier() }

// activeAssign is one assignment of the current active set with the thread
// it runs on.
type activeAssign struct {
	ref    flat.AssignRef
	thread int
}

// driver records what most recently drove a port during settling.
type driver struct {
	assign flat.AssignRef
	thread int
	has    bool
}

// settled is the outcome of one convergence run.
type settled struct {
	prop    []values.Value
	guards  []tri
	winners []driver
	assigns []activeAssign
}

func (e *Environment) gather(active []Active) ([]activeAssign, error) {
	out := make([]activeAssign, 0, len(e.prog.Continuous))
	for _, a := range e.prog.Continuous {
		out = append(out, activeAssign{ref: a, thread: ThreadNone})
	}
	for _, a := range active {
		if a.Group < 0 || int(a.Group) >= len(e.prog.Groups) {
			return nil, fmt.Errorf("sim: active group %d out of range", a.Group)
		}
		for _, ar := range e.prog.Group(a.Group).Assigns {
			out = append(out, activeAssign{ref: ar, thread: a.Thread})
		}
	}
	return out, nil
}

// settle runs the convergence loop: repeatedly evaluate guards, apply the
// winning assignment per destination, re-evaluate the primitives, until no
// proposed value changes. Primitive internal state is never touched here, so
// every read within the cycle observes pre-cycle state.
func (e *Environment) settle(active []Active) (*settled, error) {
	assigns, err := e.gather(active)
	if err != nil {
		return nil, err
	}
	st := &settled{
		prop:    append([]values.Value(nil), e.vals...),
		guards:  make([]tri, len(e.prog.Guards)),
		winners: make([]driver, len(e.prog.Ports)),
		assigns: assigns,
	}

	// cell inputs carry no state across clock edges: anything not re-driven
	// this cycle reads as undefined, so a stale write_en cannot keep writing
	for i := range e.prog.Ports {
		if e.prog.Ports[i].Dir == flat.DirIn {
			st.prop[i] = values.Undef(e.prog.Ports[i].Width)
		}
	}

	// the scheduler asserts the go holes of its active groups; done holes
	// start deasserted and are driven from within the groups
	for gi := range e.prog.Groups {
		gd := e.prog.Group(flat.GroupRef(gi))
		st.prop[gd.Go] = values.Zero(1)
		st.prop[gd.Done] = values.Zero(1)
	}
	for _, a := range active {
		st.prop[e.prog.Group(a.Group).Go] = values.FromUint64(1, 1)
	}

	pending := make(map[flat.PortRef]AssignedValue)
	for iter := 0; iter < e.limit; iter++ {
		changed := false
		sweepGuards(e.prog, st.prop, st.guards)

		// collect this pass's proposals per destination and reject
		// disagreeing simultaneous drivers
		for k := range pending {
			delete(pending, k)
		}
		for _, aa := range assigns {
			ad := e.prog.Assign(aa.ref)
			if st.guards[ad.Guard] != triTrue {
				continue
			}
			av := AssignedValue{Assign: aa.ref, Thread: aa.thread, Val: st.prop[ad.Src]}
			if prev, ok := pending[ad.Dst]; ok {
				if !prev.Val.Equal(av.Val) {
					return nil, &ConflictingAssignmentsError{Port: ad.Dst, A: prev, B: av}
				}
				continue
			}
			pending[ad.Dst] = av
		}
		for _, aa := range assigns {
			ad := e.prog.Assign(aa.ref)
			av, ok := pending[ad.Dst]
			if !ok || av.Assign != aa.ref {
				continue
			}
			if !st.prop[ad.Dst].Equal(av.Val) {
				st.prop[ad.Dst] = av.Val
				changed = true
			}
			st.winners[ad.Dst] = driver{assign: av.Assign, thread: av.Thread, has: true}
		}

		// primitive outputs may shift now that their inputs moved
		r := portVals(st.prop)
		for _, inst := range e.insts {
			ups, err := inst.Eval(r)
			if err != nil {
				return nil, err
			}
			for _, u := range ups {
				if !st.prop[u.Port].Equal(u.Val) {
					st.prop[u.Port] = u.Val
					st.winners[u.Port] = driver{}
					changed = true
				}
			}
		}

		if !changed {
			if unstable := e.unstable(st); len(unstable) > 0 {
				return nil, &UndefinedGuardError{Unstable: unstable}
			}
			return st, nil
		}
	}

	if unstable := e.unstable(st); len(unstable) > 0 {
		return nil, &UndefinedGuardError{Unstable: unstable}
	}
	return nil, &ConvergenceLimitError{Limit: e.limit}
}

// unstable collects the (cell, assignment, port) tuples of active assignments
// whose guards are still undefined.
func (e *Environment) unstable(st *settled) []UnstableGuard {
	var out []UnstableGuard
	for _, aa := range st.assigns {
		ad := e.prog.Assign(aa.ref)
		if st.guards[ad.Guard] != triUnknown {
			continue
		}
		for _, p := range undefinedGuardPorts(e.prog, ad.Guard, st.prop) {
			out = append(out, UnstableGuard{Cell: e.prog.Port(p).Cell, Assign: aa.ref, Port: p})
		}
	}
	return out
}

// Settle runs the combinational convergence alone and returns the settled
// port values. Committed state and primitive internals are untouched, so a
// repeated call with the same active set yields bit-identical results.
func (e *Environment) Settle(active []Active) ([]values.Value, error) {
	st, err := e.settle(active)
	if err != nil {
		return nil, err
	}
	return st.prop, nil
}

// Step advances one clock edge: settle, derive the cycle's storage events for
// the race detector, commit every primitive's pending state, increment the
// clock. It reports, per active group, whether the group's done hole was
// asserted after settling.
func (e *Environment) Step(active []Active) (map[flat.GroupRef]bool, error) {
	st, err := e.settle(active)
	if err != nil {
		return nil, err
	}
	r := portVals(st.prop)

	// every active true-guarded assignment sourcing a storage read port is a
	// performed read; ObserveRead also enforces the read-before-write policy
	for _, aa := range st.assigns {
		ad := e.prog.Assign(aa.ref)
		if st.guards[ad.Guard] != triTrue {
			continue
		}
		cell, ok := e.readOwner[ad.Src]
		if !ok {
			continue
		}
		idx, err := e.storage[cell].ObserveRead(r)
		if err != nil {
			return nil, err
		}
		loc := clock.Location{Cell: cell, Index: idx}
		at := clock.Epoch{Cycle: e.cycle, Thread: aa.thread, Assign: aa.ref}
		if err := e.det.Read(loc, at); err != nil {
			return nil, err
		}
	}

	// commit-time reads and writes, attributed to whatever drove the
	// storage cell's enable port
	for _, cell := range e.storageCells {
		stg := e.storage[cell]
		at := clock.Epoch{Cycle: e.cycle, Thread: ThreadNone}
		if d := st.winners[stg.EnablePort()]; d.has {
			at.Thread, at.Assign = d.thread, d.assign
		}
		idx, pending, err := stg.PendingRead(r)
		if err != nil {
			return nil, err
		}
		if pending {
			if err := e.det.Read(clock.Location{Cell: cell, Index: idx}, at); err != nil {
				return nil, err
			}
		}
		idx, pending, err = stg.PendingWrite(r)
		if err != nil {
			return nil, err
		}
		if pending {
			if err := e.det.Write(clock.Location{Cell: cell, Index: idx}, at); err != nil {
				return nil, err
			}
		}
	}

	// commit phase: settled values become the committed state, primitives
	// latch and their updates land on top
	e.vals = st.prop
	cr := portVals(e.vals)
	for _, inst := range e.insts {
		ups, err := inst.Commit(cr)
		if err != nil {
			return nil, err
		}
		for _, u := range ups {
			e.vals[u.Port] = u.Val
		}
	}
	e.cycle++

	done := make(map[flat.GroupRef]bool, len(active))
	for _, a := range active {
		v := st.prop[e.prog.Group(a.Group).Done]
		done[a.Group] = v.Defined() && !v.IsZero()
	}
	return done, nil
}
