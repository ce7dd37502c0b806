package prims

import (
	"fmt"

	"github.com/loomhdl/loom/pkg/flat"
	"github.com/loomhdl/loom/pkg/values"
)

// pipeline state machine per the multi-cycle operator contract.
const (
	stIdle = iota
	stRunning
	stDone
)

// pipeline models the pipelined arithmetic operators: multiply, divide,
// square root and their fixed-point variants. Asserting go while idle samples
// the operands and starts the countdown; the result and done appear once the
// configured latency has elapsed in commits; deasserting go clears all
// in-flight state.
type pipeline struct {
	cell    flat.CellRef
	inputs  []flat.PortRef
	goPort  flat.PortRef
	done    flat.PortRef
	outputs []flat.PortRef

	widths  []uint // result width per output
	latency uint
	compute func([]values.Value) []values.Value

	state     int
	remaining uint
	results   []values.Value
}

func newPipeline(ps portSet, d *flat.Descriptor, c flat.CellRef) (Primitive, error) {
	p := &pipeline{cell: c, latency: d.Latency, state: stIdle}

	var err error
	if p.goPort, err = ps.get(pGo); err != nil {
		return nil, err
	}
	if p.done, err = ps.get(pDone); err != nil {
		return nil, err
	}

	switch d.Op {
	case flat.OpMultPipe:
		if err := p.bind(ps, []string{pLeft, pRight}, []string{pOut}); err != nil {
			return nil, err
		}
		p.widths = []uint{d.Width}
		p.compute = func(in []values.Value) []values.Value {
			return []values.Value{in[0].Mul(in[1])}
		}
	case flat.OpDivPipe:
		if err := p.bind(ps, []string{pLeft, pRight}, []string{pQuotient, pRemainder}); err != nil {
			return nil, err
		}
		p.widths = []uint{d.Width, d.Width}
		p.compute = func(in []values.Value) []values.Value {
			return []values.Value{in[0].DivU(in[1]), in[0].ModU(in[1])}
		}
	case flat.OpSqrt:
		if err := p.bind(ps, []string{pIn}, []string{pOut}); err != nil {
			return nil, err
		}
		p.widths = []uint{d.Width}
		p.compute = func(in []values.Value) []values.Value {
			return []values.Value{in[0].SqrtU()}
		}
	case flat.OpFPMultPipe:
		if err := p.bind(ps, []string{pLeft, pRight}, []string{pOut}); err != nil {
			return nil, err
		}
		p.widths = []uint{d.Width}
		frac := d.FracWidth
		width := d.Width
		p.compute = func(in []values.Value) []values.Value {
			// full-width product, then drop the extra fraction bits
			prod := in[0].ZeroExt(2 * width).Mul(in[1].ZeroExt(2 * width))
			return []values.Value{prod.ShrU(values.FromUint64(uint64(frac), 2 * width)).ZeroExt(width)}
		}
	case flat.OpFPDivPipe:
		if err := p.bind(ps, []string{pLeft, pRight}, []string{pQuotient, pRemainder}); err != nil {
			return nil, err
		}
		p.widths = []uint{d.Width, d.Width}
		frac := d.FracWidth
		width := d.Width
		p.compute = func(in []values.Value) []values.Value {
			wide := width + frac
			num := in[0].ZeroExt(wide).Shl(values.FromUint64(uint64(frac), wide))
			quot := num.DivU(in[1].ZeroExt(wide)).ZeroExt(width)
			rem := in[0].ModU(in[1])
			return []values.Value{quot, rem}
		}
	default:
		return nil, fmt.Errorf("prims: %s is not a pipelined operator", d.Op)
	}

	p.results = p.undefResults()
	return p, nil
}

func (p *pipeline) bind(ps portSet, ins, outs []string) error {
	var err error
	if p.inputs, err = ps.ports(ins...); err != nil {
		return err
	}
	p.outputs, err = ps.ports(outs...)
	return err
}

func (p *pipeline) undefResults() []values.Value {
	out := make([]values.Value, len(p.outputs))
	for i := range out {
		out[i] = values.Undef(p.widths[i])
	}
	return out
}

func (p *pipeline) Eval(Reader) ([]Update, error) {
	exposed := p.results
	if p.state != stDone {
		exposed = p.undefResults()
	}
	ups := make([]Update, 0, len(p.outputs)+1)
	for i, o := range p.outputs {
		ups = append(ups, Update{o, exposed[i]})
	}
	return append(ups, Update{p.done, bit(p.state == stDone)}), nil
}

func (p *pipeline) Commit(r Reader) ([]Update, error) {
	if !asserted(r.Value(p.goPort)) {
		p.state = stIdle
		p.remaining = 0
		p.results = p.undefResults()
		return p.Eval(r)
	}
	switch p.state {
	case stIdle:
		in := make([]values.Value, len(p.inputs))
		for i, ip := range p.inputs {
			in[i] = r.Value(ip)
		}
		// the result is computed up front; it only becomes visible when the
		// countdown reaches zero
		p.results = p.compute(in)
		p.state = stRunning
		p.remaining = p.latency
		fallthrough
	case stRunning:
		p.remaining--
		if p.remaining == 0 {
			p.state = stDone
		}
	case stDone:
		// result stays latched while go is held
	}
	return p.Eval(r)
}

func (p *pipeline) Done() bool { return p.state == stDone }

func (p *pipeline) Reset(r Reader) ([]Update, error) {
	p.state = stIdle
	p.remaining = 0
	p.results = p.undefResults()
	return p.Eval(r)
}
