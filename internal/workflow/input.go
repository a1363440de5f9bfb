package workflow

import "sync/atomic"

// inputPort carries user signals into the workflow loop. Each cell is
// single-producer (the input side) and single-consumer (the loop); a
// take call returns and clears at most one pending event, so no mutex
// is needed on this path.
type inputPort struct {
	trigger   atomic.Bool
	confirm   atomic.Bool
	cancel    atomic.Bool
	more      atomic.Bool
	abort     atomic.Bool
	selectIdx atomic.Int64 // -1 when empty
}

func newInputPort() *inputPort {
	p := &inputPort{}
	p.selectIdx.Store(-1)
	return p
}

func (p *inputPort) RaiseTrigger()     { p.trigger.Store(true) }
func (p *inputPort) RaiseConfirm()     { p.confirm.Store(true) }
func (p *inputPort) RaiseCancel()      { p.cancel.Store(true) }
func (p *inputPort) RaiseContinue()    { p.more.Store(true) }
func (p *inputPort) RaiseAbort()       { p.abort.Store(true) }
func (p *inputPort) RaiseSelect(i int) { p.selectIdx.Store(int64(i)) }

func (p *inputPort) TakeTrigger() bool  { return p.trigger.Swap(false) }
func (p *inputPort) TakeConfirm() bool  { return p.confirm.Swap(false) }
func (p *inputPort) TakeCancel() bool   { return p.cancel.Swap(false) }
func (p *inputPort) TakeContinue() bool { return p.more.Swap(false) }
func (p *inputPort) TakeAbort() bool    { return p.abort.Swap(false) }

func (p *inputPort) TakeSelect() (int, bool) {
	v := p.selectIdx.Swap(-1)
	return int(v), v >= 0
}
