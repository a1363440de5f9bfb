package radio

import (
	"sync"
)

// ScriptedOption configures a Scripted radio.
type ScriptedOption func(*Scripted)

// WithStartError makes StartReceive fail, for exercising init-failure paths.
func WithStartError(err error) ScriptedOption {
	return func(r *Scripted) {
		r.startErr = err
	}
}

// WithPollError makes every Poll report the given fault once the signal
// queue is exhausted.
func WithPollError(err error) ScriptedOption {
	return func(r *Scripted) {
		r.pollErr = err
	}
}

// WithEmitError makes Emit fail.
func WithEmitError(err error) ScriptedOption {
	return func(r *Scripted) {
		r.emitErr = err
	}
}

// Scripted is a deterministic Radio backed by a queue of prepared
// signals. It is used by the harness for dry-run replay scenarios and by
// tests. Emitted signals are recorded for inspection.
type Scripted struct {
	band Band

	mu        sync.Mutex
	queue     []*Signal
	receiving bool
	txEnabled bool
	emitted   []*Signal

	startErr  error
	pollErr   error
	emitErr   error
	pollFault []error // one-shot faults, reported before queued signals
}

// NewScripted returns a Scripted radio for the given band.
func NewScripted(band Band, options ...ScriptedOption) *Scripted {
	r := Scripted{band: band}
	for _, option := range options {
		option(&r)
	}
	return &r
}

func (r *Scripted) Band() Band {
	return r.band
}

// Enqueue appends signals to the pending capture queue. Ownership of the
// signals transfers to the radio; callers must not mutate them afterwards.
func (r *Scripted) Enqueue(signals ...*Signal) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.queue = append(r.queue, signals...)
}

func (r *Scripted) StartReceive() error {
	if r.startErr != nil {
		return r.startErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.receiving = true
	return nil
}

func (r *Scripted) StopReceive() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.receiving = false
}

func (r *Scripted) SetTransmitEnabled(enabled bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.txEnabled = enabled
}

// TransmitEnabled reports the current transmitter state.
func (r *Scripted) TransmitEnabled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.txEnabled
}

// FailNextPoll queues a one-shot poll fault, reported ahead of any
// queued signal.
func (r *Scripted) FailNextPoll(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pollFault = append(r.pollFault, err)
}

// Poll pops the next queued signal, if any. It never blocks.
func (r *Scripted) Poll() (*Signal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.receiving {
		return nil, nil
	}

	if len(r.pollFault) > 0 {
		err := r.pollFault[0]
		r.pollFault = r.pollFault[1:]
		return nil, err
	}

	if len(r.queue) == 0 {
		if r.pollErr != nil {
			return nil, r.pollErr
		}
		return nil, nil
	}

	s := r.queue[0]
	r.queue = r.queue[1:]
	return s, nil
}

func (r *Scripted) Emit(s *Signal) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.txEnabled {
		return ErrTransmitDisabled
	}
	if r.emitErr != nil {
		return r.emitErr
	}

	r.emitted = append(r.emitted, s.Clone())
	return nil
}

// Emitted returns copies of all signals emitted so far.
func (r *Scripted) Emitted() []*Signal {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*Signal, len(r.emitted))
	for i, s := range r.emitted {
		out[i] = s.Clone()
	}
	return out
}

// Pending returns the number of signals still queued for capture.
func (r *Scripted) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.queue)
}
