package pixel

import "github.com/ignite/pixel-relay/internal/sink"

// Dispatcher is the single choke point between normalized records and the
// outbound sink. While consent is unknown it buffers; once resolved it
// forwards directly. The buffer is drained exactly once, in FIFO order,
// transactionally with the UNKNOWN → RESOLVED transition, and stays empty
// afterward.
//
// The dispatcher is not safe for concurrent use; the owning session
// serializes all handler execution.
type Dispatcher struct {
	sink     sink.Sink
	buffer   []sink.Record
	resolved bool
	grants   Grants
}

// NewDispatcher creates a dispatcher in the UNKNOWN state with an empty
// buffer.
func NewDispatcher(s sink.Sink) *Dispatcher {
	return &Dispatcher{sink: s}
}

// Dispatch commits a record: buffered while consent is unknown, forwarded
// to the sink afterwards. This is the only write path for normalized
// analytics records.
func (d *Dispatcher) Dispatch(rec sink.Record) {
	if d.resolved {
		d.sink.Push(rec)
		return
	}
	d.buffer = append(d.buffer, rec)
}

// Bypass pushes a record straight to the sink regardless of gate state.
// Reserved for the consent-update record and the startup page record,
// which by contract precede any gated analytics event.
func (d *Dispatcher) Bypass(rec sink.Record) {
	d.sink.Push(rec)
}

// Resolve flips the gate to RESOLVED and drains the buffer FIFO. Resolving
// an already-resolved gate finds an empty buffer and is a no-op apart from
// recording the latest grants.
func (d *Dispatcher) Resolve(g Grants) {
	for _, rec := range d.buffer {
		d.sink.Push(rec)
	}
	d.buffer = nil
	d.resolved = true
	d.grants = g
}

// Resolved reports whether consent has been resolved.
func (d *Dispatcher) Resolved() bool { return d.resolved }

// Grants returns the resolved grants; the zero value while unresolved.
func (d *Dispatcher) Grants() Grants { return d.grants }

// BufferLen reports how many records are waiting on consent resolution.
func (d *Dispatcher) BufferLen() int { return len(d.buffer) }
