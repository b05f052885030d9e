// Package sink is the outbound side of the relay: an append-only queue of
// data-layer records consumed by the downstream tag manager. The downstream
// consumer shallow-merges records that share a top-level key, so producers
// must push a {<key>: null} reset record before any record that sets that
// key again. That reset discipline is the producer's job (see pixel); the
// sink just preserves order.
package sink

import "sync"

// Record is one data-layer entry. Keys and values are whatever the
// producing transform put there; the sink never inspects them.
type Record = map[string]any

// Sink is an append-only, order-preserving queue of records.
// Push never fails from the caller's point of view: delivery problems are
// the downstream collaborator's concern and are only logged.
type Sink interface {
	Push(rec Record)
}

// Memory is an in-process sink. It backs the memory backend in production
// single-node setups and doubles as the inspection point in tests.
type Memory struct {
	mu      sync.Mutex
	records []Record
}

// NewMemory creates an empty in-memory sink.
func NewMemory() *Memory {
	return &Memory{}
}

// Push appends a record.
func (m *Memory) Push(rec Record) {
	m.mu.Lock()
	m.records = append(m.records, rec)
	m.mu.Unlock()
}

// Records returns a snapshot of all records in push order.
func (m *Memory) Records() []Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Record, len(m.records))
	copy(out, m.records)
	return out
}

// Len reports the number of records pushed so far.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}
