package scanning

import "sync"

// Aggregator accumulates open-port records in discovery order.
type Aggregator struct {
	mu      sync.Mutex
	records []OpenPortRecord
}

// NewAggregator creates an empty aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{}
}

// Append adds a record.
func (a *Aggregator) Append(record OpenPortRecord) {
	a.mu.Lock()
	a.records = append(a.records, record)
	a.mu.Unlock()
}

// Snapshot returns a copy of the records collected so far.
func (a *Aggregator) Snapshot() []OpenPortRecord {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]OpenPortRecord, len(a.records))
	copy(out, a.records)
	return out
}

// Clear discards all records. Only call it before workers start.
func (a *Aggregator) Clear() {
	a.mu.Lock()
	a.records = nil
	a.mu.Unlock()
}

// Len returns the number of records.
func (a *Aggregator) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.records)
}
