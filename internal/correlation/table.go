// Package correlation implements the generic first-seen correlation table
// used both for TCP-timestamp (TSval/ECR) and data-sequence/ack matching.
// See spec.md §4.2.
package correlation

import "connmon/internal/model"

// Key is the fixed-layout composite key: a 32-bit discriminator (TSval, or
// next-expected sequence number) plus the directional flow it was observed
// on. It is comparable and usable directly as a map key with no per-packet
// allocation, per spec.md §9's "composite keys" note.
type Key struct {
	Disc uint32
	Flow model.FlowKey
}

type entry struct {
	t float64
}

// Table is a generic first-seen mapping from a composite key to a capture
// time. Insertion is first-writer-wins; a successful Take removes the entry
// so a single correlation key yields at most one sample (spec.md §4.2).
type Table struct {
	m map[Key]entry
}

// New creates an empty correlation table.
func New() *Table {
	return &Table{m: make(map[Key]entry)}
}

// TryInsert stores (key, t) iff key is absent. No-op otherwise.
func (tb *Table) TryInsert(key Key, t float64) {
	if _, ok := tb.m[key]; ok {
		return
	}
	tb.m[key] = entry{t: t}
}

// Take removes and returns the stored time for key, if present.
func (tb *Table) Take(key Key) (float64, bool) {
	e, ok := tb.m[key]
	if !ok {
		return 0, false
	}
	delete(tb.m, key)
	return e.t, true
}

// EvictOld removes every entry whose stored time is at or before now-maxAge,
// so every remaining entry is newer than now-maxAge.
func (tb *Table) EvictOld(now, maxAge float64) {
	cutoff := now - maxAge
	for k, e := range tb.m {
		if e.t <= cutoff {
			delete(tb.m, k)
		}
	}
}

// Len reports the number of live entries, mainly for summaries/tests.
func (tb *Table) Len() int { return len(tb.m) }
