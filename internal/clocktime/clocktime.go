// Package clocktime normalizes packet capture timestamps into the
// small-magnitude float64 seconds value ("capTm") the rest of the core uses
// for ordering, correlation ages, and scheduling. See spec.md §4.5.
package clocktime

// Normalizer converts successive (captureSec, captureUsec) pairs into a
// capture-relative time in seconds, preserving sub-microsecond precision by
// avoiding arithmetic on the full epoch value.
type Normalizer struct {
	offSeconds int64
	started    bool
}

// New creates an unstarted Normalizer.
func New() *Normalizer {
	return &Normalizer{}
}

// Normalize returns capTm for the given packet timestamp. The first call
// fixes offSeconds = captureSec for all subsequent calls.
func (n *Normalizer) Normalize(captureSec, captureUsec int64) float64 {
	if !n.started {
		n.offSeconds = captureSec
		n.started = true
	}
	return float64(captureSec-n.offSeconds) + float64(captureUsec)*1e-6
}

// Started reports whether at least one packet has been normalized.
func (n *Normalizer) Started() bool { return n.started }

// OffSeconds returns the fixed first-packet second offset (valid only once
// Started is true).
func (n *Normalizer) OffSeconds() int64 { return n.offSeconds }
