// Package scheduler implements the Maintenance Scheduler of spec.md §4.4: it
// tracks next_clean/next_summary in capture-time seconds and tells the run
// loop when to evict stale correlation/flow entries and when to emit a
// periodic summary. Capture time (not wall clock) drives both.
package scheduler

// Scheduler tracks the two capture-time deadlines spec.md §4.4 describes.
type Scheduler struct {
	RtdMaxAge   float64
	SumInterval float64
	SummaryOn   bool

	nextClean   float64
	nextSummary float64
	started     bool
}

// New creates a Scheduler. Deadlines are armed on the first Tick call so
// they're relative to the first packet's capture time, not zero.
func New(rtdMaxAge, sumInterval float64, summaryOn bool) *Scheduler {
	return &Scheduler{RtdMaxAge: rtdMaxAge, SumInterval: sumInterval, SummaryOn: summaryOn}
}

// Tick is called once per packet with the current normalized capture time.
// It reports whether a clean pass and/or a summary are due now, per
// spec.md §4.4's "capTm >= next_clean" / "capTm >= next_summary" checks.
func (s *Scheduler) Tick(capTm float64) (cleanDue, summaryDue bool) {
	if !s.started {
		s.nextClean = capTm + s.RtdMaxAge
		s.nextSummary = capTm + s.SumInterval
		s.started = true
		return false, false
	}
	if capTm >= s.nextClean {
		cleanDue = true
		s.nextClean = capTm + s.RtdMaxAge
	}
	if s.SummaryOn && capTm >= s.nextSummary {
		summaryDue = true
		s.nextSummary = capTm + s.SumInterval
	}
	return cleanDue, summaryDue
}
