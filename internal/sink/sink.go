// Package sink implements the Observation Sink of spec.md §6: human and
// machine-readable text formatting, wall-clock-driven flush timing, and a
// MultiSink so an Observation can be fanned out to more than one
// destination (e.g. stdout and a persistent store) without changing the
// Sink interface.
package sink

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"time"

	"connmon/internal/model"
)

// Sink consumes Observations; formatting and destination are entirely its
// own concern (spec.md treats the sink as an external collaborator of the
// core).
type Sink interface {
	Write(obs model.Observation) error
}

// Flusher is implemented by sinks that buffer and need periodic flushing.
type Flusher interface {
	Flush() error
}

// MultiSink fans a single Observation out to every sink it wraps, so
// cmd/connmon can write to stdout and a persistent store (e.g. ClickHouse)
// through the same Sink interface used everywhere else. The first error
// from any member sink is returned, but every sink is still written to.
type MultiSink struct {
	Sinks []Sink
}

func (m MultiSink) Write(obs model.Observation) error {
	var first error
	for _, s := range m.Sinks {
		if err := s.Write(obs); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (m MultiSink) Flush() error {
	var first error
	for _, s := range m.Sinks {
		if f, ok := s.(Flusher); ok {
			if err := f.Flush(); err != nil && first == nil {
				first = err
			}
		}
	}
	return first
}

// Text is the stdout/file sink implementing both output formats of
// spec.md §6. Flushing is driven by wall-clock intervals (spec.md §4.6),
// never by capture time.
type Text struct {
	w          *bufio.Writer
	machine    bool
	flushEvery time.Duration
	nextFlush  time.Time
	now        func() time.Time
}

// NewText creates a text sink. live && machine cuts the flush interval
// tenfold to ~100ms (spec.md §4.6); otherwise it defaults to ~1s.
func NewText(w io.Writer, machine, live bool) *Text {
	interval := time.Second
	if live && machine {
		interval = 100 * time.Millisecond
	}
	t := &Text{
		w:          bufio.NewWriter(w),
		machine:    machine,
		flushEvery: interval,
		now:        time.Now,
	}
	t.nextFlush = t.now().Add(interval)
	return t
}

// Write renders one Observation line and flushes if the wall-clock flush
// interval has elapsed.
func (t *Text) Write(obs model.Observation) error {
	if t.machine {
		t.writeMachine(obs)
	} else {
		t.writeHuman(obs)
	}
	if !t.now().Before(t.nextFlush) {
		t.nextFlush = t.now().Add(t.flushEvery)
		return t.w.Flush()
	}
	return nil
}

// Flush forces a flush regardless of the wall-clock schedule, used at
// shutdown.
func (t *Text) Flush() error { return t.w.Flush() }

func (t *Text) writeMachine(o model.Observation) {
	fmt.Fprintf(t.w, "%d.%06d", o.CaptureSec, o.CaptureUsec)
	writeField(t.w, o.TSRTTOk, func() { fmt.Fprintf(t.w, " %8.6f", o.TSRTT) }, "    *    ")
	writeField(t.w, o.SeqRTTOk, func() { fmt.Fprintf(t.w, " %8.6f", o.SeqRTT) }, "    *    ")
	fmt.Fprintf(t.w, " %d", o.DSeq)
	if o.DupACKOk {
		fmt.Fprintf(t.w, " %.6f", o.DupACKInterval)
	} else {
		fmt.Fprint(t.w, " -")
	}
	fmt.Fprintf(t.w, " %d %d %s\n", o.PayloadLen, o.FlowBytes, o.FlowName)
}

func (t *Text) writeHuman(o model.Observation) {
	tm := time.Unix(o.CaptureSec, o.CaptureUsec*1000).Local()
	fmt.Fprint(t.w, tm.Format("15:04:05"))
	writeField(t.w, o.TSRTTOk, func() { fmt.Fprintf(t.w, " %6s", fmtTimeDiff(o.TSRTT)) }, "   *   ")
	writeField(t.w, o.SeqRTTOk, func() { fmt.Fprintf(t.w, " %6s", fmtTimeDiff(o.SeqRTT)) }, "   *   ")
	fmt.Fprintf(t.w, " %4d", o.DSeq)
	if o.DupACKOk {
		fmt.Fprintf(t.w, " %8s", fmtTimeDiff(o.DupACKInterval))
	} else {
		fmt.Fprint(t.w, "    -   ")
	}
	fmt.Fprintf(t.w, " %4d %7d %s\n", o.PayloadLen, o.FlowBytes, o.FlowName)
}

func writeField(w io.Writer, ok bool, render func(), placeholder string) {
	if ok {
		render()
		return
	}
	fmt.Fprint(w, placeholder)
}

// fmtTimeDiff renders a duration in seconds with an SI prefix
// (micro/milli/seconds) and 2/1/0 fractional digits by magnitude, matching
// spec.md §6's human-format rule.
func fmtTimeDiff(dt float64) string {
	prefix := ""
	if dt < 1e-3 {
		dt *= 1e6
		prefix = "u"
	} else if dt < 1 {
		dt *= 1e3
		prefix = "m"
	}
	switch {
	case dt < 10:
		return fmt.Sprintf("%.2f%ss", dt, prefix)
	case dt < 100:
		return fmt.Sprintf("%.1f%ss", dt, prefix)
	default:
		return fmt.Sprintf("%.0f%ss", math.Round(dt), prefix)
	}
}
