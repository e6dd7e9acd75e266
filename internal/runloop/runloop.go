// Package runloop implements the Run Loop of spec.md §2/§5: it pulls
// PacketRecords from a capture.Source, feeds them to the classifier in
// strict serial order, drives the maintenance scheduler, and honors the
// stop conditions (source exhausted, time_to_run, max_packets).
package runloop

import (
	"io"
	"log"

	"connmon/internal/classifier"
	"connmon/internal/clocktime"
	"connmon/internal/correlation"
	"connmon/internal/flowtable"
	"connmon/internal/model"
	"connmon/internal/scheduler"
	"connmon/internal/sink"
	"connmon/pkg/capture"
)

// Source is the subset of capture.Source the run loop needs.
type Source interface {
	Next() (*model.PacketRecord, error)
	Counters() capture.Counters
}

// Options bundles the connmon CLI knobs the run loop itself needs, beyond
// what's already folded into the classifier/scheduler/flow table (spec.md
// §6's CLI surface table).
type Options struct {
	MaxPackets  int     // 0 = no limit
	TimeToRun   float64 // 0 = no limit, capture-time seconds
	FlowMaxIdle float64
	PrintStart  bool // log "first packet at" banner, like the original
	SummaryOn   bool
}

// Loop owns the flow table, both correlation tables, the classifier, and
// the scheduler — the single-threaded cooperative pipeline spec.md §5
// requires. No packet processing overlaps maintenance; no goroutine is
// spawned inside Run.
type Loop struct {
	src    Source
	snk    sink.Sink
	clsfr  *classifier.Classifier
	sched  *scheduler.Scheduler
	norm   *clocktime.Normalizer
	flows  *flowtable.Table
	tsTbl  *correlation.Table
	seqTbl *correlation.Table

	opts Options

	started    bool
	startCapTm float64
}

// New wires a Loop from its component tables and the classifier config.
func New(src Source, snk sink.Sink, maxFlows int, clsCfg classifier.Config, rtdMaxAge, sumInterval float64, opts Options) *Loop {
	flows := flowtable.New(maxFlows)
	tsTbl := correlation.New()
	seqTbl := correlation.New()
	return &Loop{
		src:    src,
		snk:    snk,
		clsfr:  classifier.New(clsCfg, flows, tsTbl, seqTbl),
		sched:  scheduler.New(rtdMaxAge, sumInterval, opts.SummaryOn),
		norm:   clocktime.New(),
		flows:  flows,
		tsTbl:  tsTbl,
		seqTbl: seqTbl,
		opts:   opts,
	}
}

// Run drives the loop until a stop condition is hit or the source is
// exhausted, then emits a final summary. It returns a non-nil error for
// sink write failures (spec.md §7's OutputFailure) and for any source error
// other than io.EOF.
func (l *Loop) Run() error {
	var lastCapTm float64
	// total counts every packet of the run; the classifier's counters are
	// reset after each periodic summary.
	total := 0
	for {
		p, err := l.src.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}

		capTm := l.norm.Normalize(p.CaptureSec, p.CaptureUsec)
		lastCapTm = capTm
		if !l.started {
			l.started = true
			l.startCapTm = capTm
			if l.opts.PrintStart {
				log.Printf("First packet at %d.%06d", p.CaptureSec, p.CaptureUsec)
			}
		}

		obs, fire := l.clsfr.Process(p, capTm)
		total++
		if fire {
			if err := l.snk.Write(obs); err != nil {
				return err
			}
		}

		cleanDue, summaryDue := l.sched.Tick(capTm)
		if cleanDue {
			l.tsTbl.EvictOld(capTm, l.sched.RtdMaxAge)
			l.seqTbl.EvictOld(capTm, l.sched.RtdMaxAge)
			l.flows.EvictIdle(capTm, l.opts.FlowMaxIdle)
		}
		if summaryDue {
			l.logSummary()
			l.clsfr.ResetCounters()
		}

		stop := (l.opts.MaxPackets > 0 && total >= l.opts.MaxPackets) ||
			(l.opts.TimeToRun > 0 && capTm-l.startCapTm >= l.opts.TimeToRun)
		if stop {
			break
		}
	}
	if f, ok := l.snk.(sink.Flusher); ok {
		f.Flush()
	}
	l.logSummary()
	log.Printf("Captured %d packets in %.6f seconds", total, lastCapTm-l.startCapTm)
	return nil
}

func (l *Loop) logSummary() {
	c := l.clsfr.Counters()
	cc := l.src.Counters()
	log.Printf("%d flows, %d packets, %d no TS opt, %d uni-directional, %d not TCP, %d not v4 or v6",
		l.flows.Len(), c.Packets, c.NoTimestamp, c.Unidirectional, cc.NotTCP, cc.NotV4OrV6)
}
