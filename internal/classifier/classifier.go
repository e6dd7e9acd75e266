// Package classifier implements the per-packet classification engine: it
// updates flow state, inserts/looks up the two correlation tables, and
// derives RTT samples, sequence-hole/out-of-order indicators, and
// duplicate-ACK detections. This is the core algorithm of spec.md §4.3.
package classifier

import (
	"connmon/internal/correlation"
	"connmon/internal/flowtable"
	"connmon/internal/model"
)

// defaultWrapThreshold is spec.md §9's recommended ±2^31/4 bound above
// which a computed dseq is treated as 32-bit wraparound noise rather than a
// genuine hole/reorder, and reported as 0.
const defaultWrapThreshold = 1 << 29

// Config holds the thresholds the classifier needs beyond the flow/
// correlation tables themselves.
type Config struct {
	FilterLocal   bool
	LocalIP       model.Endpoint
	HaveLocalIP   bool
	Quick         bool
	WrapThreshold uint32 // 0 means defaultWrapThreshold
}

// Classifier is the stateful per-packet engine described in spec.md §4.3.
// It owns no clock: callers supply capTm, already normalized by
// internal/clocktime.
type Classifier struct {
	cfg Config

	flows *flowtable.Table
	tsTbl *correlation.Table
	seqTbl *correlation.Table

	counters model.Counters
}

// New creates a Classifier backed by the given flow table and correlation
// tables (the latter two are owned exclusively by the classifier per
// spec.md §5).
func New(cfg Config, flows *flowtable.Table, tsTbl, seqTbl *correlation.Table) *Classifier {
	if cfg.WrapThreshold == 0 {
		cfg.WrapThreshold = defaultWrapThreshold
	}
	return &Classifier{cfg: cfg, flows: flows, tsTbl: tsTbl, seqTbl: seqTbl}
}

// Counters returns the running per-packet failure/shape counters (spec.md
// §4.4's summary fields). The caller resets them via ResetCounters after
// each periodic summary.
func (c *Classifier) Counters() model.Counters { return c.counters }

// ResetCounters zeroes the periodic summary counters without touching the
// flow table or correlation tables.
func (c *Classifier) ResetCounters() { c.counters = model.Counters{} }

// localBlocked reports whether Step 4's local-host filter suppresses the
// insert operations for this packet (but never the lookups).
func (c *Classifier) localBlocked(dst model.Endpoint) bool {
	return c.cfg.FilterLocal && c.cfg.HaveLocalIP && dst.SameIP(c.cfg.LocalIP)
}

// Process runs the 13-step algorithm of spec.md §4.3 for one packet at
// normalized capture time capTm, and returns the Observation to emit (if
// any fired) and whether to emit it at all, honoring Quick mode (step 13).
func (c *Classifier) Process(p *model.PacketRecord, capTm float64) (model.Observation, bool) {
	c.counters.Packets++

	fwd := model.FlowKey{Src: p.Src, Dst: p.Dst}
	rev := fwd.Reverse()

	// Step 1: acquire/ensure FlowRecord for fwd.
	fr, created, dropped := c.flows.GetOrCreate(fwd)
	if dropped {
		return model.Observation{}, false
	}
	if created {
		c.counters.Flows++
	}

	// Step 2: update bytes_sent.
	fr.BytesSent += uint64(p.WireLen)

	if !fr.Bidirectional {
		c.counters.Unidirectional++
	}

	// Step 3: gate correlation signal availability.
	tsUsable := p.TS.Ok && p.TS.TSval != 0 && (p.TS.ECR != 0 || p.Flags.SYN) && fr.Bidirectional
	if !p.TS.Ok {
		c.counters.NoTimestamp++
	}
	seqUsable := fr.Bidirectional

	blocked := c.localBlocked(p.Dst)

	var tsRTT, seqRTT float64
	var tsOk, seqOk bool

	// Step 5: timestamp insert (forward).
	if tsUsable && !blocked {
		c.tsTbl.TryInsert(correlation.Key{Disc: p.TS.TSval, Flow: fwd}, capTm)
	}

	// Step 6: timestamp lookup (reverse).
	if tsUsable {
		if t, ok := c.tsTbl.Take(correlation.Key{Disc: p.TS.ECR, Flow: rev}); ok && t > 0 {
			tsRTT = capTm - t
			tsOk = true
		}
	}

	// Step 7: sequence insert (forward).
	if seqUsable && p.PayloadLen > 0 && !blocked {
		nxt := p.Seq + uint32(p.PayloadLen)
		c.seqTbl.TryInsert(correlation.Key{Disc: nxt, Flow: fwd}, capTm)
	}

	// Step 8: sequence lookup (reverse). Unlike Steps 5/7, the local-host
	// filter never suppresses a lookup, only an insert.
	if seqUsable && p.Flags.ACK && (p.PayloadLen == 0 || p.Ack != fr.LastAck) {
		if t, ok := c.seqTbl.Take(correlation.Key{Disc: p.Ack, Flow: rev}); ok {
			seqRTT = capTm - t
			seqOk = true
		}
	}

	// Step 9: sequence-hole / out-of-order detection.
	var dseq int32
	var dseqOk bool
	if fr.LastSeq != 0 {
		d := int32(p.Seq - (fr.LastSeq + fr.LastPay))
		if absInt32(d) > int32(c.cfg.WrapThreshold) {
			d = 0
		}
		dseq = d
		// A hole (dseq>0) or an out-of-order/retransmission (dseq<0) both
		// count as a fired sequence-delta indicator (spec.md §4.3 step 13
		// groups both under "hole-indicator"); in-sequence (dseq=0) does
		// not. This differs from the original C++, which only flagged
		// holes — see scenario 4 in spec.md §8, which expects a negative
		// dseq to be emitted too.
		dseqOk = d != 0
	}

	// Step 10: update sequence bookkeeping.
	if p.Flags.SYN || p.Flags.FIN {
		fr.LastSeq = p.Seq + 1
	} else {
		fr.LastSeq = p.Seq
	}
	fr.LastPay = uint32(p.PayloadLen)

	// Step 11: duplicate-ACK detection.
	var dupInterval float64
	var dupOk bool
	if p.Flags.OnlyACK() && p.PayloadLen == 0 && p.Ack == fr.LastAck {
		dupInterval = capTm - fr.LastTime
		dupOk = true
	}

	// Step 12: update FlowRecord bookkeeping.
	fr.LastTime = capTm
	fr.LastAck = p.Ack

	obs := model.Observation{
		CaptureSec: p.CaptureSec, CaptureUsec: p.CaptureUsec,
		TSRTT: tsRTT, TSRTTOk: tsOk,
		SeqRTT: seqRTT, SeqRTTOk: seqOk,
		DSeq: dseq, DSeqOk: dseqOk,
		DupACKInterval: dupInterval, DupACKOk: dupOk,
		PayloadLen: p.PayloadLen,
		FlowBytes:  fr.BytesSent,
		FlowName:   fr.Name,
	}

	// Step 13: emission decision.
	fired := tsOk || seqOk || dseqOk || dupOk
	if !fired {
		return obs, false
	}
	if c.cfg.Quick && !tsOk && !seqOk {
		return obs, false
	}
	return obs, true
}

func absInt32(v int32) int32 {
	if v < 0 {
		return -v
	}
	return v
}
