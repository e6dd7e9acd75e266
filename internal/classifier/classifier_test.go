package classifier

import (
	"math"
	"net"
	"testing"

	"connmon/internal/correlation"
	"connmon/internal/flowtable"
	"connmon/internal/model"
)

func ep(ip string, port uint16) model.Endpoint {
	return model.NewEndpoint(net.ParseIP(ip), port)
}

func newTestClassifier() *Classifier {
	return New(Config{}, flowtable.New(1000), correlation.New(), correlation.New())
}

var a = ep("10.0.0.1", 4000)
var b = ep("10.0.0.2", 80)

func pkt(src, dst model.Endpoint, sec, usec int64, seq, ack uint32, syn bool, payLen int, tsval, tsecr uint32, tsOk bool) *model.PacketRecord {
	return &model.PacketRecord{
		CaptureSec: sec, CaptureUsec: usec,
		Src: src, Dst: dst,
		Flags:      model.TCPFlags{SYN: syn, ACK: !syn},
		Seq:        seq,
		Ack:        ack,
		PayloadLen: payLen,
		WireLen:    payLen + 40,
		TS:         model.Timestamp{TSval: tsval, ECR: tsecr, Ok: tsOk},
	}
}

// primeBidirectional runs a minimal two-packet handshake (A->B SYN, B->A
// SYN) through c so the A-B/B-A flow pair is marked bidirectional before
// the scenario under test begins, matching how a real capture would have
// seen the connection establish.
func primeBidirectional(t *testing.T, c *Classifier) {
	t.Helper()
	syn := pkt(a, b, 0, 0, 999, 0, true, 0, 0, 0, false)
	if _, fire := c.Process(syn, 0.0); fire {
		t.Fatalf("priming SYN unexpectedly fired an observation")
	}
	synAck := pkt(b, a, 0, 1, 2999, 1000, true, 0, 0, 0, false)
	if _, fire := c.Process(synAck, 0.001); fire {
		t.Fatalf("priming SYN-ACK unexpectedly fired an observation")
	}
}

// Scenario 1: single ping pair (spec.md §8 scenario 1).
func TestSinglePingPair(t *testing.T) {
	c := newTestClassifier()
	primeBidirectional(t, c)

	p1 := pkt(a, b, 1, 0, 1000, 0, false, 50, 100, 1, true)
	obs1, fire1 := c.Process(p1, 1.0)
	if fire1 {
		t.Fatalf("packet 1 should not fire on its own (no reverse sample yet), got %+v", obs1)
	}

	p2 := pkt(b, a, 1, 50000, 3000, 1050, false, 0, 200, 100, true)
	obs2, fire2 := c.Process(p2, 1.05)
	if !fire2 {
		t.Fatalf("packet 2 should fire an observation")
	}
	// 1.05-1.0 is not exactly 0.05 in float64; compare within float precision.
	if !obs2.TSRTTOk || math.Abs(obs2.TSRTT-0.05) > 1e-9 {
		t.Errorf("TSRTT = %v (ok=%v), want 0.05", obs2.TSRTT, obs2.TSRTTOk)
	}
	if !obs2.SeqRTTOk || math.Abs(obs2.SeqRTT-0.05) > 1e-9 {
		t.Errorf("SeqRTT = %v (ok=%v), want 0.05", obs2.SeqRTT, obs2.SeqRTTOk)
	}
	if obs2.DSeq != 0 {
		t.Errorf("DSeq = %d, want 0", obs2.DSeq)
	}
}

// Scenario 2: a duplicate ECR, already taken by scenario 1, must not
// produce a second TSval-RTT sample (spec.md §8 scenario 2).
func TestDuplicateECRSuppressed(t *testing.T) {
	c := newTestClassifier()
	primeBidirectional(t, c)

	p1 := pkt(a, b, 1, 0, 1000, 0, false, 50, 100, 1, true)
	c.Process(p1, 1.0)
	p2 := pkt(b, a, 1, 50000, 3000, 1050, false, 0, 200, 100, true)
	c.Process(p2, 1.05)

	p3 := pkt(b, a, 1, 100000, 3000, 1051, false, 0, 201, 100, true)
	obs3, fire3 := c.Process(p3, 1.1)
	if obs3.TSRTTOk {
		t.Errorf("expected no TSval-RTT on repeated ECR, got %v", obs3.TSRTT)
	}
	if fire3 {
		t.Errorf("packet with no fresh sample, dseq=0, and non-duplicate ack should not fire, got %+v", obs3)
	}
}

// Scenario 3: a sequence hole produces a positive dseq (spec.md §8 scenario 3).
func TestSequenceHole(t *testing.T) {
	c := newTestClassifier()
	p1 := pkt(a, b, 1, 0, 1000, 0, false, 100, 0, 0, false)
	c.Process(p1, 1.0)

	p2 := pkt(a, b, 1, 100000, 1200, 0, false, 100, 0, 0, false)
	obs, fire := c.Process(p2, 1.1)
	if !fire {
		t.Fatalf("expected hole observation to fire")
	}
	if !obs.DSeqOk || obs.DSeq != 100 {
		t.Errorf("DSeq = %d (ok=%v), want +100", obs.DSeq, obs.DSeqOk)
	}
}

// Scenario 4: an out-of-order/retransmitted segment produces a negative
// dseq (spec.md §8 scenario 4) — deliberately diverging from the original
// C++, which only ever flagged positive holes; see DESIGN.md.
func TestOutOfOrderNegativeDSeq(t *testing.T) {
	c := newTestClassifier()
	p1 := pkt(a, b, 1, 0, 1100, 0, false, 100, 0, 0, false)
	c.Process(p1, 1.0)

	p2 := pkt(a, b, 1, 100000, 1000, 0, false, 100, 0, 0, false)
	obs, fire := c.Process(p2, 1.1)
	if !fire {
		t.Fatalf("expected out-of-order observation to fire")
	}
	if !obs.DSeqOk || obs.DSeq != -200 {
		t.Errorf("DSeq = %d (ok=%v), want -200", obs.DSeq, obs.DSeqOk)
	}
}

// Scenario 5: two pure ACKs repeating the same ackno emit a duplicate-ACK
// interval (spec.md §8 scenario 5).
func TestDuplicateACKInterval(t *testing.T) {
	c := newTestClassifier()
	p1 := pkt(a, b, 2, 0, 1, 5000, false, 0, 0, 0, false)
	c.Process(p1, 2.0)

	p2 := pkt(a, b, 2, 10000, 1, 5000, false, 0, 0, 0, false)
	obs, fire := c.Process(p2, 2.01)
	if !fire {
		t.Fatalf("expected duplicate-ACK observation to fire")
	}
	if !obs.DupACKOk || math.Abs(obs.DupACKInterval-0.01) > 1e-9 {
		t.Errorf("DupACKInterval = %v (ok=%v), want 0.01", obs.DupACKInterval, obs.DupACKOk)
	}
}

// Scenario 6: a unidirectional flow never emits an RTT and every packet on
// it counts toward the unidirectional summary counter (spec.md §8 scenario 6).
func TestUnidirectionalFlowNeverEmitsRTT(t *testing.T) {
	c := newTestClassifier()
	for i := 0; i < 3; i++ {
		p := pkt(a, b, 1, int64(i*1000), uint32(1000+i*10), 0, false, 10, uint32(100+i), uint32(50+i), true)
		obs, _ := c.Process(p, 1.0+float64(i)*0.01)
		if obs.TSRTTOk || obs.SeqRTTOk {
			t.Errorf("packet %d on a unidirectional flow should never emit an RTT sample", i)
		}
	}
	if c.Counters().Unidirectional != 3 {
		t.Errorf("Unidirectional counter = %d, want 3", c.Counters().Unidirectional)
	}
}

// The local-host filter (spec.md §4.3 step 4) suppresses correlation
// inserts for packets destined to the local host, but never the lookups —
// and must match on IP alone, since cmd/connmon builds LocalIP with Port 0.
func TestLocalHostFilterSuppressesInsertsOnly(t *testing.T) {
	cfg := Config{
		FilterLocal: true,
		HaveLocalIP: true,
		LocalIP:     ep("10.0.0.2", 0), // port 0, same shape as cmd/connmon's construction
	}
	c := New(cfg, flowtable.New(1000), correlation.New(), correlation.New())
	primeBidirectional(t, c)

	// a -> b: dst b's IP (10.0.0.2) matches LocalIP's IP, despite the port
	// mismatch (b is port 80, LocalIP is port 0), so its inserts are blocked.
	p1 := pkt(a, b, 1, 0, 1000, 0, false, 50, 100, 1, true)
	c.Process(p1, 1.0)

	// b -> a: dst a's IP does not match LocalIP, so this packet's lookups
	// run normally, but find nothing since p1's inserts never happened.
	p2 := pkt(b, a, 1, 50000, 3000, 1050, false, 0, 200, 100, true)
	obs2, fire2 := c.Process(p2, 1.05)
	if obs2.TSRTTOk || obs2.SeqRTTOk {
		t.Errorf("expected no RTT sample: the local-host filter should have suppressed packet 1's inserts, got %+v", obs2)
	}
	if fire2 {
		t.Errorf("expected no observation to fire once inserts are suppressed, got %+v", obs2)
	}
}

func TestWrapThresholdSuppressesSpuriousDelta(t *testing.T) {
	cfg := Config{WrapThreshold: 1000}
	c := New(cfg, flowtable.New(1000), correlation.New(), correlation.New())

	p1 := pkt(a, b, 1, 0, 10, 0, false, 10, 0, 0, false)
	c.Process(p1, 1.0)

	// A jump far larger than the configured threshold is treated as 32-bit
	// wraparound noise, not a genuine hole.
	p2 := pkt(a, b, 1, 100000, 1_000_000, 0, false, 10, 0, 0, false)
	obs, _ := c.Process(p2, 1.1)
	if obs.DSeqOk {
		t.Errorf("expected dseq to be suppressed as wraparound noise, got %d", obs.DSeq)
	}
}
