package flowtable

import (
	"net"
	"testing"

	"connmon/internal/model"
)

func ep(ip string, port uint16) model.Endpoint {
	return model.NewEndpoint(net.ParseIP(ip), port)
}

func TestGetOrCreateReturnsSameRecord(t *testing.T) {
	tb := New(10)
	key := model.FlowKey{Src: ep("10.0.0.1", 1), Dst: ep("10.0.0.2", 2)}

	rec1, created1, dropped1 := tb.GetOrCreate(key)
	if !created1 || dropped1 {
		t.Fatalf("first GetOrCreate: created=%v dropped=%v, want true/false", created1, dropped1)
	}
	rec1.BytesSent = 42

	rec2, created2, dropped2 := tb.GetOrCreate(key)
	if created2 || dropped2 {
		t.Fatalf("second GetOrCreate: created=%v dropped=%v, want false/false", created2, dropped2)
	}
	if rec2 != rec1 {
		t.Fatalf("expected the same *FlowRecord pointer, got a different one")
	}
	if rec2.BytesSent != 42 {
		t.Fatalf("BytesSent = %d, want 42 (same record)", rec2.BytesSent)
	}
}

func TestGetOrCreateSetsBidirectionalOnBothDirections(t *testing.T) {
	tb := New(10)
	fwd := model.FlowKey{Src: ep("10.0.0.1", 1), Dst: ep("10.0.0.2", 2)}
	rev := fwd.Reverse()

	fr, _, _ := tb.GetOrCreate(fwd)
	if fr.Bidirectional {
		t.Fatalf("flow created with no reverse counterpart should not be bidirectional")
	}

	rr, _, _ := tb.GetOrCreate(rev)
	if !rr.Bidirectional || !fr.Bidirectional {
		t.Fatalf("creating the reverse flow should mark both records bidirectional")
	}
}

func TestGetOrCreateDropsAtCapacity(t *testing.T) {
	tb := New(1)
	k1 := model.FlowKey{Src: ep("10.0.0.1", 1), Dst: ep("10.0.0.2", 2)}
	k2 := model.FlowKey{Src: ep("10.0.0.3", 3), Dst: ep("10.0.0.4", 4)}

	if _, created, dropped := tb.GetOrCreate(k1); !created || dropped {
		t.Fatalf("first flow should be created, got created=%v dropped=%v", created, dropped)
	}
	if _, created, dropped := tb.GetOrCreate(k2); created || !dropped {
		t.Fatalf("second flow over capacity should be dropped, got created=%v dropped=%v", created, dropped)
	}
	if tb.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", tb.Len())
	}
}

func TestEvictIdleRemovesOnlyStaleFlows(t *testing.T) {
	tb := New(10)
	fresh := model.FlowKey{Src: ep("10.0.0.1", 1), Dst: ep("10.0.0.2", 2)}
	stale := model.FlowKey{Src: ep("10.0.0.3", 3), Dst: ep("10.0.0.4", 4)}

	fr, _, _ := tb.GetOrCreate(fresh)
	fr.LastTime = 100

	sr, _, _ := tb.GetOrCreate(stale)
	sr.LastTime = 10

	tb.EvictIdle(100, 50) // cutoff = 50; stale's LastTime=10 < 50

	if _, ok := tb.flows[stale]; ok {
		t.Errorf("expected stale flow to be evicted")
	}
	if _, ok := tb.flows[fresh]; !ok {
		t.Errorf("expected fresh flow to survive eviction")
	}
}
