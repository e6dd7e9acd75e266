package correlation

import (
	"net"
	"testing"

	"connmon/internal/model"
)

func ep(ip string, port uint16) model.Endpoint {
	return model.NewEndpoint(net.ParseIP(ip), port)
}

var fk = model.FlowKey{Src: ep("10.0.0.1", 1), Dst: ep("10.0.0.2", 2)}

func TestTryInsertFirstWriterWins(t *testing.T) {
	tb := New()
	k := Key{Disc: 100, Flow: fk}

	tb.TryInsert(k, 1.0)
	tb.TryInsert(k, 2.0) // later insert with the same key must not overwrite

	got, ok := tb.Take(k)
	if !ok {
		t.Fatalf("expected entry to be present")
	}
	if got != 1.0 {
		t.Errorf("stored value = %v, want 1.0 (first writer wins)", got)
	}
}

func TestTakeRemovesEntry(t *testing.T) {
	tb := New()
	k := Key{Disc: 1, Flow: fk}
	tb.TryInsert(k, 5.0)

	if _, ok := tb.Take(k); !ok {
		t.Fatalf("expected first Take to succeed")
	}
	if _, ok := tb.Take(k); ok {
		t.Fatalf("expected second Take on the same key to fail")
	}
}

func TestTakeAfterReinsertSucceeds(t *testing.T) {
	tb := New()
	k := Key{Disc: 1, Flow: fk}
	tb.TryInsert(k, 5.0)
	tb.Take(k)

	tb.TryInsert(k, 9.0)
	got, ok := tb.Take(k)
	if !ok || got != 9.0 {
		t.Fatalf("Take after reinsert = (%v, %v), want (9.0, true)", got, ok)
	}
}

func TestEvictOldRemovesOnlyEntriesOlderThanMaxAge(t *testing.T) {
	tb := New()
	freshKey := Key{Disc: 1, Flow: fk}
	staleKey := Key{Disc: 2, Flow: fk}

	tb.TryInsert(freshKey, 95.0)
	tb.TryInsert(staleKey, 10.0)

	tb.EvictOld(100.0, 50.0) // cutoff = 50; entries at or before 50 are removed

	if _, ok := tb.Take(staleKey); ok {
		t.Errorf("expected stale entry to have been evicted")
	}
	if _, ok := tb.Take(freshKey); !ok {
		t.Errorf("expected fresh entry to survive eviction")
	}
}
