package scheduler

import "testing"

func TestFirstTickArmsDeadlinesWithoutFiring(t *testing.T) {
	s := New(10, 5, true)
	cleanDue, summaryDue := s.Tick(100.0)
	if cleanDue || summaryDue {
		t.Fatalf("first Tick should only arm deadlines, got cleanDue=%v summaryDue=%v", cleanDue, summaryDue)
	}
}

func TestTickFiresWhenDeadlinePasses(t *testing.T) {
	s := New(10, 5, true)
	s.Tick(100.0) // arms nextClean=110, nextSummary=105

	cleanDue, summaryDue := s.Tick(104.0)
	if cleanDue || summaryDue {
		t.Fatalf("Tick(104) before either deadline should not fire, got cleanDue=%v summaryDue=%v", cleanDue, summaryDue)
	}

	cleanDue, summaryDue = s.Tick(106.0)
	if cleanDue || !summaryDue {
		t.Fatalf("Tick(106) should fire summary only, got cleanDue=%v summaryDue=%v", cleanDue, summaryDue)
	}

	cleanDue, summaryDue = s.Tick(111.0)
	if !cleanDue {
		t.Fatalf("Tick(111) should fire clean, got cleanDue=%v", cleanDue)
	}
}

func TestSummaryOffNeverFires(t *testing.T) {
	s := New(10, 5, false)
	s.Tick(0.0)
	_, summaryDue := s.Tick(1000.0)
	if summaryDue {
		t.Fatalf("summaryDue should never fire when SummaryOn is false")
	}
}
