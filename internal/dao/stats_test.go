package dao

import (
	"sync"
	"testing"

	"github.com/go-test/deep"
)

func TestIncrementStatUpserts(t *testing.T) {
	db := newDAO(t)

	for i := 0; i < 3; i++ {
		if err := db.IncrementStat("app1", "2024-01-01", OutcomeSent); err != nil {
			t.Fatalf("increment failed: %v", err)
		}
	}
	if err := db.IncrementStat("app1", "2024-01-01", OutcomeFailed); err != nil {
		t.Fatalf("increment failed: %v", err)
	}
	if err := db.IncrementStat("app1", "2024-01-03", OutcomeSent); err != nil {
		t.Fatalf("increment failed: %v", err)
	}
	// another app's counters stay separate
	if err := db.IncrementStat("app2", "2024-01-01", OutcomeSent); err != nil {
		t.Fatalf("increment failed: %v", err)
	}

	records, err := db.StatRange("app1", "2024-01-01", "2024-01-31")
	if err != nil {
		t.Fatalf("StatRange failed: %v", err)
	}
	want := []StatRecord{
		{App: "app1", Date: "2024-01-01", Sent: 3, Failed: 1},
		{App: "app1", Date: "2024-01-03", Sent: 1, Failed: 0},
	}
	if diff := deep.Equal(records, want); diff != nil {
		t.Fatalf("unexpected records: %v", diff)
	}
}

func TestIncrementStatRejectsUnknownOutcome(t *testing.T) {
	db := newDAO(t)
	if err := db.IncrementStat("app1", "2024-01-01", Outcome("bogus")); err == nil {
		t.Fatal("expected error for unknown outcome")
	}
}

func TestStatRangeBounds(t *testing.T) {
	db := newDAO(t)
	for _, date := range []string{"2024-01-01", "2024-01-05", "2024-01-10"} {
		if err := db.IncrementStat("app1", date, OutcomeSent); err != nil {
			t.Fatalf("increment failed: %v", err)
		}
	}

	records, err := db.StatRange("app1", "2024-01-02", "2024-01-05")
	if err != nil {
		t.Fatalf("StatRange failed: %v", err)
	}
	if len(records) != 1 || records[0].Date != "2024-01-05" {
		t.Fatalf("range bounds not inclusive, got %+v", records)
	}

	records, err = db.StatRange("app1", "2024-02-01", "2024-02-28")
	if err != nil {
		t.Fatalf("StatRange failed: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("expected empty range, got %+v", records)
	}
}

func TestIncrementStatConcurrent(t *testing.T) {
	db := newDAO(t)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := db.IncrementStat("app1", "2024-01-01", OutcomeSent); err != nil {
				t.Errorf("increment failed: %v", err)
			}
		}()
	}
	wg.Wait()

	records, err := db.StatRange("app1", "2024-01-01", "2024-01-01")
	if err != nil {
		t.Fatalf("StatRange failed: %v", err)
	}
	if len(records) != 1 || records[0].Sent != 20 {
		t.Fatalf("lost updates, got %+v", records)
	}
}
