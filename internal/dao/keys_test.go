package dao

import (
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/courierd/courier"
)

func newDAO(t *testing.T) DAO {
	t.Helper()
	db, err := NewSQLite(filepath.Join(t.TempDir(), "courier.sqlite"))
	if err != nil {
		t.Fatalf("could not create dao: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func addKey(t *testing.T, db DAO, app string, limit, sent int, lastReset string) *courier.Credential {
	t.Helper()
	key := &courier.Credential{
		User:          "sender@example.com",
		Pass:          "secret",
		App:           app,
		Company:       courier.ProviderGmail,
		LimitCount:    limit,
		LastResetDate: lastReset,
	}
	if err := db.AddKey(key); err != nil {
		t.Fatalf("AddKey failed: %v", err)
	}
	for i := 0; i < sent; i++ {
		if _, err := db.ClaimKeyQuota(app, lastReset); err != nil {
			t.Fatalf("could not pre-claim quota: %v", err)
		}
	}
	return key
}

func TestAddKeyDefaultsResetDate(t *testing.T) {
	db := newDAO(t)
	key := &courier.Credential{
		User:       "sender@example.com",
		Pass:       "secret",
		App:        "app1",
		Company:    courier.ProviderGmail,
		LimitCount: 10,
	}
	if err := db.AddKey(key); err != nil {
		t.Fatalf("AddKey failed: %v", err)
	}
	if key.LastResetDate != courier.Today() {
		t.Fatalf("empty reset date should default to today, got %q", key.LastResetDate)
	}

	got, err := db.GetKey(key.ID)
	if err != nil {
		t.Fatalf("GetKey failed: %v", err)
	}
	if got.LastResetDate != courier.Today() {
		t.Fatalf("persisted reset date is %q, want today", got.LastResetDate)
	}
}

func TestClaimPrefersLowestUsageRatio(t *testing.T) {
	db := newDAO(t)

	// 5/10 used vs 0/100 used, the fresh large key must win
	busy := addKey(t, db, "app1", 10, 0, "2024-01-01")
	fresh := &courier.Credential{
		User: "fresh@example.com", Pass: "secret", App: "app1",
		Company: courier.Provider163, LimitCount: 100, LastResetDate: "2024-01-01",
	}
	if err := db.AddKey(fresh); err != nil {
		t.Fatalf("AddKey failed: %v", err)
	}
	for i := 0; i < 5; i++ {
		if _, err := db.ClaimKeyQuota("app1", "2024-01-01"); err != nil {
			t.Fatalf("claim failed: %v", err)
		}
	}

	// at this point busy has some usage, fresh should have the rest, and
	// whichever has the lower ratio is claimed next
	a, err := db.GetKey(busy.ID)
	if err != nil {
		t.Fatalf("GetKey failed: %v", err)
	}
	b, err := db.GetKey(fresh.ID)
	if err != nil {
		t.Fatalf("GetKey failed: %v", err)
	}

	claimed, err := db.ClaimKeyQuota("app1", "2024-01-01")
	if err != nil {
		t.Fatalf("claim failed: %v", err)
	}

	ratioA := float64(a.SentCount) / float64(a.LimitCount)
	ratioB := float64(b.SentCount) / float64(b.LimitCount)
	want := a.ID
	if ratioB < ratioA {
		want = b.ID
	}
	if claimed.ID != want {
		t.Fatalf("expected key %d to be claimed, got %d (ratios %f vs %f)", want, claimed.ID, ratioA, ratioB)
	}
}

func TestClaimTieBreaksOnResetDateThenID(t *testing.T) {
	db := newDAO(t)

	addKey(t, db, "app1", 10, 0, "2024-01-02")
	earlier := addKey(t, db, "app1", 10, 0, "2024-01-01")

	claimed, err := db.ClaimKeyQuota("app1", "2024-01-02")
	if err != nil {
		t.Fatalf("claim failed: %v", err)
	}
	if claimed.ID != earlier.ID {
		t.Fatalf("expected key %d with earlier reset date, got %d", earlier.ID, claimed.ID)
	}

	// equal ratios and dates fall back to lowest id
	db2 := newDAO(t)
	first := addKey(t, db2, "app1", 10, 0, "2024-01-01")
	addKey(t, db2, "app1", 10, 0, "2024-01-01")
	claimed, err = db2.ClaimKeyQuota("app1", "2024-01-01")
	if err != nil {
		t.Fatalf("claim failed: %v", err)
	}
	if claimed.ID != first.ID {
		t.Fatalf("expected key %d with lowest id, got %d", first.ID, claimed.ID)
	}
}

func TestClaimExhaustedPool(t *testing.T) {
	db := newDAO(t)
	addKey(t, db, "app1", 1, 1, "2024-01-01")

	_, err := db.ClaimKeyQuota("app1", "2024-01-01")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	_, err = db.ClaimKeyQuota("no-such-app", "2024-01-01")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown app, got %v", err)
	}
}

func TestClaimNeverExceedsLimit(t *testing.T) {
	db := newDAO(t)
	key := addKey(t, db, "app1", 5, 0, "2024-01-01")

	claims := 0
	for i := 0; i < 20; i++ {
		_, err := db.ClaimKeyQuota("app1", "2024-01-01")
		if err == nil {
			claims++
		}
	}
	if claims != 5 {
		t.Fatalf("expected exactly 5 successful claims, got %d", claims)
	}

	got, err := db.GetKey(key.ID)
	if err != nil {
		t.Fatalf("GetKey failed: %v", err)
	}
	if got.SentCount != got.LimitCount {
		t.Fatalf("expected sent count %d to equal limit, got %d", got.LimitCount, got.SentCount)
	}
}

func TestReleaseKeyQuota(t *testing.T) {
	db := newDAO(t)
	key := addKey(t, db, "app1", 3, 2, "2024-01-01")

	if err := db.ReleaseKeyQuota(key.ID); err != nil {
		t.Fatalf("release failed: %v", err)
	}
	got, err := db.GetKey(key.ID)
	if err != nil {
		t.Fatalf("GetKey failed: %v", err)
	}
	if got.SentCount != 1 {
		t.Fatalf("expected sent count 1 after release, got %d", got.SentCount)
	}

	// release never goes below zero
	for i := 0; i < 5; i++ {
		if err := db.ReleaseKeyQuota(key.ID); err != nil {
			t.Fatalf("release failed: %v", err)
		}
	}
	got, _ = db.GetKey(key.ID)
	if got.SentCount != 0 {
		t.Fatalf("expected sent count 0, got %d", got.SentCount)
	}
}

func TestResetKeyQuotasIsIdempotent(t *testing.T) {
	db := newDAO(t)
	stale := addKey(t, db, "app1", 10, 3, "2024-01-01")
	veryStale := addKey(t, db, "app2", 10, 7, "2023-12-20")
	current := addKey(t, db, "app3", 10, 2, "2024-01-04")

	n, err := db.ResetKeyQuotas("2024-01-04")
	if err != nil {
		t.Fatalf("reset failed: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 keys reset, got %d", n)
	}

	for _, id := range []int64{stale.ID, veryStale.ID} {
		key, err := db.GetKey(id)
		if err != nil {
			t.Fatalf("GetKey failed: %v", err)
		}
		if key.SentCount != 0 || key.LastResetDate != "2024-01-04" {
			t.Fatalf("key %d not reset: sent=%d date=%s", id, key.SentCount, key.LastResetDate)
		}
	}

	// a credential already reset today is untouched
	key, _ := db.GetKey(current.ID)
	if key.SentCount != 2 {
		t.Fatalf("current key should be untouched, sent=%d", key.SentCount)
	}

	// the date guard makes a second run a no-op
	n, err = db.ResetKeyQuotas("2024-01-04")
	if err != nil {
		t.Fatalf("reset failed: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected rerun to reset nothing, got %d", n)
	}
}

func TestUpdateKeyPatch(t *testing.T) {
	db := newDAO(t)
	key := addKey(t, db, "app1", 10, 0, "2024-01-01")

	newLimit := 50
	newApp := "app2"
	updated, err := db.UpdateKey(key.ID, courier.CredentialPatch{LimitCount: &newLimit, App: &newApp})
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if updated.LimitCount != 50 || updated.App != "app2" {
		t.Fatalf("patch not applied: %+v", updated)
	}
	if updated.User != key.User {
		t.Fatalf("unpatched field changed: %s", updated.User)
	}

	_, err = db.UpdateKey(4242, courier.CredentialPatch{})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDeleteKey(t *testing.T) {
	db := newDAO(t)
	key := addKey(t, db, "app1", 10, 0, "2024-01-01")

	if err := db.DeleteKey(key.ID); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if err := db.DeleteKey(key.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestConcurrentFirstUse(t *testing.T) {
	db, err := NewSQLite(filepath.Join(t.TempDir(), "courier.sqlite"))
	if err != nil {
		t.Fatalf("could not create dao: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	// all goroutines race into the connection bootstrap at once
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, lerr := db.ListKeys(); lerr != nil {
				t.Errorf("ListKeys failed: %v", lerr)
			}
			if _, serr := db.SpoolCounts(); serr != nil {
				t.Errorf("SpoolCounts failed: %v", serr)
			}
		}()
	}
	wg.Wait()
}

func TestKeySummary(t *testing.T) {
	db := newDAO(t)
	addKey(t, db, "app1", 10, 0, "2024-01-01")
	addKey(t, db, "app1", 20, 0, "2024-01-01")
	addKey(t, db, "app2", 5, 0, "2024-01-01")

	sum, err := db.KeySummary()
	if err != nil {
		t.Fatalf("summary failed: %v", err)
	}
	if sum.Total != 3 {
		t.Fatalf("expected 3 keys, got %d", sum.Total)
	}
	if got := sum.ByApp["app1"]; got.Count != 2 || got.TotalDailyLimit != 30 {
		t.Fatalf("unexpected app1 summary: %+v", got)
	}
	if got := sum.ByApp["app2"]; got.Count != 1 || got.TotalDailyLimit != 5 {
		t.Fatalf("unexpected app2 summary: %+v", got)
	}
}
