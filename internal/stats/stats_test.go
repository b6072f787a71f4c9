package stats

import (
	"io"
	"path/filepath"
	"testing"

	"github.com/courierd/courier"
	"github.com/courierd/courier/internal/dao"
	"github.com/courierd/courier/tools"
	"github.com/go-test/deep"
	"github.com/sirupsen/logrus"
)

func newAggregator(t *testing.T) (*Aggregator, dao.DAO) {
	t.Helper()
	base := logrus.New()
	base.SetOutput(io.Discard)

	db, err := dao.NewSQLite(filepath.Join(t.TempDir(), "courier.sqlite"))
	if err != nil {
		t.Fatalf("could not create dao: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return New(tools.NewLogger(base), db), db
}

func TestSentAndFailedCountToday(t *testing.T) {
	a, _ := newAggregator(t)

	a.Sent("app1")
	a.Sent("app1")
	a.Failed("app1")
	a.Sent("app2")

	today := courier.Today()
	out, err := a.Range("app1", today, today)
	if err != nil {
		t.Fatalf("range failed: %v", err)
	}
	want := courier.AppStats{today: {Sent: 2, Failed: 1}}
	if diff := deep.Equal(out, want); diff != nil {
		t.Fatalf("unexpected stats: %v", diff)
	}
}

func TestRangeSkipsEmptyDays(t *testing.T) {
	a, db := newAggregator(t)
	if err := db.IncrementStat("app1", "2024-01-01", dao.OutcomeSent); err != nil {
		t.Fatalf("increment failed: %v", err)
	}
	if err := db.IncrementStat("app1", "2024-01-05", dao.OutcomeFailed); err != nil {
		t.Fatalf("increment failed: %v", err)
	}

	out, err := a.Range("app1", "2024-01-01", "2024-01-31")
	if err != nil {
		t.Fatalf("range failed: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 days, got %+v", out)
	}
	if _, ok := out["2024-01-02"]; ok {
		t.Fatal("empty days must be absent")
	}
}

func TestAppStatisticsShape(t *testing.T) {
	a, db := newAggregator(t)
	for i := 0; i < 3; i++ {
		if err := db.IncrementStat("app1", "2024-01-01", dao.OutcomeSent); err != nil {
			t.Fatalf("increment failed: %v", err)
		}
	}
	if err := db.IncrementStat("app1", "2024-01-02", dao.OutcomeFailed); err != nil {
		t.Fatalf("increment failed: %v", err)
	}

	out, err := a.AppStatistics("app1", "2024-01-01", "2024-01-31")
	if err != nil {
		t.Fatalf("app statistics failed: %v", err)
	}
	if out.EmailsSent.Total != 3 || out.EmailsFailed.Total != 1 {
		t.Fatalf("unexpected totals: %+v", out)
	}
	if out.EmailsSent.ByDate["2024-01-01"] != 3 {
		t.Fatalf("unexpected sent series: %+v", out.EmailsSent)
	}
	// a day with only failures never shows in the sent series
	if _, ok := out.EmailsSent.ByDate["2024-01-02"]; ok {
		t.Fatalf("zero counters must be absent: %+v", out.EmailsSent)
	}
}

func TestSystem(t *testing.T) {
	a, db := newAggregator(t)
	key := &courier.Credential{
		User: "sender@example.com", Pass: "secret", App: "app1",
		Company: courier.ProviderGmail, LimitCount: 100,
	}
	if err := db.AddKey(key); err != nil {
		t.Fatalf("AddKey failed: %v", err)
	}
	template := &courier.Template{Name: "welcome", Subject: "s", Content: "c", Type: courier.ContentText}
	if err := db.AddTemplate(template); err != nil {
		t.Fatalf("AddTemplate failed: %v", err)
	}
	if err := db.AddJob(&dao.Job{ID: "job1", App: "app1", TemplateID: template.ID, Recipient: "to@example.com"}); err != nil {
		t.Fatalf("AddJob failed: %v", err)
	}

	out, err := a.System()
	if err != nil {
		t.Fatalf("system failed: %v", err)
	}
	if out.EmailQueue.Pending != 1 || out.EmailKeys.Total != 1 || out.Templates.Total != 1 {
		t.Fatalf("unexpected statistics: %+v", out)
	}
}
