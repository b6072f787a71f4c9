// Package stats maintains the durable per-application, per-day send and
// failure counters and assembles the reporting views.
package stats

import (
	"github.com/courierd/courier"
	"github.com/courierd/courier/internal/dao"
	"github.com/courierd/courier/tools"
	"github.com/sirupsen/logrus"
)

// Store is the slice of the DAO the aggregator needs.
type Store interface {
	IncrementStat(app, date string, outcome dao.Outcome) error
	StatRange(app, start, end string) ([]dao.StatRecord, error)
	SpoolCounts() (courier.QueueStats, error)
	KeySummary() (courier.KeyStatistics, error)
	CountTemplates() (int, error)
}

func New(lc *tools.Logger, store Store) *Aggregator {
	return &Aggregator{
		log:   lc.New("stats"),
		store: store,
	}
}

type Aggregator struct {
	log   *logrus.Logger
	store Store
}

// Sent counts one successful dispatch for the app on today's date.
func (a *Aggregator) Sent(app string) {
	a.increment(app, dao.OutcomeSent)
}

// Failed counts one failed dispatch for the app on today's date.
func (a *Aggregator) Failed(app string) {
	a.increment(app, dao.OutcomeFailed)
}

func (a *Aggregator) increment(app string, outcome dao.Outcome) {
	err := a.store.IncrementStat(app, courier.Today(), outcome)
	if err != nil {
		// the job outcome itself is already persisted in the spool, a lost
		// counter increment is logged, not fatal
		a.log.WithError(err).WithFields(logrus.Fields{
			"app": app, "outcome": outcome,
		}).Error("could not increment stat record")
	}
}

// Range returns the per-day counts for the app within [start, end],
// inclusive, ordered by date. Days without a record are absent.
func (a *Aggregator) Range(app, start, end string) (courier.AppStats, error) {
	records, err := a.store.StatRange(app, start, end)
	if err != nil {
		return nil, err
	}
	out := courier.AppStats{}
	for _, r := range records {
		out[r.Date] = courier.DayStat{Sent: r.Sent, Failed: r.Failed}
	}
	return out, nil
}

// AppStatistics is Range reshaped for /api/statistics/app.
func (a *Aggregator) AppStatistics(app, start, end string) (courier.AppStatistics, error) {
	var out courier.AppStatistics
	records, err := a.store.StatRange(app, start, end)
	if err != nil {
		return out, err
	}
	out.EmailsSent.ByDate = map[string]int{}
	out.EmailsFailed.ByDate = map[string]int{}
	for _, r := range records {
		if r.Sent > 0 {
			out.EmailsSent.ByDate[r.Date] = r.Sent
		}
		if r.Failed > 0 {
			out.EmailsFailed.ByDate[r.Date] = r.Failed
		}
		out.EmailsSent.Total += r.Sent
		out.EmailsFailed.Total += r.Failed
	}
	return out, nil
}

// System is the engine-wide summary for /api/statistics.
func (a *Aggregator) System() (courier.SystemStatistics, error) {
	var out courier.SystemStatistics

	queue, err := a.store.SpoolCounts()
	if err != nil {
		return out, err
	}
	keys, err := a.store.KeySummary()
	if err != nil {
		return out, err
	}
	templates, err := a.store.CountTemplates()
	if err != nil {
		return out, err
	}

	out.EmailQueue = queue
	out.EmailKeys = keys
	out.Templates = courier.TemplateStatistics{Total: templates}
	return out, nil
}
