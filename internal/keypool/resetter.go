package keypool

import (
	"context"
	"sync"
	"time"

	"github.com/courierd/courier"
	"github.com/courierd/courier/tools"
	"github.com/sirupsen/logrus"
)

type ResetterConfig struct {
	Interval time.Duration `cli:"quota-reset-interval"`
}

// ResetStore is the slice of the DAO the resetter needs.
type ResetStore interface {
	ResetKeyQuotas(today string) (int64, error)
}

// Resetter periodically zeroes usage counters for credentials whose last
// reset date is before the current UTC date. The date guard lives in the
// store, so running it again, or after days of downtime, resets each
// credential exactly once per day boundary crossed into.
type Resetter struct {
	cfg   ResetterConfig
	log   *logrus.Logger
	store ResetStore

	ctx    context.Context
	cancel func()

	ostart  sync.Once
	ostop   sync.Once
	stopped chan struct{}
}

func NewResetter(cfg ResetterConfig, lc *tools.Logger, store ResetStore) *Resetter {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	return &Resetter{
		cfg:     cfg,
		log:     lc.New("resetter"),
		store:   store,
		stopped: make(chan struct{}),
	}
}

func (r *Resetter) Start() {
	r.ostart.Do(func() {
		r.ctx, r.cancel = context.WithCancel(context.Background())
		go r.run()
	})
}

func (r *Resetter) run() {
	r.log.Infof("starting quota resetter, interval %s", r.cfg.Interval)
	defer close(r.stopped)

	// run once at startup so downtime over a date boundary is repaired
	// before the first tick
	r.reset()

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-r.ctx.Done():
			r.log.Info("stopping quota resetter")
			return
		case <-ticker.C:
			r.reset()
		}
	}
}

func (r *Resetter) reset() {
	today := courier.Today()
	n, err := r.store.ResetKeyQuotas(today)
	if err != nil {
		r.log.WithError(err).Error("could not reset key quotas")
		return
	}
	if n > 0 {
		r.log.WithFields(logrus.Fields{"keys": n, "date": today}).Info("reset daily quotas")
	}
}

func (r *Resetter) Stop(ctx context.Context) error {
	var err error
	r.ostop.Do(func() {
		if r.cancel == nil {
			return
		}
		r.cancel()
		select {
		case <-r.stopped:
		case <-ctx.Done():
			err = ctx.Err()
		}
	})
	return err
}
