// Package spool is the dispatch queue. Producers enqueue jobs and return
// immediately, a walker goroutine claims pending jobs oldest-first and hands
// them one at a time to dispatcher workers over a channel.
package spool

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/courierd/courier"
	"github.com/courierd/courier/internal/dao"
	"github.com/courierd/courier/internal/signals"
	"github.com/courierd/courier/tools"
	"github.com/sirupsen/logrus"
)

type Config struct {
	WalkInterval time.Duration `cli:"spool-walk-interval"`
	Batch        int           `cli:"spool-batch"`
}

// Store is the slice of the DAO the spool needs.
type Store interface {
	AddJob(job *dao.Job) error
	NextPending(limit int) ([]dao.Job, error)
	ClaimJob(id string) error
	RequeueJob(id string) error
	MarkJobSent(id string, keyID int64) error
	MarkJobFailed(id, reason string) error
	RequeueProcessing() (int64, error)
	SpoolCounts() (courier.QueueStats, error)
}

type Spool struct {
	cfg   Config
	log   *logrus.Logger
	store Store

	ctx    context.Context
	cancel func()

	queue chan dao.Job
	sig   chan struct{}

	ostart sync.Once
	ostop  sync.Once
	walked chan struct{}
}

func New(cfg Config, lc *tools.Logger, store Store) (*Spool, error) {
	if cfg.WalkInterval <= 0 {
		cfg.WalkInterval = 15 * time.Second
	}
	if cfg.Batch <= 0 {
		cfg.Batch = 100
	}

	s := &Spool{
		cfg:    cfg,
		log:    lc.New("spool"),
		store:  store,
		queue:  make(chan dao.Job), // unbuffered, ensures a handover
		sig:    make(chan struct{}, 1),
		walked: make(chan struct{}),
	}

	// jobs stranded in processing by a crash go back to the queue before
	// the walker starts
	n, err := store.RequeueProcessing()
	if err != nil {
		return nil, fmt.Errorf("could not requeue stranded jobs: %w", err)
	}
	if n > 0 {
		s.log.Infof("requeued %d jobs stranded in processing", n)
	}

	s.start()
	return s, nil
}

func (s *Spool) start() {
	s.ostart.Do(func() {
		s.ctx, s.cancel = context.WithCancel(context.Background())
		go s.walk()
	})
}

// Queue is the consumer side. It is closed on Stop.
func (s *Spool) Queue() <-chan dao.Job {
	return s.queue
}

// Enqueue persists the job as pending and wakes the walker. It never waits
// on transport or on a consumer.
func (s *Spool) Enqueue(job *dao.Job) error {
	err := s.store.AddJob(job)
	if err != nil {
		return fmt.Errorf("could not add job to spool: %w", err)
	}
	s.log.WithFields(logrus.Fields{"job": job.ID, "app": job.App}).Debug("enqueued job")
	s.wake()
	return nil
}

func (s *Spool) wake() {
	select {
	case s.sig <- struct{}{}:
	default:
	}
}

func (s *Spool) walk() {
	s.log.Info("walker; starting")
	defer close(s.walked)
	defer close(s.queue)

	enqueued, cancelListen := signals.Listen(signals.JobEnqueued)
	defer cancelListen()

	for {
		select {
		case <-s.ctx.Done():
			s.log.Info("walker; stopping")
			return
		case <-s.sig:
		case <-enqueued:
		case <-time.After(s.cfg.WalkInterval):
		}

		for {
			jobs, err := s.store.NextPending(s.cfg.Batch)
			if err != nil {
				s.log.WithError(err).Error("walker; could not list pending jobs")
				break
			}
			if len(jobs) == 0 {
				break
			}

			for _, job := range jobs {
				if s.ctx.Err() != nil {
					return
				}
				// the claim is the exactly-once gate, a job lost to a
				// concurrent claimer is simply skipped
				err = s.store.ClaimJob(job.ID)
				if err != nil {
					s.log.WithField("job", job.ID).Debug("walker; job claimed elsewhere, skipping")
					continue
				}
				job.Status = dao.StatusProcessing

				select {
				case s.queue <- job: // blocks until a worker takes it
				case <-s.ctx.Done():
					// hand the claim back, the restart recovery would get
					// it anyway but this keeps the queue clean
					_ = s.store.RequeueJob(job.ID)
					return
				}
			}
		}
	}
}

// Requeue returns a claimed job to the back of the queue, counting the
// attempt. Used when quota is exhausted, the job should run again later.
func (s *Spool) Requeue(id string) error {
	err := s.store.RequeueJob(id)
	if err != nil {
		return err
	}
	s.log.WithField("job", id).Debug("requeued job")
	s.wake()
	return nil
}

// Succeed marks a claimed job sent and records the credential that carried it.
func (s *Spool) Succeed(id string, keyID int64) error {
	err := s.store.MarkJobSent(id, keyID)
	if err != nil {
		return err
	}
	s.log.WithField("job", id).Debug("job sent")
	return nil
}

// Fail marks a claimed job failed with a terminal reason.
func (s *Spool) Fail(id, reason string) error {
	err := s.store.MarkJobFailed(id, reason)
	if err != nil {
		return err
	}
	s.log.WithFields(logrus.Fields{"job": id, "reason": reason}).Debug("job failed")
	return nil
}

// Stats is a point-in-time snapshot over retained jobs.
func (s *Spool) Stats() (courier.QueueStats, error) {
	return s.store.SpoolCounts()
}

func (s *Spool) Stop(ctx context.Context) error {
	var err error
	s.ostop.Do(func() {
		s.cancel()
		select {
		case <-s.walked:
		case <-ctx.Done():
			err = ctx.Err()
		}
	})
	return err
}
