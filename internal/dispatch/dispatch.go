// Package dispatch drains the spool with a pool of workers: resolve the
// template, claim a credential, render, submit over transport and record
// the outcome.
package dispatch

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"time"

	"github.com/alitto/pond"
	"github.com/courierd/courier"
	"github.com/courierd/courier/internal/dao"
	"github.com/courierd/courier/internal/keypool"
	"github.com/courierd/courier/internal/metrics"
	"github.com/courierd/courier/internal/smtpx"
	"github.com/courierd/courier/internal/tmpl"
	"github.com/courierd/courier/tools"
	"github.com/sirupsen/logrus"
)

type Config struct {
	Workers     int           `cli:"workers"`
	MaxRetries  int           `cli:"max-quota-retries"`
	SendTimeout time.Duration `cli:"send-timeout"`
}

// Queue is the spool surface the dispatcher consumes.
type Queue interface {
	Queue() <-chan dao.Job
	Requeue(id string) error
	Succeed(id string, keyID int64) error
	Fail(id, reason string) error
}

// Keys yields sending credentials with quota reserved.
type Keys interface {
	Claim(app string) (*courier.Credential, error)
	Release(keyID int64)
}

// Templates resolves message content.
type Templates interface {
	Get(id int64) (*courier.Template, error)
}

// Recorder takes the per-app outcome counts.
type Recorder interface {
	Sent(app string)
	Failed(app string)
}

type Dispatcher struct {
	cfg Config
	log *logrus.Logger

	queue     Queue
	keys      Keys
	templates Templates
	recorder  Recorder
	sender    smtpx.Sender
	metrics   *metrics.Metrics

	ostart sync.Once
	ostop  sync.Once
	pool   *pond.WorkerPool
	done   chan struct{}
}

func New(cfg Config, lc *tools.Logger, queue Queue, keys Keys, templates Templates, recorder Recorder, sender smtpx.Sender, m *metrics.Metrics) *Dispatcher {
	if cfg.Workers <= 0 {
		cfg.Workers = 20
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 5
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 30 * time.Second
	}
	return &Dispatcher{
		cfg:       cfg,
		log:       lc.New("dispatch"),
		queue:     queue,
		keys:      keys,
		templates: templates,
		recorder:  recorder,
		sender:    sender,
		metrics:   m,
		done:      make(chan struct{}),
	}
}

func (d *Dispatcher) Start() {
	d.ostart.Do(func() {
		go d.start()
	})
}

func (d *Dispatcher) start() {
	d.log.Infof("starting dispatcher, %d-%d workers", runtime.NumCPU(), d.cfg.Workers)
	d.pool = pond.New(d.cfg.Workers, 0, pond.MinWorkers(runtime.NumCPU()))
	defer close(d.done)

	for job := range d.queue.Queue() {
		job := job
		if d.pool.Stopped() {
			d.log.WithField("job", job.ID).Warn("pool stopped, leaving job claimed for restart recovery")
			continue
		}
		d.pool.Submit(func() { d.handle(job) })
	}
	d.pool.StopAndWait()
}

func (d *Dispatcher) handle(job dao.Job) {
	log := d.log.WithFields(logrus.Fields{"job": job.ID, "app": job.App})

	template, err := d.templates.Get(job.TemplateID)
	if errors.Is(err, tmpl.ErrNotFound) {
		log.WithField("template", job.TemplateID).Warn("template missing, failing job")
		d.fail(job, dao.ReasonTemplateMissing)
		return
	}
	if err != nil {
		log.WithError(err).Error("could not resolve template, requeueing")
		d.requeueOrFail(job, dao.ReasonInternalError)
		return
	}

	key, err := d.keys.Claim(job.App)
	if errors.Is(err, keypool.ErrQuotaExhausted) {
		log.Debug("quota exhausted")
		d.requeueOrFail(job, dao.ReasonQuotaUnavailable)
		return
	}
	if err != nil {
		log.WithError(err).Error("could not claim credential, requeueing")
		d.requeueOrFail(job, dao.ReasonInternalError)
		return
	}

	subject, content := tmpl.Render(template, job.TemplateData)
	msg := smtpx.Message{
		To:       job.Recipient,
		ToName:   job.RecipientName,
		CC:       job.CC,
		BCC:      job.BCC,
		Subject:  subject,
		Body:     content,
		BodyType: template.Type,
	}

	ctx, cancel := context.WithTimeout(context.Background(), d.cfg.SendTimeout)
	defer cancel()

	err = d.sender.Send(ctx, key, msg)
	if err != nil {
		// transport failures are terminal, retrying against a broken
		// credential only amplifies the outage
		log.WithError(err).WithField("key", key.ID).Warn("transport send failed")
		d.keys.Release(key.ID)
		d.fail(job, dao.ReasonTransportFailure)
		return
	}

	err = d.queue.Succeed(job.ID, key.ID)
	if err != nil {
		log.WithError(err).Error("could not mark job sent")
		return
	}
	d.recorder.Sent(job.App)
	d.metrics.Sent(job.App)
	log.WithField("key", key.ID).Info("email dispatched")
}

// requeueOrFail sends the job to the back of the queue until the retry
// bound, then fails it with the given reason so an exhausted application
// pool, or a store that keeps erroring, cannot cycle a job forever. The
// reason records what actually kept the job from dispatching.
func (d *Dispatcher) requeueOrFail(job dao.Job, reason string) {
	if job.Attempts >= d.cfg.MaxRetries {
		d.fail(job, reason)
		return
	}
	err := d.queue.Requeue(job.ID)
	if err != nil {
		d.log.WithError(err).WithField("job", job.ID).Error("could not requeue job")
		return
	}
	d.metrics.Requeued()
}

func (d *Dispatcher) fail(job dao.Job, reason string) {
	err := d.queue.Fail(job.ID, reason)
	if err != nil {
		d.log.WithError(err).WithField("job", job.ID).Error("could not mark job failed")
		return
	}
	d.recorder.Failed(job.App)
	d.metrics.Failed(job.App)
}

func (d *Dispatcher) Stop(ctx context.Context) error {
	var err error
	d.ostop.Do(func() {
		if d.pool == nil {
			return
		}
		select {
		case <-d.pool.Stop().Done():
			d.log.Info("dispatcher has been shut down")
		case <-ctx.Done():
			err = ctx.Err()
		}
	})
	return err
}
