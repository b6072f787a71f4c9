package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/courierd/courier/internal/clix"
	"github.com/courierd/courier/internal/dao"
	"github.com/courierd/courier/internal/dispatch"
	"github.com/courierd/courier/internal/keypool"
	"github.com/courierd/courier/internal/metrics"
	"github.com/courierd/courier/internal/signals"
	"github.com/courierd/courier/internal/smtpx"
	"github.com/courierd/courier/internal/spool"
	"github.com/courierd/courier/internal/stats"
	"github.com/courierd/courier/internal/tmpl"
	"github.com/courierd/courier/internal/web"
	"github.com/courierd/courier/tools"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "courierd",
		Usage: "a multi tenant engine for dispatching templated emails",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "db",
				EnvVars: []string{"COURIER_DB"},
				Value:   "./courier.sqlite",
				Usage:   "path of the sqlite database holding keys, templates, spool and statistics",
			},
			&cli.StringFlag{
				Name:    "http-interface",
				EnvVars: []string{"COURIER_HTTP_INTERFACE"},
				Value:   "",
			},
			&cli.IntFlag{
				Name:    "http-port",
				EnvVars: []string{"COURIER_HTTP_PORT"},
				Value:   5777,
			},
			&cli.StringFlag{
				Name:    "admin-password",
				EnvVars: []string{"COURIER_ADMIN_PASSWORD"},
				Usage:   "password for /api/system/restart-p, empty disables the endpoint",
			},
			&cli.BoolFlag{
				Name:    "auto-tls",
				EnvVars: []string{"COURIER_AUTO_TLS"},
			},
			&cli.StringFlag{
				Name:    "auto-tls-host",
				EnvVars: []string{"COURIER_AUTO_TLS_HOST"},
			},
			&cli.StringFlag{
				Name:    "auto-tls-cache",
				EnvVars: []string{"COURIER_AUTO_TLS_CACHE"},
				Value:   ".autocert",
			},
			&cli.IntFlag{
				Name:    "workers",
				EnvVars: []string{"COURIER_WORKERS"},
				Value:   20,
				Usage:   "max number of concurrent dispatch workers",
			},
			&cli.IntFlag{
				Name:    "max-quota-retries",
				EnvVars: []string{"COURIER_MAX_QUOTA_RETRIES"},
				Value:   5,
				Usage:   "times a job is requeued on quota exhaustion before failing",
			},
			&cli.DurationFlag{
				Name:    "send-timeout",
				EnvVars: []string{"COURIER_SEND_TIMEOUT"},
				Value:   30 * time.Second,
			},
			&cli.DurationFlag{
				Name:    "quota-reset-interval",
				EnvVars: []string{"COURIER_QUOTA_RESET_INTERVAL"},
				Value:   time.Minute,
			},
			&cli.DurationFlag{
				Name:    "spool-walk-interval",
				EnvVars: []string{"COURIER_SPOOL_WALK_INTERVAL"},
				Value:   15 * time.Second,
			},
			&cli.IntFlag{
				Name:    "spool-batch",
				EnvVars: []string{"COURIER_SPOOL_BATCH"},
				Value:   100,
			},
			&cli.StringFlag{
				Name:    "log-level",
				EnvVars: []string{"COURIER_LOG_LEVEL"},
				Value:   "info",
			},
		},
		Action: serve,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

type Stoppable interface {
	Stop(ctx context.Context) error
}

func serve(c *cli.Context) error {
	base := log.New()
	level, err := log.ParseLevel(c.String("log-level"))
	if err != nil {
		return err
	}
	base.SetLevel(level)
	lc := tools.NewLogger(base)
	l := lc.New("courierd")

	l.Info("starting courierd")

	db, err := dao.NewSQLite(c.String("db"))
	if err != nil {
		return err
	}
	defer db.Close()

	spooler, err := spool.New(clix.Parse[spool.Config](c), lc, db)
	if err != nil {
		return err
	}

	templates := tmpl.New(db)
	pool := keypool.New(lc, db)
	aggregator := stats.New(lc, db)

	resetter := keypool.NewResetter(clix.Parse[keypool.ResetterConfig](c), lc, db)
	resetter.Start()

	m := metrics.New(func() float64 {
		snapshot, serr := spooler.Stats()
		if serr != nil {
			return 0
		}
		return float64(snapshot.Pending)
	})

	dispatcher := dispatch.New(
		clix.Parse[dispatch.Config](c),
		lc, spooler, pool, templates, aggregator,
		smtpx.NewGomailSender(), m,
	)
	dispatcher.Start()

	server := web.New(clix.Parse[web.Config](c), lc, db, spooler, templates, aggregator)
	server.Start()

	// spool first so the walker stops feeding before the dispatcher drains
	services := []Stoppable{spooler, dispatcher, resetter, server}

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc,
		syscall.SIGHUP,
		syscall.SIGINT,
		syscall.SIGTERM,
		syscall.SIGQUIT)

	restart, cancelRestart := signals.Listen(signals.RestartRequested)
	defer cancelRestart()

	select {
	case sig := <-sigc:
		l.Infof("got signal %s, shutting down", sig)
	case <-restart:
		l.Info("got restart request, shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	wg := &sync.WaitGroup{}
	for _, service := range services {
		wg.Add(1)
		go func(service Stoppable) {
			defer wg.Done()
			if err := service.Stop(shutdownCtx); err != nil {
				l.WithError(err).Error("failed to stop service")
			}
		}(service)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		l.Info("shutdown complete")
	case <-shutdownCtx.Done():
		l.Warn("shutdown was forced, terminating now")
	}
	return nil
}
