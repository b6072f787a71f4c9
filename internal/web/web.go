// Package web exposes the REST surface of the engine: the send intake, the
// credential and template administration and the reporting endpoints.
package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/courierd/courier"
	"github.com/courierd/courier/internal/dao"
	"github.com/courierd/courier/internal/stats"
	"github.com/courierd/courier/internal/tmpl"
	"github.com/courierd/courier/tools"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/acme/autocert"
)

type Config struct {
	Interface string `cli:"http-interface"`
	Port      int    `cli:"http-port"`

	AdminPassword string `cli:"admin-password"`

	AutoTLS      bool   `cli:"auto-tls"`
	AutoTLSHost  string `cli:"auto-tls-host"`
	AutoTLSCache string `cli:"auto-tls-cache"`
}

// Enqueuer is the spool surface the web layer needs.
type Enqueuer interface {
	Enqueue(job *dao.Job) error
	Stats() (courier.QueueStats, error)
}

type Server struct {
	cfg Config
	log *logrus.Logger

	db        dao.DAO
	spool     Enqueuer
	templates *tmpl.Templates
	stats     *stats.Aggregator

	e *echo.Echo
}

func New(cfg Config, lc *tools.Logger, db dao.DAO, spool Enqueuer, templates *tmpl.Templates, aggregator *stats.Aggregator) *Server {
	if cfg.Port == 0 {
		cfg.Port = 5777
	}
	return &Server{
		cfg:       cfg,
		log:       lc.New("web"),
		db:        db,
		spool:     spool,
		templates: templates,
		stats:     aggregator,
	}
}

type bodyValidator struct {
	v *validator.Validate
}

func (b *bodyValidator) Validate(i any) error {
	err := b.v.Struct(i)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return nil
}

func (s *Server) Start() {
	e := s.build()

	// attached here rather than in build so handler tests do not register
	// collectors on the global registry
	e.Use(echoprometheus.NewMiddleware("courier"))
	e.GET("/metrics", echoprometheus.NewHandler())

	go func() {
		var err error
		if s.cfg.AutoTLS {
			e.AutoTLSManager.HostPolicy = autocert.HostWhitelist(s.cfg.AutoTLSHost)
			e.AutoTLSManager.Cache = autocert.DirCache(s.cfg.AutoTLSCache)
			e.AutoTLSManager.Prompt = autocert.AcceptTOS
			s.log.Infof("starting web server with auto tls for %s", s.cfg.AutoTLSHost)
			err = e.StartAutoTLS(fmt.Sprintf("%s:%d", s.cfg.Interface, s.cfg.Port))
		} else {
			s.log.Infof("starting web server on %s:%d", s.cfg.Interface, s.cfg.Port)
			err = e.Start(fmt.Sprintf("%s:%d", s.cfg.Interface, s.cfg.Port))
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.WithError(err).Error("web server terminated")
		}
	}()
}

func (s *Server) build() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Validator = &bodyValidator{v: validator.New()}

	e.Use(middleware.Recover())
	e.Use(middleware.Logger())

	e.GET("/ping", func(c echo.Context) error {
		return c.String(http.StatusOK, "pong")
	})

	api := e.Group("/api")

	api.POST("/email/send", s.sendEmail)
	api.GET("/email/stats", s.queueStats)
	api.GET("/email/app-stats", s.appStats)

	api.GET("/email-keys", s.listKeys)
	api.POST("/email-keys", s.createKey)
	api.GET("/email-keys/app/:app", s.listKeysByApp)
	api.GET("/email-keys/:id", s.getKey)
	api.PATCH("/email-keys/:id", s.updateKey)
	api.DELETE("/email-keys/:id", s.deleteKey)

	api.GET("/email-templates", s.listTemplates)
	api.POST("/email-templates", s.createTemplate)
	api.GET("/email-templates/:id", s.getTemplate)
	api.PATCH("/email-templates/:id", s.updateTemplate)
	api.DELETE("/email-templates/:id", s.deleteTemplate)

	api.GET("/statistics", s.systemStatistics)
	api.GET("/statistics/app", s.appStatistics)

	api.POST("/system/restart-p", s.restart)

	s.e = e
	return e
}

func (s *Server) Stop(ctx context.Context) error {
	if s.e == nil {
		return nil
	}
	return s.e.Shutdown(ctx)
}
