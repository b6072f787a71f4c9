package web

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/courierd/courier"
	"github.com/courierd/courier/internal/dao"
	"github.com/courierd/courier/internal/signals"
	"github.com/courierd/courier/internal/tmpl"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/xid"
)

// sendEmail accepts a dispatch request, enqueues it and returns. The 202
// means "queued", delivery is observable through the stats endpoints only.
func (s *Server) sendEmail(c echo.Context) error {
	var req courier.SendRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "could not parse body")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	// an unknown template is a synchronous NotFound, the job is never created
	_, err := s.templates.Get(req.TemplateID)
	if errors.Is(err, tmpl.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, fmt.Sprintf("template %d does not exist", req.TemplateID))
	}
	if err != nil {
		return err
	}

	job := &dao.Job{
		ID:            xid.New().String(),
		MessageID:     uuid.New().String(),
		App:           req.App,
		TemplateID:    req.TemplateID,
		TemplateData:  req.TemplateData,
		Recipient:     req.Recipient,
		RecipientName: req.RecipientName,
		CC:            req.CC,
		BCC:           req.BCC,
	}

	if err := s.spool.Enqueue(job); err != nil {
		s.log.WithError(err).Error("could not enqueue job")
		return echo.NewHTTPError(http.StatusInternalServerError, "could not enqueue email")
	}

	signals.Broadcast(signals.JobEnqueued)

	return c.JSON(http.StatusAccepted, courier.Receipt{MessageID: job.MessageID})
}

func (s *Server) queueStats(c echo.Context) error {
	snapshot, err := s.spool.Stats()
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, snapshot)
}

func (s *Server) appStats(c echo.Context) error {
	app, start, end, err := statsParams(c)
	if err != nil {
		return err
	}
	out, err := s.stats.Range(app, start, end)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, out)
}

func statsParams(c echo.Context) (app, start, end string, err error) {
	app = c.QueryParam("app")
	start = c.QueryParam("startDate")
	end = c.QueryParam("endDate")
	if app == "" {
		return "", "", "", echo.NewHTTPError(http.StatusBadRequest, "an app must be provided")
	}
	for _, date := range []string{start, end} {
		if _, perr := time.Parse(courier.DateFormat, date); perr != nil {
			return "", "", "", echo.NewHTTPError(http.StatusBadRequest,
				fmt.Sprintf("date %q is not on the form %s", date, courier.DateFormat))
		}
	}
	return app, start, end, nil
}
