package web

import (
	"crypto/subtle"
	"net/http"

	"github.com/courierd/courier/internal/signals"
	"github.com/labstack/echo/v4"
)

func (s *Server) systemStatistics(c echo.Context) error {
	out, err := s.stats.System()
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) appStatistics(c echo.Context) error {
	app, start, end, err := statsParams(c)
	if err != nil {
		return err
	}
	out, err := s.stats.AppStatistics(app, start, end)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, out)
}

type restartRequest struct {
	Password string `json:"password" validate:"required"`
}

// restart asks the daemon for a graceful restart. The process exits cleanly
// once in-flight sends are done, bringing it back up is the supervisor's job.
func (s *Server) restart(c echo.Context) error {
	if s.cfg.AdminPassword == "" {
		return echo.NewHTTPError(http.StatusForbidden, "restart is not enabled")
	}

	var req restartRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "could not parse body")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	if subtle.ConstantTimeCompare([]byte(req.Password), []byte(s.cfg.AdminPassword)) != 1 {
		return echo.NewHTTPError(http.StatusUnauthorized, "wrong password")
	}

	s.log.Warn("restart requested through api")
	signals.Broadcast(signals.RestartRequested)
	return c.JSON(http.StatusOK, map[string]string{"message": "restarting"})
}
