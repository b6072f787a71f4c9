package web

import (
	"errors"
	"net/http"

	"github.com/courierd/courier"
	"github.com/courierd/courier/internal/tmpl"
	"github.com/labstack/echo/v4"
)

func templateNotFound(err error) error {
	if errors.Is(err, tmpl.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	return err
}

func (s *Server) listTemplates(c echo.Context) error {
	templates, err := s.templates.List()
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, templates)
}

func (s *Server) getTemplate(c echo.Context) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}
	template, err := s.templates.Get(id)
	if err != nil {
		return templateNotFound(err)
	}
	return c.JSON(http.StatusOK, template)
}

func (s *Server) createTemplate(c echo.Context) error {
	var template courier.Template
	if err := c.Bind(&template); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "could not parse body")
	}
	if err := c.Validate(&template); err != nil {
		return err
	}

	template.ID = 0
	if err := s.templates.Add(&template); err != nil {
		return err
	}
	s.log.WithField("template", template.ID).Info("created email template")
	return c.JSON(http.StatusCreated, template)
}

func (s *Server) updateTemplate(c echo.Context) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}
	var patch courier.TemplatePatch
	if err := c.Bind(&patch); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "could not parse body")
	}
	if err := c.Validate(&patch); err != nil {
		return err
	}

	template, err := s.templates.Update(id, patch)
	if err != nil {
		return templateNotFound(err)
	}
	return c.JSON(http.StatusOK, template)
}

func (s *Server) deleteTemplate(c echo.Context) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}
	if err := s.templates.Delete(id); err != nil {
		return templateNotFound(err)
	}
	s.log.WithField("template", id).Info("deleted email template")
	return c.NoContent(http.StatusNoContent)
}
