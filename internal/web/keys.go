package web

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/courierd/courier"
	"github.com/courierd/courier/internal/dao"
	"github.com/labstack/echo/v4"
)

func idParam(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("id %q is not a positive integer", c.Param("id")))
	}
	return id, nil
}

func notFound(err error) error {
	if errors.Is(err, dao.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	return err
}

func (s *Server) listKeys(c echo.Context) error {
	keys, err := s.db.ListKeys()
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, keys)
}

func (s *Server) listKeysByApp(c echo.Context) error {
	keys, err := s.db.ListKeysByApp(c.Param("app"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, keys)
}

func (s *Server) getKey(c echo.Context) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}
	key, err := s.db.GetKey(id)
	if err != nil {
		return notFound(err)
	}
	return c.JSON(http.StatusOK, key)
}

func (s *Server) createKey(c echo.Context) error {
	var key courier.Credential
	if err := c.Bind(&key); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "could not parse body")
	}
	if err := c.Validate(&key); err != nil {
		return err
	}
	if !key.Company.Valid() {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("emailCompany %q is not a known provider", key.Company))
	}

	// usage bookkeeping always starts clean, whatever the client sent
	key.ID = 0
	key.SentCount = 0
	key.LastResetDate = courier.Today()

	if err := s.db.AddKey(&key); err != nil {
		return err
	}
	s.log.WithField("key", key.ID).WithField("app", key.App).Info("created email key")
	return c.JSON(http.StatusCreated, key)
}

func (s *Server) updateKey(c echo.Context) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}
	var patch courier.CredentialPatch
	if err := c.Bind(&patch); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "could not parse body")
	}
	if err := c.Validate(&patch); err != nil {
		return err
	}
	if patch.Company != nil && !patch.Company.Valid() {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("emailCompany %q is not a known provider", *patch.Company))
	}

	key, err := s.db.UpdateKey(id, patch)
	if err != nil {
		return notFound(err)
	}
	return c.JSON(http.StatusOK, key)
}

func (s *Server) deleteKey(c echo.Context) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}
	if err := s.db.DeleteKey(id); err != nil {
		return notFound(err)
	}
	s.log.WithField("key", id).Info("deleted email key")
	return c.NoContent(http.StatusNoContent)
}
