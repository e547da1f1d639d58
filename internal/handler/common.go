// Package handler holds the HTTP handlers.  Handlers bind and check the
// request shape, call a service with a bounded context and translate
// service errors into flat {"error": "..."} responses.
package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/book-exchange/internal/middleware"
	"github.com/iliyamo/book-exchange/internal/model"
	"github.com/iliyamo/book-exchange/internal/service"
)

const requestTimeout = 5 * time.Second

func requestContext(c echo.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request().Context(), requestTimeout)
}

var errNoUser = errors.New("no authenticated user in context")

// getUserID returns the id the JWT middleware stored for this request.
func getUserID(c echo.Context) (uint64, error) {
	id, ok := middleware.UserID(c)
	if !ok {
		return 0, errNoUser
	}
	return id, nil
}

func parseID(c echo.Context, name string) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	return id, err == nil && id != 0
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, echo.Map{"error": msg})
}

func unauthorized(c echo.Context) error {
	return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
}

// statusOf maps a service error class to its HTTP status.
func statusOf(err error) int {
	switch {
	case service.ErrValidation.Has(err):
		return http.StatusBadRequest
	case service.ErrUnauthorized.Has(err):
		return http.StatusUnauthorized
	case service.ErrForbidden.Has(err):
		return http.StatusForbidden
	case service.ErrNotFound.Has(err):
		return http.StatusNotFound
	case service.ErrMailDelivery.Has(err):
		return http.StatusInternalServerError
	}
	return 0
}

// writeError answers with the status of err's class.  Unclassified errors
// are logged and reported as a generic 500.
func writeError(c echo.Context, log *zap.Logger, err error) error {
	if status := statusOf(err); status != 0 {
		if status >= http.StatusInternalServerError {
			log.Error("request failed", zap.String("path", c.Path()), zap.Error(err))
		}
		return c.JSON(status, echo.Map{"error": service.Message(err)})
	}
	if errors.Is(err, context.DeadlineExceeded) {
		log.Warn("request timed out", zap.String("path", c.Path()), zap.Error(err))
	} else {
		log.Error("unexpected error", zap.String("path", c.Path()), zap.Error(err))
	}
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal server error"})
}

// publicUser is the only shape a user is ever written in.  It leaves out
// the password hash, the security answers and the reset code.
type publicUser struct {
	ID               uint64    `json:"id"`
	Email            string    `json:"email"`
	Name             string    `json:"name"`
	Bio              string    `json:"bio"`
	Location         string    `json:"location"`
	ProfileImage     string    `json:"profileImage"`
	GenrePreferences []string  `json:"genrePreferences"`
	Reputation       int       `json:"reputation"`
	CreatedAt        time.Time `json:"createdAt"`
}

func toPublicUser(u model.User) publicUser {
	prefs := u.GenrePreferences
	if prefs == nil {
		prefs = []string{}
	}
	return publicUser{
		ID:               u.ID,
		Email:            u.Email,
		Name:             u.Name,
		Bio:              u.Bio,
		Location:         u.Location,
		ProfileImage:     u.ProfileImage,
		GenrePreferences: prefs,
		Reputation:       u.Reputation,
		CreatedAt:        u.CreatedAt,
	}
}
