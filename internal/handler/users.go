package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/book-exchange/internal/service"
)

// UserHandler serves /api/users, the signed-in user's own account.
type UserHandler struct {
	Profile *service.ProfileService
	Auth    *service.AuthService
	Log     *zap.Logger
}

func NewUserHandler(profile *service.ProfileService, auth *service.AuthService, log *zap.Logger) *UserHandler {
	return &UserHandler{Profile: profile, Auth: auth, Log: log}
}

type preferencesReq struct {
	Genres []string `json:"genres"`
}

type passwordReq struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

type deleteAccountReq struct {
	Password string `json:"password"`
}

// Stats returns the dashboard counters.
func (h *UserHandler) Stats(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	st, err := h.Profile.Stats(ctx, uid)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, st)
}

// UpdateProfile changes name, bio or location.
func (h *UserHandler) UpdateProfile(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	var req service.ProfileInput
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	u, err := h.Profile.UpdateProfile(ctx, uid, req)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, toPublicUser(u))
}

// UploadImage stores the multipart "image" field as the profile picture.
func (h *UserHandler) UploadImage(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	fh, err := c.FormFile("image")
	if err != nil {
		return badRequest(c, "image file is required")
	}
	f, err := fh.Open()
	if err != nil {
		return badRequest(c, "could not read image")
	}
	defer f.Close()

	ctx, cancel := requestContext(c)
	defer cancel()
	u, err := h.Profile.UploadImage(ctx, uid, f)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, toPublicUser(u))
}

// UpdatePreferences replaces the preferred genres.
func (h *UserHandler) UpdatePreferences(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	var req preferencesReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	u, err := h.Profile.UpdatePreferences(ctx, uid, req.Genres)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, toPublicUser(u))
}

// UpdatePassword changes the password after checking the current one.
func (h *UserHandler) UpdatePassword(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	var req passwordReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	if err := h.Auth.UpdatePassword(ctx, uid, req.CurrentPassword, req.NewPassword); err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "password updated"})
}

// DeleteAccount removes the caller's account after checking the password.
func (h *UserHandler) DeleteAccount(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	var req deleteAccountReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	if err := h.Profile.DeleteAccount(ctx, uid, req.Password); err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "account deleted"})
}
