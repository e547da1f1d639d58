package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/book-exchange/internal/handler"
	"github.com/iliyamo/book-exchange/internal/middleware"
)

// RegisterUsers registers /api/users.  All routes act on the caller's own
// account and require a token.
func RegisterUsers(api *echo.Group, h *handler.UserHandler, jwtSecret string) {
	g := api.Group("/users", middleware.JWTAuth(jwtSecret))
	g.GET("/stats", h.Stats)
	g.PATCH("/profile", h.UpdateProfile)
	g.POST("/profile/image", h.UploadImage)
	g.PATCH("/profile/password", h.UpdatePassword)
	g.PATCH("/preferences", h.UpdatePreferences)
	g.DELETE("/account", h.DeleteAccount)
}
