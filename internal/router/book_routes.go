package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/book-exchange/internal/handler"
	"github.com/iliyamo/book-exchange/internal/middleware"
)

// RegisterBooks registers /api/books.  The listing is public but
// identifies the caller when a token is sent, for the recommended sort and
// the per-user response cache.
func RegisterBooks(api *echo.Group, h *handler.BookHandler, jwtSecret string, cache echo.MiddlewareFunc) {
	auth := middleware.JWTAuth(jwtSecret)
	g := api.Group("/books")

	list := []echo.MiddlewareFunc{middleware.OptionalJWT(jwtSecret)}
	if cache != nil {
		list = append(list, cache)
	}
	g.GET("", h.List, list...)
	g.GET("/user", h.ListOwn, auth)
	g.GET("/:id", h.Get)
	g.POST("", h.Create, auth)
	g.PATCH("/:id", h.Update, auth)
	g.DELETE("/:id", h.Delete, auth)
}
