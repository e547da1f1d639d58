package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/book-exchange/internal/handler"
	"github.com/iliyamo/book-exchange/internal/middleware"
)

// RegisterExchanges registers /api/transactions.  Static segments are
// matched before /:id by Echo, so /sent and friends never reach Get.
func RegisterExchanges(api *echo.Group, h *handler.ExchangeHandler, jwtSecret string) {
	g := api.Group("/transactions", middleware.JWTAuth(jwtSecret))
	g.POST("/request", h.CreateRequest)
	g.GET("/sent", h.ListSent)
	g.GET("/received", h.ListReceived)
	g.GET("/user", h.ListByUser)
	g.GET("/notifications/unread", h.Unread)
	g.GET("/:id", h.Get)
	g.PATCH("/:id/status", h.UpdateStatus)
	g.POST("/:id/messages", h.AddMessage)
}
