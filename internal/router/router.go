// Package router wires handlers and middleware into the Echo route table.
package router

import (
	"net/http"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/iliyamo/book-exchange/internal/handler"
	"github.com/iliyamo/book-exchange/internal/middleware"
)

// Handlers are the API's handler groups.
type Handlers struct {
	Auth      *handler.AuthHandler
	Books     *handler.BookHandler
	Users     *handler.UserHandler
	Exchanges *handler.ExchangeHandler
}

// Options configures the middleware stack.  RateLimit and BookCache may be
// nil.
type Options struct {
	JWTSecret  string
	CORSOrigin string
	BodyLimit  string // e.g. "6M"; the image upload is the largest body
	UploadDir  string
	ClientDir  string
	RateLimit  echo.MiddlewareFunc
	BookCache  echo.MiddlewareFunc
	Log        *zap.Logger
}

// New builds the Echo instance with every route registered.
func New(h Handlers, opt Options) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(echomw.RequestID())
	e.Use(middleware.RequestLogger(opt.Log))
	e.Use(echomw.Recover())
	if opt.CORSOrigin != "" {
		e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
			AllowOrigins: []string{opt.CORSOrigin},
			AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
			AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAuthorization},
		}))
	}
	if opt.BodyLimit != "" {
		e.Use(echomw.BodyLimit(opt.BodyLimit))
	}

	RegisterRoutes(e)

	// Identify the caller before rate limiting so per-user keys work.
	// Routes that need a user still enforce it with JWTAuth.
	api := e.Group("/api", middleware.OptionalJWT(opt.JWTSecret))
	if opt.RateLimit != nil {
		api.Use(opt.RateLimit)
	}
	RegisterAuth(api, h.Auth, opt.JWTSecret)
	RegisterBooks(api, h.Books, opt.JWTSecret, opt.BookCache)
	RegisterUsers(api, h.Users, opt.JWTSecret)
	RegisterExchanges(api, h.Exchanges, opt.JWTSecret)

	RegisterStatic(e, opt.UploadDir, opt.ClientDir)
	return e
}

// RegisterRoutes registers the unauthenticated operational routes.
func RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", handler.Health)
}

// RegisterAuth registers /api/auth.  Everything but /me is public.
func RegisterAuth(api *echo.Group, a *handler.AuthHandler, jwtSecret string) {
	g := api.Group("/auth")
	g.POST("/register", a.Register)
	g.POST("/login", a.Login)
	g.POST("/forgot-password", a.ForgotPassword)
	g.POST("/reset-password", a.ResetPassword)
	g.POST("/verify-security-answers", a.VerifySecurityAnswers)
	g.POST("/reset-password-security", a.ResetPasswordSecurity)
	g.GET("/me", a.Me, middleware.JWTAuth(jwtSecret))
}
