package router

import (
	"strings"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
)

// RegisterStatic serves uploaded images under /uploads and, when clientDir
// is set, the single-page client with index.html as the fallback for
// client-side routes.
func RegisterStatic(e *echo.Echo, uploadDir, clientDir string) {
	if uploadDir != "" {
		e.Static("/uploads", uploadDir)
	}
	if clientDir == "" {
		return
	}
	e.Use(echomw.StaticWithConfig(echomw.StaticConfig{
		Root:  clientDir,
		HTML5: true,
		Skipper: func(c echo.Context) bool {
			p := c.Request().URL.Path
			return p == "/api" || p == "/healthz" ||
				strings.HasPrefix(p, "/api/") || strings.HasPrefix(p, "/uploads/")
		},
	}))
}
