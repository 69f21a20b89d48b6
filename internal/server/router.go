package server

import (
	"github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"
)

// Register wires HTTP routes to the server's handlers.
func (s *Server) Register(e *echo.Echo) {
	e.GET("/healthz", s.handleHealth)
	e.POST("/containers", s.handleUpload)
	e.GET("/containers", s.handleList)
	e.GET("/containers/:id", s.handleGet)
	e.GET("/containers/:id/layout", s.handleLayout)
	e.GET("/containers/:id/fields/:field", s.handleField)
	e.GET("/containers/:id/elements/:kind", s.handleElements)
	e.GET("/containers/:id/elements/:kind/:index", s.handleElement)
	e.POST("/containers/:id/splice/:kind", s.handleSplice)
	e.GET("/containers/:id/report.pdf", s.handleReport)
}

// NewRouter returns an echo instance with logging and recovery middleware
// and every route registered.
func NewRouter(s *Server) *echo.Echo {
	e := echo.New()
	e.Use(middleware.RequestLogger())
	e.Use(middleware.Recover())
	s.Register(e)
	return e
}
