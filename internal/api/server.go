package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"gouncertain/app"
	"gouncertain/internal/config"
)

// Server exposes estimation and strategy comparison over HTTP
type Server struct {
	router   *gin.Engine
	service  *app.EstimationService
	defaults config.EstimationConfig
}

// NewServer wires routes around the estimation service. defaults fill any knob
// a request leaves out.
func NewServer(service *app.EstimationService, defaults config.EstimationConfig) *Server {
	s := &Server{
		router:   gin.New(),
		service:  service,
		defaults: defaults,
	}
	s.router.Use(gin.Logger(), gin.Recovery())
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/healthz", s.handleHealth)

	v1 := s.router.Group("/v1")
	v1.GET("/strategies", s.handleStrategies)
	v1.POST("/estimate", s.handleEstimate)
	v1.POST("/compare", s.handleCompare)
	v1.GET("/runs", s.handleListRuns)
	v1.GET("/runs/:runId", s.handleGetRun)
}

// Handler returns the underlying http.Handler
func (s *Server) Handler() http.Handler {
	return s.router
}
