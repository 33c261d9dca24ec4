package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"indevolt-ems/internal/ems"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server exposes the latest cycle state over a read-only HTTP API. It never
// talks to the devices itself.
type Server struct {
	router *gin.Engine
	server *http.Server
	loop   *ems.Loop
	port   int
}

type ServerConfig struct {
	Port int
	Loop *ems.Loop
}

func NewServer(cfg ServerConfig) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{
		router: router,
		loop:   cfg.Loop,
		port:   cfg.Port,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.healthHandler)
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := s.router.Group("/api/v1")
	{
		api.GET("/state", s.stateHandler)
		api.GET("/snapshot", s.snapshotHandler)
		api.GET("/meter", s.meterHandler)
		api.GET("/reconciliation", s.reconciliationHandler)
	}
}

func (s *Server) healthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":       "ok",
		"loop_running": s.loop.Running(),
	})
}

func (s *Server) stateHandler(c *gin.Context) {
	state := s.loop.State()
	if state.CycleStart.IsZero() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no cycle completed yet"})
		return
	}
	c.JSON(http.StatusOK, state)
}

func (s *Server) snapshotHandler(c *gin.Context) {
	state := s.loop.State()
	if state.Battery == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no snapshot available yet"})
		return
	}
	c.JSON(http.StatusOK, state.Battery)
}

func (s *Server) meterHandler(c *gin.Context) {
	state := s.loop.State()
	if state.Meter == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no meter reading in the last cycle"})
		return
	}
	c.JSON(http.StatusOK, state.Meter)
}

func (s *Server) reconciliationHandler(c *gin.Context) {
	state := s.loop.State()
	if state.Reconciliation == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no reconciliation in the last cycle"})
		return
	}
	c.JSON(http.StatusOK, state.Reconciliation)
}

func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", s.port),
		Handler: s.router,
	}
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown() error {
	if s.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

// Router exposes the handler tree for tests.
func (s *Server) Router() http.Handler {
	return s.router
}
