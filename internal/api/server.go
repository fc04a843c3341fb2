// Package api exposes the reconciliation service over HTTP using gin.
package api

import (
	"context"
	"net/http"
	"time"

	"recon-core/internal/recon"
	"recon-core/pkg/logger"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// Config holds the HTTP server settings
type Config struct {
	Addr         string   `json:"addr"`
	AllowOrigins []string `json:"allow_origins"`
}

// DefaultConfig returns the default server settings
func DefaultConfig() Config {
	return Config{
		Addr:         ":8080",
		AllowOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
	}
}

// Server wraps the gin engine around the reconciliation service
type Server struct {
	service *recon.Service
	config  Config
	log     logger.Logger
	engine  *gin.Engine
	http    *http.Server
}

// NewServer builds the server and registers all routes
func NewServer(service *recon.Service, config Config, log logger.Logger) *Server {
	if log == nil {
		log = logger.GetGlobalLogger()
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	engine.Use(cors.New(cors.Config{
		AllowOrigins:     config.AllowOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Idempotency-Key"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	s := &Server{
		service: service,
		config:  config,
		log:     log.WithComponent("api"),
		engine:  engine,
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.engine.GET("/health", s.health)

	api := s.engine.Group("/api")
	{
		api.GET("/transactions", s.listTransactions)
		api.GET("/transactions/:id/suggestions", s.suggestMatches)

		api.GET("/matches", s.listMatches)
		api.GET("/matches/:id", s.getMatch)
		api.POST("/matches", s.createManualMatch)
		api.POST("/matches/:id/review", s.sendToReview)
		api.POST("/matches/:id/approve", s.approveMatch)
		api.POST("/matches/:id/reject", s.rejectMatch)
		api.DELETE("/matches/:id", s.unmatch)

		api.POST("/nway/runs", s.runNWay)

		api.GET("/rules", s.listRules)
		api.GET("/rules/:id", s.getRule)
		api.GET("/rules/:id/approvals", s.listRuleApprovals)
		api.POST("/rules/:id/approvals", s.submitRuleForApproval)
		api.POST("/approvals/:id/decision", s.decideRuleApproval)

		api.GET("/stats", s.getStatistics)
	}
}

// Engine exposes the router, mainly for tests
func (s *Server) Engine() *gin.Engine { return s.engine }

// Run serves HTTP until the context is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	s.http = &http.Server{
		Addr:    s.config.Addr,
		Handler: s.engine,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.WithField("addr", s.config.Addr).Info("http server listening")
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.log.Info("shutting down http server")
		return s.http.Shutdown(shutdownCtx)
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}
