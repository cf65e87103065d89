// Package server exposes the analysis pipeline over HTTP.
package server

import (
	"context"
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"coursebot/internal/logging"
	"coursebot/internal/nlu"
)

// Analyzer is the pipeline entry point the HTTP layer fronts.
type Analyzer interface {
	AnalyzeMessage(ctx context.Context, text, userID string) (*nlu.AnalysisResult, error)
}

// RuleReloader is the optional administrative hook for re-reading the rule
// file without a restart.
type RuleReloader interface {
	Reload() error
}

// Server wires the gin router.
type Server struct {
	analyzer Analyzer
	rules    RuleReloader
	logger   logging.Logger
	registry *prometheus.Registry
	engine   *gin.Engine
}

// Options configures a Server. Rules and Registry may be nil.
type Options struct {
	Analyzer Analyzer
	Rules    RuleReloader
	Logger   logging.Logger
	Registry *prometheus.Registry
}

// New builds the HTTP server.
func New(opts Options) *Server {
	s := &Server{
		analyzer: opts.Analyzer,
		rules:    opts.Rules,
		logger:   logging.OrNop(opts.Logger),
		registry: opts.Registry,
	}
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Logger(), gin.Recovery())
	engine.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Authorization"},
	}))

	engine.GET("/healthz", s.handleHealth)
	if s.registry != nil {
		engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})))
	}

	api := engine.Group("/api/v1")
	api.POST("/analyze", s.handleAnalyze)
	api.POST("/rules/reload", s.handleRulesReload)

	s.engine = engine
	return s
}

// Handler returns the router for http.Server or tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run blocks serving on addr.
func (s *Server) Run(addr string) error {
	s.logger.Info("http server listening on %s", addr)
	return s.engine.Run(addr)
}

type analyzeRequest struct {
	Message string `json:"message"`
	UserID  string `json:"user_id"`
}

func (s *Server) handleAnalyze(c *gin.Context) {
	var req analyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	result, err := s.analyzer.AnalyzeMessage(c.Request.Context(), req.Message, req.UserID)
	if err != nil {
		if nlu.IsValidationError(err) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		s.logger.Error("analyze failed user=%s: %v", req.UserID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "analysis failed"})
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) handleRulesReload(c *gin.Context) {
	if s.rules == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "rule reload not configured"})
		return
	}
	if err := s.rules.Reload(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "reloaded"})
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
