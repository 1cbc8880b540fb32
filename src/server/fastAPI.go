package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"commission-observer/src/interfaces"
	"commission-observer/src/logger"
	"commission-observer/src/models"

	"github.com/gin-gonic/gin"
)

// -----------------------------------------------------------------------------
// FastAPIServer
// -----------------------------------------------------------------------------

type FastAPIServer struct {
	Config   *models.MConfig
	Logger   *logger.Logger
	Provider interfaces.IReportProvider
	engine   *gin.Engine
	http     *http.Server

	// WebSocket clients
	clients    map[*Client]struct{}
	broadcast  chan *models.MLatestData // Strongly typed and Buffered Queue
	register   chan *Client
	unregister chan *Client
	subscribe  chan *Client
	done       chan struct{}
	stopOnce   sync.Once

	// Local cache
	latestState *models.MLatestData
	stateMutex  sync.RWMutex
}

// -----------------------------------------------------------------------------
// Constructor
// -----------------------------------------------------------------------------

// NewFastAPIServer builds the REST and WebSocket surface. metrics may be nil,
// in which case /metrics is not mounted.
func NewFastAPIServer(cfg *models.MConfig, logger *logger.Logger, provider interfaces.IReportProvider, metrics http.Handler) *FastAPIServer {
	// Set Gin mode
	if cfg.LogLevel != "DEBUG" && gin.Mode() != gin.TestMode {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &FastAPIServer{
		Config:   cfg,
		Logger:   logger,
		Provider: provider,
		engine:   gin.New(),
		clients:  make(map[*Client]struct{}),
		// Buffered so a refresh never waits on the hub loop
		broadcast:  make(chan *models.MLatestData, 64),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		subscribe:  make(chan *Client),
		done:       make(chan struct{}),
		latestState: &models.MLatestData{
			Type:         "INITIAL",
			SessionState: models.StateIdle.String(),
		},
	}
	s.engine.Use(gin.Recovery())
	if cfg.LogLevel == "DEBUG" {
		s.engine.Use(gin.Logger())
	}

	// Add CORS Middleware
	s.engine.Use(func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if strings.HasPrefix(origin, "http://127.0.0.1:") || strings.HasPrefix(origin, "http://localhost:") {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		}
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	})

	s.setupRoutes(metrics)
	go s.handleWebsockets()
	return s
}

// -----------------------------------------------------------------------------
// Route Setup
// -----------------------------------------------------------------------------

func (s *FastAPIServer) setupRoutes(metrics http.Handler) {
	api := s.engine.Group("/api")
	api.GET("/health", s.getHealth)
	api.GET("/commission", s.getCommission)
	api.POST("/refresh", s.postRefresh)
	api.GET("/profit-table", s.getProfitTable)
	api.GET("/config", s.getConfig)

	if metrics != nil {
		s.engine.GET("/metrics", gin.WrapH(metrics))
	}

	// WebSocket endpoint
	s.engine.GET("/ws", s.handleWebSocket)
}

// Handler exposes the router, mainly for tests.
func (s *FastAPIServer) Handler() http.Handler {
	return s.engine
}

// -----------------------------------------------------------------------------
// Server Lifecycle
// -----------------------------------------------------------------------------

func (s *FastAPIServer) Start() error {
	addr := fmt.Sprintf("%s:%d", s.Config.Host, s.Config.Port)
	s.Logger.Info("Starting server on %s", addr)

	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// -----------------------------------------------------------------------------

func (s *FastAPIServer) Stop(ctx context.Context) error {
	s.stopOnce.Do(func() { close(s.done) })
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

// -----------------------------------------------------------------------------
// Route Handlers
// -----------------------------------------------------------------------------

func (s *FastAPIServer) getHealth(c *gin.Context) {
	s.stateMutex.RLock()
	connections := len(s.clients)
	timestamp := s.latestState.Timestamp
	s.stateMutex.RUnlock()

	body := gin.H{
		"status":        "ok",
		"connections":   connections,
		"latest_update": timestamp,
	}
	if s.Provider != nil {
		status := s.Provider.Status()
		body["session"] = status
		if status.SessionState != models.StateAuthorized.String() {
			body["status"] = "degraded"
		}
	}
	c.JSON(http.StatusOK, body)
}

// -----------------------------------------------------------------------------

func (s *FastAPIServer) getCommission(c *gin.Context) {
	s.stateMutex.RLock()
	state := s.latestState
	s.stateMutex.RUnlock()

	if state.Report == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no commission report available yet"})
		return
	}
	c.JSON(http.StatusOK, state)
}

// -----------------------------------------------------------------------------

func (s *FastAPIServer) postRefresh(c *gin.Context) {
	if s.Provider == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no report provider"})
		return
	}

	data, err := s.Provider.Refresh(c.Request.Context())
	if err != nil {
		s.Logger.Warning("Refresh via API failed: %v", err)
		c.JSON(statusForError(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, data)
}

// -----------------------------------------------------------------------------

func (s *FastAPIServer) getProfitTable(c *gin.Context) {
	if s.Provider == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no report provider"})
		return
	}

	from, err := parseDateParam(c.Query("date_from"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "date_from: " + err.Error()})
		return
	}
	to, err := parseDateParam(c.Query("date_to"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "date_to: " + err.Error()})
		return
	}
	if !from.IsZero() && !to.IsZero() && to.Before(from) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "date_to is before date_from"})
		return
	}

	points, err := s.Provider.ProfitTable(c.Request.Context(), from, to)
	if err != nil {
		c.JSON(statusForError(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"chartData": points})
}

// -----------------------------------------------------------------------------

func (s *FastAPIServer) getConfig(c *gin.Context) {
	cfg := *s.Config
	if s.Provider != nil {
		cfg = s.Provider.Settings()
	}

	// Never echo the token itself
	c.JSON(http.StatusOK, gin.H{
		"endpoint":         cfg.Deriv.Endpoint,
		"server_url":       cfg.Deriv.ServerURL,
		"app_id":           cfg.Deriv.AppID,
		"has_token":        cfg.Deriv.APIToken != "",
		"refresh_interval": cfg.Dashboard.RefreshIntervalSeconds,
		"history_days":     cfg.Dashboard.HistoryDays,
	})
}
