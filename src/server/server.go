package server

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"trading-core/src/compliance"
	"trading-core/src/execution"
	"trading-core/src/logger"
	"trading-core/src/models"
	"trading-core/src/stream"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// -----------------------------------------------------------------------------
// APIServer
//
// The outbound surface of the execution core: order submission, compliance
// queries, kill-switch administration and the market-event websocket.
// -----------------------------------------------------------------------------

type APIServer struct {
	Config *models.MConfig
	Logger *logger.Logger
	engine *gin.Engine

	Hub     *Hub
	Exec    *execution.Engine
	Tracker *compliance.Tracker
	Stream  *stream.Client
	Kill    *execution.KillSwitch
}

// -----------------------------------------------------------------------------
// Constructor
// -----------------------------------------------------------------------------

func NewAPIServer(cfg *models.MConfig, hub *Hub, exec *execution.Engine, tracker *compliance.Tracker,
	streamClient *stream.Client, kill *execution.KillSwitch, log *logger.Logger) *APIServer {
	// Set Gin mode
	if cfg.LogLevel != "DEBUG" {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &APIServer{
		Config:  cfg,
		Logger:  log,
		engine:  gin.Default(),
		Hub:     hub,
		Exec:    exec,
		Tracker: tracker,
		Stream:  streamClient,
		Kill:    kill,
	}

	// Add CORS Middleware
	s.engine.Use(func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if strings.HasPrefix(origin, "http://127.0.0.1:") {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		}
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With, Last-Event-ID")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	// setup web routes
	s.setupRoutes()
	return s
}

// -----------------------------------------------------------------------------
// Route Setup
// -----------------------------------------------------------------------------

func (s *APIServer) setupRoutes() {
	// REST API endpoints
	s.engine.GET("/api/health", s.getHealth)
	s.engine.POST("/api/orders", s.submitOrders)
	s.engine.GET("/api/orders/:key", s.getOrder)
	s.engine.GET("/api/compliance", s.getCompliance)
	s.engine.GET("/api/killswitch", s.getKillSwitch)
	s.engine.POST("/api/killswitch", s.setKillSwitch)

	// WebSocket endpoint
	s.engine.GET("/ws", s.handleWebSocket)
}

// -----------------------------------------------------------------------------
// Server Lifecycle
// -----------------------------------------------------------------------------

func (s *APIServer) Start() error {
	addr := fmt.Sprintf("%s:%d", s.Config.Host, s.Config.Port)
	s.Logger.Info("Starting server on %s", addr)
	return s.engine.Run(addr)
}

// -----------------------------------------------------------------------------
// Route Handlers
// -----------------------------------------------------------------------------

func (s *APIServer) getHealth(c *gin.Context) {
	session := s.Stream.Session()
	c.JSON(200, gin.H{
		"status":          "ok",
		"stream_state":    session.State,
		"stream_circuit":  s.Stream.Breaker.State(),
		"broker_circuit":  s.Exec.Breaker.State(),
		"latest_sequence": s.Hub.LatestSequence(),
		"kill_switch":     s.Kill.Engaged(),
	})
}

// -----------------------------------------------------------------------------

func (s *APIServer) submitOrders(c *gin.Context) {
	var req models.MOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(400, gin.H{"error": err.Error(), "reason_code": models.ReasonValidationFailed})
		return
	}

	result, err := s.Exec.Submit(c.Request.Context(), req)
	if err != nil {
		s.Logger.Error("Order submission failed: %v", err)
		c.JSON(500, gin.H{"error": "internal error"})
		return
	}

	c.JSON(statusFor(result), result)
}

// -----------------------------------------------------------------------------

// statusFor maps reason codes to HTTP statuses. Fast-fail rejections use 503
// so clients know retrying later may succeed.
func statusFor(result models.MOrderResult) int {
	switch result.ReasonCode {
	case models.ReasonCircuitOpen, models.ReasonTransientUpstream:
		return http.StatusServiceUnavailable
	case models.ReasonKillSwitchActive:
		return http.StatusForbidden
	case models.ReasonValidationFailed:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusOK
	}
}

// -----------------------------------------------------------------------------

func (s *APIServer) getOrder(c *gin.Context) {
	key := c.Param("key")
	result, ok, err := s.Exec.Store.GetResult(key)
	if err != nil {
		c.JSON(500, gin.H{"error": "internal error"})
		return
	}
	if !ok {
		c.JSON(404, gin.H{"error": "unknown idempotency key"})
		return
	}
	c.JSON(200, result)
}

// -----------------------------------------------------------------------------

func (s *APIServer) getCompliance(c *gin.Context) {
	c.JSON(200, s.Tracker.Status())
}

// -----------------------------------------------------------------------------

func (s *APIServer) getKillSwitch(c *gin.Context) {
	c.JSON(200, s.Kill.State())
}

// -----------------------------------------------------------------------------

type killSwitchRequest struct {
	Engaged bool   `json:"engaged"`
	Actor   string `json:"actor"`
}

func (s *APIServer) setKillSwitch(c *gin.Context) {
	var req killSwitchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(400, gin.H{"error": err.Error()})
		return
	}
	if req.Actor == "" {
		c.JSON(400, gin.H{"error": "actor is required"})
		return
	}

	s.Kill.Set(req.Engaged, req.Actor)
	c.JSON(200, s.Kill.State())
}

// -----------------------------------------------------------------------------
// WebSocket Handler
// -----------------------------------------------------------------------------

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// -----------------------------------------------------------------------------

func (s *APIServer) handleWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.Logger.Info("Failed to upgrade websocket: %v", err)
		return
	}

	cursor, hasCursor, err := parseCursor(c)
	if err != nil {
		conn.WriteJSON(gin.H{"error": err.Error()})
		conn.Close()
		return
	}

	sub, err := s.Hub.Subscribe(cursor, hasCursor)
	if err != nil {
		if errors.Is(err, models.ErrResyncRequired) {
			// The cursor predates the replay buffer: tell the consumer to
			// re-snapshot out-of-band instead of silently gapping.
			conn.WriteJSON(ResyncEvent(time.Now().Unix()))
		}
		conn.Close()
		return
	}

	client := &Client{
		server: s,
		conn:   conn,
		sub:    sub,
	}

	// Start goroutines for reading/writing
	go client.writePump()
	go client.readPump()
}

// -----------------------------------------------------------------------------

// parseCursor reads the resumption cursor from the Last-Event-ID header or
// the last_event_id query parameter.
func parseCursor(c *gin.Context) (uint64, bool, error) {
	raw := c.Request.Header.Get("Last-Event-ID")
	if raw == "" {
		raw = c.Query("last_event_id")
	}
	if raw == "" {
		return 0, false, nil
	}

	cursor, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("invalid cursor %q", raw)
	}
	return cursor, true, nil
}
