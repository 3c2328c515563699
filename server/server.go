package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/web3guy0/tradeguard/execution"
	"github.com/web3guy0/tradeguard/monitor"
	"github.com/web3guy0/tradeguard/risk"
	"github.com/web3guy0/tradeguard/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// ADMIN HTTP LAYER - Thin 1:1 mapping onto gateway/executor/monitor ops
// ═══════════════════════════════════════════════════════════════════════════════
//
// Parse, check field presence, map error kinds to status codes. No
// business logic lives here.
//
// ═══════════════════════════════════════════════════════════════════════════════

// Server exposes the operator API.
type Server struct {
	gateway *risk.Gateway
	exec    *execution.Executor
	mon     *monitor.Monitor

	httpServer *http.Server
}

// New builds the server and its routes.
func New(addr string, gateway *risk.Gateway, exec *execution.Executor, mon *monitor.Monitor) *Server {
	s := &Server{gateway: gateway, exec: exec, mon: mon}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	api := router.Group("/api")
	{
		api.POST("/trade/execute", s.handleExecute)
		api.POST("/trade/simulate", s.handleSimulate)
		api.GET("/trade/status/:txRef", s.handleTradeStatus)
		api.POST("/bet/execute", s.handleBet)

		api.POST("/risk/assess", s.handleAssess)
		api.GET("/risk/limits", s.handleGetLimits)
		api.PUT("/risk/limits", s.handleUpdateLimits)
		api.GET("/risk/history", s.handleHistory)

		api.GET("/whales", s.handleListWhales)
		api.POST("/whales", s.handleAddWhale)
		api.PUT("/whales/:address", s.handleUpdateWhale)
		api.DELETE("/whales/:address", s.handleRemoveWhale)

		api.POST("/monitor/start", s.handleMonitorStart)
		api.POST("/monitor/stop", s.handleMonitorStop)
		api.GET("/monitor/status", s.handleMonitorStatus)

		api.GET("/status", s.handleStatus)
		api.GET("/health", s.handleHealth)
	}

	s.httpServer = &http.Server{Addr: addr, Handler: router}
	return s
}

// Start serves until Shutdown.
func (s *Server) Start() error {
	log.Info().Str("addr", s.httpServer.Addr).Msg("🌐 Admin API listening")
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// errorBody is the stable machine-readable error envelope.
type errorBody struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// writeError maps error kinds to HTTP statuses. Internal detail never
// crosses this boundary.
func writeError(c *gin.Context, err error) {
	kind := types.KindOf(err)
	status := http.StatusInternalServerError
	switch kind {
	case types.KindValidation, types.KindRiskRejected, types.KindInsufficientFunds:
		status = http.StatusBadRequest
	case types.KindUnavailable, types.KindTimeout:
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, errorBody{Kind: string(kind), Message: types.MessageOf(err)})
}

type tradeRequest struct {
	Destination string          `json:"destination"`
	Value       decimal.Decimal `json:"value"`
	Payload     string          `json:"payload"`
}

func bindTradeRequest(c *gin.Context) (*tradeRequest, bool) {
	var req tradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, types.Validationf("malformed request body"))
		return nil, false
	}
	if req.Destination == "" {
		writeError(c, types.Validationf("destination is required"))
		return nil, false
	}
	return &req, true
}

func (s *Server) handleExecute(c *gin.Context) {
	req, ok := bindTradeRequest(c)
	if !ok {
		return
	}
	result, err := s.exec.Execute(c.Request.Context(), req.Destination, req.Value, req.Payload)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) handleSimulate(c *gin.Context) {
	req, ok := bindTradeRequest(c)
	if !ok {
		return
	}
	report, err := s.exec.Simulate(c.Request.Context(), req.Destination, req.Value, req.Payload)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (s *Server) handleTradeStatus(c *gin.Context) {
	status, err := s.exec.Status(c.Request.Context(), c.Param("txRef"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tx_ref": c.Param("txRef"), "status": status})
}

type betRequest struct {
	MarketID string          `json:"market_id"`
	Outcome  *int            `json:"outcome"`
	Amount   decimal.Decimal `json:"amount"`
	Price    decimal.Decimal `json:"price"`
}

func (s *Server) handleBet(c *gin.Context) {
	var req betRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, types.Validationf("malformed request body"))
		return
	}
	if req.MarketID == "" {
		writeError(c, types.Validationf("market_id is required"))
		return
	}
	if req.Outcome == nil {
		writeError(c, types.Validationf("outcome is required"))
		return
	}
	result, err := s.exec.ExecuteMarketBet(c.Request.Context(), req.MarketID, *req.Outcome, req.Amount, req.Price)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) handleAssess(c *gin.Context) {
	req, ok := bindTradeRequest(c)
	if !ok {
		return
	}
	payload, err := types.ParsePayload(req.Payload)
	if err != nil {
		writeError(c, err)
		return
	}
	decision := s.gateway.Assess(req.Destination, req.Value, payload)
	c.JSON(http.StatusOK, decision)
}

func (s *Server) handleGetLimits(c *gin.Context) {
	c.JSON(http.StatusOK, s.gateway.Limits())
}

func (s *Server) handleUpdateLimits(c *gin.Context) {
	var update types.LimitsUpdate
	if err := c.ShouldBindJSON(&update); err != nil {
		writeError(c, types.Validationf("malformed request body"))
		return
	}
	if err := s.gateway.UpdateLimits(update); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, s.gateway.Limits())
}

func (s *Server) handleHistory(c *gin.Context) {
	limit := 100
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}
	c.JSON(http.StatusOK, s.gateway.History(limit))
}

func (s *Server) handleListWhales(c *gin.Context) {
	c.JSON(http.StatusOK, s.mon.Status().Whales)
}

func (s *Server) handleAddWhale(c *gin.Context) {
	var cfg types.WhaleConfig
	if err := c.ShouldBindJSON(&cfg); err != nil {
		writeError(c, types.Validationf("malformed request body"))
		return
	}
	if err := s.mon.AddWhale(cfg); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, cfg)
}

func (s *Server) handleUpdateWhale(c *gin.Context) {
	var update types.WhaleUpdate
	if err := c.ShouldBindJSON(&update); err != nil {
		writeError(c, types.Validationf("malformed request body"))
		return
	}
	if err := s.mon.UpdateWhale(c.Param("address"), update); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": c.Param("address")})
}

func (s *Server) handleRemoveWhale(c *gin.Context) {
	if err := s.mon.RemoveWhale(c.Param("address")); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"removed": c.Param("address")})
}

func (s *Server) handleMonitorStart(c *gin.Context) {
	s.mon.Start()
	c.JSON(http.StatusOK, s.mon.Status())
}

func (s *Server) handleMonitorStop(c *gin.Context) {
	s.mon.Stop()
	c.JSON(http.StatusOK, s.mon.Status())
}

func (s *Server) handleMonitorStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.mon.Status())
}

func (s *Server) handleStatus(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()
	c.JSON(http.StatusOK, s.exec.Summary(ctx))
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "time": time.Now().UTC()})
}

