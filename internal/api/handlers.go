package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"ensemble-signal-engine/internal/bridge"
	"ensemble-signal-engine/internal/ensemble"
)

// handleHealth returns liveness plus a coarse view of the transports
func (s *Server) handleHealth(c *gin.Context) {
	status := "ok"
	if s.comm != nil && !s.comm.Healthy() {
		status = "degraded"
	}

	resp := gin.H{
		"status": status,
		"agents": s.engine.Pool().Len(),
		"time":   time.Now().UTC().Format(time.RFC3339),
	}
	if s.comm != nil {
		resp["active_bridge"] = s.comm.ActiveName()
	}
	c.JSON(http.StatusOK, resp)
}

// handleStatus returns the full operator view: pool, transports, validator
func (s *Server) handleStatus(c *gin.Context) {
	pool := s.engine.Pool()
	agents := make([]gin.H, 0, pool.Len())
	for _, name := range pool.Names() {
		a := pool.Get(name)
		if a == nil {
			continue
		}
		agents = append(agents, gin.H{
			"name":       a.Name,
			"category":   string(a.Category),
			"version":    a.Version,
			"weight":     a.Weight,
			"updated_at": a.UpdatedAt,
		})
	}

	resp := gin.H{"agents": agents}
	if s.comm != nil {
		resp["comm"] = s.comm.Status()
	}
	if s.val != nil {
		resp["validator"] = s.val.Stats()
	}
	c.JSON(http.StatusOK, resp)
}

// handleAgents lists all registry rows, active and backup
func (s *Server) handleAgents(c *gin.Context) {
	if s.store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "registry unavailable"})
		return
	}

	entries, err := s.store.AllEntries(c.Request.Context())
	if err != nil {
		s.log.Error().Err(err).Msg("failed to list registry entries")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list registry entries"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

func (s *Server) handleValidatorStats(c *gin.Context) {
	if s.val == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "validator unavailable"})
		return
	}
	c.JSON(http.StatusOK, s.val.Stats())
}

type evaluateRequest struct {
	Symbol string `json:"symbol" binding:"required"`
}

// handleEvaluate runs a full ensemble evaluation for a symbol and pushes the
// resulting signal through the active transport.
func (s *Server) handleEvaluate(c *gin.Context) {
	if !s.rateLimiter.Allow("evaluate") {
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
		return
	}

	var req evaluateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "symbol is required"})
		return
	}

	snap, err := s.provider.Snapshot(c.Request.Context(), req.Symbol)
	if err != nil {
		s.log.Error().Err(err).Str("symbol", req.Symbol).Msg("failed to fetch market snapshot")
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to fetch market data"})
		return
	}

	start := time.Now()
	sig := s.engine.Evaluate(c.Request.Context(), req.Symbol, snap)
	if s.recorder != nil {
		s.recorder.ObserveEvaluation(time.Since(start).Seconds())
	}

	delivered := false
	if s.comm != nil && sig.Action != ensemble.ActionHold {
		delivered = s.comm.Send(toWireSignal(sig))
	}

	c.JSON(http.StatusOK, gin.H{
		"signal":    sig,
		"delivered": delivered,
	})
}

// toWireSignal converts an engine signal to the transport payload.
func toWireSignal(sig *ensemble.Signal) *bridge.SignalMessage {
	votes := make(map[string]float64, len(sig.Votes))
	for action, v := range sig.Votes {
		votes[string(action)] = v
	}
	return &bridge.SignalMessage{
		Symbol:          sig.Symbol,
		Action:          string(sig.Action),
		Confidence:      sig.Confidence,
		Reason:          sig.Reason,
		ServerTimestamp: sig.ServerTimestamp,
		Votes:           votes,
		Metadata: map[string]interface{}{
			"signal_id": sig.ID,
		},
	}
}
