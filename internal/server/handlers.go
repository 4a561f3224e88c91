package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"runtime"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/insushim/alchan-sub004/internal/modules/events"
	"github.com/insushim/alchan-sub004/internal/modules/settlement"
)

// handleHealth reports process and database health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	code := http.StatusOK

	if err := s.db.HealthCheck(r.Context()); err != nil {
		s.log.Error().Err(err).Msg("Database health check failed")
		status = "degraded"
		code = http.StatusServiceUnavailable
	}

	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	response := map[string]interface{}{
		"status":     status,
		"goroutines": runtime.NumGoroutine(),
		"memory": map[string]interface{}{
			"alloc_mb": m.Alloc / 1024 / 1024,
			"sys_mb":   m.Sys / 1024 / 1024,
			"num_gc":   m.NumGC,
		},
	}

	if vm, err := mem.VirtualMemory(); err == nil {
		response["system_memory"] = map[string]interface{}{
			"used_percent": vm.UsedPercent,
			"total_mb":     vm.Total / 1024 / 1024,
		}
	}

	s.writeJSON(w, code, response)
}

// handleTick runs one orchestrator dispatch against the current clock
func (s *Server) handleTick(w http.ResponseWriter, r *http.Request) {
	now := time.Now()
	if err := s.orchestrator.Dispatch(r.Context(), now); err != nil {
		// The cycle ran; errors here mean some task failed, not that the
		// tick was rejected
		s.writeJSON(w, http.StatusOK, map[string]interface{}{
			"dispatched_at": now.In(s.loc).Format(time.RFC3339),
			"errors":        err.Error(),
		})
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"dispatched_at": now.In(s.loc).Format(time.RFC3339),
	})
}

// handleSetVacation writes the durable vacation flag and refreshes the cache
func (s *Server) handleSetVacation(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Vacation *bool `json:"vacation"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Vacation == nil {
		s.writeError(w, http.StatusBadRequest, "body must be {\"vacation\": true|false}")
		return
	}

	if err := s.vacation.Set(*req.Vacation); err != nil {
		s.log.Error().Err(err).Msg("Failed to update vacation mode")
		s.writeError(w, http.StatusInternalServerError, "failed to update vacation mode")
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]bool{"vacation": *req.Vacation})
}

// handleTriggerEvent applies one economic event to a class
func (s *Server) handleTriggerEvent(w http.ResponseWriter, r *http.Request) {
	classCode := chi.URLParam(r, "code")
	if classCode == "" {
		s.writeError(w, http.StatusBadRequest, "class code required")
		return
	}

	trigger := events.TriggerScheduled
	if r.URL.Query().Get("force") == "true" {
		trigger = events.TriggerForce
	}

	summary, err := s.injector.TriggerClassEvent(r.Context(), classCode, trigger)
	switch {
	case errors.Is(err, events.ErrCooldownActive):
		s.writeError(w, http.StatusConflict, "event already applied today")
		return
	case errors.Is(err, events.ErrNoTemplates):
		s.writeError(w, http.StatusUnprocessableEntity, "no enabled event templates for class")
		return
	case err != nil:
		s.log.Error().Err(err).Str("class", classCode).Msg("Event trigger failed")
		s.writeError(w, http.StatusInternalServerError, "event trigger failed")
		return
	}

	s.writeJSON(w, http.StatusOK, summary)
}

// handleSnapshot returns the materialized market document
func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := s.snapshots.Get(r.Context())
	if err != nil {
		s.log.Error().Err(err).Msg("Snapshot read failed")
		s.writeError(w, http.StatusInternalServerError, "snapshot unavailable")
		return
	}

	s.writeJSON(w, http.StatusOK, snap)
}

// handleIndex returns the current market index
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	instruments, err := s.instruments.GetListed()
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to load instruments for index")
		s.writeError(w, http.StatusInternalServerError, "index unavailable")
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]float64{
		"index": settlement.CalculateMarketIndex(instruments, settlement.IndexBase),
	})
}

type tradeRequest struct {
	AccountID    string `json:"account_id"`
	InstrumentID string `json:"instrument_id"`
	Quantity     int64  `json:"quantity"`
}

func (s *Server) decodeTradeRequest(w http.ResponseWriter, r *http.Request) (*tradeRequest, bool) {
	var req tradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return nil, false
	}
	if req.AccountID == "" || req.InstrumentID == "" {
		s.writeError(w, http.StatusBadRequest, "account_id and instrument_id required")
		return nil, false
	}
	return &req, true
}

// handleBuy settles a purchase at the current market price
func (s *Server) handleBuy(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeTradeRequest(w, r)
	if !ok {
		return
	}

	receipt, err := s.trades.Buy(req.AccountID, req.InstrumentID, req.Quantity)
	if err != nil {
		s.writeTradeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, receipt)
}

// handleSell settles a sale at the current market price
func (s *Server) handleSell(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeTradeRequest(w, r)
	if !ok {
		return
	}

	receipt, err := s.trades.Sell(req.AccountID, req.InstrumentID, req.Quantity)
	if err != nil {
		s.writeTradeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, receipt)
}

func (s *Server) writeTradeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, settlement.ErrInvalidQuantity),
		errors.Is(err, settlement.ErrInsufficientFunds),
		errors.Is(err, settlement.ErrInsufficientQuantity):
		s.writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, settlement.ErrHoldingLocked):
		s.writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, settlement.ErrInstrumentNotFound):
		s.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, settlement.ErrNotListed):
		s.writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		s.log.Error().Err(err).Msg("Trade settlement failed")
		s.writeError(w, http.StatusInternalServerError, "trade settlement failed")
	}
}

// writeJSON writes a JSON response
func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeError writes an error response
func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{
		"error": message,
	})
}
