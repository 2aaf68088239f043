package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/aristath/brain/internal/domain"
)

// riskHaltRequest is the body of POST /risk/halt.
type riskHaltRequest struct {
	OperatorID string `json:"operatorId"`
	Reason     string `json:"reason"`
}

// handleRiskHalt forces the allocation vector to zero until explicitly
// cleared, the emergency stop an operator reaches for when RiskGuardian
// alone isn't enough.
func (s *Server) handleRiskHalt(w http.ResponseWriter, r *http.Request) {
	var req riskHaltRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.OperatorID == "" {
		s.writeError(w, http.StatusBadRequest, "operatorId is required")
		return
	}

	v, err := s.cfg.AllocationEngine.Halt(r.Context(), req.OperatorID, req.Reason)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to engage risk halt")
		s.writeError(w, http.StatusInternalServerError, "failed to engage halt")
		return
	}
	s.writeJSON(w, http.StatusOK, v)
}

// handleBreakerReset manually closes the HFT circuit breaker, the operator
// override for a breaker stuck OPEN past its automatic recovery window.
func (s *Server) handleBreakerReset(w http.ResponseWriter, r *http.Request) {
	ok := s.cfg.Processor.ResetBreaker()
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"reset": ok,
		"state": s.cfg.Processor.BreakerState(),
	})
}

// adminOverrideRequest is the body of POST /admin/override.
type adminOverrideRequest struct {
	OperatorID    string  `json:"operatorId"`
	Reason        string  `json:"reason"`
	DurationHours float64 `json:"durationHours"`
	W1            float64 `json:"w1"`
	W2            float64 `json:"w2"`
	W3            float64 `json:"w3"`
}

// handleAdminOverride locks the allocation vector to an operator-supplied
// weight split for durationHours, superseding normal computation until it
// expires (or a risk halt takes priority over it).
func (s *Server) handleAdminOverride(w http.ResponseWriter, r *http.Request) {
	var req adminOverrideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.OperatorID == "" || req.DurationHours <= 0 {
		s.writeError(w, http.StatusBadRequest, "operatorId and a positive durationHours are required")
		return
	}

	override := domain.AllocationOverride{
		Allocation: domain.AllocationVector{W1: req.W1, W2: req.W2, W3: req.W3},
		OperatorID: req.OperatorID,
		Reason:     req.Reason,
		ExpiresAt:  time.Now().UTC().Add(time.Duration(req.DurationHours * float64(time.Hour))),
	}
	s.cfg.AllocationEngine.SetOverride(override)

	s.writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"accepted":  true,
		"expiresAt": override.ExpiresAt,
	})
}
