package server

import (
	"encoding/json"
	"net/http"

	"github.com/aristath/brain/internal/domain"
)

// writeJSON writes data as the JSON response body with the given status.
func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error().Err(err).Msg("failed to encode JSON response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

// handleHealth answers the liveness probe. Distinct from handleDashboard,
// which reads the full projection set.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "healthy",
		"service": "brain",
	})
}

// handleAllocation returns the latest persisted AllocationVector snapshot.
func (s *Server) handleAllocation(w http.ResponseWriter, r *http.Request) {
	v, err := s.cfg.AllocationRepo.LoadSnapshot(r.Context())
	if err != nil {
		s.log.Error().Err(err).Msg("failed to load allocation snapshot")
		s.writeError(w, http.StatusInternalServerError, "failed to load allocation")
		return
	}
	if v == nil {
		s.writeJSON(w, http.StatusOK, domain.AllocationVector{})
		return
	}
	s.writeJSON(w, http.StatusOK, v)
}

// handleTreasury reports the high-watermark ratchet, cumulative swept
// total, and the recent sweep/transfer ledger.
func (s *Server) handleTreasury(w http.ResponseWriter, r *http.Request) {
	ops, err := s.cfg.TreasuryRepo.RecentOperations(r.Context(), 50)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to load treasury operations")
		s.writeError(w, http.StatusInternalServerError, "failed to load treasury state")
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"highWatermark": s.cfg.Treasury.HighWatermark(),
		"totalSwept":    s.cfg.Treasury.TotalSwept(),
		"operations":    ops,
	})
}

// handleBreaker reports the HFT circuit breaker's current state and
// rolling latency metrics.
func (s *Server) handleBreaker(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"state":      s.cfg.Processor.BreakerState(),
		"queueDepth": s.cfg.Processor.QueueDepth(),
		"dropped":    s.cfg.Processor.DroppedOnShutdown(),
		"metrics":    s.cfg.Processor.Metrics(),
	})
}

// handlePhasesStatus reports each phase's rolling performance snapshot and
// allocation modifier.
func (s *Server) handlePhasesStatus(w http.ResponseWriter, r *http.Request) {
	phases := []domain.PhaseID{domain.PhaseScavenger, domain.PhaseHunter, domain.PhaseSentinel}
	snapshots := make([]domain.PhasePerformance, 0, len(phases))
	for _, p := range phases {
		snap, err := s.cfg.Performance.Snapshot(r.Context(), p)
		if err != nil {
			s.log.Error().Err(err).Str("phase_id", string(p)).Msg("failed to snapshot phase performance")
			s.writeError(w, http.StatusInternalServerError, "failed to load phase status")
			return
		}
		snapshots = append(snapshots, snap)
	}
	s.writeJSON(w, http.StatusOK, snapshots)
}

// handleDashboard folds the allocation, treasury, breaker and phase
// projections into a single read, the way an operator dashboard's initial
// load would want them.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	allocSnap, err := s.cfg.AllocationRepo.LoadSnapshot(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("dashboard: failed to load allocation")
		s.writeError(w, http.StatusInternalServerError, "failed to build dashboard")
		return
	}

	positions, err := s.cfg.PositionRepo.AllPositions(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("dashboard: failed to load positions")
		s.writeError(w, http.StatusInternalServerError, "failed to build dashboard")
		return
	}

	decisions, err := s.cfg.DecisionRepo.RecentDecisions(ctx, 20)
	if err != nil {
		s.log.Error().Err(err).Msg("dashboard: failed to load recent decisions")
		s.writeError(w, http.StatusInternalServerError, "failed to build dashboard")
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"allocation":      allocSnap,
		"positions":       positions,
		"recentDecisions": decisions,
		"treasury": map[string]float64{
			"highWatermark": s.cfg.Treasury.HighWatermark(),
			"totalSwept":    s.cfg.Treasury.TotalSwept(),
		},
		"breaker": map[string]interface{}{
			"state":      s.cfg.Processor.BreakerState(),
			"queueDepth": s.cfg.Processor.QueueDepth(),
		},
	})
}
