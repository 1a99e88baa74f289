// Package api exposes a minimal read-only HTTP status surface, trimmed
// from the teacher's internal/api/server.go. No control endpoints: the
// controller is the only writer of trading state.
package api

import (
	"context"
	"encoding/json"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/arbbot/dipsum-trader/internal/market"
	"github.com/arbbot/dipsum-trader/internal/paper"
	"github.com/arbbot/dipsum-trader/internal/risk"
	"github.com/arbbot/dipsum-trader/internal/strategy"
)

// ControllerStats is the subset of strategy.Controller the API needs,
// kept as a local interface so the server is easy to fake in tests.
type ControllerStats interface {
	State() market.CycleState
	Stats() strategy.Stats
}

// Server is a lightweight HTTP API exposing trading status for
// operators and monitoring, not a control plane.
type Server struct {
	httpServer *http.Server
	controller ControllerStats
	risk       *risk.Manager
	paperSim   *paper.Simulator
	startedAt  time.Time
}

func NewServer(addr string, controller ControllerStats, riskMgr *risk.Manager, paperSim *paper.Simulator) *Server {
	s := &Server{
		controller: controller,
		risk:       riskMgr,
		paperSim:   paperSim,
		startedAt:  time.Now(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/health", s.handleHealth)
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/stats", s.handleStats)
	mux.HandleFunc("/api/positions", s.handlePositions)

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

func (s *Server) Start(_ context.Context) error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return err
	}
	log.Printf("api server listening on %s", s.httpServer.Addr)
	go func() {
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			log.Printf("api server: %v", err)
		}
	}()
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// GET /api/health — liveness probe.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, map[string]interface{}{
		"ok":       true,
		"uptime_s": time.Since(s.startedAt).Seconds(),
	})
}

// GET /api/status — controller state machine + risk cooldown snapshot.
func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	resp := map[string]interface{}{
		"uptime_s": time.Since(s.startedAt).Seconds(),
	}
	if s.controller != nil {
		resp["cycle_state"] = s.controller.State().String()
	}
	if s.risk != nil {
		snap := s.risk.Snapshot()
		resp["trading_paused"] = snap.InCooldown
		resp["consecutive_losses"] = snap.ConsecutiveLosses
		resp["cooldown_remaining_s"] = snap.CooldownRemaining.Seconds()
	}
	s.writeJSON(w, resp)
}

// GET /api/stats — cumulative cycle counters.
func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	if s.controller == nil {
		s.writeJSON(w, map[string]interface{}{})
		return
	}
	stats := s.controller.Stats()
	s.writeJSON(w, map[string]interface{}{
		"cycles_completed": stats.CyclesCompleted,
		"cycles_abandoned": stats.CyclesAbandoned,
		"cycles_won":       stats.CyclesWon,
		"total_profit":     stats.TotalProfit.String(),
		"emergency_exits":  stats.EmergencyExits,
		"win_rate":         stats.WinRate().String(),
	})
}

// GET /api/positions — paper simulator balance and open positions.
func (s *Server) handlePositions(w http.ResponseWriter, _ *http.Request) {
	if s.paperSim == nil {
		s.writeJSON(w, map[string]interface{}{"paper_mode": false})
		return
	}
	s.writeJSON(w, s.paperSim.Snapshot())
}
