// Package main runs the loan metrics engine: it connects to the loans
// database, starts the periodic recompute loop and serves the snapshot
// read endpoints used by report handlers.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"loan-metrics-engine/internal/config"
	"loan-metrics-engine/internal/models"
	"loan-metrics-engine/internal/services/database"
	"loan-metrics-engine/internal/services/engine"
	"loan-metrics-engine/internal/utils"
)

// Server holds all dependencies.
type Server struct {
	db     *database.DB
	engine *engine.Engine
	config *config.Config
}

// Response represents a standard API response.
type Response struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

func main() {
	// Load config
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	if err := utils.InitLogger(cfg.LogLevel, cfg.Stage); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer utils.Sync()

	// Initialize database
	db, err := database.New(cfg)
	if err != nil {
		utils.Logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	facts := database.NewFactRepository(db, cfg.FactCacheTTL)

	eng := engine.New(facts, engine.Options{
		SnapshotTTL:       cfg.SnapshotTTL,
		RecomputeInterval: cfg.RecomputeInterval,
	})

	server := &Server{
		db:     db,
		engine: eng,
		config: cfg,
	}

	// Warm the portfolio scope so the first dashboard request has data.
	if _, err := eng.Recompute(context.Background(), models.PortfolioScope); err != nil {
		utils.Logger.Warn("Initial portfolio recompute failed", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Periodic recompute loop
	go func() {
		if err := eng.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			utils.Logger.Error("Recompute loop exited", zap.Error(err))
		}
	}()

	// Setup routes
	mux := http.NewServeMux()
	mux.HandleFunc("/health", server.healthHandler)
	mux.HandleFunc("/api/snapshot", server.snapshotHandler)
	mux.HandleFunc("/api/recompute", server.recomputeHandler)

	httpServer := &http.Server{
		Addr:    "0.0.0.0:" + cfg.Port,
		Handler: mux,
	}

	go func() {
		utils.Logger.Info("Starting HTTP server", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			utils.Logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	utils.Logger.Info("Shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		utils.Logger.Error("HTTP shutdown failed", zap.Error(err))
	}
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	dbStatus := "disconnected"
	if err := s.db.HealthCheck(r.Context()); err == nil {
		dbStatus = "connected"
	}

	writeJSON(w, http.StatusOK, Response{
		Success: true,
		Message: "Loan metrics engine is running",
		Data: map[string]interface{}{
			"status":    "healthy",
			"database":  dbStatus,
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

// snapshotHandler serves the current snapshot for a scope-key, e.g.
// GET /api/snapshot?scope=branch:Kampala Central. Stale snapshots are
// served immediately while a background refresh runs.
func (s *Server) snapshotHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	scope, err := parseScopeParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, Response{
			Success: false,
			Error:   err.Error(),
		})
		return
	}

	snap, staleness := s.engine.GetSnapshot(scope)
	if snap == nil {
		writeJSON(w, http.StatusNotFound, Response{
			Success: false,
			Error:   models.ErrSnapshotNotFound.Error(),
			Data: map[string]interface{}{
				"scope":     scope.String(),
				"staleness": staleness,
			},
		})
		return
	}

	writeJSON(w, http.StatusOK, Response{
		Success: true,
		Data: map[string]interface{}{
			"snapshot":  snap,
			"staleness": staleness,
		},
	})
}

// recomputeHandler triggers an on-demand recompute for a scope-key.
func (s *Server) recomputeHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	scope, err := parseScopeParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, Response{
			Success: false,
			Error:   err.Error(),
		})
		return
	}

	started := s.engine.TriggerRecompute(scope)

	message := "Recompute started"
	if !started {
		message = "Recompute already in flight, trigger attached"
	}

	writeJSON(w, http.StatusAccepted, Response{
		Success: true,
		Message: message,
		Data: map[string]interface{}{
			"scope":   scope.String(),
			"started": started,
		},
	})
}

func parseScopeParam(r *http.Request) (models.ScopeKey, error) {
	raw := r.URL.Query().Get("scope")
	if raw == "" {
		return models.PortfolioScope, nil
	}
	return models.ParseScopeKey(raw)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
