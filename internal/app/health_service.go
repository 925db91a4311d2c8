package app

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/switchd/internal/config"
	"github.com/dokzlo13/switchd/internal/ledger"
	"github.com/dokzlo13/switchd/internal/reconcile"
)

// HealthService provides HTTP health check endpoints plus a read-only view
// of each switch's inferred position and transition history.
type HealthService struct {
	cfg         *config.Config
	reconcilers []*reconcile.Reconciler
	ledger      *ledger.Ledger // nil when the ledger is disabled
	server      *http.Server
}

// NewHealthService creates a new HealthService.
func NewHealthService(cfg *config.Config, reconcilers []*reconcile.Reconciler, l *ledger.Ledger) *HealthService {
	return &HealthService{
		cfg:         cfg,
		reconcilers: reconcilers,
		ledger:      l,
	}
}

// Start begins the health check server if enabled.
func (s *HealthService) Start(ctx context.Context) {
	if !s.cfg.Healthcheck.Enabled {
		return
	}

	go s.run(ctx)
}

func (s *HealthService) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	})

	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ready"}`))
	})

	// Inferred position per switch, e.g. {"hallway":true,"porch":false}
	mux.HandleFunc("/switches", func(w http.ResponseWriter, r *http.Request) {
		positions := make(map[string]bool, len(s.reconcilers))
		for _, rec := range s.reconcilers {
			positions[rec.Name()] = rec.Position()
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(positions)
	})

	// Recent transitions and write outcomes for one switch, newest first.
	mux.HandleFunc("/switches/{name}/history", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if s.ledger == nil {
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"error":"ledger disabled"}`))
			return
		}

		entries, err := s.ledger.Recent(r.PathValue("name"), 50)
		if err != nil {
			log.Error().Err(err).Msg("Failed to read switch history")
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte(`{"error":"failed to read history"}`))
			return
		}

		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(entries)
	})

	return mux
}

func (s *HealthService) run(ctx context.Context) {
	addr := fmt.Sprintf("%s:%d", s.cfg.Healthcheck.Host, s.cfg.Healthcheck.Port)

	s.server = &http.Server{
		Addr:    addr,
		Handler: s.handler(),
	}

	log.Info().Str("addr", addr).Msg("Starting health check server")

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout.Duration())
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Health check server shutdown error")
		}
	}()

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error().Err(err).Msg("Health check server error")
	}
}
