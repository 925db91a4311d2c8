package app

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/switchd/internal/config"
	"github.com/dokzlo13/switchd/internal/db"
	"github.com/dokzlo13/switchd/internal/hue"
	"github.com/dokzlo13/switchd/internal/ledger"
	"github.com/dokzlo13/switchd/internal/reconcile"
)

// Services is a container for all application services.
// It manages service initialization order and dependencies.
type Services struct {
	cfg *config.Config

	// Core infrastructure. DB and Ledger are nil when no database path is
	// configured; the reconcilers then run without transition history.
	DB     *db.DB
	Ledger *ledger.Ledger

	Hue *hue.Client

	// One reconciler per configured switch, each on its own goroutine.
	Reconcilers []*reconcile.Reconciler

	Health *HealthService

	wg sync.WaitGroup
}

// NewServices creates the infrastructure services. Reconcilers are built in
// Start, since seeding their initial position requires live hub probes.
func NewServices(cfg *config.Config) (*Services, error) {
	s := &Services{cfg: cfg}

	if cfg.Database.Path != "" {
		database, err := db.Open(cfg.Database.Path)
		if err != nil {
			return nil, err
		}
		s.DB = database
		s.Ledger = ledger.New(database.DB)
	} else {
		log.Info().Msg("No database path configured, transition ledger disabled")
	}

	s.Hue = hue.NewClient(cfg.Hue.Host, cfg.Hue.Token, cfg.Hue.Timeout.Duration())

	return s, nil
}

// Start constructs one reconciler per configured switch and launches their
// poll loops. A reconciler construction error is fatal and aborts startup.
func (s *Services) Start(ctx context.Context) error {
	rcfg := reconcile.Config{
		OnPollInterval:  s.cfg.Reconciler.OnPollInterval.Duration(),
		OffPollInterval: s.cfg.Reconciler.OffPollInterval.Duration(),
		SettleDelay:     s.cfg.Reconciler.SettleDelay.Duration(),
		RetryAttempts:   s.cfg.Reconciler.RetryAttempts,
		BackoffUnit:     s.cfg.Reconciler.BackoffUnit.Duration(),
		RateLimitRPS:    s.cfg.Reconciler.RateLimitRPS,
	}

	var recorder reconcile.Recorder
	if s.Ledger != nil {
		recorder = s.Ledger
	}

	// Deterministic startup order; switches are otherwise independent.
	names := make([]string, 0, len(s.cfg.Switches))
	for name := range s.cfg.Switches {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		swCfg := s.cfg.Switches[name]
		sw := reconcile.Switch{
			Name:     name,
			Triggers: swCfg.TriggerLightIDs,
			Targets:  swCfg.TargetLightIDs,
		}
		r, err := reconcile.New(ctx, s.Hue, sw, rcfg, log.Logger, recorder)
		if err != nil {
			return err
		}
		s.Reconcilers = append(s.Reconcilers, r)
	}

	s.Health = NewHealthService(s.cfg, s.Reconcilers, s.Ledger)
	s.Health.Start(ctx)

	if s.Ledger != nil {
		go s.runLedgerCleanup(ctx)
	}

	for _, r := range s.Reconcilers {
		r := r
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if err := r.Run(ctx); err != nil {
				log.Error().Err(err).Str("switch", r.Name()).Msg("Reconciler error")
			}
		}()
	}

	return nil
}

// runLedgerCleanup periodically removes ledger entries past the retention window.
func (s *Services) runLedgerCleanup(ctx context.Context) {
	retention := time.Duration(s.cfg.Ledger.RetentionDays) * 24 * time.Hour
	ticker := time.NewTicker(s.cfg.Ledger.CleanupInterval.Duration())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deleted, err := s.Ledger.DeleteOlderThan(retention)
			if err != nil {
				log.Error().Err(err).Msg("Failed to clean up old ledger entries")
			} else if deleted > 0 {
				log.Info().Int64("deleted", deleted).Dur("retention", retention).Msg("Cleaned up old ledger entries")
			}
		}
	}
}

// Stop waits for the reconcilers to wind down and releases all resources.
func (s *Services) Stop() error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(s.cfg.ShutdownTimeout.Duration()):
		log.Warn().Msg("Timed out waiting for reconcilers to stop")
	}

	s.Close()
	return nil
}

// Close releases all resources.
func (s *Services) Close() {
	if s.Hue != nil {
		s.Hue.Close()
	}
	if s.DB != nil {
		s.DB.Close()
	}
}
