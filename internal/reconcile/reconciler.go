// Package reconcile infers a dumb wall switch's position from trigger light
// reachability and drives target lights to match.
package reconcile

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/dokzlo13/switchd/internal/hue"
	"github.com/dokzlo13/switchd/internal/ledger"
	"github.com/dokzlo13/switchd/internal/logging"
	"github.com/dokzlo13/switchd/internal/retry"
)

// LightClient is the hub surface the reconciler needs.
type LightClient interface {
	GetLight(ctx context.Context, lightID int) (hue.Light, error)
	SetLightState(ctx context.Context, lightID int, on bool) error
}

// Recorder receives transition and write-outcome history.
type Recorder interface {
	Append(eventType ledger.EventType, switchName string, payload map[string]any) error
}

// Switch names one configured switch: the trigger lights whose reachability
// proxies the physical position, and the target lights driven to match.
type Switch struct {
	Name     string
	Triggers []int
	Targets  []int
}

// Config contains reconciler timing and retry settings.
type Config struct {
	OnPollInterval  time.Duration // poll interval while position is on
	OffPollInterval time.Duration // poll interval while position is off
	SettleDelay     time.Duration // wait between a state write and its verification read
	RetryAttempts   int
	BackoffUnit     time.Duration
	RateLimitRPS    float64
}

func (c *Config) applyDefaults() {
	if c.OnPollInterval == 0 {
		c.OnPollInterval = 30 * time.Second
	}
	if c.OffPollInterval == 0 {
		c.OffPollInterval = 5 * time.Second
	}
	if c.SettleDelay == 0 {
		c.SettleDelay = 30 * time.Second
	}
	if c.RetryAttempts == 0 {
		c.RetryAttempts = 3
	}
	if c.BackoffUnit == 0 {
		c.BackoffUnit = time.Second
	}
	if c.RateLimitRPS == 0 {
		c.RateLimitRPS = 10.0
	}
}

// Reconciler owns one switch's inferred position and runs its poll loop.
// All state is single-owner: one Reconciler, one goroutine, no sharing
// between switches.
type Reconciler struct {
	client   LightClient
	sw       Switch
	cfg      Config
	logger   zerolog.Logger
	retrier  *retry.Retrier
	limiter  *rate.Limiter
	recorder Recorder

	// on is the inferred switch position. Written by the loop goroutine,
	// read by the health endpoint.
	mu sync.Mutex
	on bool

	// sleep is swappable for tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// New validates the switch definition and seeds the initial position with a
// live reachability probe. A validation error is fatal to the caller; the
// probe itself is fail-to-off and cannot fail construction.
func New(ctx context.Context, client LightClient, sw Switch, cfg Config, logger zerolog.Logger, recorder Recorder) (*Reconciler, error) {
	if len(sw.Triggers) == 0 {
		return nil, fmt.Errorf("switch %q: no trigger lights configured", sw.Name)
	}
	if len(sw.Targets) == 0 {
		return nil, fmt.Errorf("switch %q: no target lights configured", sw.Name)
	}
	cfg.applyDefaults()

	// A fractional rate must still allow single requests through.
	burst := int(cfg.RateLimitRPS)
	if burst < 1 {
		burst = 1
	}

	r := &Reconciler{
		client:   client,
		sw:       sw,
		cfg:      cfg,
		logger:   logger.With().Str("switch", sw.Name).Logger(),
		retrier:  retry.New(cfg.RetryAttempts, cfg.BackoffUnit),
		limiter:  rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), burst),
		recorder: recorder,
		sleep:    sleepCtx,
	}

	r.on = r.probeReachability(ctx)

	return r, nil
}

// Name returns the switch name.
func (r *Reconciler) Name() string {
	return r.sw.Name
}

// Position returns the current inferred switch position.
func (r *Reconciler) Position() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.on
}

func (r *Reconciler) setPosition(on bool) {
	r.mu.Lock()
	r.on = on
	r.mu.Unlock()
}

// Run executes the poll loop until the context is cancelled.
func (r *Reconciler) Run(ctx context.Context) error {
	r.logger.Info().Bool("position", r.Position()).Msg("Switch reconciler started")

	for {
		// Lights linger visible for a while after a physical off, but
		// reappear quickly after an on, so the poll pace is asymmetric.
		interval := r.cfg.OffPollInterval
		if r.Position() {
			interval = r.cfg.OnPollInterval
		}
		if err := r.sleep(ctx, interval); err != nil {
			r.logger.Info().Msg("Switch reconciler stopping")
			return nil
		}

		r.step(ctx)
	}
}

// step performs one poll cycle: probe trigger reachability and reconcile the
// target lights when the inferred position changed.
func (r *Reconciler) step(ctx context.Context) {
	reachable := r.probeReachability(ctx)
	switch {
	case reachable && !r.Position():
		r.transition(ctx, true)
	case !reachable && r.Position():
		r.transition(ctx, false)
	default:
		r.logger.Debug().Bool("position", r.Position()).Msg("Switch position unchanged")
	}
}

// probeReachability scans the trigger lights in configured order and reports
// whether any is reachable. Any query error forces the whole probe to false
// and stops the scan at that trigger: erring toward "lights off" is the safe
// default, and a half-scanned probe must never report reachable.
func (r *Reconciler) probeReachability(ctx context.Context) bool {
	for _, id := range r.sw.Triggers {
		if err := r.limiter.Wait(ctx); err != nil {
			r.logger.Warn().Err(err).Int("light", id).Msg("Probe aborted waiting for rate limiter")
			return false
		}
		light, err := r.client.GetLight(ctx, id)
		if err != nil {
			r.logger.Warn().Err(err).Int("light", id).Msg("Unable to get light status")
			return false
		}
		if light.State.Reachable {
			return true
		}
	}
	return false
}

// transition drives every target light to the new position, best effort per
// light, then records the new position regardless of individual outcomes.
// The whole bracket runs with debug logging enabled so retry detail around a
// flip is captured without raising the daemon's baseline verbosity.
func (r *Reconciler) transition(ctx context.Context, on bool) {
	scope := logging.Enter(&r.logger, logging.ScopeConfig{Level: logging.LevelPtr(zerolog.DebugLevel)})
	defer scope.Exit()

	r.logger.Info().Bool("on", on).Msg("Switch position changed")
	r.record(transitionEvent(on), map[string]any{"targets": r.sw.Targets})

	for _, id := range r.sw.Targets {
		outcome := r.retrier.Do(ctx, r.logger, func(ctx context.Context) error {
			return r.setTargetLight(ctx, id, on)
		})
		if outcome.Succeeded() {
			r.record(ledger.EventTargetWriteOK, map[string]any{
				"light": id, "on": on, "attempts": outcome.Attempts,
			})
			continue
		}
		// Best effort: the light stays out of sync until the next flip,
		// surfaced only through logs and the ledger.
		r.logger.Warn().Err(outcome.Err).Int("light", id).Int("attempts", outcome.Attempts).
			Msg("Giving up on target light")
		r.record(ledger.EventTargetWriteExhausted, map[string]any{
			"light": id, "on": on, "attempts": outcome.Attempts, "error": outcome.Err.Error(),
		})
	}

	r.setPosition(on)
}

// setTargetLight writes the desired on/off state and verifies it took
// effect. Some lights ack the write yet keep their old state, typically when
// a zigbee link is broken, so the state is re-read after a settle delay and
// a mismatch counts as a failed attempt.
func (r *Reconciler) setTargetLight(ctx context.Context, lightID int, on bool) error {
	if err := r.limiter.Wait(ctx); err != nil {
		return err
	}

	r.logger.Info().Int("light", lightID).Bool("on", on).Msg("Writing target light state")
	if err := r.client.SetLightState(ctx, lightID, on); err != nil {
		return err
	}

	if err := r.sleep(ctx, r.cfg.SettleDelay); err != nil {
		return err
	}

	light, err := r.client.GetLight(ctx, lightID)
	if err != nil {
		return err
	}
	if light.State.On != on {
		return fmt.Errorf("light %d reports on=%t, expected on=%t after write", lightID, light.State.On, on)
	}

	return nil
}

func (r *Reconciler) record(eventType ledger.EventType, payload map[string]any) {
	if r.recorder == nil {
		return
	}
	if err := r.recorder.Append(eventType, r.sw.Name, payload); err != nil {
		r.logger.Warn().Err(err).Str("event", string(eventType)).Msg("Failed to record ledger event")
	}
}

func transitionEvent(on bool) ledger.EventType {
	if on {
		return ledger.EventSwitchOn
	}
	return ledger.EventSwitchOff
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
