// Package logging provides a scoped observability bracket: a Scope
// temporarily lowers a logger's minimum level and/or mirrors its events to an
// additional sink, and restores the previous logger on exit.
package logging

import (
	"fmt"
	"io"

	"github.com/rs/zerolog"
)

// ScopeConfig describes what a Scope changes about a logger.
type ScopeConfig struct {
	Level *zerolog.Level // minimum level override, nil = keep current
	Sink  io.Writer      // additional sink, nil = none

	// KeepSinkOpen leaves the sink unclosed on Exit. The default is to
	// close it when it implements io.Closer: the scope owns the sink's
	// lifetime unless the caller opts out.
	KeepSinkOpen bool
}

// Scope holds the state needed to undo an Enter. It is purely an
// observability bracket: it never touches errors flowing through its extent.
type Scope struct {
	logger   *zerolog.Logger
	prev     zerolog.Logger
	cfg      ScopeConfig
	restored bool
}

// LevelPtr is a convenience for building a ScopeConfig literal.
func LevelPtr(l zerolog.Level) *zerolog.Level {
	return &l
}

// Enter swaps the pointed-to logger for a derived one according to cfg and
// returns a Scope that restores it. Callers pair it with a deferred Exit so
// restoration happens on every exit path, panics included.
func Enter(logger *zerolog.Logger, cfg ScopeConfig) *Scope {
	s := &Scope{logger: logger, prev: *logger, cfg: cfg}

	derived := *logger
	if cfg.Level != nil {
		derived = derived.Level(*cfg.Level)
	}
	if cfg.Sink != nil {
		derived = derived.Hook(sinkHook{w: cfg.Sink})
	}
	*logger = derived

	return s
}

// Exit restores the logger saved by Enter and closes the attached sink if
// requested. Safe to call more than once.
func (s *Scope) Exit() {
	if s.restored {
		return
	}
	s.restored = true

	*s.logger = s.prev

	if s.cfg.Sink != nil && !s.cfg.KeepSinkOpen {
		if closer, ok := s.cfg.Sink.(io.Closer); ok {
			closer.Close()
		}
	}
}

// sinkHook mirrors accepted events to an extra writer as plain
// "level: message" lines. The sink is a human-readable side channel, not a
// structured log contract.
type sinkHook struct {
	w io.Writer
}

func (h sinkHook) Run(e *zerolog.Event, level zerolog.Level, msg string) {
	fmt.Fprintf(h.w, "%s: %s\n", level.String(), msg)
}
