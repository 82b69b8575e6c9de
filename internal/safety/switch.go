// Package safety implements the process-wide trading switch. The switch
// gates every new entry and can force liquidation of the whole book; its
// failure mode is always "trading disabled".
package safety

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// State is the trading switch state.
type State int

const (
	Active State = iota
	Paused
	EmergencyStop
)

func (s State) String() string {
	switch s {
	case Active:
		return "active"
	case Paused:
		return "paused"
	case EmergencyStop:
		return "emergency_stop"
	default:
		return "unknown"
	}
}

// ParseState maps a stored string back to a State. Anything unrecognized
// reads as EmergencyStop so a corrupt record can never enable trading.
func ParseState(s string) State {
	switch s {
	case "active":
		return Active
	case "paused":
		return Paused
	default:
		return EmergencyStop
	}
}

// StateStore persists the switch state so a restart resumes where the
// previous process left off.
type StateStore interface {
	LoadState(ctx context.Context) (State, error)
	SaveState(ctx context.Context, state State, reason string) error
}

// Liquidator closes every open position. Wired to the position manager's
// emergency close path.
type Liquidator interface {
	LiquidateAll(ctx context.Context, reason string) error
}

// LiquidatorFunc adapts a function to the Liquidator interface.
type LiquidatorFunc func(ctx context.Context, reason string) error

func (f LiquidatorFunc) LiquidateAll(ctx context.Context, reason string) error {
	return f(ctx, reason)
}

// Config holds the automatic-trip parameters.
type Config struct {
	// MaxDrawdownPct is the portfolio drawdown that trips EMERGENCY_STOP.
	MaxDrawdownPct float64 `yaml:"max_drawdown_pct"`
}

// DefaultConfig returns the production trip levels.
func DefaultConfig() Config {
	return Config{MaxDrawdownPct: 20.0}
}

// Switch is the single trading-enabled authority. Manual pause and resume
// move between ACTIVE and PAUSED only; EMERGENCY_STOP is entered by the
// drawdown guard or an explicit emergency command and cleared only by an
// explicit manual action.
type Switch struct {
	mu         sync.Mutex
	state      State
	reason     string
	changedAt  time.Time
	unsaved    bool
	config     Config
	store      StateStore
	liquidator Liquidator
	listener   func(State)
}

// NewSwitch restores the persisted state and returns the switch. If the
// store cannot be read the switch starts PAUSED: an unreadable state is
// treated as trading disabled.
func NewSwitch(ctx context.Context, config Config, store StateStore, liquidator Liquidator) *Switch {
	if config.MaxDrawdownPct <= 0 {
		config = DefaultConfig()
	}
	sw := &Switch{
		state:      Active,
		config:     config,
		store:      store,
		liquidator: liquidator,
		changedAt:  time.Now().UTC(),
	}

	if store != nil {
		state, err := store.LoadState(ctx)
		if err != nil {
			sw.state = Paused
			sw.reason = "state store unreadable at startup"
			log.Warn().Err(err).Msg("safety state unreadable, starting paused")
		} else {
			sw.state = state
		}
	}
	return sw
}

// State returns the current switch state.
func (s *Switch) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Reason returns the explanation recorded with the last transition.
func (s *Switch) Reason() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reason
}

// MaxDrawdown returns the drawdown limit that trips the guard.
func (s *Switch) MaxDrawdown() float64 {
	return s.config.MaxDrawdownPct
}

// OnTransition registers a callback invoked with the new state after every
// transition, and immediately with the current state. The callback must not
// block or call back into the switch.
func (s *Switch) OnTransition(fn func(State)) {
	s.mu.Lock()
	s.listener = fn
	state := s.state
	s.mu.Unlock()

	if fn != nil {
		fn(state)
	}
}

// TradingEnabled reports whether new entries are permitted. When a state
// store is wired it is re-read so an externally flipped switch takes
// effect; any read error reads as disabled. A store read never overrides a
// protective state that has not yet been persisted: until the missed write
// lands, the stale record would otherwise silently clear the stop.
func (s *Switch) TradingEnabled(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.store != nil {
		if s.unsaved {
			if err := s.store.SaveState(ctx, s.state, s.reason); err != nil {
				log.Error().Err(err).Str("state", s.state.String()).Msg("safety state still unpersisted")
			} else {
				s.unsaved = false
			}
		}

		state, err := s.store.LoadState(ctx)
		if err != nil {
			log.Error().Err(err).Msg("safety state unreadable, treating trading as disabled")
			return false
		}
		if !s.unsaved || state > s.state {
			s.state = state
		}
	}
	return s.state == Active
}

// Pause moves ACTIVE to PAUSED. No effect on EMERGENCY_STOP.
func (s *Switch) Pause(ctx context.Context, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == EmergencyStop {
		return fmt.Errorf("cannot pause: switch is in %s", s.state)
	}
	return s.transition(ctx, Paused, reason)
}

// Resume moves PAUSED back to ACTIVE. An emergency stop cannot be resumed
// directly; it must be cleared first.
func (s *Switch) Resume(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == EmergencyStop {
		return fmt.Errorf("cannot resume: switch is in %s, clear the emergency first", s.state)
	}
	return s.transition(ctx, Active, "manual resume")
}

// Emergency forces EMERGENCY_STOP and liquidates all open positions.
func (s *Switch) Emergency(ctx context.Context, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.trip(ctx, reason)
}

// ClearEmergency moves EMERGENCY_STOP to PAUSED. Trading stays disabled
// until an operator resumes explicitly.
func (s *Switch) ClearEmergency(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != EmergencyStop {
		return fmt.Errorf("cannot clear emergency: switch is in %s", s.state)
	}
	return s.transition(ctx, Paused, "emergency cleared manually")
}

// CheckDrawdown trips EMERGENCY_STOP when the portfolio drawdown reaches
// the configured limit. Returns true if the guard tripped on this call.
func (s *Switch) CheckDrawdown(ctx context.Context, drawdownPct float64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if drawdownPct < s.config.MaxDrawdownPct || s.state == EmergencyStop {
		return false, nil
	}

	reason := fmt.Sprintf("drawdown %.2f%% breached limit %.2f%%", drawdownPct, s.config.MaxDrawdownPct)
	if err := s.trip(ctx, reason); err != nil {
		return true, err
	}
	return true, nil
}

// trip and transition expect s.mu held.

func (s *Switch) trip(ctx context.Context, reason string) error {
	if err := s.transition(ctx, EmergencyStop, reason); err != nil {
		return err
	}

	if s.liquidator != nil {
		if err := s.liquidator.LiquidateAll(ctx, reason); err != nil {
			// The stop stands even when liquidation fails; the book is
			// frozen and the failure is surfaced for operator action.
			log.Error().Err(err).Msg("emergency liquidation failed")
			return fmt.Errorf("emergency stop set, liquidation failed: %w", err)
		}
	}
	return nil
}

func (s *Switch) transition(ctx context.Context, next State, reason string) error {
	if s.store != nil {
		if err := s.store.SaveState(ctx, next, reason); err != nil {
			if next == Active {
				// Enabling trading requires a durable record; a failed
				// write leaves the switch where it was.
				return fmt.Errorf("failed to persist state %s: %w", next, err)
			}
			// Protective transitions apply in memory even when the write
			// fails; the missed write is retried on the next enablement
			// check and blocks stale store reads until it lands.
			log.Error().Err(err).Str("state", next.String()).Msg("failed to persist safety state")
			s.unsaved = true
		} else {
			s.unsaved = false
		}
	}

	prev := s.state
	s.state = next
	s.reason = reason
	s.changedAt = time.Now().UTC()

	log.Warn().
		Str("from", prev.String()).
		Str("to", next.String()).
		Str("reason", reason).
		Msg("safety switch transition")

	if s.listener != nil {
		s.listener(next)
	}
	return nil
}
