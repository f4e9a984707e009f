// Package supervisor keeps the external plugin runtime alive. It owns the
// restart policy only; spawning and replacing the actual process is the
// injected launch callback's job, so the policy is testable without
// touching exec.
package supervisor

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// State is the runtime lifecycle state.
type State string

const (
	StateStarting   State = "starting"
	StateRunning    State = "running"
	StateCrashed    State = "crashed"
	StateRestarting State = "restarting"
	StateStopped    State = "stopped"
)

// Policy bounds automatic restarts.
type Policy struct {
	// MaxRestarts is the number of restart attempts before the
	// supervisor gives up for good.
	MaxRestarts int
	// Cooldown is slept between a crash and the next attempt.
	Cooldown time.Duration
}

// DefaultPolicy matches the runtime's historical behavior.
func DefaultPolicy() Policy {
	return Policy{MaxRestarts: 5, Cooldown: 200 * time.Millisecond}
}

// Supervisor drives the state machine
// Starting → Running → (Crashed → Restarting → Running)* | Stopped.
type Supervisor struct {
	log    zerolog.Logger
	policy Policy
	launch func() error

	mu            sync.Mutex
	state         State
	crashes       int
	restartsTotal uint64
	terminalErr   error
	cooldown      *time.Timer
	stopped       bool
	lastSuccess   time.Time
}

// New builds a supervisor around launch, which spawns (or replaces) the
// runtime process and returns once it is ready for traffic.
func New(log zerolog.Logger, policy Policy, launch func() error) *Supervisor {
	if policy.MaxRestarts <= 0 {
		policy.MaxRestarts = DefaultPolicy().MaxRestarts
	}
	if policy.Cooldown <= 0 {
		policy.Cooldown = DefaultPolicy().Cooldown
	}
	return &Supervisor{log: log, policy: policy, launch: launch, state: StateStarting}
}

// Start performs the initial launch. A failure here enters the same
// crash/restart cycle as a mid-flight failure.
func (s *Supervisor) Start() error {
	err := s.launch()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		s.state = StateStopped
		return nil
	}
	if err != nil {
		s.log.Error().Err(err).Msg("runtime failed to start")
		s.crashLocked(err)
		return err
	}
	s.state = StateRunning
	return nil
}

// Do wraps one round trip against the runtime. A round-trip error marks the
// runtime crashed and schedules a restart; success resets the consecutive
// crash counter. While the runtime is not running, Do fails fast with a
// not-running error and never invokes roundTrip.
func (s *Supervisor) Do(roundTrip func() error) error {
	s.mu.Lock()
	if s.state != StateRunning {
		state := s.state
		s.mu.Unlock()
		return ErrNotRunning(state)
	}
	s.mu.Unlock()

	err := roundTrip()

	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		s.crashes = 0
		s.lastSuccess = time.Now()
		return nil
	}
	if s.state == StateRunning {
		s.log.Warn().Err(err).Msg("runtime round trip failed")
		s.crashLocked(err)
	}
	return err
}

// crashLocked counts a crash and either schedules the next attempt or goes
// terminal. Caller holds mu.
func (s *Supervisor) crashLocked(cause error) {
	if s.stopped || s.state == StateStopped {
		return
	}
	s.crashes++
	if s.crashes > s.policy.MaxRestarts {
		s.state = StateStopped
		s.terminalErr = ErrExhausted(s.crashes, cause)
		s.log.Error().Int("crashes", s.crashes).Err(cause).
			Msg("restart budget exhausted, runtime stopped")
		return
	}
	s.state = StateCrashed
	s.log.Warn().Int("attempt", s.crashes).Int("max", s.policy.MaxRestarts).
		Dur("cooldown", s.policy.Cooldown).Msg("scheduling runtime restart")
	s.cooldown = time.AfterFunc(s.policy.Cooldown, s.restart)
}

// restart fires after the cooldown.
func (s *Supervisor) restart() {
	s.mu.Lock()
	if s.stopped || s.state == StateStopped {
		s.mu.Unlock()
		return
	}
	s.state = StateRestarting
	s.restartsTotal++
	s.mu.Unlock()

	err := s.launch()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		s.state = StateStopped
		return
	}
	if err != nil {
		s.crashLocked(err)
		return
	}
	s.state = StateRunning
	s.log.Info().Uint64("restarts_total", s.restartsTotal).Msg("runtime restarted")
}

// Stop halts supervision immediately. A pending cooldown restart is
// cancelled; an intentional stop never counts as a crash and leaves no
// terminal error.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	s.state = StateStopped
	if s.cooldown != nil {
		s.cooldown.Stop()
		s.cooldown = nil
	}
}

// State reports the current lifecycle state.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// TerminalErr returns the exhaustion error after the supervisor has given
// up, nil otherwise (including after an intentional Stop).
func (s *Supervisor) TerminalErr() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.terminalErr
}

// Crashes reports the current consecutive crash count.
func (s *Supervisor) Crashes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.crashes
}

// RestartsTotal reports how many restart attempts have been made over the
// supervisor's lifetime.
func (s *Supervisor) RestartsTotal() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.restartsTotal
}
