package process

import (
	"errors"
	"time"
)

// ProcessState represents the state of a process in the system.
type ProcessState string

const (
	// StateReady indicates the process exists but has not started running.
	StateReady ProcessState = "ready"
	// StateRunning indicates the process registers are loaded and it is executing.
	StateRunning ProcessState = "running"
	// StateTerminated indicates the process has released its resources.
	StateTerminated ProcessState = "terminated"
)

// State transition errors.
var (
	ErrInvalidTransition = errors.New("invalid state transition")
	ErrProcessNotFound   = errors.New("process not found")
)

// StateTransition represents a valid state transition.
type StateTransition struct {
	From ProcessState
	To   ProcessState
}

// ValidTransitions defines all valid state transitions.
var ValidTransitions = []StateTransition{
	// Registers initialized: Ready -> Running
	{From: StateReady, To: StateRunning},
	// Torn down before it ever ran: Ready -> Terminated
	{From: StateReady, To: StateTerminated},
	// Torn down: Running -> Terminated
	{From: StateRunning, To: StateTerminated},
}

// IsValidTransition checks if a state transition is valid.
func IsValidTransition(from, to ProcessState) bool {
	for _, t := range ValidTransitions {
		if t.From == from && t.To == to {
			return true
		}
	}
	return false
}

// TransitionTo attempts to transition the process to a new state.
func (p *Process) TransitionTo(to ProcessState) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.transitionLocked(to)
}

func (p *Process) transitionLocked(to ProcessState) error {
	if !IsValidTransition(p.State, to) {
		return ErrInvalidTransition
	}

	p.State = to

	switch to {
	case StateRunning:
		p.StartedAt = time.Now()
	case StateTerminated:
		p.FinishedAt = time.Now()
	}

	return nil
}

// GetState returns the current state.
func (p *Process) GetState() ProcessState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.State
}

// IsTerminated returns true if the process has terminated.
func (p *Process) IsTerminated() bool {
	return p.GetState() == StateTerminated
}

// TotalLifetime returns the time from creation until termination, or until
// now for a live process.
func (p *Process) TotalLifetime() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lifetimeLocked()
}

func (p *Process) lifetimeLocked() time.Duration {
	if p.State == StateTerminated {
		return p.FinishedAt.Sub(p.CreatedAt)
	}
	return time.Since(p.CreatedAt)
}
