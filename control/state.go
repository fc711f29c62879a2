package control

import (
	"fmt"
)

type State int32

const (
	Running State = iota
	// Draining stops intake and lets in-flight work and commits finish
	Draining
	// ShuttingDown aborts in-flight work
	ShuttingDown
	Stopped
)

func (s State) String() string {
	switch s {
	case Running:
		return "Running"
	case Draining:
		return "Draining"
	case ShuttingDown:
		return "ShuttingDown"
	case Stopped:
		return "Stopped"
	default:
		return "Unknown"
	}
}

// CanTransition reports whether the handle may move from s to next.
func (s State) CanTransition(next State) bool {
	switch s {
	case Running:
		return next == Draining || next == ShuttingDown
	case Draining:
		return next == ShuttingDown || next == Stopped
	case ShuttingDown:
		return next == Stopped
	default:
		return false
	}
}

// ValidateTransition returns ErrInvalidTransition when s cannot move to next.
func ValidateTransition(s, next State) error {
	if s.CanTransition(next) {
		return nil
	}

	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s, next)
}
