// Package controller implements the Environment Controller: the
// top-level state machine that owns the effectors, the idleness source,
// the schedule selector and the sequencer, and drives them from one
// serialized event loop.
package controller

import "fmt"

// Phase is one of the Environment Controller's top-level states.
type Phase int

const (
	// Active: no idleness episode in progress.
	Active Phase = iota
	// Idle: an idleness episode is running against a sequencer.
	Idle
	// Suspending: a pre-sleep signal is being handled.
	Suspending
	// ShuttingDown: terminating, rolling back all effectors.
	ShuttingDown
)

func (p Phase) String() string {
	switch p {
	case Active:
		return "Active"
	case Idle:
		return "Idle"
	case Suspending:
		return "Suspending"
	case ShuttingDown:
		return "ShuttingDown"
	default:
		return fmt.Sprintf("Phase(%d)", int(p))
	}
}
