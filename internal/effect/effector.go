// Package effect implements the five concrete effectors and the uniform
// contract the sequencer and controller dispatch against: apply the next
// effect, roll one back, or reset to depth zero. Depth is an ordinal, not a
// bitmap -- the type never lets a caller apply effects[1] without having
// applied effects[0] first.
package effect

import (
	"context"

	"github.com/energia-project/energia/internal/schedule"
)

// Effector owns an ordered list of effects it can apply and roll back,
// driven by a single cursor, depth, in [0, len(SupportedEffects())].
type Effector interface {
	// Name is the effector's stable identity (brightness, dpms, lock,
	// sleep, session).
	Name() string

	// SupportedEffects returns the ordered list of effects this effector
	// owns.
	SupportedEffects() []schedule.Name

	// Depth returns the effector's current depth.
	Depth() int

	// ApplyNext applies effects[Depth()] and increments Depth on success.
	// Depth is unchanged if the underlying system refuses (EffectFailed).
	ApplyNext(ctx context.Context) error

	// RollbackOne rolls back effects[Depth()-1] and decrements Depth. For
	// effects declared non-rollbackable, this is a no-op besides the
	// depth decrement.
	RollbackOne(ctx context.Context) error

	// Reset rolls back everything rollbackable and sets Depth to 0.
	Reset(ctx context.Context) error
}

// NonRollbackable is implemented by effectors that declare one or more of
// their effects as non-rollbackable (lock, sleep); RollbackOne on such an
// effect is a no-op that still decrements depth.
type NonRollbackable interface {
	// IsRollbackable reports whether the effect at the given depth index
	// (0-based, i.e. effects[idx]) can actually be undone.
	IsRollbackable(idx int) bool
}
