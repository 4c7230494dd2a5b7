// Package sequencer implements the Effect Sequencer: the per-schedule
// driver that advances or retracts each effector's depth so applied
// effects match what the schedule prescribes at the current point in an
// idleness episode.
package sequencer

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/energia-project/energia/internal/effect"
	"github.com/energia-project/energia/internal/schedule"
)

// Clock abstracts wall-clock time so episodes can be driven by a fake
// clock in tests.
type Clock interface {
	Now() time.Time
}

// Armer is the idleness source capability the sequencer needs: arming the
// next threshold, and disarming when inhibited or when an episode ends.
type Armer interface {
	Arm(ctx context.Context, threshold time.Duration) error
	Disarm(ctx context.Context) error
}

// Sequencer drives one idleness episode against a schedule's compiled step
// list. A new Sequencer is created per episode by the Environment
// Controller.
type Sequencer struct {
	steps     schedule.StepList
	registry  *effect.Registry
	armer     Armer
	clock     Clock
	log       *logrus.Entry

	episodeStart time.Time
	g            int // count of steps processed so far against `steps`
	inhibited    bool
	applyOrder   []schedule.Name // names currently applied, in fire order
	skipped      map[schedule.Name]bool
}

// New creates a Sequencer for the given schedule.
func New(steps schedule.StepList, registry *effect.Registry, armer Armer, clock Clock, log *logrus.Entry) *Sequencer {
	return &Sequencer{
		steps:    steps,
		registry: registry,
		armer:    armer,
		clock:    clock,
		log:      log,
		skipped:  make(map[schedule.Name]bool),
	}
}

// StartEpisode resets sequencer state for a new idleness episode starting
// now, and arms the idleness source for the first step.
func (s *Sequencer) StartEpisode(ctx context.Context, now time.Time) error {
	s.episodeStart = now
	s.g = 0
	s.inhibited = false
	s.applyOrder = nil
	s.skipped = make(map[schedule.Name]bool)
	return s.armNext(ctx)
}

// Elapsed returns the current inactivity duration relative to episode
// start.
func (s *Sequencer) Elapsed() time.Duration {
	return s.clock.Now().Sub(s.episodeStart)
}

// OnThresholdReached processes all steps now due given the current
// inactivity duration, subject to the inhibitor gate, then re-arms for the
// next pending step.
func (s *Sequencer) OnThresholdReached(ctx context.Context) error {
	return s.advanceTo(ctx, s.Elapsed())
}

// advanceTo performs every not-yet-fired step whose offset is <= elapsed,
// in step-list order, as long as idle is not inhibited. A step whose name
// is already applied (e.g. carried over by a schedule change that
// deferred g without deferring an already-live effect) is passed over
// without a redundant ApplyNext.
func (s *Sequencer) advanceTo(ctx context.Context, elapsed time.Duration) error {
	for !s.inhibited && s.g < len(s.steps) && s.steps[s.g].Offset <= elapsed {
		name := s.steps[s.g].Name
		if !s.isApplied(name) && s.attemptApply(ctx, name) {
			s.applyOrder = append(s.applyOrder, name)
		}
		s.g++
	}
	return s.armNext(ctx)
}

// isApplied reports whether name is currently in the applied set.
func (s *Sequencer) isApplied(name schedule.Name) bool {
	for _, n := range s.applyOrder {
		if n == name {
			return true
		}
	}
	return false
}

// attemptApply routes name to its owning effector and calls ApplyNext. A
// name already marked skipped (a prior EffectFailed this episode) is not
// retried. Returns whether the effect was actually applied.
func (s *Sequencer) attemptApply(ctx context.Context, name schedule.Name) bool {
	if s.skipped[name] {
		return false
	}
	owner, ok := s.registry.Lookup(name)
	if !ok {
		s.log.WithField("effect", name).Warn("no effector registered for scheduled effect; skipping")
		s.skipped[name] = true
		return false
	}
	if err := owner.ApplyNext(ctx); err != nil {
		s.log.WithError(err).WithField("effect", name).Warn("effect failed; skipped for remainder of episode")
		s.skipped[name] = true
		return false
	}
	return true
}

// armNext arms the idleness source for the next pending step, or disarms
// if the episode is inhibited or exhausted.
func (s *Sequencer) armNext(ctx context.Context) error {
	if s.inhibited || s.g >= len(s.steps) {
		return s.armer.Disarm(ctx)
	}
	return s.armer.Arm(ctx, s.steps[s.g].Offset)
}

// OnActivity rolls back every currently-applied effect in reverse fire
// order and ends the episode. A second call with nothing applied is a
// no-op (idempotent).
func (s *Sequencer) OnActivity(ctx context.Context) error {
	if len(s.applyOrder) == 0 {
		return s.armer.Disarm(ctx)
	}
	for i := len(s.applyOrder) - 1; i >= 0; i-- {
		name := s.applyOrder[i]
		if owner, ok := s.registry.Lookup(name); ok {
			if err := owner.RollbackOne(ctx); err != nil {
				s.log.WithError(err).WithField("effect", name).Warn("rollback failed")
			}
		}
	}
	s.applyOrder = nil
	s.g = 0
	s.inhibited = false
	s.skipped = make(map[schedule.Name]bool)
	return s.armer.Disarm(ctx)
}

// OnInhibitorChange freezes (idleInhibited=true) or resumes
// (idleInhibited=false) the episode clock's effect on firing. Inhibition
// gates action, not accounting: time is not reset, it is just not acted
// upon while frozen. On resume, any steps whose offset is now <= the
// current inactivity fire immediately, in order.
func (s *Sequencer) OnInhibitorChange(ctx context.Context, idleInhibited bool) error {
	if idleInhibited {
		if s.inhibited {
			return nil
		}
		s.inhibited = true
		return s.armer.Disarm(ctx)
	}
	if !s.inhibited {
		return nil
	}
	s.inhibited = false
	return s.advanceTo(ctx, s.Elapsed())
}

// OnScheduleChange swaps in a newly-selected schedule's step list,
// recomputed against the same episode start. Steps already past in the
// new schedule that were not yet fired are fired immediately, in order,
// unless the episode is currently inhibited -- applying is gated by the
// same freeze advanceTo observes, so a schedule change during an
// inhibited episode only rolls back what's no longer due and leaves the
// rest to the catch-up advanceTo runs when the inhibitor clears. Steps
// that were fired but no longer exist at an offset <= current inactivity
// are rolled back, in reverse fire order, regardless of inhibition.
func (s *Sequencer) OnScheduleChange(ctx context.Context, newSteps schedule.StepList) error {
	elapsed := s.Elapsed()
	cut := newSteps.IndexAtOrBefore(elapsed)

	due := make(map[schedule.Name]bool, cut+1)
	var dueOrder []schedule.Name
	for i := 0; i <= cut; i++ {
		n := newSteps[i].Name
		due[n] = true
		dueOrder = append(dueOrder, n)
	}

	// Roll back anything currently applied that is no longer due.
	kept := s.applyOrder[:0:0]
	for i := len(s.applyOrder) - 1; i >= 0; i-- {
		name := s.applyOrder[i]
		if due[name] {
			continue
		}
		if owner, ok := s.registry.Lookup(name); ok {
			if err := owner.RollbackOne(ctx); err != nil {
				s.log.WithError(err).WithField("effect", name).Warn("rollback failed during schedule change")
			}
		}
	}
	for _, name := range s.applyOrder {
		if due[name] {
			kept = append(kept, name)
		}
	}
	s.applyOrder = kept

	applied := make(map[schedule.Name]bool, len(s.applyOrder))
	for _, n := range s.applyOrder {
		applied[n] = true
	}

	// Fire anything due under the new schedule that isn't already applied.
	// Gated by the inhibitor freeze like advanceTo: while inhibited, no
	// apply_next may be invoked, so any due-but-unapplied step here is
	// left for the first advanceTo after OnInhibitorChange(ctx, false).
	if !s.inhibited {
		for _, name := range dueOrder {
			if applied[name] {
				continue
			}
			if s.attemptApply(ctx, name) {
				s.applyOrder = append(s.applyOrder, name)
				applied[name] = true
			}
		}
	}

	s.steps = newSteps
	// g is the first not-yet-applied index in the new step list, not
	// simply cut+1: while inhibited, steps up to cut may still be
	// pending, and advanceTo must pick them back up from there.
	g := 0
	for g < len(newSteps) && applied[newSteps[g].Name] {
		g++
	}
	s.g = g
	return s.armNext(ctx)
}

// Snapshot returns the names currently applied, in fire order, for
// diagnostics and tests.
func (s *Sequencer) Snapshot() []schedule.Name {
	out := make([]schedule.Name, len(s.applyOrder))
	copy(out, s.applyOrder)
	return out
}
