package effect

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/energia-project/energia/internal/apperr"
	"github.com/energia-project/energia/internal/schedule"
)

// SuspendBus is the capability the sleep effector drives: logind's
// Suspend(false) call.
type SuspendBus interface {
	Suspend(ctx context.Context) error
}

// Sleep is the [sleep] effector. Non-rollbackable: rollback only
// decrements depth, it never "un-suspends".
type Sleep struct {
	bus   SuspendBus
	log   *logrus.Entry
	depth int
}

// NewSleep creates the sleep effector.
func NewSleep(bus SuspendBus, log *logrus.Entry) *Sleep {
	return &Sleep{bus: bus, log: log}
}

func (s *Sleep) Name() string { return "sleep" }

func (s *Sleep) SupportedEffects() []schedule.Name {
	return []schedule.Name{schedule.Sleep}
}

func (s *Sleep) IsRollbackable(idx int) bool { return false }

func (s *Sleep) Depth() int { return s.depth }

func (s *Sleep) ApplyNext(ctx context.Context) error {
	if s.depth != 0 {
		return nil
	}
	if err := s.bus.Suspend(ctx); err != nil {
		return apperr.New(apperr.EffectFailed, "sleep: suspend", err)
	}
	s.depth = 1
	s.log.Info("suspend requested")
	return nil
}

func (s *Sleep) RollbackOne(ctx context.Context) error {
	if s.depth > 0 {
		s.depth--
	}
	return nil
}

func (s *Sleep) Reset(ctx context.Context) error {
	s.depth = 0
	return nil
}
