package effect

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/energia-project/energia/internal/apperr"
	"github.com/energia-project/energia/internal/schedule"
)

// SessionBus is the logind session proxy capability the session effector
// needs: setting the session's IdleHint property.
type SessionBus interface {
	SetIdleHint(ctx context.Context, idle bool) error
}

// Session is the [idle_hint] effector. It sets IdleHint=true on apply and
// false on rollback.
type Session struct {
	bus   SessionBus
	log   *logrus.Entry
	depth int
}

// NewSession creates the session effector.
func NewSession(bus SessionBus, log *logrus.Entry) *Session {
	return &Session{bus: bus, log: log}
}

func (s *Session) Name() string { return "session" }

func (s *Session) SupportedEffects() []schedule.Name {
	return []schedule.Name{schedule.IdleHint}
}

func (s *Session) Depth() int { return s.depth }

func (s *Session) ApplyNext(ctx context.Context) error {
	if s.depth != 0 {
		return nil
	}
	if err := s.bus.SetIdleHint(ctx, true); err != nil {
		return apperr.New(apperr.EffectFailed, "session: set IdleHint=true", err)
	}
	s.depth = 1
	s.log.Info("idle hint set")
	return nil
}

func (s *Session) RollbackOne(ctx context.Context) error {
	if s.depth != 1 {
		return nil
	}
	if err := s.bus.SetIdleHint(ctx, false); err != nil {
		return apperr.New(apperr.EffectFailed, "session: set IdleHint=false", err)
	}
	s.depth = 0
	s.log.Info("idle hint cleared")
	return nil
}

func (s *Session) Reset(ctx context.Context) error {
	if s.depth == 0 {
		return nil
	}
	return s.RollbackOne(ctx)
}
