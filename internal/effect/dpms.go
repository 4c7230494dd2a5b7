package effect

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/energia-project/energia/internal/apperr"
	"github.com/energia-project/energia/internal/schedule"
)

// DPMSBackend is the capability the dpms effector drives: forcing the
// display off and back on. Rollback must tolerate the display having been
// changed externally -- it always forces on, regardless of prior state.
type DPMSBackend interface {
	ForceOff(ctx context.Context) error
	ForceOn(ctx context.Context) error
}

// DPMS is the [screen_off] effector.
type DPMS struct {
	backend DPMSBackend
	log     *logrus.Entry
	depth   int
}

// NewDPMS creates the dpms effector.
func NewDPMS(backend DPMSBackend, log *logrus.Entry) *DPMS {
	return &DPMS{backend: backend, log: log}
}

func (d *DPMS) Name() string { return "dpms" }

func (d *DPMS) SupportedEffects() []schedule.Name {
	return []schedule.Name{schedule.ScreenOff}
}

func (d *DPMS) Depth() int { return d.depth }

func (d *DPMS) ApplyNext(ctx context.Context) error {
	if d.depth != 0 {
		return nil
	}
	if err := d.backend.ForceOff(ctx); err != nil {
		return apperr.New(apperr.EffectFailed, "dpms: force display off", err)
	}
	d.depth = 1
	d.log.Info("display forced off")
	return nil
}

func (d *DPMS) RollbackOne(ctx context.Context) error {
	if d.depth != 1 {
		return nil
	}
	if err := d.backend.ForceOn(ctx); err != nil {
		return apperr.New(apperr.EffectFailed, "dpms: force display on", err)
	}
	d.depth = 0
	d.log.Info("display forced on")
	return nil
}

func (d *DPMS) Reset(ctx context.Context) error {
	if d.depth == 0 {
		return nil
	}
	return d.RollbackOne(ctx)
}
