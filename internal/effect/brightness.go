package effect

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/energia-project/energia/internal/apperr"
	"github.com/energia-project/energia/internal/schedule"
)

// BrightnessBackend is the capability the brightness effector drives:
// reading and writing the raw backlight level.
type BrightnessBackend interface {
	Current(ctx context.Context) (int, error)
	Set(ctx context.Context, level int) error
}

// Brightness is the [screen_dim] effector. It snapshots the current
// brightness on apply and restores the exact snapshot on rollback. The
// dim target is snapshot * dimPercentage/100, floored at 1.
type Brightness struct {
	backend       BrightnessBackend
	log           *logrus.Entry
	dimPercentage int
	depth         int
	snapshot      int
}

// NewBrightness creates the brightness effector. dimPercentage is clamped
// to [1,100].
func NewBrightness(backend BrightnessBackend, dimPercentage int, log *logrus.Entry) *Brightness {
	if dimPercentage < 1 {
		dimPercentage = 1
	}
	if dimPercentage > 100 {
		dimPercentage = 100
	}
	return &Brightness{backend: backend, dimPercentage: dimPercentage, log: log}
}

func (b *Brightness) Name() string { return "brightness" }

func (b *Brightness) SupportedEffects() []schedule.Name {
	return []schedule.Name{schedule.ScreenDim}
}

func (b *Brightness) Depth() int { return b.depth }

func (b *Brightness) ApplyNext(ctx context.Context) error {
	if b.depth != 0 {
		return nil
	}
	current, err := b.backend.Current(ctx)
	if err != nil {
		return apperr.New(apperr.EffectFailed, "brightness: read current level", err)
	}
	b.snapshot = current

	target := current * b.dimPercentage / 100
	if target < 1 {
		target = 1
	}
	if err := b.backend.Set(ctx, target); err != nil {
		return apperr.New(apperr.EffectFailed, "brightness: dim to target", err)
	}
	b.depth = 1
	b.log.WithField("target", target).Info("screen dimmed")
	return nil
}

func (b *Brightness) RollbackOne(ctx context.Context) error {
	if b.depth != 1 {
		return nil
	}
	if err := b.backend.Set(ctx, b.snapshot); err != nil {
		return apperr.New(apperr.EffectFailed, "brightness: restore snapshot", err)
	}
	b.depth = 0
	b.log.WithField("restored", b.snapshot).Info("screen brightness restored")
	return nil
}

func (b *Brightness) Reset(ctx context.Context) error {
	if b.depth == 0 {
		return nil
	}
	return b.RollbackOne(ctx)
}
