package effect

import (
	"context"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBrightnessBackend struct {
	level int
}

func (b *fakeBrightnessBackend) Current(ctx context.Context) (int, error) { return b.level, nil }
func (b *fakeBrightnessBackend) Set(ctx context.Context, level int) error {
	b.level = level
	return nil
}

func TestBrightnessDimsToPercentageOfSnapshot(t *testing.T) {
	backend := &fakeBrightnessBackend{level: 200}
	br := NewBrightness(backend, 25, logrus.NewEntry(logrus.New()))

	require.NoError(t, br.ApplyNext(context.Background()))
	assert.Equal(t, 50, backend.level)
}

func TestBrightnessRollbackRestoresExactSnapshot(t *testing.T) {
	backend := &fakeBrightnessBackend{level: 77}
	br := NewBrightness(backend, 50, logrus.NewEntry(logrus.New()))
	ctx := context.Background()

	require.NoError(t, br.ApplyNext(ctx))
	require.NoError(t, br.RollbackOne(ctx))
	assert.Equal(t, 77, backend.level)
}

func TestBrightnessDimTargetFlooredAtOne(t *testing.T) {
	backend := &fakeBrightnessBackend{level: 1}
	br := NewBrightness(backend, 1, logrus.NewEntry(logrus.New()))
	require.NoError(t, br.ApplyNext(context.Background()))
	assert.Equal(t, 1, backend.level)
}

func TestBrightnessDimPercentageClamped(t *testing.T) {
	backend := &fakeBrightnessBackend{level: 100}
	br := NewBrightness(backend, 500, logrus.NewEntry(logrus.New()))
	require.NoError(t, br.ApplyNext(context.Background()))
	assert.Equal(t, 100, backend.level)
}
