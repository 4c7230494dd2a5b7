package effect

import (
	"context"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDPMSBackend struct {
	on bool
}

func (b *fakeDPMSBackend) ForceOff(ctx context.Context) error { b.on = false; return nil }
func (b *fakeDPMSBackend) ForceOn(ctx context.Context) error  { b.on = true; return nil }

func TestDPMSApplyForcesOff(t *testing.T) {
	backend := &fakeDPMSBackend{on: true}
	d := NewDPMS(backend, logrus.NewEntry(logrus.New()))
	require.NoError(t, d.ApplyNext(context.Background()))
	assert.False(t, backend.on)
	assert.Equal(t, 1, d.Depth())
}

func TestDPMSRollbackAlwaysForcesOnRegardlessOfExternalChange(t *testing.T) {
	backend := &fakeDPMSBackend{on: true}
	d := NewDPMS(backend, logrus.NewEntry(logrus.New()))
	ctx := context.Background()

	require.NoError(t, d.ApplyNext(ctx))
	backend.on = false // simulate an external change while off
	require.NoError(t, d.RollbackOne(ctx))
	assert.True(t, backend.on)
	assert.Equal(t, 0, d.Depth())
}
