package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompileSynthesizesIdleHintAtMinOffset(t *testing.T) {
	sched := Schedule{
		ScreenDim: 3 * time.Minute,
		Lock:      3 * time.Minute,
		ScreenOff: 3*time.Minute + 30*time.Second,
		Sleep:     10 * time.Minute,
	}

	steps := Compile(sched)
	require.NotEmpty(t, steps)
	assert.Equal(t, IdleHint, steps[0].Name)
	assert.Equal(t, 3*time.Minute, steps[0].Offset)
}

func TestCompileTieBreakOrderMatchesScenarioS4(t *testing.T) {
	sched := Schedule{
		ScreenDim: 3 * time.Minute,
		Lock:      3 * time.Minute,
		ScreenOff: 3 * time.Minute,
		Sleep:     10 * time.Minute,
	}

	steps := Compile(sched)
	require.Len(t, steps, 5)

	var names []Name
	for _, s := range steps[:4] {
		names = append(names, s.Name)
	}
	assert.Equal(t, []Name{IdleHint, ScreenDim, ScreenOff, Lock}, names)
}

func TestCompileDoesNotDuplicateExplicitIdleHint(t *testing.T) {
	sched := Schedule{
		IdleHint:  time.Minute,
		ScreenDim: 2 * time.Minute,
	}
	steps := Compile(sched)
	count := 0
	for _, s := range steps {
		if s.Name == IdleHint {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestIndexAtOrBefore(t *testing.T) {
	steps := StepList{
		{Offset: time.Minute, Name: IdleHint},
		{Offset: 2 * time.Minute, Name: ScreenDim},
		{Offset: 3 * time.Minute, Name: ScreenOff},
	}

	assert.Equal(t, -1, steps.IndexAtOrBefore(30*time.Second))
	assert.Equal(t, 0, steps.IndexAtOrBefore(time.Minute))
	assert.Equal(t, 1, steps.IndexAtOrBefore(2*time.Minute+30*time.Second))
	assert.Equal(t, 2, steps.IndexAtOrBefore(time.Hour))
}

func TestRankUnknownNameSortsLast(t *testing.T) {
	assert.Greater(t, Rank(Name("bogus")), Rank(Sleep))
}
