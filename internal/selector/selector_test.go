package selector

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/energia-project/energia/internal/schedule"
)

func TestEvaluateFirstCallAlwaysChanges(t *testing.T) {
	s := New(true, false, 0)
	name, changed := s.Evaluate(AC, UnknownBatteryPercent)
	assert.True(t, changed)
	assert.Equal(t, schedule.External, name)
}

func TestEvaluateBaselineFallsBackToExternalWithoutBatterySchedule(t *testing.T) {
	s := New(false, false, 0)
	name, _ := s.Evaluate(Battery, 50)
	assert.Equal(t, schedule.External, name)
}

func TestEvaluateSwitchesToBatteryBaseline(t *testing.T) {
	s := New(true, false, 0)
	s.Evaluate(AC, UnknownBatteryPercent)
	name, changed := s.Evaluate(Battery, 50)
	assert.True(t, changed)
	assert.Equal(t, schedule.Battery, name)
}

func TestEvaluateLowBatteryThreshold(t *testing.T) {
	s := New(true, true, 20)
	s.Evaluate(Battery, 50)
	name, changed := s.Evaluate(Battery, 20)
	assert.True(t, changed)
	assert.Equal(t, schedule.LowBattery, name)
}

func TestEvaluateUnknownBatteryPercentNeverTriggersLowBattery(t *testing.T) {
	s := New(true, true, 20)
	name, _ := s.Evaluate(Battery, UnknownBatteryPercent)
	assert.Equal(t, schedule.Battery, name)
}

func TestEvaluateNoChangeWhenSelectionStable(t *testing.T) {
	s := New(true, false, 0)
	s.Evaluate(AC, UnknownBatteryPercent)
	_, changed := s.Evaluate(AC, UnknownBatteryPercent)
	assert.False(t, changed)
}

func TestEvaluateAcSourceAlwaysExternalEvenWithLowBatteryConfigured(t *testing.T) {
	s := New(true, true, 90)
	name, _ := s.Evaluate(AC, 10)
	assert.Equal(t, schedule.External, name)
}
