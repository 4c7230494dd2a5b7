package config

import (
	"testing"

	"github.com/BurntSushi/toml"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/energia-project/energia/internal/schedule"
)

func decode(t *testing.T, doc string) (*Config, error) {
	t.Helper()
	var raw rawConfig
	_, err := toml.Decode(doc, &raw)
	require.NoError(t, err)
	return validate(raw)
}

func TestValidateAcceptsMinimalSchedule(t *testing.T) {
	cfg, err := decode(t, `
[schedule.external]
screen_dim = "3m"
screen_off = "3m 30s"
`)
	require.NoError(t, err)
	require.Contains(t, cfg.Schedules, schedule.External)
	assert.Equal(t, 10, cfg.DimPercentage)
}

func TestValidateRejectsNoSchedule(t *testing.T) {
	_, err := decode(t, `
[battery]
low_battery_percentage = 10
`)
	assert.Error(t, err)
}

func TestValidateRejectsUnknownScheduleName(t *testing.T) {
	_, err := decode(t, `
[schedule.bogus]
screen_dim = "1m"
`)
	assert.Error(t, err)
}

func TestValidateRejectsUnknownEffectName(t *testing.T) {
	_, err := decode(t, `
[schedule.external]
not_a_real_effect = "1m"
`)
	assert.Error(t, err)
}

func TestValidateRequiresLowBatteryScheduleWhenThresholdSet(t *testing.T) {
	_, err := decode(t, `
[schedule.external]
screen_dim = "1m"

[battery]
low_battery_percentage = 15
`)
	assert.Error(t, err)
}

func TestValidateRequiresThresholdWhenLowBatteryScheduleSet(t *testing.T) {
	_, err := decode(t, `
[schedule.external]
screen_dim = "1m"

[schedule.low_battery]
screen_off = "30s"
`)
	assert.Error(t, err)
}

func TestValidateAcceptsCompleteLowBatteryConfig(t *testing.T) {
	cfg, err := decode(t, `
[schedule.external]
screen_dim = "3m"

[schedule.low_battery]
screen_off = "30s"

[battery]
low_battery_percentage = 15

[brightness]
dim_percentage = 40

[lock]
command = "/usr/bin/swaylock"
args = ["-f"]
`)
	require.NoError(t, err)
	assert.Equal(t, 15, cfg.LowBatteryPercentage)
	assert.Equal(t, 40, cfg.DimPercentage)
	assert.True(t, cfg.HasLock)
	assert.Equal(t, "/usr/bin/swaylock", cfg.LockCommand)
}

func TestValidateCollectsAllProblems(t *testing.T) {
	_, err := decode(t, `
[schedule.bogus]
also_bogus = "1m"

[brightness]
dim_percentage = 200
`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "validation failed")
	assert.Contains(t, err.Error(), "unknown schedule name")
	assert.Contains(t, err.Error(), "brightness.dim_percentage")
}
