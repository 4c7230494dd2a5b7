package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDurationAllUnits(t *testing.T) {
	d, err := ParseDuration("1h 2m 3s")
	require.NoError(t, err)
	assert.Equal(t, time.Hour+2*time.Minute+3*time.Second, d)
}

func TestParseDurationSubsetOfUnits(t *testing.T) {
	d, err := ParseDuration("3m 30s")
	require.NoError(t, err)
	assert.Equal(t, 3*time.Minute+30*time.Second, d)
}

func TestParseDurationWhitespaceOptional(t *testing.T) {
	d, err := ParseDuration("1h2m3s")
	require.NoError(t, err)
	assert.Equal(t, time.Hour+2*time.Minute+3*time.Second, d)
}

func TestParseDurationRejectsRepeatedUnit(t *testing.T) {
	_, err := ParseDuration("1m 2m")
	assert.Error(t, err)
}

func TestParseDurationRejectsTrailingDigits(t *testing.T) {
	_, err := ParseDuration("1h 5")
	assert.Error(t, err)
}

func TestParseDurationRejectsUnknownChar(t *testing.T) {
	_, err := ParseDuration("1h 5x")
	assert.Error(t, err)
}

func TestParseDurationRejectsEmpty(t *testing.T) {
	_, err := ParseDuration("")
	assert.Error(t, err)
}

func TestParseDurationRejectsNoUnit(t *testing.T) {
	_, err := ParseDuration("15")
	assert.Error(t, err)
}

func TestDurationUnmarshalText(t *testing.T) {
	var d Duration
	require.NoError(t, d.UnmarshalText([]byte("10m")))
	assert.Equal(t, 10*time.Minute, d.Duration)
}
