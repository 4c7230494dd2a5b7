package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindString(t *testing.T) {
	cases := map[Kind]string{
		ConfigInvalid:     "ConfigInvalid",
		SystemUnavailable: "SystemUnavailable",
		SourceUnavailable: "SourceUnavailable",
		EffectFailed:      "EffectFailed",
		LockerSpawnFailed: "LockerSpawnFailed",
		FatalInternal:     "FatalInternal",
		Kind(99):          "Unknown",
	}
	for kind, want := range cases {
		assert.Equal(t, want, kind.String())
	}
}

func TestErrorMessageIncludesCauseWhenPresent(t *testing.T) {
	cause := errors.New("dial failed")
	err := New(SystemUnavailable, "connect to logind", cause)
	assert.Equal(t, "SystemUnavailable: connect to logind: dial failed", err.Error())
	assert.Equal(t, cause, errors.Unwrap(err))
}

func TestErrorMessageOmitsCauseWhenNil(t *testing.T) {
	err := New(FatalInternal, "depth underflow", nil)
	assert.Equal(t, "FatalInternal: depth underflow", err.Error())
}

func TestIsMatchesOnKind(t *testing.T) {
	err := New(EffectFailed, "apply screen_off", nil)
	assert.True(t, Is(err, EffectFailed))
	assert.False(t, Is(err, LockerSpawnFailed))
}

func TestIsFalseForForeignErrors(t *testing.T) {
	assert.False(t, Is(errors.New("plain"), EffectFailed))
	assert.False(t, Is(fmt.Errorf("wrapped: %w", New(EffectFailed, "x", nil)), EffectFailed))
}

func TestExitCodeMapping(t *testing.T) {
	assert.Equal(t, 0, ExitCode(nil))
	assert.Equal(t, 1, ExitCode(New(ConfigInvalid, "bad toml", nil)))
	assert.Equal(t, 2, ExitCode(New(SystemUnavailable, "no dbus", nil)))
	assert.Equal(t, 3, ExitCode(New(SourceUnavailable, "x11 lost", nil)))
	assert.Equal(t, 3, ExitCode(New(EffectFailed, "x", nil)))
	assert.Equal(t, 3, ExitCode(New(LockerSpawnFailed, "x", nil)))
	assert.Equal(t, 3, ExitCode(New(FatalInternal, "x", nil)))
	assert.Equal(t, 3, ExitCode(errors.New("plain")))
}
