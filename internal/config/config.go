// Package config loads and validates energia's TOML configuration file:
// the schedule.<name> tables, the optional battery/brightness/lock tables,
// and the default path derived from $HOME.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/energia-project/energia/internal/apperr"
	"github.com/energia-project/energia/internal/schedule"
)

// rawConfig mirrors the TOML file shape exactly, before validation.
type rawConfig struct {
	Schedule   map[string]map[string]Duration `toml:"schedule"`
	Battery    rawBattery                     `toml:"battery"`
	Brightness rawBrightness                  `toml:"brightness"`
	Lock       rawLock                        `toml:"lock"`
}

type rawBattery struct {
	LowBatteryPercentage *int `toml:"low_battery_percentage"`
}

type rawBrightness struct {
	DimPercentage int `toml:"dim_percentage"`
}

type rawLock struct {
	Command string   `toml:"command"`
	Args    []string `toml:"args"`
}

// Config is the validated, defaulted configuration the rest of energia is
// built from.
type Config struct {
	Schedules            map[schedule.SetName]schedule.Schedule
	LowBatteryPercentage int
	HasLowBattery        bool
	DimPercentage        int
	LockCommand          string
	LockArgs             []string
	HasLock              bool
}

// DefaultPath returns $HOME/.config/energia/energia.toml, the default
// config path used when -c/--config-file is not given.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = os.Getenv("HOME")
	}
	return filepath.Join(home, ".config", "energia", "energia.toml")
}

// Load reads and validates the config file at path. All validation
// problems are collected and returned together, wrapped as
// apperr.ConfigInvalid, rather than stopping at the first one.
func Load(path string) (*Config, error) {
	var raw rawConfig
	if _, err := toml.DecodeFile(path, &raw); err != nil {
		return nil, apperr.New(apperr.ConfigInvalid, fmt.Sprintf("parse %s", path), err)
	}
	return validate(raw)
}

func validate(raw rawConfig) (*Config, error) {
	var problems []error

	cfg := &Config{
		Schedules:     make(map[schedule.SetName]schedule.Schedule),
		DimPercentage: 10,
	}

	for rawName, effects := range raw.Schedule {
		setName := schedule.SetName(rawName)
		switch setName {
		case schedule.External, schedule.Battery, schedule.LowBattery:
		default:
			problems = append(problems, fmt.Errorf("unknown schedule name %q (want external, battery, or low_battery)", rawName))
			continue
		}

		sched := make(schedule.Schedule, len(effects))
		for rawEffect, dur := range effects {
			name := schedule.Name(rawEffect)
			switch name {
			case schedule.ScreenDim, schedule.ScreenOff, schedule.Lock, schedule.Sleep, schedule.IdleHint:
			default:
				problems = append(problems, fmt.Errorf("schedule.%s: unknown effect name %q", rawName, rawEffect))
				continue
			}
			if dur.Duration < 0 {
				problems = append(problems, fmt.Errorf("schedule.%s.%s: duration must be non-negative", rawName, rawEffect))
				continue
			}
			sched[name] = dur.Duration
		}
		cfg.Schedules[setName] = sched
	}

	if _, hasExternal := cfg.Schedules[schedule.External]; !hasExternal {
		if _, hasBattery := cfg.Schedules[schedule.Battery]; !hasBattery {
			problems = append(problems, errors.New("at least one of schedule.external or schedule.battery must be configured"))
		}
	}

	if raw.Battery.LowBatteryPercentage != nil {
		pct := *raw.Battery.LowBatteryPercentage
		if pct < 0 || pct > 100 {
			problems = append(problems, fmt.Errorf("battery.low_battery_percentage: %d out of range [0,100]", pct))
		}
		cfg.LowBatteryPercentage = pct
		cfg.HasLowBattery = true
		if _, ok := cfg.Schedules[schedule.LowBattery]; !ok {
			problems = append(problems, errors.New("battery.low_battery_percentage is set but schedule.low_battery is not configured"))
		}
	} else if _, ok := cfg.Schedules[schedule.LowBattery]; ok {
		problems = append(problems, errors.New("schedule.low_battery is configured but battery.low_battery_percentage is not set"))
	}

	if raw.Brightness.DimPercentage != 0 {
		if raw.Brightness.DimPercentage < 1 || raw.Brightness.DimPercentage > 100 {
			problems = append(problems, fmt.Errorf("brightness.dim_percentage: %d out of range [1,100]", raw.Brightness.DimPercentage))
		} else {
			cfg.DimPercentage = raw.Brightness.DimPercentage
		}
	}

	if raw.Lock.Command != "" {
		cfg.LockCommand = raw.Lock.Command
		cfg.LockArgs = raw.Lock.Args
		cfg.HasLock = true
	}

	if len(problems) > 0 {
		return nil, apperr.New(apperr.ConfigInvalid, "validation failed", errors.Join(problems...))
	}
	return cfg, nil
}
