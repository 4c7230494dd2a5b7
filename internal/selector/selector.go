// Package selector implements the Schedule Selector: a small state machine
// that converts power source and battery percentage into the name of the
// currently applicable schedule, emitting a change notification only when
// the selection actually changes.
package selector

import "github.com/energia-project/energia/internal/schedule"

// Source identifies the machine's current power source.
type Source int

const (
	AC Source = iota
	Battery
)

// UnknownBatteryPercent is used when upower cannot report a battery
// percentage; it is always treated as "above threshold" and never
// triggers low_battery.
const UnknownBatteryPercent = -1

// Selector holds the configured schedule set and the last-emitted
// selection.
type Selector struct {
	hasBattery    bool
	hasLowBattery bool
	lowBatteryPct int

	current schedule.SetName
	primed  bool
}

// New creates a Selector. hasBattery/hasLowBattery report which optional
// named schedules were configured; lowBatteryPct is the configured
// threshold (meaningless if hasLowBattery is false).
func New(hasBattery, hasLowBattery bool, lowBatteryPct int) *Selector {
	return &Selector{hasBattery: hasBattery, hasLowBattery: hasLowBattery, lowBatteryPct: lowBatteryPct}
}

// Evaluate computes the applicable schedule name for the given power
// state and reports whether it differs from the previously evaluated
// name (schedule_change). The first call always reports changed=true so
// callers can pick up the initial schedule.
func (s *Selector) Evaluate(source Source, batteryPercent int) (name schedule.SetName, changed bool) {
	baseline := schedule.External
	if s.hasBattery && source == Battery {
		baseline = schedule.Battery
	}

	active := baseline
	if s.hasLowBattery && source == Battery && batteryPercent != UnknownBatteryPercent && batteryPercent <= s.lowBatteryPct {
		active = schedule.LowBattery
	}

	changed = !s.primed || active != s.current
	s.current = active
	s.primed = true
	return active, changed
}

// Current returns the most recently evaluated schedule name.
func (s *Selector) Current() schedule.SetName {
	return s.current
}
