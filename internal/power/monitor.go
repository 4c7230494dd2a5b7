// Package power watches upower for power-source and battery-percentage
// changes, retrying the subscription with capped exponential backoff if
// it drops.
package power

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/energia-project/energia/internal/backoff"
	"github.com/energia-project/energia/internal/selector"
)

// State is a (source, battery percentage) observation.
type State struct {
	Source         selector.Source
	BatteryPercent int
}

// Watcher is the upower capability the monitor needs: subscribe to power
// source / battery percentage changes, calling onChange for every update,
// until ctx is cancelled or the connection drops (in which case Watch
// returns an apperr.SourceUnavailable error so the caller can retry).
type Watcher interface {
	Watch(ctx context.Context, onChange func(State)) error
}

// Monitor tracks the current power state and notifies a subscriber on
// every change, reconnecting across upower outages.
type Monitor struct {
	watcher Watcher
	log     *logrus.Entry

	mu           sync.RWMutex
	state        State
	onStateChange func(State)
}

// NewMonitor creates a power Monitor. If watcher is nil, the monitor
// degrades to AC-only operation (upower unreachable is not a hard startup
// dependency; only logind and, if configured, X11 are).
func NewMonitor(watcher Watcher, log *logrus.Entry) *Monitor {
	return &Monitor{
		watcher: watcher,
		log:     log,
		state:   State{Source: selector.AC, BatteryPercent: selector.UnknownBatteryPercent},
	}
}

// SetOnStateChange registers the callback invoked whenever the observed
// power state changes.
func (m *Monitor) SetOnStateChange(callback func(State)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onStateChange = callback
}

// Start begins watching upower in the background, reconnecting with
// backoff on drops, until ctx is cancelled.
func (m *Monitor) Start(ctx context.Context) {
	if m.watcher == nil {
		m.log.Warn("upower unavailable at startup; power source monitoring degraded to AC-only")
		return
	}
	go func() {
		err := backoff.Retry(ctx, backoff.DefaultConfig(), func(attempt int) error {
			if attempt > 0 {
				m.log.WithField("attempt", attempt).Warn("retrying upower subscription")
			}
			return m.watcher.Watch(ctx, m.handleChange)
		})
		if err != nil && ctx.Err() == nil {
			m.log.WithError(err).Error("upower watch permanently failed")
		}
	}()
}

func (m *Monitor) handleChange(state State) {
	m.mu.Lock()
	m.state = state
	cb := m.onStateChange
	m.mu.Unlock()
	m.log.WithField("source", state.Source).WithField("battery_percent", state.BatteryPercent).Info("power state changed")
	if cb != nil {
		cb(state)
	}
}

// Current returns the most recently observed power state.
func (m *Monitor) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}
