package controller

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/energia-project/energia/internal/effect"
	"github.com/energia-project/energia/internal/power"
	"github.com/energia-project/energia/internal/schedule"
	"github.com/energia-project/energia/internal/selector"
	"github.com/energia-project/energia/internal/sequencer"
)

// IdlenessSource is the capability the controller needs from the X11
// idleness source: the sequencer.Armer contract plus a way to rebase its
// internal counter after a resume from suspend.
type IdlenessSource interface {
	sequencer.Armer
	CurrentInactivity(ctx context.Context) (time.Duration, error)
	Rebase(ctx context.Context) error
	SetOnThreshold(cb func(ctx context.Context))
	SetOnActivity(cb func(ctx context.Context))
}

type eventKind int

const (
	evThreshold eventKind = iota
	evActivity
	evInhibitorChange
	evPowerState
	evPrepareForSleep
	evShutdown
)

type controllerEvent struct {
	kind         eventKind
	idleInhibited bool
	powerState   power.State
	aboutToSleep bool
}

// Controller is the Environment Controller: it owns the current phase,
// the live sequencer (when Idle), and serializes every event onto one
// goroutine.
type Controller struct {
	source   IdlenessSource
	registry *effect.Registry
	lock     *effect.Lock // nil if lock is not configured
	schedules schedule.ActiveSet
	sel      *selector.Selector
	clock    sequencer.Clock
	logind   sleepInhibitor
	log      *logrus.Entry

	events chan controllerEvent

	phase               Phase
	seq                 *sequencer.Sequencer
	currentScheduleName schedule.SetName
	idleInhibited       bool
	suspendInhibitor    *InhibitorHandle
}

// sleepInhibitor is the subset of *dbus.Logind the presleep interceptor
// needs, kept as an interface here so the controller package does not
// import the dbus package directly.
type sleepInhibitor interface {
	TakeDelayInhibitor(what, who, why string) (*InhibitorHandle, error)
}

// InhibitorHandle wraps release of a held logind inhibitor lock; the
// wiring layer (cmd/energia) constructs one from *dbus.Inhibitor so this
// package does not need to import the dbus package directly.
type InhibitorHandle struct {
	release func() error
}

// NewInhibitorHandle wraps a release function as an InhibitorHandle.
func NewInhibitorHandle(release func() error) *InhibitorHandle {
	return &InhibitorHandle{release: release}
}

// Release releases the inhibitor lock.
func (h *InhibitorHandle) Release() error {
	if h == nil || h.release == nil {
		return nil
	}
	return h.release()
}

// realClock implements sequencer.Clock over time.Now.
type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// New creates a Controller. lock may be nil when the lock effector is not
// configured. takeDelayInhibitor wraps the logind client's
// TakeDelayInhibitor so this package doesn't need to import dbus types
// directly.
func New(
	source IdlenessSource,
	registry *effect.Registry,
	lock *effect.Lock,
	schedules schedule.ActiveSet,
	sel *selector.Selector,
	takeDelayInhibitor func(what, who, why string) (*InhibitorHandle, error),
	log *logrus.Entry,
) *Controller {
	c := &Controller{
		source:    source,
		registry:  registry,
		lock:      lock,
		schedules: schedules,
		sel:       sel,
		clock:     realClock{},
		log:       log,
		events:    make(chan controllerEvent, 64),
		phase:     Active,
	}
	c.logind = takeDelayInhibitorFunc(takeDelayInhibitor)
	source.SetOnThreshold(func(ctx context.Context) { c.post(controllerEvent{kind: evThreshold}) })
	source.SetOnActivity(func(ctx context.Context) { c.post(controllerEvent{kind: evActivity}) })
	return c
}

type takeDelayInhibitorFunc func(what, who, why string) (*InhibitorHandle, error)

func (f takeDelayInhibitorFunc) TakeDelayInhibitor(what, who, why string) (*InhibitorHandle, error) {
	return f(what, who, why)
}

func (c *Controller) post(ev controllerEvent) {
	select {
	case c.events <- ev:
	default:
		c.log.WithField("kind", ev.kind).Warn("controller: event queue full, dropping event")
	}
}

// OnPowerStateChange is the callback wired into power.Monitor.
func (c *Controller) OnPowerStateChange(state power.State) {
	c.post(controllerEvent{kind: evPowerState, powerState: state})
}

// OnInhibitorChange is the callback wired into the logind BlockInhibited
// watch; blockInhibited is logind's raw value, e.g. "idle:sleep".
func (c *Controller) OnInhibitorChange(blockInhibited string) {
	c.post(controllerEvent{kind: evInhibitorChange, idleInhibited: containsWord(blockInhibited, "idle")})
}

// OnPrepareForSleep is the callback wired into the logind PrepareForSleep
// watch.
func (c *Controller) OnPrepareForSleep(aboutToSleep bool) {
	c.post(controllerEvent{kind: evPrepareForSleep, aboutToSleep: aboutToSleep})
}

// Shutdown requests a clean shutdown: roll back every effector and stop
// the event loop.
func (c *Controller) Shutdown() {
	c.post(controllerEvent{kind: evShutdown})
}

// Run evaluates the initial schedule, arms for the first episode, and
// processes events until ctx is cancelled or a shutdown event is
// handled.
func (c *Controller) Run(ctx context.Context, initialState power.State) error {
	name, _ := c.sel.Evaluate(initialState.Source, initialState.BatteryPercent)
	c.currentScheduleName = name
	if err := c.armForActive(ctx); err != nil {
		c.log.WithError(err).Warn("controller: initial arm failed")
	}

	for {
		select {
		case <-ctx.Done():
			c.rollbackEverything(context.Background())
			return nil
		case ev := <-c.events:
			if c.handle(ctx, ev) {
				c.rollbackEverything(context.Background())
				return nil
			}
		}
	}
}

// handle processes one event and returns true if the controller should
// stop (shutdown completed).
func (c *Controller) handle(ctx context.Context, ev controllerEvent) bool {
	switch ev.kind {
	case evThreshold:
		c.handleThreshold(ctx)
	case evActivity:
		c.handleActivity(ctx)
	case evInhibitorChange:
		c.log.WithField("idle_inhibited", ev.idleInhibited).Info("inhibitor state changed")
		c.idleInhibited = ev.idleInhibited
		if c.phase == Idle && c.seq != nil {
			if err := c.seq.OnInhibitorChange(ctx, ev.idleInhibited); err != nil {
				c.log.WithError(err).Warn("controller: on_inhibitor_change failed")
			}
		}
	case evPowerState:
		c.handlePowerState(ctx, ev.powerState)
	case evPrepareForSleep:
		c.handlePrepareForSleep(ctx, ev.aboutToSleep)
	case evShutdown:
		c.phase = ShuttingDown
		return true
	}
	return false
}

func (c *Controller) handleThreshold(ctx context.Context) {
	switch c.phase {
	case Active:
		c.phase = Idle
		steps := c.schedules.Steps[c.currentScheduleName]
		c.seq = sequencer.New(steps, c.registry, c.source, c.clock, c.log)

		// The threshold fired when the X11 counter already read
		// steps[0].Offset of inactivity, but Arm's thresholds are
		// absolute inactivity offsets while the sequencer measures
		// elapsed time from episodeStart. Rebase episodeStart to the
		// actual start of idleness so step offsets line up with real
		// inactivity instead of running one detection-offset late.
		inactivity, err := c.source.CurrentInactivity(ctx)
		if err != nil {
			c.log.WithError(err).Warn("controller: read current inactivity failed")
			inactivity = 0
		}
		if err := c.seq.StartEpisode(ctx, c.clock.Now().Add(-inactivity)); err != nil {
			c.log.WithError(err).Warn("controller: start_episode failed")
		}
		if c.idleInhibited {
			if err := c.seq.OnInhibitorChange(ctx, true); err != nil {
				c.log.WithError(err).Warn("controller: freezing new episode failed")
			}
		} else if err := c.seq.OnThresholdReached(ctx); err != nil {
			c.log.WithError(err).Warn("controller: on_threshold_reached failed")
		}
	case Idle:
		if c.seq != nil {
			if err := c.seq.OnThresholdReached(ctx); err != nil {
				c.log.WithError(err).Warn("controller: on_threshold_reached failed")
			}
		}
	default:
	}
}

func (c *Controller) handleActivity(ctx context.Context) {
	if c.phase != Idle || c.seq == nil {
		return
	}
	if err := c.seq.OnActivity(ctx); err != nil {
		c.log.WithError(err).Warn("controller: on_activity rollback failed")
	}
	c.seq = nil
	c.phase = Active
	if err := c.armForActive(ctx); err != nil {
		c.log.WithError(err).Warn("controller: re-arm after activity failed")
	}
}

func (c *Controller) handlePowerState(ctx context.Context, state power.State) {
	name, changed := c.sel.Evaluate(state.Source, state.BatteryPercent)
	if !changed {
		return
	}
	c.currentScheduleName = name
	switch c.phase {
	case Idle:
		if c.seq != nil {
			if err := c.seq.OnScheduleChange(ctx, c.schedules.Steps[name]); err != nil {
				c.log.WithError(err).Warn("controller: on_schedule_change failed")
			}
		}
	case Active:
		if err := c.armForActive(ctx); err != nil {
			c.log.WithError(err).Warn("controller: re-arm after schedule change failed")
		}
	}
}

// armForActive arms the idleness source for the first step of the
// current schedule, which is what lets a plain Active phase eventually
// fire the threshold that starts an episode.
func (c *Controller) armForActive(ctx context.Context) error {
	if c.phase != Active {
		return nil
	}
	steps := c.schedules.Steps[c.currentScheduleName]
	if len(steps) == 0 {
		return c.source.Disarm(ctx)
	}
	return c.source.Arm(ctx, steps[0].Offset)
}

func (c *Controller) rollbackEverything(ctx context.Context) {
	if c.seq != nil {
		if err := c.seq.OnActivity(ctx); err != nil {
			c.log.WithError(err).Warn("controller: shutdown rollback failed")
		}
		c.seq = nil
	}
	for _, e := range c.registry.All() {
		if err := e.Reset(ctx); err != nil {
			c.log.WithError(err).WithField("effector", e.Name()).Warn("controller: shutdown reset failed")
		}
	}
	if c.suspendInhibitor != nil {
		_ = c.suspendInhibitor.Release()
		c.suspendInhibitor = nil
	}
}

func containsWord(csv, word string) bool {
	start := 0
	for i := 0; i <= len(csv); i++ {
		if i == len(csv) || csv[i] == ':' || csv[i] == ',' {
			if csv[start:i] == word {
				return true
			}
			start = i + 1
		}
	}
	return false
}
