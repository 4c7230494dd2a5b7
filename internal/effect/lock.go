package effect

import (
	"context"
	"os/exec"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/energia-project/energia/internal/apperr"
	"github.com/energia-project/energia/internal/schedule"
)

// LockConfig configures the locker child process.
type LockConfig struct {
	Command string
	Args    []string
}

// LockBus is the logind session proxy capability the lock effector needs:
// setting the session's LockedHint property.
type LockBus interface {
	SetLockedHint(ctx context.Context, locked bool) error
}

// Lock is the [lock] effector. On apply it spawns the configured locker
// process and sets LockedHint=true. lock is non-rollbackable: rollback
// leaves the locker alone and only decrements depth; LockedHint is cleared
// once the locker child actually exits. Only one locker may be live at a
// time; apply is then idempotent.
//
// Running() is the one piece of state the sequencer, the Lock bus
// endpoint, and the pre-sleep interceptor all need to observe without
// racing each other (§5 "shared resources"); it is guarded by mu and
// mutated only here.
type Lock struct {
	cfg LockConfig
	bus LockBus
	log *logrus.Entry

	mu      sync.Mutex
	depth   int
	running bool
	readyCh chan struct{}
}

// NewLock creates the lock effector.
func NewLock(cfg LockConfig, bus LockBus, log *logrus.Entry) *Lock {
	return &Lock{cfg: cfg, bus: bus, log: log}
}

func (l *Lock) Name() string { return "lock" }

func (l *Lock) SupportedEffects() []schedule.Name {
	return []schedule.Name{schedule.Lock}
}

func (l *Lock) IsRollbackable(idx int) bool { return false }

func (l *Lock) Depth() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.depth
}

// Running reports whether a locker child is currently live.
func (l *Lock) Running() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.running
}

// ApplyNext spawns the locker if one is not already running, then sets
// LockedHint=true. Idempotent: a second apply while a locker is live is a
// no-op, which is what makes an explicit Lock() call and a later-firing
// scheduled lock step compose without double-spawning.
func (l *Lock) ApplyNext(ctx context.Context) error {
	l.mu.Lock()
	if l.running {
		if l.depth == 0 {
			l.depth = 1
		}
		l.mu.Unlock()
		return nil
	}

	cmd := exec.Command(l.cfg.Command, l.cfg.Args...)
	ready := make(chan struct{})
	if err := cmd.Start(); err != nil {
		l.mu.Unlock()
		return apperr.New(apperr.LockerSpawnFailed, "lock: spawn locker", err)
	}
	l.running = true
	l.depth = 1
	l.readyCh = ready
	l.mu.Unlock()

	// The locker protocol has no universal "ready" handshake across
	// lockers, so readiness is approximated by a successful process
	// start; anything waiting on WaitReady unblocks immediately.
	close(ready)

	// LockedHint=true is set before the supervisor starts, so a locker
	// that exits quickly cannot have its LockedHint=false overwritten.
	hintErr := l.bus.SetLockedHint(ctx, true)
	go l.supervise(cmd)

	if hintErr != nil {
		return apperr.New(apperr.EffectFailed, "lock: set LockedHint=true", hintErr)
	}
	l.log.WithField("pid", cmd.Process.Pid).Info("locker spawned")
	return nil
}

// supervise waits for the locker child to exit and clears LockedHint and
// the running flag once it does.
func (l *Lock) supervise(cmd *exec.Cmd) {
	err := cmd.Wait()

	l.mu.Lock()
	l.running = false
	l.mu.Unlock()

	ctx := context.Background()
	if err := l.bus.SetLockedHint(ctx, false); err != nil {
		l.log.WithError(err).Warn("lock: clear LockedHint after locker exit failed")
	}
	if err != nil {
		l.log.WithError(err).Info("locker exited")
	} else {
		l.log.Info("locker exited")
	}
}

// WaitReady blocks until the most recently spawned locker has reported
// ready, or timeout elapses.
func (l *Lock) WaitReady(ctx context.Context, timeout time.Duration) error {
	l.mu.Lock()
	ready := l.readyCh
	l.mu.Unlock()
	if ready == nil {
		return apperr.New(apperr.LockerSpawnFailed, "lock: no locker has been spawned", nil)
	}

	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-ready:
		return nil
	case <-t.C:
		return apperr.New(apperr.LockerSpawnFailed, "lock: locker did not become ready in time", nil)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RollbackOne decrements depth without touching the locker process or
// LockedHint: lock is non-rollbackable.
func (l *Lock) RollbackOne(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.depth > 0 {
		l.depth--
	}
	return nil
}

// Reset zeroes depth; the locker, if any, keeps running until it exits on
// its own (non-rollbackable).
func (l *Lock) Reset(ctx context.Context) error {
	l.mu.Lock()
	l.depth = 0
	l.mu.Unlock()
	return nil
}
