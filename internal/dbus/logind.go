package dbus

import (
	"context"
	"fmt"
	"os"

	godbus "github.com/godbus/dbus/v5"
)

const (
	logindDest          = "org.freedesktop.login1"
	logindManagerPath   = godbus.ObjectPath("/org/freedesktop/login1")
	logindManagerIface  = "org.freedesktop.login1.Manager"
	logindSessionIface  = "org.freedesktop.login1.Session"
	propertiesIface     = "org.freedesktop.DBus.Properties"
	propertiesChangedSg = propertiesIface + ".PropertiesChanged"
	prepareForSleepSg   = logindManagerIface + ".PrepareForSleep"
)

// Logind wraps the logind Manager and the calling process's own Session
// object. It implements effect.SessionBus, effect.LockBus and
// effect.SuspendBus, and additionally exposes the inhibitor and
// sleep-signal primitives the pre-sleep interceptor and the controller's
// system-signals subscription need.
type Logind struct {
	conn        *Conn
	manager     godbus.BusObject
	session     godbus.BusObject
	sessionPath godbus.ObjectPath
}

// NewLogind resolves the session the current process belongs to and
// returns a client bound to it.
func NewLogind(conn *Conn) (*Logind, error) {
	manager := conn.Raw().Object(logindDest, logindManagerPath)

	var sessionPath godbus.ObjectPath
	call := manager.Call(logindManagerIface+".GetSessionByPID", 0, uint32(os.Getpid()))
	if call.Err != nil {
		return nil, fmt.Errorf("logind: GetSessionByPID: %w", call.Err)
	}
	if err := call.Store(&sessionPath); err != nil {
		return nil, fmt.Errorf("logind: decode session path: %w", err)
	}

	return &Logind{
		conn:        conn,
		manager:     manager,
		session:     conn.Raw().Object(logindDest, sessionPath),
		sessionPath: sessionPath,
	}, nil
}

// SetIdleHint implements effect.SessionBus.
func (l *Logind) SetIdleHint(ctx context.Context, idle bool) error {
	call := l.session.Call(logindSessionIface+".SetIdleHint", 0, idle)
	if call.Err != nil {
		return fmt.Errorf("logind: SetIdleHint(%v): %w", idle, call.Err)
	}
	return nil
}

// SetLockedHint implements effect.LockBus.
func (l *Logind) SetLockedHint(ctx context.Context, locked bool) error {
	call := l.session.Call(logindSessionIface+".SetLockedHint", 0, locked)
	if call.Err != nil {
		return fmt.Errorf("logind: SetLockedHint(%v): %w", locked, call.Err)
	}
	return nil
}

// Suspend implements effect.SuspendBus.
func (l *Logind) Suspend(ctx context.Context) error {
	call := l.manager.Call(logindManagerIface+".Suspend", 0, false)
	if call.Err != nil {
		return fmt.Errorf("logind: Suspend: %w", call.Err)
	}
	return nil
}

// Inhibitor is a held logind inhibitor lock; Release drops it.
type Inhibitor struct {
	fd *os.File
}

// Release closes the inhibitor's file descriptor, releasing the lock.
func (i *Inhibitor) Release() error {
	if i.fd == nil {
		return nil
	}
	return i.fd.Close()
}

// TakeDelayInhibitor takes a logind delay-mode inhibitor lock for "sleep",
// used by the pre-sleep interceptor to hold off suspend while the locker
// child starts.
func (l *Logind) TakeDelayInhibitor(what, who, why string) (*Inhibitor, error) {
	var fd godbus.UnixFD
	call := l.manager.Call(logindManagerIface+".Inhibit", 0, what, who, why, "delay")
	if call.Err != nil {
		return nil, fmt.Errorf("logind: Inhibit(%s): %w", what, call.Err)
	}
	if err := call.Store(&fd); err != nil {
		return nil, fmt.Errorf("logind: decode inhibitor fd: %w", err)
	}
	return &Inhibitor{fd: os.NewFile(uintptr(fd), "logind-inhibitor")}, nil
}

// WatchBlockInhibited subscribes to changes of the Manager's
// BlockInhibited property, reporting every change of it signalled through
// PropertiesChanged. onChange receives the raw colon-separated value
// logind reports (e.g. "idle:sleep").
func (l *Logind) WatchBlockInhibited(ctx context.Context, onChange func(blockInhibited string)) error {
	rule := fmt.Sprintf("type='signal',interface='%s',member='PropertiesChanged',path='%s'",
		propertiesIface, logindManagerPath)
	if err := l.conn.AddMatch(rule); err != nil {
		return fmt.Errorf("logind: watch BlockInhibited: %w", err)
	}

	signals := l.conn.Signals()
	for {
		select {
		case <-ctx.Done():
			return nil
		case sig, ok := <-signals:
			if !ok {
				return fmt.Errorf("logind: signal channel closed")
			}
			if sig.Path != logindManagerPath || sig.Name != propertiesChangedSg {
				continue
			}
			iface, changed, ok := parsePropertiesChanged(sig.Body)
			if !ok || iface != logindManagerIface {
				continue
			}
			if v, ok := changed["BlockInhibited"]; ok {
				if s, ok := v.(string); ok {
					onChange(s)
				}
			}
		}
	}
}

// WatchPrepareForSleep subscribes to logind's PrepareForSleep signal.
// onSignal receives true just before suspend and false on resume.
func (l *Logind) WatchPrepareForSleep(ctx context.Context, onSignal func(aboutToSleep bool)) error {
	rule := fmt.Sprintf("type='signal',interface='%s',member='PrepareForSleep',path='%s'",
		logindManagerIface, logindManagerPath)
	if err := l.conn.AddMatch(rule); err != nil {
		return fmt.Errorf("logind: watch PrepareForSleep: %w", err)
	}

	signals := l.conn.Signals()
	for {
		select {
		case <-ctx.Done():
			return nil
		case sig, ok := <-signals:
			if !ok {
				return fmt.Errorf("logind: signal channel closed")
			}
			if sig.Path != logindManagerPath || sig.Name != prepareForSleepSg {
				continue
			}
			if len(sig.Body) != 1 {
				continue
			}
			if aboutToSleep, ok := sig.Body[0].(bool); ok {
				onSignal(aboutToSleep)
			}
		}
	}
}

// parsePropertiesChanged decodes a standard PropertiesChanged signal body
// (interface name, changed properties, invalidated property names).
func parsePropertiesChanged(body []interface{}) (iface string, changed map[string]interface{}, ok bool) {
	if len(body) != 3 {
		return "", nil, false
	}
	iface, ok = body[0].(string)
	if !ok {
		return "", nil, false
	}
	raw, ok := body[1].(map[string]godbus.Variant)
	if !ok {
		return "", nil, false
	}
	changed = make(map[string]interface{}, len(raw))
	for k, v := range raw {
		changed[k] = v.Value()
	}
	return iface, changed, true
}
