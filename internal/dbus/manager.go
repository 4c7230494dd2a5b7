package dbus

import (
	"context"
	"fmt"

	godbus "github.com/godbus/dbus/v5"
	godbusintrospect "github.com/godbus/dbus/v5/introspect"

	"github.com/sirupsen/logrus"
)

const (
	managerDest  = "org.energia.Manager"
	managerPath  = godbus.ObjectPath("/org/energia/Manager")
	managerIface = "org.energia.Manager"
)

// Locker is the lock effector capability the Manager endpoint needs: an
// out-of-band apply that does not touch sequencer depth accounting.
type Locker interface {
	ApplyNext(ctx context.Context) error
}

// ManagerEndpoint exports org.energia.Manager on the session bus, giving
// other processes a Lock() call. It is only registered when a locker is
// configured.
type ManagerEndpoint struct {
	conn   *Conn
	locker Locker
	log    *logrus.Entry
}

// NewManagerEndpoint exports the endpoint on conn's session bus and
// requests the org.energia.Manager well-known name.
func NewManagerEndpoint(conn *Conn, locker Locker, log *logrus.Entry) (*ManagerEndpoint, error) {
	m := &ManagerEndpoint{conn: conn, locker: locker, log: log}

	if err := conn.Raw().Export(m, managerPath, managerIface); err != nil {
		return nil, fmt.Errorf("dbus: export %s: %w", managerIface, err)
	}

	node := &godbusintrospect.Node{
		Name: string(managerPath),
		Interfaces: []godbusintrospect.Interface{
			godbusintrospect.IntrospectData,
			{
				Name: managerIface,
				Methods: []godbusintrospect.Method{
					{Name: "Lock"},
				},
			},
		},
	}
	if err := conn.Raw().Export(godbusintrospect.NewIntrospectable(node), managerPath, "org.freedesktop.DBus.Introspectable"); err != nil {
		return nil, fmt.Errorf("dbus: export introspection: %w", err)
	}

	reply, err := conn.Raw().RequestName(managerDest, godbus.NameFlagDoNotQueue)
	if err != nil {
		return nil, fmt.Errorf("dbus: request name %s: %w", managerDest, err)
	}
	if reply != godbus.RequestNameReplyPrimaryOwner {
		return nil, fmt.Errorf("dbus: name %s already owned", managerDest)
	}

	return m, nil
}

// Lock is the exported D-Bus method body for org.energia.Manager.Lock().
// It calls the lock effector's ApplyNext out-of-band; per spec this is
// idempotent with an already-running locker, so a later-firing scheduled
// lock step becomes a no-op.
func (m *ManagerEndpoint) Lock() *godbus.Error {
	if err := m.locker.ApplyNext(context.Background()); err != nil {
		m.log.WithError(err).Warn("manager: Lock() failed")
		return godbus.NewError("org.energia.Manager.Error.LockFailed", []interface{}{err.Error()})
	}
	return nil
}
