// Package dbus wraps the system and session D-Bus connections energia
// needs: logind and upower on the system bus, and energia's own
// org.energia.Manager endpoint on the session bus.
package dbus

import (
	"fmt"
	"sync"

	godbus "github.com/godbus/dbus/v5"
)

// Conn owns a single godbus connection and fans out incoming signals to
// whichever subscribers registered an interest, so logind.go and
// upower.go can share one system-bus socket instead of each dialing
// their own.
type Conn struct {
	raw *godbus.Conn

	mu          sync.Mutex
	signalChans []chan *godbus.Signal
}

// ConnectSystem dials the system bus, used for logind and upower.
func ConnectSystem() (*Conn, error) {
	raw, err := godbus.ConnectSystemBus()
	if err != nil {
		return nil, fmt.Errorf("dbus: connect system bus: %w", err)
	}
	return wrap(raw), nil
}

// ConnectSession dials the session bus, used to export org.energia.Manager.
func ConnectSession() (*Conn, error) {
	raw, err := godbus.ConnectSessionBus()
	if err != nil {
		return nil, fmt.Errorf("dbus: connect session bus: %w", err)
	}
	return wrap(raw), nil
}

func wrap(raw *godbus.Conn) *Conn {
	c := &Conn{raw: raw}
	ch := make(chan *godbus.Signal, 32)
	raw.Signal(ch)
	go c.dispatch(ch)
	return c
}

// Raw exposes the underlying godbus connection for callers (logind.go,
// upower.go, manager.go) that need to build object proxies or export
// methods directly.
func (c *Conn) Raw() *godbus.Conn { return c.raw }

// Signals registers a channel that receives every signal arriving on this
// connection. Subscribers are expected to filter by sender/path/member
// themselves; godbus multiplexes match rules onto the one socket.
func (c *Conn) Signals() <-chan *godbus.Signal {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch := make(chan *godbus.Signal, 32)
	c.signalChans = append(c.signalChans, ch)
	return ch
}

func (c *Conn) dispatch(in <-chan *godbus.Signal) {
	for sig := range in {
		c.mu.Lock()
		chans := append([]chan *godbus.Signal(nil), c.signalChans...)
		c.mu.Unlock()
		for _, ch := range chans {
			select {
			case ch <- sig:
			default:
			}
		}
	}
}

// AddMatch installs a raw match rule so Signals() receives matching
// signals; logind and upower proxies are built from plain object paths
// rather than introspected, so the string form is used here instead of
// BusObject.AddMatchSignal.
func (c *Conn) AddMatch(rule string) error {
	return c.raw.BusObject().Call("org.freedesktop.DBus.AddMatch", 0, rule).Err
}

// Close tears down the connection.
func (c *Conn) Close() error {
	return c.raw.Close()
}
