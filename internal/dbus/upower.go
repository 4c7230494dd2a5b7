package dbus

import (
	"context"
	"fmt"

	godbus "github.com/godbus/dbus/v5"

	"github.com/energia-project/energia/internal/apperr"
	"github.com/energia-project/energia/internal/power"
	"github.com/energia-project/energia/internal/selector"
)

const (
	upowerDest        = "org.freedesktop.UPower"
	upowerPath        = godbus.ObjectPath("/org/freedesktop/UPower")
	upowerIface       = "org.freedesktop.UPower"
	upowerDeviceIface = "org.freedesktop.UPower.Device"

	// upowerDeviceTypeBattery is UPower's DeviceType enum value for a
	// system battery, as opposed to a UPS, keyboard, mouse, etc.
	upowerDeviceTypeBattery = uint32(2)
)

// UPower implements power.Watcher over upower's system-bus object: power
// source from the Manager's OnBattery property, battery percentage from
// the first enumerated battery device's Percentage property.
type UPower struct {
	conn    *Conn
	manager godbus.BusObject
}

// NewUPower builds a client bound to the well-known upower object.
func NewUPower(conn *Conn) *UPower {
	return &UPower{
		conn:    conn,
		manager: conn.Raw().Object(upowerDest, upowerPath),
	}
}

// Watch implements power.Watcher. It reports the current state
// immediately, then on every subsequent OnBattery or battery-device
// Percentage change, until ctx is cancelled.
func (u *UPower) Watch(ctx context.Context, onChange func(power.State)) error {
	batteryPath, hasBattery, err := u.findBatteryDevice()
	if err != nil {
		return apperr.New(apperr.SourceUnavailable, "upower: enumerate devices", err)
	}

	state, err := u.readState(batteryPath, hasBattery)
	if err != nil {
		return apperr.New(apperr.SourceUnavailable, "upower: read initial state", err)
	}
	onChange(state)

	rule := fmt.Sprintf("type='signal',interface='%s',member='PropertiesChanged'", propertiesIface)
	if err := u.conn.AddMatch(rule); err != nil {
		return apperr.New(apperr.SourceUnavailable, "upower: watch", err)
	}

	signals := u.conn.Signals()
	for {
		select {
		case <-ctx.Done():
			return nil
		case sig, ok := <-signals:
			if !ok {
				return apperr.New(apperr.SourceUnavailable, "upower: signal channel closed", nil)
			}
			if sig.Name != propertiesChangedSg {
				continue
			}
			if sig.Path != upowerPath && (!hasBattery || sig.Path != batteryPath) {
				continue
			}
			iface, changed, ok := parsePropertiesChanged(sig.Body)
			if !ok {
				continue
			}
			switch iface {
			case upowerIface:
				if _, changedAny := changed["OnBattery"]; !changedAny {
					continue
				}
			case upowerDeviceIface:
				if _, changedAny := changed["Percentage"]; !changedAny {
					continue
				}
			default:
				continue
			}
			state, err := u.readState(batteryPath, hasBattery)
			if err != nil {
				return apperr.New(apperr.SourceUnavailable, "upower: re-read state", err)
			}
			onChange(state)
		}
	}
}

func (u *UPower) readState(batteryPath godbus.ObjectPath, hasBattery bool) (power.State, error) {
	onBattery, err := u.propertyBool(u.manager, upowerIface, "OnBattery")
	if err != nil {
		return power.State{}, err
	}

	state := power.State{Source: selector.AC, BatteryPercent: selector.UnknownBatteryPercent}
	if onBattery {
		state.Source = selector.Battery
	}
	if hasBattery {
		dev := u.conn.Raw().Object(upowerDest, batteryPath)
		pct, err := u.propertyFloat(dev, upowerDeviceIface, "Percentage")
		if err == nil {
			state.BatteryPercent = int(pct)
		}
	}
	return state, nil
}

func (u *UPower) findBatteryDevice() (godbus.ObjectPath, bool, error) {
	var paths []godbus.ObjectPath
	call := u.manager.Call(upowerIface+".EnumerateDevices", 0)
	if call.Err != nil {
		return "", false, call.Err
	}
	if err := call.Store(&paths); err != nil {
		return "", false, err
	}

	for _, p := range paths {
		dev := u.conn.Raw().Object(upowerDest, p)
		devType, err := u.propertyUint32(dev, upowerDeviceIface, "Type")
		if err != nil {
			continue
		}
		if devType == upowerDeviceTypeBattery {
			return p, true, nil
		}
	}
	return "", false, nil
}

func (u *UPower) propertyBool(obj godbus.BusObject, iface, name string) (bool, error) {
	v, err := obj.GetProperty(iface + "." + name)
	if err != nil {
		return false, err
	}
	b, _ := v.Value().(bool)
	return b, nil
}

func (u *UPower) propertyFloat(obj godbus.BusObject, iface, name string) (float64, error) {
	v, err := obj.GetProperty(iface + "." + name)
	if err != nil {
		return 0, err
	}
	f, _ := v.Value().(float64)
	return f, nil
}

func (u *UPower) propertyUint32(obj godbus.BusObject, iface, name string) (uint32, error) {
	v, err := obj.GetProperty(iface + "." + name)
	if err != nil {
		return 0, err
	}
	n, _ := v.Value().(uint32)
	return n, nil
}
