package x11

import (
	"context"
	"fmt"

	"github.com/jezek/xgb/dpms"
)

// DPMS implements effect.DPMSBackend over the X11 DPMS extension, forcing
// the monitor off (ForceOff) and back on (ForceOn) regardless of the
// extension's own timeout-driven state.
type DPMS struct {
	source *Source
}

// NewDPMS initializes the DPMS extension on source's connection.
func NewDPMS(source *Source) (*DPMS, error) {
	if err := dpms.Init(source.conn); err != nil {
		return nil, fmt.Errorf("x11: init DPMS: %w", err)
	}
	if _, err := dpms.Capable(source.conn).Reply(); err != nil {
		return nil, fmt.Errorf("x11: DPMS capable query: %w", err)
	}
	if err := dpms.EnableChecked(source.conn).Check(); err != nil {
		return nil, fmt.Errorf("x11: DPMS enable: %w", err)
	}
	return &DPMS{source: source}, nil
}

// ForceOff implements effect.DPMSBackend.
func (d *DPMS) ForceOff(ctx context.Context) error {
	if err := dpms.ForceLevelChecked(d.source.conn, dpms.DPMSModeOff).Check(); err != nil {
		return fmt.Errorf("x11: DPMS force off: %w", err)
	}
	return nil
}

// ForceOn implements effect.DPMSBackend.
func (d *DPMS) ForceOn(ctx context.Context) error {
	if err := dpms.ForceLevelChecked(d.source.conn, dpms.DPMSModeOn).Check(); err != nil {
		return fmt.Errorf("x11: DPMS force on: %w", err)
	}
	return nil
}
