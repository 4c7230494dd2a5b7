package x11

import (
	"context"
	"fmt"

	"github.com/jezek/xgb/randr"
	"github.com/jezek/xgb/xproto"
)

// Brightness implements effect.BrightnessBackend over RandR's per-output
// "Backlight" property, the same mechanism tools like xbacklight use.
type Brightness struct {
	source *Source
	output randr.Output
	atom   xproto.Atom
	min    int32
	max    int32
}

// NewBrightness initializes RandR on source's connection and locates the
// first output that exposes a Backlight property.
func NewBrightness(source *Source) (*Brightness, error) {
	if err := randr.Init(source.conn); err != nil {
		return nil, fmt.Errorf("x11: init RandR: %w", err)
	}

	atomReply, err := xproto.InternAtom(source.conn, true, uint16(len("Backlight")), "Backlight").Reply()
	if err != nil {
		return nil, fmt.Errorf("x11: intern Backlight atom: %w", err)
	}
	if atomReply.Atom == 0 {
		return nil, fmt.Errorf("x11: no Backlight property registered by the driver")
	}

	resources, err := randr.GetScreenResources(source.conn, xproto.Window(source.root)).Reply()
	if err != nil {
		return nil, fmt.Errorf("x11: GetScreenResources: %w", err)
	}

	for _, out := range resources.Outputs {
		rng, err := randr.QueryOutputProperty(source.conn, out, atomReply.Atom).Reply()
		if err != nil || len(rng.ValidValues) < 2 {
			continue
		}
		return &Brightness{
			source: source,
			output: out,
			atom:   atomReply.Atom,
			min:    rng.ValidValues[0],
			max:    rng.ValidValues[1],
		}, nil
	}
	return nil, fmt.Errorf("x11: no output exposes a Backlight property")
}

// Current implements effect.BrightnessBackend, returning the raw
// backlight level as reported by RandR.
func (b *Brightness) Current(ctx context.Context) (int, error) {
	prop, err := randr.GetOutputProperty(b.source.conn, b.output, b.atom, xproto.AtomInteger, 0, 4, false, false).Reply()
	if err != nil {
		return 0, fmt.Errorf("x11: GetOutputProperty: %w", err)
	}
	if len(prop.Data) < 4 {
		return 0, fmt.Errorf("x11: short Backlight property value")
	}
	return int(int32(prop.Data[0]) | int32(prop.Data[1])<<8 | int32(prop.Data[2])<<16 | int32(prop.Data[3])<<24), nil
}

// Set implements effect.BrightnessBackend, clamping level to the range
// the driver reported for the Backlight property.
func (b *Brightness) Set(ctx context.Context, level int) error {
	v := int32(level)
	if v < b.min {
		v = b.min
	}
	if v > b.max {
		v = b.max
	}
	data := []byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)}
	err := randr.ChangeOutputPropertyChecked(b.source.conn, b.output, b.atom, xproto.AtomInteger, 32, xproto.PropModeReplace, uint32(len(data)/4), data).Check()
	if err != nil {
		return fmt.Errorf("x11: ChangeOutputProperty: %w", err)
	}
	return nil
}
