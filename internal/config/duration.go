package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Duration wraps time.Duration so TOML's text decoding (BurntSushi/toml
// respects encoding.TextUnmarshaler on scalar string values) can parse the
// spec's own duration grammar: "<N>h <N>m <N>s", any subset of units,
// whitespace optional, parsed to millisecond precision.
type Duration struct {
	time.Duration
}

var unitDurations = map[byte]time.Duration{
	'h': time.Hour,
	'm': time.Minute,
	's': time.Second,
}

// UnmarshalText parses the spec's duration grammar.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

// ParseDuration parses a string of the form "<N>h <N>m <N>s" where any
// subset of the three units may be present, each at most once,
// whitespace between tokens optional, to millisecond precision. The
// relative order of the units is not checked.
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty duration")
	}

	var total time.Duration
	var numBuf strings.Builder
	seenUnit := map[byte]bool{}

	flush := func(unit byte) error {
		if numBuf.Len() == 0 {
			return fmt.Errorf("duration %q: unit %c with no preceding number", s, unit)
		}
		if seenUnit[unit] {
			return fmt.Errorf("duration %q: unit %c repeated", s, unit)
		}
		n, err := strconv.ParseInt(numBuf.String(), 10, 64)
		if err != nil {
			return fmt.Errorf("duration %q: invalid number: %w", s, err)
		}
		total += time.Duration(n) * unitDurations[unit]
		seenUnit[unit] = true
		numBuf.Reset()
		return nil
	}

	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == ' ' || c == '\t':
			continue
		case c >= '0' && c <= '9':
			numBuf.WriteByte(c)
		case c == 'h' || c == 'm' || c == 's':
			if err := flush(c); err != nil {
				return 0, err
			}
		default:
			return 0, fmt.Errorf("duration %q: unexpected character %q", s, c)
		}
	}
	if numBuf.Len() != 0 {
		return 0, fmt.Errorf("duration %q: trailing digits with no unit", s)
	}
	if len(seenUnit) == 0 {
		return 0, fmt.Errorf("duration %q: no unit found", s)
	}
	return total.Round(time.Millisecond), nil
}
