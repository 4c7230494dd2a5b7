package schedule

import (
	"sort"
	"time"
)

// Compile converts a Schedule into its deterministic step list: entries
// sorted by offset, ties broken by the fixed Rank order over effect names
// (idle_hint, screen_dim, screen_off, lock, sleep). If the schedule does not already define an idle_hint step,
// one is synthesized at t = min(offset), so the session is announced idle
// at or before the first real effect.
func Compile(s Schedule) StepList {
	steps := make(StepList, 0, len(s)+1)
	for name, offset := range s {
		steps = append(steps, Step{Offset: offset, Name: name})
	}

	if _, hasIdleHint := s[IdleHint]; !hasIdleHint && len(steps) > 0 {
		min := steps[0].Offset
		for _, st := range steps[1:] {
			if st.Offset < min {
				min = st.Offset
			}
		}
		steps = append(steps, Step{Offset: min, Name: IdleHint})
	}

	sort.SliceStable(steps, func(i, j int) bool {
		if steps[i].Offset != steps[j].Offset {
			return steps[i].Offset < steps[j].Offset
		}
		return Rank(steps[i].Name) < Rank(steps[j].Name)
	})

	return steps
}

// IndexAtOrBefore returns the index of the last step whose offset is <= d,
// or -1 if no such step exists.
func (sl StepList) IndexAtOrBefore(d time.Duration) int {
	idx := -1
	for i, st := range sl {
		if st.Offset <= d {
			idx = i
			continue
		}
		break
	}
	return idx
}
