package config

import (
	"fmt"
	"strings"
	"time"
)

// SleepWindow is a daily HH:MM–HH:MM range gating sleep consolidation.
// The range may wrap past midnight (e.g. 23:00-06:00).
type SleepWindow struct {
	startMin int // minutes since midnight
	endMin   int
}

// ParseSleepWindow parses a window of the form "HH:MM-HH:MM".
func ParseSleepWindow(s string) (SleepWindow, error) {
	parts := strings.SplitN(s, "-", 2)
	if len(parts) != 2 {
		return SleepWindow{}, fmt.Errorf("config: sleep window %q is not HH:MM-HH:MM", s)
	}

	start, err := parseClock(parts[0])
	if err != nil {
		return SleepWindow{}, err
	}
	end, err := parseClock(parts[1])
	if err != nil {
		return SleepWindow{}, err
	}
	return SleepWindow{startMin: start, endMin: end}, nil
}

// Contains reports whether t's local wall-clock time falls inside the
// window. A window whose end precedes its start wraps past midnight; a
// window with equal endpoints is empty.
func (w SleepWindow) Contains(t time.Time) bool {
	min := t.Hour()*60 + t.Minute()
	if w.startMin == w.endMin {
		return false
	}
	if w.startMin < w.endMin {
		return min >= w.startMin && min < w.endMin
	}
	return min >= w.startMin || min < w.endMin
}

func parseClock(s string) (int, error) {
	var h, m int
	if _, err := fmt.Sscanf(strings.TrimSpace(s), "%d:%d", &h, &m); err != nil {
		return 0, fmt.Errorf("config: bad clock value %q: %w", s, err)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("config: clock value %q out of range", s)
	}
	return h*60 + m, nil
}
