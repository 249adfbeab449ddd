package dispatch

import (
	"fmt"
	"strings"
)

// Mode selects between shallow and deep enhancement passes.
type Mode int

const (
	// Shallow trusts the queue to reflect pending work and only runs enhancers.
	Shallow Mode = iota
	// Deep clears the record's pending entry first and asks enhancers to
	// re-read upstream data.
	Deep
)

func (m Mode) String() string {
	if m == Deep {
		return "deep"
	}
	return "shallow"
}

// ParseMode accepts "shallow" or "deep".
func ParseMode(value string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "shallow", "":
		return Shallow, nil
	case "deep":
		return Deep, nil
	default:
		return Shallow, fmt.Errorf("unknown mode %q", value)
	}
}
