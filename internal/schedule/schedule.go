// Package schedule provides the start-time jitter used to desynchronize VENs
// reacting to the same nominal event start, plus parsing for the xcal
// duration strings that carry the tolerance bounds.
package schedule

import (
	"fmt"
	"math/rand/v2"
	"time"
)

// Rand is the randomness source consumed by the scheduler.
// *rand.Rand satisfies it; tests inject a fixed sequence.
type Rand interface {
	Int64N(n int64) int64
}

type defaultRand struct{}

func (defaultRand) Int64N(n int64) int64 { return rand.Int64N(n) }

// Scheduler computes randomized start offsets.
type Scheduler struct {
	rng Rand
}

// New returns a scheduler backed by the process-wide random source.
func New() *Scheduler {
	return &Scheduler{rng: defaultRand{}}
}

// NewWithRand returns a scheduler with an injected randomness source.
func NewWithRand(r Rand) *Scheduler {
	return &Scheduler{rng: r}
}

// RandomOffset returns a timestamp uniformly distributed in
// [start-before, start+after]. A zero bound contributes no slack on that
// side; with both bounds zero the start is returned unchanged.
func (s *Scheduler) RandomOffset(start time.Time, before, after time.Duration) time.Time {
	if before < 0 || after < 0 {
		// Negative tolerances are meaningless; treat as no slack.
		return start
	}
	window := int64(before) + int64(after)
	if window == 0 {
		return start
	}
	offset := s.rng.Int64N(window + 1)
	return start.Add(-before + time.Duration(offset))
}

// ParseDuration parses an xcal (ISO 8601) duration such as "PT5M", "-PT30S"
// or "P1DT2H". Months and years are rejected: their length depends on the
// calendar position and tolerance windows never need them.
func ParseDuration(s string) (time.Duration, error) {
	orig := s
	if s == "" {
		return 0, fmt.Errorf("empty duration")
	}

	neg := false
	switch s[0] {
	case '-':
		neg = true
		s = s[1:]
	case '+':
		s = s[1:]
	}
	if len(s) == 0 || s[0] != 'P' {
		return 0, fmt.Errorf("bad duration %q", orig)
	}
	s = s[1:]

	var d time.Duration
	inTime := false
	num := 0
	haveNum := false
	haveField := false

	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= '0' && c <= '9':
			num = num*10 + int(c-'0')
			haveNum = true
		case c == 'T':
			if inTime || haveNum {
				return 0, fmt.Errorf("bad duration %q", orig)
			}
			inTime = true
		default:
			if !haveNum {
				return 0, fmt.Errorf("bad duration %q", orig)
			}
			var unit time.Duration
			switch {
			case c == 'W' && !inTime:
				unit = 7 * 24 * time.Hour
			case c == 'D' && !inTime:
				unit = 24 * time.Hour
			case c == 'H' && inTime:
				unit = time.Hour
			case c == 'M' && inTime:
				unit = time.Minute
			case c == 'S' && inTime:
				unit = time.Second
			default:
				return 0, fmt.Errorf("bad duration %q: unsupported designator %q", orig, string(c))
			}
			d += time.Duration(num) * unit
			num = 0
			haveNum = false
			haveField = true
		}
	}
	if haveNum || !haveField {
		return 0, fmt.Errorf("bad duration %q", orig)
	}
	if neg {
		d = -d
	}
	return d, nil
}

// ParseTolerance parses an optional tolerance bound. An empty string means no
// bound and yields zero.
func ParseTolerance(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("negative tolerance %q", s)
	}
	return d, nil
}
