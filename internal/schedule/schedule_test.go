package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// seqRand returns pre-programmed values, then falls back to zero.
type seqRand struct {
	vals []int64
	i    int
}

func (r *seqRand) Int64N(n int64) int64 {
	if r.i >= len(r.vals) {
		return 0
	}
	v := r.vals[r.i]
	r.i++
	if v > n {
		v = n
	}
	return v
}

func TestParseDuration(t *testing.T) {
	cases := []struct {
		in   string
		want time.Duration
	}{
		{"PT5M", 5 * time.Minute},
		{"PT30S", 30 * time.Second},
		{"PT1H30M", 90 * time.Minute},
		{"P1D", 24 * time.Hour},
		{"P1W", 7 * 24 * time.Hour},
		{"P1DT2H3M4S", 26*time.Hour + 3*time.Minute + 4*time.Second},
		{"-PT10M", -10 * time.Minute},
		{"+PT1S", time.Second},
		{"PT0S", 0},
	}
	for _, tc := range cases {
		got, err := ParseDuration(tc.in)
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got, tc.in)
	}
}

func TestParseDuration_Rejects(t *testing.T) {
	for _, in := range []string{
		"", "P", "PT", "5M", "PT5", "P5H", "PT5D", "P1M", "P1Y", "PTxM", "-P",
	} {
		_, err := ParseDuration(in)
		assert.Error(t, err, "input %q", in)
	}
}

func TestParseTolerance_EmptyMeansZero(t *testing.T) {
	d, err := ParseTolerance("")
	require.NoError(t, err)
	assert.Equal(t, time.Duration(0), d)

	_, err = ParseTolerance("-PT5M")
	assert.Error(t, err)
}

func TestRandomOffset_WithinBounds(t *testing.T) {
	start := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	before := 10 * time.Minute
	after := 5 * time.Minute

	s := New()
	for i := 0; i < 200; i++ {
		got := s.RandomOffset(start, before, after)
		assert.False(t, got.Before(start.Add(-before)), "below lower bound: %v", got)
		assert.False(t, got.After(start.Add(after)), "above upper bound: %v", got)
	}
}

func TestRandomOffset_Deterministic(t *testing.T) {
	start := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	s := NewWithRand(&seqRand{vals: []int64{0, int64(15 * time.Minute)}})

	// First draw lands on the lower bound.
	assert.Equal(t, start.Add(-10*time.Minute),
		s.RandomOffset(start, 10*time.Minute, 5*time.Minute))

	// Second draw lands on the upper bound.
	assert.Equal(t, start.Add(5*time.Minute),
		s.RandomOffset(start, 10*time.Minute, 5*time.Minute))
}

func TestRandomOffset_OneSidedAndZero(t *testing.T) {
	start := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	s := New()

	got := s.RandomOffset(start, 0, 5*time.Minute)
	assert.False(t, got.Before(start))
	assert.False(t, got.After(start.Add(5*time.Minute)))

	assert.Equal(t, start, s.RandomOffset(start, 0, 0))
}
