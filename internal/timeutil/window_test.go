package timeutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/perfreporter/perfreporter/internal/common/perferrors"
)

func TestParseWindow(t *testing.T) {
	tests := map[string]time.Duration{
		"1s":     time.Second,
		"5s":     5 * time.Second,
		"30s":    30 * time.Second,
		"500ms":  500 * time.Millisecond,
		"1min":   time.Minute,
		"2mins":  2 * time.Minute,
		"1m30s":  90 * time.Second,
		"30S":    30 * time.Second,
		"1T":     time.Minute,
		"1H":     time.Hour,
		"1.5min": 90 * time.Second,
		" 10 s ": 10 * time.Second,
	}
	for input, want := range tests {
		t.Run(input, func(t *testing.T) {
			got, err := ParseWindow(input)
			require.NoError(t, err)
			assert.Equal(t, want, got)
		})
	}
}

func TestParseWindow_Invalid(t *testing.T) {
	for _, input := range []string{"", "0s", "-5s", "0min", "five seconds", "5 fortnights", "s"} {
		t.Run(input, func(t *testing.T) {
			_, err := ParseWindow(input)
			assert.True(t, perferrors.IsInvalidArgument(err), "expected invalid argument for %q, got %v", input, err)
		})
	}
}

func TestAutoWindow(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, 5*time.Second, AutoWindow(start, start.Add(10*time.Minute), 5*time.Second))
	assert.Equal(t, 8*time.Second, AutoWindow(start, start.Add(time.Hour), time.Second))
	assert.Equal(t, 173*time.Second, AutoWindow(start, start.Add(24*time.Hour), time.Second))
	assert.Equal(t, time.Second, AutoWindow(start, start, 0))
}
