package insertion

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/perfreporter/perfreporter/internal/common/perfcontext"
	"github.com/perfreporter/perfreporter/internal/common/perferrors"
	"github.com/perfreporter/perfreporter/internal/schema"
)

func loginFrame() Frame {
	samples := loginSamples()
	f := Frame{Columns: map[string][]string{}}
	for _, s := range samples {
		f.Index = append(f.Index, s.Timestamp)
		f.Columns[ColumnLabel] = append(f.Columns[ColumnLabel], s.Label)
		f.Columns[ColumnElapsed] = append(f.Columns[ColumnElapsed], strconv.FormatFloat(s.Elapsed, 'f', -1, 64))
		f.Columns[ColumnSuccess] = append(f.Columns[ColumnSuccess], strconv.FormatBool(s.Success))
		f.Columns[ColumnResponseCode] = append(f.Columns[ColumnResponseCode], s.ResponseCode)
	}
	return f
}

func TestPrepare(t *testing.T) {
	prepared, err := Prepare(Upload{
		Frame:             loginFrame(),
		TestTitle:         "login-test",
		TestName:          "Login",
		AggregationWindow: "30s",
	}, "title", schema.ConcurrencyTransactionV1)
	require.NoError(t, err)

	assert.Equal(t, 30*time.Second, prepared.Window)
	assert.Equal(t, sampleStart, prepared.First)
	assert.Equal(t, sampleStart.Add(59400*time.Millisecond), prepared.Last)
	for _, p := range prepared.Points {
		assert.Equal(t, "login-test", p.Tags["title"])
		assert.Equal(t, "Login", p.Tags[schema.TagApplication])
	}
}

func TestPrepare_Events(t *testing.T) {
	tests := map[string]struct {
		skipEvents bool
		expected   int
	}{
		"written by default": {expected: 2},
		"skipped":            {skipEvents: true, expected: 0},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			prepared, err := Prepare(Upload{
				Frame:             loginFrame(),
				TestTitle:         "login-test",
				SkipEvents:        tc.skipEvents,
				AggregationWindow: "30s",
			}, "title", schema.ConcurrencyTransactionV1)
			require.NoError(t, err)

			events := 0
			for _, p := range prepared.Points {
				if p.Measurement == schema.MeasurementEvents {
					events++
				}
			}
			assert.Equal(t, tc.expected, events)
		})
	}
}

func TestPrepare_AcceptedWindows(t *testing.T) {
	for _, window := range []string{"1s", "5s", "500ms", "1min", "30s"} {
		t.Run(window, func(t *testing.T) {
			_, err := Prepare(Upload{Frame: loginFrame(), TestTitle: "t", AggregationWindow: window}, "", "")
			assert.NoError(t, err)
		})
	}
}

func TestPrepare_RejectedWindows(t *testing.T) {
	for _, window := range []string{"", "0s", "-5s", "soon", "5 parsecs"} {
		t.Run(window, func(t *testing.T) {
			_, err := Prepare(Upload{Frame: loginFrame(), TestTitle: "t", AggregationWindow: window}, "", "")
			assert.True(t, perferrors.IsInvalidArgument(err))
		})
	}
}

func TestSubmit(t *testing.T) {
	points := make([]Point, 12)
	var sizes []int
	written, err := Submit(perfcontext.Background(), points, 5, func(_ *perfcontext.Context, batch []Point) error {
		sizes = append(sizes, len(batch))
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 12, written)
	assert.Equal(t, []int{5, 5, 2}, sizes)
}

func TestSubmit_StopsAtFirstFailure(t *testing.T) {
	boom := errors.New("boom")
	calls := 0
	written, err := Submit(perfcontext.Background(), make([]Point, 12), 5, func(*perfcontext.Context, []Point) error {
		calls++
		if calls == 2 {
			return boom
		}
		return nil
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 5, written)
	assert.Equal(t, 2, calls)
}

func TestSubmit_Cancelled(t *testing.T) {
	c, cancel := context.WithCancel(context.Background())
	cancel()
	written, err := Submit(perfcontext.New(c, perfcontext.Background().Log), make([]Point, 3), 0, func(*perfcontext.Context, []Point) error {
		t.Fatal("write called after cancellation")
		return nil
	})
	assert.Error(t, err)
	assert.Zero(t, written)
}
