package timeutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/perfreporter/perfreporter/internal/common/perferrors"
)

var testStart = time.Date(2024, 3, 10, 14, 5, 0, 0, time.UTC)

func mustLoad(t *testing.T, name string) *time.Location {
	t.Helper()
	loc, err := LoadLocation(name)
	require.NoError(t, err)
	return loc
}

func TestLocalize_Idempotent(t *testing.T) {
	berlin := mustLoad(t, "Europe/Berlin")
	once := Localize(testStart, berlin)
	twice := Localize(once, berlin)

	assert.True(t, once.Equal(testStart))
	assert.Equal(t, once, twice)
	assert.Equal(t, 15, once.Hour())
}

func TestLocalize_NilLocationIsUTC(t *testing.T) {
	assert.Equal(t, time.UTC, Localize(testStart, nil).Location())
}

func TestLoadLocation(t *testing.T) {
	assert.Equal(t, time.UTC, mustLoad(t, ""))
	_, err := LoadLocation("Nowhere/Special")
	assert.True(t, perferrors.IsInvalidArgument(err))
}

func TestParseInstant(t *testing.T) {
	tests := map[string]struct {
		input string
		want  time.Time
	}{
		"rfc3339":          {"2024-03-10T14:05:00Z", testStart},
		"rfc3339 offset":   {"2024-03-10T16:05:00+02:00", testStart},
		"naive is utc":     {"2024-03-10 14:05:00", testStart},
		"epoch millis":     {"1710079500000", testStart},
		"rfc3339 fraction": {"2024-03-10T14:05:00.250Z", testStart.Add(250 * time.Millisecond)},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			got, err := ParseInstant(tc.input)
			require.NoError(t, err)
			assert.True(t, tc.want.Equal(got), "want %s got %s", tc.want, got)
			assert.Equal(t, time.UTC, got.Location())
		})
	}
}

func TestParseInstant_Invalid(t *testing.T) {
	for _, input := range []string{"", "yesterday", "2024-13-45"} {
		_, err := ParseInstant(input)
		assert.Error(t, err, input)
	}
}

func TestFormatBoundary(t *testing.T) {
	berlin := mustLoad(t, "Europe/Berlin")
	tests := map[string]struct {
		format   Format
		boundary Boundary
		loc      *time.Location
		want     FormattedTime
	}{
		"human utc":       {FormatHuman, Start, time.UTC, FormattedTime{Format: FormatHuman, Text: "2024-03-10 02:05:00 PM"}},
		"human berlin":    {FormatHuman, Start, berlin, FormattedTime{Format: FormatHuman, Text: "2024-03-10 03:05:00 PM"}},
		"iso start pad":   {FormatISO, Start, time.UTC, FormattedTime{Format: FormatISO, Text: "2024-03-10T14:04:30Z"}},
		"iso end pad":     {FormatISO, End, time.UTC, FormattedTime{Format: FormatISO, Text: "2024-03-10T14:05:30Z"}},
		"iso berlin":      {FormatISO, Start, berlin, FormattedTime{Format: FormatISO, Text: "2024-03-10T15:04:30+01:00"}},
		"timestamp utc":   {FormatTimestamp, Start, time.UTC, FormattedTime{Format: FormatTimestamp, Millis: 1710079500000}},
		"timestamp other": {FormatTimestamp, End, berlin, FormattedTime{Format: FormatTimestamp, Millis: 1710079500000}},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			got, err := FormatBoundary(testStart, tc.loc, tc.format, tc.boundary)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
			assert.NoError(t, got.Validate())
		})
	}
}

func TestFormatBoundary_TimestampInvariantUnderTimezone(t *testing.T) {
	utc, err := FormatBoundary(testStart, time.UTC, FormatTimestamp, Start)
	require.NoError(t, err)
	tokyo, err := FormatBoundary(testStart, mustLoad(t, "Asia/Tokyo"), FormatTimestamp, Start)
	require.NoError(t, err)
	assert.Equal(t, utc, tokyo)
	assert.Equal(t, "1710079500000", tokyo.String())
}

func TestFormatBoundary_UnknownFormat(t *testing.T) {
	_, err := FormatBoundary(testStart, time.UTC, Format("epoch"), Start)
	assert.True(t, perferrors.IsInvalidArgument(err))
}

func TestFormattedTime_Validate(t *testing.T) {
	assert.Error(t, FormattedTime{Format: FormatHuman, Text: "2024-03-10T14:05:00Z"}.Validate())
	assert.Error(t, FormattedTime{Format: FormatISO, Text: "10/03/2024"}.Validate())
	assert.Error(t, FormattedTime{Format: FormatTimestamp}.Validate())
	assert.Error(t, FormattedTime{Format: FormatTimestamp, Millis: 5, Text: "5"}.Validate())
	assert.Error(t, FormattedTime{Format: "other"}.Validate())
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat(" ISO ")
	require.NoError(t, err)
	assert.Equal(t, FormatISO, f)
	_, err = ParseFormat("unix")
	assert.Error(t, err)
}

func TestFormatQueryTime(t *testing.T) {
	berlin := mustLoad(t, "Europe/Berlin")
	assert.Equal(t, "2024-03-10T14:05:00Z", FormatQueryTime(testStart.In(berlin)))
	assert.Equal(t, "2024-03-10T14:05:00.5Z", FormatQueryTime(testStart.Add(500*time.Millisecond)))
}
