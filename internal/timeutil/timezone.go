// Package timeutil converts between the UTC instants stored by the time-series engines and the
// display timezone configured for an integration.
package timeutil

import (
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/perfreporter/perfreporter/internal/common/perferrors"
)

const (
	// HumanLayout is the locale-style representation shown in reports.
	HumanLayout = "2006-01-02 03:04:05 PM"
	// ISOLayout is used for query bounds and machine readable output.
	ISOLayout = time.RFC3339
	// BoundaryPad widens start/end boundaries so that range queries don't clip the first or last sample.
	BoundaryPad = 30 * time.Second

	naiveLayout = "2006-01-02 15:04:05"
)

// Format selects the representation produced by FormatBoundary.
type Format string

const (
	FormatHuman     Format = "human"
	FormatISO       Format = "iso"
	FormatTimestamp Format = "timestamp"
)

// ParseFormat returns the Format named by s.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatHuman, FormatISO, FormatTimestamp:
		return f, nil
	}
	return "", &perferrors.ErrInvalidArgument{Name: "timeFormat", Value: s, Message: "expected human, iso or timestamp"}
}

// Boundary identifies which end of a test range is being formatted.
type Boundary int

const (
	Start Boundary = iota
	End
)

// FormattedTime is an instant rendered in one of the supported formats. Text is set for the human
// and iso formats, Millis for the timestamp format.
type FormattedTime struct {
	Format Format
	Text   string
	Millis int64
}

func (f FormattedTime) String() string {
	if f.Format == FormatTimestamp {
		return strconv.FormatInt(f.Millis, 10)
	}
	return f.Text
}

// LoadLocation loads an IANA timezone. The empty name is UTC.
func LoadLocation(name string) (*time.Location, error) {
	if strings.TrimSpace(name) == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, &perferrors.ErrInvalidArgument{Name: "tmz", Value: name, Message: err.Error()}
	}
	return loc, nil
}

// Localize returns t expressed in loc. A nil loc means UTC. Applying it repeatedly is a no-op.
func Localize(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc)
}

// ParseInstant parses RFC3339 strings, naive "2006-01-02 15:04:05" strings (assumed UTC) and epoch
// milliseconds. The result is always in UTC.
func ParseInstant(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, &perferrors.ErrInvalidArgument{Name: "timestamp", Value: s, Message: "empty"}
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC(), nil
	}
	for _, layout := range []string{time.RFC3339Nano, naiveLayout, "2006-01-02T15:04:05", "2006/01/02 15:04:05.000"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, &perferrors.ErrInvalidArgument{Name: "timestamp", Value: s, Message: "unrecognised time format"}
}

// FormatBoundary renders a test boundary instant. The iso format widens the boundary by BoundaryPad
// (earlier for Start, later for End); the timestamp format is epoch milliseconds of the UTC instant
// and so doesn't depend on loc.
func FormatBoundary(t time.Time, loc *time.Location, format Format, boundary Boundary) (FormattedTime, error) {
	switch format {
	case FormatHuman:
		return FormattedTime{Format: format, Text: Localize(t, loc).Format(HumanLayout)}, nil
	case FormatISO:
		padded := t.Add(BoundaryPad)
		if boundary == Start {
			padded = t.Add(-BoundaryPad)
		}
		return FormattedTime{Format: format, Text: Localize(padded, loc).Format(ISOLayout)}, nil
	case FormatTimestamp:
		return FormattedTime{Format: format, Millis: t.UTC().UnixMilli()}, nil
	}
	return FormattedTime{}, errors.WithStack(&perferrors.ErrInvalidArgument{Name: "timeFormat", Value: string(format)})
}

// Validate checks that f is well formed for its declared format.
func (f FormattedTime) Validate() error {
	switch f.Format {
	case FormatHuman:
		if _, err := time.Parse(HumanLayout, f.Text); err != nil {
			return errors.Errorf("human time %q does not match layout %q", f.Text, HumanLayout)
		}
	case FormatISO:
		if _, err := time.Parse(ISOLayout, f.Text); err != nil {
			return errors.Errorf("iso time %q does not match layout %q", f.Text, ISOLayout)
		}
	case FormatTimestamp:
		if f.Text != "" || f.Millis <= 0 {
			return errors.Errorf("timestamp must be positive epoch milliseconds, got %d", f.Millis)
		}
	default:
		return errors.Errorf("unknown time format %q", f.Format)
	}
	return nil
}

// FormatQueryTime renders t as an RFC3339 UTC literal with nanosecond precision, as accepted by both
// query dialects.
func FormatQueryTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
