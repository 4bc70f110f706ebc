// Package insertion turns uploaded raw samples into the windowed aggregate points stored by both
// engine generations.
package insertion

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"

	"github.com/perfreporter/perfreporter/internal/common/perferrors"
	"github.com/perfreporter/perfreporter/internal/timeutil"
)

// Column names of a sample frame.
const (
	ColumnTimestamp       = "timestamp"
	ColumnLabel           = "label"
	ColumnElapsed         = "elapsed"
	ColumnSuccess         = "success"
	ColumnBytes           = "bytes"
	ColumnSentBytes       = "sentBytes"
	ColumnResponseCode    = "responseCode"
	ColumnResponseMessage = "responseMessage"
	ColumnAllThreads      = "allThreads"
	ColumnHostname        = "hostname"

	defaultHostname = "local"
)

var requiredColumns = []string{ColumnLabel, ColumnElapsed, ColumnSuccess}

// Frame is a normalized sample table. The timestamp axis is either Index or the timestamp column.
type Frame struct {
	Index   []time.Time
	Columns map[string][]string
}

// Sample is one recorded request.
type Sample struct {
	Timestamp       time.Time
	Label           string
	Elapsed         float64
	Success         bool
	Bytes           int64
	SentBytes       int64
	ResponseCode    string
	ResponseMessage string
	AllThreads      int64
	Hostname        string
}

// Len is the number of rows of the frame.
func (f Frame) Len() int {
	if len(f.Index) > 0 {
		return len(f.Index)
	}
	return len(f.Columns[ColumnTimestamp])
}

func (f Frame) checkShape() error {
	var result *multierror.Error
	_, hasTimestampColumn := f.Columns[ColumnTimestamp]
	if len(f.Index) == 0 && !hasTimestampColumn {
		result = multierror.Append(result, &perferrors.ErrInvalidArgument{Name: ColumnTimestamp, Message: "frame has no timestamp index or column"})
	}
	for _, name := range requiredColumns {
		if _, ok := f.Columns[name]; !ok {
			result = multierror.Append(result, &perferrors.ErrInvalidArgument{Name: name, Message: "required column is missing"})
		}
	}
	if result != nil {
		return result.ErrorOrNil()
	}
	rows := f.Len()
	for name, values := range f.Columns {
		if len(values) != rows {
			result = multierror.Append(result, &perferrors.ErrInvalidArgument{
				Name:    name,
				Value:   strconv.Itoa(len(values)),
				Message: fmt.Sprintf("column length does not match the %d rows of the frame", rows),
			})
		}
	}
	return result.ErrorOrNil()
}

func (f Frame) value(column string, row int) string {
	values, ok := f.Columns[column]
	if !ok {
		return ""
	}
	return strings.TrimSpace(values[row])
}

// Samples validates the frame and decodes every row. Missing optional columns take their defaults.
// All row-level failures are reported together.
func (f Frame) Samples() ([]Sample, error) {
	if err := f.checkShape(); err != nil {
		return nil, errors.WithMessage(err, "sample frame is invalid")
	}
	var result *multierror.Error
	fail := func(row int, column, value string, err error) {
		result = multierror.Append(result, &perferrors.ErrInvalidArgument{
			Name:    column,
			Value:   value,
			Message: fmt.Sprintf("row %d: %v", row, err),
		})
	}

	samples := make([]Sample, f.Len())
	for i := range samples {
		s := Sample{
			Label:           f.value(ColumnLabel, i),
			ResponseCode:    f.value(ColumnResponseCode, i),
			ResponseMessage: f.value(ColumnResponseMessage, i),
			Hostname:        f.value(ColumnHostname, i),
		}
		if s.Hostname == "" {
			s.Hostname = defaultHostname
		}
		if s.Label == "" {
			fail(i, ColumnLabel, "", errors.New("label is empty"))
		}

		if len(f.Index) > 0 {
			s.Timestamp = f.Index[i].UTC()
		} else if ts, err := timeutil.ParseInstant(f.value(ColumnTimestamp, i)); err != nil {
			fail(i, ColumnTimestamp, f.value(ColumnTimestamp, i), err)
		} else {
			s.Timestamp = ts
		}
		if s.Timestamp.IsZero() && len(f.Index) > 0 {
			fail(i, ColumnTimestamp, "", errors.New("index timestamp is zero"))
		}

		var err error
		if s.Elapsed, err = strconv.ParseFloat(f.value(ColumnElapsed, i), 64); err != nil || s.Elapsed < 0 {
			fail(i, ColumnElapsed, f.value(ColumnElapsed, i), errors.New("expected a non-negative number"))
		}
		if s.Success, err = strconv.ParseBool(f.value(ColumnSuccess, i)); err != nil {
			fail(i, ColumnSuccess, f.value(ColumnSuccess, i), errors.New("expected true or false"))
		}
		for column, dst := range map[string]*int64{ColumnBytes: &s.Bytes, ColumnSentBytes: &s.SentBytes, ColumnAllThreads: &s.AllThreads} {
			raw := f.value(column, i)
			if raw == "" {
				continue
			}
			if *dst, err = strconv.ParseInt(raw, 10, 64); err != nil {
				fail(i, column, raw, errors.New("expected an integer"))
			}
		}
		samples[i] = s
	}
	if err := result.ErrorOrNil(); err != nil {
		return nil, errors.WithMessage(err, "sample frame has invalid rows")
	}
	return samples, nil
}
