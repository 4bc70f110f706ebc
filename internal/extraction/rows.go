package extraction

import (
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/perfreporter/perfreporter/internal/common/perferrors"
)

// TestLogRow is one test of the test log.
type TestLogRow struct {
	TestTitle string    `json:"test_title" validate:"required"`
	TestName  string    `json:"test_name"`
	StartTime time.Time `json:"start_time" validate:"required"`
	EndTime   time.Time `json:"end_time" validate:"required,gtefield=StartTime"`
	// Duration is whole seconds between StartTime and EndTime.
	Duration   int64 `json:"duration" validate:"gte=0"`
	MaxThreads int   `json:"max_threads" validate:"gte=0"`
}

// AggregatedRow is the summary of one transaction.
type AggregatedRow struct {
	Transaction string  `json:"transaction" validate:"required"`
	Count       float64 `json:"count" validate:"gte=0"`
	Errors      float64 `json:"errors" validate:"gte=0"`
	Avg         float64 `json:"avg"`
	Min         float64 `json:"min"`
	Max         float64 `json:"max"`
	Pct50       float64 `json:"pct50"`
	Pct75       float64 `json:"pct75"`
	Pct90       float64 `json:"pct90"`
	Pct95       float64 `json:"pct95"`
	Pct99       float64 `json:"pct99"`
	Stddev      float64 `json:"stddev"`
	RPM         float64 `json:"rpm"`
}

// ErrorRow counts one response code of one transaction.
type ErrorRow struct {
	Transaction     string  `json:"transaction" validate:"required"`
	ResponseCode    string  `json:"response_code" validate:"required"`
	ResponseMessage string  `json:"response_message"`
	Count           float64 `json:"count" validate:"gte=0"`
}

// PageRow holds the values of one page keyed by metric (or content type).
type PageRow struct {
	Page   string             `json:"page" validate:"required"`
	Values map[string]float64 `json:"values" validate:"required"`
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func rowValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()
	})
	return validate
}

// validateRows checks every row and reports the first violation.
func validateRows[T any](operation string, rows []T) error {
	for i := range rows {
		if err := rowValidator().Struct(rows[i]); err != nil {
			return errors.WithStack(&perferrors.ErrShapeViolation{
				Operation: operation,
				Message:   errors.WithMessagef(err, "row %d", i).Error(),
			})
		}
	}
	return nil
}
