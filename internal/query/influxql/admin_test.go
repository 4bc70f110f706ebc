package influxql

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDropTest(t *testing.T) {
	assert.Equal(t, `DROP SERIES FROM "jmeter" WHERE "testTitle" = 'it\'s'`, DropTest("jmeter", "testTitle", "it's"))
}

func TestDeleteTest(t *testing.T) {
	start := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)
	tests := map[string]struct {
		start *time.Time
		end   *time.Time
		want  string
	}{
		"both bounds": {
			start: &start,
			end:   &end,
			want:  `DELETE FROM "errors" WHERE "testTitle" = 'smoke' AND time >= '2024-01-01T10:00:00Z' AND time <= '2024-01-01T11:00:00Z'`,
		},
		"open start": {
			end:  &end,
			want: `DELETE FROM "errors" WHERE "testTitle" = 'smoke' AND time <= '2024-01-01T11:00:00Z'`,
		},
		"open end": {
			start: &start,
			want:  `DELETE FROM "errors" WHERE "testTitle" = 'smoke' AND time >= '2024-01-01T10:00:00Z'`,
		},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.want, DeleteTest("errors", "testTitle", "smoke", tc.start, tc.end))
		})
	}
}
