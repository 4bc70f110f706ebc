package influxql

import (
	"fmt"
	"time"

	"github.com/perfreporter/perfreporter/internal/timeutil"
)

// ShowDatabases lists the databases of the server; the result has a single "name" column.
const ShowDatabases = "SHOW DATABASES"

// DropTest removes every series of a test from measurement.
func DropTest(measurement, titleTag, title string) string {
	return fmt.Sprintf("DROP SERIES FROM %s%s", Ident(measurement), where(eq(titleTag, title)))
}

// DeleteTest removes the points of a test in measurement between start and end, both inclusive.
// A nil bound leaves that side open.
func DeleteTest(measurement, titleTag, title string, start, end *time.Time) string {
	conds := []string{eq(titleTag, title)}
	if start != nil {
		conds = append(conds, "time >= "+Literal(timeutil.FormatQueryTime(*start)))
	}
	if end != nil {
		conds = append(conds, "time <= "+Literal(timeutil.FormatQueryTime(*end)))
	}
	return fmt.Sprintf("DELETE FROM %s%s", Ident(measurement), where(conds...))
}
