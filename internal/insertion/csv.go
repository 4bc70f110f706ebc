package insertion

import (
	"encoding/csv"
	"io"
	"strings"

	"github.com/pkg/errors"

	"github.com/perfreporter/perfreporter/internal/common/perferrors"
)

// headerAliases maps JTL result file headers onto frame columns.
var headerAliases = map[string]string{
	"timeStamp": ColumnTimestamp,
	"Hostname":  ColumnHostname,
}

// ReadCSV reads a JMeter CSV result file into a Frame. The timestamp column is kept as text and
// decoded by Frame.Samples.
func ReadCSV(r io.Reader) (Frame, error) {
	reader := csv.NewReader(r)
	reader.ReuseRecord = false
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return Frame{}, &perferrors.ErrInvalidArgument{Name: "file", Message: "result file is empty"}
	}
	if err != nil {
		return Frame{}, errors.Wrap(err, "reading result header")
	}
	names := make([]string, len(header))
	columns := make(map[string][]string, len(header))
	for i, h := range header {
		name := strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		if alias, ok := headerAliases[name]; ok {
			name = alias
		}
		names[i] = name
		columns[name] = []string{}
	}

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return Frame{}, errors.Wrap(err, "reading result row")
		}
		for i, name := range names {
			columns[name] = append(columns[name], record[i])
		}
	}
	return Frame{Columns: columns}, nil
}
