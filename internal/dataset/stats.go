package dataset

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"strings"
)

var requiredStatsFields = []string{"total_calls", "failed_calls", "failure_rate", "vehicles_driven"}

// ParseStatsSummary reads the two-line summary table: a header row of field
// names followed by one row of values.
func ParseStatsSummary(b []byte) (StatsSummary, error) {
	r := csv.NewReader(bytes.NewReader(bytes.TrimSpace(b)))
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true
	rows, err := r.ReadAll()
	if err != nil {
		return StatsSummary{}, &ParseError{Dataset: KindStats, Err: err}
	}
	if len(rows) < 2 {
		return StatsSummary{}, &ParseError{Dataset: KindStats, Err: fmt.Errorf("want header and data rows, got %d rows", len(rows))}
	}
	header, values := rows[0], rows[1]
	fields := make(map[string]string, len(header))
	for i, h := range header {
		h = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		if i < len(values) {
			fields[h] = strings.TrimSpace(values[i])
		} else {
			fields[h] = ""
		}
	}
	var missing []string
	for _, f := range requiredStatsFields {
		if _, ok := fields[f]; !ok {
			missing = append(missing, f)
		}
	}
	if len(missing) > 0 {
		return StatsSummary{}, &ParseError{Dataset: KindStats, Err: errors.New("missing fields: " + strings.Join(missing, ", "))}
	}
	s := StatsSummary{
		TotalCalls:     fields["total_calls"],
		FailedCalls:    fields["failed_calls"],
		FailureRate:    fields["failure_rate"],
		VehiclesDriven: fields["vehicles_driven"],
	}
	for _, f := range requiredStatsFields {
		delete(fields, f)
	}
	if len(fields) > 0 {
		s.Extra = fields
	}
	return s, nil
}
