package verify

import (
	"encoding/csv"
	"io"
	"strings"

	"github.com/goliatone/go-errors"
)

// MaxBulkRows caps a single upload so one file cannot monopolize the
// provider budget.
var MaxBulkRows = 1000

// RowError ties a parse failure to its line number in the upload.
type RowError struct {
	Line    int    `json:"line"`
	Message string `json:"message"`
}

// ParseCSV reads a bulk upload into queries. The first row must be a
// header; columns are matched by name so order does not matter. Rows that
// fail validation are collected, not fatal: the caller decides whether a
// partially bad file still runs.
func ParseCSV(r io.Reader) ([]Query, []RowError, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, nil, errors.Wrap(err, errors.CategoryValidation, "upload is empty or not a CSV file").
			WithTextCode("BAD_CSV")
	}

	idx := map[string]int{}
	for i, name := range header {
		idx[normalizeHeader(name)] = i
	}

	for _, required := range []string{"first_name", "last_name", "date_of_birth", "city", "state"} {
		if _, ok := idx[required]; !ok {
			return nil, nil, errors.New("upload is missing a required column", errors.CategoryValidation).
				WithTextCode("MISSING_COLUMN").
				WithMetadata(map[string]any{"column": required})
		}
	}

	var queries []Query
	var rowErrors []RowError
	line := 1

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++

		if err != nil {
			rowErrors = append(rowErrors, RowError{Line: line, Message: err.Error()})
			continue
		}

		if len(queries) >= MaxBulkRows {
			return nil, nil, errors.New("upload exceeds the row limit", errors.CategoryValidation).
				WithTextCode("TOO_MANY_ROWS").
				WithMetadata(map[string]any{"limit": MaxBulkRows})
		}

		q := Query{
			FirstName:   field(record, idx, "first_name"),
			MiddleName:  field(record, idx, "middle_name"),
			LastName:    field(record, idx, "last_name"),
			DateOfBirth: field(record, idx, "date_of_birth"),
			City:        field(record, idx, "city"),
			State:       field(record, idx, "state"),
		}

		if err := q.Validate(); err != nil {
			rowErrors = append(rowErrors, RowError{Line: line, Message: err.Error()})
			continue
		}

		queries = append(queries, q)
	}

	return queries, rowErrors, nil
}

func normalizeHeader(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	name = strings.ReplaceAll(name, " ", "_")
	return name
}

func field(record []string, idx map[string]int, name string) string {
	i, ok := idx[name]
	if !ok || i >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[i])
}
