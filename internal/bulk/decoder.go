package bulk

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/timmy/sfbulk/internal/domain"
)

const utf8BOM = "\ufeff"

// DecodeResults materializes a CSV results payload in the requested format.
func DecodeResults(text string, format domain.ResultFormat) (domain.ResultSet, error) {
	if err := format.Validate(); err != nil {
		return nil, err
	}

	switch format {
	case domain.FormatRaw:
		return domain.Raw(text), nil
	case domain.FormatRows:
		rows, err := readRows(text)
		if err != nil {
			return nil, err
		}
		return domain.Rows(rows), nil
	default:
		rows, err := readRows(text)
		if err != nil {
			return nil, err
		}
		return toRecords(rows), nil
	}
}

func readRows(text string) ([][]string, error) {
	r := csv.NewReader(strings.NewReader(strings.TrimPrefix(text, utf8BOM)))
	r.FieldsPerRecord = -1

	rows := make([][]string, 0)
	for {
		row, err := r.Read()
		if err == io.EOF {
			return rows, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse CSV results: %w", err)
		}
		rows = append(rows, row)
	}
}

// toRecords keys each data row by the header. Later duplicate header names
// overwrite earlier ones; missing cells are empty and surplus cells dropped.
func toRecords(rows [][]string) domain.Records {
	out := domain.Records{Items: make([]domain.Record, 0)}
	if len(rows) == 0 {
		return out
	}

	out.Fields = rows[0]
	for _, row := range rows[1:] {
		rec := make(domain.Record, len(out.Fields))
		for i, field := range out.Fields {
			if i < len(row) {
				rec[field] = row[i]
			} else {
				rec[field] = ""
			}
		}
		out.Items = append(out.Items, rec)
	}
	return out
}
