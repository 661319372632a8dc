package domain

import "strings"

// ResultFormat selects how a results payload is materialized.
type ResultFormat string

const (
	FormatRecords ResultFormat = "records"
	FormatRows    ResultFormat = "rows"
	FormatRaw     ResultFormat = "raw"
)

// ResultFormats lists the supported formats in their canonical order.
var ResultFormats = []ResultFormat{FormatRecords, FormatRows, FormatRaw}

// Validate returns an ErrInvalidArgument error naming f and the allowed set
// when f is not a supported format.
func (f ResultFormat) Validate() error {
	for _, allowed := range ResultFormats {
		if f == allowed {
			return nil
		}
	}
	names := make([]string, len(ResultFormats))
	for i, allowed := range ResultFormats {
		names[i] = string(allowed)
	}
	return InvalidArgumentf("unsupported format %q, allowed formats are: %s", string(f), strings.Join(names, ", "))
}

// ResultCategory names one output partition of a job.
type ResultCategory string

const (
	CategoryResults            ResultCategory = "results"
	CategorySuccessfulResults  ResultCategory = "successfulResults"
	CategoryFailedResults      ResultCategory = "failedResults"
	CategoryUnprocessedRecords ResultCategory = "unprocessedrecords"
)

// Kind returns the job family the category belongs to.
func (c ResultCategory) Kind() (JobKind, bool) {
	switch c {
	case CategoryResults:
		return JobKindQuery, true
	case CategorySuccessfulResults, CategoryFailedResults, CategoryUnprocessedRecords:
		return JobKindIngest, true
	default:
		return "", false
	}
}

// ParseResultCategory accepts the wire names case-insensitively so that
// "unprocessedRecords" and "unprocessedrecords" both resolve.
func ParseResultCategory(s string) (ResultCategory, error) {
	for _, c := range []ResultCategory{
		CategoryResults,
		CategorySuccessfulResults,
		CategoryFailedResults,
		CategoryUnprocessedRecords,
	} {
		if strings.EqualFold(s, string(c)) {
			return c, nil
		}
	}
	return "", InvalidArgumentf("unsupported result category %q", s)
}

// ResultSet is the materialized output of a results endpoint. The concrete
// type is one of Records, Rows or Raw.
type ResultSet interface {
	Format() ResultFormat
	Len() int
	resultSet()
}

// Record maps a header field name to its cell value.
type Record map[string]string

// Records holds one Record per data row, in server order.
type Records struct {
	Fields []string `json:"fields"`
	Items  []Record `json:"items"`
}

// Rows holds every CSV row, header first.
type Rows [][]string

// Raw is the undecoded response text.
type Raw string

func (Records) Format() ResultFormat { return FormatRecords }
func (Rows) Format() ResultFormat    { return FormatRows }
func (Raw) Format() ResultFormat     { return FormatRaw }

// Len returns the number of data records.
func (r Records) Len() int { return len(r.Items) }

// Len returns the number of rows including the header.
func (r Rows) Len() int { return len(r) }

// Len returns the text length in bytes.
func (r Raw) Len() int { return len(r) }

func (Records) resultSet() {}
func (Rows) resultSet()    {}
func (Raw) resultSet()     {}
