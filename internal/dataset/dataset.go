// Package dataset loads the CRM and registry exports from CSV or XLSX files.
package dataset

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/jszwec/csvutil"
	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Format is the tabular file format of an input.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// FormatFromName picks the format from a file name's extension. Anything
// that is not .xlsx is read as CSV.
func FormatFromName(name string) Format {
	if strings.EqualFold(filepath.Ext(name), ".xlsx") {
		return FormatXLSX
	}
	return FormatCSV
}

// Stats describes what happened while loading a dataset.
type Stats struct {
	Rows       int `json:"rows"`       // rows kept
	Skipped    int `json:"skipped"`    // malformed or keyless rows
	Duplicates int `json:"duplicates"` // rows dropped as duplicates of an earlier key
}

// SchemaError reports required columns that are missing from an input
// file or appear more than once in its header.
type SchemaError struct {
	Dataset   string
	Missing   []string
	Duplicate []string
}

func (e *SchemaError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "is missing required columns: "+strings.Join(e.Missing, ", "))
	}
	if len(e.Duplicate) > 0 {
		parts = append(parts, "repeats required columns: "+strings.Join(e.Duplicate, ", "))
	}
	return fmt.Sprintf("dataset: %s file %s", e.Dataset, strings.Join(parts, "; "))
}

// IsSchemaError reports whether err is (or wraps) a SchemaError.
func IsSchemaError(err error) bool {
	var se *SchemaError
	return errors.As(err, &se)
}

// rowReader is the record source shared by the CSV and XLSX paths.
type rowReader interface {
	Read() ([]string, error)
}

// decodeAll decodes every data row of r into T, keyed by header name.
// Rows with the wrong number of fields or broken quoting are skipped and
// counted.
func decodeAll[T any](r io.Reader, format Format, dataset string, required []string) ([]T, int, error) {
	src, err := openRows(r, format)
	if err != nil {
		return nil, 0, eris.Wrapf(err, "dataset: open %s", dataset)
	}

	header, err := src.Read()
	if err == io.EOF {
		return nil, 0, &SchemaError{Dataset: dataset, Missing: required}
	}
	if err != nil {
		return nil, 0, eris.Wrapf(err, "dataset: read %s header", dataset)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}
	missing, dup := checkColumns(header, required)
	if len(missing) > 0 || len(dup) > 0 {
		return nil, 0, &SchemaError{Dataset: dataset, Missing: missing, Duplicate: dup}
	}

	dec, err := csvutil.NewDecoder(src, header...)
	if err != nil {
		return nil, 0, eris.Wrapf(err, "dataset: %s decoder", dataset)
	}

	var (
		out     []T
		skipped int
	)
	for {
		var rec T
		err := dec.Decode(&rec)
		if err == io.EOF {
			break
		}
		var parseErr *csv.ParseError
		if errors.Is(err, csvutil.ErrFieldCount) || errors.As(err, &parseErr) {
			skipped++
			continue
		}
		if err != nil {
			return nil, 0, eris.Wrapf(err, "dataset: decode %s row %d", dataset, len(out)+skipped+2)
		}
		out = append(out, rec)
	}
	return out, skipped, nil
}

// checkColumns returns the required columns absent from header and those
// present more than once. A repeated column would otherwise decode from
// whichever copy comes last.
func checkColumns(header, required []string) (missing, dup []string) {
	seen := make(map[string]int, len(header))
	for _, h := range header {
		seen[h]++
	}
	for _, col := range required {
		switch n := seen[col]; {
		case n == 0:
			missing = append(missing, col)
		case n > 1:
			dup = append(dup, col)
		}
	}
	return missing, dup
}

func openRows(r io.Reader, format Format) (rowReader, error) {
	if format == FormatXLSX {
		return openXLSX(r)
	}
	return openCSV(r)
}

// openCSV strips a UTF-8/UTF-16 byte order mark and sniffs ';' versus ','
// from the first line.
func openCSV(r io.Reader) (rowReader, error) {
	br := bufio.NewReader(transform.NewReader(r, unicode.BOMOverride(unicode.UTF8.NewDecoder())))

	head, err := br.Peek(4096)
	if err != nil && err != io.EOF && !errors.Is(err, bufio.ErrBufferFull) {
		return nil, eris.Wrap(err, "peek csv")
	}
	if i := bytes.IndexByte(head, '\n'); i >= 0 {
		head = head[:i]
	}

	cr := csv.NewReader(br)
	cr.LazyQuotes = true
	cr.FieldsPerRecord = -1
	if bytes.Count(head, []byte{';'}) > bytes.Count(head, []byte{','}) {
		cr.Comma = ';'
	}
	return cr, nil
}

// sheetRows pads every row to the width of the first one, since XLSX
// rows omit trailing empty cells.
type sheetRows struct {
	rows  []*xlsx.Row
	pos   int
	width int
}

func (s *sheetRows) Read() ([]string, error) {
	for s.pos < len(s.rows) {
		row := s.rows[s.pos]
		s.pos++
		if row == nil {
			continue
		}
		cells := make([]string, len(row.Cells))
		blank := true
		for i, c := range row.Cells {
			cells[i] = c.String()
			if strings.TrimSpace(cells[i]) != "" {
				blank = false
			}
		}
		if blank {
			continue
		}
		switch {
		case s.width == 0:
			s.width = len(cells)
		case len(cells) < s.width:
			cells = append(cells, make([]string, s.width-len(cells))...)
		case len(cells) > s.width:
			cells = cells[:s.width]
		}
		return cells, nil
	}
	return nil, io.EOF
}

// openXLSX reads the first sheet of a workbook.
func openXLSX(r io.Reader) (rowReader, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, eris.Wrap(err, "read xlsx")
	}
	f, err := xlsx.OpenBinary(data)
	if err != nil {
		return nil, eris.Wrap(err, "xlsx: open")
	}
	if len(f.Sheets) == 0 {
		return nil, eris.New("xlsx: workbook has no sheets")
	}
	return &sheetRows{rows: f.Sheets[0].Rows}, nil
}

func openFile(path string) (*os.File, Format, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, "", eris.Wrapf(err, "dataset: open %s", path)
	}
	return f, FormatFromName(path), nil
}
