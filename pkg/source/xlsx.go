// pkg/source/xlsx.go
package source

import (
	"context"
	"fmt"
	"io"
	"path/filepath"

	"github.com/xuri/excelize/v2"
)

// XLSXSource reads one sheet of a spreadsheet workbook with a header row.
// When no sheet name is given the workbook's first sheet is used.
type XLSXSource struct {
	path  string
	sheet string
}

// NewXLSXSource creates a source over the given workbook path
func NewXLSXSource(path string) *XLSXSource {
	return &XLSXSource{path: path}
}

// WithSheet selects a sheet by name and returns the source
func (s *XLSXSource) WithSheet(sheet string) *XLSXSource {
	s.sheet = sheet
	return s
}

// Name identifies the source by file name
func (s *XLSXSource) Name() string {
	return filepath.Base(s.path)
}

// Open loads the workbook and positions the reader past the header row
func (s *XLSXSource) Open(ctx context.Context) (RowReader, error) {
	workbook, err := excelize.OpenFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook %s: %w", s.path, err)
	}

	sheet := s.sheet
	if sheet == "" {
		sheet = workbook.GetSheetName(0)
	}
	if sheet == "" {
		workbook.Close()
		return nil, fmt.Errorf("workbook %s has no sheets", s.path)
	}

	rows, err := workbook.Rows(sheet)
	if err != nil {
		workbook.Close()
		return nil, fmt.Errorf("failed to read sheet %q from %s: %w", sheet, s.path, err)
	}

	if !rows.Next() {
		rows.Close()
		workbook.Close()
		return nil, fmt.Errorf("sheet %q in %s is empty", sheet, s.path)
	}
	rawHeaders, err := rows.Columns()
	if err != nil {
		rows.Close()
		workbook.Close()
		return nil, fmt.Errorf("failed to read header row from %s: %w", s.path, err)
	}

	headers := make([]string, len(rawHeaders))
	for i, h := range rawHeaders {
		headers[i] = cleanHeader(h)
	}

	return &xlsxRowReader{ctx: ctx, workbook: workbook, rows: rows, headers: headers}, nil
}

type xlsxRowReader struct {
	ctx      context.Context
	workbook *excelize.File
	rows     *excelize.Rows
	headers  []string
}

func (r *xlsxRowReader) Next() (map[string]string, error) {
	if err := r.ctx.Err(); err != nil {
		return nil, err
	}
	if !r.rows.Next() {
		if err := r.rows.Error(); err != nil {
			return nil, err
		}
		return nil, io.EOF
	}
	values, err := r.rows.Columns()
	if err != nil {
		return nil, err
	}
	return rowFromValues(r.headers, values), nil
}

func (r *xlsxRowReader) Close() error {
	r.rows.Close()
	return r.workbook.Close()
}
