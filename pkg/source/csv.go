// pkg/source/csv.go
package source

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// CSVSource reads a comma-delimited file with a header row
type CSVSource struct {
	path  string
	comma rune
}

// NewCSVSource creates a source over the given file path
func NewCSVSource(path string) *CSVSource {
	return &CSVSource{path: path, comma: ','}
}

// WithDelimiter overrides the field delimiter and returns the source
func (s *CSVSource) WithDelimiter(comma rune) *CSVSource {
	s.comma = comma
	return s
}

// Name identifies the source by file name
func (s *CSVSource) Name() string {
	return filepath.Base(s.path)
}

// Open opens the file and consumes the header row
func (s *CSVSource) Open(ctx context.Context) (RowReader, error) {
	file, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open source file %s: %w", s.path, err)
	}

	reader := csv.NewReader(file)
	reader.Comma = s.comma
	reader.FieldsPerRecord = -1 // tolerate ragged rows; zipped against headers
	reader.TrimLeadingSpace = true

	rawHeaders, err := reader.Read()
	if err != nil {
		file.Close()
		if err == io.EOF {
			return nil, fmt.Errorf("source file %s is empty", s.path)
		}
		return nil, fmt.Errorf("failed to read header row from %s: %w", s.path, err)
	}

	headers := make([]string, len(rawHeaders))
	for i, h := range rawHeaders {
		headers[i] = cleanHeader(h)
	}

	return &csvRowReader{ctx: ctx, file: file, reader: reader, headers: headers}, nil
}

type csvRowReader struct {
	ctx     context.Context
	file    *os.File
	reader  *csv.Reader
	headers []string
}

func (r *csvRowReader) Next() (map[string]string, error) {
	if err := r.ctx.Err(); err != nil {
		return nil, err
	}
	values, err := r.reader.Read()
	if err != nil {
		return nil, err
	}
	return rowFromValues(r.headers, values), nil
}

func (r *csvRowReader) Close() error {
	return r.file.Close()
}
