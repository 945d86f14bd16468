// pkg/source/source.go

// Package source provides tabular readers that feed the import pipeline.
// A source yields each data row as a header-keyed dictionary; whatever
// carries the data underneath (delimited text, a spreadsheet, a warehouse
// table) stays behind the interface.
package source

import (
	"context"
	"strings"
)

// Source is a named tabular input
type Source interface {
	// Name identifies the source in summaries and logs
	Name() string
	// Open starts a read pass. Failure here is the only batch-fatal
	// condition the pipeline recognizes.
	Open(ctx context.Context) (RowReader, error)
}

// RowReader iterates rows in source order. Next returns io.EOF when the
// source is exhausted.
type RowReader interface {
	Next() (map[string]string, error)
	Close() error
}

// cleanHeader canonicalizes a column header for use as a row key
func cleanHeader(h string) string {
	return strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\uFEFF")))
}

// rowFromValues zips headers and cell values into a row dictionary,
// tolerating ragged rows
func rowFromValues(headers, values []string) map[string]string {
	row := make(map[string]string, len(headers))
	for i, header := range headers {
		if header == "" {
			continue
		}
		if i < len(values) {
			row[header] = values[i]
		} else {
			row[header] = ""
		}
	}
	return row
}
