// pkg/source/memory.go
package source

import (
	"context"
	"io"
)

// MemorySource serves rows held in process. Backs tests and programmatic
// imports where the caller already has the rows in hand.
type MemorySource struct {
	name string
	rows []map[string]string
}

// NewMemorySource creates a source over the given rows
func NewMemorySource(name string, rows []map[string]string) *MemorySource {
	return &MemorySource{name: name, rows: rows}
}

// Name identifies the source
func (s *MemorySource) Name() string {
	return s.name
}

// Open starts a read pass from the first row
func (s *MemorySource) Open(ctx context.Context) (RowReader, error) {
	return &memoryRowReader{ctx: ctx, rows: s.rows}, nil
}

type memoryRowReader struct {
	ctx  context.Context
	rows []map[string]string
	pos  int
}

func (r *memoryRowReader) Next() (map[string]string, error) {
	if err := r.ctx.Err(); err != nil {
		return nil, err
	}
	if r.pos >= len(r.rows) {
		return nil, io.EOF
	}
	row := make(map[string]string, len(r.rows[r.pos]))
	for k, v := range r.rows[r.pos] {
		row[cleanHeader(k)] = v
	}
	r.pos++
	return row, nil
}

func (r *memoryRowReader) Close() error {
	return nil
}
