// pkg/importer/error.go
package importer

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/classbridge/roster-import/pkg/normalize"
	"github.com/classbridge/roster-import/pkg/store"
)

// ErrorCategory classifies where in the pipeline a row failed
type ErrorCategory int

const (
	ErrorCategoryNone ErrorCategory = iota
	// ErrorCategoryRouting: the row's shape matched no known record kind
	ErrorCategoryRouting
	// ErrorCategoryNormalization: a field could not be canonicalized
	ErrorCategoryNormalization
	// ErrorCategoryResolution: matching failed for non-data reasons
	ErrorCategoryResolution
	// ErrorCategoryPersistence: the store rejected a write
	ErrorCategoryPersistence
	// ErrorCategorySourceRead: the source itself failed mid-stream. The
	// only batch-fatal category.
	ErrorCategorySourceRead
)

// String returns a string representation of the error category
func (c ErrorCategory) String() string {
	switch c {
	case ErrorCategoryNone:
		return "None"
	case ErrorCategoryRouting:
		return "Routing"
	case ErrorCategoryNormalization:
		return "Normalization"
	case ErrorCategoryResolution:
		return "Resolution"
	case ErrorCategoryPersistence:
		return "Persistence"
	case ErrorCategorySourceRead:
		return "SourceRead"
	default:
		return fmt.Sprintf("Unknown(%d)", c)
	}
}

// ErrUnroutableRow marks a row whose columns matched no known record
// shape, so it could not be routed to any pipeline step
var ErrUnroutableRow = errors.New("row matches no known record shape")

// RowError records a single failed row
type RowError struct {
	Category  ErrorCategory
	Seq       int
	Field     string
	Value     string
	Err       error
	Message   string // derived from Err but stored for serialization
	Timestamp time.Time
}

// NewRowError creates a row error with the current timestamp
func NewRowError(err error, category ErrorCategory) RowError {
	record := RowError{
		Category:  category,
		Err:       err,
		Timestamp: time.Now(),
	}
	if err != nil {
		record.Message = err.Error()
	}
	return record
}

// WithSeq stamps the row's ordinal position
func (r RowError) WithSeq(seq int) RowError {
	r.Seq = seq
	return r
}

// WithField adds the offending field and raw value
func (r RowError) WithField(field, value string) RowError {
	r.Field = field
	r.Value = value
	return r
}

func (r RowError) String() string {
	s := fmt.Sprintf("[%s] row %d", r.Category, r.Seq)
	if r.Field != "" {
		s += fmt.Sprintf(" field %s=%q", r.Field, r.Value)
	}
	if r.Message != "" {
		s += ": " + r.Message
	}
	return s
}

// Categorize maps an error from the row pipeline onto its category
func Categorize(err error) ErrorCategory {
	if err == nil {
		return ErrorCategoryNone
	}
	var normErr *normalize.Error
	switch {
	case errors.Is(err, ErrUnroutableRow):
		return ErrorCategoryRouting
	case errors.As(err, &normErr):
		return ErrorCategoryNormalization
	case errors.Is(err, store.ErrVersionConflict), errors.Is(err, store.ErrNotFound):
		return ErrorCategoryPersistence
	default:
		return ErrorCategoryResolution
	}
}

// errorAggregator collects row errors for the summary: per-category
// counters plus a bounded set of samples per category
type errorAggregator struct {
	mu         sync.Mutex
	logger     *zap.Logger
	counts     map[ErrorCategory]int
	samples    map[ErrorCategory][]RowError
	maxSamples int
	total      int
}

func newErrorAggregator(logger *zap.Logger) *errorAggregator {
	return &errorAggregator{
		logger:     logger,
		counts:     make(map[ErrorCategory]int),
		samples:    make(map[ErrorCategory][]RowError),
		maxSamples: 5,
	}
}

func (a *errorAggregator) record(record RowError) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.total++
	a.counts[record.Category]++
	if len(a.samples[record.Category]) < a.maxSamples {
		a.samples[record.Category] = append(a.samples[record.Category], record)
	}

	a.logger.Warn("Row error",
		zap.Int("seq", record.Seq),
		zap.String("category", record.Category.String()),
		zap.String("error", record.Message))
}

func (a *errorAggregator) summary() (int, map[ErrorCategory]int, map[ErrorCategory][]RowError) {
	a.mu.Lock()
	defer a.mu.Unlock()

	counts := make(map[ErrorCategory]int, len(a.counts))
	for category, count := range a.counts {
		counts[category] = count
	}
	samples := make(map[ErrorCategory][]RowError, len(a.samples))
	for category, records := range a.samples {
		samples[category] = append([]RowError(nil), records...)
	}
	return a.total, counts, samples
}
