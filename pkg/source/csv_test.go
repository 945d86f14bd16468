// pkg/source/csv_test.go
package source

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "roster.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestCSVSourceReadsHeaderedRows(t *testing.T) {
	path := writeTempCSV(t, "Session ID,Title,Date\nS100,Data Day,2026-03-01\nS101,Pottery,2026-03-02\n")
	src := NewCSVSource(path)
	assert.Equal(t, "roster.csv", src.Name())

	reader, err := src.Open(context.Background())
	require.NoError(t, err)
	defer reader.Close()

	first, err := reader.Next()
	require.NoError(t, err)
	assert.Equal(t, "S100", first["session id"])
	assert.Equal(t, "Data Day", first["title"])

	second, err := reader.Next()
	require.NoError(t, err)
	assert.Equal(t, "Pottery", second["title"])

	_, err = reader.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestCSVSourceToleratesRaggedRows(t *testing.T) {
	path := writeTempCSV(t, "title,date,status\nData Day,2026-03-01\n")
	reader, err := NewCSVSource(path).Open(context.Background())
	require.NoError(t, err)
	defer reader.Close()

	row, err := reader.Next()
	require.NoError(t, err)
	assert.Equal(t, "Data Day", row["title"])
	assert.Equal(t, "", row["status"])
}

func TestCSVSourceEmptyFileIsFatal(t *testing.T) {
	path := writeTempCSV(t, "")
	_, err := NewCSVSource(path).Open(context.Background())
	require.Error(t, err)
}

func TestCSVSourceStripsBOMFromHeader(t *testing.T) {
	path := writeTempCSV(t, "\uFEFFtitle,date\nData Day,2026-03-01\n")
	reader, err := NewCSVSource(path).Open(context.Background())
	require.NoError(t, err)
	defer reader.Close()

	row, err := reader.Next()
	require.NoError(t, err)
	assert.Equal(t, "Data Day", row["title"])
}

func TestCSVSourceCancelledContext(t *testing.T) {
	path := writeTempCSV(t, "title\nData Day\n")
	ctx, cancel := context.WithCancel(context.Background())
	reader, err := NewCSVSource(path).Open(ctx)
	require.NoError(t, err)
	defer reader.Close()

	cancel()
	_, err = reader.Next()
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMemorySourceServesRowsInOrder(t *testing.T) {
	src := NewMemorySource("seed", []map[string]string{
		{"Title": "First"},
		{"Title": "Second"},
	})
	reader, err := src.Open(context.Background())
	require.NoError(t, err)
	defer reader.Close()

	first, err := reader.Next()
	require.NoError(t, err)
	assert.Equal(t, "First", first["title"])

	second, err := reader.Next()
	require.NoError(t, err)
	assert.Equal(t, "Second", second["title"])

	_, err = reader.Next()
	assert.ErrorIs(t, err, io.EOF)
}
