// pkg/normalize/normalize_test.go
package normalize

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/classbridge/roster-import/pkg/model"
)

func record(values map[string]string) model.Record {
	return model.Record{Seq: 1, Values: values}
}

func TestSessionMapsHeaderAliases(t *testing.T) {
	row, err := Session(record(map[string]string{
		"Session ID":    "  S-42 ",
		"Session Title": "  Intro to Pottery  ",
		"Event Date":    "2026-03-01",
		"State":         "Active",
		"Instructor":    "Jane Doe",
	}))
	require.NoError(t, err)

	assert.Equal(t, "S-42", row.ExternalID)
	require.NotNil(t, row.Title)
	assert.Equal(t, "Intro to Pottery", *row.Title)
	require.NotNil(t, row.Date)
	assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), *row.Date)
	require.NotNil(t, row.Status)
	assert.Equal(t, model.StatusPublished, row.Status.Code)
	require.NotNil(t, row.TeacherRef)
	assert.Equal(t, "Jane Doe", row.TeacherRef.Name)
}

func TestSessionFreeTextKeepsInternalWhitespace(t *testing.T) {
	row, err := Session(record(map[string]string{
		"title": "  Data   &   Analytics Day  ",
	}))
	require.NoError(t, err)
	require.NotNil(t, row.Title)
	assert.Equal(t, "Data   &   Analytics Day", *row.Title)
}

func TestSessionAbsentColumnsStayNil(t *testing.T) {
	row, err := Session(record(map[string]string{"title": "Pottery"}))
	require.NoError(t, err)

	assert.Nil(t, row.Date)
	assert.Nil(t, row.Status)
	assert.Nil(t, row.Notes)
	assert.Nil(t, row.TeacherRef)
	assert.Empty(t, row.ExternalID)
}

func TestSessionExplicitEmptyNotesAreAClear(t *testing.T) {
	row, err := Session(record(map[string]string{
		"title": "Pottery",
		"notes": "",
	}))
	require.NoError(t, err)
	require.NotNil(t, row.Notes)
	assert.Empty(t, *row.Notes)
}

func TestSessionUnparseableDateFailsRow(t *testing.T) {
	_, err := Session(record(map[string]string{
		"title": "Pottery",
		"date":  "next Tuesday",
	}))
	require.Error(t, err)

	var nerr *Error
	require.ErrorAs(t, err, &nerr)
	assert.Equal(t, "date", nerr.Field)
	assert.Equal(t, "next Tuesday", nerr.Value)
}

func TestSessionBlankDateCarriesNoUpdate(t *testing.T) {
	row, err := Session(record(map[string]string{
		"title": "Pottery",
		"date":  "   ",
	}))
	require.NoError(t, err)
	assert.Nil(t, row.Date)
}

func TestSessionUnknownStatusPassesThroughWithWarning(t *testing.T) {
	row, err := Session(record(map[string]string{
		"title":  "Pottery",
		"status": "Tentatively Maybe",
	}))
	require.NoError(t, err)

	require.NotNil(t, row.Status)
	assert.Equal(t, model.StatusOther, row.Status.Code)
	assert.Equal(t, "Tentatively Maybe", row.Status.Raw)
	require.Len(t, row.Warnings, 1)
	assert.Contains(t, row.Warnings[0], "Tentatively Maybe")
}

func TestSessionMalformedTeacherEmailRetained(t *testing.T) {
	row, err := Session(record(map[string]string{
		"title":         "Pottery",
		"teacher email": "not-an-email",
	}))
	require.NoError(t, err)

	require.NotNil(t, row.TeacherRef)
	assert.Equal(t, "not-an-email", row.TeacherRef.Email)
	require.Len(t, row.Warnings, 1)
	assert.Contains(t, row.Warnings[0], "not-an-email")
}

func TestPersonEmailLowercasedAndTrimmed(t *testing.T) {
	row, err := Person(record(map[string]string{
		"Full Name":     "Jane Doe",
		"Email Address": "  Jane.DOE@Example.COM ",
		"Role":          "Instructor",
	}))
	require.NoError(t, err)

	require.NotNil(t, row.Email)
	assert.Equal(t, "jane.doe@example.com", *row.Email)
	assert.Equal(t, model.RoleTeacher, row.Role)
	assert.Empty(t, row.Warnings)
}

func TestPersonMalformedEmailRetainedWithWarning(t *testing.T) {
	row, err := Person(record(map[string]string{
		"name":  "Jane Doe",
		"email": "jane@@nowhere",
		"role":  "volunteer",
	}))
	require.NoError(t, err)

	require.NotNil(t, row.Email)
	assert.Equal(t, "jane@@nowhere", *row.Email)
	require.Len(t, row.Warnings, 1)
}

func TestPersonUnknownRoleFailsRow(t *testing.T) {
	_, err := Person(record(map[string]string{
		"name": "Jane Doe",
		"role": "astronaut",
	}))
	require.Error(t, err)

	var nerr *Error
	require.ErrorAs(t, err, &nerr)
	assert.Equal(t, "role", nerr.Field)
}

func TestParseDateAcceptsKnownLayouts(t *testing.T) {
	want := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	for _, raw := range []string{
		"2026-03-01",
		"2026-03-01 14:30:00",
		"03/01/2026",
		"3/1/2026",
		"01-Mar-2026",
	} {
		got, err := ParseDate(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, want, got, raw)
	}
}

func TestParseDateKeepsCalendarDayAcrossOffsets(t *testing.T) {
	// 01:00 on March 1st in UTC+2 is still February 28th in UTC; the
	// export's own calendar day is the one that counts
	got, err := ParseDate("2026-03-01T01:00:00+02:00")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), got)

	got, err = ParseDate("2026-03-01T23:30:00-05:00")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), got)
}

func TestCollapseIdentifier(t *testing.T) {
	assert.Equal(t, "S 42", CollapseIdentifier("  S   42  "))
	assert.Equal(t, "", CollapseIdentifier("   "))
}

func TestMapStatusVocabulary(t *testing.T) {
	assert.Equal(t, model.StatusDraft, MapStatus("Planned").Code)
	assert.Equal(t, model.StatusPublished, MapStatus("CONFIRMED").Code)
	assert.Equal(t, model.StatusCompleted, MapStatus("done").Code)
	assert.Equal(t, model.StatusCancelled, MapStatus("Canceled").Code)
	assert.Equal(t, model.StatusCancelled, MapStatus("called off").Code)

	other := MapStatus(" limbo ")
	assert.Equal(t, model.StatusOther, other.Code)
	assert.Equal(t, "limbo", other.Raw)
}

func TestPersonNameNormalization(t *testing.T) {
	cases := map[string]string{
		"  Jane   Doe ":    "jane doe",
		"José García":      "jose garcia",
		"Smith, John":      "john smith",
		"John Q. Smith":    "john smith",
		"Robert Brown Jr":  "robert brown",
		"BROWN, Robert":    "robert brown",
		"Zoë  van  Dijk":   "zoe van dijk",
	}
	for in, want := range cases {
		assert.Equal(t, want, PersonName(in), in)
	}
}
