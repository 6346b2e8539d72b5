package roster

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/mind-engage/mindengage-cohorts/internal/apperr"
)

const sampleCSV = `StudentID,Student Name,CT1,CT2,Mid-Term,CT3,CT4,Presentation,Attendance
S01,Alice,9,7,36,5,3,9,10
S02,Bob,A,8,,6,,7,
S03,Chloe,abc,,20,,,5,8

S04,Dan,10,10,40,10,10,10,10
`

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func TestLoadCSV(t *testing.T) {
	tbl, err := LoadFile(writeFile(t, "result.csv", sampleCSV))
	require.NoError(t, err)
	require.Len(t, tbl.Records, 4, "blank line is skipped")
	assert.Empty(t, tbl.Missing)

	a := tbl.Records[0]
	assert.Equal(t, "S01", a.StudentID)
	assert.Equal(t, "Alice", a.Name)
	assert.Equal(t, [4]Score{Some(9), Some(7), Some(5), Some(3)}, a.CT)
	assert.Equal(t, Some(36), a.Midterm)
	assert.Equal(t, 2, a.Line)

	b := tbl.Records[1]
	assert.False(t, b.CT[0].Present, "absence marker A is missing, not zero")
	assert.Equal(t, Some(8), b.CT[1])
	assert.False(t, b.Midterm.Present)
	assert.False(t, b.CT[3].Present)
	assert.False(t, b.Attendance.Present)

	c := tbl.Records[2]
	assert.False(t, c.CT[0].Present)
	assert.Equal(t, Some(8), c.Attendance)

	assert.Equal(t, 6, tbl.Records[3].Line)
}

func TestLoadMissingColumns(t *testing.T) {
	body := "Name,ct1,CT_2,Mid Term\nAlice,5,6,30\n"
	tbl, err := LoadFile(writeFile(t, "partial.csv", body))
	require.NoError(t, err)
	assert.ElementsMatch(t, []Column{ColStudentID, ColCT3, ColCT4, ColPresentation, ColAttendance}, tbl.Missing)
	assert.True(t, tbl.Has(ColMidterm))
	assert.False(t, tbl.Has(ColAttendance))
	assert.Equal(t, Some(30), tbl.Records[0].Midterm)
}

func TestLoadTSVAndHeaderOnly(t *testing.T) {
	tbl, err := LoadFile(writeFile(t, "scores.tsv", "Student Name\tCT1\nZoe\t7.5\n"))
	require.NoError(t, err)
	require.Len(t, tbl.Records, 1)
	assert.Equal(t, Some(7.5), tbl.Records[0].CT[0])

	tbl, err = LoadFile(writeFile(t, "empty.csv", "StudentID,Student Name,CT1\n"))
	require.NoError(t, err)
	assert.Empty(t, tbl.Records)
}

func TestLoadXLSX(t *testing.T) {
	f := excelize.NewFile()
	require.NoError(t, f.SetSheetRow("Sheet1", "A1", &[]any{"StudentID", "Student Name", "CT1", "CT2", "Mid-Term", "Presentation"}))
	require.NoError(t, f.SetSheetRow("Sheet1", "A2", &[]any{"S1", "Ann", 8, 6, 30, 7}))
	require.NoError(t, f.SetSheetRow("Sheet1", "A3", &[]any{"S2", "Ben", "A", 4}))
	p := filepath.Join(t.TempDir(), "book.xlsx")
	require.NoError(t, f.SaveAs(p))

	tbl, err := LoadFile(p)
	require.NoError(t, err)
	require.Len(t, tbl.Records, 2)
	assert.Equal(t, Some(30), tbl.Records[0].Midterm)
	assert.False(t, tbl.Records[1].CT[0].Present)
	assert.False(t, tbl.Records[1].Presentation.Present, "row shorter than header")
	assert.Contains(t, tbl.Missing, ColAttendance)
}

func TestLoadErrors(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "nope.csv"))
	assert.True(t, errors.Is(err, apperr.ErrNotFound))

	_, err = LoadFile(writeFile(t, "notes.pdf", "%PDF-1.4"))
	assert.True(t, errors.Is(err, apperr.ErrFormat))
	assert.Contains(t, err.Error(), "notes.pdf")

	_, err = LoadFile(writeFile(t, "old.xls", "whatever"))
	assert.True(t, errors.Is(err, apperr.ErrFormat))

	_, err = LoadFile(writeFile(t, "fake.xlsx", "StudentID,CT1\n"))
	assert.True(t, errors.Is(err, apperr.ErrFormat))

	_, err = LoadFile(writeFile(t, "binary.csv", "PK\x03\x04\x00\x00garbage"))
	assert.True(t, errors.Is(err, apperr.ErrFormat))

	_, err = LoadFile(writeFile(t, "nothing.csv", ""))
	assert.True(t, errors.Is(err, apperr.ErrFormat))
}

func TestLoadSniffsWithoutExtension(t *testing.T) {
	tbl, err := Load(strings.NewReader("Name,CT1\nAl,4\n"), "upload", "")
	require.NoError(t, err)
	assert.Equal(t, Some(4), tbl.Records[0].CT[0])

	_, err = Load(strings.NewReader("\x00\x01\x02"), "upload", "")
	assert.True(t, errors.Is(err, apperr.ErrFormat))
}

func TestParseScore(t *testing.T) {
	assert.Equal(t, Some(0), ParseScore("0"))
	assert.Equal(t, Some(12.5), ParseScore(" 12.5 "))
	for _, raw := range []string{"", "A", "AB", "-", "NaN", "Inf", "n/a"} {
		assert.False(t, ParseScore(raw).Present, raw)
	}
	assert.Equal(t, 8.0, ParseScore("").Or(8))
}

func TestMatchColumn(t *testing.T) {
	for h, want := range map[string]Column{
		"Mid-Term":     ColMidterm,
		"mid_term":     ColMidterm,
		"Student Name": ColName,
		"Student ID":   ColStudentID,
		" ATTENDANCE ": ColAttendance,
		"C.T.1":        ColCT1,
	} {
		got, ok := MatchColumn(h)
		assert.True(t, ok, h)
		assert.Equal(t, want, got, h)
	}
	_, ok := MatchColumn("Remarks")
	assert.False(t, ok)
}
