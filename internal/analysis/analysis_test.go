package analysis

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mind-engage/mindengage-cohorts/internal/apperr"
	"github.com/mind-engage/mindengage-cohorts/internal/grading"
	"github.com/mind-engage/mindengage-cohorts/internal/roster"
)

const fiveCSV = `StudentID,Student Name,CT1,CT2,CT3,CT4,Mid-Term,Presentation,Attendance
S1,Ada,9,7,5,3,40,10,10
S2,Ben,6,8,,,30,8,9
S3,Cy,A,,,,20,5,5
S4,Dee,5,5,5,5,26,6,8
S5,Eve,2,3,4,,10,2,3
`

func quiet() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

func testAnalyzer(buf *bytes.Buffer) *Analyzer {
	log := quiet()
	if buf != nil {
		log = slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
	return New(
		WithLogger(log),
		WithClock(func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC) }),
	)
}

func k(n int) Options {
	o := DefaultOptions()
	o.Cluster.K = n
	return o
}

func TestEndToEndFiveStudents(t *testing.T) {
	a := testAnalyzer(nil)
	res, err := a.RunBytes(context.Background(), []byte(fiveCSV), "five.csv", k(2))
	require.NoError(t, err)
	require.Len(t, res.Graded, 5)

	want := []struct {
		pct      float64
		grade    string
		category string
	}{
		{94, "A+", "Excellent"},
		{78, "A", "Good"},
		{40, "D", "Below Average"},
		{64, "B", "Average"},
		{26, "F", "Poor"},
	}
	for i, w := range want {
		g := res.Graded[i]
		assert.InDelta(t, w.pct, g.Percentage, 1e-9, g.Record.Name)
		assert.Equal(t, w.grade, g.Grade.String(), g.Record.Name)
		assert.Equal(t, w.category, g.Category.String(), g.Record.Name)
	}

	require.True(t, res.Clustered())
	require.NoError(t, res.ClusterErr)
	require.Len(t, res.Cluster.Groups, 2)

	totals := map[int][]float64{}
	for _, as := range res.Cluster.Assignments {
		totals[as.GroupRank] = append(totals[as.GroupRank], res.Graded[as.Index].TotalObtained)
	}
	require.NotEmpty(t, totals[1])
	require.NotEmpty(t, totals[2])
	for _, hi := range totals[1] {
		for _, lo := range totals[2] {
			assert.Greater(t, hi, lo, "group 1 members outscore group 2 members")
		}
	}
	assert.Equal(t, 1, res.Cluster.Assignments[0].GroupRank, "top student")
	assert.Equal(t, 2, res.Cluster.Assignments[4].GroupRank, "bottom student")

	assert.Equal(t, 5, res.Report.TotalStudents)
	assert.Equal(t, time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC), res.Report.GeneratedAt)
	assert.NotEmpty(t, res.Fingerprint)
	assert.Empty(t, res.Missing)
}

func TestRunIsDeterministic(t *testing.T) {
	a := testAnalyzer(nil)
	r1, err := a.RunBytes(context.Background(), []byte(fiveCSV), "five.csv", k(3))
	require.NoError(t, err)
	r2, err := a.RunBytes(context.Background(), []byte(fiveCSV), "five.csv", k(3))
	require.NoError(t, err)
	assert.Equal(t, r1.Cluster.Assignments, r2.Cluster.Assignments)
	assert.Equal(t, r1.Fingerprint, r2.Fingerprint)
	assert.Equal(t, []string{"Good", "Average", "Struggling"}, r1.Cluster.Labels())
}

func TestClusteringFailureKeepsGrading(t *testing.T) {
	var logs bytes.Buffer
	a := testAnalyzer(&logs)
	res, err := a.RunBytes(context.Background(), []byte(fiveCSV), "five.csv", k(6))
	require.NoError(t, err)

	assert.False(t, res.Clustered())
	require.Error(t, res.ClusterErr)
	assert.ErrorIs(t, res.ClusterErr, apperr.ErrClustering)
	assert.Len(t, res.Graded, 5)
	assert.Equal(t, grading.GradeAPlus, res.Graded[0].Grade)
	assert.Nil(t, res.Report.Clustering)
	assert.Equal(t, res.ClusterErr.Error(), res.Report.ClusterError)
	assert.Contains(t, logs.String(), "clustering skipped")
}

func TestMissingAttendanceColumnDefaults(t *testing.T) {
	var logs bytes.Buffer
	a := testAnalyzer(&logs)
	in := "StudentID,Student Name,CT1,CT2,CT3,Mid-Term,Presentation\n1,a,6,6,6,20,4\n2,b,8,8,8,30,9\n"
	res, err := a.RunBytes(context.Background(), []byte(in), "x.csv", k(2))
	require.NoError(t, err)

	assert.Contains(t, res.Missing, roster.ColAttendance)
	for _, g := range res.Graded {
		assert.Equal(t, 8.0, g.Attendance)
		assert.Contains(t, g.Defaulted, roster.ColAttendance)
	}
	assert.InDelta(t, 10+6+4+8, res.Graded[0].TotalObtained, 1e-9)
	out := logs.String()
	assert.Contains(t, out, "level=WARN")
	assert.Contains(t, out, "column=Attendance")
	assert.Contains(t, out, "policy=default")
	assert.Contains(t, out, "column=CT4")
}

func TestNonFiniteFeaturesFailRun(t *testing.T) {
	a := testAnalyzer(nil)
	in := "StudentID,Student Name,CT1,Mid-Term,Presentation,Attendance\n1,a,1,1e308,1,1\n2,b,2,1e308,2,2\n3,c,3,1e308,3,3\n"
	_, err := a.RunBytes(context.Background(), []byte(in), "big.csv", k(2))
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrData)
}

func TestLoadErrorsAreTerminal(t *testing.T) {
	a := testAnalyzer(nil)
	ctx := context.Background()

	_, err := a.RunFile(ctx, filepath.Join(t.TempDir(), "nope.csv"), DefaultOptions())
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	pdf := filepath.Join(t.TempDir(), "scores.pdf")
	require.NoError(t, os.WriteFile(pdf, []byte("%PDF-1.4"), 0o644))
	_, err = a.RunFile(ctx, pdf, DefaultOptions())
	assert.ErrorIs(t, err, apperr.ErrFormat)

	_, err = a.RunFile(ctx, t.TempDir(), DefaultOptions())
	assert.ErrorIs(t, err, apperr.ErrFormat)

	_, err = a.RunBytes(ctx, nil, "empty.csv", DefaultOptions())
	assert.ErrorIs(t, err, apperr.ErrFormat)
}

func TestRunFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "result.csv")
	require.NoError(t, os.WriteFile(path, []byte(fiveCSV), 0o644))

	res, err := testAnalyzer(nil).RunFile(context.Background(), path, k(2))
	require.NoError(t, err)
	assert.Equal(t, path, res.Source)
	assert.Equal(t, Fingerprint([]byte(fiveCSV), roster.FormatCSV, k(2)), res.Fingerprint)
}

func TestRunReader(t *testing.T) {
	res, err := testAnalyzer(nil).RunReader(context.Background(), strings.NewReader(fiveCSV), "", k(2))
	require.NoError(t, err, "content is sniffed when the name has no extension")
	assert.Len(t, res.Graded, 5)
}

func TestCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := testAnalyzer(nil).RunBytes(ctx, []byte(fiveCSV), "five.csv", k(2))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFingerprint(t *testing.T) {
	data := []byte(fiveCSV)
	base := Fingerprint(data, roster.FormatCSV, k(3))
	assert.Len(t, base, 64)
	assert.Equal(t, base, Fingerprint(data, roster.FormatCSV, k(3)))
	assert.NotEqual(t, base, Fingerprint(data, roster.FormatCSV, k(2)))
	assert.NotEqual(t, base, Fingerprint(data, roster.FormatTSV, k(3)), "format is part of the key")
	assert.NotEqual(t, base, Fingerprint(data, "", k(3)))

	seeded := k(3)
	seeded.Cluster.Seed = 7
	assert.NotEqual(t, base, Fingerprint(data, roster.FormatCSV, seeded))
	assert.NotEqual(t, base, Fingerprint(append([]byte(nil), append(data, '\n')...), roster.FormatCSV, k(3)))

	tol := k(3)
	tol.Cluster.Tol = 1e-6
	assert.NotEqual(t, base, Fingerprint(data, roster.FormatCSV, tol))
	groupTop := k(3)
	groupTop.Report.GroupTopN = 3
	assert.NotEqual(t, base, Fingerprint(data, roster.FormatCSV, groupTop))
}

func TestDefaults(t *testing.T) {
	o := DefaultOptions()
	o.Cluster.K = 4
	a := New(WithDefaults(o))
	assert.Equal(t, 4, a.Defaults().Cluster.K)
	assert.Equal(t, 5, New().Defaults().Report.TopN)
}

func TestReportCarriesCalculatorRubric(t *testing.T) {
	custom := grading.DefaultRubric()
	custom.DefaultAttendance = 5
	a := New(WithLogger(quiet()), WithCalculator(grading.NewCalculator(grading.WithRubric(custom))))

	res, err := a.RunBytes(context.Background(), []byte(fiveCSV), "five.csv", k(2))
	require.NoError(t, err)
	require.NotNil(t, res.Report.Rubric)
	assert.Equal(t, custom, *res.Report.Rubric)
}
