package cluster

import (
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/mind-engage/mindengage-cohorts/internal/apperr"
	"github.com/mind-engage/mindengage-cohorts/internal/grading"
	"github.com/mind-engage/mindengage-cohorts/internal/roster"
)

func student(mid, pres, att float64, ct ...float64) grading.Graded {
	rec := roster.Record{
		Midterm:      roster.Some(mid),
		Presentation: roster.Some(pres),
		Attendance:   roster.Some(att),
	}
	for i, v := range ct {
		rec.CT[i] = roster.Some(v)
	}
	return grading.Derive(rec, grading.DefaultRubric(), nil)
}

// cohort returns three well separated bands of students, strong first.
func cohort() []grading.Graded {
	var out []grading.Graded
	for i := 0; i < 6; i++ {
		d := float64(i % 3)
		out = append(out,
			student(38-d, 9, 10, 9, 9-d, 8),
			student(24-d, 6, 8, 6, 5+d/2, 6),
			student(8+d, 2, 4, 2, 3, 1+d/2),
		)
	}
	return out
}

func TestStandardize(t *testing.T) {
	x := mat.NewDense(4, 2, []float64{
		1, 5,
		2, 5,
		3, 5,
		4, 5,
	})
	z, sc, err := Standardize(x)
	require.NoError(t, err)
	col := mat.Col(nil, 0, z)
	mean, std := stat.PopMeanStdDev(col, nil)
	assert.InDelta(t, 0, mean, 1e-12)
	assert.InDelta(t, 1, std, 1e-12)
	assert.Equal(t, []float64{0, 0, 0, 0}, mat.Col(nil, 1, z), "constant column")
	assert.InDelta(t, 2.5, sc.Mean[0], 1e-12)
	assert.InDelta(t, math.Sqrt(1.25), sc.Std[0], 1e-12)
}

func TestStandardizeRejectsNonFinite(t *testing.T) {
	for _, vals := range [][]float64{
		{math.MaxFloat64, math.MaxFloat64},
		{math.MaxFloat64, -math.MaxFloat64},
		{1, math.NaN()},
	} {
		_, _, err := Standardize(mat.NewDense(2, 1, vals))
		assert.True(t, errors.Is(err, apperr.ErrData), "%v", vals)
	}
}

func TestRunSeparatesBands(t *testing.T) {
	graded := cohort()
	res, err := NewEngine(DefaultOptions()).Run(graded)
	require.NoError(t, err)
	require.Len(t, res.Groups, 3)
	assert.Equal(t, []string{"Good", "Average", "Struggling"}, res.Labels())

	for i, a := range res.Assignments {
		assert.Equal(t, ThreeGroupLabels[i%3], a.Group, "student %d", i)
		assert.Equal(t, i%3+1, a.GroupRank)
		assert.Equal(t, i, a.Index)
	}
	for _, g := range res.Groups {
		assert.Equal(t, 6, g.Size)
	}
}

func TestRunLabelOrderFollowsMeanTotal(t *testing.T) {
	res, err := NewEngine(DefaultOptions()).Run(cohort())
	require.NoError(t, err)
	for i := 1; i < len(res.Groups); i++ {
		assert.GreaterOrEqual(t, res.Groups[i-1].MeanTotal, res.Groups[i].MeanTotal)
	}

	graded := cohort()
	sums := map[string]float64{}
	counts := map[string]int{}
	for i, a := range res.Assignments {
		sums[a.Group] += graded[i].TotalObtained
		counts[a.Group]++
	}
	assert.Greater(t, sums["Good"]/float64(counts["Good"]), sums["Average"]/float64(counts["Average"]))
	assert.Greater(t, sums["Average"]/float64(counts["Average"]), sums["Struggling"]/float64(counts["Struggling"]))
}

func TestRunIsDeterministic(t *testing.T) {
	graded := cohort()
	for _, k := range []int{2, 3, 4, 5} {
		opts := DefaultOptions()
		opts.K = k
		a, err := NewEngine(opts).Run(graded)
		require.NoError(t, err)
		b, err := NewEngine(opts).Run(graded)
		require.NoError(t, err)
		assert.Equal(t, a.Assignments, b.Assignments, "k=%d", k)
		assert.Equal(t, a.Groups, b.Groups, "k=%d", k)
		assert.Equal(t, a.Inertia, b.Inertia, "k=%d", k)
	}
}

func TestRunGenericLabels(t *testing.T) {
	opts := DefaultOptions()
	opts.K = 4
	res, err := NewEngine(opts).Run(cohort())
	require.NoError(t, err)
	assert.Equal(t, []string{"Group 1", "Group 2", "Group 3", "Group 4"}, res.Labels())

	sizes := 0
	for _, g := range res.Groups {
		assert.Positive(t, g.Size)
		sizes += g.Size
	}
	assert.Equal(t, 18, sizes)
}

func TestRunIgnoresClassification(t *testing.T) {
	graded := cohort()
	plain, err := NewEngine(DefaultOptions()).Run(graded)
	require.NoError(t, err)

	classified := grading.Classify(graded)
	for i := range classified {
		classified[i].Grade = grading.GradeF
	}
	again, err := NewEngine(DefaultOptions()).Run(classified)
	require.NoError(t, err)
	assert.Equal(t, plain.Assignments, again.Assignments)
}

func TestRunTooFewDistinctRecords(t *testing.T) {
	same := student(30, 8, 9, 7, 7, 7)
	graded := []grading.Graded{same, same, same, student(10, 2, 3, 1)}
	_, err := NewEngine(DefaultOptions()).Run(graded)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrClustering))
	assert.Contains(t, err.Error(), "2 distinct")

	opts := DefaultOptions()
	opts.K = 2
	res, err := NewEngine(opts).Run(graded)
	require.NoError(t, err)
	assert.Equal(t, res.Assignments[0].ClusterID, res.Assignments[2].ClusterID)
	assert.Equal(t, "Group 1", res.Assignments[0].Group)
	assert.Equal(t, "Group 2", res.Assignments[3].Group)
}

func TestRunRejectsBadInput(t *testing.T) {
	_, err := NewEngine(DefaultOptions()).Run(nil)
	assert.True(t, errors.Is(err, apperr.ErrClustering))

	opts := DefaultOptions()
	opts.K = 0
	_, err = NewEngine(opts).Run(cohort())
	assert.True(t, errors.Is(err, apperr.ErrClustering))
}

func TestProjection(t *testing.T) {
	res, err := NewEngine(DefaultOptions()).Run(cohort())
	require.NoError(t, err)
	ev := res.ExplainedVariance
	assert.Greater(t, ev[0], 0.0)
	assert.GreaterOrEqual(t, ev[0], ev[1])
	assert.LessOrEqual(t, ev[0]+ev[1], 1+1e-9)

	// Projected coordinates are centered.
	var sum1, sum2 float64
	for _, a := range res.Assignments {
		sum1 += a.PC1
		sum2 += a.PC2
	}
	assert.InDelta(t, 0, sum1, 1e-9)
	assert.InDelta(t, 0, sum2, 1e-9)
}

func TestProjectSmallInputs(t *testing.T) {
	p := Project(mat.NewDense(1, 3, []float64{1, 2, 3}))
	assert.Equal(t, [][2]float64{{0, 0}}, p.Coords)
	assert.Equal(t, [2]float64{}, p.ExplainedVariance)
}

func TestKMeansSeedMatters(t *testing.T) {
	// Same seed, same answer, even across fresh KMeans values.
	z, _, err := Standardize(FeatureMatrix(cohort()))
	require.NoError(t, err)
	km := KMeans{K: 3, Seed: 7, MaxIter: 100, NInit: 3, Tol: 1e-6}
	a, b := km.Fit(z), km.Fit(z)
	assert.Equal(t, a.labels, b.labels)
	assert.LessOrEqual(t, a.iter, 100)
}

func TestRelocateEmpty(t *testing.T) {
	points := [][]float64{{0}, {1}, {10}}
	labels := []int{0, 0, 0}
	centers := [][]float64{{11.0 / 3}, {0}}
	sizes := []int{3, 0}
	relocateEmpty(points, labels, centers, sizes)
	assert.Equal(t, []int{0, 0, 1}, labels)
	assert.Equal(t, []int{2, 1}, sizes)
	assert.Equal(t, []float64{10}, centers[1])
	assert.Equal(t, []float64{0.5}, centers[0])
}

func TestGroupLabel(t *testing.T) {
	assert.Equal(t, "Struggling", GroupLabel(2, 3))
	assert.Equal(t, "Group 1", GroupLabel(0, 2))
	assert.Equal(t, "Group 5", GroupLabel(4, 5))
	assert.Equal(t, fmt.Sprintf("Group %d", 1), GroupLabel(0, 1))
}
