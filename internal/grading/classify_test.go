package grading

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGradeBoundaries(t *testing.T) {
	cases := []struct {
		p    float64
		want Grade
	}{
		{100, GradeAPlus},
		{80, GradeAPlus},
		{79.999, GradeA},
		{75, GradeA},
		{74.99, GradeAMinus},
		{70, GradeAMinus},
		{65, GradeBPlus},
		{60, GradeB},
		{55, GradeBMinus},
		{50, GradeCPlus},
		{45, GradeC},
		{40, GradeD},
		{39.999, GradeF},
		{0, GradeF},
		{-5, GradeF},
		{math.NaN(), GradeF},
		{math.Inf(1), GradeAPlus},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, GradeFor(tc.p), "percentage %v", tc.p)
	}
}

func TestCategoryBoundaries(t *testing.T) {
	cases := []struct {
		p    float64
		want Category
	}{
		{80, CategoryExcellent},
		{79.99, CategoryGood},
		{65, CategoryGood},
		{64.99, CategoryAverage},
		{50, CategoryAverage},
		{49.99, CategoryBelowAverage},
		{40, CategoryBelowAverage},
		{39.99, CategoryPoor},
		{math.NaN(), CategoryPoor},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, CategoryFor(tc.p), "percentage %v", tc.p)
	}
}

func TestBandsAreMonotonic(t *testing.T) {
	prevG, prevC := GradeFor(-10), CategoryFor(-10)
	for p := -10.0; p <= 110; p += 0.01 {
		g, c := GradeFor(p), CategoryFor(p)
		require.GreaterOrEqual(t, int(g), int(prevG), "grade dropped at %v", p)
		require.GreaterOrEqual(t, int(c), int(prevC), "category dropped at %v", p)
		prevG, prevC = g, c
	}
}

func TestTotalFortyIsAPlusExcellent(t *testing.T) {
	r := DefaultRubric()
	p := r.Percentage(40)
	assert.Equal(t, 80.0, p)
	assert.Equal(t, "A+", GradeFor(p).String())
	assert.Equal(t, "Excellent", CategoryFor(p).String())

	below := r.Percentage(39.999)
	assert.Equal(t, GradeA, GradeFor(below))
	assert.Equal(t, CategoryGood, CategoryFor(below))
}

func TestClassifyCopies(t *testing.T) {
	in := []Graded{{Percentage: 82}, {Percentage: 41}}
	out := Classify(in)
	assert.Equal(t, GradeAPlus, out[0].Grade)
	assert.Equal(t, CategoryBelowAverage, out[1].Category)
	assert.Equal(t, GradeF, in[0].Grade, "input untouched")
}

func TestOrderListsAndText(t *testing.T) {
	assert.Len(t, Grades(), 10)
	assert.Equal(t, GradeAPlus, Grades()[0])
	assert.Equal(t, GradeF, Grades()[9])
	assert.Equal(t, []Category{CategoryExcellent, CategoryGood, CategoryAverage, CategoryBelowAverage, CategoryPoor}, Categories())

	b, err := json.Marshal(struct {
		G Grade
		C Category
	}{GradeBMinus, CategoryBelowAverage})
	require.NoError(t, err)
	assert.JSONEq(t, `{"G":"B-","C":"Below Average"}`, string(b))

	var g Grade
	require.NoError(t, g.UnmarshalText([]byte("C+")))
	assert.Equal(t, GradeCPlus, g)
	assert.Error(t, g.UnmarshalText([]byte("Z")))
}

func TestRankCountsFromBest(t *testing.T) {
	assert.Equal(t, 1, GradeAPlus.Rank())
	assert.Equal(t, 10, GradeF.Rank())
	assert.Equal(t, 1, CategoryExcellent.Rank())
	assert.Equal(t, 5, CategoryPoor.Rank())
	for i, g := range Grades() {
		assert.Equal(t, i+1, g.Rank())
	}
}
