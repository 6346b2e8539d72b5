package grading

import (
	"fmt"
	"strings"
)

// Grade is an ordinal letter grade; a larger value is a better grade.
type Grade int

const (
	GradeF Grade = iota
	GradeD
	GradeC
	GradeCPlus
	GradeBMinus
	GradeB
	GradeBPlus
	GradeAMinus
	GradeA
	GradeAPlus
)

var gradeNames = [...]string{"F", "D", "C", "C+", "B-", "B", "B+", "A-", "A", "A+"}

func (g Grade) String() string {
	if g < GradeF || int(g) >= len(gradeNames) {
		return fmt.Sprintf("Grade(%d)", int(g))
	}
	return gradeNames[g]
}

// Rank is the band position counted from the best grade, starting at 1.
func (g Grade) Rank() int { return int(GradeAPlus-g) + 1 }

func (g Grade) MarshalText() ([]byte, error) { return []byte(g.String()), nil }

func (g *Grade) UnmarshalText(b []byte) error {
	for i, n := range gradeNames {
		if n == string(b) {
			*g = Grade(i)
			return nil
		}
	}
	return fmt.Errorf("unknown grade %q", b)
}

// Category is a coarse ordinal performance band.
type Category int

const (
	CategoryPoor Category = iota
	CategoryBelowAverage
	CategoryAverage
	CategoryGood
	CategoryExcellent
)

var categoryNames = [...]string{"Poor", "Below Average", "Average", "Good", "Excellent"}

func (c Category) String() string {
	if c < CategoryPoor || int(c) >= len(categoryNames) {
		return fmt.Sprintf("Category(%d)", int(c))
	}
	return categoryNames[c]
}

func (c Category) Rank() int { return int(CategoryExcellent-c) + 1 }

func (c Category) MarshalText() ([]byte, error) { return []byte(c.String()), nil }

func (c *Category) UnmarshalText(b []byte) error {
	for i, n := range categoryNames {
		if strings.EqualFold(n, string(b)) {
			*c = Category(i)
			return nil
		}
	}
	return fmt.Errorf("unknown category %q", b)
}

type band[T any] struct {
	min   float64
	value T
}

// Lower edges are inclusive: exactly 80 is A+, 79.999 is A.
var gradeBands = []band[Grade]{
	{80, GradeAPlus},
	{75, GradeA},
	{70, GradeAMinus},
	{65, GradeBPlus},
	{60, GradeB},
	{55, GradeBMinus},
	{50, GradeCPlus},
	{45, GradeC},
	{40, GradeD},
}

var categoryBands = []band[Category]{
	{80, CategoryExcellent},
	{65, CategoryGood},
	{50, CategoryAverage},
	{40, CategoryBelowAverage},
}

func lookup[T any](bands []band[T], p float64, floor T) T {
	for _, b := range bands {
		if p >= b.min {
			return b.value
		}
	}
	return floor
}

// GradeFor is total: NaN and anything below 40 map to F.
func GradeFor(percentage float64) Grade {
	return lookup(gradeBands, percentage, GradeF)
}

// CategoryFor is total: NaN and anything below 40 map to Poor.
func CategoryFor(percentage float64) Category {
	return lookup(categoryBands, percentage, CategoryPoor)
}

// Grades lists every grade from best to worst.
func Grades() []Grade {
	out := make([]Grade, 0, len(gradeNames))
	for g := GradeAPlus; g >= GradeF; g-- {
		out = append(out, g)
	}
	return out
}

// Categories lists every category from best to worst.
func Categories() []Category {
	out := make([]Category, 0, len(categoryNames))
	for c := CategoryExcellent; c >= CategoryPoor; c-- {
		out = append(out, c)
	}
	return out
}

// Classify returns a copy of graded with Grade and Category set from
// Percentage alone.
func Classify(graded []Graded) []Graded {
	out := make([]Graded, len(graded))
	for i, g := range graded {
		g.Grade = GradeFor(g.Percentage)
		g.Category = CategoryFor(g.Percentage)
		out[i] = g
	}
	return out
}
