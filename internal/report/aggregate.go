// Package report summarizes a graded and clustered batch and renders the
// summary as text, CSV or an XLSX workbook. Aggregation only reads derived
// fields; it adds no numeric policy of its own.
package report

import (
	"sort"
	"time"

	"github.com/mind-engage/mindengage-cohorts/internal/cluster"
	"github.com/mind-engage/mindengage-cohorts/internal/grading"
	"github.com/mind-engage/mindengage-cohorts/internal/roster"
)

type Options struct {
	TopN      int `json:"top_n" yaml:"top_n"`             // top and bottom performers
	GroupTopN int `json:"group_top_n" yaml:"group_top_n"` // members listed per group

	// Columns says which raw columns the source carried; nil means all.
	Columns map[roster.Column]bool `json:"-" yaml:"-"`
}

func DefaultOptions() Options { return Options{TopN: 5, GroupTopN: 10} }

type Report struct {
	GeneratedAt          time.Time     `json:"generated_at"`
	TotalStudents        int           `json:"total_students"`
	Percentage           Summary       `json:"percentage"`
	CategoryDistribution []Bucket      `json:"category_distribution"`
	GradeDistribution    []Bucket      `json:"grade_distribution"`
	TopPerformers        []Performer   `json:"top_performers"`
	BottomPerformers     []Performer   `json:"bottom_performers"`
	Columns              []ColumnStats `json:"columns"`
	Clustering           *Clustering   `json:"clustering,omitempty"`
	ClusterError         string        `json:"cluster_error,omitempty"`
	// Rubric is the one the totals were computed with; nil reads as the
	// default rubric.
	Rubric *grading.Rubric `json:"rubric,omitempty"`
}

type Summary struct {
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
}

type Bucket struct {
	Label      string  `json:"label"`
	Count      int     `json:"count"`
	Proportion float64 `json:"proportion"`
}

type Performer struct {
	Index         int           `json:"index"`
	StudentID     string        `json:"student_id"`
	Name          string        `json:"name"`
	TotalObtained float64       `json:"total_obtained"`
	Percentage    float64       `json:"percentage"`
	Grade         grading.Grade `json:"grade"`
}

// ColumnStats treats missing cells as zero, the same way they enter totals.
type ColumnStats struct {
	Name          string  `json:"name"`
	Mean          float64 `json:"mean"`
	Min           float64 `json:"min"`
	Max           float64 `json:"max"`
	ZeroOrMissing int     `json:"zero_or_missing"`
}

type Clustering struct {
	K                 int          `json:"k"`
	Seed              int64        `json:"seed"`
	Labels            []string     `json:"labels"`
	Inertia           float64      `json:"inertia"`
	ExplainedVariance [2]float64   `json:"explained_variance"`
	Groups            []GroupStats `json:"groups"`
}

type GroupStats struct {
	Label     string      `json:"label"`
	Rank      int         `json:"rank"`
	ClusterID int         `json:"cluster_id"`
	Count     int         `json:"count"`
	MeanTotal float64     `json:"mean_total"`
	MinTotal  float64     `json:"min_total"`
	MaxTotal  float64     `json:"max_total"`
	Top       []Performer `json:"top"`
}

// Aggregate builds the report from a classified batch and, when clustering
// succeeded, its result. A nil res leaves Clustering empty; callers record
// the clustering failure in ClusterError.
func Aggregate(graded []grading.Graded, res *cluster.Result, opts Options) Report {
	def := DefaultOptions()
	if opts.TopN <= 0 {
		opts.TopN = def.TopN
	}
	if opts.GroupTopN <= 0 {
		opts.GroupTopN = def.GroupTopN
	}

	g := graded
	rep := Report{TotalStudents: len(g)}

	pct := make([]float64, len(g))
	for i := range g {
		pct[i] = g[i].Percentage
	}
	rep.Percentage = summarize(pct)
	rep.CategoryDistribution = categoryBuckets(g)
	rep.GradeDistribution = gradeBuckets(g)

	all := make([]int, len(g))
	for i := range all {
		all[i] = i
	}
	rep.TopPerformers = performers(g, rankBy(g, all, func(a, b grading.Graded) bool { return a.Percentage > b.Percentage }), opts.TopN)
	rep.BottomPerformers = performers(g, rankBy(g, all, func(a, b grading.Graded) bool { return a.Percentage < b.Percentage }), opts.TopN)
	rep.Columns = columnStats(g, opts.Columns)

	if res != nil {
		rep.Clustering = clustering(g, res, opts.GroupTopN)
	}
	return rep
}

func summarize(v []float64) Summary {
	if len(v) == 0 {
		return Summary{}
	}
	sorted := append([]float64(nil), v...)
	sort.Float64s(sorted)
	sum := 0.0
	for _, x := range sorted {
		sum += x
	}
	n := len(sorted)
	median := sorted[n/2]
	if n%2 == 0 {
		median = (sorted[n/2-1] + sorted[n/2]) / 2
	}
	return Summary{Mean: sum / float64(n), Median: median, Min: sorted[0], Max: sorted[n-1]}
}

func categoryBuckets(g []grading.Graded) []Bucket {
	counts := map[grading.Category]int{}
	for _, s := range g {
		counts[s.Category]++
	}
	cats := grading.Categories()
	out := make([]Bucket, len(cats))
	for i, c := range cats {
		out[i] = bucket(c.String(), counts[c], len(g))
	}
	return out
}

func gradeBuckets(g []grading.Graded) []Bucket {
	counts := map[grading.Grade]int{}
	for _, s := range g {
		counts[s.Grade]++
	}
	grades := grading.Grades()
	out := make([]Bucket, len(grades))
	for i, gr := range grades {
		out[i] = bucket(gr.String(), counts[gr], len(g))
	}
	return out
}

func bucket(label string, count, total int) Bucket {
	b := Bucket{Label: label, Count: count}
	if total > 0 {
		b.Proportion = float64(count) / float64(total)
	}
	return b
}

// rankBy stable-sorts idx so ties keep input order.
func rankBy(g []grading.Graded, idx []int, less func(a, b grading.Graded) bool) []int {
	out := append([]int(nil), idx...)
	sort.SliceStable(out, func(a, b int) bool { return less(g[out[a]], g[out[b]]) })
	return out
}

func performers(g []grading.Graded, order []int, n int) []Performer {
	if n > len(order) {
		n = len(order)
	}
	out := make([]Performer, n)
	for i, idx := range order[:n] {
		out[i] = performer(idx, g[idx])
	}
	return out
}

func performer(idx int, s grading.Graded) Performer {
	return Performer{
		Index:         idx,
		StudentID:     s.Record.StudentID,
		Name:          s.Record.Name,
		TotalObtained: s.TotalObtained,
		Percentage:    s.Percentage,
		Grade:         s.Grade,
	}
}

type column struct {
	name  string
	raw   roster.Column // empty for derived columns, which always exist
	value func(grading.Graded) float64
}

func rawScore(c roster.Column) func(grading.Graded) float64 {
	return func(g grading.Graded) float64 {
		s, _ := g.Record.Get(c)
		return s.Or(0)
	}
}

var reportColumns = []column{
	{"CT1", roster.ColCT1, rawScore(roster.ColCT1)},
	{"CT2", roster.ColCT2, rawScore(roster.ColCT2)},
	{"CT3", roster.ColCT3, rawScore(roster.ColCT3)},
	{"CT4", roster.ColCT4, rawScore(roster.ColCT4)},
	{"Best_3_CT_Average", "", func(g grading.Graded) float64 { return g.BestCTAvg }},
	{"Mid-Term_Original", "", func(g grading.Graded) float64 { return g.Midterm }},
	{"Mid-Term_Scaled", "", func(g grading.Graded) float64 { return g.MidtermScaled }},
	{"Presentation", roster.ColPresentation, func(g grading.Graded) float64 { return g.Presentation }},
	{"Attendance", roster.ColAttendance, func(g grading.Graded) float64 { return g.Attendance }},
}

func columnStats(g []grading.Graded, present map[roster.Column]bool) []ColumnStats {
	var out []ColumnStats
	for _, c := range reportColumns {
		if c.raw != "" && present != nil && !present[c.raw] {
			continue
		}
		vals := make([]float64, len(g))
		zeros := 0
		for i, s := range g {
			vals[i] = c.value(s)
			if vals[i] == 0 {
				zeros++
			}
		}
		sum := summarize(vals)
		out = append(out, ColumnStats{Name: c.name, Mean: sum.Mean, Min: sum.Min, Max: sum.Max, ZeroOrMissing: zeros})
	}
	return out
}

func clustering(g []grading.Graded, res *cluster.Result, topN int) *Clustering {
	c := &Clustering{
		K:                 res.Options.K,
		Seed:              res.Options.Seed,
		Labels:            res.Labels(),
		Inertia:           res.Inertia,
		ExplainedVariance: res.ExplainedVariance,
	}
	members := map[int][]int{}
	for _, a := range res.Assignments {
		members[a.ClusterID] = append(members[a.ClusterID], a.Index)
	}
	for _, grp := range res.Groups {
		idx := members[grp.ClusterID]
		totals := make([]float64, len(idx))
		for i, j := range idx {
			totals[i] = g[j].TotalObtained
		}
		sum := summarize(totals)
		c.Groups = append(c.Groups, GroupStats{
			Label:     grp.Label,
			Rank:      grp.Rank,
			ClusterID: grp.ClusterID,
			Count:     len(idx),
			MeanTotal: sum.Mean,
			MinTotal:  sum.Min,
			MaxTotal:  sum.Max,
			Top: performers(g, rankBy(g, idx, func(a, b grading.Graded) bool {
				return a.TotalObtained > b.TotalObtained
			}), topN),
		})
	}
	return c
}
