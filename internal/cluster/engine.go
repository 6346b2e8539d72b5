package cluster

import (
	"fmt"
	"sort"

	"github.com/mind-engage/mindengage-cohorts/internal/apperr"
	"github.com/mind-engage/mindengage-cohorts/internal/grading"
)

// Labels used when exactly three clusters are requested, best first.
var ThreeGroupLabels = []string{"Good", "Average", "Struggling"}

type Options struct {
	K       int     `json:"k" yaml:"k"`
	Seed    int64   `json:"seed" yaml:"seed"`
	MaxIter int     `json:"max_iter" yaml:"max_iter"`
	NInit   int     `json:"n_init" yaml:"n_init"`
	Tol     float64 `json:"tol" yaml:"tol"`
}

func DefaultOptions() Options {
	return Options{K: 3, Seed: 83, MaxIter: 300, NInit: 10, Tol: 1e-4}
}

// Assignment places one student, by input index, in a cluster.
type Assignment struct {
	Index     int     `json:"index"`
	ClusterID int     `json:"cluster_id"`
	Group     string  `json:"group"`
	GroupRank int     `json:"group_rank"` // 1 is the best-performing group
	PC1       float64 `json:"pc1"`
	PC2       float64 `json:"pc2"`
}

// Group describes one labelled cluster.
type Group struct {
	Label     string  `json:"label"`
	ClusterID int     `json:"cluster_id"`
	Rank      int     `json:"rank"`
	Size      int     `json:"size"`
	MeanTotal float64 `json:"mean_total"`
}

type Result struct {
	Options           Options      `json:"options"`
	Features          []string     `json:"features"`
	Assignments       []Assignment `json:"assignments"`
	Groups            []Group      `json:"groups"` // best first
	Centroids         [][]float64  `json:"centroids"`
	Scaler            Scaler       `json:"scaler"`
	Inertia           float64      `json:"inertia"`
	Iterations        int          `json:"iterations"`
	ExplainedVariance [2]float64   `json:"explained_variance"`
}

// Labels returns group labels best first.
func (r *Result) Labels() []string {
	out := make([]string, len(r.Groups))
	for i, g := range r.Groups {
		out[i] = g.Label
	}
	return out
}

// Engine runs the clustering stage. It keeps only its options.
type Engine struct {
	opts Options
}

func NewEngine(opts Options) *Engine {
	def := DefaultOptions()
	if opts.MaxIter <= 0 {
		opts.MaxIter = def.MaxIter
	}
	if opts.NInit <= 0 {
		opts.NInit = def.NInit
	}
	if opts.Tol <= 0 {
		opts.Tol = def.Tol
	}
	return &Engine{opts: opts}
}

func (e *Engine) Options() Options { return e.opts }

// Run clusters the batch. It reads only the numeric rubric fields; Grade and
// Category play no part.
func (e *Engine) Run(graded []grading.Graded) (*Result, error) {
	k := e.opts.K
	if k < 1 {
		return nil, apperr.Clustering("kmeans", fmt.Sprintf("cluster count must be positive, got %d", k))
	}
	if len(graded) == 0 {
		return nil, apperr.Clustering("kmeans", "no records to cluster")
	}

	z, scaler, err := Standardize(FeatureMatrix(graded))
	if err != nil {
		return nil, err
	}
	if d := distinctRows(rows(z)); d < k {
		return nil, apperr.Clustering("kmeans", fmt.Sprintf("cannot form %d non-empty clusters from %d distinct records", k, d))
	}

	km := KMeans{K: k, Seed: uint64(e.opts.Seed), MaxIter: e.opts.MaxIter, NInit: e.opts.NInit, Tol: e.opts.Tol}
	f := km.Fit(z)
	groups := rankGroups(graded, f.labels, k)
	proj := Project(z)

	byCluster := make(map[int]Group, len(groups))
	for _, g := range groups {
		byCluster[g.ClusterID] = g
	}
	res := &Result{
		Options:           e.opts,
		Features:          append([]string(nil), Features...),
		Assignments:       make([]Assignment, len(graded)),
		Groups:            groups,
		Centroids:         f.centroids,
		Scaler:            scaler,
		Inertia:           f.inertia,
		Iterations:        f.iter,
		ExplainedVariance: proj.ExplainedVariance,
	}
	for i, l := range f.labels {
		g := byCluster[l]
		res.Assignments[i] = Assignment{
			Index:     i,
			ClusterID: l,
			Group:     g.Label,
			GroupRank: g.Rank,
			PC1:       proj.Coords[i][0],
			PC2:       proj.Coords[i][1],
		}
	}
	return res, nil
}

// rankGroups orders clusters by mean TotalObtained, highest first, and names
// them. Equal means keep the lower cluster id first.
func rankGroups(graded []grading.Graded, labels []int, k int) []Group {
	groups := make([]Group, k)
	sums := make([]float64, k)
	for j := range groups {
		groups[j].ClusterID = j
	}
	for i, l := range labels {
		sums[l] += graded[i].TotalObtained
		groups[l].Size++
	}
	for j := range groups {
		if groups[j].Size > 0 {
			groups[j].MeanTotal = sums[j] / float64(groups[j].Size)
		}
	}
	sort.SliceStable(groups, func(a, b int) bool {
		return groups[a].MeanTotal > groups[b].MeanTotal
	})
	for r := range groups {
		groups[r].Rank = r + 1
		groups[r].Label = GroupLabel(r, k)
	}
	return groups
}

// GroupLabel names the group at 0-based rank r out of k.
func GroupLabel(r, k int) string {
	if k == len(ThreeGroupLabels) {
		return ThreeGroupLabels[r]
	}
	return fmt.Sprintf("Group %d", r+1)
}
