package cluster

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// KMeans is Lloyd's algorithm with k-means++ seeding. Every random draw
// comes from a PCG source seeded with Seed, so identical input in identical
// order yields identical labels.
type KMeans struct {
	K       int
	Seed    uint64
	MaxIter int     // Lloyd iterations per initialization
	NInit   int     // independent initializations; lowest inertia wins
	Tol     float64 // stop when total squared centroid shift falls below this
}

type fit struct {
	labels    []int
	centroids [][]float64
	inertia   float64
	iter      int
}

// Fit clusters the rows of z. The caller guarantees at least K distinct rows.
func (km KMeans) Fit(z *mat.Dense) fit {
	points := rows(z)
	rng := rand.New(rand.NewPCG(km.Seed, km.Seed^0x9e3779b97f4a7c15))

	nInit := km.NInit
	if nInit < 1 {
		nInit = 1
	}
	var best fit
	for run := 0; run < nInit; run++ {
		f := km.lloyd(points, km.seedCenters(points, rng))
		if run == 0 || f.inertia < best.inertia {
			best = f
		}
	}
	return best
}

// seedCenters picks the first center uniformly and each next one with
// probability proportional to its squared distance from the nearest chosen
// center.
func (km KMeans) seedCenters(points [][]float64, rng *rand.Rand) [][]float64 {
	n := len(points)
	centers := make([][]float64, 0, km.K)
	centers = append(centers, clone(points[rng.IntN(n)]))

	d2 := make([]float64, n)
	for i, p := range points {
		d2[i] = sqDist(p, centers[0])
	}
	for len(centers) < km.K {
		total := floats.Sum(d2)
		next := -1
		if total > 0 {
			target := rng.Float64() * total
			acc := 0.0
			for i, d := range d2 {
				acc += d
				if d > 0 && acc >= target {
					next = i
					break
				}
			}
		}
		if next < 0 {
			// Rounding left target past the last positive weight.
			next = floats.MaxIdx(d2)
		}
		c := clone(points[next])
		centers = append(centers, c)
		for i, p := range points {
			if d := sqDist(p, c); d < d2[i] {
				d2[i] = d
			}
		}
	}
	return centers
}

func (km KMeans) lloyd(points, centers [][]float64) fit {
	n, dim := len(points), len(points[0])
	labels := make([]int, n)
	for i := range labels {
		labels[i] = -1
	}
	maxIter := km.MaxIter
	if maxIter < 1 {
		maxIter = 1
	}

	iter := 0
	for iter < maxIter {
		iter++
		changed := false
		for i, p := range points {
			if l := nearest(p, centers); l != labels[i] {
				labels[i] = l
				changed = true
			}
		}

		next := make([][]float64, km.K)
		sizes := make([]int, km.K)
		for j := range next {
			next[j] = make([]float64, dim)
		}
		for i, p := range points {
			floats.Add(next[labels[i]], p)
			sizes[labels[i]]++
		}
		for j := range next {
			if sizes[j] > 0 {
				floats.Scale(1/float64(sizes[j]), next[j])
			}
		}
		relocateEmpty(points, labels, next, sizes)

		shift := 0.0
		for j := range next {
			shift += sqDist(next[j], centers[j])
		}
		centers = next
		if !changed || shift <= km.Tol {
			break
		}
	}

	// Final assignment against the final centers.
	inertia := 0.0
	for i, p := range points {
		labels[i] = nearest(p, centers)
		inertia += sqDist(p, centers[labels[i]])
	}
	return fit{labels: labels, centroids: centers, inertia: inertia, iter: iter}
}

// relocateEmpty gives every empty cluster the point farthest from its own
// centroid, taken from a cluster that can spare it.
func relocateEmpty(points [][]float64, labels []int, centers [][]float64, sizes []int) {
	for j := range centers {
		if sizes[j] > 0 {
			continue
		}
		far, farD := -1, 0.0
		for i, p := range points {
			if sizes[labels[i]] < 2 {
				continue
			}
			if d := sqDist(p, centers[labels[i]]); d > farD {
				far, farD = i, d
			}
		}
		if far < 0 {
			return
		}
		from := labels[far]
		labels[far] = j
		sizes[from]--
		sizes[j] = 1
		centers[j] = clone(points[far])
		centers[from] = meanOf(points, labels, from, len(points[far]))
	}
}

func meanOf(points [][]float64, labels []int, cluster, dim int) []float64 {
	m := make([]float64, dim)
	n := 0
	for i, p := range points {
		if labels[i] == cluster {
			floats.Add(m, p)
			n++
		}
	}
	if n > 0 {
		floats.Scale(1/float64(n), m)
	}
	return m
}

// nearest breaks distance ties toward the lower cluster index.
func nearest(p []float64, centers [][]float64) int {
	best, bestD := 0, math.Inf(1)
	for j, c := range centers {
		if d := sqDist(p, c); d < bestD {
			best, bestD = j, d
		}
	}
	return best
}

func sqDist(a, b []float64) float64 {
	d := floats.Distance(a, b, 2)
	return d * d
}

func rows(m *mat.Dense) [][]float64 {
	r, _ := m.Dims()
	out := make([][]float64, r)
	for i := range out {
		out[i] = mat.Row(nil, i, m)
	}
	return out
}

func clone(v []float64) []float64 { return append([]float64(nil), v...) }

// distinctRows counts rows that differ in at least one coordinate.
func distinctRows(points [][]float64) int {
	seen := make(map[string]struct{}, len(points))
	key := make([]byte, 0, 64)
	for _, p := range points {
		key = key[:0]
		for _, v := range p {
			b := math.Float64bits(v)
			for s := 0; s < 64; s += 8 {
				key = append(key, byte(b>>s))
			}
		}
		seen[string(key)] = struct{}{}
	}
	return len(seen)
}
