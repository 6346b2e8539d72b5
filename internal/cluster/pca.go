package cluster

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// Projection is a 2-D view of the standardized feature space.
type Projection struct {
	Coords            [][2]float64 `json:"coords"`
	ExplainedVariance [2]float64   `json:"explained_variance"`
}

// Project runs PCA on z and keeps the first two components. Components that
// do not exist (fewer than two rows or columns) are reported as zeros.
func Project(z *mat.Dense) Projection {
	n, d := z.Dims()
	p := Projection{Coords: make([][2]float64, n)}
	if n < 2 || d == 0 {
		return p
	}

	var pc stat.PC
	if ok := pc.PrincipalComponents(z, nil); !ok {
		return p
	}
	var vecs mat.Dense
	pc.VectorsTo(&vecs)
	vars := pc.VarsTo(nil)

	_, kept := vecs.Dims()
	if kept > 2 {
		kept = 2
	}
	if kept == 0 {
		return p
	}

	centered := mat.DenseCopyOf(z)
	for j := 0; j < d; j++ {
		col := mat.Col(nil, j, centered)
		mean := stat.Mean(col, nil)
		for i := range col {
			centered.Set(i, j, col[i]-mean)
		}
	}

	var proj mat.Dense
	proj.Mul(centered, vecs.Slice(0, d, 0, kept))
	for i := 0; i < n; i++ {
		for c := 0; c < kept; c++ {
			p.Coords[i][c] = proj.At(i, c)
		}
	}

	if total := floats.Sum(vars); total > 0 {
		for c := 0; c < kept && c < len(vars); c++ {
			p.ExplainedVariance[c] = vars[c] / total
		}
	}
	return p
}
