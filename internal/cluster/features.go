// Package cluster groups graded students into performance cohorts: z-score
// standardization, seeded k-means, rank-by-mean relabelling and a 2-D PCA
// projection for plotting.
package cluster

import (
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/mind-engage/mindengage-cohorts/internal/apperr"
	"github.com/mind-engage/mindengage-cohorts/internal/grading"
)

// Features are the clustered columns, in matrix column order. Identity
// fields are never features.
var Features = []string{"Mid-Term", "Presentation", "Attendance", "Midterm_Scaled", "CT_Avg"}

func featureRow(g grading.Graded) []float64 {
	return []float64{g.Midterm, g.Presentation, g.Attendance, g.MidtermScaled, g.BestCTAvg}
}

// FeatureMatrix builds the n×len(Features) matrix of a batch.
func FeatureMatrix(graded []grading.Graded) *mat.Dense {
	x := mat.NewDense(len(graded), len(Features), nil)
	for i, g := range graded {
		x.SetRow(i, featureRow(g))
	}
	return x
}

// Scaler holds per-column population mean and standard deviation.
type Scaler struct {
	Mean []float64 `json:"mean"`
	Std  []float64 `json:"std"`
}

// Standardize returns the z-scores of x column by column. A zero-variance
// column maps to all zeros. Any non-finite result is a data error.
func Standardize(x *mat.Dense) (*mat.Dense, Scaler, error) {
	r, c := x.Dims()
	z := mat.NewDense(r, c, nil)
	sc := Scaler{Mean: make([]float64, c), Std: make([]float64, c)}
	col := make([]float64, r)
	for j := 0; j < c; j++ {
		mat.Col(col, j, x)
		mean, std := stat.PopMeanStdDev(col, nil)
		if !finite(mean) || !finite(std) {
			return nil, Scaler{}, apperr.Data("standardize", "non-numeric value in column "+featureName(j))
		}
		sc.Mean[j], sc.Std[j] = mean, std
		for i, v := range col {
			s := 0.0
			if std > 0 {
				s = (v - mean) / std
			}
			if !finite(s) {
				return nil, Scaler{}, apperr.Data("standardize", "non-numeric value in column "+featureName(j))
			}
			z.Set(i, j, s)
		}
	}
	return z, sc, nil
}

func featureName(j int) string {
	if j < len(Features) {
		return Features[j]
	}
	return "column"
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }
