package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/mind-engage/mindengage-cohorts/internal/cluster"
	"github.com/mind-engage/mindengage-cohorts/internal/grading"
	"github.com/mind-engage/mindengage-cohorts/internal/roster"
)

// AssignmentHeader is the header row written by WriteAssignmentsCSV.
var AssignmentHeader = []string{
	"StudentID", "Student Name",
	"CT1", "CT2", "CT3", "CT4", "Best_3_CT_Average",
	"Mid-Term_Original", "Mid-Term_Scaled", "Presentation", "Attendance",
	"Total_Obtained", "Percentage", "Grade", "Category",
	"ClusterID", "Group", "PC1", "PC2",
}

// WriteAssignmentsCSV writes one row per student. Cluster columns are empty
// when res is nil. Missing CT cells are written empty.
func WriteAssignmentsCSV(w io.Writer, graded []grading.Graded, res *cluster.Result) error {
	byIndex := map[int]cluster.Assignment{}
	if res != nil {
		for _, a := range res.Assignments {
			byIndex[a.Index] = a
		}
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(AssignmentHeader); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for i, g := range graded {
		row := []string{g.Record.StudentID, g.Record.Name}
		for _, c := range roster.CTColumns {
			s, _ := g.Record.Get(c)
			row = append(row, optional(s))
		}
		row = append(row,
			ff(g.BestCTAvg), ff(g.Midterm), ff(g.MidtermScaled), ff(g.Presentation), ff(g.Attendance),
			ff(g.TotalObtained), ff(g.Percentage), g.Grade.String(), g.Category.String(),
		)
		if a, ok := byIndex[i]; ok {
			row = append(row, strconv.Itoa(a.ClusterID), a.Group, ff(a.PC1), ff(a.PC2))
		} else {
			row = append(row, "", "", "", "")
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write row %d: %w", i+1, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func optional(s roster.Score) string {
	if !s.Present {
		return ""
	}
	return ff(s.Value)
}

func ff(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
