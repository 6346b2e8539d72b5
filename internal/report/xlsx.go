package report

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/mind-engage/mindengage-cohorts/internal/cluster"
	"github.com/mind-engage/mindengage-cohorts/internal/grading"
)

const (
	SheetSummary  = "Summary"
	SheetStudents = "Students"
	SheetClusters = "Clusters"
)

// WriteWorkbook exports the report as an XLSX workbook with Summary,
// Students and Clusters sheets. The Clusters sheet holds only the failure
// message when res is nil.
func WriteWorkbook(w io.Writer, rep Report, graded []grading.Graded, res *cluster.Result) error {
	f := excelize.NewFile()
	defer f.Close()

	for _, s := range []string{SheetSummary, SheetStudents, SheetClusters} {
		if _, err := f.NewSheet(s); err != nil {
			return fmt.Errorf("new sheet %s: %w", s, err)
		}
	}
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return fmt.Errorf("delete default sheet: %w", err)
	}
	if idx, err := f.GetSheetIndex(SheetSummary); err == nil {
		f.SetActiveSheet(idx)
	}

	if err := writeSummarySheet(f, rep); err != nil {
		return err
	}
	if err := writeStudentsSheet(f, graded, res); err != nil {
		return err
	}
	if err := writeClustersSheet(f, rep); err != nil {
		return err
	}
	return f.Write(w)
}

type sheetWriter struct {
	f     *excelize.File
	sheet string
	row   int
	err   error
}

func (s *sheetWriter) put(values ...any) {
	if s.err != nil {
		return
	}
	s.row++
	cell, err := excelize.CoordinatesToCellName(1, s.row)
	if err != nil {
		s.err = err
		return
	}
	if err := s.f.SetSheetRow(s.sheet, cell, &values); err != nil {
		s.err = fmt.Errorf("%s row %d: %w", s.sheet, s.row, err)
	}
}

func (s *sheetWriter) blank() { s.row++ }

func writeSummarySheet(f *excelize.File, rep Report) error {
	s := &sheetWriter{f: f, sheet: SheetSummary}
	s.put("Section", "Metric", "Value")
	s.put("Basic", "Total Students", rep.TotalStudents)
	s.put("Basic", "Average Percentage", rep.Percentage.Mean)
	s.put("Basic", "Median Percentage", rep.Percentage.Median)
	s.put("Basic", "Highest Percentage", rep.Percentage.Max)
	s.put("Basic", "Lowest Percentage", rep.Percentage.Min)
	for _, b := range rep.CategoryDistribution {
		s.put("Category", b.Label, b.Count)
	}
	for _, b := range rep.GradeDistribution {
		s.put("Grade", b.Label, b.Count)
	}
	s.blank()
	s.put("Column", "Average", "Highest", "Lowest", "Absent/Zero")
	for _, c := range rep.Columns {
		s.put(c.Name, c.Mean, c.Max, c.Min, c.ZeroOrMissing)
	}
	return s.err
}

func writeStudentsSheet(f *excelize.File, graded []grading.Graded, res *cluster.Result) error {
	byIndex := map[int]cluster.Assignment{}
	if res != nil {
		for _, a := range res.Assignments {
			byIndex[a.Index] = a
		}
	}
	s := &sheetWriter{f: f, sheet: SheetStudents}
	header := make([]any, len(AssignmentHeader))
	for i, h := range AssignmentHeader {
		header[i] = h
	}
	s.put(header...)
	for i, g := range graded {
		row := []any{g.Record.StudentID, g.Record.Name}
		for _, c := range g.Record.CT {
			if c.Present {
				row = append(row, c.Value)
			} else {
				row = append(row, nil)
			}
		}
		row = append(row,
			g.BestCTAvg, g.Midterm, g.MidtermScaled, g.Presentation, g.Attendance,
			g.TotalObtained, g.Percentage, g.Grade.String(), g.Category.String(),
		)
		if a, ok := byIndex[i]; ok {
			row = append(row, a.ClusterID, a.Group, a.PC1, a.PC2)
		}
		s.put(row...)
	}
	return s.err
}

func writeClustersSheet(f *excelize.File, rep Report) error {
	s := &sheetWriter{f: f, sheet: SheetClusters}
	if rep.Clustering == nil {
		msg := "clustering not run"
		if rep.ClusterError != "" {
			msg = rep.ClusterError
		}
		s.put("Error", msg)
		return s.err
	}
	c := rep.Clustering
	s.put("K", c.K)
	s.put("Seed", c.Seed)
	s.put("Inertia", c.Inertia)
	s.put("Explained Variance PC1", c.ExplainedVariance[0])
	s.put("Explained Variance PC2", c.ExplainedVariance[1])
	s.blank()
	s.put("Rank", "Group", "ClusterID", "Students", "Mean Total", "Min Total", "Max Total")
	for _, g := range c.Groups {
		s.put(g.Rank, g.Label, g.ClusterID, g.Count, g.MeanTotal, g.MinTotal, g.MaxTotal)
	}
	s.blank()
	s.put("Group", "Position", "StudentID", "Student Name", "Total_Obtained", "Grade")
	for _, g := range c.Groups {
		for i, m := range g.Top {
			s.put(g.Label, i+1, m.StudentID, m.Name, m.TotalObtained, m.Grade.String())
		}
	}
	return s.err
}
