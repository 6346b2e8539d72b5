package report

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/olekukonko/tablewriter"

	"github.com/mind-engage/mindengage-cohorts/internal/grading"
)

const (
	rule     = "================================================================================"
	thinRule = "----------------------------------------"
)

// WriteText renders the human-readable analysis report.
func WriteText(w io.Writer, rep Report, graded []grading.Graded) error {
	bw := bufio.NewWriter(w)

	fmt.Fprintln(bw, rule)
	fmt.Fprintln(bw, "COHORT ANALYSIS REPORT")
	fmt.Fprintln(bw, rule)
	fmt.Fprintln(bw)

	section(bw, "GRADING SYSTEM")
	r := grading.DefaultRubric()
	if rep.Rubric != nil {
		r = *rep.Rubric
	}
	for _, c := range r.Criteria {
		fmt.Fprintf(bw, "* %s: %g marks\n", c.Desc, c.MaxPoints)
	}
	fmt.Fprintf(bw, "* Total: %g marks\n\n", r.Max)

	section(bw, "BASIC STATISTICS")
	fmt.Fprintf(bw, "Total Students: %d\n", rep.TotalStudents)
	fmt.Fprintf(bw, "Average Percentage: %.2f%%\n", rep.Percentage.Mean)
	fmt.Fprintf(bw, "Highest Percentage: %.2f%%\n", rep.Percentage.Max)
	fmt.Fprintf(bw, "Lowest Percentage: %.2f%%\n", rep.Percentage.Min)
	fmt.Fprintf(bw, "Median Percentage: %.2f%%\n\n", rep.Percentage.Median)

	section(bw, "CATEGORY DISTRIBUTION")
	distribution(bw, rep.CategoryDistribution, "Category")
	section(bw, "GRADE DISTRIBUTION")
	distribution(bw, rep.GradeDistribution, "Grade")

	section(bw, fmt.Sprintf("TOP %d PERFORMERS", len(rep.TopPerformers)))
	performerList(bw, rep.TopPerformers)
	section(bw, fmt.Sprintf("STUDENTS NEEDING ATTENTION (Bottom %d)", len(rep.BottomPerformers)))
	performerList(bw, rep.BottomPerformers)

	section(bw, "ALL STUDENTS")
	t := newTable(bw, "No.", "Student ID", "Student Name", "CT Avg", "Mid", "Pres", "Att", "Total", "%", "Grade")
	for i, g := range graded {
		t.Append([]string{
			fmt.Sprint(i + 1),
			g.Record.StudentID,
			g.Record.Name,
			num(g.BestCTAvg),
			num(g.MidtermScaled),
			num(g.Presentation),
			num(g.Attendance),
			num(g.TotalObtained),
			num(g.Percentage),
			g.Grade.String(),
		})
	}
	t.Render()
	fmt.Fprintln(bw)

	section(bw, "ASSESSMENT ANALYSIS")
	t = newTable(bw, "Column", "Average", "Highest", "Lowest", "Absent/Zero")
	for _, c := range rep.Columns {
		t.Append([]string{c.Name, num(c.Mean), num(c.Max), num(c.Min), fmt.Sprint(c.ZeroOrMissing)})
	}
	t.Render()
	fmt.Fprintln(bw)

	section(bw, "CLUSTER SUMMARY")
	switch {
	case rep.Clustering != nil:
		c := rep.Clustering
		fmt.Fprintf(bw, "Number of Clusters: %d (seed %d)\n", c.K, c.Seed)
		fmt.Fprintf(bw, "Cluster Labels: %s\n", strings.Join(c.Labels, ", "))
		fmt.Fprintf(bw, "Explained Variance: PC1 %.1f%%, PC2 %.1f%%\n\n",
			c.ExplainedVariance[0]*100, c.ExplainedVariance[1]*100)
		t = newTable(bw, "Rank", "Group", "Students", "Mean Total", "Min Total", "Max Total")
		for _, g := range c.Groups {
			t.Append([]string{fmt.Sprint(g.Rank), g.Label, fmt.Sprint(g.Count), num(g.MeanTotal), num(g.MinTotal), num(g.MaxTotal)})
		}
		t.Render()
		for _, g := range c.Groups {
			fmt.Fprintf(bw, "\n%s GROUP TOP MEMBERS:\n", strings.ToUpper(g.Label))
			for i, m := range g.Top {
				fmt.Fprintf(bw, "%d. %s - %.2f marks (Grade: %s)\n", i+1, display(m), m.TotalObtained, m.Grade)
			}
		}
	case rep.ClusterError != "":
		fmt.Fprintf(bw, "Clustering unavailable: %s\n", rep.ClusterError)
	default:
		fmt.Fprintln(bw, "Clustering not run.")
	}

	if !rep.GeneratedAt.IsZero() {
		fmt.Fprintln(bw)
		fmt.Fprintln(bw, rule)
		fmt.Fprintf(bw, "Report generated on: %s\n", rep.GeneratedAt.Format("2006-01-02 15:04:05"))
		fmt.Fprintln(bw, rule)
	}
	return bw.Flush()
}

func section(w io.Writer, title string) {
	fmt.Fprintf(w, "%s:\n%s\n", title, thinRule)
}

func distribution(w io.Writer, buckets []Bucket, kind string) {
	t := newTable(w, kind, "Students", "Share")
	for _, b := range buckets {
		t.Append([]string{b.Label, fmt.Sprint(b.Count), fmt.Sprintf("%.1f%%", b.Proportion*100)})
	}
	t.Render()
	fmt.Fprintln(w)
}

func performerList(w io.Writer, ps []Performer) {
	for i, p := range ps {
		fmt.Fprintf(w, "%d. %s - %.2f%% (Grade: %s)\n", i+1, display(p), p.Percentage, p.Grade)
	}
	fmt.Fprintln(w)
}

func display(p Performer) string {
	if p.Name != "" {
		return p.Name
	}
	if p.StudentID != "" {
		return p.StudentID
	}
	return fmt.Sprintf("row %d", p.Index+1)
}

func newTable(w io.Writer, header ...string) *tablewriter.Table {
	t := tablewriter.NewWriter(w)
	t.SetHeader(header)
	t.SetAutoFormatHeaders(false)
	t.SetAutoWrapText(false)
	t.SetAlignment(tablewriter.ALIGN_LEFT)
	return t
}

func num(v float64) string { return fmt.Sprintf("%.2f", v) }
