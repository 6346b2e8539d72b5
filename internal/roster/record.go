// Package roster loads per-student assessment rows from delimited text or
// spreadsheet sources. It only populates raw fields; every fill and default
// policy belongs to the grading stage.
package roster

import (
	"strconv"
	"strings"
	"unicode"
)

// Column is the canonical name of a recognized input column.
type Column string

const (
	ColStudentID    Column = "StudentID"
	ColName         Column = "Student Name"
	ColCT1          Column = "CT1"
	ColCT2          Column = "CT2"
	ColCT3          Column = "CT3"
	ColCT4          Column = "CT4"
	ColMidterm      Column = "Mid-Term"
	ColPresentation Column = "Presentation"
	ColAttendance   Column = "Attendance"
)

// CTColumns lists the continuous-assessment columns in attempt order.
var CTColumns = [4]Column{ColCT1, ColCT2, ColCT3, ColCT4}

// ScoreColumns are the numeric columns, in the order reports list them.
var ScoreColumns = []Column{ColCT1, ColCT2, ColCT3, ColCT4, ColMidterm, ColPresentation, ColAttendance}

var aliases = map[string]Column{
	"studentid":    ColStudentID,
	"id":           ColStudentID,
	"sid":          ColStudentID,
	"rollno":       ColStudentID,
	"studentname":  ColName,
	"name":         ColName,
	"ct1":          ColCT1,
	"ct2":          ColCT2,
	"ct3":          ColCT3,
	"ct4":          ColCT4,
	"midterm":      ColMidterm,
	"mid":          ColMidterm,
	"presentation": ColPresentation,
	"attendance":   ColAttendance,
}

// MatchColumn maps a header cell onto a known column. Matching ignores case,
// spaces, underscores and dashes, so "Mid-Term", "mid_term" and "MidTerm"
// are the same column.
func MatchColumn(header string) (Column, bool) {
	var b strings.Builder
	for _, r := range header {
		if unicode.IsSpace(r) || r == '_' || r == '-' || r == '.' {
			continue
		}
		b.WriteRune(unicode.ToLower(r))
	}
	c, ok := aliases[b.String()]
	return c, ok
}

// Score is an optional numeric cell. Present is false for empty cells,
// absence markers ("A", "AB") and anything else that is not a finite number.
type Score struct {
	Value   float64 `json:"value"`
	Present bool    `json:"present"`
}

// Some returns a present score.
func Some(v float64) Score { return Score{Value: v, Present: true} }

// Or returns the value, or def when the score is missing.
func (s Score) Or(def float64) float64 {
	if !s.Present {
		return def
	}
	return s.Value
}

// ParseScore coerces a raw cell. It never fails: unparseable input is
// reported as missing.
func ParseScore(raw string) Score {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Score{}
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || isNonFinite(v) {
		return Score{}
	}
	return Some(v)
}

// Record is one input row with raw fields only.
type Record struct {
	Line         int      `json:"line"` // 1-based line in the source; the header is line 1
	StudentID    string   `json:"student_id"`
	Name         string   `json:"name"`
	CT           [4]Score `json:"ct"`
	Midterm      Score    `json:"midterm"`
	Presentation Score    `json:"presentation"`
	Attendance   Score    `json:"attendance"`
}

// Get returns the raw score for a numeric column.
func (r Record) Get(c Column) (Score, bool) {
	switch c {
	case ColCT1:
		return r.CT[0], true
	case ColCT2:
		return r.CT[1], true
	case ColCT3:
		return r.CT[2], true
	case ColCT4:
		return r.CT[3], true
	case ColMidterm:
		return r.Midterm, true
	case ColPresentation:
		return r.Presentation, true
	case ColAttendance:
		return r.Attendance, true
	}
	return Score{}, false
}

func (r *Record) set(c Column, raw string) {
	switch c {
	case ColStudentID:
		r.StudentID = strings.TrimSpace(raw)
	case ColName:
		r.Name = strings.TrimSpace(raw)
	case ColCT1:
		r.CT[0] = ParseScore(raw)
	case ColCT2:
		r.CT[1] = ParseScore(raw)
	case ColCT3:
		r.CT[2] = ParseScore(raw)
	case ColCT4:
		r.CT[3] = ParseScore(raw)
	case ColMidterm:
		r.Midterm = ParseScore(raw)
	case ColPresentation:
		r.Presentation = ParseScore(raw)
	case ColAttendance:
		r.Attendance = ParseScore(raw)
	}
}

// Table is a loaded batch plus what the header told us about it.
type Table struct {
	Source  string          `json:"source"`
	Columns map[Column]bool `json:"columns"`
	Missing []Column        `json:"missing,omitempty"`
	Records []Record        `json:"records"`
}

// Has reports whether the source carried column c.
func (t Table) Has(c Column) bool { return t.Columns[c] }

// Len is the number of records.
func (t Table) Len() int { return len(t.Records) }
