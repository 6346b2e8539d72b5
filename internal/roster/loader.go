package roster

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"

	"github.com/mind-engage/mindengage-cohorts/internal/apperr"
)

// Format is the tabular encoding of a source.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatTSV  Format = "tsv"
	FormatXLSX Format = "xlsx"
)

const sniffLen = 512

var zipMagic = []byte("PK\x03\x04")

// DetectFormat picks a format from a file name. Names without a recognized
// extension return an empty format and no error so callers can sniff the
// content instead.
func DetectFormat(name string) (Format, error) {
	switch ext := strings.ToLower(filepath.Ext(name)); ext {
	case ".csv", ".txt":
		return FormatCSV, nil
	case ".tsv", ".tab":
		return FormatTSV, nil
	case ".xlsx", ".xlsm":
		return FormatXLSX, nil
	case ".xls":
		return "", apperr.Format("load", name, "legacy .xls workbooks are not supported, save as .xlsx", nil)
	case "":
		return "", nil
	default:
		return "", apperr.Format("load", name, "unsupported extension "+ext, nil)
	}
}

// LoadFile opens path and loads it according to its extension.
func LoadFile(path string) (Table, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Table{}, apperr.NotFound("load", path, err)
		}
		return Table{}, fmt.Errorf("load %s: %w", path, err)
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return Table{}, fmt.Errorf("load %s: %w", path, err)
	}
	if st.IsDir() {
		return Table{}, apperr.Format("load", path, "is a directory", nil)
	}

	format, err := DetectFormat(path)
	if err != nil {
		return Table{}, err
	}
	return Load(f, path, format)
}

// Load reads a source of the given format. An empty format means "sniff":
// zip content is treated as a workbook, valid UTF-8 text as CSV.
func Load(r io.Reader, name string, format Format) (Table, error) {
	br := bufio.NewReaderSize(r, 64*1024)
	head, _ := br.Peek(sniffLen)

	if format == "" {
		switch {
		case bytes.HasPrefix(head, zipMagic):
			format = FormatXLSX
		case looksLikeText(head):
			format = FormatCSV
			if bytes.Count(head, []byte{'\t'}) > bytes.Count(head, []byte{','}) {
				format = FormatTSV
			}
		default:
			return Table{}, apperr.Format("load", name, "content is neither delimited text nor a spreadsheet", nil)
		}
	}

	var (
		rows  [][]string
		lines []int
		err   error
	)
	switch format {
	case FormatCSV, FormatTSV:
		if bytes.HasPrefix(head, zipMagic) || !looksLikeText(head) {
			return Table{}, apperr.Format("load", name, "content is not delimited text", nil)
		}
		rows, lines, err = readDelimited(br, format)
	case FormatXLSX:
		rows, err = readWorkbook(br)
	default:
		return Table{}, apperr.Format("load", name, "unknown format "+string(format), nil)
	}
	if err != nil {
		return Table{}, apperr.Format("load", name, "cannot parse "+string(format), err)
	}
	return parse(name, rows, lines)
}

// Parse turns header + data rows into a Table. Unknown columns are ignored.
// Row i of rows is assumed to sit on line i+1 of the source.
func Parse(name string, rows [][]string) (Table, error) {
	return parse(name, rows, nil)
}

func parse(name string, rows [][]string, lines []int) (Table, error) {
	if len(rows) == 0 {
		return Table{}, apperr.Format("load", name, "no header row", nil)
	}
	header := rows[0]
	index := map[int]Column{}
	cols := map[Column]bool{}
	for i, h := range header {
		if i == 0 {
			h = strings.TrimPrefix(h, "\ufeff")
		}
		if c, ok := MatchColumn(h); ok && !cols[c] {
			index[i] = c
			cols[c] = true
		}
	}

	t := Table{Source: name, Columns: cols}
	for _, c := range append([]Column{ColStudentID, ColName}, ScoreColumns...) {
		if !cols[c] {
			t.Missing = append(t.Missing, c)
		}
	}

	for n, row := range rows[1:] {
		if blank(row) {
			continue
		}
		rec := Record{Line: n + 2}
		if lines != nil {
			rec.Line = lines[n+1]
		}
		for i, cell := range row {
			if c, ok := index[i]; ok {
				rec.set(c, cell)
			}
		}
		t.Records = append(t.Records, rec)
	}
	return t, nil
}

// readDelimited also returns the source line of every row; encoding/csv
// drops blank lines, so row index and line number drift apart.
func readDelimited(r io.Reader, format Format) ([][]string, []int, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.LazyQuotes = true
	if format == FormatTSV {
		cr.Comma = '\t'
	}
	var (
		rows  [][]string
		lines []int
	)
	for {
		row, err := cr.Read()
		if err == io.EOF {
			return rows, lines, nil
		}
		if err != nil {
			return nil, nil, err
		}
		line, _ := cr.FieldPos(0)
		rows = append(rows, row)
		lines = append(lines, line)
	}
}

// readWorkbook returns the rows of the first sheet. Trailing empty cells are
// trimmed by excelize, so rows may be shorter than the header.
func readWorkbook(r io.Reader) ([][]string, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("workbook has no sheets")
	}
	return f.GetRows(sheets[0])
}

func looksLikeText(b []byte) bool {
	if bytes.IndexByte(b, 0) >= 0 {
		return false
	}
	// Peek may cut a multi-byte rune in half.
	for i := 0; i < utf8.UTFMax && len(b) > 0; i++ {
		if utf8.Valid(b) {
			return true
		}
		b = b[:len(b)-1]
	}
	return utf8.Valid(b)
}

func blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func isNonFinite(v float64) bool { return math.IsNaN(v) || math.IsInf(v, 0) }
