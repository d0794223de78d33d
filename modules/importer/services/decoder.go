package services

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/xuri/excelize/v2"

	"github.com/iota-uz/assetdesk/modules/importer/domain/record"
	"github.com/iota-uz/assetdesk/modules/importer/domain/schema"
)

const mimeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// DecodeResult holds the data rows of a file in source order. Failures are rows that could not be
// tokenized; they carry their physical line number and take no further part in the run.
type DecodeResult struct {
	Format         string
	Encoding       string
	HeaderLine     int
	Columns        []string
	IgnoredColumns []string
	Rows           []record.RawRow
	Failures       []record.RowMessage
	Warnings       []record.RowMessage
}

// Lines returns the line numbers of every data row, parsed or not.
func (r DecodeResult) Lines() int {
	return len(r.Rows) + len(r.Failures)
}

type Decoder struct {
	MaxFileSize int64
}

func NewDecoder(maxFileSize int64) *Decoder {
	return &Decoder{MaxFileSize: maxFileSize}
}

type tableLine struct {
	no    int
	cells []string
	err   error
}

// Decode parses CSV, TSV, semicolon separated text or an XLSX workbook. Only file level problems
// are returned as errors and they always wrap ErrDecode.
func (d *Decoder) Decode(data []byte, desc *schema.Descriptor) (DecodeResult, error) {
	var res DecodeResult
	if len(bytes.TrimSpace(data)) == 0 {
		return res, fmt.Errorf("%w: file is empty", ErrDecode)
	}
	if d.MaxFileSize > 0 && int64(len(data)) > d.MaxFileSize {
		return res, fmt.Errorf("%w: file is %d bytes, the limit is %d", ErrDecode, len(data), d.MaxFileSize)
	}

	var (
		lines  []tableLine
		strict bool
		err    error
	)
	mt := mimetype.Detect(data)
	switch {
	case mt.Is(mimeXLSX), mt.Is("application/zip"):
		res.Format = "xlsx"
		lines, err = readWorkbook(data)
	case mt.Is("application/vnd.ms-excel"), mt.Is("application/x-ole-storage"):
		return res, fmt.Errorf("%w: legacy .xls workbooks are not supported, save the file as .xlsx or .csv", ErrDecode)
	case mt.Is("application/pdf"):
		return res, fmt.Errorf("%w: %s is not a spreadsheet", ErrDecode, mt.String())
	default:
		strict = true
		var text []byte
		text, res.Encoding, err = toUTF8(data)
		if err != nil {
			return res, fmt.Errorf("%w: %v", ErrDecode, err)
		}
		if bytes.IndexByte(text, 0) >= 0 {
			return res, fmt.Errorf("%w: file is binary, not delimited text", ErrDecode)
		}
		var delim rune
		lines, delim = readText(string(text))
		res.Format = formatName(delim)
	}
	if err != nil {
		return res, err
	}

	if len(lines) == 0 {
		return res, fmt.Errorf("%w: file has no header row", ErrDecode)
	}
	header := lines[0]
	if header.err != nil {
		return res, fmt.Errorf("%w: header row: %v", ErrDecode, parseCause(header.err))
	}
	res.HeaderLine = header.no

	columns := make([]string, len(header.cells))
	present := make(map[string]bool, len(header.cells))
	for i, cell := range header.cells {
		name, ok := desc.Canonical(cell)
		if !ok {
			if label := strings.TrimSpace(cell); label != "" {
				res.IgnoredColumns = append(res.IgnoredColumns, label)
			}
			continue
		}
		if present[name] {
			res.Warnings = append(res.Warnings, record.RowMessage{
				Row:     header.no,
				Message: fmt.Sprintf("column %q maps to %s which is already present, ignored", strings.TrimSpace(cell), name),
			})
			continue
		}
		present[name] = true
		columns[i] = name
		res.Columns = append(res.Columns, name)
	}
	if missing := desc.MissingColumns(present); len(missing) > 0 {
		return res, fmt.Errorf("%w: missing required columns: %s", ErrDecode, strings.Join(missing, ", "))
	}

	for _, ln := range lines[1:] {
		if ln.err != nil {
			res.Failures = append(res.Failures, record.RowMessage{Row: ln.no, Message: fmt.Sprintf("malformed row: %v", parseCause(ln.err))})
			continue
		}
		if strict && len(ln.cells) != len(columns) {
			res.Failures = append(res.Failures, record.RowMessage{
				Row:     ln.no,
				Message: fmt.Sprintf("expected %d fields, got %d", len(columns), len(ln.cells)),
			})
			continue
		}
		row := record.RawRow{Line: ln.no, Values: make(map[string]string, len(res.Columns))}
		for i, name := range columns {
			if name == "" {
				continue
			}
			if i < len(ln.cells) {
				row.Values[name] = ln.cells[i]
			} else {
				row.Values[name] = ""
			}
		}
		res.Rows = append(res.Rows, row)
	}
	return res, nil
}

// readText splits text on newlines and tokenizes every non-blank line on its own, so a broken
// quote damages one row only. A line of empty cells such as ",," is still a row.
func readText(text string) ([]tableLine, rune) {
	raw := strings.Split(text, "\n")
	var (
		out   []tableLine
		delim rune
	)
	for i, l := range raw {
		l = strings.TrimRight(l, "\r")
		if strings.TrimSpace(l) == "" {
			continue
		}
		if delim == 0 {
			delim = detectDelimiter(l)
		}
		cells, err := tokenize(l, delim)
		out = append(out, tableLine{no: i + 1, cells: cells, err: err})
	}
	return out, delim
}

func tokenize(line string, delim rune) ([]string, error) {
	r := csv.NewReader(strings.NewReader(line))
	r.Comma = delim
	r.FieldsPerRecord = -1
	return r.Read()
}

func parseCause(err error) error {
	var pe *csv.ParseError
	if errors.As(err, &pe) {
		return pe.Err
	}
	return err
}

// detectDelimiter picks the most frequent of comma, semicolon and tab outside quotes.
func detectDelimiter(header string) rune {
	counts := map[rune]int{}
	quoted := false
	for _, r := range header {
		switch r {
		case '"':
			quoted = !quoted
		case ',', ';', '\t':
			if !quoted {
				counts[r]++
			}
		}
	}
	best := ','
	for _, r := range []rune{';', '\t'} {
		if counts[r] > counts[best] {
			best = r
		}
	}
	return best
}

func formatName(delim rune) string {
	switch delim {
	case '\t':
		return "tsv"
	case ';':
		return "csv;"
	default:
		return "csv"
	}
}

func blank(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// readWorkbook reads the first sheet. Line numbers are spreadsheet row numbers.
func readWorkbook(data []byte) ([]tableLine, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: unreadable workbook: %v", ErrDecode, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("%w: workbook has no sheets", ErrDecode)
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("%w: sheet %q: %v", ErrDecode, sheets[0], err)
	}
	out := make([]tableLine, 0, len(rows))
	for i, cells := range rows {
		if blank(cells) {
			continue
		}
		out = append(out, tableLine{no: i + 1, cells: cells})
	}
	return out, nil
}
