package dataset

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Options controls how an uploaded file is parsed.
type Options struct {
	// MaxRows limits stored rows; 0 means unlimited.
	MaxRows int
	// SampleRows determines how many example rows the summary keeps.
	SampleRows int
	// Delimiter for the file. If 0, chosen from the file extension (comma by default).
	Delimiter rune
	// Numeric parsing locale. If DecimalSeparator is 0, auto-detect per value.
	DecimalSeparator   rune
	ThousandsSeparator rune
}

// DefaultOptions returns the loader defaults.
func DefaultOptions() Options {
	return Options{SampleRows: 5}
}

// ErrEmptyFile is returned when the input has no header line.
var ErrEmptyFile = errors.New("no columns to parse from file")

// ParseError reports a file that could not be read as a table.
type ParseError struct {
	Name string
	Row  int // 1-based data row; 0 for header or file-level problems
	Err  error
}

func (e *ParseError) Error() string {
	if e.Row > 0 {
		return fmt.Sprintf("failed to read %s: row %d: %v", e.Name, e.Row, e.Err)
	}
	return fmt.Sprintf("failed to read %s: %v", e.Name, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Format maps file extensions to a field delimiter.
type Format struct {
	Name       string
	Extensions []string
	Delimiter  rune
}

var formats []Format

// RegisterFormat adds a format to the extension registry.
func RegisterFormat(f Format) {
	formats = append(formats, f)
}

func init() {
	RegisterFormat(Format{Name: "csv", Extensions: []string{".csv", ".txt"}, Delimiter: ','})
	RegisterFormat(Format{Name: "tsv", Extensions: []string{".tsv", ".tab"}, Delimiter: '\t'})
}

// CanLoad reports whether the filename has a registered extension.
func CanLoad(name string) bool {
	_, ok := formatFor(name)
	return ok
}

func formatFor(name string) (Format, bool) {
	ext := strings.ToLower(filepath.Ext(name))
	for _, f := range formats {
		for _, e := range f.Extensions {
			if e == ext {
				return f, true
			}
		}
	}
	return Format{}, false
}

func sniffDelimiter(name string) rune {
	if f, ok := formatFor(name); ok {
		return f.Delimiter
	}
	return ','
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// naValues are cell spellings treated as missing.
var naValues = map[string]bool{
	"": true, "NA": true, "N/A": true, "n/a": true, "NaN": true, "nan": true, "-NaN": true, "-nan": true,
	"null": true, "NULL": true, "None": true, "#N/A": true, "<NA>": true,
}

// LoadFile reads a table from disk.
func LoadFile(path string, opt Options) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	defer f.Close()
	return Load(filepath.Base(path), f, opt)
}

// Load parses delimited text into a Dataset. The first record is the header.
// Rows shorter than the header are padded with missing cells; longer rows are an error.
func Load(name string, r io.Reader, opt Options) (*Dataset, error) {
	br := bufio.NewReader(r)
	if b, err := br.Peek(len(utf8BOM)); err == nil && bytes.Equal(b, utf8BOM) {
		_, _ = br.Discard(len(utf8BOM))
	}
	delim := opt.Delimiter
	if delim == 0 {
		delim = sniffDelimiter(name)
	}
	cr := csv.NewReader(br)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.Comma = delim

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, &ParseError{Name: name, Err: ErrEmptyFile}
		}
		return nil, &ParseError{Name: name, Err: fmt.Errorf("read header: %w", err)}
	}
	names := normalizeHeader(header)
	ncol := len(names)

	maxRows := opt.MaxRows
	var rows [][]string
	total := 0
	for {
		rec, err := cr.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, &ParseError{Name: name, Row: total + 1, Err: err}
		}
		total++
		if len(rec) > ncol {
			return nil, &ParseError{Name: name, Row: total, Err: fmt.Errorf("expected %d fields, saw %d", ncol, len(rec))}
		}
		if maxRows > 0 && len(rows) >= maxRows {
			continue
		}
		row := make([]string, ncol)
		for j, v := range rec {
			v = strings.TrimSpace(v)
			if naValues[v] {
				v = ""
			}
			row[j] = v
		}
		rows = append(rows, row)
	}

	ds := &Dataset{
		ID:       uuid.NewString(),
		Name:     name,
		LoadedAt: time.Now().UTC(),
		rows:     rows,
		index:    make(map[string]int, ncol),
	}
	for i, n := range names {
		ds.Columns = append(ds.Columns, Column{Name: n, Kind: KindUnknown})
		ds.index[n] = i
	}
	if len(rows) < total {
		ds.Warnings = append(ds.Warnings, fmt.Sprintf("stored only %d/%d rows due to MaxRows", len(rows), total))
	}
	infer(ds, opt)
	ds.summary = summarize(ds, opt)
	return ds, nil
}

// normalizeHeader names blank headers "Unnamed: <i>" and suffixes duplicates
// with ".1", ".2", ...
func normalizeHeader(header []string) []string {
	out := make([]string, len(header))
	seen := make(map[string]int, len(header))
	for i, h := range header {
		h = strings.TrimSpace(h)
		if h == "" {
			h = "Unnamed: " + strconv.Itoa(i)
		}
		if _, dup := seen[h]; dup {
			base := h
			for {
				seen[base]++
				h = fmt.Sprintf("%s.%d", base, seen[base])
				if _, taken := seen[h]; !taken {
					break
				}
			}
		}
		seen[h] = 0
		out[i] = h
	}
	return out
}
