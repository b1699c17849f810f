package dataset

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// CategoryCount is one frequent value of a categorical column.
type CategoryCount struct {
	Value string
	Count int
}

// ColumnSummary holds per-column statistics.
type ColumnSummary struct {
	Name    string
	Kind    Kind
	NonNull int
	Missing int
	Unique  int
	// numeric
	Min, Max, Mean, Std float64
	// categorical
	TopValues []CategoryCount
	// text
	ExampleTexts []string
}

// Report is the schema description of a Dataset used for previews and prompts.
type Report struct {
	Name     string
	Rows     int
	Cols     []ColumnSummary
	Header   []string
	Samples  [][]string
	Warnings []string
}

func summarize(d *Dataset, opt Options) *Report {
	rep := &Report{Name: d.Name, Rows: len(d.rows), Header: d.ColumnNames(), Warnings: d.Warnings}
	sample := opt.SampleRows
	if sample <= 0 {
		sample = 5
	}
	rep.Samples = d.Head(sample)

	for j, c := range d.Columns {
		s := ColumnSummary{Name: c.Name, Kind: c.Kind}
		distinct := map[string]int{}
		for _, row := range d.rows {
			v := row[j]
			if v == "" {
				s.Missing++
				continue
			}
			s.NonNull++
			if len(distinct) <= 10000 {
				distinct[v]++
			}
		}
		s.Unique = len(distinct)

		switch c.Kind {
		case KindNumeric:
			// Welford's running mean/variance
			var n int
			var mean, m2 float64
			s.Min, s.Max = math.Inf(1), math.Inf(-1)
			for i := range d.rows {
				if !d.numOK[j][i] {
					continue
				}
				x := d.nums[j][i]
				n++
				delta := x - mean
				mean += delta / float64(n)
				m2 += delta * (x - mean)
				s.Min = math.Min(s.Min, x)
				s.Max = math.Max(s.Max, x)
			}
			if n == 0 {
				s.Min, s.Max = 0, 0
			}
			s.Mean = mean
			if n > 1 {
				s.Std = math.Sqrt(m2 / float64(n-1))
			}
		case KindCategorical:
			tops := make([]CategoryCount, 0, len(distinct))
			for k, v := range distinct {
				tops = append(tops, CategoryCount{Value: k, Count: v})
			}
			sort.Slice(tops, func(a, b int) bool {
				if tops[a].Count == tops[b].Count {
					return tops[a].Value < tops[b].Value
				}
				return tops[a].Count > tops[b].Count
			})
			if len(tops) > 8 {
				tops = tops[:8]
			}
			s.TopValues = tops
		case KindText:
			for _, row := range d.rows {
				if row[j] != "" {
					s.ExampleTexts = append(s.ExampleTexts, row[j])
					if len(s.ExampleTexts) == 3 {
						break
					}
				}
			}
		}
		rep.Cols = append(rep.Cols, s)
	}
	return rep
}

// Markdown renders a compact description suitable for prompts or the preview pane.
func (r *Report) Markdown() string {
	var b strings.Builder
	b.WriteString("[DATASET SUMMARY]\n")
	if r.Name != "" {
		b.WriteString(fmt.Sprintf("File: %s\n", r.Name))
	}
	b.WriteString(fmt.Sprintf("Rows: %d\n", r.Rows))
	b.WriteString(fmt.Sprintf("Columns: %d\n\n", len(r.Cols)))

	b.WriteString("[SCHEMA]\n")
	for _, c := range r.Cols {
		total := c.NonNull + c.Missing
		missPct := 0.0
		if total > 0 {
			missPct = float64(c.Missing) * 100.0 / float64(total)
		}
		b.WriteString(fmt.Sprintf("- %s: %s (non-null %d, missing %.1f%%)", safeName(c.Name), c.Kind, c.NonNull, missPct))
		switch c.Kind {
		case KindNumeric:
			b.WriteString(fmt.Sprintf("; min %.4g, max %.4g, mean %.4g, std %.4g", c.Min, c.Max, c.Mean, c.Std))
		case KindCategorical:
			if len(c.TopValues) > 0 {
				b.WriteString("; top: ")
				for i, kv := range c.TopValues {
					if i > 0 {
						b.WriteString(", ")
					}
					b.WriteString(fmt.Sprintf("%s(%d)", safeVal(kv.Value), kv.Count))
				}
				if c.Unique > len(c.TopValues) {
					b.WriteString(fmt.Sprintf("; unique=%d", c.Unique))
				}
			}
		case KindText:
			if len(c.ExampleTexts) > 0 {
				b.WriteString("; e.g., ")
				for i, ex := range c.ExampleTexts {
					if i > 0 {
						b.WriteString(" | ")
					}
					b.WriteString(safeVal(ex))
				}
			}
		}
		b.WriteString("\n")
	}

	if len(r.Samples) > 0 {
		b.WriteString("\n[HEAD AND SAMPLE ROWS]\n")
		b.WriteString(strings.Join(r.Header, " | "))
		b.WriteString("\n")
		for _, row := range r.Samples {
			cells := make([]string, len(row))
			for i, v := range row {
				cells[i] = safeVal(v)
			}
			b.WriteString(strings.Join(cells, " | "))
			b.WriteString("\n")
		}
	}
	if len(r.Warnings) > 0 {
		b.WriteString("\n[NOTES]\n")
		for _, w := range r.Warnings {
			b.WriteString("- ")
			b.WriteString(w)
			b.WriteString("\n")
		}
	}
	return b.String()
}

func safeName(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "(unnamed)"
	}
	return s
}

func safeVal(s string) string { return strings.ReplaceAll(strings.ReplaceAll(s, "\n", " "), "|", "/") }
