package render

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/KaramelBytes/vizloom/internal/executor"
)

const maxCellWidth = 40

// TableText renders a result table as aligned plain text for terminals.
// maxRows <= 0 prints every row; otherwise a trailing line counts the rest.
func TableText(t *executor.Table, maxRows int) string {
	if t == nil || len(t.Columns) == 0 {
		return ""
	}
	rows := t.Rows
	hidden := 0
	if maxRows > 0 && len(rows) > maxRows {
		hidden = len(rows) - maxRows
		rows = rows[:maxRows]
	}

	widths := make([]int, len(t.Columns))
	for i, c := range t.Columns {
		widths[i] = utf8.RuneCountInString(clip(c))
	}
	for _, r := range rows {
		for i := range widths {
			if i < len(r) {
				if w := utf8.RuneCountInString(clip(r[i])); w > widths[i] {
					widths[i] = w
				}
			}
		}
	}

	var b strings.Builder
	writeRow(&b, t.Columns, widths)
	seps := make([]string, len(widths))
	for i, w := range widths {
		seps[i] = strings.Repeat("-", w)
	}
	writeRow(&b, seps, widths)
	for _, r := range rows {
		writeRow(&b, r, widths)
	}
	if hidden > 0 {
		fmt.Fprintf(&b, "... %d more rows\n", hidden)
	}
	return b.String()
}

func writeRow(b *strings.Builder, cells []string, widths []int) {
	for i, w := range widths {
		if i > 0 {
			b.WriteString("  ")
		}
		cell := ""
		if i < len(cells) {
			cell = clip(cells[i])
		}
		b.WriteString(cell)
		if i < len(widths)-1 {
			b.WriteString(strings.Repeat(" ", w-utf8.RuneCountInString(cell)))
		}
	}
	b.WriteByte('\n')
}

func clip(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if utf8.RuneCountInString(s) <= maxCellWidth {
		return s
	}
	r := []rune(s)
	return string(r[:maxCellWidth-1]) + "…"
}
