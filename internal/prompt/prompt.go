// Package prompt assembles the single text prompt sent to the model for one query.
package prompt

import (
	"errors"
	"fmt"
	"strings"

	"github.com/KaramelBytes/vizloom/internal/dataset"
	"github.com/KaramelBytes/vizloom/internal/executor"
	"github.com/KaramelBytes/vizloom/internal/utils"
)

var (
	ErrEmptyQuery = errors.New("query is empty")
	ErrNoDataset  = errors.New("no dataset loaded")
	// ErrTokenLimit means the column names alone do not fit the token limit.
	ErrTokenLimit = errors.New("column names exceed the prompt token limit")
)

// Options tunes prompt assembly.
type Options struct {
	// SampleRows is the number of data rows shown to the model; 0 means none.
	SampleRows int
	// TokenLimit caps the estimated prompt size; 0 disables the cap. The
	// dataset context is cut first and the question is always kept whole.
	TokenLimit int
}

// Prompt is the assembled text plus its estimated size.
type Prompt struct {
	Text      string
	Tokens    int
	Truncated bool
	// Sections holds the parts of Text by label for token breakdowns.
	Sections map[string]string
}

// Breakdown estimates tokens per section.
func (p *Prompt) Breakdown() map[string]int {
	return utils.TokenBreakdown(p.Sections)
}

// Build renders the prompt for query against ds. The output is deterministic
// for the same inputs.
func Build(query string, ds *dataset.Dataset, opt Options) (*Prompt, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}
	if ds == nil {
		return nil, ErrNoDataset
	}

	instructions := instructionsFor(ds)
	schema := columnManifest(ds)
	samples := sampleRows(ds, opt.SampleRows)
	question := "User query: " + query + "\n"

	p := &Prompt{}
	assemble := func() {
		p.Text = join(instructions, schema, samples, question)
		p.Tokens = utils.CountTokens(p.Text)
	}
	assemble()

	// Over the limit: drop the samples, then the column kinds. Column names
	// and the question are never cut.
	if opt.TokenLimit > 0 && p.Tokens > opt.TokenLimit {
		p.Truncated = true
		samples = ""
		assemble()
		if p.Tokens > opt.TokenLimit {
			schema = columnNames(ds)
			assemble()
		}
		if p.Tokens > opt.TokenLimit {
			return nil, fmt.Errorf("%w: %d columns need ~%d tokens, limit is %d",
				ErrTokenLimit, ds.NumCols(), p.Tokens, opt.TokenLimit)
		}
	}
	p.Sections = map[string]string{
		"instructions": instructions,
		"schema":       schema,
		"samples":      samples,
		"question":     question,
	}
	return p, nil
}

func instructionsFor(ds *dataset.Dataset) string {
	var b strings.Builder
	b.WriteString("You are a helpful Lua data analyst and visualization expert.\n")
	b.WriteString(fmt.Sprintf("You are given a dataset named '%s' with %d rows, uploaded through the vizloom dashboard.\n", ds.Name, ds.NumRows()))
	b.WriteString(fmt.Sprintf("Write clean, runnable Lua 5.1 code that uses the table '%s' already loaded in memory.\n", executor.DataVar))
	b.WriteString(executor.APIReference)
	b.WriteString("\nWrap only the Lua code in triple backticks like:\n```lua\n-- code here\n```\n")
	b.WriteString(fmt.Sprintf("Do not read files from disk; use '%s' directly.\n", executor.DataVar))
	b.WriteString("Do not include long explanations; return runnable code in the code block.\n")
	return b.String()
}

func join(instructions, schema, samples, question string) string {
	var b strings.Builder
	b.WriteString(instructions)
	b.WriteString("\n")
	b.WriteString(schema)
	if samples != "" {
		b.WriteString("\n")
		b.WriteString(samples)
	}
	b.WriteString("\n")
	b.WriteString(question)
	return b.String()
}

// columnNames is the compact manifest used when kinds do not fit.
func columnNames(ds *dataset.Dataset) string {
	return fmt.Sprintf("Columns (%d): %s\n", ds.NumCols(), strings.Join(ds.ColumnNames(), ", "))
}

func columnManifest(ds *dataset.Dataset) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("Columns (%d):\n", ds.NumCols()))
	for _, c := range ds.Columns {
		b.WriteString(fmt.Sprintf("- %s (%s)\n", c.Name, c.Kind))
	}
	return b.String()
}

func sampleRows(ds *dataset.Dataset, n int) string {
	if n <= 0 || ds.NumRows() == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Sample rows:\n")
	b.WriteString(strings.Join(ds.ColumnNames(), " | "))
	b.WriteString("\n")
	for _, row := range ds.Head(n) {
		b.WriteString(strings.Join(row, " | "))
		b.WriteString("\n")
	}
	return b.String()
}
