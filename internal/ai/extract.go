package ai

import (
	"regexp"
	"strings"
)

// CodeBlock is one fenced block from a model response.
type CodeBlock struct {
	Lang string
	Code string
}

var fencePattern = regexp.MustCompile("(?s)```([A-Za-z0-9_+.-]*)[ \\t]*\\r?\\n(.*?)```")

// ExtractAll returns every fenced block in order of appearance.
func ExtractAll(text string) []CodeBlock {
	var out []CodeBlock
	for _, m := range fencePattern.FindAllStringSubmatch(text, -1) {
		code := strings.TrimRight(m[2], " \t\r\n")
		if strings.TrimSpace(code) == "" {
			continue
		}
		out = append(out, CodeBlock{Lang: strings.ToLower(m[1]), Code: code})
	}
	return out
}

// ExtractCode picks the block to execute: the first one tagged lua, else the
// first fenced block of any tag. ErrNoCodeBlock when there is none.
func ExtractCode(text string) (CodeBlock, error) {
	blocks := ExtractAll(text)
	if len(blocks) == 0 {
		return CodeBlock{}, ErrNoCodeBlock
	}
	for _, b := range blocks {
		if b.Lang == "lua" {
			return b, nil
		}
	}
	return blocks[0], nil
}
