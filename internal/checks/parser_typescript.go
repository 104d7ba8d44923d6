package checks

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// TypeScriptParser extracts tsc diagnostics from build output. Bundlers print
// them to either stream, in tsc's plain or pretty format.
type TypeScriptParser struct{}

type tsFinding struct {
	File    string `json:"file"`
	Line    int    `json:"line"`
	Column  int    `json:"column"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type tsResult struct {
	Errors   int         `json:"errors"`
	Findings []tsFinding `json:"findings"`
}

var (
	// src/auth.ts(42,5): error TS2345: Argument of type...
	tscPlainRe = regexp.MustCompile(`^(.+)\((\d+),(\d+)\):\s+error\s+(TS\d+):\s+(.+)$`)
	// src/auth.ts:42:5 - error TS2345: Argument of type...
	tscPrettyRe = regexp.MustCompile(`^(.+):(\d+):(\d+)\s+-\s+error\s+(TS\d+):\s+(.+)$`)
	ansiRe      = regexp.MustCompile(`\x1b\[[0-9;]*m`)
)

func (p *TypeScriptParser) Parse(stdout string, stderr string, exitCode int) ParseResult {
	var result tsResult

	for _, line := range strings.Split(joinOutput(stdout, stderr), "\n") {
		line = strings.TrimSpace(ansiRe.ReplaceAllString(line, ""))
		m := tscPlainRe.FindStringSubmatch(line)
		if m == nil {
			m = tscPrettyRe.FindStringSubmatch(line)
		}
		if m == nil {
			continue
		}
		lineNum, _ := strconv.Atoi(m[2])
		col, _ := strconv.Atoi(m[3])
		result.Findings = append(result.Findings, tsFinding{
			File:    m[1],
			Line:    lineNum,
			Column:  col,
			Code:    m[4],
			Message: m[5],
		})
		result.Errors++
	}

	if exitCode == 0 {
		return ParseResult{Passed: true, Summary: "no errors", Findings: result}
	}

	summary := fmt.Sprintf("%d type errors", result.Errors)
	if result.Errors == 0 {
		summary = fmt.Sprintf("build failed (exit code %d)", exitCode)
	}
	return ParseResult{Passed: false, Summary: summary, Findings: result}
}
