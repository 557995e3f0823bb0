// Command extract_text prints the text of selected PDF pages as JSON.
// Pages containing a configured sensitive pattern fail the whole request.
//
// Usage:
//
//	go run cmd/extract_text/main.go <file.pdf> <page> [page...]
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"pdf-workbench/internal/config"
	"pdf-workbench/internal/pdf"
)

type result struct {
	Success  bool     `json:"success"`
	Text     string   `json:"text,omitempty"`
	Error    string   `json:"error,omitempty"`
	Code     string   `json:"code,omitempty"`
	Patterns []string `json:"patterns,omitempty"`
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout))
}

// run executes the command and returns the process exit status.
func run(args []string, stdout io.Writer) int {
	if len(args) < 2 {
		fmt.Fprintln(stdout, "Usage: extract_text <file.pdf> <page> [page...]")
		fmt.Fprintln(stdout)
		fmt.Fprintln(stdout, "Pages are 1-based. Sensitive patterns are read from "+config.DefaultConfigFileName+
			" or "+config.EnvSensitivePatterns+".")
		return 1
	}

	pages := make([]int, 0, len(args)-1)
	for _, arg := range args[1:] {
		n, err := strconv.Atoi(arg)
		if err != nil {
			return emit(stdout, result{Error: fmt.Sprintf("invalid page number %q", arg), Code: string(pdf.ErrPageOutOfRange)})
		}
		pages = append(pages, n)
	}

	data, err := os.ReadFile(args[0])
	if err != nil {
		return emit(stdout, result{Error: "failed to read file: " + err.Error(), Code: string(pdf.ErrNoFileProvided)})
	}

	cfgMgr, err := config.NewConfigManager(config.DefaultConfigFileName)
	if err == nil {
		err = cfgMgr.Load()
	}
	if err != nil {
		return emit(stdout, result{Error: "failed to load configuration: " + err.Error()})
	}

	svc := pdf.NewService(pdf.OptionsFromConfig(cfgMgr.GetConfig()))
	text, err := svc.ExtractText(context.Background(), data, pages)
	if err != nil {
		r := result{Error: err.Error(), Code: string(pdf.CodeOf(err))}
		if pe, ok := pdf.AsPDFError(err); ok {
			r.Patterns = pe.Patterns
		}
		return emit(stdout, r)
	}
	return emit(stdout, result{Success: true, Text: text})
}

// emit prints r as one JSON line and returns 1 on failure.
func emit(w io.Writer, r result) int {
	out, _ := json.Marshal(r)
	fmt.Fprintln(w, string(out))
	if !r.Success {
		return 1
	}
	return 0
}
