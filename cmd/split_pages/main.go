// Command split_pages writes every page of a PDF, or the listed pages, to its
// own file named <base>_page_<n>.pdf.
//
// Usage:
//
//	go run cmd/split_pages/main.go <file.pdf> [output_dir] [page...]
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"pdf-workbench/internal/pdf"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout))
}

func run(args []string, stdout io.Writer) int {
	if len(args) < 1 {
		fmt.Fprintln(stdout, "Usage: split_pages <file.pdf> [output_dir] [page...]")
		fmt.Fprintln(stdout)
		fmt.Fprintln(stdout, "Without pages every page is written. Pages are copied, not re-rendered.")
		return 1
	}

	inputPath := args[0]
	outputDir := filepath.Dir(inputPath)
	if len(args) > 1 {
		outputDir = args[1]
	}

	var numbers []int
	for _, arg := range args[min(2, len(args)):] {
		n, err := strconv.Atoi(arg)
		if err != nil {
			fmt.Fprintf(stdout, "Error: invalid page number %q\n", arg)
			return 1
		}
		numbers = append(numbers, n)
	}

	data, err := os.ReadFile(inputPath)
	if err != nil {
		fmt.Fprintf(stdout, "Error: failed to read file: %v\n", err)
		return 1
	}

	svc := pdf.NewService(pdf.Options{})
	var pages []pdf.ExtractedPage
	if len(numbers) == 0 {
		res, err := svc.SplitPages(context.Background(), data)
		if err != nil {
			fmt.Fprintf(stdout, "Error: %v (%s)\n", err, pdf.CodeOf(err))
			return 1
		}
		pages = res.Pages
	} else {
		pages, err = svc.ExtractPages(context.Background(), data, numbers)
		if err != nil {
			fmt.Fprintf(stdout, "Error: %v (%s)\n", err, pdf.CodeOf(err))
			return 1
		}
	}

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		fmt.Fprintf(stdout, "Error: failed to create output directory: %v\n", err)
		return 1
	}

	base := strings.TrimSuffix(filepath.Base(inputPath), filepath.Ext(inputPath))
	for _, p := range pages {
		path := filepath.Join(outputDir, fmt.Sprintf("%s_page_%d.pdf", base, p.PageNumber))
		if err := os.WriteFile(path, p.Data, 0644); err != nil {
			fmt.Fprintf(stdout, "Error: failed to write %s: %v\n", path, err)
			return 1
		}
		fmt.Fprintf(stdout, "  page %d -> %s (%d bytes)\n", p.PageNumber, path, len(p.Data))
	}
	fmt.Fprintf(stdout, "Wrote %d page(s)\n", len(pages))
	return 0
}
