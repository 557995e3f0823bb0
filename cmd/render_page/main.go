// Command render_page renders one PDF page to a PNG file.
//
// Usage:
//
//	go run cmd/render_page/main.go <file.pdf> <page> [zoom] [output.png]
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"pdf-workbench/internal/pdf"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout))
}

func run(args []string, stdout io.Writer) int {
	if len(args) < 2 {
		fmt.Fprintln(stdout, "Usage: render_page <file.pdf> <page> [zoom] [output.png]")
		fmt.Fprintln(stdout)
		fmt.Fprintln(stdout, "zoom 1.0 renders at 72 dpi (default).")
		return 1
	}

	inputPath := args[0]
	page, err := strconv.Atoi(args[1])
	if err != nil {
		fmt.Fprintf(stdout, "Error: invalid page number %q\n", args[1])
		return 1
	}
	zoom := pdf.PreviewZoom
	if len(args) > 2 {
		if zoom, err = strconv.ParseFloat(args[2], 64); err != nil {
			fmt.Fprintf(stdout, "Error: invalid zoom %q\n", args[2])
			return 1
		}
	}
	outputPath := fmt.Sprintf("%s_page_%d.png", strings.TrimSuffix(inputPath, ".pdf"), page)
	if len(args) > 3 {
		outputPath = args[3]
	}

	data, err := os.ReadFile(inputPath)
	if err != nil {
		fmt.Fprintf(stdout, "Error: failed to read file: %v\n", err)
		return 1
	}

	out, err := pdf.NewService(pdf.Options{}).RenderPage(context.Background(), data, page, zoom)
	if err != nil {
		fmt.Fprintf(stdout, "Error: %v (%s)\n", err, pdf.CodeOf(err))
		return 1
	}
	if err := os.WriteFile(outputPath, out, 0644); err != nil {
		fmt.Fprintf(stdout, "Error: failed to write %s: %v\n", outputPath, err)
		return 1
	}
	fmt.Fprintf(stdout, "Rendered page %d at zoom %g -> %s\n", page, zoom, outputPath)
	return 0
}
