// Command page_count prints the page count of a PDF as JSON.
//
// Usage:
//
//	go run cmd/page_count/main.go <file.pdf>
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"pdf-workbench/internal/pdf"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout))
}

func run(args []string, stdout io.Writer) int {
	if len(args) < 1 {
		fmt.Fprintln(stdout, "Usage: page_count <file.pdf>")
		return 1
	}

	data, err := os.ReadFile(args[0])
	if err != nil {
		fmt.Fprintf(stdout, "Error: failed to read file: %v\n", err)
		return 1
	}

	n, err := pdf.NewService(pdf.Options{}).PageCount(context.Background(), data)
	if err != nil {
		fmt.Fprintf(stdout, "Error: %v (%s)\n", err, pdf.CodeOf(err))
		return 1
	}

	out, _ := json.Marshal(map[string]int{"numPages": n})
	fmt.Fprintln(stdout, string(out))
	return 0
}
