package pdf

import (
	"bytes"
	"fmt"
	"io"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// Serialize writes a working context to a complete PDF buffer. With cleanup
// the context is optimized (duplicate and unreferenced objects dropped) and
// written with compressed object and xref streams.
func Serialize(ctx *model.Context, cleanup bool) (out []byte, err error) {
	if ctx == nil {
		return nil, errInternal("nothing to serialize", nil)
	}

	defer func() {
		if r := recover(); r != nil {
			out = nil
			err = errInternal("failed to write document", fmt.Errorf("writer panic: %v", r))
		}
	}()

	conf := *ctx.Configuration
	conf.WriteObjectStream = cleanup
	conf.WriteXRefStream = cleanup
	ctx.Configuration = &conf

	if cleanup {
		if err := api.OptimizeContext(ctx); err != nil {
			return nil, errInternal("failed to optimize document", err)
		}
	}

	var buf bytes.Buffer
	if err := api.WriteContext(ctx, &buf); err != nil {
		return nil, errInternal("failed to write document", err)
	}
	return buf.Bytes(), nil
}

// Reassemble rewrites an already serialized document. A non-nil edit is
// applied to the parsed document before it is written back. Without cleanup
// or edit data is returned unchanged.
func Reassemble(data []byte, cleanup bool, edit func(ctx *model.Context) error) ([]byte, error) {
	if edit != nil {
		ctx, err := api.ReadContext(bytes.NewReader(data), NewConfiguration())
		if err != nil {
			return nil, errInternal("failed to reread document", err)
		}
		if err := api.ValidateContext(ctx); err != nil {
			return nil, errInternal("failed to reread document", err)
		}
		if err := edit(ctx); err != nil {
			return nil, err
		}
		return Serialize(ctx, cleanup)
	}
	if !cleanup {
		return data, nil
	}
	conf := NewConfiguration()
	conf.WriteObjectStream = true
	conf.WriteXRefStream = true

	var buf bytes.Buffer
	if err := api.Optimize(bytes.NewReader(data), &buf, conf); err != nil {
		return nil, errInternal("failed to optimize document", err)
	}
	return buf.Bytes(), nil
}

// Merge concatenates the pages of parts, in order, into one document.
func Merge(parts [][]byte) ([]byte, error) {
	switch len(parts) {
	case 0:
		return nil, errInternal("nothing to merge", nil)
	case 1:
		return parts[0], nil
	}

	rsc := make([]io.ReadSeeker, len(parts))
	for i, p := range parts {
		rsc[i] = bytes.NewReader(p)
	}

	var buf bytes.Buffer
	if err := api.MergeRaw(rsc, &buf, false, NewConfiguration()); err != nil {
		return nil, errInternal("failed to merge documents", err)
	}
	return buf.Bytes(), nil
}

// countPages reads the page count of a serialized document.
func countPages(data []byte) (int, error) {
	return api.PageCount(bytes.NewReader(data), NewConfiguration())
}
