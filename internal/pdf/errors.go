package pdf

import (
	"errors"
	"fmt"
	"strings"
)

// PDFErrorCode 错误代码枚举
type PDFErrorCode string

const (
	ErrNoFileProvided      PDFErrorCode = "NO_FILE_PROVIDED"
	ErrInvalidFormat       PDFErrorCode = "INVALID_FORMAT"
	ErrCorrupted           PDFErrorCode = "CORRUPTED"
	ErrEmpty               PDFErrorCode = "EMPTY"
	ErrFileTooLarge        PDFErrorCode = "FILE_TOO_LARGE"
	ErrPageOutOfRange      PDFErrorCode = "PAGE_OUT_OF_RANGE"
	ErrInvalidZoom         PDFErrorCode = "INVALID_ZOOM"
	ErrNoAnnotationData    PDFErrorCode = "NO_ANNOTATION_DATA"
	ErrMalformedAnnotation PDFErrorCode = "MALFORMED_ANNOTATION_PAYLOAD"
	ErrRenderTooLarge      PDFErrorCode = "RENDER_TOO_LARGE"
	ErrSensitiveContent    PDFErrorCode = "SENSITIVE_CONTENT_DETECTED"
	ErrInternal            PDFErrorCode = "INTERNAL_ERROR"
)

// PDFError PDF 处理错误
//
// Message and Details are safe to show to a caller. Cause holds the library
// level diagnostic and is only ever logged.
type PDFError struct {
	Code     PDFErrorCode `json:"code"`
	Message  string       `json:"message"`
	Details  string       `json:"details,omitempty"`
	Page     int          `json:"page,omitempty"`
	Patterns []string     `json:"patterns,omitempty"`
	Cause    error        `json:"-"`
}

// Error implements the error interface for PDFError
func (e *PDFError) Error() string {
	if e.Details != "" {
		return e.Message + ": " + e.Details
	}
	return e.Message
}

// Unwrap returns the underlying cause of the error
func (e *PDFError) Unwrap() error {
	return e.Cause
}

// ErrorCode returns the code as a plain string.
func (e *PDFError) ErrorCode() string {
	return string(e.Code)
}

// NewPDFError creates a new PDFError with the given code, message, and optional cause
func NewPDFError(code PDFErrorCode, message string, cause error) *PDFError {
	return &PDFError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// NewPDFErrorWithDetails creates a new PDFError with details
func NewPDFErrorWithDetails(code PDFErrorCode, message, details string, cause error) *PDFError {
	return &PDFError{
		Code:    code,
		Message: message,
		Details: details,
		Cause:   cause,
	}
}

// NewPDFErrorWithPage creates a new PDFError with page information
func NewPDFErrorWithPage(code PDFErrorCode, message string, page int, cause error) *PDFError {
	return &PDFError{
		Code:    code,
		Message: message,
		Page:    page,
		Cause:   cause,
	}
}

// AsPDFError returns the first *PDFError in err's chain.
func AsPDFError(err error) (*PDFError, bool) {
	var pe *PDFError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

// CodeOf returns the error code of err, ErrInternal for foreign errors and
// "" for nil.
func CodeOf(err error) PDFErrorCode {
	if err == nil {
		return ""
	}
	if pe, ok := AsPDFError(err); ok {
		return pe.Code
	}
	return ErrInternal
}

func errPageOutOfRange(number, count int) *PDFError {
	e := NewPDFErrorWithDetails(ErrPageOutOfRange, "page number out of range",
		fmt.Sprintf("page %d requested, document has %d page(s)", number, count), nil)
	e.Page = number
	return e
}

func errSensitive(patterns []string) *PDFError {
	e := NewPDFErrorWithDetails(ErrSensitiveContent, "sensitive content detected",
		"matched "+strings.Join(patterns, ", "), nil)
	e.Patterns = patterns
	return e
}

func errInternal(message string, cause error) *PDFError {
	return NewPDFError(ErrInternal, message, cause)
}
