package upload

import (
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/ledongthuc/pdf"
)

// Limits are the locally enforced bounds, mirrored from the last known
// quota state. Validation is purely local; the server re-checks on its
// side of the quota gate.
type Limits struct {
	MaxSizeMB int
	MaxPages  int
}

// DefaultLimits match the server's defaults for users without custom
// attributes.
var DefaultLimits = Limits{MaxSizeMB: 25, MaxPages: 10}

// ValidationError is a client-detectable, pre-network rejection. The
// user fixes the input and retries; nothing was sent anywhere.
type ValidationError struct {
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid file: %s: %v", e.Reason, e.Err)
	}
	return "invalid file: " + e.Reason
}

func (e *ValidationError) Unwrap() error { return e.Err }

// PageCounter counts the pages of a PDF. Injected so coordinator tests
// need not build real PDF structures.
type PageCounter func(r io.ReaderAt, size int64) (int, error)

// CountPages parses the PDF structure and returns the page count. A
// parser panic on malformed input is converted into an error.
func CountPages(r io.ReaderAt, size int64) (n int, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("pdf parser panic: %v", p)
		}
	}()
	reader, err := pdf.NewReader(r, size)
	if err != nil {
		return 0, err
	}
	return reader.NumPage(), nil
}

// validate runs the short-circuiting local checks: PDF
// extension/content-type, size bound, then page count.
func validate(req *Request, limits Limits, countPages PageCounter) error {
	if !strings.EqualFold(path.Ext(req.FileName), ".pdf") {
		return &ValidationError{Reason: "only PDF files are accepted"}
	}
	if req.ContentType != "" && req.ContentType != "application/pdf" {
		return &ValidationError{Reason: fmt.Sprintf("unexpected content type %q", req.ContentType)}
	}
	if limits.MaxSizeMB > 0 && req.Size > int64(limits.MaxSizeMB)*1024*1024 {
		return &ValidationError{Reason: fmt.Sprintf("file exceeds the %d MB size limit", limits.MaxSizeMB)}
	}
	pages, err := countPages(req.Content, req.Size)
	if err != nil {
		return &ValidationError{Reason: "could not parse PDF structure", Err: err}
	}
	if limits.MaxPages > 0 && pages > limits.MaxPages {
		return &ValidationError{Reason: fmt.Sprintf("document has %d pages, limit is %d", pages, limits.MaxPages)}
	}
	return nil
}
