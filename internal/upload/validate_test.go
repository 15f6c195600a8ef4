package upload

import (
	"bytes"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// makePDF builds a minimal but well-formed PDF with the given page
// count, including a correct xref table.
func makePDF(t *testing.T, pages int) []byte {
	t.Helper()

	var buf bytes.Buffer
	var offsets []int
	addObj := func(body string) {
		offsets = append(offsets, buf.Len())
		buf.WriteString(body)
	}

	buf.WriteString("%PDF-1.4\n")

	kids := make([]string, pages)
	for i := 0; i < pages; i++ {
		kids[i] = fmt.Sprintf("%d 0 R", i+3)
	}
	addObj("1 0 obj\n<< /Type /Catalog /Pages 2 0 R >>\nendobj\n")
	addObj(fmt.Sprintf("2 0 obj\n<< /Type /Pages /Kids [%s] /Count %d >>\nendobj\n",
		strings.Join(kids, " "), pages))
	for i := 0; i < pages; i++ {
		addObj(fmt.Sprintf("%d 0 obj\n<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] >>\nendobj\n", i+3))
	}

	xrefPos := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(offsets)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n",
		len(offsets)+1, xrefPos)

	return buf.Bytes()
}

func pdfRequest(t *testing.T, name string, pages int) *Request {
	t.Helper()
	data := makePDF(t, pages)
	return &Request{
		FileName:    name,
		Content:     bytes.NewReader(data),
		Size:        int64(len(data)),
		ContentType: "application/pdf",
		Format:      "pdf",
	}
}

func TestCountPages(t *testing.T) {
	for _, pages := range []int{1, 3, 12} {
		data := makePDF(t, pages)
		n, err := CountPages(bytes.NewReader(data), int64(len(data)))
		require.NoError(t, err)
		assert.Equal(t, pages, n)
	}
}

func TestCountPagesGarbage(t *testing.T) {
	data := []byte("this is not a pdf at all, just bytes")
	_, err := CountPages(bytes.NewReader(data), int64(len(data)))
	assert.Error(t, err)
}

func TestValidateAcceptsPDF(t *testing.T) {
	req := pdfRequest(t, "report.pdf", 3)
	err := validate(req, Limits{MaxSizeMB: 25, MaxPages: 10}, CountPages)
	assert.NoError(t, err)
}

func TestValidateRejectsNonPDFExtension(t *testing.T) {
	req := pdfRequest(t, "report.docx", 1)
	err := validate(req, DefaultLimits, CountPages)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestValidateRejectsWrongContentType(t *testing.T) {
	req := pdfRequest(t, "report.pdf", 1)
	req.ContentType = "text/html"
	err := validate(req, DefaultLimits, CountPages)
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestValidateRejectsOversize(t *testing.T) {
	req := pdfRequest(t, "report.pdf", 1)
	req.Size = 26 * 1024 * 1024
	err := validate(req, Limits{MaxSizeMB: 25, MaxPages: 10}, CountPages)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Reason, "size limit")
}

func TestValidateRejectsTooManyPages(t *testing.T) {
	req := pdfRequest(t, "report.pdf", 11)
	err := validate(req, Limits{MaxSizeMB: 25, MaxPages: 10}, CountPages)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Reason, "pages")
}

func TestValidateParseFailureIsValidationError(t *testing.T) {
	data := []byte("%PDF-1.4 but truncated and broken")
	req := &Request{
		FileName:    "broken.pdf",
		Content:     bytes.NewReader(data),
		Size:        int64(len(data)),
		ContentType: "application/pdf",
	}
	err := validate(req, DefaultLimits, CountPages)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Reason, "parse")
}
