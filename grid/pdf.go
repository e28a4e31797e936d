package grid

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// Page geometry of PDF exports (US Letter, points).
const (
	pdfWidth     = 612
	pdfHeight    = 792
	pdfMargin    = 50
	pdfLeading   = 13
	pdfLineChars = 95
)

type pdfLine struct {
	font string // F1 regular, F2 bold
	size int
	text string
	gap  int // extra space above
}

// encodePDF writes a single-page text summary of recs. Items that do not
// fit are counted in a trailing line.
func encodePDF(recs []*record, fm FieldMap, now time.Time) []byte {
	lines := []pdfLine{
		{font: "F2", size: 16, text: "CardCrafter Export"},
		{font: "F1", size: 9, text: "Generated: " + isoTimestamp(now), gap: 6},
		{font: "F1", size: 9, text: fmt.Sprintf("Total items: %d", len(recs))},
	}
	// Vertical space left once the header and a trailing line are placed.
	avail := pdfHeight - 2*pdfMargin - 2*(pdfLeading+8)
	for _, l := range lines[1:] {
		avail -= pdfLeading + l.gap
	}

	shown := 0
	for _, r := range recs {
		f := fm.resolve(r.item)
		title := f.Title
		if title == "" {
			title = "Untitled"
		}
		block := []pdfLine{{font: "F2", size: 11, text: title, gap: 8}}
		if f.Subtitle != "" {
			block = append(block, pdfLine{font: "F1", size: 9, text: f.Subtitle})
		}
		if f.Description != "" {
			block = append(block, pdfLine{font: "F1", size: 9, text: truncateRunes(f.Description, 100)})
		}
		if f.Link != "" {
			block = append(block, pdfLine{font: "F1", size: 9, text: "Link: " + f.Link})
		}
		height := 0
		for _, l := range block {
			height += pdfLeading + l.gap
		}
		if height > avail {
			break
		}
		avail -= height
		lines = append(lines, block...)
		shown++
	}
	if rest := len(recs) - shown; rest > 0 {
		lines = append(lines, pdfLine{font: "F1", size: 9, text: fmt.Sprintf("... and %d more items", rest), gap: 8})
	}

	var content bytes.Buffer
	content.WriteString("BT\n")
	fmt.Fprintf(&content, "%d %d Td\n", pdfMargin, pdfHeight-pdfMargin)
	for i, l := range lines {
		if i > 0 {
			fmt.Fprintf(&content, "0 -%d Td\n", pdfLeading+l.gap)
		}
		fmt.Fprintf(&content, "/%s %d Tf\n(%s) Tj\n", l.font, l.size, pdfEscape(truncateRunes(l.text, pdfLineChars)))
	}
	content.WriteString("ET\n")

	objects := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 %d %d] /Resources << /Font << /F1 4 0 R /F2 5 0 R >> >> /Contents 6 0 R >>", pdfWidth, pdfHeight),
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>",
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica-Bold /Encoding /WinAnsiEncoding >>",
		fmt.Sprintf("<< /Length %d >>\nstream\n%sendstream", content.Len(), content.String()),
	}

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(objects)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)
	return buf.Bytes()
}

// pdfEscape escapes a PDF literal string. Characters outside printable
// ASCII become '?'.
func pdfEscape(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r == '\\' || r == '(' || r == ')':
			b.WriteByte('\\')
			b.WriteRune(r)
		case r < 0x20 || r > 0x7e:
			b.WriteByte('?')
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// VerifyPDF parses and validates a PDF and returns its page count.
func VerifyPDF(data []byte) (int, error) {
	ctx, err := api.ReadValidateAndOptimize(bytes.NewReader(data), model.NewDefaultConfiguration())
	if err != nil {
		return 0, fmt.Errorf("grid: verify pdf: %w", err)
	}
	return ctx.PageCount, nil
}

// truncateRunes shortens s to at most n runes, ending in "..." when cut.
func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 3 {
		return string(r[:n])
	}
	return string(r[:n-3]) + "..."
}
