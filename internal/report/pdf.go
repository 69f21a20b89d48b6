package report

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"

	"example.com/nitfgate/internal/common"
	"example.com/nitfgate/internal/nitf"
)

const maxElementRows = 200

// SaveLayoutPDF renders the given layout report into a PDF document.
func SaveLayoutPDF(rep LayoutReport, out string) error {
	pdf, err := renderLayoutPDF(rep)
	if err != nil {
		return err
	}
	return pdf.OutputFileAndClose(out)
}

// WriteLayoutPDF renders the report into memory.
func WriteLayoutPDF(rep LayoutReport) ([]byte, error) {
	pdf, err := renderLayoutPDF(rep)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func renderLayoutPDF(rep LayoutReport) (*gofpdf.Fpdf, error) {
	if rep.Layout == nil {
		return nil, fmt.Errorf("report has no layout")
	}
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("Container Layout Report", false)
	pdf.SetAuthor("nitfctl", false)
	pdf.SetCreator("nitfctl", false)
	pdf.SetMargins(15, 20, 15)
	pdf.SetAutoPageBreak(true, 20)
	pdf.AddPage()

	addPDFTitle(pdf, "Container Layout Report")
	addFingerprint(pdf, rep.SHA256)
	addSummarySection(pdf, rep)
	addKindsSection(pdf, rep.Layout)
	addElementsSection(pdf, rep.Layout)
	addProblemsSection(pdf, rep.Problems)

	if pdf.Err() {
		return nil, pdf.Error()
	}
	return pdf, nil
}

func addPDFTitle(pdf *gofpdf.Fpdf, title string) {
	pdf.SetFont("Helvetica", "B", 18)
	pdf.Cell(0, 10, title)
	pdf.Ln(12)
}

// addFingerprint places a QR code of the SHA-256 in the top right corner.
func addFingerprint(pdf *gofpdf.Fpdf, sha string) {
	png, err := HashToQR(sha, 256)
	if err != nil {
		common.Logf("report: skip QR: %v", err)
		return
	}
	opts := gofpdf.ImageOptions{ImageType: "PNG"}
	pdf.RegisterImageOptionsReader("sha256-qr", opts, bytes.NewReader(png))
	pageW, _ := pdf.GetPageSize()
	_, _, right, _ := pdf.GetMargins()
	const size = 28.0
	pdf.ImageOptions("sha256-qr", pageW-right-size, 12, size, size, false, opts, 0, "")
}

func addSummarySection(pdf *gofpdf.Fpdf, rep LayoutReport) {
	l := rep.Layout
	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 8, "Summary")
	pdf.Ln(8)

	pdf.SetFont("Helvetica", "", 11)
	items := []struct {
		label string
		value string
	}{
		{label: "File", value: emptyFallback(filepath.Base(rep.Path), "-")},
		{label: "Version", value: emptyFallback(l.Version, "-")},
		{label: "Size", value: fmt.Sprintf("%d bytes (%s)", rep.Size, common.FormatBytes(rep.Size))},
		{label: "FL", value: strconv.FormatInt(l.FileLength, 10)},
		{label: "HL", value: strconv.FormatInt(l.HeaderLength, 10)},
		{label: "Header end", value: strconv.FormatInt(l.HeaderEnd, 10)},
		{label: "Consistency", value: passLabel(len(rep.Problems) == 0)},
		{label: "Generated", value: generatedLabel(rep.Generated)},
	}
	for _, item := range items {
		pdf.CellFormat(35, 6, item.label, "", 0, "L", false, 0, "")
		pdf.CellFormat(0, 6, item.value, "", 1, "L", false, 0, "")
	}
	pdf.SetFont("Helvetica", "", 8)
	pdf.MultiCell(0, 4, "SHA-256 "+emptyFallback(rep.SHA256, "-"), "", "L", false)
	pdf.Ln(4)
}

func addKindsSection(pdf *gofpdf.Fpdf, l *nitf.Layout) {
	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 8, "Segment Kinds")
	pdf.Ln(9)

	headers := []string{"Kind", "Count", "Descriptors", "Data Start", "Data End", "Data Bytes"}
	widths := []float64{24, 18, 40, 32, 32, 34}
	renderTableHeader(pdf, widths, headers)

	pdf.SetFont("Helvetica", "", 9)
	for _, k := range l.Kinds {
		values := []string{
			k.Name,
			strconv.Itoa(k.Count),
			fmt.Sprintf("%d-%d", k.Descriptors.Start, k.Descriptors.End),
			strconv.FormatInt(k.Data.Start, 10),
			strconv.FormatInt(k.Data.End, 10),
			strconv.FormatInt(k.Data.Len(), 10),
		}
		renderTableRow(pdf, widths, values, 5)
	}
	pdf.Ln(4)
}

func addElementsSection(pdf *gofpdf.Fpdf, l *nitf.Layout) {
	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 8, "Elements")
	pdf.Ln(9)

	headers := []string{"Kind", "Index", "Subheader @", "Subheader Len", "Data @", "Data Len"}
	widths := []float64{24, 16, 34, 34, 36, 36}
	renderTableHeader(pdf, widths, headers)

	pdf.SetFont("Helvetica", "", 9)
	rows := 0
	total := 0
	for _, k := range l.Kinds {
		total += len(k.Elements)
		for _, el := range k.Elements {
			if rows >= maxElementRows {
				continue
			}
			values := []string{
				k.Name,
				strconv.Itoa(el.Index),
				strconv.FormatInt(el.SubheaderOffset, 10),
				strconv.FormatInt(el.SubheaderLength, 10),
				strconv.FormatInt(el.DataOffset, 10),
				strconv.FormatInt(el.DataLength, 10),
			}
			renderTableRow(pdf, widths, values, 5)
			rows++
		}
	}
	if total == 0 {
		pdf.SetFont("Helvetica", "", 11)
		pdf.MultiCell(0, 6, "Container holds no segments.", "", "L", false)
	} else if total > rows {
		pdf.SetFont("Helvetica", "", 9)
		pdf.MultiCell(0, 5, fmt.Sprintf("%d further elements omitted.", total-rows), "", "L", false)
	}
	pdf.Ln(4)
}

func addProblemsSection(pdf *gofpdf.Fpdf, problems []nitf.Problem) {
	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 8, "Consistency Checks")
	pdf.Ln(9)

	if len(problems) == 0 {
		pdf.SetFont("Helvetica", "", 11)
		pdf.MultiCell(0, 6, "No problems found.", "", "L", false)
		return
	}
	for i, p := range problems {
		pdf.SetFont("Helvetica", "B", 10)
		pdf.MultiCell(0, 5, fmt.Sprintf("%d. %s", i+1, p.Code), "", "L", false)
		if msg := strings.TrimSpace(p.Message); msg != "" {
			pdf.SetFont("Helvetica", "", 10)
			pdf.MultiCell(0, 5, msg, "", "L", false)
		}
		pdf.Ln(2)
	}
}

func renderTableHeader(pdf *gofpdf.Fpdf, widths []float64, headers []string) {
	pdf.SetFillColor(240, 240, 240)
	pdf.SetFont("Helvetica", "B", 10)
	for i, h := range headers {
		pdf.CellFormat(widths[i], 7, h, "1", 0, "L", true, 0, "")
	}
	pdf.Ln(-1)
}

func renderTableRow(pdf *gofpdf.Fpdf, widths []float64, values []string, lineHeight float64) {
	xStart := pdf.GetX()
	yStart := pdf.GetY()
	maxLines := 1
	splitCols := make([][]string, len(values))
	for i, val := range values {
		text := strings.TrimSpace(val)
		if text == "" {
			text = "-"
		}
		lines := pdf.SplitText(text, widths[i]-2)
		if len(lines) == 0 {
			lines = []string{""}
		}
		splitCols[i] = lines
		if len(lines) > maxLines {
			maxLines = len(lines)
		}
	}
	rowHeight := float64(maxLines) * lineHeight
	x := xStart
	for i, lines := range splitCols {
		pdf.SetXY(x, yStart)
		cellText := strings.Join(lines, "\n")
		pdf.MultiCell(widths[i], lineHeight, cellText, "1", "L", false)
		x += widths[i]
	}
	pdf.SetXY(xStart, yStart+rowHeight)
}

func passLabel(pass bool) string {
	if pass {
		return "PASS"
	}
	return "FAIL"
}

func generatedLabel(ts time.Time) string {
	if ts.IsZero() {
		return "-"
	}
	return ts.UTC().Format(time.RFC3339)
}

func emptyFallback(val, fallback string) string {
	if strings.TrimSpace(val) == "" {
		return fallback
	}
	return val
}
