package export

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/jung-kurt/gofpdf"
)

// PaperQuestion is one printed question line on a test paper.
type PaperQuestion struct {
	Position int
	Text     string
	Marks    float64
}

// PaperLayout describes the printable form of a generated test paper.
type PaperLayout struct {
	Title           string
	SubjectLabel    string
	ClassLabel      string
	DurationMinutes int
	TotalMarks      float64
	Instructions    []string
	Questions       []PaperQuestion
}

// PaperPDFExporter renders generated papers into printable PDFs.
type PaperPDFExporter struct{}

// NewPaperPDFExporter constructs a paper PDF exporter.
func NewPaperPDFExporter() *PaperPDFExporter {
	return &PaperPDFExporter{}
}

// Render creates a question paper PDF with a header block, instructions and
// the numbered question list.
func (e *PaperPDFExporter) Render(layout PaperLayout) ([]byte, error) {
	if len(layout.Questions) == 0 {
		return nil, fmt.Errorf("paper requires at least one question")
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(12, 15, 12)
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 15)
	pdf.CellFormat(0, 9, strings.ToUpper(layout.Title), "", 1, "C", false, 0, "")

	pdf.SetFont("Arial", "", 10)
	if layout.SubjectLabel != "" || layout.ClassLabel != "" {
		pdf.CellFormat(0, 6, strings.TrimSpace(layout.SubjectLabel+"  "+layout.ClassLabel), "", 1, "C", false, 0, "")
	}

	meta := make([]string, 0, 2)
	if layout.DurationMinutes > 0 {
		meta = append(meta, fmt.Sprintf("Duration: %d min", layout.DurationMinutes))
	}
	if layout.TotalMarks > 0 {
		meta = append(meta, fmt.Sprintf("Total Marks: %.4g", layout.TotalMarks))
	}
	if len(meta) > 0 {
		pdf.CellFormat(0, 6, strings.Join(meta, "    "), "", 1, "C", false, 0, "")
	}
	pdf.Ln(3)

	if len(layout.Instructions) > 0 {
		pdf.SetFont("Arial", "I", 9)
		for _, line := range layout.Instructions {
			pdf.MultiCell(0, 5, "- "+line, "", "L", false)
		}
		pdf.Ln(2)
	}

	pdf.SetDrawColor(120, 120, 120)
	left, _, right, _ := pdf.GetMargins()
	pageWidth, _ := pdf.GetPageSize()
	x, y := pdf.GetXY()
	pdf.Line(left, y, pageWidth-right, y)
	pdf.SetXY(x, y+4)

	for _, q := range layout.Questions {
		pdf.SetFont("Arial", "B", 10)
		pdf.CellFormat(10, 6, fmt.Sprintf("%d.", q.Position), "", 0, "L", false, 0, "")

		pdf.SetFont("Arial", "", 10)
		marks := ""
		if q.Marks > 0 {
			marks = fmt.Sprintf("  [%.4g]", q.Marks)
		}
		pdf.MultiCell(0, 6, q.Text+marks, "", "L", false)
		pdf.Ln(2)
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render paper pdf: %w", err)
	}
	return buf.Bytes(), nil
}
