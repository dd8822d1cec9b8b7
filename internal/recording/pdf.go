package recording

import (
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf/v2"
)

// writeTranscriptPDF renders a call summary as a one-page-or-more A4 PDF
// next to the recording artifact.
func writeTranscriptPDF(title, content, filePath string) error {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.AddPage()

	pdf.SetFont("Times", "B", 16)
	pdf.CellFormat(40, 10, title, "", 0, "", false, 0, "")
	pdf.Ln(12)

	pdf.SetFont("Times", "", 12)
	pdf.MultiCell(0, 8, content, "", "", false)

	pdf.SetFont("Arial", "I", 8)
	pdf.SetY(-15)
	pdf.SetX(0)
	pdf.CellFormat(0, 10, fmt.Sprintf("Generated on %s", time.Now().Format("2006-01-02 15:04:05")), "", 0, "C", false, 0, "")

	if err := pdf.OutputFileAndClose(filePath); err != nil {
		return fmt.Errorf("failed to save transcript PDF: %w", err)
	}
	return nil
}
