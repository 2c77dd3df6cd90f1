package leave

import (
	"fmt"
	"io"

	"github.com/jung-kurt/gofpdf"
)

// RenderHistoryPDF writes a one-page audit sheet for a leave request.
func RenderHistoryPDF(w io.Writer, req LeaveRequest, history []StatusHistoryEntry) error {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.AddPage()
	pdf.SetFont("Helvetica", "B", 16)
	pdf.Cell(40, 10, fmt.Sprintf("Leave request %d", req.ID))
	pdf.Ln(12)

	pdf.SetFont("Helvetica", "", 12)
	pdf.Cell(0, 8, fmt.Sprintf("Employee: %s", req.EmployeeID))
	pdf.Ln(7)
	pdf.Cell(0, 8, fmt.Sprintf("Type: %s", req.LeaveType))
	pdf.Ln(7)
	pdf.Cell(0, 8, fmt.Sprintf("Period: %s to %s (%d days)", req.StartDate.Format("2006-01-02"), req.EndDate.Format("2006-01-02"), InclusiveDays(req.StartDate, req.EndDate)))
	pdf.Ln(7)
	pdf.Cell(0, 8, fmt.Sprintf("Status: %s", req.Status))
	pdf.Ln(12)

	pdf.SetFont("Helvetica", "B", 11)
	for _, h := range []struct {
		title string
		width float64
	}{{"Changed at", 45}, {"From", 25}, {"To", 25}, {"By", 35}, {"Remarks", 60}} {
		pdf.CellFormat(h.width, 8, h.title, "1", 0, "", false, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Helvetica", "", 10)
	for _, entry := range history {
		from := "-"
		if entry.PreviousStatus != nil {
			from = string(*entry.PreviousStatus)
		}
		pdf.CellFormat(45, 7, entry.ChangedAt.UTC().Format("2006-01-02 15:04:05"), "1", 0, "", false, 0, "")
		pdf.CellFormat(25, 7, from, "1", 0, "", false, 0, "")
		pdf.CellFormat(25, 7, string(entry.NewStatus), "1", 0, "", false, 0, "")
		pdf.CellFormat(35, 7, entry.ChangedBy, "1", 0, "", false, 0, "")
		pdf.CellFormat(60, 7, entry.Remarks, "1", 0, "", false, 0, "")
		pdf.Ln(-1)
	}

	return pdf.Output(w)
}
