package certificate

import (
	"bytes"
	"fmt"

	"github.com/go-pdf/fpdf"
)

// PDFRenderer lays out a landscape A4 certificate with the verification
// QR code in the lower right corner.
type PDFRenderer struct {
	Issuer string
}

func NewPDFRenderer(issuer string) *PDFRenderer {
	return &PDFRenderer{Issuer: issuer}
}

func (r *PDFRenderer) Render(d Data) ([]byte, error) {
	pdf := fpdf.New("L", "mm", "A4", "")
	pdf.SetTitle("Certificate "+d.Number, true)
	pdf.SetAuthor(r.Issuer, true)
	pdf.SetAutoPageBreak(false, 0)
	pdf.AddPage()
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	w, h := pdf.GetPageSize()
	pdf.SetLineWidth(1.5)
	pdf.Rect(10, 10, w-20, h-20, "D")

	pdf.SetY(35)
	pdf.SetFont("Helvetica", "B", 34)
	pdf.CellFormat(0, 16, "Certificate of Attendance", "", 1, "C", false, 0, "")

	pdf.Ln(8)
	pdf.SetFont("Helvetica", "", 16)
	pdf.CellFormat(0, 10, "This certifies that", "", 1, "C", false, 0, "")
	pdf.SetFont("Helvetica", "B", 28)
	pdf.CellFormat(0, 16, tr(d.UserName), "", 1, "C", false, 0, "")
	pdf.SetFont("Helvetica", "", 16)
	pdf.CellFormat(0, 10, "attended", "", 1, "C", false, 0, "")
	pdf.SetFont("Helvetica", "B", 22)
	pdf.CellFormat(0, 14, tr(d.EventTitle), "", 1, "C", false, 0, "")

	pdf.SetFont("Helvetica", "", 13)
	line := d.EventDate.UTC().Format("2 January 2006")
	if d.Venue != "" {
		line += ", " + d.Venue
	}
	pdf.CellFormat(0, 8, tr(line), "", 1, "C", false, 0, "")

	pdf.SetXY(20, h-40)
	pdf.SetFont("Helvetica", "", 11)
	pdf.CellFormat(120, 6, "Certificate no. "+d.Number, "", 2, "L", false, 0, "")
	pdf.CellFormat(120, 6, "Issued "+d.IssuedAt.UTC().Format("2006-01-02"), "", 2, "L", false, 0, "")
	if r.Issuer != "" {
		pdf.CellFormat(120, 6, tr(r.Issuer), "", 2, "L", false, 0, "")
	}

	if len(d.QRCode) > 0 {
		opt := fpdf.ImageOptions{ImageType: "PNG"}
		pdf.RegisterImageOptionsReader("qr", opt, bytes.NewReader(d.QRCode))
		pdf.ImageOptions("qr", w-60, h-60, 40, 40, false, opt, 0, "")
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}
