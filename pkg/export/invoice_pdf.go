package export

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"

	"github.com/invoyq/invoyq-api/internal/models"
)

// InvoicePDF renders invoices into a printable PDF document.
type InvoicePDF struct{}

// NewInvoicePDF constructs an invoice PDF renderer.
func NewInvoicePDF() *InvoicePDF {
	return &InvoicePDF{}
}

// Render creates the PDF for an invoice. The business block comes from the
// issuing user's profile and the bill-to block from the client record.
func (e *InvoicePDF) Render(invoice *models.Invoice, business *models.User, client *models.Client) ([]byte, error) {
	if invoice == nil {
		return nil, fmt.Errorf("pdf requires an invoice")
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(15, 15, 15)
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 18)
	pdf.CellFormat(0, 10, "INVOICE", "", 1, "L", false, 0, "")
	pdf.SetFont("Arial", "", 10)
	pdf.CellFormat(0, 6, invoice.Number, "", 1, "L", false, 0, "")
	pdf.Ln(4)

	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(90, 6, "From", "", 0, "L", false, 0, "")
	pdf.CellFormat(90, 6, "Bill To", "", 1, "L", false, 0, "")
	pdf.SetFont("Arial", "", 9)

	fromLines := businessLines(business)
	toLines := clientLines(client)
	for i := 0; i < len(fromLines) || i < len(toLines); i++ {
		var from, to string
		if i < len(fromLines) {
			from = fromLines[i]
		}
		if i < len(toLines) {
			to = toLines[i]
		}
		pdf.CellFormat(90, 5, from, "", 0, "L", false, 0, "")
		pdf.CellFormat(90, 5, to, "", 1, "L", false, 0, "")
	}
	pdf.Ln(4)

	pdf.SetFont("Arial", "", 9)
	if invoice.IssuedDate != nil {
		pdf.CellFormat(0, 5, "Issued: "+invoice.IssuedDate.Format("2006-01-02"), "", 1, "L", false, 0, "")
	}
	if invoice.DueDate != nil {
		pdf.CellFormat(0, 5, "Due: "+invoice.DueDate.Format("2006-01-02"), "", 1, "L", false, 0, "")
	}
	pdf.Ln(4)

	widths := []float64{85, 25, 35, 35}
	headers := []string{"Description", "Qty", "Unit Price", "Amount"}
	pdf.SetFont("Arial", "B", 9)
	for i, header := range headers {
		align := "L"
		if i > 0 {
			align = "R"
		}
		pdf.CellFormat(widths[i], 8, header, "1", 0, align, false, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Arial", "", 9)
	for _, item := range invoice.Items {
		pdf.CellFormat(widths[0], 7, item.Description, "1", 0, "L", false, 0, "")
		pdf.CellFormat(widths[1], 7, trimFloat(item.Quantity), "1", 0, "R", false, 0, "")
		pdf.CellFormat(widths[2], 7, money(item.UnitPrice, invoice.Currency), "1", 0, "R", false, 0, "")
		pdf.CellFormat(widths[3], 7, money(item.Amount, invoice.Currency), "1", 0, "R", false, 0, "")
		pdf.Ln(-1)
	}
	pdf.Ln(2)

	totalsRow(pdf, "Subtotal", money(invoice.Subtotal, invoice.Currency), false)
	totalsRow(pdf, "Tax", money(invoice.Tax, invoice.Currency), false)
	totalsRow(pdf, "Total", money(invoice.Total, invoice.Currency), true)

	if invoice.Notes != nil && *invoice.Notes != "" {
		pdf.Ln(6)
		pdf.SetFont("Arial", "B", 9)
		pdf.CellFormat(0, 5, "Notes", "", 1, "L", false, 0, "")
		pdf.SetFont("Arial", "", 9)
		pdf.MultiCell(0, 5, *invoice.Notes, "", "L", false)
	}

	pdf.SetY(-25)
	pdf.SetFont("Arial", "I", 8)
	pdf.CellFormat(0, 5, "Generated "+time.Now().UTC().Format("2006-01-02"), "", 1, "C", false, 0, "")

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render invoice pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func totalsRow(pdf *gofpdf.Fpdf, label, value string, bold bool) {
	style := ""
	if bold {
		style = "B"
	}
	pdf.SetFont("Arial", style, 10)
	pdf.CellFormat(145, 7, label, "", 0, "R", false, 0, "")
	pdf.CellFormat(35, 7, value, "", 1, "R", false, 0, "")
}

func businessLines(user *models.User) []string {
	if user == nil {
		return nil
	}
	lines := []string{}
	if user.CompanyName != nil && *user.CompanyName != "" {
		lines = append(lines, *user.CompanyName)
	} else if user.FullName != "" {
		lines = append(lines, user.FullName)
	}
	if user.CompanyAddress != nil && *user.CompanyAddress != "" {
		lines = append(lines, *user.CompanyAddress)
	}
	if user.TaxID != nil && *user.TaxID != "" {
		lines = append(lines, "Tax ID: "+*user.TaxID)
	}
	if user.Email != "" {
		lines = append(lines, user.Email)
	}
	return lines
}

func clientLines(client *models.Client) []string {
	if client == nil {
		return nil
	}
	lines := []string{client.Name}
	if client.Address != nil && *client.Address != "" {
		lines = append(lines, *client.Address)
	}
	if client.Email != nil && *client.Email != "" {
		lines = append(lines, *client.Email)
	}
	return lines
}

func money(amount float64, currency string) string {
	return fmt.Sprintf("%.2f %s", amount, currency)
}

func trimFloat(v float64) string {
	if v == float64(int64(v)) {
		return fmt.Sprintf("%d", int64(v))
	}
	return fmt.Sprintf("%.2f", v)
}
