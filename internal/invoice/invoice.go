package invoice

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/phpdave11/gofpdf"
	"github.com/shopspring/decimal"
	"github.com/skip2/go-qrcode"
	"github.com/vasiliy-maslov/livestockmart/internal/order"
)

const (
	sellerName    = "LivestockMart"
	sellerTagline = "Healthy goats and sheep, delivered"
)

func rupees(amount float64) string {
	return "Rs. " + decimal.NewFromFloat(amount).StringFixed(2)
}

// Number is the printable invoice number for an order.
func Number(o *order.Order) string {
	return "INV-" + o.CreatedAt.Format("20060102") + "-" + strings.ToUpper(o.ID.String()[:8])
}

// Write renders a one-page A4 invoice for o. The QR code carries the order id
// so a delivery agent can look the order up.
func Write(w io.Writer, o *order.Order) error {
	qrPNG, err := qrcode.Encode(o.ID.String(), qrcode.Medium, 256)
	if err != nil {
		return fmt.Errorf("invoice: failed to generate qr code: %w", err)
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetTitle("Invoice "+Number(o), true)
	pdf.SetAuthor(sellerName, true)
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 20)
	pdf.Cell(0, 10, sellerName)
	pdf.Ln(8)
	pdf.SetFont("Arial", "I", 10)
	pdf.Cell(0, 6, sellerTagline)
	pdf.Ln(12)

	imageOpts := gofpdf.ImageOptions{ImageType: "PNG"}
	pdf.RegisterImageOptionsReader("order-qr", imageOpts, bytes.NewReader(qrPNG))
	pdf.ImageOptions("order-qr", 160, 10, 35, 35, false, imageOpts, 0, "")

	pdf.SetFont("Arial", "B", 12)
	pdf.Cell(0, 7, "Invoice "+Number(o))
	pdf.Ln(7)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, "Order: "+o.ID.String())
	pdf.Ln(6)
	pdf.Cell(0, 6, "Date: "+o.CreatedAt.Format("02 Jan 2006"))
	pdf.Ln(6)
	pdf.Cell(0, 6, fmt.Sprintf("Status: %s   Payment: %s (%s)", o.Status, strings.ToUpper(string(o.PaymentMethod)), o.PaymentStatus))
	pdf.Ln(10)

	pdf.SetFont("Arial", "B", 11)
	pdf.Cell(0, 6, "Deliver to")
	pdf.Ln(6)
	pdf.SetFont("Arial", "", 10)
	for _, line := range addressLines(o) {
		pdf.Cell(0, 5, tr(line))
		pdf.Ln(5)
	}
	pdf.Ln(6)

	widths := []float64{80, 40, 20, 25, 25}
	pdf.SetFont("Arial", "B", 10)
	pdf.SetFillColor(230, 236, 226)
	for i, h := range []string{"Item", "Breed", "Qty", "Price", "Amount"} {
		align := "L"
		if i >= 2 {
			align = "R"
		}
		pdf.CellFormat(widths[i], 8, h, "1", 0, align, true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Arial", "", 10)
	for _, item := range o.Items {
		lineTotal := decimal.NewFromFloat(item.Price).Mul(decimal.NewFromInt(int64(item.Quantity)))
		pdf.CellFormat(widths[0], 7, tr(item.Name), "1", 0, "L", false, 0, "")
		pdf.CellFormat(widths[1], 7, tr(item.Breed), "1", 0, "L", false, 0, "")
		pdf.CellFormat(widths[2], 7, strconv.Itoa(item.Quantity), "1", 0, "R", false, 0, "")
		pdf.CellFormat(widths[3], 7, decimal.NewFromFloat(item.Price).StringFixed(2), "1", 0, "R", false, 0, "")
		pdf.CellFormat(widths[4], 7, lineTotal.StringFixed(2), "1", 0, "R", false, 0, "")
		pdf.Ln(-1)
	}

	pdf.SetFont("Arial", "B", 11)
	pdf.CellFormat(widths[0]+widths[1]+widths[2]+widths[3], 8, "Total", "1", 0, "R", false, 0, "")
	pdf.CellFormat(widths[4], 8, rupees(o.TotalAmount), "1", 0, "R", false, 0, "")
	pdf.Ln(14)

	pdf.SetFont("Arial", "I", 9)
	pdf.MultiCell(0, 5, "Live animals are inspected by a veterinarian before dispatch. "+
		"Keep this invoice for health certificate and transport records.", "", "L", false)

	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("invoice: failed to render pdf: %w", err)
	}
	return nil
}

func addressLines(o *order.Order) []string {
	a := o.Address
	name := a.Name
	if name == "" {
		name = o.Customer
	}
	lines := []string{name, a.Line1}
	if a.Line2 != "" {
		lines = append(lines, a.Line2)
	}
	cityLine := a.City
	if a.State != "" {
		cityLine += ", " + a.State
	}
	if a.Pincode != "" {
		cityLine += " " + a.Pincode
	}
	lines = append(lines, cityLine)
	if a.Phone != "" {
		lines = append(lines, "Phone: "+a.Phone)
	}
	return lines
}
