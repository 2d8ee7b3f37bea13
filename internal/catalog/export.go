package catalog

import (
	"fmt"
	"io"
	"strings"

	"github.com/tealeg/xlsx"
)

var exportHeaders = []string{
	"ID", "Name", "Category", "Breed", "Age", "Price", "Status", "Quantity",
	"Weight", "Health Status", "Tags", "Image", "Created At", "Updated At",
}

// WriteXLSX renders listings as a single-sheet workbook.
func WriteXLSX(w io.Writer, listings []Listing) error {
	file := xlsx.NewFile()
	sheet, err := file.AddSheet("Livestock")
	if err != nil {
		return fmt.Errorf("failed to create sheet: %w", err)
	}

	header := sheet.AddRow()
	for _, h := range exportHeaders {
		header.AddCell().SetValue(h)
	}

	for _, l := range listings {
		row := sheet.AddRow()
		row.AddCell().SetValue(l.ID.String())
		row.AddCell().SetValue(l.Name)
		row.AddCell().SetValue(string(l.Category))
		row.AddCell().SetValue(l.Breed)
		row.AddCell().SetValue(l.Age)
		row.AddCell().SetFloat(l.Price)
		row.AddCell().SetValue(string(l.Status))
		row.AddCell().SetInt(l.Quantity)
		row.AddCell().SetValue(l.Weight)
		row.AddCell().SetValue(l.HealthStatus)
		row.AddCell().SetValue(strings.Join(l.Tags, ", "))
		row.AddCell().SetValue(l.Image)
		row.AddCell().SetValue(l.CreatedAt.Format("2006-01-02 15:04:05"))
		row.AddCell().SetValue(l.UpdatedAt.Format("2006-01-02 15:04:05"))
	}

	return file.Write(w)
}
