package export

import (
	"fmt"
	"io"
	"strings"
	"time"

	"recolha/internal/models"

	"github.com/xuri/excelize/v2"
)

const SheetName = "Bookings"

var headers = []string{"Token", "Date", "Time", "Municipality", "Status", "Items", "Last change"}

// statusFills colours the status cell by lifecycle stage.
var statusFills = map[models.BookingStatus]string{
	models.StatusReceived:   "#FFF2CC",
	models.StatusAssigned:   "#DDEBF7",
	models.StatusInProgress: "#DDEBF7",
	models.StatusFinished:   "#E2EFDA",
	models.StatusCancelled:  "#F8CBAD",
	models.StatusRemoved:    "#D9D9D9",
}

// WriteBookings renders bookings as an XLSX workbook into w.
func WriteBookings(w io.Writer, bookings []*models.Booking) error {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(SheetName)
	if err != nil {
		return fmt.Errorf("error creating sheet: %w", err)
	}
	f.SetActiveSheet(index)
	_ = f.DeleteSheet("Sheet1")

	headerStyle, err := f.NewStyle(&excelize.Style{
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font:      &excelize.Font{Bold: true},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	if err != nil {
		return fmt.Errorf("error creating header style: %w", err)
	}

	for col, title := range headers {
		cell, _ := excelize.CoordinatesToCellName(col+1, 1)
		_ = f.SetCellValue(SheetName, cell, title)
		_ = f.SetCellStyle(SheetName, cell, cell, headerStyle)
	}

	styles := make(map[models.BookingStatus]int, len(statusFills))
	for status, color := range statusFills {
		id, err := f.NewStyle(&excelize.Style{
			Fill: excelize.Fill{Type: "pattern", Color: []string{color}, Pattern: 1},
		})
		if err != nil {
			return fmt.Errorf("error creating status style: %w", err)
		}
		styles[status] = id
	}

	for i, b := range bookings {
		row := i + 2
		values := []interface{}{
			b.Token(),
			b.Date().Format(models.DateLayout),
			b.ApproxTimeSlot().String(),
			b.Municipality(),
			string(b.Status()),
			formatItems(b.Items()),
			b.CurrentStatus().Timestamp().UTC().Format(time.RFC3339),
		}
		start, _ := excelize.CoordinatesToCellName(1, row)
		if err := f.SetSheetRow(SheetName, start, &values); err != nil {
			return fmt.Errorf("error writing row %d: %w", row, err)
		}

		if style, ok := styles[b.Status()]; ok {
			cell, _ := excelize.CoordinatesToCellName(5, row)
			_ = f.SetCellStyle(SheetName, cell, cell, style)
		}
	}

	_ = f.SetColWidth(SheetName, "A", "A", 38)
	_ = f.SetColWidth(SheetName, "B", "E", 15)
	_ = f.SetColWidth(SheetName, "F", "F", 50)
	_ = f.SetColWidth(SheetName, "G", "G", 25)
	_ = f.SetPanes(SheetName, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"})

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("error writing workbook: %w", err)
	}
	return nil
}

func formatItems(items []models.Item) string {
	parts := make([]string, 0, len(items))
	for _, item := range items {
		if item.Description == "" {
			parts = append(parts, item.Name)
			continue
		}
		parts = append(parts, fmt.Sprintf("%s (%s)", item.Name, item.Description))
	}
	return strings.Join(parts, "; ")
}
