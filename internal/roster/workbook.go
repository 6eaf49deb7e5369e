// Package roster renders a roster view as a printable .xlsx rounding list.
package roster

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/xuri/excelize/v2"

	"localemr/internal/core"
	"localemr/pkg/domain"
)

// SheetName is the single worksheet in the workbook.
const SheetName = "Rounds"

// Header lists the column titles in order.
var Header = []string{
	"Room",
	"Name",
	"Age",
	"Status",
	"Diagnoses",
	"Medications",
	"Notes",
	"Updated",
}

var columnWidths = []float64{
	8,  // Room
	24, // Name
	6,  // Age
	12, // Status
	36, // Diagnoses
	36, // Medications
	48, // Notes
	18, // Updated
}

// UpdatedLayout formats the Updated column in local time.
const UpdatedLayout = "2006-01-02 15:04"

// StatusLabel is the badge text shown for a status.
func StatusLabel(s domain.Status) string {
	switch s.Normalize() {
	case domain.StatusNoteComplete:
		return "Note Done"
	case domain.StatusSeen:
		return "Seen"
	default:
		return "Pending"
	}
}

// DisplayName falls back to "Unnamed" for records without a name.
func DisplayName(p domain.Patient) string {
	if !p.HasName() {
		return "Unnamed"
	}
	return p.Name
}

// WriteWorkbook writes patients, in the given order, followed by a stats
// footer.
func WriteWorkbook(w io.Writer, patients []domain.Patient, stats core.Stats) (err error) {
	f := excelize.NewFile()
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close workbook: %w", cerr)
		}
	}()

	index, err := f.NewSheet(SheetName)
	if err != nil {
		return fmt.Errorf("create sheet: %w", err)
	}
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return fmt.Errorf("delete default sheet: %w", err)
	}
	f.SetActiveSheet(index)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E6F3FF"}, Pattern: 1},
		Border: []excelize.Border{
			{Type: "left", Color: "000000", Style: 1},
			{Type: "top", Color: "000000", Style: 1},
			{Type: "bottom", Color: "000000", Style: 1},
			{Type: "right", Color: "000000", Style: 1},
		},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		return fmt.Errorf("create header style: %w", err)
	}
	wrapStyle, err := f.NewStyle(&excelize.Style{
		Alignment: &excelize.Alignment{Vertical: "top", WrapText: true},
	})
	if err != nil {
		return fmt.Errorf("create body style: %w", err)
	}

	for col, title := range Header {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(SheetName, cell, title); err != nil {
			return fmt.Errorf("set header %s: %w", cell, err)
		}
		name, err := excelize.ColumnNumberToName(col + 1)
		if err != nil {
			return err
		}
		if err := f.SetColWidth(SheetName, name, name, columnWidths[col]); err != nil {
			return fmt.Errorf("set column width: %w", err)
		}
	}
	last, _ := excelize.CoordinatesToCellName(len(Header), 1)
	if err := f.SetCellStyle(SheetName, "A1", last, headerStyle); err != nil {
		return fmt.Errorf("set header style: %w", err)
	}

	for i, p := range patients {
		row := i + 2
		if err := f.SetSheetRow(SheetName, "A"+strconv.Itoa(row), patientRow(p)); err != nil {
			return fmt.Errorf("write row %d: %w", row, err)
		}
	}
	if len(patients) > 0 {
		end, _ := excelize.CoordinatesToCellName(len(Header), len(patients)+1)
		if err := f.SetCellStyle(SheetName, "A2", end, wrapStyle); err != nil {
			return fmt.Errorf("set body style: %w", err)
		}
	}

	footer := len(patients) + 3
	summary := []any{"Total", stats.Total, "Seen", stats.SeenCount, "Notes", stats.NoteCount}
	if err := f.SetSheetRow(SheetName, "A"+strconv.Itoa(footer), &summary); err != nil {
		return fmt.Errorf("write stats footer: %w", err)
	}

	if err := f.SetPanes(SheetName, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return fmt.Errorf("freeze header: %w", err)
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func patientRow(p domain.Patient) *[]any {
	var age any = ""
	if p.Age != nil {
		age = *p.Age
	}
	updated := ""
	if !p.UpdatedAt.IsZero() {
		updated = p.UpdatedAt.In(time.Local).Format(UpdatedLayout)
	}
	row := []any{p.Room, DisplayName(p), age, StatusLabel(p.Status), p.Diagnoses, p.Medications, p.Notes, updated}
	return &row
}
