package export

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"auditorium/internal/models"

	"github.com/xuri/excelize/v2"
)

const (
	gridSheet   = "Agenda"
	detailSheet = "Detalle"
)

// Schedule renders rooms as rows and days as columns, each cell listing the
// reserved windows of that room on that day. A second sheet lists every
// reservation in order.
type Schedule struct {
	From  time.Time
	To    time.Time
	Rooms []*models.Room
	// Reservations must already be sorted by date and start.
	Reservations []*models.Reservation
}

// FileName is the suggested attachment name for the schedule.
func (s *Schedule) FileName() string {
	return fmt.Sprintf("agenda_%s_a_%s.xlsx", s.From.Format(models.DateLayout), s.To.Format(models.DateLayout))
}

func (s *Schedule) build() (*excelize.File, error) {
	if s.To.Before(s.From) {
		return nil, fmt.Errorf("invalid period %s..%s", s.From.Format(models.DateLayout), s.To.Format(models.DateLayout))
	}

	f := excelize.NewFile()
	index, err := f.NewSheet(gridSheet)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("error creating sheet: %w", err)
	}
	f.SetActiveSheet(index)

	_ = f.SetCellValue(gridSheet, "A1", fmt.Sprintf("Periodo: %s - %s",
		s.From.Format("02/01/2006"), s.To.Format("02/01/2006")))

	dateCols := s.writeDateHeaders(f)
	s.writeRoomHeaders(f)
	if err := s.writeGrid(f, dateCols); err != nil {
		f.Close()
		return nil, err
	}

	_ = f.SetColWidth(gridSheet, "A", "A", 28)
	lastCol, _ := excelize.ColumnNumberToName(len(dateCols) + 1)
	if len(dateCols) > 0 {
		first, _ := excelize.ColumnNumberToName(2)
		_ = f.SetColWidth(gridSheet, first, lastCol, 22)
	}
	_ = f.MergeCell(gridSheet, "A1", lastCol+"1")

	title, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 14},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	_ = f.SetCellStyle(gridSheet, "A1", "A1", title)

	if err := s.writeDetail(f); err != nil {
		f.Close()
		return nil, err
	}

	_ = f.DeleteSheet("Sheet1")
	return f, nil
}

func (s *Schedule) writeDateHeaders(f *excelize.File) map[string]int {
	style, _ := f.NewStyle(&excelize.Style{
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font:      &excelize.Font{Bold: true},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})

	cols := make(map[string]int)
	col := 2
	for d := models.DateOf(s.From); !d.After(models.DateOf(s.To)); d = d.AddDate(0, 0, 1) {
		cell, _ := excelize.CoordinatesToCellName(col, 2)
		_ = f.SetCellValue(gridSheet, cell, d.Format("02/01"))
		_ = f.SetCellStyle(gridSheet, cell, cell, style)
		cols[d.Format(models.DateLayout)] = col
		col++
	}
	return cols
}

func (s *Schedule) writeRoomHeaders(f *excelize.File) {
	style, _ := f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E2EFDA"}, Pattern: 1},
		Font: &excelize.Font{Bold: true},
	})
	for i, room := range s.Rooms {
		cell, _ := excelize.CoordinatesToCellName(1, i+3)
		_ = f.SetCellValue(gridSheet, cell, fmt.Sprintf("%s (%d)", room.Name, room.Capacity))
		_ = f.SetCellStyle(gridSheet, cell, cell, style)
	}
}

func (s *Schedule) writeGrid(f *excelize.File, dateCols map[string]int) error {
	free, err := cellStyle(f, "#FFFFFF")
	if err != nil {
		return fmt.Errorf("error creating style: %w", err)
	}
	busy, err := cellStyle(f, "#FFEB9C")
	if err != nil {
		return fmt.Errorf("error creating style: %w", err)
	}

	type key struct {
		room int64
		date string
	}
	cells := make(map[key][]string)
	for _, r := range s.Reservations {
		if !r.IsReserved() {
			continue
		}
		k := key{room: r.RoomID, date: r.Date.Format(models.DateLayout)}
		cells[k] = append(cells[k], fmt.Sprintf("%s-%s %s", r.Start, r.End, r.Title))
	}

	for i, room := range s.Rooms {
		row := i + 3
		for date, col := range dateCols {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			lines := cells[key{room: room.ID, date: date}]
			if len(lines) == 0 {
				_ = f.SetCellValue(gridSheet, cell, "Libre")
				_ = f.SetCellStyle(gridSheet, cell, cell, free)
				continue
			}
			_ = f.SetCellValue(gridSheet, cell, strings.Join(lines, "\n"))
			_ = f.SetCellStyle(gridSheet, cell, cell, busy)
		}
	}
	return nil
}

func cellStyle(f *excelize.File, color string) (int, error) {
	return f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Color: []string{color}, Pattern: 1},
		Alignment: &excelize.Alignment{
			Horizontal: "left",
			Vertical:   "top",
			WrapText:   true,
		},
	})
}

func (s *Schedule) writeDetail(f *excelize.File) error {
	if _, err := f.NewSheet(detailSheet); err != nil {
		return fmt.Errorf("error creating sheet: %w", err)
	}

	headers := []string{"ID", "Sala", "Título", "Fecha", "Inicio", "Fin", "Usuario", "Descripción"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(detailSheet, cell, h)
	}

	row := 2
	for _, r := range s.Reservations {
		if !r.IsReserved() {
			continue
		}
		values := []any{r.ID, r.RoomName, r.Title, r.Date.Format("02/01/2006"), r.Start.String(), r.End.String(), r.OwnerID, r.Description}
		for i, v := range values {
			cell, _ := excelize.CoordinatesToCellName(i+1, row)
			_ = f.SetCellValue(detailSheet, cell, v)
		}
		row++
	}

	_ = f.SetColWidth(detailSheet, "B", "C", 25)
	_ = f.SetColWidth(detailSheet, "H", "H", 40)
	return nil
}

// Bytes renders the workbook in memory, for chat attachments and HTTP responses.
func (s *Schedule) Bytes() ([]byte, error) {
	f, err := s.build()
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("error writing workbook: %w", err)
	}
	return buf.Bytes(), nil
}

// SaveTo writes the workbook under dir and returns the file path.
func (s *Schedule) SaveTo(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("error creating export directory: %w", err)
	}
	f, err := s.build()
	if err != nil {
		return "", err
	}
	defer f.Close()

	path := filepath.Join(dir, s.FileName())
	if err := f.SaveAs(path); err != nil {
		return "", fmt.Errorf("error saving file: %w", err)
	}
	return path, nil
}
