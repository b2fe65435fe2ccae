package export

import (
	"bytes"
	"path/filepath"
	"testing"
	"time"

	"auditorium/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func testSchedule() *Schedule {
	may1 := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	may2 := may1.AddDate(0, 0, 1)
	return &Schedule{
		From: may1,
		To:   may2,
		Rooms: []*models.Room{
			{ID: 1, Name: "Auditorio Central", Capacity: 200},
			{ID: 2, Name: "Sala A", Capacity: 50},
		},
		Reservations: []*models.Reservation{
			{ID: 1, RoomID: 1, RoomName: "Auditorio Central", Title: "Charla", Date: may1,
				Start: models.NewTimeOfDay(9, 0), End: models.NewTimeOfDay(10, 0), Status: models.StatusReserved},
			{ID: 2, RoomID: 1, RoomName: "Auditorio Central", Title: "Taller", Date: may1,
				Start: models.NewTimeOfDay(11, 0), End: models.NewTimeOfDay(12, 30), Status: models.StatusReserved},
			{ID: 3, RoomID: 2, RoomName: "Sala A", Title: "Anulada", Date: may2,
				Start: models.NewTimeOfDay(9, 0), End: models.NewTimeOfDay(10, 0), Status: models.StatusCancelled},
		},
	}
}

func TestScheduleBytes(t *testing.T) {
	data, err := testSchedule().Bytes()
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{gridSheet, detailSheet}, f.GetSheetList())

	header, _ := f.GetCellValue(gridSheet, "B2")
	assert.Equal(t, "01/05", header)

	room, _ := f.GetCellValue(gridSheet, "A3")
	assert.Equal(t, "Auditorio Central (200)", room)

	busy, _ := f.GetCellValue(gridSheet, "B3")
	assert.Equal(t, "09:00-10:00 Charla\n11:00-12:30 Taller", busy)

	cancelled, _ := f.GetCellValue(gridSheet, "C4")
	assert.Equal(t, "Libre", cancelled)

	rows, err := f.GetRows(detailSheet)
	require.NoError(t, err)
	assert.Len(t, rows, 3)
	assert.Equal(t, "Taller", rows[2][2])
}

func TestScheduleSaveTo(t *testing.T) {
	s := testSchedule()
	dir := filepath.Join(t.TempDir(), "exports")

	path, err := s.SaveTo(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "agenda_2025-05-01_a_2025-05-02.xlsx"), path)

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	f.Close()
}

func TestScheduleInvalidPeriod(t *testing.T) {
	s := testSchedule()
	s.From, s.To = s.To, s.From
	_, err := s.Bytes()
	assert.Error(t, err)
}
