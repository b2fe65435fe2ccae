package domain

import (
	"errors"
	"testing"
	"time"

	"auditorium/internal/models"

	"github.com/stretchr/testify/assert"
)

func TestValidationError(t *testing.T) {
	err := NewValidationError("end", "must be after start")
	assert.True(t, errors.Is(err, ErrValidation))
	assert.Equal(t, "invalid end: must be after start", err.Error())

	var ve *ValidationError
	assert.True(t, errors.As(err, &ve))
	assert.Equal(t, "end", ve.Field)
}

func TestStoreError(t *testing.T) {
	cause := errors.New("disk I/O error")
	err := StoreError("insert reservation", cause)
	assert.True(t, errors.Is(err, ErrStoreUnavailable))
	assert.True(t, errors.Is(err, cause))
	assert.Contains(t, err.Error(), "failed to insert reservation")
}

func TestValidateReservation(t *testing.T) {
	today := time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)
	valid := func() *models.Reservation {
		return &models.Reservation{
			RoomID:  1,
			OwnerID: 42,
			Title:   "Talk",
			Date:    time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
			Start:   models.NewTimeOfDay(14, 0),
			End:     models.NewTimeOfDay(15, 0),
		}
	}

	tests := []struct {
		name   string
		mutate func(r *models.Reservation)
		field  string
	}{
		{name: "valid", mutate: func(r *models.Reservation) {}},
		{name: "same day as today", mutate: func(r *models.Reservation) { r.Date = models.DateOf(today) }},
		{name: "no room", mutate: func(r *models.Reservation) { r.RoomID = 0 }, field: "room_id"},
		{name: "no owner", mutate: func(r *models.Reservation) { r.OwnerID = 0 }, field: "owner"},
		{name: "blank title", mutate: func(r *models.Reservation) { r.Title = "  " }, field: "title"},
		{name: "no date", mutate: func(r *models.Reservation) { r.Date = time.Time{} }, field: "date"},
		{name: "past date", mutate: func(r *models.Reservation) { r.Date = today.AddDate(0, 0, -1) }, field: "date"},
		{name: "end equals start", mutate: func(r *models.Reservation) { r.End = r.Start }, field: "end"},
		{name: "end before start", mutate: func(r *models.Reservation) { r.End = models.NewTimeOfDay(13, 0) }, field: "end"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := valid()
			tt.mutate(r)
			err := ValidateReservation(r, today)
			if tt.field == "" {
				assert.NoError(t, err)
				return
			}
			var ve *ValidationError
			if assert.ErrorAs(t, err, &ve) {
				assert.Equal(t, tt.field, ve.Field)
			}
		})
	}

	assert.ErrorIs(t, ValidateReservation(nil, today), ErrValidation)
}
