package bot

import (
	"errors"
	"fmt"
	"strings"

	"auditorium/internal/domain"
	"auditorium/internal/models"
)

const (
	conflictText = "❌ <b>Conflicto de horarios</b>\n\n" +
		"Ya existe una reserva en el horario seleccionado.\n" +
		"Por favor, intenta con otro horario.\n\n" +
		"Usa /start para hacer una nueva reserva."
	notFoundText    = "❌ No se encontró lo que buscabas."
	roomMissingText = "Auditorio no encontrado."
	cancelFailText  = "❌ Error al cancelar la reserva"
	genericFailText = "❌ Ocurrió un error al procesar tu solicitud. Por favor, intenta nuevamente más tarde."
)

// errorMessage turns a service error into caller text. Ownership failures read
// like a missing reservation.
func errorMessage(err error) string {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, domain.ErrConflict):
		return conflictText
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrPermissionDenied):
		return notFoundText
	case errors.Is(err, domain.ErrValidation):
		return "❌ Datos no válidos. Revisa el formato e inténtalo de nuevo."
	default:
		return genericFailText
	}
}

// retryText explains why a dialog turn was rejected and repeats the question.
func retryText(state models.BookingState, err error, maxDaysAhead int) string {
	var verr *domain.ValidationError
	if !errors.As(err, &verr) {
		return genericFailText
	}

	switch verr.Field {
	case "title":
		return "❌ El nombre del evento no puede estar vacío.\n" +
			"Por favor, envía el nombre del evento:"
	case "date":
		switch {
		case verr.Reason == "is in the past":
			return "❌ La fecha no puede ser anterior a hoy.\n" +
				"Por favor, envía una fecha válida (DD/MM/YYYY):"
		case strings.HasPrefix(verr.Reason, "is more than"):
			return fmt.Sprintf("❌ Solo se puede reservar con hasta %d días de anticipación.\n"+
				"Por favor, envía una fecha más cercana (DD/MM/YYYY):", maxDaysAhead)
		}
		return "❌ Formato de fecha incorrecto.\n" +
			"Por favor, usa el formato DD/MM/YYYY\n" +
			"Ejemplo: 15/12/2025"
	case "end":
		if state == models.StateAwaitingEnd && verr.Reason == "must be after start" {
			return "❌ La hora de fin debe ser posterior a la hora de inicio.\n" +
				"Por favor, envía una hora válida (HH:MM):"
		}
	}
	return "❌ Formato de hora incorrecto.\n" +
		"Por favor, usa el formato HH:MM\n" +
		"Ejemplo: 14:30"
}
