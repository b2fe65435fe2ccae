package bot

import (
	"context"
	"fmt"

	"auditorium/internal/conversation"
	"auditorium/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

const noSessionText = "Por favor, inicia el proceso de reserva desde el menú principal.\n" +
	"Usa /start para comenzar."

// startReservation opens the booking dialog for roomID, replacing any dialog
// the caller left unfinished.
func (b *Bot) startReservation(ctx context.Context, chatID int64, messageID int, userID, roomID int64) {
	room := b.loadRoom(ctx, chatID, messageID, roomID)
	if room == nil {
		return
	}
	if _, err := b.dialog.Begin(ctx, userID, room); err != nil {
		b.fail(ctx, chatID, messageID, err, ShowRoom{ID: roomID})
		return
	}
	text := fmt.Sprintf("📝 <b>Nueva Reserva - %s</b>\n\n"+
		"Por favor, envía el <b>nombre del evento</b> que deseas reservar:", esc(room.Name))
	b.render(chatID, messageID, text, nil)
}

// handleDialogText feeds free text to the caller's booking dialog.
func (b *Bot) handleDialogText(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	res, err := b.dialog.Handle(ctx, msg.From.ID, msg.Text)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Int64("user_id", msg.From.ID).Msg("Booking dialog failed")
		b.send(chatID, genericFailText)
		return
	}
	if b.metrics != nil {
		b.metrics.DialogTurns.WithLabelValues(res.Outcome.String()).Inc()
	}

	switch res.Outcome {
	case conversation.OutcomeNoSession:
		b.send(chatID, noSessionText)
	case conversation.OutcomeAdvanced:
		b.send(chatID, b.nextPrompt(res.Session))
	case conversation.OutcomeRetry:
		b.send(chatID, retryText(res.State, res.Err, b.config.Booking.MaxDaysAhead))
	case conversation.OutcomeCommitted:
		if b.metrics != nil {
			b.metrics.BookingsCreated.WithLabelValues(roomLabel(res.Reservation)).Inc()
		}
		b.send(chatID, reservationSummary(res.Reservation))
	case conversation.OutcomeConflict:
		b.send(chatID, conflictText)
	case conversation.OutcomeFailed:
		b.send(chatID, errorMessage(res.Err)+"\n\nUsa /start para volver al menú principal.")
	}
}

// nextPrompt confirms the accepted value and asks for the next field.
func (b *Bot) nextPrompt(s *models.Session) string {
	switch s.State {
	case models.StateAwaitingDate:
		example := dialogDate(b.queries.Today().AddDate(0, 0, 1))
		return fmt.Sprintf("✅ Evento: <b>%s</b>\n\n"+
			"📅 Ahora envía la <b>fecha</b> de la reserva en formato DD/MM/YYYY\n"+
			"Ejemplo: %s", esc(s.Title), example)
	case models.StateAwaitingStart:
		return fmt.Sprintf("✅ Fecha: <b>%s</b>\n\n"+
			"🕐 Ahora envía la <b>hora de inicio</b> en formato HH:MM\n"+
			"Ejemplo: 14:30", dialogDate(s.Date))
	case models.StateAwaitingEnd:
		return fmt.Sprintf("✅ Hora de inicio: <b>%s</b>\n\n"+
			"🕐 Ahora envía la <b>hora de fin</b> en formato HH:MM\n"+
			"Ejemplo: 16:30", s.Start)
	case models.StateAwaitingDescription:
		return fmt.Sprintf("✅ Hora de fin: <b>%s</b>\n\n"+
			"📝 Por último, envía una <b>descripción</b> del evento\n"+
			"(o escribe '%s' para omitir):", s.End, esc(b.skipHint()))
	}
	return noSessionText
}

func (b *Bot) skipHint() string {
	for _, w := range b.config.Booking.SkipWords {
		if w != "" {
			return w
		}
	}
	return conversation.DefaultSkipWords[0]
}
