package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"auditorium/internal/domain"
	"auditorium/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

const (
	unknownCommandText = "Comando desconocido. Usa /start para ver el menú principal."
	cancelOKText       = "✅ Reserva cancelada exitosamente"
)

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	l := zerolog.Ctx(ctx)
	l.Debug().
		Int64("user_id", msg.From.ID).
		Str("username", msg.From.UserName).
		Str("text", msg.Text).
		Msg("Handling message")

	if !msg.IsCommand() {
		b.handleDialogText(ctx, msg)
		return
	}

	switch msg.Command() {
	case "start":
		b.handleStart(ctx, msg)
	case "help", "ayuda":
		b.showHelp(msg.Chat.ID, 0, msg.From.ID)
	case "reservas":
		b.showMyReservations(ctx, msg.Chat.ID, 0, msg.From.ID)
	default:
		if b.isManager(msg.From.ID) && b.handleManagerCommand(ctx, msg) {
			return
		}
		b.send(msg.Chat.ID, unknownCommandText)
	}
}

// handleStart registers the caller on first contact and shows the main menu.
func (b *Bot) handleStart(ctx context.Context, msg *tgbotapi.Message) {
	user := &models.User{
		TelegramID: msg.From.ID,
		FirstName:  msg.From.FirstName,
		Username:   msg.From.UserName,
	}
	if err := b.userService.EnsureUser(ctx, user); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Int64("user_id", user.TelegramID).Msg("Error tracking user")
	}

	text := fmt.Sprintf("¡Hola %s! 👋\n\n"+
		"Bienvenido al sistema de reservas de auditorios.\n"+
		"¿Qué te gustaría hacer?", esc(user.DisplayName()))
	keyboard := mainMenuKeyboard()
	b.render(msg.Chat.ID, 0, text, &keyboard)
}

func (b *Bot) handleCallbackQuery(ctx context.Context, cq *tgbotapi.CallbackQuery) {
	if cq.Message == nil || cq.Message.Chat == nil {
		b.answer(cq.ID, "")
		return
	}
	chatID, messageID, userID := cq.Message.Chat.ID, cq.Message.MessageID, cq.From.ID

	action, err := ParseAction(cq.Data)
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Int64("user_id", userID).Msg("Unknown callback data")
		b.answer(cq.ID, "Acción desconocida")
		return
	}
	if b.metrics != nil {
		b.metrics.ActionsTotal.WithLabelValues(actionName(action)).Inc()
	}

	notice := ""
	switch a := action.(type) {
	case ViewRooms:
		b.showRooms(ctx, chatID, messageID)
	case MyReservations:
		b.showMyReservations(ctx, chatID, messageID, userID)
	case Help:
		b.showHelp(chatID, messageID, userID)
	case BackToMenu:
		keyboard := mainMenuKeyboard()
		b.render(chatID, messageID, "🏛️ <b>Sistema de Reservas de Auditorios</b>\n\n¿Qué te gustaría hacer?", &keyboard)
	case ShowRoom:
		b.showRoom(ctx, chatID, messageID, a.ID)
	case RoomToday:
		b.showRoomToday(ctx, chatID, messageID, a.ID)
	case RoomEvents:
		b.showRoomEvents(ctx, chatID, messageID, a.ID)
	case Reserve:
		b.startReservation(ctx, chatID, messageID, userID, a.ID)
	case CancelReservation:
		notice = b.cancelReservation(ctx, chatID, messageID, userID, a.ID)
	default:
		zerolog.Ctx(ctx).Error().Str("action", cq.Data).Msg("Unhandled action")
	}
	b.answer(cq.ID, notice)
}

func (b *Bot) showRooms(ctx context.Context, chatID int64, messageID int) {
	rooms, err := b.queries.ListRooms(ctx)
	if err != nil {
		b.fail(ctx, chatID, messageID, err, BackToMenu{})
		return
	}
	if len(rooms) == 0 {
		keyboard := backKeyboard(BackToMenu{})
		b.render(chatID, messageID, "No hay auditorios disponibles.", &keyboard)
		return
	}

	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(rooms)+1)
	for _, room := range rooms {
		label := fmt.Sprintf("🏛️ %s (%d personas)", room.Name, room.Capacity)
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(label, ShowRoom{ID: room.ID}.Data()),
		))
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData(btnBack, BackToMenu{}.Data()),
	))
	keyboard := tgbotapi.NewInlineKeyboardMarkup(rows...)
	b.render(chatID, messageID, "📋 <b>Auditorios Disponibles</b>\n\nSelecciona un auditorio para ver sus opciones:", &keyboard)
}

// loadRoom renders the not-found view itself and returns nil when the room is gone.
func (b *Bot) loadRoom(ctx context.Context, chatID int64, messageID int, roomID int64) *models.Room {
	room, err := b.queries.GetRoom(ctx, roomID)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		keyboard := backKeyboard(ViewRooms{})
		b.render(chatID, messageID, roomMissingText, &keyboard)
		return nil
	case err != nil:
		b.fail(ctx, chatID, messageID, err, ViewRooms{})
		return nil
	}
	return room
}

func (b *Bot) showRoom(ctx context.Context, chatID int64, messageID int, roomID int64) {
	room := b.loadRoom(ctx, chatID, messageID, roomID)
	if room == nil {
		return
	}
	keyboard := roomKeyboard(room.ID)
	b.render(chatID, messageID, roomCard(room), &keyboard)
}

func (b *Bot) showRoomToday(ctx context.Context, chatID int64, messageID int, roomID int64) {
	room := b.loadRoom(ctx, chatID, messageID, roomID)
	if room == nil {
		return
	}
	events, err := b.queries.TodayEvents(ctx, roomID)
	if err != nil {
		b.fail(ctx, chatID, messageID, err, ShowRoom{ID: roomID})
		return
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "📅 <b>Disponibilidad - %s</b>\n\n", esc(room.Name))
	fmt.Fprintf(&sb, "<b>Fecha:</b> %s\n\n", dialogDate(b.queries.Today()))
	if len(events) == 0 {
		sb.WriteString("✅ <b>¡Auditorio completamente disponible hoy!</b>\n")
	} else {
		sb.WriteString("⏰ <b>Horarios ocupados:</b>\n")
		for _, e := range events {
			fmt.Fprintf(&sb, "• %s: %s\n", window(e), esc(e.Title))
		}
	}
	keyboard := reserveOrBackKeyboard(roomID)
	b.render(chatID, messageID, sb.String(), &keyboard)
}

func (b *Bot) showRoomEvents(ctx context.Context, chatID int64, messageID int, roomID int64) {
	room := b.loadRoom(ctx, chatID, messageID, roomID)
	if room == nil {
		return
	}
	events, err := b.queries.UpcomingRoomEvents(ctx, roomID, models.MaxUpcomingEvents)
	if err != nil {
		b.fail(ctx, chatID, messageID, err, ShowRoom{ID: roomID})
		return
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "🎭 <b>Eventos - %s</b>\n\n", esc(room.Name))
	if len(events) == 0 {
		sb.WriteString("No hay eventos programados para este auditorio.")
	}
	for _, e := range events {
		fmt.Fprintf(&sb, "📅 <b>%s</b>\n⏰ %s\n🎯 %s\n", dialogDate(e.Date), window(e), esc(e.Title))
		if e.Description != "" {
			fmt.Fprintf(&sb, "📝 %s\n", esc(e.Description))
		}
		sb.WriteString("\n")
	}
	keyboard := reserveOrBackKeyboard(roomID)
	b.render(chatID, messageID, sb.String(), &keyboard)
}

func (b *Bot) showMyReservations(ctx context.Context, chatID int64, messageID int, userID int64) {
	reservations, err := b.queries.UserEvents(ctx, userID)
	if err != nil {
		b.fail(ctx, chatID, messageID, err, BackToMenu{})
		return
	}
	if len(reservations) == 0 {
		keyboard := backKeyboard(BackToMenu{})
		b.render(chatID, messageID, "📅 <b>Mis Reservas</b>\n\nNo tienes reservas activas.", &keyboard)
		return
	}

	var sb strings.Builder
	sb.WriteString("📅 <b>Mis Reservas</b>\n\n")
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(reservations)+1)
	for _, r := range reservations {
		fmt.Fprintf(&sb, "🎯 <b>%s</b>\n📅 %s | ⏰ %s\n🏛️ %s\n\n",
			esc(r.Title), dialogDate(r.Date), window(r), esc(roomLabel(r)))
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("❌ Cancelar: "+truncate(r.Title, maxButtonTitle), CancelReservation{ID: r.ID}.Data()),
		))
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData(btnBack, BackToMenu{}.Data()),
	))
	keyboard := tgbotapi.NewInlineKeyboardMarkup(rows...)
	b.render(chatID, messageID, sb.String(), &keyboard)
}

// cancelReservation cancels for the caller and re-lists what remains. The
// returned text is shown as the callback notice.
func (b *Bot) cancelReservation(ctx context.Context, chatID int64, messageID int, userID, reservationID int64) string {
	notice := cancelOKText
	if _, err := b.reservations.Cancel(ctx, reservationID, userID); err != nil {
		zerolog.Ctx(ctx).Info().Err(err).Int64("user_id", userID).Int64("reservation_id", reservationID).Msg("Cancel rejected")
		notice = cancelFailText
		if !errors.Is(err, domain.ErrNotFound) && !errors.Is(err, domain.ErrPermissionDenied) {
			notice = genericFailText
		}
	}
	b.showMyReservations(ctx, chatID, messageID, userID)
	return notice
}

func (b *Bot) showHelp(chatID int64, messageID int, userID int64) {
	text := helpText
	if b.isManager(userID) {
		text += managerHelpText
	}
	keyboard := backKeyboard(BackToMenu{})
	b.render(chatID, messageID, text, &keyboard)
}

// render edits the message a button belongs to, or sends a new one when
// messageID is zero.
func (b *Bot) render(chatID int64, messageID int, text string, keyboard *tgbotapi.InlineKeyboardMarkup) {
	var err error
	if messageID != 0 {
		_, err = b.tgService.EditHTML(chatID, messageID, text, keyboard)
	} else {
		_, err = b.tgService.SendHTML(chatID, text, keyboard)
	}
	if err != nil {
		b.logger.Error().Err(err).Int64("chat_id", chatID).Msg("Failed to send message")
	}
}

func (b *Bot) send(chatID int64, text string) {
	b.render(chatID, 0, text, nil)
}

func (b *Bot) answer(callbackID, text string) {
	if err := b.tgService.AnswerCallback(callbackID, text); err != nil {
		b.logger.Warn().Err(err).Msg("Failed to answer callback")
	}
}

// fail logs an unexpected service error and shows a generic message.
func (b *Bot) fail(ctx context.Context, chatID int64, messageID int, err error, back Action) {
	zerolog.Ctx(ctx).Error().Err(err).Int64("chat_id", chatID).Msg("Request failed")
	keyboard := backKeyboard(back)
	b.render(chatID, messageID, errorMessage(err), &keyboard)
}

const helpText = `ℹ️ <b>Ayuda - Sistema de Reservas</b>

<b>Funciones disponibles:</b>

🏛️ <b>Ver Auditorios</b>
- Consulta todos los auditorios disponibles
- Ve información detallada de cada uno
- Consulta disponibilidad y eventos

➕ <b>Hacer Reserva</b>
- Reserva un auditorio
- Especifica fecha y horario
- Añade descripción del evento

📋 <b>Mis Reservas</b>
- Ve todas tus reservas activas
- Cancela reservas que creaste

<b>Formato de datos:</b>
- Fecha: DD/MM/YYYY (ej: 15/12/2025)
- Hora: HH:MM (ej: 14:30)

<b>Notas importantes:</b>
- Solo puedes cancelar reservas que tú creaste
- No se pueden hacer reservas en fechas pasadas
- La hora de fin debe ser posterior a la de inicio
`

const managerHelpText = `
<b>Comandos de gestión:</b>
/export [días] - agenda de todos los auditorios en Excel
/stats - reservas por auditorio
/sync - reescribe la hoja de Google Sheets
`
