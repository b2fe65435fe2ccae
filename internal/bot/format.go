package bot

import (
	"fmt"
	"html"
	"strings"
	"time"
	"unicode/utf8"

	"auditorium/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const (
	btnViewRooms      = "🏛️ Ver Auditorios"
	btnMyReservations = "📅 Mis Reservas"
	btnHelp           = "ℹ️ Ayuda"
	btnBack           = "⬅️ Volver"
	btnToday          = "📅 Ver Disponibilidad"
	btnEvents         = "🎭 Ver Eventos"
	btnReserve        = "➕ Hacer Reserva"

	maxButtonTitle = 30
)

func mainMenuKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData(btnViewRooms, ViewRooms{}.Data())),
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData(btnMyReservations, MyReservations{}.Data())),
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData(btnHelp, Help{}.Data())),
	)
}

func backKeyboard(to Action) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData(btnBack, to.Data())),
	)
}

func roomKeyboard(roomID int64) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData(btnToday, RoomToday{ID: roomID}.Data())),
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData(btnEvents, RoomEvents{ID: roomID}.Data())),
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData(btnReserve, Reserve{ID: roomID}.Data())),
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData(btnBack, ViewRooms{}.Data())),
	)
}

// reserveOrBackKeyboard sits under the availability and events views of a room.
func reserveOrBackKeyboard(roomID int64) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData(btnReserve, Reserve{ID: roomID}.Data())),
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData(btnBack, ShowRoom{ID: roomID}.Data())),
	)
}

func roomCard(room *models.Room) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "🏛️ <b>%s</b>\n\n", esc(room.Name))
	if room.Location != "" {
		fmt.Fprintf(&sb, "📍 <b>Ubicación:</b> %s\n", esc(room.Location))
	}
	fmt.Fprintf(&sb, "👥 <b>Capacidad:</b> %d personas\n", room.Capacity)
	if room.Description != "" {
		fmt.Fprintf(&sb, "📝 <b>Descripción:</b> %s\n", esc(room.Description))
	}
	sb.WriteString("\n¿Qué te gustaría hacer?")
	return sb.String()
}

func window(r *models.Reservation) string {
	return r.Start.String() + " - " + r.End.String()
}

func dialogDate(d time.Time) string {
	return d.Format(models.DialogDateLayout)
}

func roomLabel(r *models.Reservation) string {
	if r.RoomName != "" {
		return r.RoomName
	}
	return fmt.Sprintf("Auditorio #%d", r.RoomID)
}

// reservationSummary is the confirmation shown after a committed dialog.
func reservationSummary(r *models.Reservation) string {
	description := r.Description
	if description == "" {
		description = "Sin descripción"
	}
	return "✅ <b>¡Reserva creada exitosamente!</b>\n\n" +
		fmt.Sprintf("🏛️ <b>Auditorio:</b> %s\n", esc(roomLabel(r))) +
		fmt.Sprintf("🎯 <b>Evento:</b> %s\n", esc(r.Title)) +
		fmt.Sprintf("📅 <b>Fecha:</b> %s\n", dialogDate(r.Date)) +
		fmt.Sprintf("⏰ <b>Horario:</b> %s\n", window(r)) +
		fmt.Sprintf("📝 <b>Descripción:</b> %s\n\n", esc(description)) +
		"Usa /start para volver al menú principal."
}

func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	r := []rune(s)
	return string(r[:max-1]) + "…"
}

func esc(s string) string {
	return html.EscapeString(s)
}
