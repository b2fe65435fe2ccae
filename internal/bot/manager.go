package bot

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"auditorium/internal/export"
	"auditorium/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

const maxExportDays = 92

// handleManagerCommand runs manager-only commands. It reports false for
// commands it does not know.
func (b *Bot) handleManagerCommand(ctx context.Context, msg *tgbotapi.Message) bool {
	switch msg.Command() {
	case "export":
		b.handleExport(ctx, msg)
	case "stats":
		b.handleStats(ctx, msg)
	case "sync":
		b.handleSync(ctx, msg)
	default:
		return false
	}
	return true
}

// exportDays reads the optional day count argument of /export.
func (b *Bot) exportDays(args string) (int, error) {
	days := b.config.Exports.Days
	if args = strings.TrimSpace(args); args != "" {
		n, err := strconv.Atoi(args)
		if err != nil || n <= 0 {
			return 0, fmt.Errorf("invalid day count %q", args)
		}
		days = n
	}
	if days <= 0 {
		days = models.DefaultExportDays
	}
	if days > maxExportDays {
		days = maxExportDays
	}
	return days, nil
}

// collectSchedule loads the active rooms and every reservation in [from, to].
func (b *Bot) collectSchedule(ctx context.Context, from, to time.Time) ([]*models.Room, []*models.Reservation, error) {
	rooms, err := b.queries.ListRooms(ctx)
	if err != nil {
		return nil, nil, err
	}
	reservations, err := b.queries.Schedule(ctx, 0, from, to)
	if err != nil {
		return nil, nil, err
	}
	return rooms, reservations, nil
}

func (b *Bot) handleExport(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	days, err := b.exportDays(msg.CommandArguments())
	if err != nil {
		b.send(chatID, "Uso: /export [días]")
		return
	}

	from := b.queries.Today()
	to := from.AddDate(0, 0, days-1)
	rooms, reservations, err := b.collectSchedule(ctx, from, to)
	if err != nil {
		b.fail(ctx, chatID, 0, err, BackToMenu{})
		return
	}

	schedule := &export.Schedule{From: from, To: to, Rooms: rooms, Reservations: reservations}
	path, err := schedule.SaveTo(b.config.Exports.Path)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("Export failed")
		b.send(chatID, "❌ No se pudo generar la agenda.")
		return
	}
	data, err := os.ReadFile(path)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Str("path", path).Msg("Export file unreadable")
		b.send(chatID, "❌ No se pudo generar la agenda.")
		return
	}

	caption := fmt.Sprintf("📊 Agenda del %s al %s (%d reservas)", dialogDate(from), dialogDate(to), len(reservations))
	if _, err := b.tgService.SendDocument(chatID, filepath.Base(path), data, caption); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("Failed to send export")
		return
	}
	zerolog.Ctx(ctx).Info().Str("path", path).Int("reservations", len(reservations)).Msg("Schedule exported")
}

func (b *Bot) handleStats(ctx context.Context, msg *tgbotapi.Message) {
	days, _ := b.exportDays("")
	from := b.queries.Today()
	to := from.AddDate(0, 0, days-1)
	rooms, reservations, err := b.collectSchedule(ctx, from, to)
	if err != nil {
		b.fail(ctx, msg.Chat.ID, 0, err, BackToMenu{})
		return
	}

	count := make(map[int64]int, len(rooms))
	minutes := make(map[int64]int, len(rooms))
	for _, r := range reservations {
		count[r.RoomID]++
		minutes[r.RoomID] += int(r.End - r.Start)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "📊 <b>Reservas de los próximos %d días</b>\n\n", days)
	for _, room := range rooms {
		fmt.Fprintf(&sb, "🏛️ %s: %d reservas, %dh%02d\n",
			esc(room.Name), count[room.ID], minutes[room.ID]/60, minutes[room.ID]%60)
	}
	fmt.Fprintf(&sb, "\nTotal: %d reservas", len(reservations))
	b.send(msg.Chat.ID, sb.String())
}

// handleSync rewrites the spreadsheet with every reservation from today to the booking horizon.
func (b *Bot) handleSync(ctx context.Context, msg *tgbotapi.Message) {
	if b.sheets == nil {
		b.send(msg.Chat.ID, "Google Sheets no está configurado.")
		return
	}

	from := b.queries.Today()
	to := from.AddDate(0, 0, b.config.Booking.MaxDaysAhead)
	_, reservations, err := b.collectSchedule(ctx, from, to)
	if err != nil {
		b.fail(ctx, msg.Chat.ID, 0, err, BackToMenu{})
		return
	}
	if err := b.sheets.ReplaceReservationsSheet(ctx, reservations); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("Sheets sync failed")
		b.send(msg.Chat.ID, "❌ Error al sincronizar con Google Sheets.")
		return
	}
	b.send(msg.Chat.ID, fmt.Sprintf("✅ Sincronizadas %d reservas con Google Sheets.", len(reservations)))
}
