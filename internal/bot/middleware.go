package bot

import (
	"context"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

const rateLimitText = "⚠️ Estás enviando mensajes demasiado rápido. Por favor, espera un momento."

func (b *Bot) withRecovery(handler func()) {
	defer func() {
		if r := recover(); r != nil {
			if b.metrics != nil {
				b.metrics.ErrorsTotal.Inc()
			}
			b.logger.Error().Interface("panic", r).Msg("Recovered from panic in update handler")
		}
	}()
	handler()
}

// allow applies the per-user message budget. Managers are never limited and a
// failing limiter lets the update through.
func (b *Bot) allow(ctx context.Context, update tgbotapi.Update, userID int64) bool {
	if b.sessions == nil || b.isManager(userID) {
		return true
	}

	window := time.Duration(b.config.Bot.RateLimitWindow) * time.Second
	allowed, err := b.sessions.CheckRateLimit(ctx, userID, b.config.Bot.RateLimitMessages, window)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Int64("user_id", userID).Msg("Rate limit check failed")
		return true
	}
	if allowed {
		return true
	}

	zerolog.Ctx(ctx).Warn().Int64("user_id", userID).Msg("Rate limit exceeded")
	if b.metrics != nil {
		b.metrics.RateLimited.Inc()
	}
	switch {
	case update.CallbackQuery != nil:
		b.answer(update.CallbackQuery.ID, rateLimitText)
	case update.Message != nil:
		b.send(update.Message.Chat.ID, rateLimitText)
	}
	return false
}
