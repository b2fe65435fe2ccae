package bot

import (
	"context"
	"errors"
	"os"
	"time"

	"auditorium/internal/config"
	"auditorium/internal/conversation"
	"auditorium/internal/domain"
	"auditorium/internal/models"
	"auditorium/internal/service"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const defaultUpdateTimeout = 30 * time.Second

// SheetsMirror rewrites the spreadsheet copy of the reservations.
type SheetsMirror interface {
	ReplaceReservationsSheet(ctx context.Context, rs []*models.Reservation) error
}

type Bot struct {
	tgService    domain.TelegramService
	config       *config.Config
	sessions     domain.SessionRepository
	dialog       *conversation.Machine
	reservations domain.ReservationService
	queries      domain.QueryService
	userService  domain.UserService
	sheets       SheetsMirror
	metrics      *Metrics
	logger       *zerolog.Logger
}

func NewBot(
	tgService domain.TelegramService,
	config *config.Config,
	sessions domain.SessionRepository,
	dialog *conversation.Machine,
	reservations domain.ReservationService,
	queries domain.QueryService,
	userService domain.UserService,
	sheets SheetsMirror,
	metrics *Metrics,
	logger *zerolog.Logger,
) (*Bot, error) {
	if tgService == nil || dialog == nil || reservations == nil || queries == nil || userService == nil {
		return nil, errors.New("bot: telegram, dialog, reservation, query and user services are required")
	}

	if logger == nil {
		l := zerolog.New(os.Stdout).With().Timestamp().Logger()
		logger = &l
	}

	return &Bot{
		tgService:    tgService,
		config:       config,
		sessions:     sessions,
		dialog:       dialog,
		reservations: reservations,
		queries:      queries,
		userService:  userService,
		sheets:       sheets,
		metrics:      metrics,
		logger:       logger,
	}, nil
}

// Start polls Telegram until ctx is cancelled.
func (b *Bot) Start(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.tgService.GetUpdatesChan(u)

	b.logger.Info().Str("username", b.tgService.GetSelf().UserName).Msg("Authorized on account")

	for {
		select {
		case <-ctx.Done():
			b.logger.Info().Msg("Bot stopping...")
			b.tgService.StopReceivingUpdates()
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			b.processUpdate(ctx, update)
		}
	}
}

func (b *Bot) processUpdate(ctx context.Context, update tgbotapi.Update) {
	start := time.Now()
	defer func() {
		if b.metrics != nil {
			b.metrics.UpdateProcessingTime.Observe(time.Since(start).Seconds())
		}
	}()

	timeout := time.Duration(b.config.Bot.UpdateTimeout) * time.Second
	if timeout <= 0 {
		timeout = defaultUpdateTimeout
	}
	updateCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	l := b.logger.With().Str("request_id", uuid.NewString()).Logger()
	updateCtx = service.WithSource(l.WithContext(updateCtx), "bot")

	b.withRecovery(func() {
		userID := senderID(update)
		if userID == 0 {
			return
		}

		if !b.allow(updateCtx, update, userID) {
			return
		}

		switch {
		case update.CallbackQuery != nil:
			b.countUpdate("callback")
			b.handleCallbackQuery(updateCtx, update.CallbackQuery)
		case update.Message != nil:
			b.countUpdate("message")
			b.handleMessage(updateCtx, update.Message)
		}
	})
}

func senderID(update tgbotapi.Update) int64 {
	switch {
	case update.CallbackQuery != nil && update.CallbackQuery.From != nil:
		return update.CallbackQuery.From.ID
	case update.Message != nil && update.Message.From != nil:
		return update.Message.From.ID
	}
	return 0
}

func (b *Bot) isManager(userID int64) bool {
	return b.userService.IsManager(userID)
}

func (b *Bot) countUpdate(kind string) {
	if b.metrics != nil {
		b.metrics.UpdatesTotal.WithLabelValues(kind).Inc()
	}
}
