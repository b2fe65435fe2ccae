package domain

import (
	"context"
	"time"

	"auditorium/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

type RoomRepository interface {
	GetActiveRooms(ctx context.Context) ([]*models.Room, error)
	// GetRoomByID returns ErrNotFound for missing and inactive rooms.
	GetRoomByID(ctx context.Context, id int64) (*models.Room, error)
	UpsertRoom(ctx context.Context, room *models.Room) error
	DeactivateRoom(ctx context.Context, id int64) error
}

type ReservationRepository interface {
	// CreateReservation checks availability and inserts as one atomic step.
	CreateReservation(ctx context.Context, r *models.Reservation) error
	CancelReservation(ctx context.Context, id, ownerID int64) (*models.Reservation, error)
	GetReservation(ctx context.Context, id int64) (*models.Reservation, error)
	ListReservationsByRoom(ctx context.Context, roomID int64, date *time.Time) ([]*models.Reservation, error)
	ListReservationsByUser(ctx context.Context, ownerID int64) ([]*models.Reservation, error)
	ListReservationsInRange(ctx context.Context, roomID int64, from, to time.Time) ([]*models.Reservation, error)
}

type UserRepository interface {
	// UpsertUser creates the user once; repeated calls for a known identity succeed without changes.
	UpsertUser(ctx context.Context, user *models.User) error
	GetUserByTelegramID(ctx context.Context, telegramID int64) (*models.User, error)
}

type Repository interface {
	RoomRepository
	ReservationRepository
	UserRepository
}

type SessionRepository interface {
	GetSession(ctx context.Context, callerID int64) (*models.Session, error)
	SaveSession(ctx context.Context, session *models.Session) error
	DeleteSession(ctx context.Context, callerID int64) error
	CheckRateLimit(ctx context.Context, userID int64, limit int, window time.Duration) (bool, error)
}

type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

type TelegramSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	GetSelf() tgbotapi.User
	StopReceivingUpdates()
}

// TelegramService is what the bot needs from Telegram. Texts are HTML.
type TelegramService interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	SendHTML(chatID int64, text string, keyboard *tgbotapi.InlineKeyboardMarkup) (tgbotapi.Message, error)
	EditHTML(chatID int64, messageID int, text string, keyboard *tgbotapi.InlineKeyboardMarkup) (tgbotapi.Message, error)
	SendDocument(chatID int64, name string, data []byte, caption string) (tgbotapi.Message, error)
	AnswerCallback(callbackID string, text string) error
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	GetSelf() tgbotapi.User
	StopReceivingUpdates()
}

type SyncWorker interface {
	EnqueueTask(ctx context.Context, taskType string, reservation *models.Reservation) error
}

type ReservationService interface {
	Create(ctx context.Context, r *models.Reservation) error
	Cancel(ctx context.Context, id, ownerID int64) (*models.Reservation, error)
}

type QueryService interface {
	// Today is the current calendar day in the configured zone.
	Today() time.Time
	ListRooms(ctx context.Context) ([]*models.Room, error)
	GetRoom(ctx context.Context, id int64) (*models.Room, error)
	RoomEvents(ctx context.Context, roomID int64, date *time.Time) ([]*models.Reservation, error)
	TodayEvents(ctx context.Context, roomID int64) ([]*models.Reservation, error)
	UpcomingRoomEvents(ctx context.Context, roomID int64, limit int) ([]*models.Reservation, error)
	CheckAvailability(ctx context.Context, roomID int64, date time.Time, start, end models.TimeOfDay) (bool, error)
	UserEvents(ctx context.Context, ownerID int64) ([]*models.Reservation, error)
	Schedule(ctx context.Context, roomID int64, from, to time.Time) ([]*models.Reservation, error)
}

type UserService interface {
	EnsureUser(ctx context.Context, user *models.User) error
	IsManager(telegramID int64) bool
}
