package service

import (
	"context"

	"auditorium/internal/domain"
	"auditorium/internal/models"

	"github.com/rs/zerolog"
)

var _ domain.UserService = (*UserService)(nil)

type UserService struct {
	repo        domain.UserRepository
	logger      *zerolog.Logger
	managersMap map[int64]bool
}

func NewUserService(repo domain.UserRepository, managers []int64, logger *zerolog.Logger) *UserService {
	managersMap := make(map[int64]bool, len(managers))
	for _, id := range managers {
		managersMap[id] = true
	}
	return &UserService{
		repo:        repo,
		logger:      logger,
		managersMap: managersMap,
	}
}

func (s *UserService) IsManager(telegramID int64) bool {
	return s.managersMap[telegramID]
}

// EnsureUser registers the caller on first contact; known callers are left as stored.
func (s *UserService) EnsureUser(ctx context.Context, user *models.User) error {
	if err := s.repo.UpsertUser(ctx, user); err != nil {
		s.logger.Error().Err(err).Int64("telegram_id", user.TelegramID).Msg("Failed to register user")
		return err
	}
	return nil
}

func (s *UserService) GetUser(ctx context.Context, telegramID int64) (*models.User, error) {
	return s.repo.GetUserByTelegramID(ctx, telegramID)
}
