package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"focuschat/internal/models"
)

type MessageRepositoryMock struct {
	mock.Mock
}

func (m *MessageRepositoryMock) InsertMessage(ctx context.Context, msg models.ChatMessage) (models.ChatMessage, error) {
	args := m.Called(ctx, msg)
	var stored models.ChatMessage
	if val := args.Get(0); val != nil {
		stored = val.(models.ChatMessage)
	}
	return stored, args.Error(1)
}

func (m *MessageRepositoryMock) GetMessage(ctx context.Context, messageID string) (models.ChatMessage, error) {
	args := m.Called(ctx, messageID)
	var msg models.ChatMessage
	if val := args.Get(0); val != nil {
		msg = val.(models.ChatMessage)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) SoftDeleteMessage(ctx context.Context, messageID string) error {
	args := m.Called(ctx, messageID)
	return args.Error(0)
}

func (m *MessageRepositoryMock) FetchRecentMessages(ctx context.Context, channelID string, limit int) ([]models.ChatMessage, error) {
	args := m.Called(ctx, channelID, limit)
	var msgs []models.ChatMessage
	if val := args.Get(0); val != nil {
		msgs = val.([]models.ChatMessage)
	}
	return msgs, args.Error(1)
}

type BanRepositoryMock struct {
	mock.Mock
}

func (m *BanRepositoryMock) InsertBan(ctx context.Context, ban models.Ban) (models.Ban, error) {
	args := m.Called(ctx, ban)
	var stored models.Ban
	if val := args.Get(0); val != nil {
		stored = val.(models.Ban)
	}
	return stored, args.Error(1)
}

func (m *BanRepositoryMock) DeleteBan(ctx context.Context, banID string) error {
	args := m.Called(ctx, banID)
	return args.Error(0)
}

func (m *BanRepositoryMock) FetchActiveBan(ctx context.Context, userID string) (*models.Ban, error) {
	args := m.Called(ctx, userID)
	var ban *models.Ban
	if val := args.Get(0); val != nil {
		ban = val.(*models.Ban)
	}
	return ban, args.Error(1)
}

type RoleRepositoryMock struct {
	mock.Mock
}

func (m *RoleRepositoryMock) FetchRole(ctx context.Context, userID string) (models.Role, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(models.Role), args.Error(1)
}
