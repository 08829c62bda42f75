package database

import (
	"context"
	"errors"

	"encore-realtime/internal/models"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("database: not found")

type UserRepository interface {
	GetUserByID(ctx context.Context, id int) (*models.User, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	GetUsersByIDs(ctx context.Context, ids []int) ([]*models.User, error)
}

type GroupRepository interface {
	IsGroupMember(ctx context.Context, userID, groupID int) (bool, error)
	ListGroupMembers(ctx context.Context, groupID int) ([]*models.GroupMember, error)
	SaveGroupMessage(ctx context.Context, groupID, userID int, content string, imageURL *string) (*models.GroupMessage, error)
}

type ConversationRepository interface {
	GetConversation(ctx context.Context, id int) (*models.Conversation, error)
	SaveDirectMessage(ctx context.Context, conversationID, senderID int, content string, imageURL *string) (*models.DirectMessage, error)
	MarkMessagesRead(ctx context.Context, conversationID, readerID int) (int64, error)
}

type NotificationRepository interface {
	CreateNotification(ctx context.Context, n *models.Notification) (*models.Notification, error)
}

type Database interface {
	UserRepository
	GroupRepository
	ConversationRepository
	NotificationRepository
	Ping(ctx context.Context) error
	Close() error
}
