package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"encore-realtime/internal/database"
	"encore-realtime/internal/models"
)

var ErrEmptyMessage = errors.New("message has no content")

// ChatService is the membership and persistence collaborator of the chat
// sockets: admission checks run once at connect time, and messages are
// saved here before anything is broadcast.
type ChatService struct {
	db database.Database
}

func NewChatService(db database.Database) *ChatService {
	return &ChatService{db: db}
}

func (s *ChatService) CanJoinGroup(ctx context.Context, userID, groupID int) (bool, error) {
	return s.db.IsGroupMember(ctx, userID, groupID)
}

// GroupMembers lists every member of groupID in join order. IsOnline is left
// for the caller, which owns presence.
func (s *ChatService) GroupMembers(ctx context.Context, groupID int) ([]*models.GroupMember, error) {
	members, err := s.db.ListGroupMembers(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("list group members: %w", err)
	}
	if members == nil {
		members = []*models.GroupMember{}
	}
	return members, nil
}

func (s *ChatService) CanJoinConversation(ctx context.Context, userID, conversationID int) (bool, error) {
	conv, err := s.db.GetConversation(ctx, conversationID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return conv.HasParticipant(userID), nil
}

func (s *ChatService) SaveGroupMessage(ctx context.Context, groupID, userID int, content string, imageURL *string) (*models.GroupMessage, error) {
	content = strings.TrimSpace(content)
	imageURL = normalizeImageURL(imageURL)
	if content == "" && imageURL == nil {
		return nil, ErrEmptyMessage
	}

	msg, err := s.db.SaveGroupMessage(ctx, groupID, userID, content, imageURL)
	if err != nil {
		return nil, fmt.Errorf("save group message: %w", err)
	}
	return msg, nil
}

func (s *ChatService) SaveDirectMessage(ctx context.Context, conversationID, senderID int, content string, imageURL *string) (*models.DirectMessage, error) {
	content = strings.TrimSpace(content)
	imageURL = normalizeImageURL(imageURL)
	if content == "" && imageURL == nil {
		return nil, ErrEmptyMessage
	}

	msg, err := s.db.SaveDirectMessage(ctx, conversationID, senderID, content, imageURL)
	if err != nil {
		return nil, fmt.Errorf("save direct message: %w", err)
	}
	return msg, nil
}

// MarkConversationRead marks the other participant's messages as read by readerID.
func (s *ChatService) MarkConversationRead(ctx context.Context, conversationID, readerID int) error {
	if _, err := s.db.MarkMessagesRead(ctx, conversationID, readerID); err != nil {
		return fmt.Errorf("mark conversation read: %w", err)
	}
	return nil
}

// Profiles resolves public profiles for ids, preserving the order of ids.
func (s *ChatService) Profiles(ctx context.Context, ids []int) ([]models.UserProfile, error) {
	if len(ids) == 0 {
		return []models.UserProfile{}, nil
	}

	users, err := s.db.GetUsersByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load profiles: %w", err)
	}

	byID := make(map[int]*models.User, len(users))
	for _, u := range users {
		byID[u.ID] = u
	}

	profiles := make([]models.UserProfile, 0, len(ids))
	for _, id := range ids {
		if u, ok := byID[id]; ok {
			profiles = append(profiles, u.Profile())
		}
	}
	return profiles, nil
}

func normalizeImageURL(imageURL *string) *string {
	if imageURL == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*imageURL)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
