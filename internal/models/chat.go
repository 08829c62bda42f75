package models

import "time"

type GroupMessage struct {
	ID        int       `json:"id"`
	GroupID   int       `json:"group_id"`
	UserID    int       `json:"user_id"`
	Content   string    `json:"content"`
	ImageURL  *string   `json:"image_url,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// GroupMember is one row of a group's member list; IsOnline comes from presence, not storage.
type GroupMember struct {
	UserID         int       `json:"user_id"`
	Username       string    `json:"username"`
	ProfilePicture *string   `json:"profile_picture"`
	Role           string    `json:"role"`
	JoinedAt       time.Time `json:"joined_at"`
	IsOnline       bool      `json:"is_online"`
}

type Conversation struct {
	ID        int       `json:"id"`
	User1ID   int       `json:"user1_id"`
	User2ID   int       `json:"user2_id"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HasParticipant reports whether userID is one of the two sides of the conversation.
func (c *Conversation) HasParticipant(userID int) bool {
	return c.User1ID == userID || c.User2ID == userID
}

type DirectMessage struct {
	ID             int       `json:"id"`
	ConversationID int       `json:"conversation_id"`
	SenderID       int       `json:"sender_id"`
	Content        string    `json:"content"`
	ImageURL       *string   `json:"image_url,omitempty"`
	IsRead         bool      `json:"is_read"`
	CreatedAt      time.Time `json:"created_at"`
}

type SendMessageRequest struct {
	Content  string  `json:"content" validate:"max=4000"`
	ImageURL *string `json:"image_url,omitempty" validate:"omitempty,max=500"`
}
