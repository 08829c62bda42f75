package models

type MessageType string

const (
	MessageTypeMessage     MessageType = "message"
	MessageTypeTyping      MessageType = "typing"
	MessageTypeRead        MessageType = "read"
	MessageTypePing        MessageType = "ping"
	MessageTypePong        MessageType = "pong"
	MessageTypeUserJoined  MessageType = "user_joined"
	MessageTypeUserLeft    MessageType = "user_left"
	MessageTypeOnlineUsers MessageType = "online_users"
)

// InboundFrame is a client -> server frame on a chat socket.
// An absent type means "message".
type InboundFrame struct {
	Type     MessageType `json:"type"`
	Content  string      `json:"content"`
	ImageURL *string     `json:"image_url"`
}

// WebSocketMessage is a server -> client frame. Fields not relevant to
// Type are left zero and omitted.
type WebSocketMessage struct {
	Type           MessageType `json:"type"`
	Content        string      `json:"content,omitempty"`
	ImageURL       *string     `json:"image_url,omitempty"`
	UserID         int         `json:"user_id,omitempty"`
	SenderID       int         `json:"sender_id,omitempty"`
	Username       string      `json:"username,omitempty"`
	ProfilePicture *string     `json:"profile_picture,omitempty"`
	MessageID      int         `json:"message_id,omitempty"`
	Timestamp      string      `json:"timestamp,omitempty"`
}

// OnlineUsersMessage is the roster snapshot sent to a connection right after it joins.
type OnlineUsersMessage struct {
	Type        MessageType   `json:"type"`
	OnlineUsers []UserProfile `json:"online_users"`
}
