package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"encore-realtime/internal/database"
	"encore-realtime/internal/models"
	"encore-realtime/internal/notify"
	"encore-realtime/internal/services"
	ws "encore-realtime/internal/websocket"
	"encore-realtime/pkg/logger"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

func init() {
	logger.Init(logger.Config{Level: "error", Output: io.Discard})
}

var sentAt = time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)

// logSink collects log lines written from server goroutines.
type logSink struct {
	mu  sync.Mutex
	buf strings.Builder
}

func (s *logSink) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Write(p)
}

// entries returns the decoded JSON log lines whose message is msg.
func (s *logSink) entries(t *testing.T, msg string) []map[string]any {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(s.buf.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		if entry["message"] == msg {
			out = append(out, entry)
		}
	}
	return out
}

func captureLogs(t *testing.T) *logSink {
	t.Helper()
	sink := &logSink{}
	logger.Init(logger.Config{Level: "info", Output: sink})
	t.Cleanup(func() { logger.Init(logger.Config{Level: "error", Output: io.Discard}) })
	return sink
}

type fakeAuth struct {
	tokens map[string]*models.User
}

func (a *fakeAuth) GetUserFromToken(_ context.Context, token string) (*models.User, error) {
	if u, ok := a.tokens[token]; ok {
		return u, nil
	}
	return nil, errors.New("invalid token")
}

// fakeChat implements GroupChat and DirectChat in memory.
type fakeChat struct {
	mu            sync.Mutex
	users         map[int]*models.User
	groups        map[int][]int
	conversations map[int][2]int
	nextID        int
	reads         [][2]int
	saved         []string
}

func (c *fakeChat) CanJoinGroup(_ context.Context, userID, groupID int) (bool, error) {
	for _, id := range c.groups[groupID] {
		if id == userID {
			return true, nil
		}
	}
	return false, nil
}

func (c *fakeChat) GroupMembers(_ context.Context, groupID int) ([]*models.GroupMember, error) {
	members := make([]*models.GroupMember, 0, len(c.groups[groupID]))
	for i, id := range c.groups[groupID] {
		u := c.users[id]
		members = append(members, &models.GroupMember{
			UserID:   u.ID,
			Username: u.Username,
			Role:     "member",
			JoinedAt: sentAt.Add(time.Duration(i) * time.Minute),
		})
	}
	return members, nil
}

func (c *fakeChat) CanJoinConversation(_ context.Context, userID, conversationID int) (bool, error) {
	pair, ok := c.conversations[conversationID]
	return ok && (pair[0] == userID || pair[1] == userID), nil
}

func (c *fakeChat) SaveGroupMessage(_ context.Context, groupID, userID int, content string, imageURL *string) (*models.GroupMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if strings.TrimSpace(content) == "" && imageURL == nil {
		return nil, services.ErrEmptyMessage
	}
	c.nextID++
	c.saved = append(c.saved, content)
	return &models.GroupMessage{ID: c.nextID, GroupID: groupID, UserID: userID, Content: content, ImageURL: imageURL, CreatedAt: sentAt}, nil
}

func (c *fakeChat) SaveDirectMessage(_ context.Context, conversationID, senderID int, content string, imageURL *string) (*models.DirectMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if strings.TrimSpace(content) == "" && imageURL == nil {
		return nil, services.ErrEmptyMessage
	}
	c.nextID++
	c.saved = append(c.saved, content)
	return &models.DirectMessage{ID: c.nextID, ConversationID: conversationID, SenderID: senderID, Content: content, CreatedAt: sentAt}, nil
}

func (c *fakeChat) MarkConversationRead(_ context.Context, conversationID, readerID int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reads = append(c.reads, [2]int{conversationID, readerID})
	return nil
}

func (c *fakeChat) readMarks() [][2]int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][2]int(nil), c.reads...)
}

func (c *fakeChat) Profiles(_ context.Context, ids []int) ([]models.UserProfile, error) {
	out := make([]models.UserProfile, 0, len(ids))
	for _, id := range ids {
		if u, ok := c.users[id]; ok {
			out = append(out, u.Profile())
		}
	}
	return out, nil
}

type fakeNotificationRepo struct {
	mu     sync.Mutex
	nextID int
}

func (r *fakeNotificationRepo) CreateNotification(_ context.Context, n *models.Notification) (*models.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	saved := *n
	saved.ID = r.nextID
	saved.CreatedAt = sentAt
	return &saved, nil
}

var _ database.NotificationRepository = (*fakeNotificationRepo)(nil)

type testEnv struct {
	server        *httptest.Server
	chat          *fakeChat
	groupRegistry *ws.Registry
	dmRegistry    *ws.Registry
	fanout        *notify.Fanout
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	users := make(map[int]*models.User)
	tokens := make(map[string]*models.User)
	for id, name := range map[int]string{1: "ana", 2: "bo", 3: "cy", 4: "di", 5: "ed"} {
		u := &models.User{ID: id, Username: name, IsActive: true}
		users[id] = u
		tokens["tok-"+name] = u
	}

	env := &testEnv{
		chat: &fakeChat{
			users:         users,
			groups:        map[int][]int{42: {1, 2, 3, 4}},
			conversations: map[int][2]int{9: {1, 2}},
			nextID:        500,
		},
		groupRegistry: ws.NewRegistry("group"),
		dmRegistry:    ws.NewRegistry("dm"),
		fanout:        notify.NewFanout(0),
	}

	auth := &fakeAuth{tokens: tokens}
	opts := ws.DefaultClientOptions()
	opts.FrameRate = 0
	origins := []string{"http://localhost:5173"}

	group := NewGroupChatHandlers(auth, env.chat, env.groupRegistry, opts, origins)
	dm := NewDMChatHandlers(auth, env.chat, env.dmRegistry, opts, origins)
	notifier := services.NewNotificationService(&fakeNotificationRepo{}, env.fanout)
	notifications := NewNotificationHandlers(auth, env.fanout, notifier, 50*time.Millisecond)

	r := chi.NewRouter()
	r.Get("/ws/group/{id}", group.HandleWebSocket)
	r.Get("/ws/dm/{id}", dm.HandleWebSocket)
	r.Get("/api/v1/feed/notifications/stream", notifications.Stream)
	r.Group(func(r chi.Router) {
		r.Use(RequireUser(auth))
		r.Get("/api/v1/groups/{id}/online", group.OnlineMembers)
		r.Get("/api/v1/groups/{id}/members", group.Members)
		r.Post("/api/v1/groups/{id}/messages", group.PostMessage)
		r.Post("/api/v1/conversations/{id}/messages", dm.PostMessage)
		r.Post("/api/v1/notifications", notifications.Create)
	})

	env.server = httptest.NewServer(r)
	t.Cleanup(func() {
		env.fanout.Close()
		env.server.Close()
	})
	return env
}

func (e *testEnv) dial(t *testing.T, path, token string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(e.server.URL, "http") + path + "?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

// joinGroup connects token to group 42 and waits for its roster, which is
// sent only after the connection is registered.
func (e *testEnv) joinGroup(t *testing.T, token string) *websocket.Conn {
	t.Helper()
	conn := e.dial(t, "/ws/group/42", token)
	readUntil(t, conn, "online_users")
	return conn
}

func (e *testEnv) request(t *testing.T, method, path, token, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, e.server.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

type frame map[string]any

func readFrame(t *testing.T, conn *websocket.Conn) frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var f frame
	require.NoError(t, json.Unmarshal(data, &f))
	return f
}

// readUntil reads frames until one of type typ arrives and returns it along
// with the frames skipped on the way.
func readUntil(t *testing.T, conn *websocket.Conn, typ string) (frame, []frame) {
	t.Helper()
	var skipped []frame
	for {
		f := readFrame(t, conn)
		if f["type"] == typ {
			return f, skipped
		}
		skipped = append(skipped, f)
	}
}

func writeFrame(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(v))
}

func closeCode(t *testing.T, conn *websocket.Conn) int {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()

	var closeErr *websocket.CloseError
	require.ErrorAs(t, err, &closeErr)
	return closeErr.Code
}
