package database

import (
	"context"
	"errors"
	"fmt"

	"encore-realtime/internal/models"
	"encore-realtime/pkg/logger"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresDB struct {
	pool *pgxpool.Pool
}

func NewPostgresDB(ctx context.Context, databaseURL string) (*PostgresDB, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Test connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("Connected to database successfully")
	return &PostgresDB{pool: pool}, nil
}

func (db *PostgresDB) Ping(ctx context.Context) error {
	return db.pool.Ping(ctx)
}

func (db *PostgresDB) Close() error {
	db.pool.Close()
	return nil
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

// User Repository Implementation
const userColumns = `id, username, email, profile_picture, is_active, created_at`

func scanUser(row pgx.Row) (*models.User, error) {
	user := &models.User{}
	err := row.Scan(&user.ID, &user.Username, &user.Email, &user.ProfilePicture, &user.IsActive, &user.CreatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return user, nil
}

func (db *PostgresDB) GetUserByID(ctx context.Context, id int) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return scanUser(db.pool.QueryRow(ctx, query, id))
}

func (db *PostgresDB) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE username = $1`
	return scanUser(db.pool.QueryRow(ctx, query, username))
}

func (db *PostgresDB) GetUsersByIDs(ctx context.Context, ids []int) ([]*models.User, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	query := `SELECT ` + userColumns + ` FROM users WHERE id = ANY($1) ORDER BY username`
	rows, err := db.pool.Query(ctx, query, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []*models.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}

	return users, rows.Err()
}

// Group Repository Implementation
func (db *PostgresDB) IsGroupMember(ctx context.Context, userID, groupID int) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM group_members WHERE user_id = $1 AND group_id = $2)`

	var exists bool
	err := db.pool.QueryRow(ctx, query, userID, groupID).Scan(&exists)
	return exists, err
}

func (db *PostgresDB) ListGroupMembers(ctx context.Context, groupID int) ([]*models.GroupMember, error) {
	query := `
		SELECT u.id, u.username, u.profile_picture, gm.role, gm.joined_at
		FROM group_members gm
		JOIN users u ON u.id = gm.user_id
		WHERE gm.group_id = $1
		ORDER BY gm.joined_at`

	rows, err := db.pool.Query(ctx, query, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []*models.GroupMember
	for rows.Next() {
		m := &models.GroupMember{}
		if err := rows.Scan(&m.UserID, &m.Username, &m.ProfilePicture, &m.Role, &m.JoinedAt); err != nil {
			return nil, err
		}
		members = append(members, m)
	}

	return members, rows.Err()
}

func (db *PostgresDB) SaveGroupMessage(ctx context.Context, groupID, userID int, content string, imageURL *string) (*models.GroupMessage, error) {
	query := `
		INSERT INTO group_messages (group_id, user_id, content, image_url, created_at)
		VALUES ($1, $2, $3, $4, NOW())
		RETURNING id, group_id, user_id, content, image_url, created_at`

	msg := &models.GroupMessage{}
	err := db.pool.QueryRow(ctx, query, groupID, userID, content, imageURL).Scan(
		&msg.ID, &msg.GroupID, &msg.UserID, &msg.Content, &msg.ImageURL, &msg.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to save group message: %w", err)
	}

	return msg, nil
}

// Conversation Repository Implementation
func (db *PostgresDB) GetConversation(ctx context.Context, id int) (*models.Conversation, error) {
	query := `SELECT id, user1_id, user2_id, updated_at FROM conversations WHERE id = $1`

	conv := &models.Conversation{}
	err := db.pool.QueryRow(ctx, query, id).Scan(&conv.ID, &conv.User1ID, &conv.User2ID, &conv.UpdatedAt)
	if err != nil {
		return nil, notFound(err)
	}

	return conv, nil
}

func (db *PostgresDB) SaveDirectMessage(ctx context.Context, conversationID, senderID int, content string, imageURL *string) (*models.DirectMessage, error) {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO direct_messages (conversation_id, sender_id, content, image_url, is_read, created_at)
		VALUES ($1, $2, $3, $4, false, NOW())
		RETURNING id, conversation_id, sender_id, content, image_url, is_read, created_at`

	msg := &models.DirectMessage{}
	err = tx.QueryRow(ctx, query, conversationID, senderID, content, imageURL).Scan(
		&msg.ID, &msg.ConversationID, &msg.SenderID, &msg.Content, &msg.ImageURL, &msg.IsRead, &msg.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to save direct message: %w", err)
	}

	// Keep the conversation list ordered by latest activity
	if _, err := tx.Exec(ctx, `UPDATE conversations SET updated_at = NOW() WHERE id = $1`, conversationID); err != nil {
		return nil, fmt.Errorf("failed to touch conversation: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return msg, nil
}

func (db *PostgresDB) MarkMessagesRead(ctx context.Context, conversationID, readerID int) (int64, error) {
	query := `
		UPDATE direct_messages SET is_read = true
		WHERE conversation_id = $1 AND sender_id <> $2 AND is_read = false`

	tag, err := db.pool.Exec(ctx, query, conversationID, readerID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// Notification Repository Implementation
func (db *PostgresDB) CreateNotification(ctx context.Context, n *models.Notification) (*models.Notification, error) {
	query := `
		INSERT INTO notifications
			(recipient_id, actor_id, notification_type, message, review_id, comment_id, group_invite_id, is_read, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, false, NOW())
		RETURNING id, is_read, created_at`

	saved := *n
	err := db.pool.QueryRow(ctx, query,
		n.RecipientID, n.ActorID, string(n.NotificationType), n.Message, n.ReviewID, n.CommentID, n.GroupInviteID,
	).Scan(&saved.ID, &saved.IsRead, &saved.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create notification: %w", err)
	}

	return &saved, nil
}
