package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"encore-realtime/internal/cache"
	"encore-realtime/internal/database"
	"encore-realtime/internal/models"
	"encore-realtime/pkg/logger"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid or expired token")
	ErrInactiveUser = errors.New("user is inactive")
)

const tokenTypeAccess = "access"

// Claims are the access-token claims. Subject carries the username;
// UserID is present on newer tokens and lets lookups skip the username index.
type Claims struct {
	UserID int    `json:"user_id,omitempty"`
	Type   string `json:"type"`
	jwt.RegisteredClaims
}

type Service struct {
	users    database.UserRepository
	cache    cache.JSONCache
	secret   []byte
	cacheTTL time.Duration
}

func NewService(users database.UserRepository, userCache cache.JSONCache, secret []byte, cacheTTL time.Duration) *Service {
	if userCache == nil {
		userCache = cache.Noop{}
	}
	return &Service{
		users:    users,
		cache:    userCache,
		secret:   secret,
		cacheTTL: cacheTTL,
	}
}

func (s *Service) ValidateToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}

	if claims.Type != tokenTypeAccess || claims.Subject == "" {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

// GetUserFromToken validates tokenString and resolves its active user,
// consulting the user cache before the database.
func (s *Service) GetUserFromToken(ctx context.Context, tokenString string) (*models.User, error) {
	claims, err := s.ValidateToken(tokenString)
	if err != nil {
		return nil, err
	}

	key := userCacheKey(claims)

	var cached models.User
	if hit, err := s.cache.GetJSON(ctx, key, &cached); err != nil {
		logger.Debug("User cache read failed for %s: %v", key, err)
	} else if hit && cached.IsActive {
		return &cached, nil
	}

	var user *models.User
	if claims.UserID != 0 {
		user, err = s.users.GetUserByID(ctx, claims.UserID)
	} else {
		user, err = s.users.GetUserByUsername(ctx, claims.Subject)
	}
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	if !user.IsActive {
		return nil, ErrInactiveUser
	}

	if err := s.cache.SetJSON(ctx, key, user, s.cacheTTL); err != nil {
		logger.Debug("User cache write failed for %s: %v", key, err)
	}

	return user, nil
}

func userCacheKey(claims *Claims) string {
	if claims.UserID != 0 {
		return "user:auth:" + strconv.Itoa(claims.UserID)
	}
	return "user:auth:name:" + claims.Subject
}
