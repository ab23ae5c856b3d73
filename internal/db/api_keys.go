package db

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"go.uber.org/zap"

	"devmarket/internal/apperr"
	"devmarket/internal/model"
)

// APIKeyMarker starts every issued key so leaked credentials are recognizable.
const APIKeyMarker = "dm_"

// APIKeyPrefixLen is the displayed part of a key: the marker plus 8 characters.
const APIKeyPrefixLen = len(APIKeyMarker) + 8

// APIKey is an integration credential. The secret itself is never stored.
type APIKey struct {
	ID         int64      `json:"id"`
	UserID     int64      `json:"user_id"`
	Name       string     `json:"name"`
	KeyPrefix  string     `json:"key_prefix"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
}

// APIKeyWithSecret includes the full key (only returned on creation)
type APIKeyWithSecret struct {
	APIKey
	Key string `json:"key"`
}

// GenerateAPIKey creates a random key, its storage hash and display prefix
func GenerateAPIKey() (key, keyHash, prefix string, err error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", "", "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	key = APIKeyMarker + base64.RawURLEncoding.EncodeToString(b)
	return key, HashAPIKey(key), key[:APIKeyPrefixLen], nil
}

// HashAPIKey returns the hex SHA-256 digest stored in place of the key
func HashAPIKey(key string) string {
	hash := sha256.Sum256([]byte(key))
	return hex.EncodeToString(hash[:])
}

// CreateAPIKey issues a new key for a user
func (db *DB) CreateAPIKey(ctx context.Context, userID int64, name string, expiresAt *time.Time) (*APIKeyWithSecret, error) {
	key, keyHash, prefix, err := GenerateAPIKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate API key: %w", err)
	}

	created := now()
	query, args := db.builder().Insert("api_keys").
		Columns("user_id", "name", "key_hash", "key_prefix", "created_at", "expires_at").
		Values(userID, name, keyHash, prefix, created, nullable(expiresAt)).
		Query()

	var id int64
	if err := db.QueryRowContext(ctx, query+" RETURNING id", args...).Scan(&id); err != nil {
		return nil, fmt.Errorf("failed to insert API key: %w", err)
	}

	return &APIKeyWithSecret{
		APIKey: APIKey{
			ID:        id,
			UserID:    userID,
			Name:      name,
			KeyPrefix: prefix,
			CreatedAt: created,
			ExpiresAt: expiresAt,
		},
		Key: key,
	}, nil
}

// GetAPIKeysByUserID lists a user's keys, newest first
func (db *DB) GetAPIKeysByUserID(ctx context.Context, userID int64) ([]APIKey, error) {
	b := db.builder()
	query, args := b.Select("id", "user_id", "name", "key_prefix", "last_used_at", "created_at", "expires_at").
		From(b.Table("api_keys")).
		Where(entsql.EQ("user_id", userID)).
		OrderBy(entsql.Desc("created_at"), entsql.Desc("id")).
		Query()

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query API keys: %w", err)
	}
	defer rows.Close()

	keys := []APIKey{}
	for rows.Next() {
		var (
			k                 APIKey
			lastUsed, expires sql.NullTime
		)
		if err := rows.Scan(&k.ID, &k.UserID, &k.Name, &k.KeyPrefix, &lastUsed, &k.CreatedAt, &expires); err != nil {
			return nil, fmt.Errorf("failed to scan API key: %w", err)
		}
		k.LastUsedAt = timePtr(lastUsed)
		k.ExpiresAt = timePtr(expires)
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating API keys: %w", err)
	}
	return keys, nil
}

// ValidateAPIKey checks a presented key and returns its owner's id
func (db *DB) ValidateAPIKey(ctx context.Context, key string) (int64, error) {
	if !strings.HasPrefix(key, APIKeyMarker) {
		return 0, apperr.Unauthorized("invalid API key")
	}

	b := db.builder()
	query, args := b.Select("id", "user_id", "expires_at").
		From(b.Table("api_keys")).
		Where(entsql.EQ("key_hash", HashAPIKey(key))).
		Query()

	var (
		id, userID int64
		expires    sql.NullTime
	)
	err := db.QueryRowContext(ctx, query, args...).Scan(&id, &userID, &expires)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, apperr.Unauthorized("invalid API key")
	}
	if err != nil {
		return 0, fmt.Errorf("failed to validate API key: %w", err)
	}
	if expires.Valid && expires.Time.Before(time.Now()) {
		return 0, apperr.Unauthorized("API key expired")
	}

	touch, touchArgs := db.builder().Update("api_keys").
		Set("last_used_at", now()).
		Where(entsql.EQ("id", id)).
		Query()
	if _, err := db.ExecContext(ctx, touch, touchArgs...); err != nil {
		db.logger.Warn("Failed to update API key last_used_at", zap.Int64("key_id", id), zap.Error(err))
	}

	return userID, nil
}

// DeleteAPIKey removes one of the user's keys
func (db *DB) DeleteAPIKey(ctx context.Context, keyID, userID int64) error {
	query, args := db.builder().Delete("api_keys").
		Where(entsql.And(entsql.EQ("id", keyID), entsql.EQ("user_id", userID))).
		Query()

	res, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to delete API key: %w", err)
	}
	n, err := rowsAffected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return apperr.NotFound("API key not found")
	}
	return nil
}

// GetUserByAPIKey resolves the account behind a presented key
func (db *DB) GetUserByAPIKey(ctx context.Context, key string) (*model.User, error) {
	userID, err := db.ValidateAPIKey(ctx, key)
	if err != nil {
		return nil, err
	}
	return db.GetUser(ctx, userID)
}
