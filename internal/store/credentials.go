package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/redis/go-redis/v9"

	"github.com/teemow/depobot/internal/apperrors"
)

// CredentialsFile is the file backend's document name under the data dir.
const CredentialsFile = "access_tokens.json"

const credentialsKey = keyPrefix + "credentials"

// TokenRecord is the OAuth credential stored per Zoom user.
type TokenRecord struct {
	UserID       string `json:"userId"`
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	// ExpiresAt is the access token expiry in epoch milliseconds.
	ExpiresAt int64 `json:"expiresAt"`
}

// CredentialStore persists one TokenRecord per user. Save is last write
// wins; Get returns an error matching apperrors.ErrNotFound when the user
// has no record.
type CredentialStore interface {
	Get(ctx context.Context, userID string) (*TokenRecord, error)
	Save(ctx context.Context, rec TokenRecord) error
}

// FileCredentialStore keeps credentials in a JSON document on disk.
type FileCredentialStore struct {
	file   *jsonFile[TokenRecord]
	cipher *Cipher
}

// NewFileCredentialStore opens <dir>/access_tokens.json. cipher may be nil.
func NewFileCredentialStore(dir string, cipher *Cipher) (*FileCredentialStore, error) {
	f, err := newJSONFile[TokenRecord](filepath.Join(dir, CredentialsFile))
	if err != nil {
		return nil, err
	}
	return &FileCredentialStore{file: f, cipher: cipher}, nil
}

// Get returns the record for userID.
func (s *FileCredentialStore) Get(_ context.Context, userID string) (*TokenRecord, error) {
	if userID == "" {
		return nil, apperrors.InvalidArgument("user id is required")
	}
	data, err := s.file.read()
	if err != nil {
		return nil, err
	}
	rec, ok := data[userID]
	if !ok {
		return nil, fmt.Errorf("credentials for user %s: %w", userID, apperrors.ErrNotFound)
	}
	return openRecord(s.cipher, rec)
}

// Save upserts rec.
func (s *FileCredentialStore) Save(_ context.Context, rec TokenRecord) error {
	if rec.UserID == "" {
		return apperrors.InvalidArgument("user id is required")
	}
	sealed, err := sealRecord(s.cipher, rec)
	if err != nil {
		return err
	}
	return s.file.update(func(data map[string]TokenRecord) error {
		data[rec.UserID] = sealed
		return nil
	})
}

// RedisCredentialStore keeps credentials in a single Redis hash keyed by
// user id.
type RedisCredentialStore struct {
	client redis.UniversalClient
	cipher *Cipher
}

// NewRedisCredentialStore returns a store backed by client. cipher may be nil.
func NewRedisCredentialStore(client redis.UniversalClient, cipher *Cipher) *RedisCredentialStore {
	return &RedisCredentialStore{client: client, cipher: cipher}
}

// Get returns the record for userID.
func (s *RedisCredentialStore) Get(ctx context.Context, userID string) (*TokenRecord, error) {
	if userID == "" {
		return nil, apperrors.InvalidArgument("user id is required")
	}
	raw, err := s.client.HGet(ctx, credentialsKey, userID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("credentials for user %s: %w", userID, apperrors.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read credentials: %w", err)
	}

	var rec TokenRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("failed to decode credentials: %w", err)
	}
	return openRecord(s.cipher, rec)
}

// Save upserts rec with a single HSET.
func (s *RedisCredentialStore) Save(ctx context.Context, rec TokenRecord) error {
	if rec.UserID == "" {
		return apperrors.InvalidArgument("user id is required")
	}
	sealed, err := sealRecord(s.cipher, rec)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(sealed)
	if err != nil {
		return fmt.Errorf("failed to encode credentials: %w", err)
	}
	if err := s.client.HSet(ctx, credentialsKey, rec.UserID, raw).Err(); err != nil {
		return fmt.Errorf("failed to save credentials: %w", err)
	}
	return nil
}

func sealRecord(c *Cipher, rec TokenRecord) (TokenRecord, error) {
	var err error
	if rec.AccessToken, err = c.Seal(rec.AccessToken); err != nil {
		return rec, fmt.Errorf("failed to encrypt access token: %w", err)
	}
	if rec.RefreshToken, err = c.Seal(rec.RefreshToken); err != nil {
		return rec, fmt.Errorf("failed to encrypt refresh token: %w", err)
	}
	return rec, nil
}

func openRecord(c *Cipher, rec TokenRecord) (*TokenRecord, error) {
	var err error
	if rec.AccessToken, err = c.Open(rec.AccessToken); err != nil {
		return nil, fmt.Errorf("failed to decrypt access token: %w", err)
	}
	if rec.RefreshToken, err = c.Open(rec.RefreshToken); err != nil {
		return nil, fmt.Errorf("failed to decrypt refresh token: %w", err)
	}
	return &rec, nil
}
