// Package redisstore implements goSession.IdentityStore on Redis.
//
// Each user is one hash at "<prefix>:user:<username>" with the fields id, nickname, role
// and password_hash.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	goSession "github.com/MrEthical07/goSession"
	"github.com/redis/go-redis/v9"
)

const defaultPrefix = "album"

const (
	fieldID       = "id"
	fieldNickname = "nickname"
	fieldRole     = "role"
	fieldHash     = "password_hash"
)

// Store reads users from Redis hashes.
type Store struct {
	redis  redis.UniversalClient
	prefix string
}

// New returns a store using client. An empty prefix defaults to "album".
func New(client redis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &Store{redis: client, prefix: prefix}
}

func (s *Store) key(username string) string {
	return s.prefix + ":user:" + username
}

func (s *Store) seqKey() string {
	return s.prefix + ":user_seq"
}

// Put writes u. A zero ID keeps the stored user's ID, or takes the next one from the store's
// sequence for a new user.
func (s *Store) Put(ctx context.Context, u goSession.User) error {
	if u.Username == "" {
		return goSession.ErrEmptyUsername
	}
	if u.ID == 0 {
		id, err := s.assignID(ctx, u.Username)
		if err != nil {
			return err
		}
		u.ID = id
	}

	err := s.redis.HSet(ctx, s.key(u.Username), map[string]any{
		fieldID:       strconv.FormatInt(u.ID, 10),
		fieldNickname: u.Nickname,
		fieldRole:     u.Role,
		fieldHash:     u.PasswordHash,
	}).Err()
	if err != nil {
		return fmt.Errorf("%w: %v", goSession.ErrStoreUnavailable, err)
	}
	return nil
}

func (s *Store) assignID(ctx context.Context, username string) (int64, error) {
	raw, err := s.redis.HGet(ctx, s.key(username), fieldID).Result()
	switch {
	case err == nil:
		if id, perr := strconv.ParseInt(raw, 10, 64); perr == nil && id > 0 {
			return id, nil
		}
	case !errors.Is(err, redis.Nil):
		return 0, fmt.Errorf("%w: %v", goSession.ErrStoreUnavailable, err)
	}

	id, err := s.redis.Incr(ctx, s.seqKey()).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", goSession.ErrStoreUnavailable, err)
	}
	return id, nil
}

// Delete removes username.
func (s *Store) Delete(ctx context.Context, username string) error {
	if err := s.redis.Del(ctx, s.key(username)).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("%w: %v", goSession.ErrStoreUnavailable, err)
	}
	return nil
}

// LookupByUsername implements goSession.IdentityStore.
func (s *Store) LookupByUsername(ctx context.Context, username string) (goSession.User, error) {
	fields, err := s.redis.HGetAll(ctx, s.key(username)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return goSession.User{}, fmt.Errorf("%w: %q", goSession.ErrUserNotFound, username)
		}
		return goSession.User{}, fmt.Errorf("%w: %v", goSession.ErrStoreUnavailable, err)
	}
	// HGETALL answers an empty map for a missing key.
	if len(fields) == 0 {
		return goSession.User{}, fmt.Errorf("%w: %q", goSession.ErrUserNotFound, username)
	}

	id, err := strconv.ParseInt(fields[fieldID], 10, 64)
	if err != nil {
		return goSession.User{}, fmt.Errorf("redisstore: corrupt id for %q: %w", username, err)
	}
	return goSession.User{
		ID:           id,
		Username:     username,
		Nickname:     fields[fieldNickname],
		Role:         fields[fieldRole],
		PasswordHash: fields[fieldHash],
	}, nil
}

// Ping reports whether Redis answers.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", goSession.ErrStoreUnavailable, err)
	}
	return nil
}
