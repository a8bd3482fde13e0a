// Package pgstore implements goSession.IdentityStore on PostgreSQL through a pgx pool.
package pgstore

import (
	"context"
	"errors"
	"fmt"

	goSession "github.com/MrEthical07/goSession"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const usersTableName = "users"

type querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store reads users from the users table.
type Store struct {
	q querier
}

// New returns a store over pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{q: pool}
}

// Open parses dsn, connects a pool and verifies it answers.
func Open(ctx context.Context, dsn string, maxConns int32) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("pgstore: parse dsn: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", goSession.ErrStoreUnavailable, err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: %v", goSession.ErrStoreUnavailable, err)
	}
	return pool, nil
}

// EnsureSchema creates the users table when it does not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.q.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS `+usersTableName+` (
			id            BIGSERIAL PRIMARY KEY,
			username      TEXT NOT NULL UNIQUE,
			nickname      TEXT NOT NULL DEFAULT '',
			role          TEXT NOT NULL DEFAULT '',
			password_hash TEXT NOT NULL DEFAULT ''
		)
	`)
	return classify(err, "")
}

// Put inserts u or updates the row with the same username. The id column is owned by the
// database, so u.ID is ignored.
func (s *Store) Put(ctx context.Context, u goSession.User) error {
	if u.Username == "" {
		return goSession.ErrEmptyUsername
	}
	var id int64
	err := s.q.QueryRow(ctx, `
		INSERT INTO `+usersTableName+` (username, nickname, role, password_hash)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (username) DO UPDATE
		SET nickname=EXCLUDED.nickname, role=EXCLUDED.role, password_hash=EXCLUDED.password_hash
		RETURNING id
	`, u.Username, u.Nickname, u.Role, u.PasswordHash).Scan(&id)
	return classify(err, u.Username)
}

// Delete removes username.
func (s *Store) Delete(ctx context.Context, username string) error {
	_, err := s.q.Exec(ctx, `DELETE FROM `+usersTableName+` WHERE username=$1`, username)
	return classify(err, username)
}

// LookupByUsername implements goSession.IdentityStore.
func (s *Store) LookupByUsername(ctx context.Context, username string) (goSession.User, error) {
	u := goSession.User{Username: username}
	err := s.q.QueryRow(ctx, `
		SELECT id, nickname, role, password_hash
		FROM `+usersTableName+`
		WHERE username=$1
	`, username).Scan(&u.ID, &u.Nickname, &u.Role, &u.PasswordHash)
	if err != nil {
		return goSession.User{}, classify(err, username)
	}
	return u, nil
}

// classify maps driver errors onto the goSession store sentinels. Errors reported by the
// server itself, like a missing table, are returned as is.
func classify(err error, username string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %q", goSession.ErrUserNotFound, username)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return fmt.Errorf("pgstore: %s: %w", pgErr.Code, err)
	}
	return fmt.Errorf("%w: %v", goSession.ErrStoreUnavailable, err)
}
