// Package memory implements an in-process goSession.IdentityStore.
package memory

import (
	"context"
	"fmt"
	"sync"

	goSession "github.com/MrEthical07/goSession"
)

// Store is safe for concurrent use. The zero value is not usable; call New.
type Store struct {
	mu     sync.RWMutex
	users  map[string]goSession.User
	nextID int64
}

// New returns a store seeded with users. It panics if a seed user has no username.
func New(users ...goSession.User) *Store {
	s := &Store{users: make(map[string]goSession.User, len(users))}
	for _, u := range users {
		if err := s.Put(context.Background(), u); err != nil {
			panic(fmt.Sprintf("memory: seed user: %v", err))
		}
	}
	return s
}

// Put inserts or replaces u. A zero ID is assigned the next free one.
func (s *Store) Put(ctx context.Context, u goSession.User) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", goSession.ErrStoreUnavailable, err)
	}
	if u.Username == "" {
		return goSession.ErrEmptyUsername
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.users[u.Username]; ok && u.ID == 0 {
		u.ID = prev.ID
	}
	if u.ID == 0 {
		s.nextID++
		u.ID = s.nextID
	} else if u.ID > s.nextID {
		s.nextID = u.ID
	}
	s.users[u.Username] = u
	return nil
}

// Delete removes username. Deleting an unknown user is not an error.
func (s *Store) Delete(_ context.Context, username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.users, username)
	return nil
}

// LookupByUsername implements goSession.IdentityStore.
func (s *Store) LookupByUsername(ctx context.Context, username string) (goSession.User, error) {
	if err := ctx.Err(); err != nil {
		return goSession.User{}, fmt.Errorf("%w: %v", goSession.ErrStoreUnavailable, err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[username]
	if !ok {
		return goSession.User{}, fmt.Errorf("%w: %q", goSession.ErrUserNotFound, username)
	}
	return u, nil
}

// Len reports how many users are stored.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.users)
}
