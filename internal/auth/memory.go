package auth

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"signflow.org/internal/ids"
)

// InMemory implements Store with in-process concurrency safety. Used by tests
// and by the API when no database DSN is configured.
type InMemory struct {
	mu    sync.RWMutex
	users map[string]*User
}

var _ Store = (*InMemory)(nil)

// NewInMemory creates an empty user directory.
func NewInMemory() *InMemory {
	return &InMemory{users: make(map[string]*User)}
}

func (s *InMemory) Users(ctx context.Context) UserStore { return (*memUserStore)(s) }

type memUserStore InMemory

func (s *memUserStore) Create(ctx context.Context, u *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	email := strings.ToLower(u.Email)
	for _, existing := range s.users {
		if strings.ToLower(existing.Email) == email {
			return ErrAlreadyExists
		}
	}
	if u.ID == "" {
		u.ID = ids.New()
	}
	now := time.Now().UTC()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.UpdatedAt = now
	cp := *u
	s.users[u.ID] = &cp
	return nil
}

func (s *memUserStore) Find(ctx context.Context, id string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *memUserStore) FindByEmail(ctx context.Context, email string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	email = strings.ToLower(email)
	for _, u := range s.users {
		if strings.ToLower(u.Email) == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *memUserStore) List(ctx context.Context, offset, limit int) ([]*User, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := s.sorted()
	total := len(all)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if limit <= 0 || end > total {
		end = total
	}
	page := make([]*User, 0, end-offset)
	for _, u := range all[offset:end] {
		cp := *u
		page = append(page, &cp)
	}
	return page, total, nil
}

func (s *memUserStore) ListActiveByRole(ctx context.Context, role string) ([]*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var res []*User
	for _, u := range s.sorted() {
		if u.Role == role && u.IsActive {
			cp := *u
			res = append(res, &cp)
		}
	}
	return res, nil
}

func (s *memUserStore) Update(ctx context.Context, u *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.users[u.ID]
	if !ok {
		return ErrNotFound
	}
	email := strings.ToLower(u.Email)
	for id, other := range s.users {
		if id != u.ID && strings.ToLower(other.Email) == email {
			return ErrAlreadyExists
		}
	}
	u.CreatedAt = existing.CreatedAt
	u.UpdatedAt = time.Now().UTC()
	cp := *u
	s.users[u.ID] = &cp
	return nil
}

func (s *memUserStore) UpdatePassword(ctx context.Context, userID, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return ErrNotFound
	}
	u.PasswordHash = passwordHash
	u.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *memUserStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[id]; !ok {
		return ErrNotFound
	}
	delete(s.users, id)
	return nil
}

// sorted returns users newest-first; ULIDs make creation order sortable but
// CreatedAt is the contract.
func (s *memUserStore) sorted() []*User {
	all := make([]*User, 0, len(s.users))
	for _, u := range s.users {
		all = append(all, u)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].ID > all[j].ID
		}
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})
	return all
}
