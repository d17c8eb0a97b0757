package auth

import (
	"context"
	"fmt"
	"strings"
	"time"
)

const (
	defaultAccessTTL  = 24 * time.Hour
	minPasswordLength = 6
)

// Service provides registration, credential checks, token issuance and the
// user directory lookups consumed by the document lifecycle.
type Service struct {
	store     Store
	now       func() time.Time
	accessTTL time.Duration
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service)

// WithAccessTTL configures access token lifetime.
func WithAccessTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) {
		if ttl > 0 {
			s.accessTTL = ttl
		}
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewService constructs Service with optional configuration.
func NewService(store Store, opts ...ServiceOption) *Service {
	svc := &Service{
		store:     store,
		now:       time.Now,
		accessTTL: defaultAccessTTL,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// RegisterInput carries the fields required to create an account.
type RegisterInput struct {
	Name     string
	Email    string
	Password string
	Role     string
}

// Session is the result of a successful registration or login.
type Session struct {
	User      *User
	Token     string
	ExpiresAt time.Time
}

// Register creates an account and issues an access token.
func (s *Service) Register(ctx context.Context, in RegisterInput) (Session, error) {
	name := strings.TrimSpace(in.Name)
	email := strings.TrimSpace(strings.ToLower(in.Email))
	role := strings.TrimSpace(strings.ToLower(in.Role))
	if name == "" || email == "" || in.Password == "" || role == "" {
		return Session{}, fmt.Errorf("%w: name, email, password and role are required", ErrInvalidInput)
	}
	if !strings.Contains(email, "@") {
		return Session{}, fmt.Errorf("%w: valid email is required", ErrInvalidInput)
	}
	if !ValidRole(role) {
		return Session{}, fmt.Errorf("%w: role must be %q or %q", ErrInvalidInput, RoleUploader, RoleSigner)
	}
	if len(in.Password) < minPasswordLength {
		return Session{}, fmt.Errorf("%w: password must be at least %d characters", ErrInvalidInput, minPasswordLength)
	}

	hash, err := HashPassword(in.Password)
	if err != nil {
		return Session{}, err
	}
	user := &User{
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		IsActive:     true,
	}
	if err := s.store.Users(ctx).Create(ctx, user); err != nil {
		return Session{}, err
	}
	return s.session(user)
}

// Login verifies credentials and issues an access token. Deactivated accounts
// are rejected the same way as bad credentials.
func (s *Service) Login(ctx context.Context, email, password string) (Session, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || password == "" {
		return Session{}, ErrUnauthorized
	}
	user, err := s.store.Users(ctx).FindByEmail(ctx, email)
	if err != nil {
		return Session{}, ErrUnauthorized
	}
	if !user.IsActive {
		return Session{}, ErrUnauthorized
	}
	if err := VerifyPassword(user.PasswordHash, password); err != nil {
		return Session{}, ErrUnauthorized
	}
	return s.session(user)
}

func (s *Service) session(user *User) (Session, error) {
	token, err := GenerateToken(user.ID, user.Email, user.Role, s.accessTTL)
	if err != nil {
		return Session{}, err
	}
	return Session{
		User:      user,
		Token:     token,
		ExpiresAt: s.now().UTC().Add(s.accessTTL),
	}, nil
}

// Profile loads the account behind an authenticated request.
func (s *Service) Profile(ctx context.Context, userID string) (*User, error) {
	return s.store.Users(ctx).Find(ctx, userID)
}

// UpdateProfile changes the caller's own name and email.
func (s *Service) UpdateProfile(ctx context.Context, userID string, name, email *string) (*User, error) {
	user, err := s.store.Users(ctx).Find(ctx, userID)
	if err != nil {
		return nil, err
	}
	if name != nil {
		trimmed := strings.TrimSpace(*name)
		if trimmed == "" {
			return nil, fmt.Errorf("%w: name is required", ErrInvalidInput)
		}
		user.Name = trimmed
	}
	if email != nil {
		trimmed := strings.TrimSpace(strings.ToLower(*email))
		if trimmed == "" || !strings.Contains(trimmed, "@") {
			return nil, fmt.Errorf("%w: valid email is required", ErrInvalidInput)
		}
		user.Email = trimmed
	}
	if err := s.store.Users(ctx).Update(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// ChangePassword verifies the current password before storing a new hash.
func (s *Service) ChangePassword(ctx context.Context, userID, current, next string) error {
	if current == "" || next == "" {
		return fmt.Errorf("%w: current and new password are required", ErrInvalidInput)
	}
	if len(next) < minPasswordLength {
		return fmt.Errorf("%w: password must be at least %d characters", ErrInvalidInput, minPasswordLength)
	}
	user, err := s.store.Users(ctx).Find(ctx, userID)
	if err != nil {
		return err
	}
	if err := VerifyPassword(user.PasswordHash, current); err != nil {
		return fmt.Errorf("%w: current password is incorrect", ErrInvalidInput)
	}
	hash, err := HashPassword(next)
	if err != nil {
		return err
	}
	return s.store.Users(ctx).UpdatePassword(ctx, userID, hash)
}

// UserUpdate carries optional administrative changes to an account.
type UserUpdate struct {
	Name     *string
	Email    *string
	Role     *string
	IsActive *bool
}

// UpdateUser applies administrative changes (rename, reassignment of role,
// activation toggle).
func (s *Service) UpdateUser(ctx context.Context, userID string, upd UserUpdate) (*User, error) {
	user, err := s.store.Users(ctx).Find(ctx, userID)
	if err != nil {
		return nil, err
	}
	if upd.Name != nil {
		trimmed := strings.TrimSpace(*upd.Name)
		if trimmed == "" {
			return nil, fmt.Errorf("%w: name is required", ErrInvalidInput)
		}
		user.Name = trimmed
	}
	if upd.Email != nil {
		trimmed := strings.TrimSpace(strings.ToLower(*upd.Email))
		if trimmed == "" || !strings.Contains(trimmed, "@") {
			return nil, fmt.Errorf("%w: valid email is required", ErrInvalidInput)
		}
		user.Email = trimmed
	}
	if upd.Role != nil {
		role := strings.TrimSpace(strings.ToLower(*upd.Role))
		if !ValidRole(role) {
			return nil, fmt.Errorf("%w: role must be %q or %q", ErrInvalidInput, RoleUploader, RoleSigner)
		}
		user.Role = role
	}
	if upd.IsActive != nil {
		user.IsActive = *upd.IsActive
	}
	if err := s.store.Users(ctx).Update(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// GetUser loads a single account by id.
func (s *Service) GetUser(ctx context.Context, id string) (*User, error) {
	return s.store.Users(ctx).Find(ctx, id)
}

// ListUsers returns a page of accounts plus the total count.
func (s *Service) ListUsers(ctx context.Context, page, limit int) ([]*User, int, error) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = 10
	}
	return s.store.Users(ctx).List(ctx, (page-1)*limit, limit)
}

// ListActiveByRole returns active accounts holding a role, for signer picking.
func (s *Service) ListActiveByRole(ctx context.Context, role string) ([]*User, error) {
	role = strings.TrimSpace(strings.ToLower(role))
	if !ValidRole(role) {
		return nil, fmt.Errorf("%w: role must be %q or %q", ErrInvalidInput, RoleUploader, RoleSigner)
	}
	return s.store.Users(ctx).ListActiveByRole(ctx, role)
}

// DeleteUser removes an account. Documents referencing the account keep
// their id references; reads degrade to omitting the account summary.
func (s *Service) DeleteUser(ctx context.Context, id string) error {
	return s.store.Users(ctx).Delete(ctx, id)
}

// FindActiveSigner resolves an email to an active signer account. This is the
// directory contract the document lifecycle depends on: the account must
// exist, hold the signer role and be active.
func (s *Service) FindActiveSigner(ctx context.Context, email string) (*User, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" {
		return nil, ErrNotFound
	}
	user, err := s.store.Users(ctx).FindByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if user.Role != RoleSigner || !user.IsActive {
		return nil, ErrNotFound
	}
	return user, nil
}
