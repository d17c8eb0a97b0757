package auth

import "context"

// Store describes persistence operations required by the user directory.
type Store interface {
	Users(ctx context.Context) UserStore
}

// UserStore manages user accounts.
type UserStore interface {
	Create(ctx context.Context, u *User) error
	Find(ctx context.Context, id string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	// List returns users ordered newest-first along with the total count.
	List(ctx context.Context, offset, limit int) ([]*User, int, error)
	ListActiveByRole(ctx context.Context, role string) ([]*User, error)
	Update(ctx context.Context, u *User) error
	UpdatePassword(ctx context.Context, userID, passwordHash string) error
	Delete(ctx context.Context, id string) error
}
