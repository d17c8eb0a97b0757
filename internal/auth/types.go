package auth

import "time"

// Roles form a closed set: uploaders create and assign documents,
// signers execute the signing protocol on documents assigned to them.
const (
	RoleUploader = "uploader"
	RoleSigner   = "signer"
)

// ValidRole reports whether role belongs to the closed role set.
func ValidRole(role string) bool {
	return role == RoleUploader || role == RoleSigner
}

// User represents an account in the signing workflow. PasswordHash never
// leaves the service boundary.
type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
