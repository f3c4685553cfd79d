package auth

import (
	"time"

	"github.com/google/uuid"

	"github.com/havenlist/havenlist/internal/rbac"
)

// User represents an account able to sign in.
type User struct {
	ID           uuid.UUID
	FirstName    string
	LastName     string
	Email        string
	PasswordHash string
	UserType     rbac.UserType
	Status       rbac.UserStatus
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Subject converts the user into its authorization-relevant slice.
func (u *User) Subject() rbac.Subject {
	return rbac.Subject{ID: u.ID, UserType: u.UserType, Status: u.Status}
}
