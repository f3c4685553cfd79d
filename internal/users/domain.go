package users

import (
	"time"

	"github.com/google/uuid"

	"github.com/havenlist/havenlist/internal/rbac"
)

// User is the management view of an account. Password material never leaves
// the repository layer.
type User struct {
	ID        uuid.UUID       `json:"id"`
	FirstName string          `json:"firstName"`
	LastName  string          `json:"lastName"`
	Email     string          `json:"email"`
	UserType  rbac.UserType   `json:"userType"`
	Status    rbac.UserStatus `json:"status"`
	Verified  bool            `json:"verified"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}
