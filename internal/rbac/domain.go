package rbac

import (
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Status marks whether a role or permission participates in authorization.
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

// UserType classifies accounts. Admin-tier accounts hold every active
// capability implicitly, without explicit role assignments.
type UserType string

const (
	UserTypeRegular       UserType = "user"
	UserTypePropertyOwner UserType = "property_owner"
	UserTypeAdmin         UserType = "admin"
	UserTypeSuperAdmin    UserType = "super_admin"
)

// IsAdminTier reports whether the user type receives the blanket grant.
func (t UserType) IsAdminTier() bool {
	return t == UserTypeAdmin || t == UserTypeSuperAdmin
}

// UserStatus mirrors the account lifecycle states.
type UserStatus string

const (
	UserStatusActive    UserStatus = "active"
	UserStatusInactive  UserStatus = "inactive"
	UserStatusSuspended UserStatus = "suspended"
)

// Role groups permissions. System roles are immutable through the admin API.
type Role struct {
	ID          uuid.UUID
	Name        string
	Description string
	Status      Status
	IsSystem    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Permission is an atomic capability scoped to a module and an action.
type Permission struct {
	ID          uuid.UUID
	Name        string
	Module      string
	Action      string
	Description string
	Status      Status
	IsSystem    bool
}

// Key returns the capability key for this permission.
func (p Permission) Key() string {
	return Key(p.Module, p.Action)
}

// Subject is the authorization-relevant slice of a user record.
type Subject struct {
	ID       uuid.UUID
	UserType UserType
	Status   UserStatus
}

// RoleGrant pairs an active role with its active permissions.
type RoleGrant struct {
	Role        Role
	Permissions []Permission
}

// Key builds the canonical capability key for a module/action pair.
func Key(module, action string) string {
	return strings.ToLower(strings.TrimSpace(module)) + ":" + strings.ToLower(strings.TrimSpace(action))
}

// CapabilitySet is the effective set of capability keys for one user.
type CapabilitySet map[string]struct{}

// NewCapabilitySet builds a set from capability keys.
func NewCapabilitySet(keys ...string) CapabilitySet {
	set := make(CapabilitySet, len(keys))
	for _, k := range keys {
		set[k] = struct{}{}
	}
	return set
}

// Has reports membership of the module/action capability.
func (s CapabilitySet) Has(module, action string) bool {
	_, ok := s[Key(module, action)]
	return ok
}

// HasKey reports membership of a prebuilt capability key.
func (s CapabilitySet) HasKey(key string) bool {
	_, ok := s[key]
	return ok
}

// Add inserts a capability key.
func (s CapabilitySet) Add(key string) {
	s[key] = struct{}{}
}

// Keys returns the sorted capability keys.
func (s CapabilitySet) Keys() []string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Clone returns an independent copy of the set.
func (s CapabilitySet) Clone() CapabilitySet {
	out := make(CapabilitySet, len(s))
	for k := range s {
		out[k] = struct{}{}
	}
	return out
}
