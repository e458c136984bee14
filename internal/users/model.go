package users

import (
	"time"

	"github.com/google/uuid"
)

// Role controls which API scopes an account may use.
type Role string

const (
	RoleCitizen    Role = "citizen"
	RoleAgent      Role = "agent"
	RoleSupervisor Role = "supervisor"
	RoleAdmin      Role = "admin"
	RoleSystem     Role = "system"
)

// ValidRole reports whether r is one of the recognized roles.
func ValidRole(r Role) bool {
	switch r {
	case RoleCitizen, RoleAgent, RoleSupervisor, RoleAdmin, RoleSystem:
		return true
	}
	return false
}

// Privileged reports whether the role may read all reports and edit statuses.
func (r Role) Privileged() bool {
	return r == RoleSupervisor || r == RoleAdmin
}

// User is a registered CivicSense account.
type User struct {
	ID           uuid.UUID `json:"id"         db:"id"`
	Username     string    `json:"username"   db:"username"`
	Email        string    `json:"email"      db:"email"`
	PasswordHash string    `json:"-"          db:"password_hash"`
	Role         Role      `json:"role"       db:"role"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

// Profile holds the per-user engagement counters and scores. One row per
// user, created in the same transaction as the account.
type Profile struct {
	ID             uuid.UUID `json:"id"              db:"id"`
	UserID         uuid.UUID `json:"user_id"         db:"user_id"`
	EcoScore       int       `json:"eco_score"       db:"eco_score"`
	CivicScore     int       `json:"civic_score"     db:"civic_score"`
	CarbonCredits  float64   `json:"carbon_credits"  db:"carbon_credits"`
	IssuesReported int       `json:"issues_reported" db:"issues_reported"`
	TasksCompleted int       `json:"tasks_completed" db:"tasks_completed"`
	Badge          string    `json:"badge"           db:"badge"`
	Phone          string    `json:"phone"           db:"phone"`
	Address        string    `json:"address"         db:"address"`
	UpdatedAt      time.Time `json:"updated_at"      db:"updated_at"`
}
