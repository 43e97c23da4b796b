package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Roles assignable to a user account. Every account carries exactly one role
// which drives authorization across the API.
const (
	RoleClient = "client"
	RoleAgent  = "agent"
	RoleAdmin  = "admin"
)

// Account lockout thresholds. The counter resets on a successful login.
const (
	MaxFailedLogins = 5
	LockoutDuration = 30 * time.Minute
)

// ErrNoProfileForUser is returned when a user account exists without the
// profile row its role requires. Accounts in this state predate profile
// auto-creation and are repaired by the backfill command.
var ErrNoProfileForUser = errors.New("user has no profile for its role")

// UserRepository defines the interface for managing user accounts.
type UserRepository interface {
	// InsertUser saves a new user. The email must be unique (case-insensitive).
	InsertUser(user *User) error
	// GetUser retrieves a user by ID.
	GetUser(id uuid.UUID) (*User, error)
	// GetUserByEmail retrieves a user by email. The lookup is case-insensitive.
	GetUserByEmail(email string) (*User, error)
	// GetUsers retrieves users filtered by role and agency. Empty role or nil
	// agency means no filter on that column.
	GetUsers(role string, agencyID *uuid.UUID) ([]*User, error)
	// UpdateUser updates the mutable account fields (names, phone, active, agency).
	UpdateUser(user *User) error
	// UpdatePassword replaces the stored password hash.
	UpdatePassword(id uuid.UUID, hash string) error
	// RecordFailedLogin increments the failure counter and returns the new count.
	// The caller decides whether the count warrants a lockout.
	RecordFailedLogin(id uuid.UUID) (int, error)
	// LockUser sets the lockout deadline.
	LockUser(id uuid.UUID, until time.Time) error
	// ResetFailedLogins clears the failure counter and any lockout.
	ResetFailedLogins(id uuid.UUID) error
	// UsernameExists reports whether a username is already taken.
	UsernameExists(username string) (bool, error)
}

// ProfileRepository manages the role-specific profile rows attached to users.
type ProfileRepository interface {
	// InsertAgentProfile saves a new agent profile.
	InsertAgentProfile(profile *AgentProfile) error
	// GetAgentProfile retrieves the agent profile for a user ID.
	// It returns ErrNoProfileForUser when the row is missing.
	GetAgentProfile(userID uuid.UUID) (*AgentProfile, error)
	// UpdateAgentProfile updates an agent profile.
	UpdateAgentProfile(profile *AgentProfile) error
	// GetUsersWithoutProfile returns users of the given role that are missing
	// their profile row.
	GetUsersWithoutProfile(role string) ([]*User, error)
}

// User represents an account in the CRM. Clients, agents, and administrators
// all share this model; the role decides which profile accompanies it.
type User struct {
	ID           uuid.UUID  // Unique identifier for the user.
	Email        string     // Login email, stored lowercased, unique.
	Username     string     // Display username, unique. Derived from the email on lead conversion.
	PasswordHash string     // bcrypt hash of the password. Empty for OAuth-only accounts.
	FirstName    string     // Given name.
	LastName     string     // Family name.
	Role         string     // One of RoleClient, RoleAgent, RoleAdmin.
	Phone        string     // Contact phone number, optional.
	AgencyID     *uuid.UUID // The agency the user belongs to. Nil for unaffiliated clients.
	Active       bool       // Inactive accounts cannot authenticate.
	FailedLogins int        // Consecutive failed login attempts.
	LockedUntil  *time.Time // Lockout deadline, nil when the account is not locked.
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// FullName returns the user's display name.
func (u *User) FullName() string {
	switch {
	case u.FirstName == "" && u.LastName == "":
		return u.Username
	case u.FirstName == "":
		return u.LastName
	case u.LastName == "":
		return u.FirstName
	}
	return u.FirstName + " " + u.LastName
}

// IsLocked reports whether the account is locked out at the given time.
func (u *User) IsLocked(now time.Time) bool {
	return u.LockedUntil != nil && now.Before(*u.LockedUntil)
}

// AgentProfile holds the agent-specific attributes of a user with RoleAgent.
type AgentProfile struct {
	UserID         uuid.UUID // The user this profile belongs to.
	AgencyID       uuid.UUID // The agency employing the agent.
	Bio            string    // Free-form presentation text.
	Specialties    []string  // Transaction specialties (e.g. "sale", "rental", "commercial").
	Sectors        []string  // Geographic sectors the agent covers.
	Rating         float64   // Average rating out of 5, maintained from client feedback.
	TotalSales     int       // Lifetime closed transactions.
	CommissionRate *float64  // Per-agent commission percentage override. Nil uses the default rate.
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
