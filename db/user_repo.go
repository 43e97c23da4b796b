package db

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/DIGIT-HABs/back/domain"
	"github.com/google/uuid"
)

var _ domain.UserRepository = (*Repository)(nil)
var _ domain.ProfileRepository = (*Repository)(nil)

// dbUser represents a user account as stored in the database. It uses
// sql.Null* and uuid.NullUUID types for columns that may be absent, such as
// the agency for unaffiliated clients or the lockout deadline.
type dbUser struct {
	ID           uuid.UUID     `db:"id"`
	Email        string        `db:"email"`
	Username     string        `db:"username"`
	PasswordHash string        `db:"password_hash"`
	FirstName    string        `db:"first_name"`
	LastName     string        `db:"last_name"`
	Role         string        `db:"role"`
	Phone        string        `db:"phone"`
	AgencyID     uuid.NullUUID `db:"agency_id"`
	Active       bool          `db:"active"`
	FailedLogins int           `db:"failed_logins"`
	LockedUntil  sql.NullTime  `db:"locked_until"`
	CreatedAt    time.Time     `db:"created_at"`
	UpdatedAt    time.Time     `db:"updated_at"`
}

// fromDomainUser converts a domain.User into a dbUser for database operations.
func fromDomainUser(user *domain.User) *dbUser {
	dbUser := &dbUser{
		ID:           user.ID,
		Email:        strings.ToLower(user.Email),
		Username:     user.Username,
		PasswordHash: user.PasswordHash,
		FirstName:    user.FirstName,
		LastName:     user.LastName,
		Role:         user.Role,
		Phone:        user.Phone,
		Active:       user.Active,
		FailedLogins: user.FailedLogins,
		CreatedAt:    user.CreatedAt,
		UpdatedAt:    user.UpdatedAt,
	}

	if user.AgencyID != nil {
		dbUser.AgencyID = uuid.NullUUID{UUID: *user.AgencyID, Valid: true}
	}

	if user.LockedUntil != nil {
		dbUser.LockedUntil = sql.NullTime{Time: *user.LockedUntil, Valid: true}
	}

	return dbUser
}

// toDomainUser converts a dbUser into a domain.User.
func toDomainUser(dbUser *dbUser) *domain.User {
	user := &domain.User{
		ID:           dbUser.ID,
		Email:        dbUser.Email,
		Username:     dbUser.Username,
		PasswordHash: dbUser.PasswordHash,
		FirstName:    dbUser.FirstName,
		LastName:     dbUser.LastName,
		Role:         dbUser.Role,
		Phone:        dbUser.Phone,
		Active:       dbUser.Active,
		FailedLogins: dbUser.FailedLogins,
		CreatedAt:    dbUser.CreatedAt,
		UpdatedAt:    dbUser.UpdatedAt,
	}

	if dbUser.AgencyID.Valid {
		id := dbUser.AgencyID.UUID
		user.AgencyID = &id
	}

	if dbUser.LockedUntil.Valid {
		until := dbUser.LockedUntil.Time
		user.LockedUntil = &until
	}

	return user
}

// InsertUser saves a new user account. The email is stored lowercased.
func (repo *Repository) InsertUser(user *domain.User) error {
	dbUser := fromDomainUser(user)
	query := `INSERT INTO users (id, email, username, password_hash, first_name, last_name, role, phone, agency_id, active, failed_logins, locked_until, created_at, updated_at)
	          VALUES (:id, :email, :username, :password_hash, :first_name, :last_name, :role, :phone, :agency_id, :active, :failed_logins, :locked_until, :created_at, :updated_at)`

	_, err := repo.dbConn.NamedExec(query, dbUser)
	if err != nil {
		return fmt.Errorf("inserting user %s : %w", user.Email, err)
	}
	return nil
}

// GetUser retrieves a user by ID.
func (repo *Repository) GetUser(id uuid.UUID) (*domain.User, error) {
	var dbUser dbUser
	query := `SELECT * FROM users WHERE id = ?`

	err := repo.dbConn.Get(&dbUser, repo.dbConn.Rebind(query), id)
	if err != nil {
		return nil, fmt.Errorf("getting user %s : %w", id, err)
	}

	return toDomainUser(&dbUser), nil
}

// GetUserByEmail retrieves a user by email. The lookup is case-insensitive.
func (repo *Repository) GetUserByEmail(email string) (*domain.User, error) {
	var dbUser dbUser
	query := `SELECT * FROM users WHERE email = ?`

	err := repo.dbConn.Get(&dbUser, repo.dbConn.Rebind(query), strings.ToLower(email))
	if err != nil {
		return nil, fmt.Errorf("getting user %s : %w", email, err)
	}

	return toDomainUser(&dbUser), nil
}

// GetUsers retrieves users filtered by role and agency. An empty role or nil
// agency means no filter on that column.
func (repo *Repository) GetUsers(role string, agencyID *uuid.UUID) ([]*domain.User, error) {
	query := `SELECT * FROM users`

	var conditions []string
	var args []any
	if role != "" {
		conditions = append(conditions, "role = ?")
		args = append(args, role)
	}
	if agencyID != nil {
		conditions = append(conditions, "agency_id = ?")
		args = append(args, *agencyID)
	}
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at ASC"

	var dbUsers []*dbUser
	err := repo.dbConn.Select(&dbUsers, repo.dbConn.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("fetching users : %w", err)
	}

	domainUsers := make([]*domain.User, len(dbUsers))
	for i, dbUser := range dbUsers {
		domainUsers[i] = toDomainUser(dbUser)
	}
	return domainUsers, nil
}

// UpdateUser updates the mutable account fields of an existing user.
func (repo *Repository) UpdateUser(user *domain.User) error {
	dbUser := fromDomainUser(user)
	query := `UPDATE users SET
	            first_name = :first_name,
	            last_name = :last_name,
	            phone = :phone,
	            active = :active,
	            agency_id = :agency_id,
	            updated_at = :updated_at
	          WHERE id = :id`

	result, err := repo.dbConn.NamedExec(query, dbUser)
	if err != nil {
		return fmt.Errorf("updating user %s : %w", user.ID, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected for user %s : %w", user.ID, err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("no user found with id %s to update", user.ID)
	}
	return nil
}

// UpdatePassword replaces the stored password hash.
func (repo *Repository) UpdatePassword(id uuid.UUID, hash string) error {
	query := `UPDATE users SET password_hash = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`

	_, err := repo.dbConn.Exec(repo.dbConn.Rebind(query), hash, id)
	if err != nil {
		return fmt.Errorf("updating password for user %s : %w", id, err)
	}
	return nil
}

// RecordFailedLogin increments the failure counter and returns the new count.
func (repo *Repository) RecordFailedLogin(id uuid.UUID) (int, error) {
	query := `UPDATE users SET failed_logins = failed_logins + 1 WHERE id = ?`

	_, err := repo.dbConn.Exec(repo.dbConn.Rebind(query), id)
	if err != nil {
		return 0, fmt.Errorf("recording failed login for user %s : %w", id, err)
	}

	var count int
	query = `SELECT failed_logins FROM users WHERE id = ?`
	err = repo.dbConn.Get(&count, repo.dbConn.Rebind(query), id)
	if err != nil {
		return 0, fmt.Errorf("reading failed login count for user %s : %w", id, err)
	}

	return count, nil
}

// LockUser sets the lockout deadline.
func (repo *Repository) LockUser(id uuid.UUID, until time.Time) error {
	query := `UPDATE users SET locked_until = ? WHERE id = ?`

	_, err := repo.dbConn.Exec(repo.dbConn.Rebind(query), until, id)
	if err != nil {
		return fmt.Errorf("locking user %s : %w", id, err)
	}
	return nil
}

// ResetFailedLogins clears the failure counter and any lockout.
func (repo *Repository) ResetFailedLogins(id uuid.UUID) error {
	query := `UPDATE users SET failed_logins = 0, locked_until = NULL WHERE id = ?`

	_, err := repo.dbConn.Exec(repo.dbConn.Rebind(query), id)
	if err != nil {
		return fmt.Errorf("resetting failed logins for user %s : %w", id, err)
	}
	return nil
}

// UsernameExists reports whether a username is already taken.
func (repo *Repository) UsernameExists(username string) (bool, error) {
	var count int
	query := `SELECT COUNT(*) FROM users WHERE username = ?`

	err := repo.dbConn.Get(&count, repo.dbConn.Rebind(query), username)
	if err != nil {
		return false, fmt.Errorf("checking username %s : %w", username, err)
	}

	return count > 0, nil
}

// dbAgentProfile represents an agent profile as stored in the database.
type dbAgentProfile struct {
	UserID         uuid.UUID       `db:"user_id"`
	AgencyID       uuid.UUID       `db:"agency_id"`
	Bio            string          `db:"bio"`
	Specialties    StringList      `db:"specialties"`
	Sectors        StringList      `db:"sectors"`
	Rating         float64         `db:"rating"`
	TotalSales     int             `db:"total_sales"`
	CommissionRate sql.NullFloat64 `db:"commission_rate"`
	CreatedAt      time.Time       `db:"created_at"`
	UpdatedAt      time.Time       `db:"updated_at"`
}

// fromDomainAgentProfile converts a domain.AgentProfile into a dbAgentProfile.
func fromDomainAgentProfile(profile *domain.AgentProfile) *dbAgentProfile {
	dbProfile := &dbAgentProfile{
		UserID:      profile.UserID,
		AgencyID:    profile.AgencyID,
		Bio:         profile.Bio,
		Specialties: StringList(profile.Specialties),
		Sectors:     StringList(profile.Sectors),
		Rating:      profile.Rating,
		TotalSales:  profile.TotalSales,
		CreatedAt:   profile.CreatedAt,
		UpdatedAt:   profile.UpdatedAt,
	}

	if profile.CommissionRate != nil {
		dbProfile.CommissionRate = sql.NullFloat64{Float64: *profile.CommissionRate, Valid: true}
	}

	return dbProfile
}

// toDomainAgentProfile converts a dbAgentProfile into a domain.AgentProfile.
func toDomainAgentProfile(dbProfile *dbAgentProfile) *domain.AgentProfile {
	profile := &domain.AgentProfile{
		UserID:      dbProfile.UserID,
		AgencyID:    dbProfile.AgencyID,
		Bio:         dbProfile.Bio,
		Specialties: []string(dbProfile.Specialties),
		Sectors:     []string(dbProfile.Sectors),
		Rating:      dbProfile.Rating,
		TotalSales:  dbProfile.TotalSales,
		CreatedAt:   dbProfile.CreatedAt,
		UpdatedAt:   dbProfile.UpdatedAt,
	}

	if dbProfile.CommissionRate.Valid {
		rate := dbProfile.CommissionRate.Float64
		profile.CommissionRate = &rate
	}

	return profile
}

// InsertAgentProfile saves a new agent profile.
func (repo *Repository) InsertAgentProfile(profile *domain.AgentProfile) error {
	dbProfile := fromDomainAgentProfile(profile)
	query := `INSERT INTO agent_profiles (user_id, agency_id, bio, specialties, sectors, rating, total_sales, commission_rate, created_at, updated_at)
	          VALUES (:user_id, :agency_id, :bio, :specialties, :sectors, :rating, :total_sales, :commission_rate, :created_at, :updated_at)`

	_, err := repo.dbConn.NamedExec(query, dbProfile)
	if err != nil {
		return fmt.Errorf("inserting agent profile for %s : %w", profile.UserID, err)
	}
	return nil
}

// GetAgentProfile retrieves the agent profile for a user ID. It returns
// domain.ErrNoProfileForUser when the row is missing.
func (repo *Repository) GetAgentProfile(userID uuid.UUID) (*domain.AgentProfile, error) {
	var dbProfile dbAgentProfile
	query := `SELECT * FROM agent_profiles WHERE user_id = ?`

	err := repo.dbConn.Get(&dbProfile, repo.dbConn.Rebind(query), userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNoProfileForUser
	}
	if err != nil {
		return nil, fmt.Errorf("getting agent profile for %s : %w", userID, err)
	}

	return toDomainAgentProfile(&dbProfile), nil
}

// UpdateAgentProfile updates an agent profile.
func (repo *Repository) UpdateAgentProfile(profile *domain.AgentProfile) error {
	dbProfile := fromDomainAgentProfile(profile)
	query := `UPDATE agent_profiles SET
	            bio = :bio,
	            specialties = :specialties,
	            sectors = :sectors,
	            rating = :rating,
	            total_sales = :total_sales,
	            commission_rate = :commission_rate,
	            updated_at = :updated_at
	          WHERE user_id = :user_id`

	result, err := repo.dbConn.NamedExec(query, dbProfile)
	if err != nil {
		return fmt.Errorf("updating agent profile for %s : %w", profile.UserID, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected for agent profile %s : %w", profile.UserID, err)
	}

	if rowsAffected == 0 {
		return domain.ErrNoProfileForUser
	}
	return nil
}

// GetUsersWithoutProfile returns users of the given role missing their
// profile row. Accounts created before profile creation became part of
// registration show up here.
func (repo *Repository) GetUsersWithoutProfile(role string) ([]*domain.User, error) {
	var table string
	switch role {
	case domain.RoleAgent:
		table = "agent_profiles"
	case domain.RoleClient:
		table = "client_profiles"
	default:
		return nil, fmt.Errorf("role %s has no profile table", role)
	}

	query := fmt.Sprintf(`SELECT users.* FROM users
	          LEFT JOIN %s ON %s.user_id = users.id
	          WHERE users.role = ? AND %s.user_id IS NULL`, table, table, table)

	var dbUsers []*dbUser
	err := repo.dbConn.Select(&dbUsers, repo.dbConn.Rebind(query), role)
	if err != nil {
		return nil, fmt.Errorf("fetching %s users without profile : %w", role, err)
	}

	domainUsers := make([]*domain.User, len(dbUsers))
	for i, dbUser := range dbUsers {
		domainUsers[i] = toDomainUser(dbUser)
	}
	return domainUsers, nil
}
