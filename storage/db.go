package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"backend/models"

	"github.com/joho/godotenv"
	"github.com/lib/pq"
)

var db *sql.DB

func InitDB() *sql.DB {
	if err := godotenv.Load(); err != nil {
		log.Fatal("Error loading .env file")
	}
	user := os.Getenv("DB_USER")
	password := os.Getenv("DB_PASSWORD")
	dbname := os.Getenv("DB_NAME")
	host := os.Getenv("DB_HOST")
	port := os.Getenv("DB_PORT")

	connStr := fmt.Sprintf("user=%s password=%s dbname=%s host=%s port=%s sslmode=disable",
		user, password, dbname, host, port)

	var err error
	db, err = sql.Open("postgres", connStr)
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}

	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(2 * time.Minute)

	if err := db.Ping(); err != nil {
		log.Fatal("Failed to ping database:", err)
	}

	return db
}

func GetDB() *sql.DB {
	return db
}

// SaveSession saves a new session for a user. If allowMultipleSessions is
// false, every existing session for the user is deleted first so only one
// device stays logged in.
func SaveSession(db *sql.DB, session *models.Session, allowMultipleSessions bool) error {
	if !allowMultipleSessions {
		_, err := db.Exec(`DELETE FROM session WHERE user_id = $1`, session.UserID)
		if err != nil {
			return fmt.Errorf("failed to delete existing user sessions: %v", err)
		}
	}

	insertQuery := `INSERT INTO session (user_id, session_id, host_name, ip_address, timestp, expires_at, refresh_token, refresh_token_expires_at)
                    VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := db.Exec(insertQuery, session.UserID, session.SessionID, session.HostName, session.IPAddress, session.Timestamp, session.ExpiresAt, session.RefreshToken, session.RefreshTokenExpiresAt)
	if err != nil {
		return fmt.Errorf("failed to insert new session: %v", err)
	}
	return nil
}

// GetRefreshTokenBySession retrieves the refresh token bound to a session,
// failing if it has expired.
func GetRefreshTokenBySession(db *sql.DB, sessionID string) (string, error) {
	var refreshToken string
	err := db.QueryRow(`
		SELECT refresh_token FROM session
		WHERE session_id = $1 AND refresh_token_expires_at > NOW()`, sessionID).Scan(&refreshToken)
	if err != nil {
		return "", fmt.Errorf("refresh token not found: %v", err)
	}
	return refreshToken, nil
}

// RotateSessionTokens replaces the access and refresh tokens on an existing
// session row after a refresh.
func RotateSessionTokens(db *sql.DB, oldSessionID, newSessionID string, expiresAt time.Time, refreshToken string, refreshExpiresAt time.Time) error {
	result, err := db.Exec(`
		UPDATE session SET session_id = $1, expires_at = $2, refresh_token = $3, refresh_token_expires_at = $4
		WHERE session_id = $5`, newSessionID, expiresAt, refreshToken, refreshExpiresAt, oldSessionID)
	if err != nil {
		return fmt.Errorf("failed to rotate session tokens: %v", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %v", err)
	}
	if rows == 0 {
		return fmt.Errorf("session not found: %s", oldSessionID)
	}
	return nil
}

func DeleteSession(db *sql.DB, userID int) error {
	_, err := db.Exec(`DELETE FROM session WHERE user_id = $1`, userID)
	return err
}

// DeleteSessionByID deletes one session row, scoped to its owner.
func DeleteSessionByID(db *sql.DB, sessionID string, userID int) error {
	result, err := db.Exec(`DELETE FROM session WHERE session_id = $1 AND user_id = $2`, sessionID, userID)
	if err != nil {
		return fmt.Errorf("failed to delete session: %v", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %v", err)
	}
	if rows == 0 {
		return fmt.Errorf("session not found or already deleted")
	}
	return nil
}

// GetUserSessions returns all active sessions for a user, newest first.
func GetUserSessions(db *sql.DB, userID int) ([]models.Session, error) {
	rows, err := db.Query(`
		SELECT user_id, session_id, host_name, ip_address, timestp, expires_at
		FROM session WHERE user_id = $1 AND expires_at > NOW()
		ORDER BY timestp DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sessions := []models.Session{}
	for rows.Next() {
		var s models.Session
		if err := rows.Scan(&s.UserID, &s.SessionID, &s.HostName, &s.IPAddress, &s.Timestamp, &s.ExpiresAt); err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, nil
}

func GetUserByEmail(db *sql.DB, email string) (*models.User, error) {
	var user models.User
	query := `SELECT id, email, password, suspended FROM users WHERE LOWER(email) = LOWER($1)`

	err := db.QueryRow(query, email).Scan(&user.ID, &user.Email, &user.Password, &user.Suspended)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("user with email %s not found", email)
		}
		return nil, fmt.Errorf("failed to query user: %v", err)
	}
	return &user, nil
}

// GetUserBySessionID resolves the authenticated user behind a session ID.
// Suspended accounts resolve to an error even when the session is valid.
func GetUserBySessionID(db *sql.DB, sessionID string) (*models.User, error) {
	query := `
		SELECT u.id, u.employee_id, u.email, u.first_name, u.last_name,
			   u.created_at, u.updated_at, u.first_access, u.last_access,
			   u.profile_picture, u.is_admin, u.phone, u.role_name,
			   u.suspended, u.permissions
		FROM session s
		JOIN users u ON s.user_id = u.id
		WHERE s.session_id = $1 AND s.expires_at > NOW()
	`

	var user models.User
	var firstAccess, lastAccess sql.NullTime

	err := db.QueryRow(query, sessionID).Scan(
		&user.ID, &user.EmployeeId, &user.Email, &user.FirstName,
		&user.LastName, &user.CreatedAt, &user.UpdatedAt,
		&firstAccess, &lastAccess, &user.ProfilePic,
		&user.IsAdmin, &user.Phone, &user.RoleName,
		&user.Suspended, pq.Array(&user.Permissions),
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.New("no active session for the given session ID")
		}
		return nil, err
	}
	if user.Suspended {
		return nil, errors.New("account suspended")
	}

	if firstAccess.Valid {
		user.FirstAccess = firstAccess.Time
	}
	if lastAccess.Valid {
		user.LastAccess = lastAccess.Time
	}

	return &user, nil
}

// MarkUserAccess stamps first_access (once) and last_access for a user.
func MarkUserAccess(db *sql.DB, userID int) error {
	_, err := db.Exec(`
		UPDATE users SET first_access = COALESCE(first_access, NOW()), last_access = NOW()
		WHERE id = $1`, userID)
	return err
}

func CleanupExpiredSessions(db *sql.DB) error {
	threshold := time.Now().Add(-24 * time.Hour)
	_, err := db.Exec(`DELETE FROM session WHERE expires_at < $1`, threshold)
	return err
}
