package handlers

import (
	"database/sql"
	"log"
	"net/http"
	"strconv"

	"backend/models"
	"backend/services"
	"backend/utils"

	"github.com/gin-gonic/gin"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

// GetUsersHandler lists users
// @Summary List users
// @Description List all users with role and suspension state
// @Tags Users
// @Produce json
// @Param Authorization header string true "Session token"
// @Success 200 {array} models.User
// @Failure 500 {object} models.ErrorResponse
// @Router /api/users [get]
func GetUsersHandler(db *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		rows, err := db.Query(`
			SELECT id, employee_id, email, first_name, last_name, phone,
				   role_name, is_admin, suspended, permissions, created_at, updated_at
			FROM users ORDER BY last_name, first_name`)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch users", "details": err.Error()})
			return
		}
		defer rows.Close()

		users := []models.User{}
		for rows.Next() {
			var u models.User
			err := rows.Scan(&u.ID, &u.EmployeeId, &u.Email, &u.FirstName, &u.LastName,
				&u.Phone, &u.RoleName, &u.IsAdmin, &u.Suspended, pq.Array(&u.Permissions),
				&u.CreatedAt, &u.UpdatedAt)
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to scan user", "details": err.Error()})
				return
			}
			users = append(users, u)
		}

		c.JSON(http.StatusOK, users)
	}
}

// GetUserHandler fetches one user
// @Summary Get user
// @Description Fetch a single user by ID
// @Tags Users
// @Produce json
// @Param Authorization header string true "Session token"
// @Param id path int true "User ID"
// @Success 200 {object} models.User
// @Failure 404 {object} models.ErrorResponse
// @Router /api/users/{id} [get]
func GetUserHandler(db *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user ID"})
			return
		}

		var u models.User
		err = db.QueryRow(`
			SELECT id, employee_id, email, first_name, last_name, phone,
				   role_name, is_admin, suspended, permissions, created_at, updated_at
			FROM users WHERE id = $1`, id).Scan(
			&u.ID, &u.EmployeeId, &u.Email, &u.FirstName, &u.LastName,
			&u.Phone, &u.RoleName, &u.IsAdmin, &u.Suspended, pq.Array(&u.Permissions),
			&u.CreatedAt, &u.UpdatedAt)
		if err != nil {
			if err == sql.ErrNoRows {
				c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch user", "details": err.Error()})
			return
		}

		c.JSON(http.StatusOK, u)
	}
}

// CreateUserHandler creates a user
// @Summary Create user
// @Description Create a user with hashed password and an initial permission set
// @Tags Users
// @Accept json
// @Produce json
// @Param Authorization header string true "Session token"
// @Param request body object true "User payload"
// @Success 201 {object} models.User
// @Failure 400 {object} models.ErrorResponse
// @Failure 409 {object} models.ErrorResponse
// @Router /api/users [post]
func CreateUserHandler(db *sql.DB, gdb *gorm.DB, emailSvc *services.EmailService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body struct {
			EmployeeId  string   `json:"employee_id"`
			Email       string   `json:"email" binding:"required"`
			Password    string   `json:"password" binding:"required"`
			FirstName   string   `json:"first_name" binding:"required"`
			LastName    string   `json:"last_name" binding:"required"`
			Phone       string   `json:"phone"`
			RoleName    string   `json:"role_name"`
			IsAdmin     bool     `json:"is_admin"`
			Permissions []string `json:"permissions"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input", "details": err.Error()})
			return
		}

		hashed, err := utils.HashPassword(body.Password)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to hash password"})
			return
		}

		// Unknown permission keys are dropped rather than rejected, so stale
		// clients cannot block user creation.
		perms := services.NewPermissionSet(body.Permissions...).Normalize().Keys()

		var u models.User
		err = db.QueryRow(`
			INSERT INTO users (employee_id, email, password, first_name, last_name,
							   phone, role_name, is_admin, suspended, permissions,
							   created_at, updated_at)
			VALUES ($1, LOWER($2), $3, $4, $5, $6, $7, $8, false, $9, NOW(), NOW())
			RETURNING id, employee_id, email, first_name, last_name, phone,
					  role_name, is_admin, suspended, permissions, created_at, updated_at`,
			body.EmployeeId, body.Email, hashed, body.FirstName, body.LastName,
			body.Phone, body.RoleName, body.IsAdmin, pq.Array(perms)).Scan(
			&u.ID, &u.EmployeeId, &u.Email, &u.FirstName, &u.LastName,
			&u.Phone, &u.RoleName, &u.IsAdmin, &u.Suspended, pq.Array(&u.Permissions),
			&u.CreatedAt, &u.UpdatedAt)
		if err != nil {
			if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
				c.JSON(http.StatusConflict, gin.H{"error": "A user with this email already exists"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create user", "details": err.Error()})
			return
		}

		actor := CurrentUser(c)
		LogActivity(gdb, actor.ID, "user", u.ID, "created", nil, u)

		if err := emailSvc.SendWelcomeEmail(u, body.Password, nil); err != nil {
			log.Printf("welcome email to %s failed: %v", u.Email, err)
		}

		c.JSON(http.StatusCreated, u)
	}
}

// UpdateUserHandler updates profile fields on a user
// @Summary Update user
// @Description Update a user's profile fields. Permissions are managed separately.
// @Tags Users
// @Accept json
// @Produce json
// @Param Authorization header string true "Session token"
// @Param id path int true "User ID"
// @Success 200 {object} models.User
// @Failure 400 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /api/users/{id} [put]
func UpdateUserHandler(db *sql.DB, gdb *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user ID"})
			return
		}

		var body struct {
			EmployeeId string `json:"employee_id"`
			FirstName  string `json:"first_name"`
			LastName   string `json:"last_name"`
			Phone      string `json:"phone"`
			RoleName   string `json:"role_name"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input", "details": err.Error()})
			return
		}

		var u models.User
		err = db.QueryRow(`
			UPDATE users SET employee_id = $1, first_name = $2, last_name = $3,
							 phone = $4, role_name = $5, updated_at = NOW()
			WHERE id = $6
			RETURNING id, employee_id, email, first_name, last_name, phone,
					  role_name, is_admin, suspended, permissions, created_at, updated_at`,
			body.EmployeeId, body.FirstName, body.LastName, body.Phone, body.RoleName, id).Scan(
			&u.ID, &u.EmployeeId, &u.Email, &u.FirstName, &u.LastName,
			&u.Phone, &u.RoleName, &u.IsAdmin, &u.Suspended, pq.Array(&u.Permissions),
			&u.CreatedAt, &u.UpdatedAt)
		if err != nil {
			if err == sql.ErrNoRows {
				c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update user", "details": err.Error()})
			return
		}

		actor := CurrentUser(c)
		LogActivity(gdb, actor.ID, "user", u.ID, "updated", nil, u)

		c.JSON(http.StatusOK, u)
	}
}

// SuspendUserHandler toggles suspension on a user
// @Summary Suspend or reinstate user
// @Description Set the suspended flag. Suspending also kills the user's sessions.
// @Tags Users
// @Accept json
// @Produce json
// @Param Authorization header string true "Session token"
// @Param id path int true "User ID"
// @Success 200 {object} models.MessageResponse
// @Failure 400 {object} models.ErrorResponse
// @Router /api/users/{id}/suspend [put]
func SuspendUserHandler(db *sql.DB, gdb *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user ID"})
			return
		}

		var body struct {
			Suspended bool `json:"suspended"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input"})
			return
		}

		actor := CurrentUser(c)
		if body.Suspended && actor.ID == id {
			c.JSON(http.StatusBadRequest, gin.H{"error": "You cannot suspend your own account"})
			return
		}

		tx, err := db.Begin()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to start transaction", "details": err.Error()})
			return
		}

		result, err := tx.Exec(`UPDATE users SET suspended = $1, updated_at = NOW() WHERE id = $2`, body.Suspended, id)
		if err != nil {
			tx.Rollback()
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update user", "details": err.Error()})
			return
		}
		if rows, _ := result.RowsAffected(); rows == 0 {
			tx.Rollback()
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
			return
		}

		if body.Suspended {
			if _, err := tx.Exec(`DELETE FROM session WHERE user_id = $1`, id); err != nil {
				tx.Rollback()
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to clear sessions", "details": err.Error()})
				return
			}
		}

		if err := tx.Commit(); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to commit", "details": err.Error()})
			return
		}

		action := "reinstated"
		if body.Suspended {
			action = "suspended"
		}
		LogActivity(gdb, actor.ID, "user", id, action, nil, body)

		c.JSON(http.StatusOK, gin.H{"message": "User " + action})
	}
}

// ChangePasswordHandler lets a user change their own password
// @Summary Change password
// @Description Change the current user's password after verifying the old one
// @Tags Users
// @Accept json
// @Produce json
// @Param Authorization header string true "Session token"
// @Success 200 {object} models.MessageResponse
// @Failure 400 {object} models.ErrorResponse
// @Failure 401 {object} models.ErrorResponse
// @Router /api/users/password [put]
func ChangePasswordHandler(db *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := CurrentUser(c)

		var body struct {
			OldPassword string `json:"old_password" binding:"required"`
			NewPassword string `json:"new_password" binding:"required,min=8"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input", "details": err.Error()})
			return
		}

		var storedHash string
		if err := db.QueryRow(`SELECT password FROM users WHERE id = $1`, user.ID).Scan(&storedHash); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch user", "details": err.Error()})
			return
		}
		if !utils.ValidatePassword(storedHash, body.OldPassword) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Current password is incorrect"})
			return
		}

		hashed, err := utils.HashPassword(body.NewPassword)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to hash password"})
			return
		}
		if _, err := db.Exec(`UPDATE users SET password = $1, updated_at = NOW() WHERE id = $2`, hashed, user.ID); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update password", "details": err.Error()})
			return
		}

		utils.SuccessResponse(c, "Password changed", http.StatusOK)
	}
}
