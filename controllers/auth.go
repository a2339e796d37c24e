package controllers

import (
	"strings"

	"schoolcore/middleware"
	"schoolcore/models"
	"schoolcore/utils"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type AuthController struct {
	db       *gorm.DB
	auth     *middleware.Authenticator
	activity middleware.ActivityRecorder
}

func NewAuthController(db *gorm.DB, auth *middleware.Authenticator, activity middleware.ActivityRecorder) *AuthController {
	return &AuthController{db: db, auth: auth, activity: activity}
}

// LoginRequest represents the login request body
type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type userResponse struct {
	ID        uint        `json:"id"`
	Username  string      `json:"username"`
	Email     string      `json:"email"`
	FirstName string      `json:"first_name"`
	LastName  string      `json:"last_name"`
	Role      models.Role `json:"role"`
	Status    string      `json:"status"`
}

func toUserResponse(u *models.User) userResponse {
	return userResponse{
		ID:        u.ID,
		Username:  u.Username,
		Email:     u.Email,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Role:      u.Role,
		Status:    u.Status,
	}
}

// Login authenticates a user and returns a JWT token
func (ac *AuthController) Login(c *fiber.Ctx) error {
	var req LoginRequest
	if err := bind(c, &req); err != nil {
		return respondError(c, err)
	}

	var user models.User
	if err := ac.db.WithContext(c.UserContext()).Where("username = ? AND status = ?", strings.TrimSpace(req.Username), "active").First(&user).Error; err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid credentials"})
	}
	if err := utils.CheckPassword(req.Password, user.Password); err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid credentials"})
	}

	token, expires, err := ac.auth.GenerateToken(&user)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to generate token"})
	}

	c.Locals("principal", &middleware.Principal{UserID: user.ID, Username: user.Username, Role: user.Role})
	middleware.LogActivity(c, ac.activity, "LOGIN", "auth", user.ID, map[string]interface{}{
		"username": user.Username,
		"role":     user.Role,
	})

	return c.JSON(fiber.Map{
		"message":    "Login successful",
		"token":      token,
		"expires_at": expires,
		"user":       toUserResponse(&user),
	})
}

// GetProfile returns the current user's profile
func (ac *AuthController) GetProfile(c *fiber.Ctx) error {
	user, err := middleware.GetCurrentUser(c)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"user": toUserResponse(user)})
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required,min=8"`
}

func (ac *AuthController) ChangePassword(c *fiber.Ctx) error {
	user, err := middleware.GetCurrentUser(c)
	if err != nil {
		return respondError(c, err)
	}
	var req ChangePasswordRequest
	if err := bind(c, &req); err != nil {
		return respondError(c, err)
	}
	if err := utils.CheckPassword(req.CurrentPassword, user.Password); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Current password is incorrect"})
	}

	hash, err := utils.HashPassword(req.NewPassword)
	if err != nil {
		return respondError(c, err)
	}
	if err := ac.db.WithContext(c.UserContext()).Model(user).Update("password", hash).Error; err != nil {
		return respondError(c, err)
	}
	middleware.LogActivity(c, ac.activity, "UPDATE", "auth", user.ID, map[string]interface{}{"change": "password"})
	return c.JSON(fiber.Map{"message": "Password changed successfully"})
}

// Logout revokes the bearer token when Redis is available.
func (ac *AuthController) Logout(c *fiber.Ctx) error {
	token, err := middleware.BearerToken(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid authorization header format"})
	}
	details := map[string]interface{}{}
	if err := ac.auth.Revoke(c.UserContext(), token); err != nil {
		details["revoke_error"] = err.Error()
	}
	var userID uint
	if p, err := middleware.GetPrincipal(c); err == nil {
		userID = p.UserID
	}
	middleware.LogActivity(c, ac.activity, "LOGOUT", "auth", userID, details)
	return c.JSON(fiber.Map{"message": "Logged out successfully"})
}

type CreateUserRequest struct {
	Username  string `json:"username" validate:"required,min=3,max=50"`
	Password  string `json:"password" validate:"required,min=8"`
	Email     string `json:"email" validate:"omitempty,email"`
	Phone     string `json:"phone" validate:"max=20"`
	FirstName string `json:"first_name" validate:"max=100"`
	LastName  string `json:"last_name" validate:"max=100"`
	Role      string `json:"role" validate:"required"`
	Status    string `json:"status"`
}

// CreateUser adds a staff account (admin only).
func (ac *AuthController) CreateUser(c *fiber.Ctx) error {
	var req CreateUserRequest
	if err := bind(c, &req); err != nil {
		return respondError(c, err)
	}
	role, ok := models.ParseRole(strings.ToLower(req.Role))
	if !ok {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"error":  "Validation failed",
			"fields": fiber.Map{"role": "must be admin, headmaster, bursar, teacher or staff"},
		})
	}
	status := strings.ToLower(strings.TrimSpace(req.Status))
	if status == "" {
		status = "active"
	}
	if !utils.IsValidStatus(status) {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"error":  "Validation failed",
			"fields": fiber.Map{"status": "must be active, inactive or suspended"},
		})
	}

	db := ac.db.WithContext(c.UserContext())
	var n int64
	if err := db.Unscoped().Model(&models.User{}).Where("username = ?", strings.TrimSpace(req.Username)).Count(&n).Error; err != nil {
		return respondError(c, err)
	}
	if n > 0 {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "Username already exists"})
	}

	hash, err := utils.HashPassword(req.Password)
	if err != nil {
		return respondError(c, err)
	}
	user := models.User{
		Username:  strings.TrimSpace(req.Username),
		Password:  hash,
		Email:     strings.ToLower(strings.TrimSpace(req.Email)),
		Phone:     req.Phone,
		FirstName: utils.SanitizeString(req.FirstName),
		LastName:  utils.SanitizeString(req.LastName),
		Role:      role,
		Status:    status,
	}
	if err := db.Create(&user).Error; err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "User created successfully",
		"user":    toUserResponse(&user),
	})
}
