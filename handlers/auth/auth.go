package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sahilchouksey/course-market-api/model"
	"github.com/sahilchouksey/course-market-api/utils/auth"
	"github.com/sahilchouksey/course-market-api/utils/middleware"
	"github.com/sahilchouksey/course-market-api/utils/response"
	"github.com/sahilchouksey/course-market-api/utils/validation"
	"gorm.io/gorm"
)

// AuthHandler handles authentication endpoints
type AuthHandler struct {
	db         *gorm.DB
	validator  *validation.Validator
	jwtManager *auth.JWTManager
	blacklist  *auth.BlacklistService
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(db *gorm.DB, jwtManager *auth.JWTManager) *AuthHandler {
	return &AuthHandler{
		db:         db,
		validator:  validation.NewValidator(),
		jwtManager: jwtManager,
		blacklist:  auth.NewBlacklistService(db),
	}
}

// RegisterRequest represents the request body for registration
type RegisterRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,max=128"`
	Name     string `json:"name" validate:"required,min=2,max=100"`
}

// LoginRequest represents the request body for login
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// RefreshRequest represents the request body for a token refresh
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// Register handles POST /api/v1/auth/register
func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var req RegisterRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}

	if err := h.validator.ValidateStruct(req); err != nil {
		return response.ValidationError(c, err)
	}

	if ok, problems := validation.ValidatePasswordStrength(req.Password); !ok {
		return response.ErrorWithDetails(c, fiber.StatusBadRequest,
			"Password does not meet requirements", "WEAK_PASSWORD", strings.Join(problems, "; "))
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))

	var existing model.User
	err := h.db.WithContext(c.Context()).Where("email = ?", email).First(&existing).Error
	if err == nil {
		return response.Conflict(c, "Email already registered")
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return response.InternalServerError(c, "Failed to check email")
	}

	passwordHash, err := auth.HashPassword(req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrPasswordTooShort) {
			return response.BadRequest(c, "Password is too short")
		}
		return response.InternalServerError(c, "Failed to process password")
	}

	user := &model.User{
		Email:        email,
		PasswordHash: passwordHash,
		Name:         strings.TrimSpace(req.Name),
		Role:         model.RoleStudent,
	}

	if err := h.db.WithContext(c.Context()).Create(user).Error; err != nil {
		return response.InternalServerError(c, "Failed to create user")
	}

	return h.respondWithTokens(c, user, fiber.StatusCreated)
}

// Login handles POST /api/v1/auth/login
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}

	if err := h.validator.ValidateStruct(req); err != nil {
		return response.ValidationError(c, err)
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))

	var user model.User
	err := h.db.WithContext(c.Context()).Where("email = ?", email).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return response.Unauthorized(c, "Invalid email or password")
		}
		return response.InternalServerError(c, "Failed to load user")
	}

	if err := auth.VerifyPassword(user.PasswordHash, req.Password); err != nil {
		return response.Unauthorized(c, "Invalid email or password")
	}

	return h.respondWithTokens(c, &user, fiber.StatusOK)
}

// Refresh handles POST /api/v1/auth/refresh
func (h *AuthHandler) Refresh(c *fiber.Ctx) error {
	var req RefreshRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}

	if err := h.validator.ValidateStruct(req); err != nil {
		return response.ValidationError(c, err)
	}

	claims, err := h.jwtManager.ValidateToken(req.RefreshToken)
	if err != nil {
		return response.Unauthorized(c, "Invalid refresh token")
	}
	if claims.TokenType != "refresh" {
		return response.Unauthorized(c, "Invalid token type")
	}

	revoked, err := h.blacklist.IsTokenRevoked(c.Context(), claims.ID)
	if err != nil {
		return response.InternalServerError(c, "Failed to check token status")
	}
	if revoked {
		return response.Unauthorized(c, "Token has been revoked")
	}

	var user model.User
	if err := h.db.WithContext(c.Context()).First(&user, claims.UserID).Error; err != nil {
		return response.Unauthorized(c, "User not found")
	}
	if user.TokenVersion != claims.TokenVersion {
		return response.Unauthorized(c, "Token has been invalidated")
	}

	accessToken, _, err := h.jwtManager.RefreshAccessToken(req.RefreshToken, user.TokenVersion)
	if err != nil {
		return response.Unauthorized(c, "Invalid refresh token")
	}

	// Rotate the refresh token as well; the old one stays valid until expiry
	// or an explicit logout-all.
	refreshToken, _, err := h.jwtManager.GenerateRefreshToken(user.ID, user.Email, user.Role, user.TokenVersion)
	if err != nil {
		return response.InternalServerError(c, "Failed to generate token")
	}

	return h.tokenResponse(c, fiber.StatusOK, &user, accessToken, refreshToken)
}

// Logout handles POST /api/v1/auth/logout
func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	user, ok := middleware.GetUser(c)
	if !ok || user == nil {
		return response.Unauthorized(c, "User not authenticated")
	}

	jti, _ := c.Locals("token_jti").(string)
	if jti != "" {
		// Keep the blacklist entry exactly as long as the token itself.
		expiresAt := time.Now().Add(24 * time.Hour)
		if parts := strings.Split(c.Get("Authorization"), " "); len(parts) == 2 {
			if exp, err := h.jwtManager.GetTokenExpiry(parts[1]); err == nil {
				expiresAt = exp
			}
		}
		if err := h.blacklist.RevokeToken(c.Context(), jti, user.ID, expiresAt, "logout"); err != nil {
			return response.InternalServerError(c, "Failed to revoke token")
		}
	}

	return response.SuccessWithMessage(c, "Logged out", nil)
}

// LogoutAll handles POST /api/v1/auth/logout-all. Bumping the token version
// invalidates every outstanding token for the account, access and refresh
// alike.
func (h *AuthHandler) LogoutAll(c *fiber.Ctx) error {
	user, ok := middleware.GetUser(c)
	if !ok || user == nil {
		return response.Unauthorized(c, "User not authenticated")
	}

	if err := h.blacklist.RevokeAllUserTokens(c.Context(), user.ID); err != nil {
		return response.InternalServerError(c, "Failed to revoke tokens")
	}

	return response.SuccessWithMessage(c, "Logged out everywhere", nil)
}

// Profile handles GET /api/v1/auth/profile
func (h *AuthHandler) Profile(c *fiber.Ctx) error {
	user, ok := middleware.GetUser(c)
	if !ok || user == nil {
		return response.Unauthorized(c, "User not authenticated")
	}

	return response.Success(c, user)
}

func (h *AuthHandler) respondWithTokens(c *fiber.Ctx, user *model.User, status int) error {
	accessToken, _, err := h.jwtManager.GenerateAccessToken(user.ID, user.Email, user.Role, user.TokenVersion)
	if err != nil {
		return response.InternalServerError(c, "Failed to generate token")
	}

	refreshToken, _, err := h.jwtManager.GenerateRefreshToken(user.ID, user.Email, user.Role, user.TokenVersion)
	if err != nil {
		return response.InternalServerError(c, "Failed to generate token")
	}

	return h.tokenResponse(c, status, user, accessToken, refreshToken)
}

func (h *AuthHandler) tokenResponse(c *fiber.Ctx, status int, user *model.User, accessToken, refreshToken string) error {
	return c.Status(status).JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"user":          user,
			"access_token":  accessToken,
			"refresh_token": refreshToken,
		},
	})
}
