package handlers

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"noircafe-backend/dtos"
	"noircafe-backend/firebase"
	"noircafe-backend/models"
	"noircafe-backend/utils"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type AuthHandler struct {
	DB       *gorm.DB
	Verifier firebase.IdentityVerifier
	Logger   *zap.Logger
}

// FirebaseLogin exchanges a Firebase ID token for an API token, creating the
// user on first sign-in.
func (h *AuthHandler) FirebaseLogin(c *gin.Context) {
	var req dtos.FirebaseLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if h.Verifier == nil {
		utils.Error(c, http.StatusServiceUnavailable, "Firebase sign-in is not configured", nil)
		return
	}

	identity, err := h.Verifier.Verify(c.Request.Context(), req.IDToken)
	if err != nil {
		if errors.Is(err, firebase.ErrInvalidIDToken) {
			utils.Error(c, http.StatusUnauthorized, "Invalid Firebase token", nil)
			return
		}
		serverError(c, h.Logger, "Failed to verify Firebase token", err)
		return
	}

	db := h.DB.WithContext(c.Request.Context())
	now := time.Now()
	var user models.User
	err = db.Where("uid = ?", identity.UID).First(&user).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		provider := req.Provider
		if provider == "" {
			provider = models.ProviderGoogle
		}
		user = models.User{
			UID:             identity.UID,
			Email:           identity.Email,
			DisplayName:     displayNameFor(identity.Name, identity.Email),
			PhotoURL:        identity.Picture,
			Provider:        provider,
			IsEmailVerified: true,
			Role:            models.RoleCustomer,
			Status:          models.StatusActive,
			LastLoginAt:     &now,
			LoginCount:      1,
		}
		if err := db.Create(&user).Error; err != nil {
			serverError(c, h.Logger, "Failed to create user", err)
			return
		}
		utils.SendWelcomeEmail(user.Email, user.DisplayName)
	case err != nil:
		serverError(c, h.Logger, "Failed to sign in", err)
		return
	default:
		if !user.IsActive() {
			utils.Error(c, http.StatusForbidden, "Your account is not active", nil)
			return
		}
		profile := map[string]interface{}{}
		if identity.Email != "" {
			profile["email"] = strings.ToLower(strings.TrimSpace(identity.Email))
		}
		if identity.Name != "" {
			profile["display_name"] = identity.Name
		}
		if identity.Picture != "" {
			profile["photo_url"] = identity.Picture
		}
		if err := h.recordLogin(c.Request.Context(), &user, now, profile); err != nil {
			serverError(c, h.Logger, "Failed to sign in", err)
			return
		}
	}

	h.issueToken(c, http.StatusOK, "Signed in", &user)
}

func (h *AuthHandler) Register(c *gin.Context) {
	var req dtos.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	db := h.DB.WithContext(c.Request.Context())
	email := strings.ToLower(strings.TrimSpace(req.Email))
	var existing models.User
	if err := db.Where("email = ?", email).First(&existing).Error; err == nil {
		utils.Error(c, http.StatusBadRequest, "Email already registered", nil)
		return
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		serverError(c, h.Logger, "Failed to create account", err)
		return
	}

	suffix, err := randomSuffix()
	if err != nil {
		serverError(c, h.Logger, "Failed to create account", err)
		return
	}

	now := time.Now()
	user := models.User{
		UID:         fmt.Sprintf("email_%d_%s", now.UnixMilli(), suffix),
		Email:       email,
		Password:    string(hashedPassword),
		DisplayName: req.DisplayName,
		Provider:    models.ProviderEmail,
		Role:        models.RoleCustomer,
		Status:      models.StatusActive,
		LastLoginAt: &now,
		LoginCount:  1,
	}
	if err := db.Create(&user).Error; err != nil {
		// a concurrent registration can still win the unique index
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			utils.Error(c, http.StatusBadRequest, "Email already registered", nil)
			return
		}
		serverError(c, h.Logger, "Failed to create account", err)
		return
	}

	utils.SendWelcomeEmail(user.Email, user.DisplayName)
	h.issueToken(c, http.StatusCreated, "Account created", &user)
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req dtos.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	var user models.User
	if err := h.DB.WithContext(c.Request.Context()).Where("email = ?", strings.ToLower(strings.TrimSpace(req.Email))).First(&user).Error; err != nil {
		utils.Error(c, http.StatusUnauthorized, "Invalid email or password", nil)
		return
	}
	if user.Password == "" || bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)) != nil {
		utils.Error(c, http.StatusUnauthorized, "Invalid email or password", nil)
		return
	}
	if !user.IsActive() {
		utils.Error(c, http.StatusForbidden, "Your account is not active", nil)
		return
	}

	if err := h.recordLogin(c.Request.Context(), &user, time.Now(), nil); err != nil {
		serverError(c, h.Logger, "Failed to sign in", err)
		return
	}

	h.issueToken(c, http.StatusOK, "Signed in", &user)
}

// Refresh re-issues a token for a valid or recently expired one.
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req dtos.RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	claims, err := utils.ValidateTokenAllowExpired(req.Token)
	if err != nil {
		utils.Error(c, http.StatusUnauthorized, "Invalid or expired token", nil)
		return
	}

	var user models.User
	if err := h.DB.WithContext(c.Request.Context()).Where("uid = ?", claims.UID).First(&user).Error; err != nil {
		utils.Error(c, http.StatusNotFound, "User not found", nil)
		return
	}
	if !user.IsActive() {
		utils.Error(c, http.StatusForbidden, "Your account is not active", nil)
		return
	}

	h.issueToken(c, http.StatusOK, "Token refreshed", &user)
}

func (h *AuthHandler) Verify(c *gin.Context) {
	token := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
	if token == "" {
		utils.Error(c, http.StatusUnauthorized, "Token required", nil)
		return
	}
	claims, err := utils.ValidateToken(token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, utils.Envelope{
			Status:  "error",
			Message: "Invalid or expired token",
			Data:    gin.H{"token_valid": false},
		})
		return
	}

	var user models.User
	if err := h.DB.WithContext(c.Request.Context()).Where("uid = ?", claims.UID).First(&user).Error; err != nil {
		utils.Error(c, http.StatusNotFound, "User not found", nil)
		return
	}
	utils.Success(c, http.StatusOK, "Token is valid", gin.H{"user": user, "token_valid": true})
}

// Logout is stateless; clients drop their token.
func (h *AuthHandler) Logout(c *gin.Context) {
	utils.Success(c, http.StatusOK, "Signed out", nil)
}

func (h *AuthHandler) issueToken(c *gin.Context, code int, message string, user *models.User) {
	token, expiresAt, err := utils.GenerateToken(user.UID, user.Email, user.Role)
	if err != nil {
		serverError(c, h.Logger, "Failed to generate token", err)
		return
	}
	utils.Success(c, code, message, gin.H{
		"user":       user,
		"token":      token,
		"expires_in": utils.AccessTokenTTL.String(),
		"expires_at": expiresAt.UTC().Format(time.RFC3339),
	})
}

// recordLogin writes only the sign-in columns and reloads user. The points
// counters and tier are left to the ledger's locked writes.
func (h *AuthHandler) recordLogin(ctx context.Context, user *models.User, now time.Time, profile map[string]interface{}) error {
	updates := map[string]interface{}{
		"last_login_at": now,
		"login_count":   gorm.Expr("login_count + ?", 1),
	}
	for column, value := range profile {
		updates[column] = value
	}
	db := h.DB.WithContext(ctx)
	if err := db.Model(&models.User{}).Where("uid = ?", user.UID).Updates(updates).Error; err != nil {
		return err
	}
	return db.Where("uid = ?", user.UID).First(user).Error
}

func displayNameFor(name, email string) string {
	if name != "" {
		return name
	}
	if local, _, ok := strings.Cut(email, "@"); ok && local != "" {
		return local
	}
	return "Noir guest"
}

func randomSuffix() (string, error) {
	b := make([]byte, 5)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b)[:9], nil
}
