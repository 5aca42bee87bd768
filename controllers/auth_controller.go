package controllers

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/quillworks/quill/config"
	"github.com/quillworks/quill/middleware"
	"github.com/quillworks/quill/models"
	"github.com/quillworks/quill/utils"
)

// resetTokenTTL bounds how long a password-reset link stays usable.
const resetTokenTTL = time.Hour

// resetGenericMessage is returned for every reset request, whether or not the
// email exists, so the endpoint cannot be used to enumerate accounts.
const resetGenericMessage = "if the email is registered, a reset link has been sent"

// invalidResetMessage covers every reset failure mode indistinguishably:
// unknown user, consumed token, expired token, wrong token.
const invalidResetMessage = "invalid or expired reset token"

// AuthController handles registration, login, identity lookup and the
// password-reset flow.
type AuthController struct {
	db     *gorm.DB
	mailer utils.Mailer
}

// NewAuthController creates an AuthController.
func NewAuthController(db *gorm.DB, mailer utils.Mailer) *AuthController {
	return &AuthController{db: db, mailer: mailer}
}

// Register handles local account registration with bcrypt hashing.
func (a *AuthController) Register(ctx *gin.Context) {
	var req struct {
		Username string `json:"username"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}

	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40001, "invalid request payload")
		return
	}

	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.TrimSpace(req.Email)
	if req.Username == "" || req.Email == "" || req.Password == "" {
		utils.Error(ctx, http.StatusBadRequest, 40002, "username, email, and password are required")
		return
	}

	var existing models.User
	if err := a.db.Where("email = ?", req.Email).First(&existing).Error; err == nil {
		utils.Error(ctx, http.StatusConflict, 40901, "email already registered")
		return
	}

	hash, err := utils.HashPassword(req.Password)
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50001, "failed to hash password")
		return
	}

	user := models.User{
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: hash,
	}

	if err := a.db.Create(&user).Error; err != nil {
		// The unique index re-verifies the pre-check under concurrent registration.
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			utils.Error(ctx, http.StatusConflict, 40901, "email already registered")
			return
		}
		utils.Error(ctx, http.StatusInternalServerError, 50002, "failed to create user")
		return
	}

	utils.Respond(ctx, http.StatusCreated, 0, "user created", gin.H{"user_id": user.ID})
}

// Login verifies user credentials and issues a JWT.
func (a *AuthController) Login(ctx *gin.Context) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}

	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40003, "invalid request payload")
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		utils.Error(ctx, http.StatusBadRequest, 40004, "email and password are required")
		return
	}

	// Unknown email and wrong password must be indistinguishable to the caller.
	var user models.User
	if err := a.db.Where("email = ?", strings.TrimSpace(req.Email)).First(&user).Error; err != nil {
		utils.Error(ctx, http.StatusUnauthorized, 40106, "invalid email or password")
		return
	}
	if !utils.CheckPassword(user.PasswordHash, req.Password) {
		utils.Error(ctx, http.StatusUnauthorized, 40106, "invalid email or password")
		return
	}

	ttl := time.Duration(config.Get().TokenTTLHours) * time.Hour
	token, err := utils.GenerateToken(user.ID, user.Username, ttl)
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50004, "failed to generate token")
		return
	}

	utils.Success(ctx, gin.H{
		"token": token,
		"user":  user.Public(),
	})
}

// Me returns the authenticated user's public profile.
func (a *AuthController) Me(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}

	var user models.User
	if err := a.db.First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.Error(ctx, http.StatusNotFound, 40410, "user not found")
			return
		}
		utils.Error(ctx, http.StatusInternalServerError, 50005, "failed to load user")
		return
	}

	utils.Success(ctx, user.Public())
}

// RequestPasswordReset issues a reset token when the email belongs to a user
// and hands the link to the mailer. The response never reveals whether the
// email exists, and a mail failure never fails the request.
func (a *AuthController) RequestPasswordReset(ctx *gin.Context) {
	var req struct {
		Email string `json:"email"`
	}

	if err := ctx.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Email) == "" {
		utils.Error(ctx, http.StatusBadRequest, 40005, "email is required")
		return
	}
	email := strings.TrimSpace(req.Email)

	var user models.User
	if err := a.db.Where("email = ?", email).First(&user).Error; err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			utils.Sugar.Warnf("reset request lookup failed for %s: %v", email, err)
		}
		utils.Success(ctx, gin.H{"message": resetGenericMessage})
		return
	}

	raw, err := utils.GenerateResetToken()
	if err != nil {
		utils.Sugar.Errorf("reset token generation failed: %v", err)
		utils.Success(ctx, gin.H{"message": resetGenericMessage})
		return
	}

	// A new request supersedes any previously issued token.
	tokenHash := utils.HashResetToken(raw)
	expiry := time.Now().UTC().Add(resetTokenTTL)
	if err := a.db.Model(&user).Updates(map[string]interface{}{
		"reset_token_hash":   tokenHash,
		"reset_token_expiry": expiry,
	}).Error; err != nil {
		utils.Sugar.Errorf("failed to store reset token for user %d: %v", user.ID, err)
		utils.Success(ctx, gin.H{"message": resetGenericMessage})
		return
	}

	resetURL := fmt.Sprintf("%s/reset-password?token=%s&email=%s",
		strings.TrimSuffix(config.Get().FrontendBaseURL, "/"), raw, url.QueryEscape(email))
	body := fmt.Sprintf(
		"<p>Hello %s,</p><p>Click <a href=\"%s\">here</a> to reset your password. The link expires in 1 hour.</p><p>If you did not request this, you can ignore this email.</p>",
		user.Username, resetURL)

	if err := a.mailer.Send(email, "Reset your password", body); err != nil {
		utils.Sugar.Warnf("reset email send failed for user %d: %v", user.ID, err)
	}

	utils.Success(ctx, gin.H{"message": resetGenericMessage})
}

// ResetPassword consumes a reset token and replaces the user's password.
func (a *AuthController) ResetPassword(ctx *gin.Context) {
	var req struct {
		Email       string `json:"email"`
		Token       string `json:"token"`
		NewPassword string `json:"new_password"`
	}

	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40006, "invalid request payload")
		return
	}
	email := strings.TrimSpace(req.Email)
	if email == "" || req.Token == "" || req.NewPassword == "" {
		utils.Error(ctx, http.StatusBadRequest, 40007, "email, token, and new password are required")
		return
	}

	var user models.User
	if err := a.db.Where("email = ?", email).First(&user).Error; err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40008, invalidResetMessage)
		return
	}

	if user.ResetTokenHash == nil || user.ResetTokenExpiry == nil {
		utils.Error(ctx, http.StatusBadRequest, 40008, invalidResetMessage)
		return
	}
	if utils.ResetTokenExpired(*user.ResetTokenExpiry, time.Now()) {
		utils.Error(ctx, http.StatusBadRequest, 40008, invalidResetMessage)
		return
	}
	if !utils.VerifyResetToken(req.Token, *user.ResetTokenHash) {
		utils.Error(ctx, http.StatusBadRequest, 40008, invalidResetMessage)
		return
	}

	hash, err := utils.HashPassword(req.NewPassword)
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50006, "failed to hash password")
		return
	}

	// One UPDATE replaces the password and consumes the token atomically.
	if err := a.db.Model(&user).Updates(map[string]interface{}{
		"password_hash":      hash,
		"reset_token_hash":   nil,
		"reset_token_expiry": nil,
	}).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50007, "failed to update password")
		return
	}

	utils.Success(ctx, gin.H{"message": "password updated"})
}

func getUserID(ctx *gin.Context) (uint, bool) {
	value, exists := ctx.Get(middleware.ContextUserIDKey)
	if !exists {
		return 0, false
	}

	switch v := value.(type) {
	case uint:
		return v, true
	case int:
		return uint(v), true
	case int64:
		return uint(v), true
	case float64:
		return uint(v), true
	default:
		return 0, false
	}
}
