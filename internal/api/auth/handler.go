package auth

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"regexp"
	"time"

	"econfere-api/internal/api/respond"
	"econfere-api/internal/app/http/middleware"
	"econfere-api/internal/domain/users"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const (
	minPasswordLength    = 6
	resetCodeTTL         = time.Hour
	maxResetAttempts     = 5
	verificationTokenTTL = 24 * time.Hour
)

var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

// Mailer delivers the account e-mails. Delivery failures never fail the request.
type Mailer interface {
	SendPasswordReset(ctx context.Context, u users.User, code string) error
	SendVerification(ctx context.Context, u users.User, token string) error
}

type Config struct {
	JWTSecret   string
	TokenTTL    time.Duration
	AdminEmail  string
	FrontendURL string
}

type Handler struct {
	db     *gorm.DB
	cfg    Config
	mail   Mailer
	google *Google
	log    *slog.Logger
	now    func() time.Time
	cost   int
}

// NewHandler wires the credential endpoints. google may be nil, in which case
// the Google routes answer 503.
func NewHandler(db *gorm.DB, cfg Config, mail Mailer, google *Google, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = 7 * 24 * time.Hour
	}
	cfg.AdminEmail = users.NormalizeEmail(cfg.AdminEmail)
	return &Handler{
		db:     db,
		cfg:    cfg,
		mail:   mail,
		google: google,
		log:    logger,
		now:    time.Now,
		cost:   bcrypt.DefaultCost,
	}
}

// IssueToken signs the HS256 access token the AuthMiddleware accepts.
func IssueToken(secret string, ttl time.Duration, user users.User) (string, error) {
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": user.ID,
		"email":   user.Email,
		"role":    user.Role,
		"exp":     time.Now().Add(ttl).Unix(),
	})
	return t.SignedString([]byte(secret))
}

func isEmailValid(email string) bool {
	return emailPattern.MatchString(email)
}

func generateVerificationToken() string {
	b := make([]byte, 16)
	rand.Read(b)
	return hex.EncodeToString(b)
}

func generateResetCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

func (h *Handler) roleFor(email string) string {
	if h.cfg.AdminEmail != "" && users.NormalizeEmail(email) == h.cfg.AdminEmail {
		return users.RoleAdmin
	}
	return users.RoleUser
}

func (h *Handler) hash(password string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	return string(b), err
}

func (h *Handler) findByEmail(ctx context.Context, email string) (*users.User, error) {
	var u users.User
	err := h.db.WithContext(ctx).Where("email = ?", users.NormalizeEmail(email)).First(&u).Error
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (h *Handler) respondWithToken(c *gin.Context, status int, msg string, u users.User) {
	token, err := IssueToken(h.cfg.JWTSecret, h.cfg.TokenTTL, u)
	if err != nil {
		respond.Internal(c, "Could not create token", err, "user_id", u.ID)
		return
	}
	c.JSON(status, gin.H{"message": msg, "token": token, "user": u})
}

// sendVerification replaces the user's verification token and mails the link.
func (h *Handler) sendVerification(ctx context.Context, u users.User) error {
	token := generateVerificationToken()
	err := h.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ?", u.ID).Delete(&users.VerificationToken{}).Error; err != nil {
			return err
		}
		return tx.Create(&users.VerificationToken{
			UserID:    u.ID,
			Token:     token,
			ExpiresAt: h.now().Add(verificationTokenTTL),
		}).Error
	})
	if err != nil {
		return fmt.Errorf("store verification token: %w", err)
	}

	if err := h.mail.SendVerification(ctx, u, token); err != nil {
		h.log.Warn("verification email not sent", "user_id", u.ID, "error", err)
	}
	return nil
}

// POST /auth/register
func (h *Handler) Register(c *gin.Context) {
	var input struct {
		Name     string `json:"name" binding:"required"`
		Email    string `json:"email" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		respond.Error(c, http.StatusBadRequest, "Name, email and password are required")
		return
	}

	email := users.NormalizeEmail(input.Email)
	if !isEmailValid(email) {
		respond.Error(c, http.StatusBadRequest, "Invalid email format")
		return
	}
	if len(input.Password) < minPasswordLength {
		respond.Error(c, http.StatusBadRequest, "Password must be at least 6 characters long")
		return
	}

	ctx := c.Request.Context()
	if _, err := h.findByEmail(ctx, email); err == nil {
		respond.Error(c, http.StatusConflict, "Email already registered")
		return
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		respond.Internal(c, "Failed to register user", err)
		return
	}

	hashed, err := h.hash(input.Password)
	if err != nil {
		respond.Internal(c, "Failed to hash password", err)
		return
	}

	user := users.User{
		Name:         input.Name,
		Email:        email,
		Password:     &hashed,
		AuthProvider: users.ProviderLocal,
		Role:         h.roleFor(email),
	}
	if err := h.db.WithContext(ctx).Create(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			respond.Error(c, http.StatusConflict, "Email already registered")
			return
		}
		respond.Internal(c, "Failed to register user", err)
		return
	}

	if err := h.sendVerification(ctx, user); err != nil {
		h.log.Warn("verification token not created", "user_id", user.ID, "error", err)
	}

	h.respondWithToken(c, http.StatusCreated, "User registered successfully", user)
}

// POST /auth/login
func (h *Handler) Login(c *gin.Context) {
	var input struct {
		Email    string `json:"email" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		respond.Error(c, http.StatusBadRequest, "Email and password are required")
		return
	}

	user, err := h.findByEmail(c.Request.Context(), input.Email)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			respond.Error(c, http.StatusUnauthorized, "Invalid credentials")
			return
		}
		respond.Internal(c, "Failed to login", err)
		return
	}

	if !user.HasPassword() {
		respond.Error(c, http.StatusUnauthorized, "This account uses Google sign-in")
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(*user.Password), []byte(input.Password)); err != nil {
		respond.Error(c, http.StatusUnauthorized, "Invalid credentials")
		return
	}

	h.respondWithToken(c, http.StatusOK, "Login successful", *user)
}

// POST /auth/resend-verification
func (h *Handler) ResendVerification(c *gin.Context) {
	var body struct {
		Email string `json:"email"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || body.Email == "" {
		respond.Error(c, http.StatusBadRequest, "Missing or invalid email")
		return
	}

	ctx := c.Request.Context()
	user, err := h.findByEmail(ctx, body.Email)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			respond.Error(c, http.StatusNotFound, "User not found")
			return
		}
		respond.Internal(c, "Failed to resend verification", err)
		return
	}
	if user.EmailVerified {
		respond.Error(c, http.StatusBadRequest, "User already verified")
		return
	}

	if err := h.sendVerification(ctx, *user); err != nil {
		respond.Internal(c, "Failed to store verification token", err, "user_id", user.ID)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Verification email resent"})
}

const forgotPasswordMessage = "If your email exists, you'll receive a reset code."

// POST /auth/forgot-password
func (h *Handler) ForgotPassword(c *gin.Context) {
	var body struct {
		Email string `json:"email"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || body.Email == "" {
		respond.Error(c, http.StatusBadRequest, "Invalid email")
		return
	}

	ctx := c.Request.Context()
	user, err := h.findByEmail(ctx, body.Email)
	if err != nil {
		// Don't expose whether the email exists
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			h.log.Error("forgot password lookup failed", "error", err)
		}
		c.JSON(http.StatusOK, gin.H{"message": forgotPasswordMessage})
		return
	}

	code, err := generateResetCode()
	if err != nil {
		respond.Internal(c, "Failed to generate reset code", err)
		return
	}
	expires := h.now().Add(resetCodeTTL)
	err = h.db.WithContext(ctx).Model(&users.User{}).Where("id = ?", user.ID).Updates(map[string]any{
		"reset_password_token":    code,
		"reset_password_expires":  expires,
		"reset_password_attempts": 0,
	}).Error
	if err != nil {
		respond.Internal(c, "Failed to store reset code", err, "user_id", user.ID)
		return
	}

	if err := h.mail.SendPasswordReset(ctx, *user, code); err != nil {
		h.log.Warn("password reset email not sent", "user_id", user.ID, "error", err)
	}
	c.JSON(http.StatusOK, gin.H{"message": forgotPasswordMessage})
}

// POST /auth/reset-password
func (h *Handler) ResetPassword(c *gin.Context) {
	var body struct {
		Email       string `json:"email" binding:"required"`
		Token       string `json:"token" binding:"required"`
		NewPassword string `json:"newPassword" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		respond.Error(c, http.StatusBadRequest, "Email, token and newPassword are required")
		return
	}
	if len(body.NewPassword) < minPasswordLength {
		respond.Error(c, http.StatusBadRequest, "Password must be at least 6 characters long")
		return
	}

	ctx := c.Request.Context()
	user, err := h.findByEmail(ctx, body.Email)
	if err != nil || user.ResetPasswordToken == nil ||
		user.ResetPasswordExpires == nil || h.now().After(*user.ResetPasswordExpires) {
		respond.Error(c, http.StatusBadRequest, "Invalid or expired token")
		return
	}
	if subtle.ConstantTimeCompare([]byte(body.Token), []byte(*user.ResetPasswordToken)) != 1 {
		if err := h.recordResetFailure(ctx, user); err != nil {
			h.log.Error("record reset failure", "user_id", user.ID, "error", err)
		}
		respond.Error(c, http.StatusBadRequest, "Invalid or expired token")
		return
	}

	hashed, err := h.hash(body.NewPassword)
	if err != nil {
		respond.Internal(c, "Failed to hash password", err)
		return
	}
	err = h.db.WithContext(ctx).Model(&users.User{}).Where("id = ?", user.ID).Updates(map[string]any{
		"password_hash":           hashed,
		"reset_password_token":    nil,
		"reset_password_expires":  nil,
		"reset_password_attempts": 0,
	}).Error
	if err != nil {
		respond.Internal(c, "Failed to reset password", err, "user_id", user.ID)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Password reset successful"})
}

// recordResetFailure counts a wrong reset code. The code is discarded once
// maxResetAttempts is reached and a new one must be requested.
func (h *Handler) recordResetFailure(ctx context.Context, u *users.User) error {
	q := h.db.WithContext(ctx).Model(&users.User{}).Where("id = ?", u.ID)
	if u.ResetPasswordAttempts+1 >= maxResetAttempts {
		return q.Updates(map[string]any{
			"reset_password_token":    nil,
			"reset_password_expires":  nil,
			"reset_password_attempts": 0,
		}).Error
	}
	return q.Update("reset_password_attempts", gorm.Expr("reset_password_attempts + 1")).Error
}

// POST /auth/change-password
func (h *Handler) ChangePassword(c *gin.Context) {
	userID := middleware.UserID(c)
	if userID == "" {
		respond.Error(c, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var body struct {
		OldPassword string `json:"oldPassword" binding:"required"`
		NewPassword string `json:"newPassword" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		respond.Error(c, http.StatusBadRequest, "oldPassword and newPassword are required")
		return
	}
	if len(body.NewPassword) < minPasswordLength {
		respond.Error(c, http.StatusBadRequest, "New password must be at least 6 characters long")
		return
	}

	ctx := c.Request.Context()
	var user users.User
	if err := h.db.WithContext(ctx).First(&user, "id = ?", userID).Error; err != nil {
		respond.Error(c, http.StatusUnauthorized, "User not found")
		return
	}

	if !user.HasPassword() {
		respond.Error(c, http.StatusBadRequest, "This account does not have a password. Sign in with Google.")
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(*user.Password), []byte(body.OldPassword)); err != nil {
		respond.Error(c, http.StatusUnauthorized, "Old password is incorrect")
		return
	}

	hashed, err := h.hash(body.NewPassword)
	if err != nil {
		respond.Internal(c, "Failed to hash password", err)
		return
	}
	if err := h.db.WithContext(ctx).Model(&user).Update("password_hash", hashed).Error; err != nil {
		respond.Internal(c, "Failed to change password", err, "user_id", user.ID)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Password changed successfully"})
}
