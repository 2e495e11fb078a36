package users

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	RoleUser  = "user"
	RoleAdmin = "admin"

	ProviderLocal  = "local"
	ProviderGoogle = "google"
)

type User struct {
	ID            string  `gorm:"type:varchar(36);primaryKey" json:"id"`
	Name          string  `gorm:"type:varchar(255);not null" json:"name"`
	Email         string  `gorm:"type:varchar(255);not null;uniqueIndex:idx_users_email" json:"email"`
	Password      *string `gorm:"column:password_hash" json:"-"`
	AuthProvider  string  `gorm:"type:varchar(20);not null;default:'local'" json:"auth_provider"`
	GoogleSub     *string `gorm:"type:varchar(255);uniqueIndex:idx_users_google_sub" json:"-"`
	Role          string  `gorm:"type:varchar(20);not null;default:'user'" json:"role"`
	EmailVerified bool    `gorm:"not null;default:false" json:"email_verified"`

	ResetPasswordToken    *string    `gorm:"type:varchar(16)" json:"-"`
	ResetPasswordExpires  *time.Time `json:"-"`
	ResetPasswordAttempts int        `gorm:"not null;default:0" json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.Role == "" {
		u.Role = RoleUser
	}
	if u.AuthProvider == "" {
		u.AuthProvider = ProviderLocal
	}
	u.Email = NormalizeEmail(u.Email)
	return nil
}

func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

func (u *User) HasPassword() bool {
	return u.Password != nil && *u.Password != ""
}

func ValidRole(role string) bool {
	return role == RoleUser || role == RoleAdmin
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
