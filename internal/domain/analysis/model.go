package analysis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"econfere-api/internal/domain/users"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Status string

const (
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

func ValidStatus(s string) bool {
	switch Status(s) {
	case StatusProcessing, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

type Analysis struct {
	ID         string      `gorm:"type:varchar(36);primaryKey" json:"id"`
	UserID     string      `gorm:"type:varchar(36);not null;index" json:"user_id"`
	User       *users.User `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	Tipo       string      `gorm:"type:varchar(100);not null" json:"tipo"`
	FileName   string      `gorm:"type:varchar(255);not null" json:"file_name"`
	FilePath   string      `gorm:"type:varchar(500)" json:"-"`
	Status     Status      `gorm:"type:varchar(20);not null;default:'processing';index" json:"status"`
	IsFree     bool        `gorm:"not null;default:false" json:"is_free"`
	PaymentID  *string     `gorm:"type:varchar(36)" json:"payment_id,omitempty"`
	ResultPath *string     `gorm:"type:varchar(500)" json:"-"`
	CreatedAt  time.Time   `json:"created_at"`
	UpdatedAt  time.Time   `json:"updated_at"`
}

func (Analysis) TableName() string { return "analyses" }

func (a *Analysis) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.Status == "" {
		a.Status = StatusProcessing
	}
	return nil
}

func (a *Analysis) HasResult() bool {
	return a.Status == StatusCompleted && a.ResultPath != nil && *a.ResultPath != ""
}

// CanAccess reports whether the caller may read the analysis: its owner or an admin.
func CanAccess(a *Analysis, userID, role string) bool {
	if a == nil {
		return false
	}
	return a.UserID == userID || role == users.RoleAdmin
}

var ErrNotFound = errors.New("analysis not found")

func FindByID(ctx context.Context, db *gorm.DB, id string) (*Analysis, error) {
	var a Analysis
	if err := db.WithContext(ctx).First(&a, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load analysis: %w", err)
	}
	return &a, nil
}

func ListByUser(ctx context.Context, db *gorm.DB, userID string) ([]Analysis, error) {
	list := []Analysis{}
	err := db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&list).Error
	if err != nil {
		return nil, fmt.Errorf("list analyses: %w", err)
	}
	return list, nil
}
