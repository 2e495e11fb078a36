package quota

import (
	"time"

	"econfere-api/internal/domain/users"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// FreeGrant records the single free analysis a user may run in a given week.
type FreeGrant struct {
	ID         string      `gorm:"type:varchar(36);primaryKey" json:"id"`
	UserID     string      `gorm:"type:varchar(36);not null;uniqueIndex:idx_free_analyses_user_week,priority:1" json:"user_id"`
	User       *users.User `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	AnalysisID *string     `gorm:"type:varchar(36)" json:"analysis_id,omitempty"`
	WeekStart  string      `gorm:"type:varchar(10);not null;uniqueIndex:idx_free_analyses_user_week,priority:2" json:"week_start"`
	CreatedAt  time.Time   `json:"created_at"`
}

func (FreeGrant) TableName() string { return "free_analyses" }

func (g *FreeGrant) BeforeCreate(tx *gorm.DB) error {
	if g.ID == "" {
		g.ID = uuid.NewString()
	}
	return nil
}
