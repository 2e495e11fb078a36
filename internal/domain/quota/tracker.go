package quota

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Tracker owns the one-free-analysis-per-week ledger. Every method derives the
// week key through the same clock and location.
type Tracker struct {
	db  *gorm.DB
	loc *time.Location
	now func() time.Time
}

type Option func(*Tracker)

func WithLocation(loc *time.Location) Option {
	return func(t *Tracker) { t.loc = loc }
}

func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

func NewTracker(db *gorm.DB, opts ...Option) *Tracker {
	t := &Tracker{db: db, loc: time.Local, now: time.Now}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// WithTx returns a tracker bound to tx that shares this tracker's clock.
func (t *Tracker) WithTx(tx *gorm.DB) *Tracker {
	return &Tracker{db: tx, loc: t.loc, now: t.now}
}

func (t *Tracker) CurrentWeek() string {
	return WeekKey(t.now(), t.loc)
}

func (t *Tracker) HasFreeGrantThisWeek(ctx context.Context, userID string) (bool, error) {
	var count int64
	err := t.db.WithContext(ctx).
		Model(&FreeGrant{}).
		Where("user_id = ? AND week_start = ?", userID, t.CurrentWeek()).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("count free grants: %w", err)
	}
	return count > 0, nil
}

// Grant inserts the grant for the current week. When the (user, week) row already
// exists the insert does nothing and created is false; that is not an error.
func (t *Tracker) Grant(ctx context.Context, userID string, analysisID *string) (grant *FreeGrant, created bool, err error) {
	g := &FreeGrant{
		UserID:     userID,
		AnalysisID: analysisID,
		WeekStart:  t.CurrentWeek(),
	}

	res := t.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(g)
	if res.Error != nil {
		return nil, false, fmt.Errorf("insert free grant: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, false, nil
	}
	return g, true, nil
}

func (t *Tracker) History(ctx context.Context, userID string) ([]FreeGrant, error) {
	var grants []FreeGrant
	err := t.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("week_start DESC").
		Find(&grants).Error
	if err != nil {
		return nil, fmt.Errorf("list free grants: %w", err)
	}
	return grants, nil
}
