package admin

import (
	"net/http"
	"sort"

	"econfere-api/internal/api/respond"
	"econfere-api/internal/domain/analysis"
	"econfere-api/internal/domain/billing"
	"econfere-api/internal/domain/users"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"
)

type Totals struct {
	TotalUsers    int64   `json:"totalUsers"`
	TotalPayments int64   `json:"totalPayments"`
	TotalAnalyses int64   `json:"totalAnalyses"`
	TotalRevenue  float64 `json:"totalRevenue"`
}

type MonthlyStat struct {
	Month   string  `json:"month"`
	Count   int     `json:"count"`
	Revenue float64 `json:"revenue"`
}

// GET /api/admin/stats
func (h *Handler) Stats(c *gin.Context) {
	var (
		totals  Totals
		recentU []users.User
		recentP []PaymentRow
		window  []billing.Payment
	)
	since := h.now().AddDate(0, -6, 0)
	complete := string(billing.StatusCompleted)

	g, ctx := errgroup.WithContext(c.Request.Context())
	db := h.db.WithContext(ctx)

	g.Go(func() error {
		return db.Model(&users.User{}).Count(&totals.TotalUsers).Error
	})
	g.Go(func() error {
		return db.Model(&billing.Payment{}).Where("status = ?", complete).Count(&totals.TotalPayments).Error
	})
	g.Go(func() error {
		return db.Model(&analysis.Analysis{}).Count(&totals.TotalAnalyses).Error
	})
	g.Go(func() error {
		return db.Model(&billing.Payment{}).
			Where("status = ?", complete).
			Select("COALESCE(SUM(amount), 0)").
			Scan(&totals.TotalRevenue).Error
	})
	g.Go(func() error {
		recentU = []users.User{}
		return db.Order("created_at DESC").Limit(5).Find(&recentU).Error
	})
	g.Go(func() error {
		recentP = []PaymentRow{}
		return paymentRows(db).Order("p.created_at DESC").Limit(10).Scan(&recentP).Error
	})
	g.Go(func() error {
		return db.Select("amount", "created_at").
			Where("status = ? AND created_at >= ?", complete, since).
			Find(&window).Error
	})

	if err := g.Wait(); err != nil {
		respond.Internal(c, "Failed to load stats", err)
		return
	}
	totals.TotalRevenue = roundCents(totals.TotalRevenue)

	c.JSON(http.StatusOK, gin.H{
		"stats":          totals,
		"recentUsers":    recentU,
		"recentPayments": recentP,
		"monthlyStats":   monthly(window),
	})
}

// monthly buckets completed payments by calendar month, newest first.
func monthly(list []billing.Payment) []MonthlyStat {
	byMonth := map[string]*MonthlyStat{}
	for _, p := range list {
		key := p.CreatedAt.Format("2006-01")
		m, ok := byMonth[key]
		if !ok {
			m = &MonthlyStat{Month: key}
			byMonth[key] = m
		}
		m.Count++
		m.Revenue += p.Amount
	}

	out := make([]MonthlyStat, 0, len(byMonth))
	for _, m := range byMonth {
		m.Revenue = roundCents(m.Revenue)
		out = append(out, *m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Month > out[j].Month })
	return out
}

