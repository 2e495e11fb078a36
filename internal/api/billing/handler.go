package billing

import (
	"log/slog"

	"econfere-api/internal/domain/billing"
	"econfere-api/internal/infra/payments"
	"econfere-api/internal/metrics"

	"gorm.io/gorm"
)

type Handler struct {
	db        *gorm.DB
	gateways  *payments.Registry
	confirmer *billing.Confirmer
	metrics   metrics.Recorder
	log       *slog.Logger
}

func NewHandler(db *gorm.DB, gateways *payments.Registry, confirmer *billing.Confirmer, rec metrics.Recorder, logger *slog.Logger) *Handler {
	if rec == nil {
		rec = metrics.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{db: db, gateways: gateways, confirmer: confirmer, metrics: rec, log: logger}
}
