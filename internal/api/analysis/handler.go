package analysis

import (
	"context"
	"errors"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"strings"

	"econfere-api/internal/api/respond"
	"econfere-api/internal/app/http/middleware"
	"econfere-api/internal/domain/analysis"
	"econfere-api/internal/domain/billing"
	"econfere-api/internal/domain/quota"
	"econfere-api/internal/infra/storage"
	"econfere-api/internal/metrics"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type Submitter interface {
	Submit(ctx context.Context, s analysis.Submission) (*analysis.Outcome, error)
}

type DocumentStore interface {
	SaveDocument(fh *multipart.FileHeader) (string, error)
	Remove(path string) error
	MaxSize() int64
}

const (
	multipartOverhead = 1 << 20
	multipartMemory   = 32 << 20
)

type Handler struct {
	db       *gorm.DB
	workflow Submitter
	quota    *quota.Tracker
	docs     DocumentStore
	metrics  metrics.Recorder
	log      *slog.Logger
}

func NewHandler(db *gorm.DB, workflow Submitter, tracker *quota.Tracker, docs DocumentStore, rec metrics.Recorder, logger *slog.Logger) *Handler {
	if rec == nil {
		rec = metrics.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{db: db, workflow: workflow, quota: tracker, docs: docs, metrics: rec, log: logger}
}

func formFlag(c *gin.Context, key string) bool {
	v := c.Query(key)
	if v == "" {
		v = c.PostForm(key)
	}
	return strings.EqualFold(v, "true") || v == "1"
}

func (h *Handler) discard(path string) {
	if err := h.docs.Remove(path); err != nil {
		h.log.Warn("remove uploaded document", "path", path, "error", err)
	}
}

// POST /api/analise
func (h *Handler) Create(c *gin.Context) {
	userID := middleware.UserID(c)

	if limit := h.docs.MaxSize(); limit > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit+multipartOverhead)
	}
	if err := c.Request.ParseMultipartForm(multipartMemory); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			respond.Error(c, http.StatusRequestEntityTooLarge, "File exceeds the maximum size")
			return
		}
	}

	tipo := strings.TrimSpace(c.PostForm("tipo"))
	if tipo == "" {
		respond.Error(c, http.StatusBadRequest, "Document type (tipo) is required")
		return
	}
	fh, err := c.FormFile("arquivo")
	if err != nil {
		respond.Error(c, http.StatusBadRequest, "A PDF file (arquivo) is required")
		return
	}

	path, err := h.docs.SaveDocument(fh)
	switch {
	case errors.Is(err, storage.ErrNotPDF), errors.Is(err, storage.ErrTooLarge), errors.Is(err, storage.ErrEmpty):
		respond.Error(c, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		respond.Internal(c, "Failed to store document", err, "user_id", userID)
		return
	}

	sub := analysis.Submission{
		UserID:   userID,
		Tipo:     tipo,
		FileName: fh.Filename,
		FilePath: path,
		Force:    formFlag(c, "force"),
	}
	if pid := c.PostForm("paymentId"); pid != "" {
		sub.PaymentID = &pid
	} else if pid := c.Query("paymentId"); pid != "" {
		sub.PaymentID = &pid
	}

	out, err := h.workflow.Submit(c.Request.Context(), sub)
	if err != nil {
		if out == nil || out.Analysis == nil {
			h.discard(path)
		}
		switch {
		case errors.Is(err, analysis.ErrInvalidPayment):
			respond.Error(c, http.StatusBadRequest, "Payment is not valid for this analysis")
		case errors.Is(err, analysis.ErrProcessingFailed):
			h.metrics.RecordProcessing(string(analysis.StatusFailed))
			attrs := []any{"user_id", userID}
			if out != nil && out.Analysis != nil {
				attrs = append(attrs, "analysis_id", out.Analysis.ID)
			}
			respond.Internal(c, "Failed to process analysis", err, attrs...)
		default:
			respond.Internal(c, "Failed to create analysis", err, "user_id", userID)
		}
		return
	}

	if out.PaymentRequired {
		h.discard(path)
		h.metrics.RecordSubmission(metrics.OutcomePaymentRequired)
		c.JSON(http.StatusPaymentRequired, gin.H{
			"error":           "Free analysis already used this week. Payment required.",
			"requiresPayment": true,
			"amount":          out.Price,
			"tipo":            tipo,
		})
		return
	}

	if out.Analysis.IsFree {
		h.metrics.RecordSubmission(metrics.OutcomeFree)
	} else {
		h.metrics.RecordSubmission(metrics.OutcomePaid)
	}
	h.metrics.RecordProcessing(string(analysis.StatusCompleted))

	c.Header("X-Analysis-ID", out.Analysis.ID)
	c.FileAttachment(out.ResultPath, "relatorio_"+out.Analysis.ID+".pdf")
}

// GET /api/analise
func (h *Handler) History(c *gin.Context) {
	userID := middleware.UserID(c)
	list, err := analysis.ListByUser(c.Request.Context(), h.db, userID)
	if err != nil {
		respond.Internal(c, "Failed to load analyses", err, "user_id", userID)
		return
	}
	c.JSON(http.StatusOK, gin.H{"analyses": list})
}

// GET /api/analise/check-free
func (h *Handler) CheckFree(c *gin.Context) {
	userID := middleware.UserID(c)
	used, err := h.quota.HasFreeGrantThisWeek(c.Request.Context(), userID)
	if err != nil {
		respond.Internal(c, "Failed to check free analysis", err, "user_id", userID)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"hasFreeAnalysis": !used,
		"canUseFree":      !used,
		"weekStart":       h.quota.CurrentWeek(),
	})
}

// load fetches the analysis named by :id and enforces owner-or-admin access.
func (h *Handler) load(c *gin.Context) (*analysis.Analysis, bool) {
	a, err := analysis.FindByID(c.Request.Context(), h.db, c.Param("id"))
	if err != nil {
		if errors.Is(err, analysis.ErrNotFound) {
			respond.Error(c, http.StatusNotFound, "Analysis not found")
			return nil, false
		}
		respond.Internal(c, "Failed to load analysis", err, "analysis_id", c.Param("id"))
		return nil, false
	}
	if !analysis.CanAccess(a, middleware.UserID(c), middleware.Role(c)) {
		respond.Error(c, http.StatusForbidden, "Access denied")
		return nil, false
	}
	return a, true
}

// GET /api/analise/:id
func (h *Handler) Get(c *gin.Context) {
	a, ok := h.load(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"analysis": a})
}

// GET /api/analise/:id/download
func (h *Handler) Download(c *gin.Context) {
	a, ok := h.load(c)
	if !ok {
		return
	}
	if a.Status != analysis.StatusCompleted {
		respond.Error(c, http.StatusBadRequest, "Analysis is not completed")
		return
	}
	if !a.HasResult() {
		respond.Error(c, http.StatusNotFound, "Report not found")
		return
	}
	if _, err := os.Stat(*a.ResultPath); err != nil {
		h.log.Warn("report file missing", "analysis_id", a.ID, "error", err)
		respond.Error(c, http.StatusNotFound, "Report not found")
		return
	}
	c.FileAttachment(*a.ResultPath, "relatorio_"+a.ID+".pdf")
}

// GET /api/analise/prices
func (h *Handler) Prices(c *gin.Context) {
	prices := gin.H{}
	for _, tipo := range billing.KnownServiceTypes() {
		prices[tipo] = billing.ServicePrice(tipo)
	}
	c.JSON(http.StatusOK, gin.H{"prices": prices, "default": billing.DefaultServicePrice})
}
