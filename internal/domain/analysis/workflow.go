package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"econfere-api/internal/domain/billing"
	"econfere-api/internal/domain/quota"

	"gorm.io/gorm"
)

var (
	ErrProcessingFailed = errors.New("analysis processing failed")
	ErrInvalidPayment   = errors.New("payment cannot be used for this analysis")

	errGrantTaken = errors.New("free grant already taken this week")
)

// ReportInput is what the report generator needs to render a result.
type ReportInput struct {
	AnalysisID string
	Tipo       string
	FileName   string
	CreatedAt  time.Time
}

// ReportGenerator renders the result artifact and returns where it was stored.
type ReportGenerator interface {
	Generate(ctx context.Context, in ReportInput) (string, error)
}

type Submission struct {
	UserID   string
	Tipo     string
	FileName string
	FilePath string
	// Force skips the weekly quota: the caller asserts the analysis is paid for.
	Force bool
	// PaymentID optionally names the completed payment backing a forced submission.
	PaymentID *string
}

type Outcome struct {
	Analysis        *Analysis
	PaymentRequired bool
	Price           float64
	ResultPath      string
}

type Workflow struct {
	db      *gorm.DB
	quota   *quota.Tracker
	reports ReportGenerator
	log     *slog.Logger
}

func NewWorkflow(db *gorm.DB, tracker *quota.Tracker, reports ReportGenerator, logger *slog.Logger) *Workflow {
	if logger == nil {
		logger = slog.Default()
	}
	return &Workflow{db: db, quota: tracker, reports: reports, log: logger}
}

// Submit gates the submission on the weekly quota (unless forced) and then
// processes it synchronously. A PaymentRequired outcome writes nothing.
func (w *Workflow) Submit(ctx context.Context, s Submission) (*Outcome, error) {
	var (
		a   *Analysis
		err error
	)

	if s.Force {
		a, err = w.createPaid(ctx, s)
		if err != nil {
			return nil, err
		}
	} else {
		used, err := w.quota.HasFreeGrantThisWeek(ctx, s.UserID)
		if err != nil {
			return nil, err
		}
		if used {
			return paymentRequired(s.Tipo), nil
		}

		var granted bool
		a, granted, err = w.claimFree(ctx, s)
		if err != nil {
			return nil, err
		}
		if !granted {
			return paymentRequired(s.Tipo), nil
		}
	}

	return w.process(ctx, a)
}

func paymentRequired(tipo string) *Outcome {
	return &Outcome{PaymentRequired: true, Price: billing.ServicePrice(tipo)}
}

func newAnalysis(s Submission, free bool) *Analysis {
	return &Analysis{
		UserID:    s.UserID,
		Tipo:      s.Tipo,
		FileName:  s.FileName,
		FilePath:  s.FilePath,
		Status:    StatusProcessing,
		IsFree:    free,
		PaymentID: s.PaymentID,
	}
}

// claimFree creates the analysis and its grant in one transaction. If another
// request already holds this week's grant the transaction rolls back.
func (w *Workflow) claimFree(ctx context.Context, s Submission) (*Analysis, bool, error) {
	s.PaymentID = nil
	a := newAnalysis(s, true)

	err := w.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(a).Error; err != nil {
			return fmt.Errorf("create analysis: %w", err)
		}
		_, created, err := w.quota.WithTx(tx).Grant(ctx, s.UserID, &a.ID)
		if err != nil {
			return err
		}
		if !created {
			return errGrantTaken
		}
		return nil
	})
	if errors.Is(err, errGrantTaken) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return a, true, nil
}

func (w *Workflow) createPaid(ctx context.Context, s Submission) (*Analysis, error) {
	a := newAnalysis(s, false)

	err := w.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if s.PaymentID != nil {
			p, err := billing.FindByID(ctx, tx, *s.PaymentID)
			if errors.Is(err, billing.ErrPaymentNotFound) {
				return ErrInvalidPayment
			}
			if err != nil {
				return err
			}
			if p.UserID != s.UserID || p.Status != billing.StatusCompleted || p.AnalysisID != nil {
				return ErrInvalidPayment
			}
		}

		if err := tx.Create(a).Error; err != nil {
			return fmt.Errorf("create analysis: %w", err)
		}

		if s.PaymentID != nil {
			res := tx.Model(&billing.Payment{}).
				Where("id = ? AND analysis_id IS NULL", *s.PaymentID).
				Update("analysis_id", a.ID)
			if res.Error != nil {
				return fmt.Errorf("link payment: %w", res.Error)
			}
			if res.RowsAffected == 0 {
				return ErrInvalidPayment
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (w *Workflow) process(ctx context.Context, a *Analysis) (*Outcome, error) {
	path, genErr := w.reports.Generate(ctx, ReportInput{
		AnalysisID: a.ID,
		Tipo:       a.Tipo,
		FileName:   a.FileName,
		CreatedAt:  a.CreatedAt,
	})
	if genErr != nil {
		if err := w.finish(ctx, a, StatusFailed, nil); err != nil {
			w.log.Error("mark analysis failed", "analysis_id", a.ID, "error", err)
		}
		return &Outcome{Analysis: a}, fmt.Errorf("%w: %v", ErrProcessingFailed, genErr)
	}

	if err := w.finish(ctx, a, StatusCompleted, &path); err != nil {
		return &Outcome{Analysis: a}, err
	}
	return &Outcome{Analysis: a, ResultPath: path}, nil
}

// finish moves a processing analysis to a terminal status. It happens once,
// even when the request that started processing is gone.
func (w *Workflow) finish(ctx context.Context, a *Analysis, status Status, resultPath *string) error {
	updates := map[string]any{"status": status}
	if resultPath != nil {
		updates["result_path"] = *resultPath
	}

	res := w.db.WithContext(context.WithoutCancel(ctx)).Model(&Analysis{}).
		Where("id = ? AND status = ?", a.ID, StatusProcessing).
		Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("set analysis %s: %w", status, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("analysis %s already terminal", a.ID)
	}

	a.Status = status
	a.ResultPath = resultPath
	return nil
}
