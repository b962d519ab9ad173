package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mauriciomholiveira/cobranca-api/internal/models"
	"github.com/mauriciomholiveira/cobranca-api/internal/repository"
	appErrors "github.com/mauriciomholiveira/cobranca-api/pkg/errors"
)

type billingPaymentRepository interface {
	List(ctx context.Context, filter models.PaymentFilter) ([]models.PaymentDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.Payment, error)
	FindDetailByID(ctx context.Context, id string) (*models.PaymentDetail, error)
	InsertMissing(ctx context.Context, payments []models.Payment) (int, error)
	UpdateFields(ctx context.Context, id string, params repository.UpdatePaymentParams) error
	MarkPaid(ctx context.Context, id string, paidAt time.Time, professorReceived, institutionReceived decimal.Decimal) error
	Revert(ctx context.Context, id string) error
	Summary(ctx context.Context, monthRef, professorID string) (*models.MonthSummary, error)
}

type billingEnrollmentRepository interface {
	ListActiveForBilling(ctx context.Context, monthRef string) ([]models.BillingCandidate, error)
}

// BillingOptions tunes month generation and summary caching.
type BillingOptions struct {
	DefaultDueDay int
	SummaryTTL    time.Duration
}

// PatchPaymentRequest carries a partial payment update. Omitted fields are
// left untouched.
type PatchPaymentRequest struct {
	Amount           *decimal.Decimal `json:"amount"`
	DueDate          *string          `json:"due_date"`
	ProfessorShare   *decimal.Decimal `json:"professor_share"`
	InstitutionShare *decimal.Decimal `json:"institution_share"`
	ReminderSent     *bool            `json:"reminder_sent"`
	DueTodaySent     *bool            `json:"due_today_sent"`
	OverdueSent      *bool            `json:"overdue_sent"`
}

// MarkPaidRequest settles a payment. Omitted received amounts default to the
// expected split.
type MarkPaidRequest struct {
	PaidAt              *time.Time       `json:"paid_at"`
	ProfessorReceived   *decimal.Decimal `json:"professor_received"`
	InstitutionReceived *decimal.Decimal `json:"institution_received"`
}

// BillingService owns the payment lifecycle: lazy month generation, partial
// edits, settlement and its reversal, and the cached month summary.
type BillingService struct {
	payments    billingPaymentRepository
	enrollments billingEnrollmentRepository
	cache       *CacheService
	metrics     *MetricsService
	validator   *validator.Validate
	logger      *zap.Logger
	opts        BillingOptions
}

// NewBillingService constructs the billing service.
func NewBillingService(payments billingPaymentRepository, enrollments billingEnrollmentRepository, cache *CacheService, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger, opts BillingOptions) *BillingService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.DefaultDueDay < 1 || opts.DefaultDueDay > 31 {
		opts.DefaultDueDay = 10
	}
	if opts.SummaryTTL <= 0 {
		opts.SummaryTTL = 5 * time.Minute
	}
	return &BillingService{
		payments:    payments,
		enrollments: enrollments,
		cache:       cache,
		metrics:     metrics,
		validator:   validate,
		logger:      logger,
		opts:        opts,
	}
}

// EnsureMonth generates the missing payment rows for a billing period. It is
// idempotent: enrollments that already have a row for the month are skipped,
// and concurrent calls for the same month cannot duplicate rows.
func (s *BillingService) EnsureMonth(ctx context.Context, monthRef string) (int, error) {
	monthRef, err := models.ParseMonthRef(monthRef)
	if err != nil {
		return 0, err
	}

	candidates, err := s.enrollments.ListActiveForBilling(ctx, monthRef)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments for billing")
	}
	if len(candidates) == 0 {
		return 0, nil
	}

	now := time.Now().UTC()
	payments := make([]models.Payment, 0, len(candidates))
	for _, candidate := range candidates {
		day := candidate.DueDay
		if day < 1 {
			day = candidate.ClientDueDay
		}
		if day < 1 {
			day = s.opts.DefaultDueDay
		}
		dueDate, err := models.DueDateFor(monthRef, day)
		if err != nil {
			return 0, err
		}
		payments = append(payments, models.Payment{
			EnrollmentID:     candidate.ID,
			ClientID:         candidate.ClientID,
			ProfessorID:      candidate.ProfessorID,
			CourseID:         candidate.CourseID,
			MonthRef:         monthRef,
			Amount:           candidate.MonthlyFee,
			DueDate:          dueDate,
			Status:           models.PaymentStatusPendente,
			ProfessorShare:   candidate.ProfessorShare,
			InstitutionShare: candidate.InstitutionShare,
			CreatedAt:        now,
			UpdatedAt:        now,
		})
	}

	inserted, err := s.payments.InsertMissing(ctx, payments)
	if err != nil {
		return inserted, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to generate payments")
	}
	if inserted > 0 {
		s.metrics.AddPaymentsGenerated(inserted)
		s.invalidateBillingCache(ctx)
		s.logger.Info("generated payments for month",
			zap.String("month_ref", monthRef), zap.Int("inserted", inserted))
	}
	return inserted, nil
}

// ListMonth ensures the month's rows exist and returns them with pagination.
func (s *BillingService) ListMonth(ctx context.Context, filter models.PaymentFilter) ([]models.PaymentDetail, *models.Pagination, error) {
	monthRef, err := models.ParseMonthRef(filter.MonthRef)
	if err != nil {
		return nil, nil, err
	}
	filter.MonthRef = monthRef

	if _, err := s.EnsureMonth(ctx, monthRef); err != nil {
		return nil, nil, err
	}

	payments, total, err := s.payments.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list payments")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 50
	}
	return payments, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get returns one payment with its joined context.
func (s *BillingService) Get(ctx context.Context, id string) (*models.PaymentDetail, error) {
	payment, err := s.payments.FindDetailByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "payment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load payment")
	}
	return payment, nil
}

// Patch applies a partial update to an open payment. Settled payments are
// immutable except through Revert.
func (s *BillingService) Patch(ctx context.Context, id string, req PatchPaymentRequest) (*models.PaymentDetail, error) {
	payment, err := s.payments.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "payment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load payment")
	}
	if payment.Status == models.PaymentStatusPago {
		return nil, appErrors.Clone(appErrors.ErrPaymentFinalized, "settled payments cannot be edited")
	}

	params := repository.UpdatePaymentParams{
		ReminderSent: req.ReminderSent,
		DueTodaySent: req.DueTodaySent,
		OverdueSent:  req.OverdueSent,
	}

	if req.Amount != nil || req.ProfessorShare != nil || req.InstitutionShare != nil {
		amount := payment.Amount
		if req.Amount != nil {
			amount = *req.Amount
		}
		if amount.IsNegative() {
			return nil, appErrors.Clone(appErrors.ErrValidation, "amount cannot be negative")
		}
		professorShare := payment.ProfessorShare
		institutionShare := payment.InstitutionShare
		switch {
		case req.ProfessorShare != nil && req.InstitutionShare != nil:
			professorShare = *req.ProfessorShare
			institutionShare = *req.InstitutionShare
		case req.ProfessorShare != nil:
			professorShare = *req.ProfessorShare
			institutionShare = amount.Sub(professorShare)
		case req.InstitutionShare != nil:
			institutionShare = *req.InstitutionShare
			professorShare = amount.Sub(institutionShare)
		default:
			professorShare, institutionShare = SplitFor(amount, payment.ProfessorShare, payment.InstitutionShare)
		}
		if err := ValidateSplit(amount, professorShare, institutionShare); err != nil {
			return nil, err
		}
		params.Amount = &amount
		params.ProfessorShare = &professorShare
		params.InstitutionShare = &institutionShare
	}

	if req.DueDate != nil {
		dueDate, err := time.Parse("2006-01-02", *req.DueDate)
		if err != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, "due_date must be formatted as YYYY-MM-DD")
		}
		params.DueDate = &dueDate
	}

	if err := s.payments.UpdateFields(ctx, id, params); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update payment")
	}
	s.invalidateBillingCache(ctx)
	return s.Get(ctx, id)
}

// MarkPaid settles a payment. Received amounts default to the expected split
// and must always sum to the charged amount.
func (s *BillingService) MarkPaid(ctx context.Context, id string, req MarkPaidRequest) (*models.PaymentDetail, error) {
	payment, err := s.payments.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "payment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load payment")
	}
	if payment.Status == models.PaymentStatusPago {
		return nil, appErrors.Clone(appErrors.ErrPaymentFinalized, "payment is already settled")
	}

	paidAt := time.Now().UTC()
	if req.PaidAt != nil {
		paidAt = req.PaidAt.UTC()
	}

	var professorReceived, institutionReceived decimal.Decimal
	switch {
	case req.ProfessorReceived != nil && req.InstitutionReceived != nil:
		professorReceived = *req.ProfessorReceived
		institutionReceived = *req.InstitutionReceived
	case req.ProfessorReceived != nil:
		professorReceived = *req.ProfessorReceived
		institutionReceived = payment.Amount.Sub(professorReceived)
	case req.InstitutionReceived != nil:
		institutionReceived = *req.InstitutionReceived
		professorReceived = payment.Amount.Sub(institutionReceived)
	default:
		professorReceived, institutionReceived = SplitFor(payment.Amount, payment.ProfessorShare, payment.InstitutionShare)
	}
	if err := ValidateSplit(payment.Amount, professorReceived, institutionReceived); err != nil {
		return nil, err
	}

	if err := s.payments.MarkPaid(ctx, id, paidAt, professorReceived, institutionReceived); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to settle payment")
	}
	s.metrics.IncPaymentPaid()
	s.invalidateBillingCache(ctx)
	return s.Get(ctx, id)
}

// Revert undoes a settlement, reopening the payment as PENDENTE.
func (s *BillingService) Revert(ctx context.Context, id string) (*models.PaymentDetail, error) {
	payment, err := s.payments.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "payment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load payment")
	}
	if payment.Status != models.PaymentStatusPago {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "payment is not settled")
	}

	if err := s.payments.Revert(ctx, id); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to revert payment")
	}
	s.invalidateBillingCache(ctx)
	return s.Get(ctx, id)
}

// Summary returns the aggregated view of a month, cached when Redis is up.
func (s *BillingService) Summary(ctx context.Context, monthRef, professorID string) (*models.MonthSummary, error) {
	monthRef, err := models.ParseMonthRef(monthRef)
	if err != nil {
		return nil, err
	}
	if _, err := s.EnsureMonth(ctx, monthRef); err != nil {
		return nil, err
	}

	key := summaryCacheKey(monthRef, professorID)
	var cached models.MonthSummary
	if hit, _ := s.cache.Get(ctx, key, &cached); hit {
		return &cached, nil
	}

	summary, err := s.payments.Summary(ctx, monthRef, professorID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to summarize month")
	}
	if err := s.cache.Set(ctx, key, summary, s.opts.SummaryTTL); err != nil {
		s.logger.Warn("failed to cache month summary", zap.String("month_ref", monthRef), zap.Error(err))
	}
	return summary, nil
}

func summaryCacheKey(monthRef, professorID string) string {
	if professorID == "" {
		professorID = "all"
	}
	return "billing:summary:" + monthRef + ":" + professorID
}

func (s *BillingService) invalidateBillingCache(ctx context.Context) {
	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, "billing:*"); err != nil {
			s.logger.Warn("failed to invalidate billing cache", zap.Error(err))
		}
	}
}
