package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mauriciomholiveira/cobranca-api/internal/models"
	appErrors "github.com/mauriciomholiveira/cobranca-api/pkg/errors"
)

type reconcilePaymentRepository interface {
	MarkOverdue(ctx context.Context, asOf time.Time) (int64, error)
	DeleteOrphanedUnpaid(ctx context.Context) (int64, error)
	SyncUnpaidWithEnrollments(ctx context.Context) (int64, error)
	ResetExemptOverdue(ctx context.Context) (int64, error)
}

type monthGenerator interface {
	EnsureMonth(ctx context.Context, monthRef string) (int, error)
}

// ReconcileResult reports what one reconciliation run changed.
type ReconcileResult struct {
	MonthRef       string    `json:"month_ref"`
	Generated      int       `json:"generated"`
	MarkedOverdue  int64     `json:"marked_overdue"`
	DeletedOrphans int64     `json:"deleted_orphans"`
	Resynced       int64     `json:"resynced"`
	ResetExempt    int64     `json:"reset_exempt"`
	RanAt          time.Time `json:"ran_at"`
}

// ReconcileService converges the payment table to a consistent state: the
// current month is generated, overdue rows are flagged, rows orphaned by
// deactivations are removed and open amounts are re-aligned with their
// enrollments. Each step is idempotent, so the routine can run on a
// schedule and on demand without coordination.
type ReconcileService struct {
	payments  reconcilePaymentRepository
	generator monthGenerator
	cache     *CacheService
	metrics   *MetricsService
	logger    *zap.Logger
	now       func() time.Time

	mu sync.Mutex
}

// NewReconcileService constructs the reconcile service.
func NewReconcileService(payments reconcilePaymentRepository, generator monthGenerator, cache *CacheService, metrics *MetricsService, logger *zap.Logger) *ReconcileService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReconcileService{
		payments:  payments,
		generator: generator,
		cache:     cache,
		metrics:   metrics,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Run executes one reconciliation pass. Concurrent runs are serialized; the
// steps themselves are safe either way.
func (s *ReconcileService) Run(ctx context.Context) (*ReconcileResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	result := &ReconcileResult{
		MonthRef: models.MonthRefOf(now),
		RanAt:    now,
	}

	generated, err := s.generator.EnsureMonth(ctx, result.MonthRef)
	if err != nil {
		s.metrics.RecordReconcileRun("error")
		return nil, err
	}
	result.Generated = generated

	overdue, err := s.payments.MarkOverdue(ctx, now)
	if err != nil {
		s.metrics.RecordReconcileRun("error")
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark overdue payments")
	}
	result.MarkedOverdue = overdue
	s.metrics.AddPaymentsOverdue(overdue)

	deleted, err := s.payments.DeleteOrphanedUnpaid(ctx)
	if err != nil {
		s.metrics.RecordReconcileRun("error")
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete orphaned payments")
	}
	result.DeletedOrphans = deleted

	resynced, err := s.payments.SyncUnpaidWithEnrollments(ctx)
	if err != nil {
		s.metrics.RecordReconcileRun("error")
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to re-sync open payments")
	}
	result.Resynced = resynced

	// Re-syncing may have zeroed the amount of a row that already went
	// overdue; exempt rows never stay ATRASADO.
	reset, err := s.payments.ResetExemptOverdue(ctx)
	if err != nil {
		s.metrics.RecordReconcileRun("error")
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reset exempt overdue payments")
	}
	result.ResetExempt = reset

	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, "billing:*"); err != nil {
			s.logger.Warn("failed to invalidate billing cache after reconcile", zap.Error(err))
		}
	}

	s.metrics.RecordReconcileRun("success")
	s.logger.Info("reconciliation completed",
		zap.String("month_ref", result.MonthRef),
		zap.Int("generated", result.Generated),
		zap.Int64("marked_overdue", result.MarkedOverdue),
		zap.Int64("deleted_orphans", result.DeletedOrphans),
		zap.Int64("resynced", result.Resynced),
		zap.Int64("reset_exempt", result.ResetExempt))
	return result, nil
}
