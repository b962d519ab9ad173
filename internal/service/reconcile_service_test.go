package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type mockReconcilePaymentRepo struct {
	overdue  int64
	orphans  int64
	resynced int64
	exempt   int64
	calls    []string
}

func (m *mockReconcilePaymentRepo) MarkOverdue(ctx context.Context, asOf time.Time) (int64, error) {
	m.calls = append(m.calls, "overdue")
	n := m.overdue
	m.overdue = 0
	return n, nil
}

func (m *mockReconcilePaymentRepo) DeleteOrphanedUnpaid(ctx context.Context) (int64, error) {
	m.calls = append(m.calls, "orphans")
	n := m.orphans
	m.orphans = 0
	return n, nil
}

func (m *mockReconcilePaymentRepo) SyncUnpaidWithEnrollments(ctx context.Context) (int64, error) {
	m.calls = append(m.calls, "resync")
	n := m.resynced
	m.resynced = 0
	return n, nil
}

func (m *mockReconcilePaymentRepo) ResetExemptOverdue(ctx context.Context) (int64, error) {
	m.calls = append(m.calls, "reset_exempt")
	n := m.exempt
	m.exempt = 0
	return n, nil
}

type mockMonthGenerator struct {
	generated int
	months    []string
}

func (m *mockMonthGenerator) EnsureMonth(ctx context.Context, monthRef string) (int, error) {
	m.months = append(m.months, monthRef)
	n := m.generated
	m.generated = 0
	return n, nil
}

func TestReconcileRunAggregatesCounts(t *testing.T) {
	payments := &mockReconcilePaymentRepo{overdue: 3, orphans: 2, resynced: 1, exempt: 1}
	generator := &mockMonthGenerator{generated: 4}
	svc := NewReconcileService(payments, generator, nil, nil, zap.NewNop())
	now := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	result, err := svc.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "2026-08", result.MonthRef)
	assert.Equal(t, 4, result.Generated)
	assert.Equal(t, int64(3), result.MarkedOverdue)
	assert.Equal(t, int64(2), result.DeletedOrphans)
	assert.Equal(t, int64(1), result.Resynced)
	assert.Equal(t, int64(1), result.ResetExempt)
	assert.Equal(t, []string{"overdue", "orphans", "resync", "reset_exempt"}, payments.calls)
	assert.Equal(t, []string{"2026-08"}, generator.months)
}

func TestReconcileSecondRunIsNoop(t *testing.T) {
	payments := &mockReconcilePaymentRepo{overdue: 3, orphans: 2, resynced: 1}
	generator := &mockMonthGenerator{generated: 4}
	svc := NewReconcileService(payments, generator, nil, nil, zap.NewNop())

	_, err := svc.Run(context.Background())
	require.NoError(t, err)

	second, err := svc.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, second.Generated)
	assert.Equal(t, int64(0), second.MarkedOverdue)
	assert.Equal(t, int64(0), second.DeletedOrphans)
	assert.Equal(t, int64(0), second.Resynced)
	assert.Equal(t, int64(0), second.ResetExempt)
}
