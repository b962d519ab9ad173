package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mauriciomholiveira/cobranca-api/internal/models"
	"github.com/mauriciomholiveira/cobranca-api/internal/repository"
	appErrors "github.com/mauriciomholiveira/cobranca-api/pkg/errors"
)

type mockBillingPaymentRepo struct {
	payments     map[string]models.Payment
	inserted     []models.Payment
	lastUpdate   repository.UpdatePaymentParams
	paid         map[string][2]decimal.Decimal
	reverted     []string
	summaryCalls int
}

func newMockBillingPaymentRepo() *mockBillingPaymentRepo {
	return &mockBillingPaymentRepo{
		payments: make(map[string]models.Payment),
		paid:     make(map[string][2]decimal.Decimal),
	}
}

func (m *mockBillingPaymentRepo) List(ctx context.Context, filter models.PaymentFilter) ([]models.PaymentDetail, int, error) {
	details := make([]models.PaymentDetail, 0, len(m.payments))
	for _, p := range m.payments {
		details = append(details, models.PaymentDetail{Payment: p})
	}
	return details, len(details), nil
}

func (m *mockBillingPaymentRepo) FindByID(ctx context.Context, id string) (*models.Payment, error) {
	if p, ok := m.payments[id]; ok {
		return &p, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockBillingPaymentRepo) FindDetailByID(ctx context.Context, id string) (*models.PaymentDetail, error) {
	if p, ok := m.payments[id]; ok {
		return &models.PaymentDetail{Payment: p}, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockBillingPaymentRepo) InsertMissing(ctx context.Context, payments []models.Payment) (int, error) {
	inserted := 0
	for i := range payments {
		exists := false
		for _, p := range m.payments {
			if p.EnrollmentID == payments[i].EnrollmentID && p.MonthRef == payments[i].MonthRef {
				exists = true
				break
			}
		}
		if exists {
			continue
		}
		if payments[i].ID == "" {
			payments[i].ID = payments[i].EnrollmentID + ":" + payments[i].MonthRef
		}
		m.payments[payments[i].ID] = payments[i]
		m.inserted = append(m.inserted, payments[i])
		inserted++
	}
	return inserted, nil
}

func (m *mockBillingPaymentRepo) UpdateFields(ctx context.Context, id string, params repository.UpdatePaymentParams) error {
	m.lastUpdate = params
	p := m.payments[id]
	if params.Amount != nil {
		p.Amount = *params.Amount
	}
	if params.DueDate != nil {
		p.DueDate = *params.DueDate
	}
	if params.ProfessorShare != nil {
		p.ProfessorShare = *params.ProfessorShare
	}
	if params.InstitutionShare != nil {
		p.InstitutionShare = *params.InstitutionShare
	}
	m.payments[id] = p
	return nil
}

func (m *mockBillingPaymentRepo) MarkPaid(ctx context.Context, id string, paidAt time.Time, professorReceived, institutionReceived decimal.Decimal) error {
	p := m.payments[id]
	p.Status = models.PaymentStatusPago
	p.PaidAt = &paidAt
	m.payments[id] = p
	m.paid[id] = [2]decimal.Decimal{professorReceived, institutionReceived}
	return nil
}

func (m *mockBillingPaymentRepo) Revert(ctx context.Context, id string) error {
	p := m.payments[id]
	p.Status = models.PaymentStatusPendente
	p.PaidAt = nil
	m.payments[id] = p
	m.reverted = append(m.reverted, id)
	return nil
}

func (m *mockBillingPaymentRepo) Summary(ctx context.Context, monthRef, professorID string) (*models.MonthSummary, error) {
	m.summaryCalls++
	return &models.MonthSummary{MonthRef: monthRef, CountTotal: len(m.payments)}, nil
}

type mockBillingEnrollmentRepo struct {
	candidates []models.BillingCandidate
}

func (m *mockBillingEnrollmentRepo) ListActiveForBilling(ctx context.Context, monthRef string) ([]models.BillingCandidate, error) {
	// Mirrors the NOT EXISTS(payment for month) clause of the real query.
	return m.candidates, nil
}

func candidate(id string, dueDay, clientDueDay int, fee, profShare, instShare string) models.BillingCandidate {
	return models.BillingCandidate{
		Enrollment: models.Enrollment{
			ID:               id,
			ClientID:         "cli-" + id,
			CourseID:         "crs-1",
			ProfessorID:      "prof-1",
			DueDay:           dueDay,
			MonthlyFee:       dec(fee),
			ProfessorShare:   dec(profShare),
			InstitutionShare: dec(instShare),
			Active:           true,
		},
		ClientDueDay: clientDueDay,
	}
}

func newBillingService(payments *mockBillingPaymentRepo, enrollments *mockBillingEnrollmentRepo) *BillingService {
	return NewBillingService(payments, enrollments, nil, nil, validator.New(), zap.NewNop(), BillingOptions{DefaultDueDay: 10})
}

func TestBillingEnsureMonthDueDayFallbacks(t *testing.T) {
	payments := newMockBillingPaymentRepo()
	enrollments := &mockBillingEnrollmentRepo{candidates: []models.BillingCandidate{
		candidate("enr-1", 5, 15, "150.00", "100.00", "50.00"),
		candidate("enr-2", 0, 15, "200.00", "120.00", "80.00"),
		candidate("enr-3", 0, 0, "80.00", "40.00", "40.00"),
	}}
	svc := newBillingService(payments, enrollments)

	inserted, err := svc.EnsureMonth(context.Background(), "2026-08")
	require.NoError(t, err)
	assert.Equal(t, 3, inserted)

	byEnrollment := map[string]models.Payment{}
	for _, p := range payments.inserted {
		byEnrollment[p.EnrollmentID] = p
	}
	assert.Equal(t, 5, byEnrollment["enr-1"].DueDate.Day())
	assert.Equal(t, 15, byEnrollment["enr-2"].DueDate.Day())
	assert.Equal(t, 10, byEnrollment["enr-3"].DueDate.Day())
	for _, p := range byEnrollment {
		assert.Equal(t, models.PaymentStatusPendente, p.Status)
		assert.Equal(t, "2026-08", p.MonthRef)
	}
}

func TestBillingEnsureMonthClampsDueDay(t *testing.T) {
	payments := newMockBillingPaymentRepo()
	enrollments := &mockBillingEnrollmentRepo{candidates: []models.BillingCandidate{
		candidate("enr-1", 31, 0, "150.00", "100.00", "50.00"),
	}}
	svc := newBillingService(payments, enrollments)

	_, err := svc.EnsureMonth(context.Background(), "2026-02")
	require.NoError(t, err)
	require.Len(t, payments.inserted, 1)
	assert.Equal(t, 28, payments.inserted[0].DueDate.Day())
}

func TestBillingEnsureMonthIdempotent(t *testing.T) {
	payments := newMockBillingPaymentRepo()
	enrollments := &mockBillingEnrollmentRepo{candidates: []models.BillingCandidate{
		candidate("enr-1", 10, 0, "150.00", "100.00", "50.00"),
	}}
	svc := newBillingService(payments, enrollments)

	first, err := svc.EnsureMonth(context.Background(), "2026-08")
	require.NoError(t, err)
	assert.Equal(t, 1, first)

	second, err := svc.EnsureMonth(context.Background(), "2026-08")
	require.NoError(t, err)
	assert.Equal(t, 0, second)
	assert.Len(t, payments.payments, 1)
}

func TestBillingEnsureMonthGeneratesExemptRows(t *testing.T) {
	payments := newMockBillingPaymentRepo()
	enrollments := &mockBillingEnrollmentRepo{candidates: []models.BillingCandidate{
		candidate("enr-1", 10, 0, "0", "0", "0"),
	}}
	svc := newBillingService(payments, enrollments)

	inserted, err := svc.EnsureMonth(context.Background(), "2026-08")
	require.NoError(t, err)
	assert.Equal(t, 1, inserted)
	assert.True(t, payments.inserted[0].Exempt())
}

func TestBillingEnsureMonthRejectsBadMonthRef(t *testing.T) {
	svc := newBillingService(newMockBillingPaymentRepo(), &mockBillingEnrollmentRepo{})

	_, err := svc.EnsureMonth(context.Background(), "08/2026")
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrInvalidMonthRef.Code, appErr.Code)
}

func TestBillingPatchRejectsSettledPayment(t *testing.T) {
	payments := newMockBillingPaymentRepo()
	payments.payments["pay-1"] = models.Payment{ID: "pay-1", Status: models.PaymentStatusPago, Amount: dec("150.00")}
	svc := newBillingService(payments, &mockBillingEnrollmentRepo{})

	amount := dec("100.00")
	_, err := svc.Patch(context.Background(), "pay-1", PatchPaymentRequest{Amount: &amount})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPaymentFinalized.Code, appErrors.FromError(err).Code)
}

func TestBillingPatchAmountRescalesShares(t *testing.T) {
	payments := newMockBillingPaymentRepo()
	payments.payments["pay-1"] = models.Payment{
		ID: "pay-1", Status: models.PaymentStatusPendente,
		Amount: dec("150.00"), ProfessorShare: dec("100.00"), InstitutionShare: dec("50.00"),
	}
	svc := newBillingService(payments, &mockBillingEnrollmentRepo{})

	amount := dec("75.00")
	updated, err := svc.Patch(context.Background(), "pay-1", PatchPaymentRequest{Amount: &amount})
	require.NoError(t, err)
	assert.True(t, updated.Amount.Equal(dec("75.00")))
	assert.True(t, updated.ProfessorShare.Equal(dec("50.00")))
	assert.True(t, updated.InstitutionShare.Equal(dec("25.00")))
}

func TestBillingPatchInconsistentSplitRejected(t *testing.T) {
	payments := newMockBillingPaymentRepo()
	payments.payments["pay-1"] = models.Payment{
		ID: "pay-1", Status: models.PaymentStatusPendente,
		Amount: dec("150.00"), ProfessorShare: dec("100.00"), InstitutionShare: dec("50.00"),
	}
	svc := newBillingService(payments, &mockBillingEnrollmentRepo{})

	prof := dec("200.00")
	inst := dec("50.00")
	_, err := svc.Patch(context.Background(), "pay-1", PatchPaymentRequest{ProfessorShare: &prof, InstitutionShare: &inst})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidSplit.Code, appErrors.FromError(err).Code)
}

func TestBillingMarkPaidDefaultsToExpectedSplit(t *testing.T) {
	payments := newMockBillingPaymentRepo()
	payments.payments["pay-1"] = models.Payment{
		ID: "pay-1", Status: models.PaymentStatusAtrasado,
		Amount: dec("150.00"), ProfessorShare: dec("100.00"), InstitutionShare: dec("50.00"),
	}
	svc := newBillingService(payments, &mockBillingEnrollmentRepo{})

	updated, err := svc.MarkPaid(context.Background(), "pay-1", MarkPaidRequest{})
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusPago, updated.Status)
	require.NotNil(t, updated.PaidAt)
	received := payments.paid["pay-1"]
	assert.True(t, received[0].Equal(dec("100.00")))
	assert.True(t, received[1].Equal(dec("50.00")))
}

func TestBillingMarkPaidPartialReceivedFillsRemainder(t *testing.T) {
	payments := newMockBillingPaymentRepo()
	payments.payments["pay-1"] = models.Payment{
		ID: "pay-1", Status: models.PaymentStatusPendente,
		Amount: dec("150.00"), ProfessorShare: dec("100.00"), InstitutionShare: dec("50.00"),
	}
	svc := newBillingService(payments, &mockBillingEnrollmentRepo{})

	prof := dec("90.00")
	_, err := svc.MarkPaid(context.Background(), "pay-1", MarkPaidRequest{ProfessorReceived: &prof})
	require.NoError(t, err)
	received := payments.paid["pay-1"]
	assert.True(t, received[0].Equal(dec("90.00")))
	assert.True(t, received[1].Equal(dec("60.00")))
}

func TestBillingMarkPaidRejectsMismatchedSum(t *testing.T) {
	payments := newMockBillingPaymentRepo()
	payments.payments["pay-1"] = models.Payment{
		ID: "pay-1", Status: models.PaymentStatusPendente,
		Amount: dec("150.00"), ProfessorShare: dec("100.00"), InstitutionShare: dec("50.00"),
	}
	svc := newBillingService(payments, &mockBillingEnrollmentRepo{})

	prof := dec("100.00")
	inst := dec("100.00")
	_, err := svc.MarkPaid(context.Background(), "pay-1", MarkPaidRequest{ProfessorReceived: &prof, InstitutionReceived: &inst})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidSplit.Code, appErrors.FromError(err).Code)
}

func TestBillingMarkPaidTwiceRejected(t *testing.T) {
	payments := newMockBillingPaymentRepo()
	payments.payments["pay-1"] = models.Payment{
		ID: "pay-1", Status: models.PaymentStatusPendente,
		Amount: dec("150.00"), ProfessorShare: dec("100.00"), InstitutionShare: dec("50.00"),
	}
	svc := newBillingService(payments, &mockBillingEnrollmentRepo{})

	_, err := svc.MarkPaid(context.Background(), "pay-1", MarkPaidRequest{})
	require.NoError(t, err)
	_, err = svc.MarkPaid(context.Background(), "pay-1", MarkPaidRequest{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPaymentFinalized.Code, appErrors.FromError(err).Code)
}

func TestBillingRevertReopensPayment(t *testing.T) {
	payments := newMockBillingPaymentRepo()
	paidAt := time.Now()
	payments.payments["pay-1"] = models.Payment{
		ID: "pay-1", Status: models.PaymentStatusPago, PaidAt: &paidAt,
		Amount: dec("150.00"), ProfessorShare: dec("100.00"), InstitutionShare: dec("50.00"),
	}
	svc := newBillingService(payments, &mockBillingEnrollmentRepo{})

	updated, err := svc.Revert(context.Background(), "pay-1")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusPendente, updated.Status)
	assert.Nil(t, updated.PaidAt)
	assert.Contains(t, payments.reverted, "pay-1")
}

func TestBillingRevertRejectsOpenPayment(t *testing.T) {
	payments := newMockBillingPaymentRepo()
	payments.payments["pay-1"] = models.Payment{ID: "pay-1", Status: models.PaymentStatusPendente, Amount: dec("150.00")}
	svc := newBillingService(payments, &mockBillingEnrollmentRepo{})

	_, err := svc.Revert(context.Background(), "pay-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErrors.FromError(err).Code)
}

func TestBillingSummaryEnsuresMonthFirst(t *testing.T) {
	payments := newMockBillingPaymentRepo()
	enrollments := &mockBillingEnrollmentRepo{candidates: []models.BillingCandidate{
		candidate("enr-1", 10, 0, "150.00", "100.00", "50.00"),
	}}
	svc := newBillingService(payments, enrollments)

	summary, err := svc.Summary(context.Background(), "2026-08", "")
	require.NoError(t, err)
	assert.Equal(t, "2026-08", summary.MonthRef)
	assert.Equal(t, 1, summary.CountTotal)
	assert.Equal(t, 1, payments.summaryCalls)
}
