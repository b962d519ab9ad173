package repository

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mauriciomholiveira/cobranca-api/internal/models"
)

func newPaymentMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func paymentDetailRows() *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{
		"id", "enrollment_id", "client_id", "professor_id", "course_id",
		"month_ref", "amount", "due_date", "status", "paid_at",
		"professor_share", "institution_share", "professor_received", "institution_received",
		"reminder_sent", "due_today_sent", "overdue_sent", "created_at", "updated_at",
		"client_name", "client_whatsapp", "course_name", "professor_name",
	}).AddRow(
		"pay-1", "enr-1", "cli-1", "prof-1", "crs-1",
		"2026-08", "150.00", now, "PENDENTE", nil,
		"100.00", "50.00", nil, nil,
		false, false, false, now, now,
		"Ana Souza", "11988887777", "Violino", "Carlos Lima",
	)
}

func TestPaymentRepositoryList(t *testing.T) {
	db, mock, cleanup := newPaymentMock(t)
	defer cleanup()
	repo := NewPaymentRepository(db)

	mock.ExpectQuery(`SELECT (.+) FROM payments pay`).
		WithArgs("2026-08").
		WillReturnRows(paymentDetailRows())
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM payments pay`).
		WithArgs("2026-08").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	payments, total, err := repo.List(context.Background(), models.PaymentFilter{MonthRef: "2026-08"})
	require.NoError(t, err)
	assert.Len(t, payments, 1)
	assert.Equal(t, 1, total)
	assert.Equal(t, "Ana Souza", payments[0].ClientName)
	assert.True(t, payments[0].Amount.Equal(decimal.NewFromInt(150)))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentRepositoryInsertMissingCountsConflicts(t *testing.T) {
	db, mock, cleanup := newPaymentMock(t)
	defer cleanup()
	repo := NewPaymentRepository(db)

	// First row inserts, second hits the (enrollment_id, month_ref) unique
	// index and is skipped.
	mock.ExpectExec(`INSERT INTO payments`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO payments`).WillReturnResult(sqlmock.NewResult(0, 0))

	now := time.Now()
	payments := []models.Payment{
		{EnrollmentID: "enr-1", ClientID: "cli-1", ProfessorID: "prof-1", CourseID: "crs-1", MonthRef: "2026-08", Amount: decimal.NewFromInt(150), DueDate: now, Status: models.PaymentStatusPendente, CreatedAt: now, UpdatedAt: now},
		{EnrollmentID: "enr-2", ClientID: "cli-2", ProfessorID: "prof-1", CourseID: "crs-1", MonthRef: "2026-08", Amount: decimal.NewFromInt(200), DueDate: now, Status: models.PaymentStatusPendente, CreatedAt: now, UpdatedAt: now},
	}
	inserted, err := repo.InsertMissing(context.Background(), payments)
	require.NoError(t, err)
	assert.Equal(t, 1, inserted)
	assert.NotEmpty(t, payments[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentRepositoryMarkPaid(t *testing.T) {
	db, mock, cleanup := newPaymentMock(t)
	defer cleanup()
	repo := NewPaymentRepository(db)

	mock.ExpectExec(`UPDATE payments SET status`).
		WithArgs("pay-1", models.PaymentStatusPago, sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.MarkPaid(context.Background(), "pay-1", time.Now(), decimal.NewFromInt(100), decimal.NewFromInt(50))
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentRepositoryMarkOverdueSkipsExempt(t *testing.T) {
	db, mock, cleanup := newPaymentMock(t)
	defer cleanup()
	repo := NewPaymentRepository(db)

	mock.ExpectExec(`UPDATE payments SET status (.+) amount > 0`).
		WithArgs(models.PaymentStatusAtrasado, sqlmock.AnyArg(), models.PaymentStatusPendente, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := repo.MarkOverdue(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentRepositoryResetExemptOverdue(t *testing.T) {
	db, mock, cleanup := newPaymentMock(t)
	defer cleanup()
	repo := NewPaymentRepository(db)

	mock.ExpectExec(`UPDATE payments SET status (.+) amount = 0`).
		WithArgs(models.PaymentStatusPendente, sqlmock.AnyArg(), models.PaymentStatusAtrasado).
		WillReturnResult(sqlmock.NewResult(0, 2))

	n, err := repo.ResetExemptOverdue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentRepositoryUpdateFieldsNoopWithoutChanges(t *testing.T) {
	db, mock, cleanup := newPaymentMock(t)
	defer cleanup()
	repo := NewPaymentRepository(db)

	err := repo.UpdateFields(context.Background(), "pay-1", UpdatePaymentParams{})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentRepositoryUpdateFieldsPartial(t *testing.T) {
	db, mock, cleanup := newPaymentMock(t)
	defer cleanup()
	repo := NewPaymentRepository(db)

	amount := decimal.NewFromInt(180)
	mock.ExpectExec(`UPDATE payments SET amount = \$2, updated_at = \$3 WHERE id = \$1`).
		WithArgs("pay-1", amount, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.UpdateFields(context.Background(), "pay-1", UpdatePaymentParams{Amount: &amount})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentRepositoryDeleteUnpaidByClientKeepsPaid(t *testing.T) {
	db, mock, cleanup := newPaymentMock(t)
	defer cleanup()
	repo := NewPaymentRepository(db)

	mock.ExpectExec(`DELETE FROM payments WHERE client_id = \$1 AND status <> \$2`).
		WithArgs("cli-1", models.PaymentStatusPago).
		WillReturnResult(sqlmock.NewResult(0, 2))

	n, err := repo.DeleteUnpaidByClient(context.Background(), "cli-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentRepositorySummary(t *testing.T) {
	db, mock, cleanup := newPaymentMock(t)
	defer cleanup()
	repo := NewPaymentRepository(db)

	totals := sqlmock.NewRows([]string{
		"total_billed", "total_received", "total_pending", "total_overdue",
		"count_total", "count_paid", "count_pending", "count_overdue", "count_exempt",
	}).AddRow("450.00", "150.00", "200.00", "100.00", 4, 1, 1, 1, 1)
	mock.ExpectQuery(`SELECT\s+COALESCE\(SUM\(pay.amount\), 0\)`).
		WithArgs("2026-08").
		WillReturnRows(totals)

	breakdown := sqlmock.NewRows([]string{
		"professor_id", "professor_name", "count_payments",
		"total_billed", "total_received", "professor_received", "institution_received",
	}).AddRow("prof-1", "Carlos Lima", 4, "450.00", "150.00", "100.00", "50.00")
	mock.ExpectQuery(`SELECT pay.professor_id, p.name AS professor_name`).
		WithArgs("2026-08").
		WillReturnRows(breakdown)

	summary, err := repo.Summary(context.Background(), "2026-08", "")
	require.NoError(t, err)
	assert.Equal(t, "2026-08", summary.MonthRef)
	assert.Equal(t, 4, summary.CountTotal)
	assert.Equal(t, 1, summary.CountExempt)
	require.Len(t, summary.Professors, 1)
	assert.True(t, summary.Professors[0].ProfessorReceived.Equal(decimal.NewFromInt(100)))
	assert.NoError(t, mock.ExpectationsWereMet())
}
