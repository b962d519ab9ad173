package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/mauriciomholiveira/cobranca-api/internal/models"
)

// PaymentRepository handles persistence of monthly payment obligations.
type PaymentRepository struct {
	db *sqlx.DB
}

// NewPaymentRepository constructs the repository.
func NewPaymentRepository(db *sqlx.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

const paymentColumns = `pay.id, pay.enrollment_id, pay.client_id, pay.professor_id, pay.course_id,
        pay.month_ref, pay.amount, pay.due_date, pay.status, pay.paid_at,
        pay.professor_share, pay.institution_share, pay.professor_received, pay.institution_received,
        pay.reminder_sent, pay.due_today_sent, pay.overdue_sent, pay.created_at, pay.updated_at`

// UpdatePaymentParams carries optional field updates; nil fields are untouched.
type UpdatePaymentParams struct {
	Amount           *decimal.Decimal
	DueDate          *time.Time
	ProfessorShare   *decimal.Decimal
	InstitutionShare *decimal.Decimal
	ReminderSent     *bool
	DueTodaySent     *bool
	OverdueSent      *bool
}

// List returns payments for a billing period with joined context.
func (r *PaymentRepository) List(ctx context.Context, filter models.PaymentFilter) ([]models.PaymentDetail, int, error) {
	base := `FROM payments pay
LEFT JOIN clients cl ON cl.id = pay.client_id
LEFT JOIN courses c ON c.id = pay.course_id
LEFT JOIN professors p ON p.id = pay.professor_id`
	var conditions []string
	var args []interface{}

	if filter.MonthRef != "" {
		conditions = append(conditions, fmt.Sprintf("pay.month_ref = $%d", len(args)+1))
		args = append(args, filter.MonthRef)
	}
	if filter.ClientID != "" {
		conditions = append(conditions, fmt.Sprintf("pay.client_id = $%d", len(args)+1))
		args = append(args, filter.ClientID)
	}
	if filter.ProfessorID != "" {
		conditions = append(conditions, fmt.Sprintf("pay.professor_id = $%d", len(args)+1))
		args = append(args, filter.ProfessorID)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("pay.status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	allowedSorts := map[string]string{
		"client_name": "cl.name",
		"due_date":    "pay.due_date",
		"amount":      "pay.amount",
		"status":      "pay.status",
	}
	orderBy := allowedSorts[filter.SortBy]
	if orderBy == "" {
		orderBy = "cl.name"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "ASC"
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 200 {
		size = 50
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT %s,
        cl.name AS client_name, cl.whatsapp AS client_whatsapp, c.name AS course_name, p.name AS professor_name
        %s ORDER BY %s %s LIMIT %d OFFSET %d`, paymentColumns, base+clause, orderBy, order, size, offset)

	var payments []models.PaymentDetail
	if err := r.db.SelectContext(ctx, &payments, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list payments: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base+clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count payments: %w", err)
	}
	return payments, total, nil
}

// FindByID returns a payment by its ID.
func (r *PaymentRepository) FindByID(ctx context.Context, id string) (*models.Payment, error) {
	query := fmt.Sprintf(`SELECT %s FROM payments pay WHERE pay.id = $1`, paymentColumns)
	var payment models.Payment
	if err := r.db.GetContext(ctx, &payment, query, id); err != nil {
		return nil, err
	}
	return &payment, nil
}

// FindDetailByID returns a payment with the client/course/professor context
// needed for message rendering.
func (r *PaymentRepository) FindDetailByID(ctx context.Context, id string) (*models.PaymentDetail, error) {
	query := fmt.Sprintf(`SELECT %s,
        cl.name AS client_name, cl.whatsapp AS client_whatsapp, c.name AS course_name, p.name AS professor_name
        FROM payments pay
        LEFT JOIN clients cl ON cl.id = pay.client_id
        LEFT JOIN courses c ON c.id = pay.course_id
        LEFT JOIN professors p ON p.id = pay.professor_id
        WHERE pay.id = $1`, paymentColumns)
	var detail models.PaymentDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// InsertMissing persists generated payment rows. The unique index on
// (enrollment_id, month_ref) plus ON CONFLICT DO NOTHING makes generation
// idempotent and safe under concurrent requests for the same month.
func (r *PaymentRepository) InsertMissing(ctx context.Context, payments []models.Payment) (int, error) {
	const query = `INSERT INTO payments (id, enrollment_id, client_id, professor_id, course_id, month_ref,
        amount, due_date, status, paid_at, professor_share, institution_share,
        professor_received, institution_received, reminder_sent, due_today_sent, overdue_sent, created_at, updated_at)
        VALUES (:id, :enrollment_id, :client_id, :professor_id, :course_id, :month_ref,
        :amount, :due_date, :status, :paid_at, :professor_share, :institution_share,
        :professor_received, :institution_received, :reminder_sent, :due_today_sent, :overdue_sent, :created_at, :updated_at)
        ON CONFLICT (enrollment_id, month_ref) DO NOTHING`
	inserted := 0
	for i := range payments {
		if payments[i].ID == "" {
			payments[i].ID = uuid.NewString()
		}
		res, err := r.db.NamedExecContext(ctx, query, payments[i])
		if err != nil {
			return inserted, fmt.Errorf("insert payment for enrollment %s: %w", payments[i].EnrollmentID, err)
		}
		if n, err := res.RowsAffected(); err == nil {
			inserted += int(n)
		}
	}
	return inserted, nil
}

// UpdateFields applies a partial update; nil params leave columns unchanged.
func (r *PaymentRepository) UpdateFields(ctx context.Context, id string, params UpdatePaymentParams) error {
	sets := []string{}
	args := []interface{}{id}

	add := func(column string, value interface{}) {
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)+1))
		args = append(args, value)
	}

	if params.Amount != nil {
		add("amount", *params.Amount)
	}
	if params.DueDate != nil {
		add("due_date", *params.DueDate)
	}
	if params.ProfessorShare != nil {
		add("professor_share", *params.ProfessorShare)
	}
	if params.InstitutionShare != nil {
		add("institution_share", *params.InstitutionShare)
	}
	if params.ReminderSent != nil {
		add("reminder_sent", *params.ReminderSent)
	}
	if params.DueTodaySent != nil {
		add("due_today_sent", *params.DueTodaySent)
	}
	if params.OverdueSent != nil {
		add("overdue_sent", *params.OverdueSent)
	}
	if len(sets) == 0 {
		return nil
	}
	add("updated_at", time.Now().UTC())

	query := fmt.Sprintf("UPDATE payments SET %s WHERE id = $1", strings.Join(sets, ", "))
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("update payment: %w", err)
	}
	return nil
}

// MarkPaid finalizes a payment, recording the settled split.
func (r *PaymentRepository) MarkPaid(ctx context.Context, id string, paidAt time.Time, professorReceived, institutionReceived decimal.Decimal) error {
	const query = `UPDATE payments SET status = $2, paid_at = $3, professor_received = $4,
        institution_received = $5, updated_at = $6 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, models.PaymentStatusPago, paidAt, professorReceived, institutionReceived, time.Now().UTC()); err != nil {
		return fmt.Errorf("mark payment paid: %w", err)
	}
	return nil
}

// Revert undoes a paid payment: status back to PENDENTE, paid date and
// received amounts cleared, charged amount untouched.
func (r *PaymentRepository) Revert(ctx context.Context, id string) error {
	const query = `UPDATE payments SET status = $2, paid_at = NULL, professor_received = NULL,
        institution_received = NULL, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, models.PaymentStatusPendente, time.Now().UTC()); err != nil {
		return fmt.Errorf("revert payment: %w", err)
	}
	return nil
}

// MarkOverdue transitions pending payments past their due date. Zero-amount
// rows are exempt and never become overdue.
func (r *PaymentRepository) MarkOverdue(ctx context.Context, asOf time.Time) (int64, error) {
	const query = `UPDATE payments SET status = $1, updated_at = $2
        WHERE status = $3 AND due_date < $4 AND amount > 0`
	res, err := r.db.ExecContext(ctx, query, models.PaymentStatusAtrasado, time.Now().UTC(), models.PaymentStatusPendente, asOf)
	if err != nil {
		return 0, fmt.Errorf("mark overdue payments: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// ResetExemptOverdue demotes overdue rows whose amount was later zeroed (the
// enrollment became exempt after the row went overdue) back to pending.
func (r *PaymentRepository) ResetExemptOverdue(ctx context.Context) (int64, error) {
	const query = `UPDATE payments SET status = $1, updated_at = $2
        WHERE status = $3 AND amount = 0`
	res, err := r.db.ExecContext(ctx, query, models.PaymentStatusPendente, time.Now().UTC(), models.PaymentStatusAtrasado)
	if err != nil {
		return 0, fmt.Errorf("reset exempt overdue payments: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// DeleteUnpaidByClient removes a client's non-PAGO payments, keeping history.
func (r *PaymentRepository) DeleteUnpaidByClient(ctx context.Context, clientID string) (int64, error) {
	const query = `DELETE FROM payments WHERE client_id = $1 AND status <> $2`
	res, err := r.db.ExecContext(ctx, query, clientID, models.PaymentStatusPago)
	if err != nil {
		return 0, fmt.Errorf("delete client payments: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// DeleteUnpaidByEnrollment removes an enrollment's non-PAGO payments.
func (r *PaymentRepository) DeleteUnpaidByEnrollment(ctx context.Context, enrollmentID string) (int64, error) {
	const query = `DELETE FROM payments WHERE enrollment_id = $1 AND status <> $2`
	res, err := r.db.ExecContext(ctx, query, enrollmentID, models.PaymentStatusPago)
	if err != nil {
		return 0, fmt.Errorf("delete enrollment payments: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// DeleteOrphanedUnpaid removes non-PAGO payments whose enrollment or client
// has been deactivated.
func (r *PaymentRepository) DeleteOrphanedUnpaid(ctx context.Context) (int64, error) {
	const query = `DELETE FROM payments pay
        USING enrollments e, clients cl
        WHERE pay.enrollment_id = e.id AND pay.client_id = cl.id
          AND pay.status <> $1 AND (e.active = FALSE OR cl.active = FALSE)`
	res, err := r.db.ExecContext(ctx, query, models.PaymentStatusPago)
	if err != nil {
		return 0, fmt.Errorf("delete orphaned payments: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// SyncUnpaidWithEnrollments re-aligns non-PAGO payment amounts and expected
// splits with the owning enrollment's current configuration.
func (r *PaymentRepository) SyncUnpaidWithEnrollments(ctx context.Context) (int64, error) {
	const query = `UPDATE payments pay
        SET amount = e.monthly_fee, professor_share = e.professor_share,
            institution_share = e.institution_share, updated_at = $1
        FROM enrollments e
        WHERE pay.enrollment_id = e.id AND pay.status <> $2 AND e.active = TRUE
          AND (pay.amount <> e.monthly_fee OR pay.professor_share <> e.professor_share
               OR pay.institution_share <> e.institution_share)`
	res, err := r.db.ExecContext(ctx, query, time.Now().UTC(), models.PaymentStatusPago)
	if err != nil {
		return 0, fmt.Errorf("sync payments with enrollments: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// SyncUnpaidForEnrollment narrows the re-sync to one enrollment after edits.
func (r *PaymentRepository) SyncUnpaidForEnrollment(ctx context.Context, enrollmentID string) (int64, error) {
	const query = `UPDATE payments pay
        SET amount = e.monthly_fee, professor_share = e.professor_share,
            institution_share = e.institution_share, updated_at = $1
        FROM enrollments e
        WHERE pay.enrollment_id = e.id AND e.id = $2 AND pay.status <> $3`
	res, err := r.db.ExecContext(ctx, query, time.Now().UTC(), enrollmentID, models.PaymentStatusPago)
	if err != nil {
		return 0, fmt.Errorf("sync enrollment payments: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// SetMessageFlag records that the send UI was triggered for a message kind.
func (r *PaymentRepository) SetMessageFlag(ctx context.Context, id string, kind models.MessageKind) error {
	var column string
	switch kind {
	case models.MessageKindReminder:
		column = "reminder_sent"
	case models.MessageKindDueToday:
		column = "due_today_sent"
	case models.MessageKindOverdue:
		column = "overdue_sent"
	default:
		return fmt.Errorf("unknown message kind %q", kind)
	}
	query := fmt.Sprintf(`UPDATE payments SET %s = TRUE, updated_at = $2 WHERE id = $1`, column)
	if _, err := r.db.ExecContext(ctx, query, id, time.Now().UTC()); err != nil {
		return fmt.Errorf("set message flag: %w", err)
	}
	return nil
}

type monthTotals struct {
	TotalBilled   decimal.Decimal `db:"total_billed"`
	TotalReceived decimal.Decimal `db:"total_received"`
	TotalPending  decimal.Decimal `db:"total_pending"`
	TotalOverdue  decimal.Decimal `db:"total_overdue"`
	CountTotal    int             `db:"count_total"`
	CountPaid     int             `db:"count_paid"`
	CountPending  int             `db:"count_pending"`
	CountOverdue  int             `db:"count_overdue"`
	CountExempt   int             `db:"count_exempt"`
}

// Summary aggregates a billing period, optionally scoped to one professor.
func (r *PaymentRepository) Summary(ctx context.Context, monthRef, professorID string) (*models.MonthSummary, error) {
	scope := "pay.month_ref = $1"
	args := []interface{}{monthRef}
	if professorID != "" {
		scope += " AND pay.professor_id = $2"
		args = append(args, professorID)
	}

	totalsQuery := fmt.Sprintf(`SELECT
        COALESCE(SUM(pay.amount), 0) AS total_billed,
        COALESCE(SUM(CASE WHEN pay.status = 'PAGO' THEN pay.amount ELSE 0 END), 0) AS total_received,
        COALESCE(SUM(CASE WHEN pay.status = 'PENDENTE' THEN pay.amount ELSE 0 END), 0) AS total_pending,
        COALESCE(SUM(CASE WHEN pay.status = 'ATRASADO' THEN pay.amount ELSE 0 END), 0) AS total_overdue,
        COUNT(*) AS count_total,
        COUNT(*) FILTER (WHERE pay.status = 'PAGO') AS count_paid,
        COUNT(*) FILTER (WHERE pay.status = 'PENDENTE' AND pay.amount > 0) AS count_pending,
        COUNT(*) FILTER (WHERE pay.status = 'ATRASADO') AS count_overdue,
        COUNT(*) FILTER (WHERE pay.amount = 0) AS count_exempt
        FROM payments pay WHERE %s`, scope)

	var totals monthTotals
	if err := r.db.GetContext(ctx, &totals, totalsQuery, args...); err != nil {
		return nil, fmt.Errorf("summarize month: %w", err)
	}

	breakdownQuery := fmt.Sprintf(`SELECT pay.professor_id, p.name AS professor_name,
        COUNT(*) AS count_payments,
        COALESCE(SUM(pay.amount), 0) AS total_billed,
        COALESCE(SUM(CASE WHEN pay.status = 'PAGO' THEN pay.amount ELSE 0 END), 0) AS total_received,
        COALESCE(SUM(CASE WHEN pay.status = 'PAGO' THEN COALESCE(pay.professor_received, 0) ELSE 0 END), 0) AS professor_received,
        COALESCE(SUM(CASE WHEN pay.status = 'PAGO' THEN COALESCE(pay.institution_received, 0) ELSE 0 END), 0) AS institution_received
        FROM payments pay
        LEFT JOIN professors p ON p.id = pay.professor_id
        WHERE %s
        GROUP BY pay.professor_id, p.name
        ORDER BY p.name`, scope)

	var breakdown []models.ProfessorBreakdown
	if err := r.db.SelectContext(ctx, &breakdown, breakdownQuery, args...); err != nil {
		return nil, fmt.Errorf("summarize professors: %w", err)
	}

	return &models.MonthSummary{
		MonthRef:      monthRef,
		TotalBilled:   totals.TotalBilled,
		TotalReceived: totals.TotalReceived,
		TotalPending:  totals.TotalPending,
		TotalOverdue:  totals.TotalOverdue,
		CountTotal:    totals.CountTotal,
		CountPaid:     totals.CountPaid,
		CountPending:  totals.CountPending,
		CountOverdue:  totals.CountOverdue,
		CountExempt:   totals.CountExempt,
		Professors:    breakdown,
		GeneratedAt:   time.Now().UTC(),
	}, nil
}
