package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentStatus is the three-state payment lifecycle.
type PaymentStatus string

const (
	PaymentStatusPendente PaymentStatus = "PENDENTE"
	PaymentStatusAtrasado PaymentStatus = "ATRASADO"
	PaymentStatusPago     PaymentStatus = "PAGO"
)

// Payment is one month's billing obligation derived from an enrollment.
// ProfessorShare/InstitutionShare hold the split copied from the enrollment
// at generation time; the Received fields hold the amounts actually settled
// when the payment is marked PAGO.
type Payment struct {
	ID                  string              `db:"id" json:"id"`
	EnrollmentID        string              `db:"enrollment_id" json:"enrollment_id"`
	ClientID            string              `db:"client_id" json:"client_id"`
	ProfessorID         string              `db:"professor_id" json:"professor_id"`
	CourseID            string              `db:"course_id" json:"course_id"`
	MonthRef            string              `db:"month_ref" json:"month_ref"`
	Amount              decimal.Decimal     `db:"amount" json:"amount"`
	DueDate             time.Time           `db:"due_date" json:"due_date"`
	Status              PaymentStatus       `db:"status" json:"status"`
	PaidAt              *time.Time          `db:"paid_at" json:"paid_at,omitempty"`
	ProfessorShare      decimal.Decimal     `db:"professor_share" json:"professor_share"`
	InstitutionShare    decimal.Decimal     `db:"institution_share" json:"institution_share"`
	ProfessorReceived   decimal.NullDecimal `db:"professor_received" json:"professor_received,omitempty"`
	InstitutionReceived decimal.NullDecimal `db:"institution_received" json:"institution_received,omitempty"`
	ReminderSent        bool                `db:"reminder_sent" json:"reminder_sent"`
	DueTodaySent        bool                `db:"due_today_sent" json:"due_today_sent"`
	OverdueSent         bool                `db:"overdue_sent" json:"overdue_sent"`
	CreatedAt           time.Time           `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time           `db:"updated_at" json:"updated_at"`
}

// Exempt reports whether this is a zero-fee obligation. Exempt rows never
// become overdue and are skipped by reminder flows.
func (p Payment) Exempt() bool {
	return p.Amount.IsZero()
}

// PaymentDetail joins client/course/professor context onto a payment for
// billing lists and message rendering.
type PaymentDetail struct {
	Payment
	ClientName     string `db:"client_name" json:"client_name"`
	ClientWhatsApp string `db:"client_whatsapp" json:"client_whatsapp"`
	CourseName     string `db:"course_name" json:"course_name"`
	ProfessorName  string `db:"professor_name" json:"professor_name"`
}

// PaymentFilter captures listing criteria for a billing period.
type PaymentFilter struct {
	MonthRef    string
	ClientID    string
	ProfessorID string
	Status      PaymentStatus
	Page        int
	PageSize    int
	SortBy      string
	SortOrder   string
}

// MonthSummary aggregates one billing period.
type MonthSummary struct {
	MonthRef      string               `json:"month_ref"`
	TotalBilled   decimal.Decimal      `json:"total_billed"`
	TotalReceived decimal.Decimal      `json:"total_received"`
	TotalPending  decimal.Decimal      `json:"total_pending"`
	TotalOverdue  decimal.Decimal      `json:"total_overdue"`
	CountTotal    int                  `json:"count_total"`
	CountPaid     int                  `json:"count_paid"`
	CountPending  int                  `json:"count_pending"`
	CountOverdue  int                  `json:"count_overdue"`
	CountExempt   int                  `json:"count_exempt"`
	Professors    []ProfessorBreakdown `json:"professors"`
	GeneratedAt   time.Time            `json:"generated_at"`
}

// ProfessorBreakdown splits a month's received money per professor.
type ProfessorBreakdown struct {
	ProfessorID         string          `db:"professor_id" json:"professor_id"`
	ProfessorName       string          `db:"professor_name" json:"professor_name"`
	CountPayments       int             `db:"count_payments" json:"count_payments"`
	TotalBilled         decimal.Decimal `db:"total_billed" json:"total_billed"`
	TotalReceived       decimal.Decimal `db:"total_received" json:"total_received"`
	ProfessorReceived   decimal.Decimal `db:"professor_received" json:"professor_received"`
	InstitutionReceived decimal.Decimal `db:"institution_received" json:"institution_received"`
}
