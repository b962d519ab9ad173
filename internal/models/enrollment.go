package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Enrollment links a client to a course taught by a professor, carrying the
// monthly fee and its professor/institution split.
type Enrollment struct {
	ID               string          `db:"id" json:"id"`
	ClientID         string          `db:"client_id" json:"client_id"`
	CourseID         string          `db:"course_id" json:"course_id"`
	ProfessorID      string          `db:"professor_id" json:"professor_id"`
	DueDay           int             `db:"due_day" json:"due_day"`
	MonthlyFee       decimal.Decimal `db:"monthly_fee" json:"monthly_fee"`
	ProfessorShare   decimal.Decimal `db:"professor_share" json:"professor_share"`
	InstitutionShare decimal.Decimal `db:"institution_share" json:"institution_share"`
	Active           bool            `db:"active" json:"active"`
	CreatedAt        time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time       `db:"updated_at" json:"updated_at"`
}

// EnrollmentDetail joins contextual names onto an enrollment.
type EnrollmentDetail struct {
	Enrollment
	ClientName    string `db:"client_name" json:"client_name"`
	CourseName    string `db:"course_name" json:"course_name"`
	ProfessorName string `db:"professor_name" json:"professor_name"`
}

// BillingCandidate is an active enrollment of an active client that still
// lacks a payment row for the target month.
type BillingCandidate struct {
	Enrollment
	ClientDueDay int `db:"client_due_day"`
}

// EnrollmentFilter captures listing criteria for enrollments.
type EnrollmentFilter struct {
	ClientID    string
	CourseID    string
	ProfessorID string
	Active      *bool
	Page        int
	PageSize    int
	SortBy      string
	SortOrder   string
}
