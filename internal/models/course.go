package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Course is an offering (instrument or class) with a default monthly fee.
type Course struct {
	ID         string          `db:"id" json:"id"`
	Name       string          `db:"name" json:"name"`
	MonthlyFee decimal.Decimal `db:"monthly_fee" json:"monthly_fee"`
	Active     bool            `db:"active" json:"active"`
	CreatedAt  time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time       `db:"updated_at" json:"updated_at"`
}

// CourseFilter captures listing criteria for courses.
type CourseFilter struct {
	Search    string
	Active    *bool
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
