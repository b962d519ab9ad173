package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Client is a student billed monthly through their enrollments.
type Client struct {
	ID         string          `db:"id" json:"id"`
	Name       string          `db:"name" json:"name"`
	WhatsApp   string          `db:"whatsapp" json:"whatsapp"`
	MonthlyFee decimal.Decimal `db:"monthly_fee" json:"monthly_fee"`
	DueDay     int             `db:"due_day" json:"due_day"`
	Notes      string          `db:"notes" json:"notes"`
	Active     bool            `db:"active" json:"active"`
	CreatedAt  time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time       `db:"updated_at" json:"updated_at"`
}

// ClientFilter captures listing criteria for clients.
type ClientFilter struct {
	Search    string
	Active    *bool
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
