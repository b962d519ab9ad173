package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/mauriciomholiveira/cobranca-api/internal/models"
)

// BackupRepository reads full table contents for snapshot exports.
type BackupRepository struct {
	db *sqlx.DB
}

// NewBackupRepository constructs the repository.
func NewBackupRepository(db *sqlx.DB) *BackupRepository {
	return &BackupRepository{db: db}
}

// Snapshot loads every table into memory. The dataset is small (one
// institution's clients and a few years of payments) so a full read is fine.
func (r *BackupRepository) Snapshot(ctx context.Context) (*models.BackupSnapshot, error) {
	snap := &models.BackupSnapshot{}

	if err := r.db.SelectContext(ctx, &snap.Professors, `SELECT id, name, email, password_hash, phone, admin, can_message, active, created_at, updated_at FROM professors ORDER BY created_at`); err != nil {
		return nil, fmt.Errorf("snapshot professors: %w", err)
	}
	if err := r.db.SelectContext(ctx, &snap.Courses, `SELECT id, name, monthly_fee, active, created_at, updated_at FROM courses ORDER BY created_at`); err != nil {
		return nil, fmt.Errorf("snapshot courses: %w", err)
	}
	if err := r.db.SelectContext(ctx, &snap.Clients, `SELECT id, name, whatsapp, monthly_fee, due_day, notes, active, created_at, updated_at FROM clients ORDER BY created_at`); err != nil {
		return nil, fmt.Errorf("snapshot clients: %w", err)
	}
	if err := r.db.SelectContext(ctx, &snap.Enrollments, `SELECT id, client_id, course_id, professor_id, due_day, monthly_fee, professor_share, institution_share, active, created_at, updated_at FROM enrollments ORDER BY created_at`); err != nil {
		return nil, fmt.Errorf("snapshot enrollments: %w", err)
	}
	if err := r.db.SelectContext(ctx, &snap.Payments, `SELECT id, enrollment_id, client_id, professor_id, course_id, month_ref, amount, due_date, status, paid_at, professor_share, institution_share, professor_received, institution_received, reminder_sent, due_today_sent, overdue_sent, created_at, updated_at FROM payments ORDER BY month_ref, created_at`); err != nil {
		return nil, fmt.Errorf("snapshot payments: %w", err)
	}

	return snap, nil
}
