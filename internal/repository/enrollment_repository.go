package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/mauriciomholiveira/cobranca-api/internal/models"
)

// EnrollmentRepository handles persistence of enrollments.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

const enrollmentColumns = `e.id, e.client_id, e.course_id, e.professor_id, e.due_day, e.monthly_fee,
        e.professor_share, e.institution_share, e.active, e.created_at, e.updated_at`

// List returns enrollments with joined context filtered by the provided criteria.
func (r *EnrollmentRepository) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error) {
	base := `FROM enrollments e
LEFT JOIN clients cl ON cl.id = e.client_id
LEFT JOIN courses c ON c.id = e.course_id
LEFT JOIN professors p ON p.id = e.professor_id`
	var conditions []string
	var args []interface{}

	if filter.ClientID != "" {
		conditions = append(conditions, fmt.Sprintf("e.client_id = $%d", len(args)+1))
		args = append(args, filter.ClientID)
	}
	if filter.CourseID != "" {
		conditions = append(conditions, fmt.Sprintf("e.course_id = $%d", len(args)+1))
		args = append(args, filter.CourseID)
	}
	if filter.ProfessorID != "" {
		conditions = append(conditions, fmt.Sprintf("e.professor_id = $%d", len(args)+1))
		args = append(args, filter.ProfessorID)
	}
	if filter.Active != nil {
		conditions = append(conditions, fmt.Sprintf("e.active = $%d", len(args)+1))
		args = append(args, *filter.Active)
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	allowedSorts := map[string]string{
		"client_name": "cl.name",
		"course_name": "c.name",
		"created_at":  "e.created_at",
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
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT %s,
        cl.name AS client_name, c.name AS course_name, p.name AS professor_name
        %s ORDER BY %s %s LIMIT %d OFFSET %d`, enrollmentColumns, base+clause, orderBy, order, size, offset)

	var enrollments []models.EnrollmentDetail
	if err := r.db.SelectContext(ctx, &enrollments, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list enrollments: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base+clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count enrollments: %w", err)
	}
	return enrollments, total, nil
}

// FindByID returns an enrollment by its ID.
func (r *EnrollmentRepository) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	query := fmt.Sprintf(`SELECT %s FROM enrollments e WHERE e.id = $1`, enrollmentColumns)
	var enrollment models.Enrollment
	if err := r.db.GetContext(ctx, &enrollment, query, id); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// FindDetailByID returns an enrollment with contextual names.
func (r *EnrollmentRepository) FindDetailByID(ctx context.Context, id string) (*models.EnrollmentDetail, error) {
	query := fmt.Sprintf(`SELECT %s,
        cl.name AS client_name, c.name AS course_name, p.name AS professor_name
        FROM enrollments e
        LEFT JOIN clients cl ON cl.id = e.client_id
        LEFT JOIN courses c ON c.id = e.course_id
        LEFT JOIN professors p ON p.id = e.professor_id
        WHERE e.id = $1`, enrollmentColumns)
	var detail models.EnrollmentDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// ExistsActive checks whether an active enrollment exists for a client/course pair.
func (r *EnrollmentRepository) ExistsActive(ctx context.Context, clientID, courseID, excludeID string) (bool, error) {
	query := "SELECT 1 FROM enrollments WHERE client_id = $1 AND course_id = $2 AND active = TRUE"
	args := []interface{}{clientID, courseID}
	if excludeID != "" {
		query += fmt.Sprintf(" AND id <> $%d", len(args)+1)
		args = append(args, excludeID)
	}
	query += " LIMIT 1"
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, args...); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check active enrollment: %w", err)
	}
	return true, nil
}

// Create persists a new enrollment record.
func (r *EnrollmentRepository) Create(ctx context.Context, enrollment *models.Enrollment) error {
	if enrollment.ID == "" {
		enrollment.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if enrollment.CreatedAt.IsZero() {
		enrollment.CreatedAt = now
	}
	enrollment.UpdatedAt = now
	const query = `INSERT INTO enrollments (id, client_id, course_id, professor_id, due_day, monthly_fee,
        professor_share, institution_share, active, created_at, updated_at)
        VALUES (:id, :client_id, :course_id, :professor_id, :due_day, :monthly_fee,
        :professor_share, :institution_share, :active, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, enrollment); err != nil {
		return fmt.Errorf("create enrollment: %w", err)
	}
	return nil
}

// Update persists fee, split, due-day, professor, and active changes.
func (r *EnrollmentRepository) Update(ctx context.Context, enrollment *models.Enrollment) error {
	enrollment.UpdatedAt = time.Now().UTC()
	const query = `UPDATE enrollments SET professor_id = :professor_id, due_day = :due_day,
        monthly_fee = :monthly_fee, professor_share = :professor_share, institution_share = :institution_share,
        active = :active, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, enrollment); err != nil {
		return fmt.Errorf("update enrollment: %w", err)
	}
	return nil
}

// Deactivate soft-deletes an enrollment.
func (r *EnrollmentRepository) Deactivate(ctx context.Context, id string) error {
	const query = `UPDATE enrollments SET active = FALSE, updated_at = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, time.Now().UTC()); err != nil {
		return fmt.Errorf("deactivate enrollment: %w", err)
	}
	return nil
}

// DeactivateByClient soft-deletes all enrollments of a client.
func (r *EnrollmentRepository) DeactivateByClient(ctx context.Context, clientID string) error {
	const query = `UPDATE enrollments SET active = FALSE, updated_at = $2 WHERE client_id = $1 AND active = TRUE`
	if _, err := r.db.ExecContext(ctx, query, clientID, time.Now().UTC()); err != nil {
		return fmt.Errorf("deactivate client enrollments: %w", err)
	}
	return nil
}

// Purge hard-deletes an enrollment; payments follow via FK cascade.
func (r *EnrollmentRepository) Purge(ctx context.Context, id string) error {
	const query = `DELETE FROM enrollments WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("purge enrollment: %w", err)
	}
	return nil
}

// ListActiveForBilling returns active enrollments of active clients lacking a
// payment row for the target month, with the client due-day fallback joined in.
func (r *EnrollmentRepository) ListActiveForBilling(ctx context.Context, monthRef string) ([]models.BillingCandidate, error) {
	query := fmt.Sprintf(`SELECT %s, cl.due_day AS client_due_day
        FROM enrollments e
        JOIN clients cl ON cl.id = e.client_id
        WHERE e.active = TRUE AND cl.active = TRUE
          AND NOT EXISTS (SELECT 1 FROM payments pay WHERE pay.enrollment_id = e.id AND pay.month_ref = $1)`, enrollmentColumns)
	var candidates []models.BillingCandidate
	if err := r.db.SelectContext(ctx, &candidates, query, monthRef); err != nil {
		return nil, fmt.Errorf("list billing candidates: %w", err)
	}
	return candidates, nil
}
