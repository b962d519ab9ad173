package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mauriciomholiveira/cobranca-api/internal/models"
	appErrors "github.com/mauriciomholiveira/cobranca-api/pkg/errors"
)

type enrollmentRepository interface {
	List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.Enrollment, error)
	FindDetailByID(ctx context.Context, id string) (*models.EnrollmentDetail, error)
	ExistsActive(ctx context.Context, clientID, courseID, excludeID string) (bool, error)
	Create(ctx context.Context, enrollment *models.Enrollment) error
	Update(ctx context.Context, enrollment *models.Enrollment) error
	Deactivate(ctx context.Context, id string) error
	Purge(ctx context.Context, id string) error
}

type enrollmentClientRepository interface {
	FindByID(ctx context.Context, id string) (*models.Client, error)
}

type enrollmentCourseRepository interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
}

type enrollmentProfessorRepository interface {
	FindByID(ctx context.Context, id string) (*models.Professor, error)
}

type enrollmentPaymentRepository interface {
	DeleteUnpaidByEnrollment(ctx context.Context, enrollmentID string) (int64, error)
	SyncUnpaidForEnrollment(ctx context.Context, enrollmentID string) (int64, error)
}

// CreateEnrollmentRequest holds payload for enrolling a client in a course.
type CreateEnrollmentRequest struct {
	ClientID         string          `json:"client_id" validate:"required"`
	CourseID         string          `json:"course_id" validate:"required"`
	ProfessorID      string          `json:"professor_id" validate:"required"`
	DueDay           int             `json:"due_day" validate:"min=0,max=31"`
	MonthlyFee       decimal.Decimal `json:"monthly_fee"`
	ProfessorShare   decimal.Decimal `json:"professor_share"`
	InstitutionShare decimal.Decimal `json:"institution_share"`
}

// UpdateEnrollmentRequest holds payload for updating an enrollment.
type UpdateEnrollmentRequest struct {
	ProfessorID      string          `json:"professor_id" validate:"required"`
	DueDay           int             `json:"due_day" validate:"min=0,max=31"`
	MonthlyFee       decimal.Decimal `json:"monthly_fee"`
	ProfessorShare   decimal.Decimal `json:"professor_share"`
	InstitutionShare decimal.Decimal `json:"institution_share"`
	Active           bool            `json:"active"`
}

// EnrollmentService handles enrollment use-cases: fee and split validation,
// the one-active-enrollment-per-client-and-course rule, and propagation of
// fee changes to open payments.
type EnrollmentService struct {
	repo       enrollmentRepository
	clients    enrollmentClientRepository
	courses    enrollmentCourseRepository
	professors enrollmentProfessorRepository
	payments   enrollmentPaymentRepository
	cache      *CacheService
	validator  *validator.Validate
	logger     *zap.Logger
}

// NewEnrollmentService constructs the enrollment service.
func NewEnrollmentService(repo enrollmentRepository, clients enrollmentClientRepository, courses enrollmentCourseRepository, professors enrollmentProfessorRepository, payments enrollmentPaymentRepository, cache *CacheService, validate *validator.Validate, logger *zap.Logger) *EnrollmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EnrollmentService{
		repo:       repo,
		clients:    clients,
		courses:    courses,
		professors: professors,
		payments:   payments,
		cache:      cache,
		validator:  validate,
		logger:     logger,
	}
}

// List returns enrollments and pagination metadata.
func (s *EnrollmentService) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, *models.Pagination, error) {
	enrollments, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments")
	}
	return enrollments, paginationFor(filter.Page, filter.PageSize, total), nil
}

// Get returns an enrollment with client/course/professor names.
func (s *EnrollmentService) Get(ctx context.Context, id string) (*models.EnrollmentDetail, error) {
	enrollment, err := s.repo.FindDetailByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	return enrollment, nil
}

// Create enrolls a client in a course. A zero fee is a valid exemption; the
// split must always sum to the fee.
func (s *EnrollmentService) Create(ctx context.Context, req CreateEnrollmentRequest) (*models.Enrollment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid enrollment payload")
	}
	if req.MonthlyFee.IsNegative() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "monthly fee cannot be negative")
	}
	if err := ValidateSplit(req.MonthlyFee, req.ProfessorShare, req.InstitutionShare); err != nil {
		return nil, err
	}

	client, err := s.clients.FindByID(ctx, req.ClientID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "client not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load client")
	}
	if !client.Active {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "client is inactive")
	}

	course, err := s.courses.FindByID(ctx, req.CourseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	if !course.Active {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "course is inactive")
	}

	professor, err := s.professors.FindByID(ctx, req.ProfessorID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "professor not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load professor")
	}
	if !professor.Active {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "professor is inactive")
	}

	exists, err := s.repo.ExistsActive(ctx, req.ClientID, req.CourseID, "")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate enrollment")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "client already has an active enrollment in this course")
	}

	enrollment := &models.Enrollment{
		ClientID:         req.ClientID,
		CourseID:         req.CourseID,
		ProfessorID:      req.ProfessorID,
		DueDay:           req.DueDay,
		MonthlyFee:       req.MonthlyFee,
		ProfessorShare:   req.ProfessorShare,
		InstitutionShare: req.InstitutionShare,
		Active:           true,
	}
	if err := s.repo.Create(ctx, enrollment); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create enrollment")
	}
	s.invalidateBillingCache(ctx)
	return enrollment, nil
}

// Update modifies an enrollment. Fee and split changes propagate to the
// enrollment's open payments; paid ones are immutable history.
func (s *EnrollmentService) Update(ctx context.Context, id string, req UpdateEnrollmentRequest) (*models.Enrollment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid enrollment payload")
	}
	if req.MonthlyFee.IsNegative() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "monthly fee cannot be negative")
	}
	if err := ValidateSplit(req.MonthlyFee, req.ProfessorShare, req.InstitutionShare); err != nil {
		return nil, err
	}

	enrollment, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}

	professor, err := s.professors.FindByID(ctx, req.ProfessorID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "professor not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load professor")
	}
	if !professor.Active {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "professor is inactive")
	}

	if req.Active && !enrollment.Active {
		exists, err := s.repo.ExistsActive(ctx, enrollment.ClientID, enrollment.CourseID, id)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate enrollment")
		}
		if exists {
			return nil, appErrors.Clone(appErrors.ErrConflict, "client already has an active enrollment in this course")
		}
	}

	feeChanged := !enrollment.MonthlyFee.Equal(req.MonthlyFee) ||
		!enrollment.ProfessorShare.Equal(req.ProfessorShare) ||
		!enrollment.InstitutionShare.Equal(req.InstitutionShare)
	wasActive := enrollment.Active

	enrollment.ProfessorID = req.ProfessorID
	enrollment.DueDay = req.DueDay
	enrollment.MonthlyFee = req.MonthlyFee
	enrollment.ProfessorShare = req.ProfessorShare
	enrollment.InstitutionShare = req.InstitutionShare
	enrollment.Active = req.Active
	if err := s.repo.Update(ctx, enrollment); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update enrollment")
	}

	if wasActive && !enrollment.Active {
		s.removeOpenPayments(ctx, id)
	} else if feeChanged {
		if n, err := s.payments.SyncUnpaidForEnrollment(ctx, id); err != nil {
			s.logger.Warn("failed to propagate fee change to open payments", zap.String("enrollment_id", id), zap.Error(err))
		} else if n > 0 {
			s.logger.Info("propagated fee change to open payments", zap.String("enrollment_id", id), zap.Int64("count", n))
		}
	}
	s.invalidateBillingCache(ctx)
	return enrollment, nil
}

// Deactivate ends an enrollment and removes its open payments.
func (s *EnrollmentService) Deactivate(ctx context.Context, id string) error {
	if _, err := s.repo.FindByID(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	if err := s.repo.Deactivate(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to deactivate enrollment")
	}
	s.removeOpenPayments(ctx, id)
	s.invalidateBillingCache(ctx)
	return nil
}

// Purge permanently deletes an enrollment and all its payments.
func (s *EnrollmentService) Purge(ctx context.Context, id string) error {
	if _, err := s.repo.FindByID(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	if err := s.repo.Purge(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to purge enrollment")
	}
	s.invalidateBillingCache(ctx)
	return nil
}

func (s *EnrollmentService) removeOpenPayments(ctx context.Context, enrollmentID string) {
	if n, err := s.payments.DeleteUnpaidByEnrollment(ctx, enrollmentID); err != nil {
		s.logger.Warn("failed to delete enrollment open payments", zap.String("enrollment_id", enrollmentID), zap.Error(err))
	} else if n > 0 {
		s.logger.Info("removed open payments for ended enrollment", zap.String("enrollment_id", enrollmentID), zap.Int64("count", n))
	}
}

func (s *EnrollmentService) invalidateBillingCache(ctx context.Context) {
	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, "billing:*"); err != nil {
			s.logger.Warn("failed to invalidate billing cache", zap.Error(err))
		}
	}
}
