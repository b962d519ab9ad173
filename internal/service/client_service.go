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

type clientRepository interface {
	List(ctx context.Context, filter models.ClientFilter) ([]models.Client, int, error)
	FindByID(ctx context.Context, id string) (*models.Client, error)
	Create(ctx context.Context, client *models.Client) error
	Update(ctx context.Context, client *models.Client) error
	Deactivate(ctx context.Context, id string) error
	Purge(ctx context.Context, id string) error
}

type clientEnrollmentRepository interface {
	DeactivateByClient(ctx context.Context, clientID string) error
}

type clientPaymentRepository interface {
	DeleteUnpaidByClient(ctx context.Context, clientID string) (int64, error)
}

// CreateClientRequest holds payload for registering clients.
type CreateClientRequest struct {
	Name       string          `json:"name" validate:"required"`
	WhatsApp   string          `json:"whatsapp"`
	MonthlyFee decimal.Decimal `json:"monthly_fee"`
	DueDay     int             `json:"due_day" validate:"min=0,max=31"`
	Notes      string          `json:"notes"`
}

// UpdateClientRequest holds payload for updating clients.
type UpdateClientRequest struct {
	Name       string          `json:"name" validate:"required"`
	WhatsApp   string          `json:"whatsapp"`
	MonthlyFee decimal.Decimal `json:"monthly_fee"`
	DueDay     int             `json:"due_day" validate:"min=0,max=31"`
	Notes      string          `json:"notes"`
	Active     bool            `json:"active"`
}

// ClientService handles client use-cases, including the deactivation and
// purge cascades over enrollments and open payments.
type ClientService struct {
	repo        clientRepository
	enrollments clientEnrollmentRepository
	payments    clientPaymentRepository
	cache       *CacheService
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewClientService constructs the client service.
func NewClientService(repo clientRepository, enrollments clientEnrollmentRepository, payments clientPaymentRepository, cache *CacheService, validate *validator.Validate, logger *zap.Logger) *ClientService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ClientService{repo: repo, enrollments: enrollments, payments: payments, cache: cache, validator: validate, logger: logger}
}

// List returns clients and pagination metadata.
func (s *ClientService) List(ctx context.Context, filter models.ClientFilter) ([]models.Client, *models.Pagination, error) {
	clients, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list clients")
	}
	return clients, paginationFor(filter.Page, filter.PageSize, total), nil
}

// Get returns a client by ID.
func (s *ClientService) Get(ctx context.Context, id string) (*models.Client, error) {
	client, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "client not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load client")
	}
	return client, nil
}

// Create registers a new client.
func (s *ClientService) Create(ctx context.Context, req CreateClientRequest) (*models.Client, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid client payload")
	}
	if req.MonthlyFee.IsNegative() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "monthly fee cannot be negative")
	}
	client := &models.Client{
		Name:       req.Name,
		WhatsApp:   req.WhatsApp,
		MonthlyFee: req.MonthlyFee,
		DueDay:     req.DueDay,
		Notes:      req.Notes,
		Active:     true,
	}
	if err := s.repo.Create(ctx, client); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create client")
	}
	return client, nil
}

// Update modifies an existing client record.
func (s *ClientService) Update(ctx context.Context, id string, req UpdateClientRequest) (*models.Client, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid client payload")
	}
	if req.MonthlyFee.IsNegative() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "monthly fee cannot be negative")
	}
	client, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "client not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load client")
	}
	wasActive := client.Active
	client.Name = req.Name
	client.WhatsApp = req.WhatsApp
	client.MonthlyFee = req.MonthlyFee
	client.DueDay = req.DueDay
	client.Notes = req.Notes
	client.Active = req.Active
	if err := s.repo.Update(ctx, client); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update client")
	}
	if wasActive && !client.Active {
		s.cascadeDeactivation(ctx, id)
	}
	return client, nil
}

// Deactivate marks a client inactive, deactivates their enrollments and
// removes open payments. Paid history is preserved.
func (s *ClientService) Deactivate(ctx context.Context, id string) error {
	if _, err := s.repo.FindByID(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "client not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load client")
	}
	if err := s.repo.Deactivate(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to deactivate client")
	}
	s.cascadeDeactivation(ctx, id)
	return nil
}

// Purge permanently deletes a client and everything under them, paid
// payments included. Foreign keys cascade the row deletions.
func (s *ClientService) Purge(ctx context.Context, id string) error {
	if _, err := s.repo.FindByID(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "client not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load client")
	}
	if err := s.repo.Purge(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to purge client")
	}
	s.invalidateBillingCache(ctx)
	return nil
}

func (s *ClientService) cascadeDeactivation(ctx context.Context, clientID string) {
	if err := s.enrollments.DeactivateByClient(ctx, clientID); err != nil {
		s.logger.Warn("failed to deactivate client enrollments", zap.String("client_id", clientID), zap.Error(err))
	}
	if n, err := s.payments.DeleteUnpaidByClient(ctx, clientID); err != nil {
		s.logger.Warn("failed to delete client open payments", zap.String("client_id", clientID), zap.Error(err))
	} else if n > 0 {
		s.logger.Info("removed open payments for deactivated client", zap.String("client_id", clientID), zap.Int64("count", n))
	}
	s.invalidateBillingCache(ctx)
}

func (s *ClientService) invalidateBillingCache(ctx context.Context) {
	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, "billing:*"); err != nil {
			s.logger.Warn("failed to invalidate billing cache", zap.Error(err))
		}
	}
}
