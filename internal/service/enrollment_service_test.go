package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mauriciomholiveira/cobranca-api/internal/models"
	appErrors "github.com/mauriciomholiveira/cobranca-api/pkg/errors"
)

type mockEnrollmentRepo struct {
	enrollments map[string]models.Enrollment
	activePairs map[string]string
	deactivated []string
	purged      []string
}

func pairKey(clientID, courseID string) string { return clientID + "|" + courseID }

func (m *mockEnrollmentRepo) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error) {
	details := make([]models.EnrollmentDetail, 0, len(m.enrollments))
	for _, e := range m.enrollments {
		details = append(details, models.EnrollmentDetail{Enrollment: e})
	}
	return details, len(details), nil
}

func (m *mockEnrollmentRepo) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	if e, ok := m.enrollments[id]; ok {
		return &e, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockEnrollmentRepo) FindDetailByID(ctx context.Context, id string) (*models.EnrollmentDetail, error) {
	if e, ok := m.enrollments[id]; ok {
		return &models.EnrollmentDetail{Enrollment: e}, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockEnrollmentRepo) ExistsActive(ctx context.Context, clientID, courseID, excludeID string) (bool, error) {
	if id, ok := m.activePairs[pairKey(clientID, courseID)]; ok {
		if excludeID == "" || id != excludeID {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockEnrollmentRepo) Create(ctx context.Context, enrollment *models.Enrollment) error {
	if m.enrollments == nil {
		m.enrollments = make(map[string]models.Enrollment)
	}
	if m.activePairs == nil {
		m.activePairs = make(map[string]string)
	}
	if enrollment.ID == "" {
		enrollment.ID = "generated"
	}
	m.enrollments[enrollment.ID] = *enrollment
	m.activePairs[pairKey(enrollment.ClientID, enrollment.CourseID)] = enrollment.ID
	return nil
}

func (m *mockEnrollmentRepo) Update(ctx context.Context, enrollment *models.Enrollment) error {
	m.enrollments[enrollment.ID] = *enrollment
	return nil
}

func (m *mockEnrollmentRepo) Deactivate(ctx context.Context, id string) error {
	m.deactivated = append(m.deactivated, id)
	if e, ok := m.enrollments[id]; ok {
		e.Active = false
		m.enrollments[id] = e
	}
	return nil
}

func (m *mockEnrollmentRepo) Purge(ctx context.Context, id string) error {
	m.purged = append(m.purged, id)
	delete(m.enrollments, id)
	return nil
}

type mockRefLookup struct {
	clients    map[string]models.Client
	courses    map[string]models.Course
	professors map[string]models.Professor
}

func (m *mockRefLookup) FindByID(ctx context.Context, id string) (*models.Client, error) {
	if c, ok := m.clients[id]; ok {
		return &c, nil
	}
	return nil, sql.ErrNoRows
}

type mockCourseLookup struct{ courses map[string]models.Course }

func (m *mockCourseLookup) FindByID(ctx context.Context, id string) (*models.Course, error) {
	if c, ok := m.courses[id]; ok {
		return &c, nil
	}
	return nil, sql.ErrNoRows
}

type mockProfessorLookup struct{ professors map[string]models.Professor }

func (m *mockProfessorLookup) FindByID(ctx context.Context, id string) (*models.Professor, error) {
	if p, ok := m.professors[id]; ok {
		return &p, nil
	}
	return nil, sql.ErrNoRows
}

type mockEnrollmentPaymentRepo struct {
	deletedFor []string
	syncedFor  []string
}

func (m *mockEnrollmentPaymentRepo) DeleteUnpaidByEnrollment(ctx context.Context, enrollmentID string) (int64, error) {
	m.deletedFor = append(m.deletedFor, enrollmentID)
	return 1, nil
}

func (m *mockEnrollmentPaymentRepo) SyncUnpaidForEnrollment(ctx context.Context, enrollmentID string) (int64, error) {
	m.syncedFor = append(m.syncedFor, enrollmentID)
	return 1, nil
}

func newEnrollmentFixture() (*mockEnrollmentRepo, *mockRefLookup, *mockCourseLookup, *mockProfessorLookup, *mockEnrollmentPaymentRepo, *EnrollmentService) {
	repo := &mockEnrollmentRepo{activePairs: make(map[string]string), enrollments: make(map[string]models.Enrollment)}
	clients := &mockRefLookup{clients: map[string]models.Client{"cli-1": {ID: "cli-1", Name: "Ana", Active: true}}}
	courses := &mockCourseLookup{courses: map[string]models.Course{"crs-1": {ID: "crs-1", Name: "Violino", Active: true}}}
	professors := &mockProfessorLookup{professors: map[string]models.Professor{"prof-1": {ID: "prof-1", Name: "Carlos", Active: true}}}
	payments := &mockEnrollmentPaymentRepo{}
	svc := NewEnrollmentService(repo, clients, courses, professors, payments, nil, validator.New(), zap.NewNop())
	return repo, clients, courses, professors, payments, svc
}

func TestEnrollmentCreate(t *testing.T) {
	repo, _, _, _, _, svc := newEnrollmentFixture()

	enrollment, err := svc.Create(context.Background(), CreateEnrollmentRequest{
		ClientID:         "cli-1",
		CourseID:         "crs-1",
		ProfessorID:      "prof-1",
		DueDay:           15,
		MonthlyFee:       dec("150.00"),
		ProfessorShare:   dec("100.00"),
		InstitutionShare: dec("50.00"),
	})
	require.NoError(t, err)
	assert.NotEmpty(t, enrollment.ID)
	assert.True(t, enrollment.Active)
	assert.Len(t, repo.enrollments, 1)
}

func TestEnrollmentCreateRejectsBadSplit(t *testing.T) {
	_, _, _, _, _, svc := newEnrollmentFixture()

	_, err := svc.Create(context.Background(), CreateEnrollmentRequest{
		ClientID:         "cli-1",
		CourseID:         "crs-1",
		ProfessorID:      "prof-1",
		MonthlyFee:       dec("150.00"),
		ProfessorShare:   dec("100.00"),
		InstitutionShare: dec("60.00"),
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidSplit.Code, appErrors.FromError(err).Code)
}

func TestEnrollmentCreateDuplicateActiveRejected(t *testing.T) {
	repo, _, _, _, _, svc := newEnrollmentFixture()
	repo.activePairs[pairKey("cli-1", "crs-1")] = "existing"

	_, err := svc.Create(context.Background(), CreateEnrollmentRequest{
		ClientID:         "cli-1",
		CourseID:         "crs-1",
		ProfessorID:      "prof-1",
		MonthlyFee:       dec("150.00"),
		ProfessorShare:   dec("100.00"),
		InstitutionShare: dec("50.00"),
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestEnrollmentCreateExemptAllowed(t *testing.T) {
	_, _, _, _, _, svc := newEnrollmentFixture()

	enrollment, err := svc.Create(context.Background(), CreateEnrollmentRequest{
		ClientID:    "cli-1",
		CourseID:    "crs-1",
		ProfessorID: "prof-1",
	})
	require.NoError(t, err)
	assert.True(t, enrollment.MonthlyFee.IsZero())
}

func TestEnrollmentUpdateFeeChangePropagates(t *testing.T) {
	repo, _, _, _, payments, svc := newEnrollmentFixture()
	repo.enrollments["enr-1"] = models.Enrollment{
		ID: "enr-1", ClientID: "cli-1", CourseID: "crs-1", ProfessorID: "prof-1",
		MonthlyFee: dec("150.00"), ProfessorShare: dec("100.00"), InstitutionShare: dec("50.00"), Active: true,
	}

	_, err := svc.Update(context.Background(), "enr-1", UpdateEnrollmentRequest{
		ProfessorID:      "prof-1",
		MonthlyFee:       dec("180.00"),
		ProfessorShare:   dec("120.00"),
		InstitutionShare: dec("60.00"),
		Active:           true,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"enr-1"}, payments.syncedFor)
	assert.Empty(t, payments.deletedFor)
}

func TestEnrollmentUpdateDeactivationRemovesOpenPayments(t *testing.T) {
	repo, _, _, _, payments, svc := newEnrollmentFixture()
	repo.enrollments["enr-1"] = models.Enrollment{
		ID: "enr-1", ClientID: "cli-1", CourseID: "crs-1", ProfessorID: "prof-1",
		MonthlyFee: dec("150.00"), ProfessorShare: dec("100.00"), InstitutionShare: dec("50.00"), Active: true,
	}

	_, err := svc.Update(context.Background(), "enr-1", UpdateEnrollmentRequest{
		ProfessorID:      "prof-1",
		MonthlyFee:       dec("150.00"),
		ProfessorShare:   dec("100.00"),
		InstitutionShare: dec("50.00"),
		Active:           false,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"enr-1"}, payments.deletedFor)
	assert.Empty(t, payments.syncedFor)
}

func TestEnrollmentDeactivateCascades(t *testing.T) {
	repo, _, _, _, payments, svc := newEnrollmentFixture()
	repo.enrollments["enr-1"] = models.Enrollment{ID: "enr-1", ClientID: "cli-1", CourseID: "crs-1", ProfessorID: "prof-1", Active: true}

	err := svc.Deactivate(context.Background(), "enr-1")
	require.NoError(t, err)
	assert.Contains(t, repo.deactivated, "enr-1")
	assert.Equal(t, []string{"enr-1"}, payments.deletedFor)
}

func TestEnrollmentCreateInactiveClientRejected(t *testing.T) {
	_, clients, _, _, _, svc := newEnrollmentFixture()
	clients.clients["cli-1"] = models.Client{ID: "cli-1", Name: "Ana", Active: false}

	_, err := svc.Create(context.Background(), CreateEnrollmentRequest{
		ClientID:    "cli-1",
		CourseID:    "crs-1",
		ProfessorID: "prof-1",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErrors.FromError(err).Code)
}
