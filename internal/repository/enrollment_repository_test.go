package repository

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEnrollmentMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestEnrollmentRepositoryExistsActive(t *testing.T) {
	db, mock, cleanup := newEnrollmentMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectQuery(`SELECT 1 FROM enrollments WHERE client_id = \$1 AND course_id = \$2 AND active = TRUE`).
		WithArgs("cli-1", "crs-1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(1))

	exists, err := repo.ExistsActive(context.Background(), "cli-1", "crs-1", "")
	require.NoError(t, err)
	assert.True(t, exists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryExistsActiveNoRows(t *testing.T) {
	db, mock, cleanup := newEnrollmentMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectQuery(`SELECT 1 FROM enrollments`).
		WithArgs("cli-1", "crs-9").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}))

	exists, err := repo.ExistsActive(context.Background(), "cli-1", "crs-9", "")
	require.NoError(t, err)
	assert.False(t, exists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryListActiveForBilling(t *testing.T) {
	db, mock, cleanup := newEnrollmentMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{
		"id", "client_id", "course_id", "professor_id", "due_day", "monthly_fee",
		"professor_share", "institution_share", "active", "created_at", "updated_at",
		"client_due_day",
	}).AddRow("enr-1", "cli-1", "crs-1", "prof-1", 0, "150.00", "100.00", "50.00", true, now, now, 15)

	mock.ExpectQuery(`SELECT (.+) FROM enrollments e`).
		WithArgs("2026-08").
		WillReturnRows(rows)

	candidates, err := repo.ListActiveForBilling(context.Background(), "2026-08")
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, "enr-1", candidates[0].ID)
	assert.Equal(t, 15, candidates[0].ClientDueDay)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryDeactivateByClient(t *testing.T) {
	db, mock, cleanup := newEnrollmentMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectExec(`UPDATE enrollments SET active = FALSE`).
		WithArgs("cli-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 2))

	err := repo.DeactivateByClient(context.Background(), "cli-1")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
