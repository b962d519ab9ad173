package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/mauriciomholiveira/cobranca-api/internal/models"
)

type mockAuthRepo struct {
	professors map[string]models.Professor
	tokens     map[string]models.RefreshToken
	revoked    []string
}

func newMockAuthRepo() *mockAuthRepo {
	return &mockAuthRepo{
		professors: make(map[string]models.Professor),
		tokens:     make(map[string]models.RefreshToken),
	}
}

func (m *mockAuthRepo) FindByEmail(ctx context.Context, email string) (*models.Professor, error) {
	for _, p := range m.professors {
		if p.Email == email {
			return &p, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockAuthRepo) FindByID(ctx context.Context, id string) (*models.Professor, error) {
	if p, ok := m.professors[id]; ok {
		return &p, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockAuthRepo) UpdatePassword(ctx context.Context, id, passwordHash string, updatedAt time.Time) error {
	p := m.professors[id]
	p.PasswordHash = passwordHash
	m.professors[id] = p
	return nil
}

func (m *mockAuthRepo) RevokeProfessorRefreshTokens(ctx context.Context, professorID string) error {
	for id, token := range m.tokens {
		if token.ProfessorID == professorID {
			token.Revoked = true
			m.tokens[id] = token
		}
	}
	return nil
}

func (m *mockAuthRepo) CreateRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	m.tokens[token.Token] = *token
	return nil
}

func (m *mockAuthRepo) FindRefreshToken(ctx context.Context, token string) (*models.RefreshToken, error) {
	if t, ok := m.tokens[token]; ok {
		return &t, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockAuthRepo) RevokeRefreshToken(ctx context.Context, id string, revokedAt time.Time) error {
	m.revoked = append(m.revoked, id)
	for key, token := range m.tokens {
		if token.ID == id {
			token.Revoked = true
			token.RevokedAt = &revokedAt
			m.tokens[key] = token
		}
	}
	return nil
}

func authConfigForTest() AuthConfig {
	return AuthConfig{
		AccessTokenSecret:  "test-secret",
		AccessTokenExpiry:  15 * time.Minute,
		RefreshTokenExpiry: 24 * time.Hour,
		Issuer:             "cobranca-api",
	}
}

func seedProfessor(repo *mockAuthRepo, password string, active bool) models.Professor {
	hash, _ := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	professor := models.Professor{
		ID:           "prof-1",
		Name:         "Carlos Lima",
		Email:        "carlos@escola.com",
		PasswordHash: string(hash),
		Admin:        true,
		CanMessage:   true,
		Active:       active,
	}
	repo.professors[professor.ID] = professor
	return professor
}

func TestAuthLogin(t *testing.T) {
	repo := newMockAuthRepo()
	seedProfessor(repo, "senha123", true)
	svc := NewAuthService(repo, validator.New(), zap.NewNop(), authConfigForTest())

	resp, err := svc.Login(context.Background(), models.LoginRequest{Email: "carlos@escola.com", Password: "senha123"})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.AccessToken)
	assert.NotEmpty(t, resp.RefreshToken)
	assert.Equal(t, "prof-1", resp.Professor.ID)
	assert.True(t, resp.Professor.Admin)

	claims, err := svc.ValidateToken(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "prof-1", claims.ProfessorID)
	assert.True(t, claims.CanMessage)
}

func TestAuthLoginWrongPassword(t *testing.T) {
	repo := newMockAuthRepo()
	seedProfessor(repo, "senha123", true)
	svc := NewAuthService(repo, validator.New(), zap.NewNop(), authConfigForTest())

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "carlos@escola.com", Password: "errada"})
	require.Error(t, err)
}

func TestAuthLoginInactiveAccount(t *testing.T) {
	repo := newMockAuthRepo()
	seedProfessor(repo, "senha123", false)
	svc := NewAuthService(repo, validator.New(), zap.NewNop(), authConfigForTest())

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "carlos@escola.com", Password: "senha123"})
	require.Error(t, err)
}

func TestAuthRefreshRotatesToken(t *testing.T) {
	repo := newMockAuthRepo()
	seedProfessor(repo, "senha123", true)
	svc := NewAuthService(repo, validator.New(), zap.NewNop(), authConfigForTest())

	login, err := svc.Login(context.Background(), models.LoginRequest{Email: "carlos@escola.com", Password: "senha123"})
	require.NoError(t, err)

	refreshed, err := svc.RefreshToken(context.Background(), models.RefreshTokenRequest{RefreshToken: login.RefreshToken})
	require.NoError(t, err)
	assert.NotEqual(t, login.RefreshToken, refreshed.RefreshToken)
	assert.NotEmpty(t, repo.revoked)

	// Replaying the first token must fail after rotation.
	_, err = svc.RefreshToken(context.Background(), models.RefreshTokenRequest{RefreshToken: login.RefreshToken})
	require.Error(t, err)
}

func TestAuthChangePasswordRevokesSessions(t *testing.T) {
	repo := newMockAuthRepo()
	seedProfessor(repo, "senha123", true)
	svc := NewAuthService(repo, validator.New(), zap.NewNop(), authConfigForTest())

	login, err := svc.Login(context.Background(), models.LoginRequest{Email: "carlos@escola.com", Password: "senha123"})
	require.NoError(t, err)

	err = svc.ChangePassword(context.Background(), "prof-1", models.ChangePasswordRequest{OldPassword: "senha123", NewPassword: "novaSenha1"})
	require.NoError(t, err)
	assert.True(t, repo.tokens[login.RefreshToken].Revoked)

	_, err = svc.Login(context.Background(), models.LoginRequest{Email: "carlos@escola.com", Password: "novaSenha1"})
	require.NoError(t, err)
}

func TestAuthValidateTokenRejectsTampered(t *testing.T) {
	repo := newMockAuthRepo()
	seedProfessor(repo, "senha123", true)
	svc := NewAuthService(repo, validator.New(), zap.NewNop(), authConfigForTest())

	login, err := svc.Login(context.Background(), models.LoginRequest{Email: "carlos@escola.com", Password: "senha123"})
	require.NoError(t, err)

	other := NewAuthService(repo, validator.New(), zap.NewNop(), AuthConfig{
		AccessTokenSecret: "different-secret",
		AccessTokenExpiry: 15 * time.Minute,
	})
	_, err = other.ValidateToken(login.AccessToken)
	require.Error(t, err)
}
