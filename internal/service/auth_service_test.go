package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/sentra-platform/incident-api/internal/models"
	appErrors "github.com/sentra-platform/incident-api/pkg/errors"
)

type mockAuthRepo struct {
	userByEmail    *models.User
	userByID       *models.User
	findByEmailErr error
	findByIDErr    error
	createErr      error
	created        *models.User
}

func (m *mockAuthRepo) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	if m.findByEmailErr != nil {
		return nil, m.findByEmailErr
	}
	return m.userByEmail, nil
}

func (m *mockAuthRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	if m.findByIDErr != nil {
		return nil, m.findByIDErr
	}
	return m.userByID, nil
}

func (m *mockAuthRepo) Create(ctx context.Context, user *models.User) error {
	if m.createErr != nil {
		return m.createErr
	}
	if user.ID == "" {
		user.ID = "u1"
	}
	m.created = user
	return nil
}

func testAuthConfig() AuthConfig {
	return AuthConfig{TokenSecret: "test-secret", TokenExpiry: time.Hour, Issuer: "incident-api-test"}
}

func TestRegisterDefaultsToStudent(t *testing.T) {
	repo := &mockAuthRepo{}
	svc := NewAuthService(repo, nil, nil, testAuthConfig())

	res, err := svc.Register(context.Background(), models.RegisterRequest{
		Name:     "Sam",
		Email:    "sam@example.com",
		Password: "secret1",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, res.Token)
	assert.Equal(t, models.RoleStudent, res.User.Role)
	require.NotNil(t, repo.created)
	assert.NotEqual(t, "secret1", repo.created.PasswordHash)
}

func TestRegisterRejectsShortPassword(t *testing.T) {
	svc := NewAuthService(&mockAuthRepo{}, nil, nil, testAuthConfig())

	_, err := svc.Register(context.Background(), models.RegisterRequest{
		Name:     "Sam",
		Email:    "sam@example.com",
		Password: "abc",
	})
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
}

func TestLoginRoundTrip(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("secret1"), bcrypt.MinCost)
	require.NoError(t, err)
	repo := &mockAuthRepo{userByEmail: &models.User{
		ID: "u1", Name: "Sam", Email: "sam@example.com", PasswordHash: string(hash), Role: models.RoleStaff,
	}}
	svc := NewAuthService(repo, nil, nil, testAuthConfig())

	res, err := svc.Login(context.Background(), models.LoginRequest{Email: "sam@example.com", Password: "secret1"})
	require.NoError(t, err)

	claims, err := svc.ValidateToken(res.Token)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID)
	assert.Equal(t, models.RoleStaff, claims.Role)
}

func TestLoginWrongPassword(t *testing.T) {
	hash, _ := bcrypt.GenerateFromPassword([]byte("secret1"), bcrypt.MinCost)
	repo := &mockAuthRepo{userByEmail: &models.User{ID: "u1", Email: "sam@example.com", PasswordHash: string(hash), Role: models.RoleStudent}}
	svc := NewAuthService(repo, nil, nil, testAuthConfig())

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "sam@example.com", Password: "nope"})
	assert.True(t, appErrors.Is(err, appErrors.ErrInvalidCredentials))
}

func TestLoginUnknownEmail(t *testing.T) {
	repo := &mockAuthRepo{findByEmailErr: sql.ErrNoRows}
	svc := NewAuthService(repo, nil, nil, testAuthConfig())

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "ghost@example.com", Password: "secret1"})
	assert.True(t, appErrors.Is(err, appErrors.ErrInvalidCredentials))
}

func TestValidateTokenRejectsTampering(t *testing.T) {
	svc := NewAuthService(&mockAuthRepo{}, nil, nil, testAuthConfig())

	res, err := svc.Register(context.Background(), models.RegisterRequest{
		Name: "Sam", Email: "sam@example.com", Password: "secret1",
	})
	require.NoError(t, err)

	other := NewAuthService(&mockAuthRepo{}, nil, nil, AuthConfig{TokenSecret: "other-secret", TokenExpiry: time.Hour})
	_, err = other.ValidateToken(res.Token)
	assert.True(t, appErrors.Is(err, appErrors.ErrUnauthorized))

	_, err = svc.ValidateToken(res.Token + "x")
	assert.True(t, appErrors.Is(err, appErrors.ErrUnauthorized))
}

func TestValidateTokenExpired(t *testing.T) {
	cfg := testAuthConfig()
	cfg.TokenExpiry = -time.Minute
	svc := NewAuthService(&mockAuthRepo{}, nil, nil, cfg)

	res, err := svc.Register(context.Background(), models.RegisterRequest{
		Name: "Sam", Email: "sam@example.com", Password: "secret1",
	})
	require.NoError(t, err)

	_, err = svc.ValidateToken(res.Token)
	assert.True(t, appErrors.Is(err, appErrors.ErrUnauthorized))
}
