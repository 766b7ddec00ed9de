package service

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alcyxob/wellness-program/internal/domain"
)

func TestRegisterAndLogin(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	user, err := env.auth.Register(ctx, RegisterInput{Name: "Dr Who", Email: "Who@Example.com", Password: "correct-horse", Role: domain.RoleDoctor})
	require.NoError(t, err)
	assert.Empty(t, user.PasswordHash)

	_, err = env.auth.Register(ctx, RegisterInput{Name: "Again", Email: "who@example.com", Password: "correct-horse", Role: domain.RolePatient})
	assert.ErrorIs(t, err, ErrUserAlreadyExists)

	_, err = env.auth.Register(ctx, RegisterInput{Name: "Short", Email: "s@example.com", Password: "123", Role: domain.RolePatient})
	assert.ErrorIs(t, err, ErrValidation)

	token, logged, err := env.auth.Login(ctx, "who@example.com", "correct-horse")
	require.NoError(t, err)
	assert.Equal(t, user.ID, logged.ID)

	parsed, err := jwt.Parse(token, func(*jwt.Token) (interface{}, error) { return []byte("test-secret"), nil })
	require.NoError(t, err)
	claims := parsed.Claims.(jwt.MapClaims)
	assert.Equal(t, user.ID.Hex(), claims["uid"])
	assert.Equal(t, string(domain.RoleDoctor), claims["role"])
	exp, ok := claims["exp"].(float64)
	require.True(t, ok)
	assert.InDelta(t, float64(time.Now().Add(time.Hour).Unix()), exp, 60)

	_, _, err = env.auth.Login(ctx, "who@example.com", "wrong-password")
	assert.ErrorIs(t, err, ErrAuthenticationFailed)
}

func TestAddPatientByEmail(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	doctor := env.newUser(t, domain.RoleDoctor, "d1@example.com")
	other := env.newUser(t, domain.RoleDoctor, "d2@example.com")
	patient := env.newUser(t, domain.RolePatient, "p1@example.com")

	_, err := env.doctors.AddPatientByEmail(ctx, doctor.ID, patient.Email)
	require.NoError(t, err)

	patients, err := env.doctors.GetManagedPatients(ctx, doctor.ID)
	require.NoError(t, err)
	require.Len(t, patients, 1)
	assert.Equal(t, patient.ID, patients[0].ID)

	_, err = env.doctors.AddPatientByEmail(ctx, other.ID, patient.Email)
	assert.ErrorIs(t, err, ErrPatientAlreadyAssigned)

	_, err = env.doctors.AddPatientByEmail(ctx, doctor.ID, other.Email)
	assert.ErrorIs(t, err, ErrUserNotPatient)

	_, err = env.doctors.AddPatientByEmail(ctx, doctor.ID, "nobody@example.com")
	assert.ErrorIs(t, err, ErrPatientNotFound)
}
