package account

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/starford/catread/internal/apperr"
	"github.com/starford/catread/internal/testutil"
)

func TestRegisterAndAuthenticate(t *testing.T) {
	db := testutil.TestDB(t)
	svc := NewService(db, bcrypt.MinCost)
	ctx := context.Background()

	u, err := svc.Register(ctx, "ada", "correct horse")
	require.NoError(t, err)
	assert.NotEqual(t, "correct horse", u.PasswordHash)

	got, err := svc.Authenticate(ctx, "ada", "correct horse")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)

	_, err = svc.Authenticate(ctx, "ada", "wrong password")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = svc.Authenticate(ctx, "nobody", "correct horse")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestRegister_Validation(t *testing.T) {
	svc := NewService(testutil.TestDB(t), bcrypt.MinCost)
	ctx := context.Background()

	_, err := svc.Register(ctx, "", "long enough")
	assert.Error(t, err)
	_, err = svc.Register(ctx, "ada", "short")
	assert.Error(t, err)

	_, err = svc.Register(ctx, "ada", "long enough")
	require.NoError(t, err)
	_, err = svc.Register(ctx, "ada", "long enough")
	assert.ErrorIs(t, err, apperr.ErrAlreadyExists)
}
