package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cerrors "github.com/Aman-CERP/chatmydocs/internal/errors"
)

func TestRegisterAndLogin(t *testing.T) {
	// Given: a registration form on stdin
	setupCLI(t)
	form := "Ada Lovelace\nada@example.com\nada\nsecret\nsecret\n"

	// When: registering
	out, err := run(t, form, "register")

	// Then
	require.NoError(t, err)
	assert.Contains(t, out, "Welcome, Ada Lovelace! Your owner name is 'ada'.")

	// And: the right password logs in
	out, err = run(t, "secret\n", "login", "--user", "ada")
	require.NoError(t, err)
	assert.Contains(t, out, "Welcome back, Ada Lovelace.")
	assert.Contains(t, out, "--owner ada")

	// And: a wrong password does not
	_, err = run(t, "wrong\n", "login", "--user", "ada")
	require.Error(t, err)
	assert.Equal(t, cerrors.ErrCodeAuthFailed, cerrors.GetCode(err))

	// And: the username cannot be taken twice
	_, err = run(t, "secret\nsecret\n", "register", "--name", "Ada", "--email", "a@b.c", "--username", "ada")
	require.Error(t, err)
	assert.Equal(t, cerrors.ErrCodeUserExists, cerrors.GetCode(err))
}

func TestRegister_Validation(t *testing.T) {
	setupCLI(t)

	tests := []struct {
		name     string
		stdin    string
		args     []string
		wantCode string
	}{
		{
			name:     "passwords differ",
			stdin:    "one\ntwo\n",
			args:     []string{"--name", "Ada", "--email", "a@b.c", "--username", "ada"},
			wantCode: cerrors.ErrCodeInvalidInput,
		},
		{
			name:     "invalid username",
			stdin:    "pw\npw\n",
			args:     []string{"--name", "Ada", "--email", "a@b.c", "--username", "ada-l"},
			wantCode: cerrors.ErrCodeInvalidOwner,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := run(t, tt.stdin, append([]string{"register"}, tt.args...)...)

			require.Error(t, err)
			assert.Equal(t, tt.wantCode, cerrors.GetCode(err))
		})
	}
}

func TestRegister_EmptyInput(t *testing.T) {
	setupCLI(t)

	_, err := run(t, "", "register")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read input")
}
