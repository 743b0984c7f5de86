package auth

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/crypto/bcrypt"

	cerrors "github.com/Aman-CERP/chatmydocs/internal/errors"
)

// usernamePattern matches knowledge-base owners; "-" is reserved as the
// namespace separator.
var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_.@]+$`)

// Registration is the sign-up form.
type Registration struct {
	Name            string
	Email           string
	Username        string
	Password        string
	ConfirmPassword string
}

// Register validates r and stores the user with a bcrypt hash.
func Register(ctx context.Context, store CredentialStore, r Registration) (*User, error) {
	r.Name = strings.TrimSpace(r.Name)
	r.Email = strings.TrimSpace(r.Email)
	r.Username = strings.TrimSpace(r.Username)

	if r.Name == "" || r.Email == "" || r.Username == "" || r.Password == "" || r.ConfirmPassword == "" {
		return nil, cerrors.ValidationError("please fill out all fields", nil)
	}
	if r.Password != r.ConfirmPassword {
		return nil, cerrors.ValidationError("passwords do not match", nil)
	}
	if !usernamePattern.MatchString(r.Username) || strings.HasPrefix(strings.ToLower(r.Username), "guest_") {
		return nil, cerrors.New(cerrors.ErrCodeInvalidOwner,
			fmt.Sprintf("username %q may only contain letters, digits, '_', '.' and '@'", r.Username), nil)
	}

	users, err := store.ListUsers(ctx)
	if err != nil {
		return nil, cerrors.InternalError("failed to load users", err)
	}
	if _, taken := users[r.Username]; taken {
		return nil, userExists(r.Username)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(r.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, cerrors.InternalError("failed to hash password", err)
	}
	if err := store.AddUser(ctx, r.Username, r.Name, r.Email, string(hash)); err != nil {
		return nil, err
	}
	return &User{Username: r.Username, Name: r.Name, Email: r.Email, PasswordHash: string(hash)}, nil
}

// Authenticate checks password against the stored hash.
func Authenticate(ctx context.Context, store CredentialStore, username, password string) (*User, error) {
	users, err := store.ListUsers(ctx)
	if err != nil {
		return nil, cerrors.InternalError("failed to load users", err)
	}
	u, ok := users[username]
	if !ok || bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return nil, cerrors.New(cerrors.ErrCodeAuthFailed, "username or password is incorrect", nil)
	}
	return &u, nil
}
