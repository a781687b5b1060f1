package engine

import (
	"context"
	"errors"
	"strings"

	"taskdesk/internal/auth"
	"taskdesk/internal/domain"
	"taskdesk/internal/events"
	"taskdesk/internal/repo"
)

// RegisterOptions are parameters for self-registration.
type RegisterOptions struct {
	Email     string
	FirstName string
	LastName  string
	Password  string
}

// AuthResult is a signed token plus the authenticated user.
type AuthResult struct {
	Token string
	User  domain.User
}

// Register creates a new account. Self-registered accounts are always
// members; roles are raised by an admin afterwards.
func (e Engine) Register(ctx context.Context, opts RegisterOptions) (AuthResult, error) {
	email := strings.ToLower(strings.TrimSpace(opts.Email))
	if email == "" || !strings.Contains(email, "@") {
		return AuthResult{}, errors.New("invalid email")
	}
	if opts.Password == "" {
		return AuthResult{}, errors.New("password is required")
	}
	hash, err := auth.HashPassword(opts.Password)
	if err != nil {
		return AuthResult{}, err
	}
	now := e.nowRFC3339()
	u := domain.User{
		Email:        email,
		FirstName:    opts.FirstName,
		LastName:     opts.LastName,
		Role:         auth.RoleMember,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return AuthResult{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.InsertUser(ctx, tx, u); err != nil {
		return AuthResult{}, err
	}
	if err := e.Events.Append(ctx, tx, "auth.registered", "user", u.Email, u.Email, events.EventPayload{}); err != nil {
		return AuthResult{}, err
	}
	if err := tx.Commit(); err != nil {
		return AuthResult{}, err
	}

	token, err := e.Codec.Issue(auth.Identity{Email: u.Email, Role: u.Role})
	if err != nil {
		return AuthResult{}, err
	}
	return AuthResult{Token: token, User: u}, nil
}

// Login verifies the credentials and issues a token. A wrong email and
// a wrong password read the same so accounts cannot be enumerated.
func (e Engine) Login(ctx context.Context, email, password string) (AuthResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	u, err := e.Repo.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return AuthResult{}, errors.New("invalid email or password")
		}
		return AuthResult{}, err
	}
	if !auth.CheckPassword(u.PasswordHash, password) {
		return AuthResult{}, errors.New("invalid email or password")
	}
	token, err := e.Codec.Issue(auth.Identity{Email: u.Email, Role: u.Role})
	if err != nil {
		return AuthResult{}, err
	}
	return AuthResult{Token: token, User: u}, nil
}
