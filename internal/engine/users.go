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

func requireAdmin(id auth.Identity) error {
	if id.Role != auth.RoleAdmin {
		return ForbiddenError{Reason: "admin role required"}
	}
	return nil
}

// UserCreateOptions are parameters for admin user provisioning.
type UserCreateOptions struct {
	Email     string
	FirstName string
	LastName  string
	Role      string
	// Password is optional; accounts default to auth.DefaultPassword.
	Password string
}

// CreateUser provisions an account with an explicit role. Admin only.
func (e Engine) CreateUser(ctx context.Context, id auth.Identity, opts UserCreateOptions) (domain.User, error) {
	if err := requireAdmin(id); err != nil {
		return domain.User{}, err
	}
	email := strings.ToLower(strings.TrimSpace(opts.Email))
	if email == "" || !strings.Contains(email, "@") {
		return domain.User{}, errors.New("invalid email")
	}
	if !auth.ValidRole(opts.Role) {
		return domain.User{}, errors.New("invalid role")
	}
	password := opts.Password
	if password == "" {
		password = auth.DefaultPassword
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return domain.User{}, err
	}
	now := e.nowRFC3339()
	u := domain.User{
		Email:        email,
		FirstName:    opts.FirstName,
		LastName:     opts.LastName,
		Role:         opts.Role,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.User{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.InsertUser(ctx, tx, u); err != nil {
		return domain.User{}, err
	}
	if err := e.Events.Append(ctx, tx, "user.created", "user", u.Email, id.Email, events.EventPayload{"role": u.Role}); err != nil {
		return domain.User{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.User{}, err
	}
	return u, nil
}

// UserListOptions are optional listing filters.
type UserListOptions struct {
	Role            string
	Limit           int
	CursorCreatedAt string
	CursorEmail     string
}

// ListUsers returns accounts, optionally filtered by role. Admin only.
func (e Engine) ListUsers(ctx context.Context, id auth.Identity, opts UserListOptions) ([]domain.User, error) {
	if err := requireAdmin(id); err != nil {
		return nil, err
	}
	if opts.Role != "" && !auth.ValidRole(opts.Role) {
		return nil, errors.New("invalid role")
	}
	return e.Repo.ListUsers(ctx, repo.UserFilters{
		Role:            opts.Role,
		Limit:           opts.Limit,
		CursorCreatedAt: opts.CursorCreatedAt,
		CursorEmail:     opts.CursorEmail,
	})
}

// GetUser returns an account. Admins may read anyone; everyone else may
// only read themselves.
func (e Engine) GetUser(ctx context.Context, id auth.Identity, email string) (domain.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if id.Role != auth.RoleAdmin && email != id.Email {
		return domain.User{}, ForbiddenError{Reason: "cannot read other users"}
	}
	return e.Repo.GetUserByEmail(ctx, email)
}

// UserPatch carries partial user updates; nil fields are left untouched.
type UserPatch struct {
	FirstName *string
	LastName  *string
	Role      *string
	Password  *string
}

// UpdateUser applies a partial update to an account. Admin only.
func (e Engine) UpdateUser(ctx context.Context, id auth.Identity, email string, patch UserPatch) (domain.User, error) {
	if err := requireAdmin(id); err != nil {
		return domain.User{}, err
	}
	if patch.Role != nil && !auth.ValidRole(*patch.Role) {
		return domain.User{}, errors.New("invalid role")
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.User{}, err
	}
	defer tx.Rollback()

	email = strings.ToLower(strings.TrimSpace(email))
	u, err := e.Repo.GetUserByEmailTx(ctx, tx, email)
	if err != nil {
		return domain.User{}, err
	}
	if patch.FirstName != nil {
		u.FirstName = *patch.FirstName
	}
	if patch.LastName != nil {
		u.LastName = *patch.LastName
	}
	if patch.Role != nil {
		u.Role = *patch.Role
	}
	if patch.Password != nil {
		if *patch.Password == "" {
			return domain.User{}, errors.New("password is required")
		}
		hash, err := auth.HashPassword(*patch.Password)
		if err != nil {
			return domain.User{}, err
		}
		u.PasswordHash = hash
	}
	u.UpdatedAt = e.nowRFC3339()
	if err := e.Repo.UpdateUser(ctx, tx, u); err != nil {
		return domain.User{}, err
	}
	if err := e.Events.Append(ctx, tx, "user.updated", "user", u.Email, id.Email, events.EventPayload{"role": u.Role}); err != nil {
		return domain.User{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.User{}, err
	}
	return u, nil
}

// DeleteUser soft-deletes an account. Deleting an already deleted
// account is reported as a conflict, not a missing user. Admin only.
func (e Engine) DeleteUser(ctx context.Context, id auth.Identity, email string) error {
	if err := requireAdmin(id); err != nil {
		return err
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	email = strings.ToLower(strings.TrimSpace(email))
	u, err := e.Repo.GetUserByEmailAny(ctx, tx, email)
	if err != nil {
		return err
	}
	if u.DeletedAt != nil {
		return repo.ErrAlreadyExists
	}
	if err := e.Repo.SoftDeleteUser(ctx, tx, email, e.nowRFC3339()); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "user.deleted", "user", email, id.Email, events.EventPayload{}); err != nil {
		return err
	}
	return tx.Commit()
}

// EventListOptions page the audit log.
type EventListOptions struct {
	Limit      int
	Cursor     int64
	Type       string
	EntityKind string
	EntityID   string
}

// ListEvents returns audit events newest first. Admin only.
func (e Engine) ListEvents(ctx context.Context, id auth.Identity, opts EventListOptions) ([]domain.Event, error) {
	if err := requireAdmin(id); err != nil {
		return nil, err
	}
	if opts.Limit <= 0 {
		opts.Limit = 100
	}
	return e.Repo.LatestEventsFrom(ctx, opts.Limit, opts.Cursor, opts.Type, opts.EntityKind, opts.EntityID)
}
