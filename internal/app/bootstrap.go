package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"taskdesk/internal/auth"
	"taskdesk/internal/config"
	"taskdesk/internal/domain"
	"taskdesk/internal/repo"
)

// EnsureAdmin seeds the configured admin account if it does not exist
// yet. Existing accounts, deleted or not, are left alone.
func EnsureAdmin(ctx context.Context, r repo.Repo, cfg *config.Config) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = r.GetUserByEmailAny(ctx, tx, cfg.Admin.Email)
	if err == nil {
		return nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return err
	}

	hash, err := auth.HashPassword(cfg.Admin.Password)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}
	now := time.Now().UTC().Format(time.RFC3339)
	u := domain.User{
		Email:        cfg.Admin.Email,
		FirstName:    "Admin",
		LastName:     "",
		Role:         auth.RoleAdmin,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := r.InsertUser(ctx, tx, u); err != nil {
		return fmt.Errorf("seed admin user: %w", err)
	}
	return tx.Commit()
}
