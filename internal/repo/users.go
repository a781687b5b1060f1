package repo

import (
	"context"
	"database/sql"
	"strings"

	"taskdesk/internal/domain"
)

const userColumns = `email,first_name,last_name,role,password_hash,created_at,updated_at,deleted_at`

func scanUser(scan func(dest ...any) error) (domain.User, error) {
	var u domain.User
	var deletedAt sql.NullString
	err := scan(&u.Email, &u.FirstName, &u.LastName, &u.Role, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt, &deletedAt)
	if err == sql.ErrNoRows {
		return u, ErrNotFound
	}
	if err != nil {
		return u, err
	}
	if deletedAt.Valid {
		u.DeletedAt = &deletedAt.String
	}
	return u, nil
}

func (r Repo) InsertUser(ctx context.Context, tx *sql.Tx, u domain.User) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO users(email,first_name,last_name,role,password_hash,created_at,updated_at) VALUES (?,?,?,?,?,?,?)`,
		u.Email, u.FirstName, u.LastName, u.Role, u.PasswordHash, u.CreatedAt, u.UpdatedAt)
	if err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return ErrAlreadyExists
	}
	return err
}

// GetUserByEmail returns a live user.
func (r Repo) GetUserByEmail(ctx context.Context, email string) (domain.User, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email=? AND `+notDeleted, email)
	return scanUser(row.Scan)
}

func (r Repo) GetUserByEmailTx(ctx context.Context, tx *sql.Tx, email string) (domain.User, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email=? AND `+notDeleted, email)
	return scanUser(row.Scan)
}

// GetUserByEmailAny also returns soft-deleted users. Callers use it to
// distinguish a deleted account from one that never existed.
func (r Repo) GetUserByEmailAny(ctx context.Context, tx *sql.Tx, email string) (domain.User, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email=?`, email)
	return scanUser(row.Scan)
}

type UserFilters struct {
	Role            string
	Limit           int
	CursorCreatedAt string
	CursorEmail     string
}

func (r Repo) ListUsers(ctx context.Context, f UserFilters) ([]domain.User, error) {
	clauses := []string{notDeleted}
	var args []any
	if f.Role != "" {
		clauses = append(clauses, "role=?")
		args = append(args, f.Role)
	}
	if f.CursorCreatedAt != "" && f.CursorEmail != "" {
		clauses = append(clauses, "(created_at < ? OR (created_at = ? AND email < ?))")
		args = append(args, f.CursorCreatedAt, f.CursorCreatedAt, f.CursorEmail)
	}
	query := `SELECT ` + userColumns + ` FROM users WHERE ` + strings.Join(clauses, " AND ") + ` ORDER BY created_at DESC, email DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.User
	for rows.Next() {
		u, err := scanUser(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, u)
	}
	return res, rows.Err()
}

func (r Repo) UpdateUser(ctx context.Context, tx *sql.Tx, u domain.User) error {
	res, err := tx.ExecContext(ctx, `UPDATE users SET first_name=?, last_name=?, role=?, password_hash=?, updated_at=? WHERE email=? AND `+notDeleted,
		u.FirstName, u.LastName, u.Role, u.PasswordHash, u.UpdatedAt, u.Email)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) SoftDeleteUser(ctx context.Context, tx *sql.Tx, email, deletedAt string) error {
	res, err := tx.ExecContext(ctx, `UPDATE users SET deleted_at=?, updated_at=? WHERE email=? AND `+notDeleted, deletedAt, deletedAt, email)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
