package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"obras/internal/models"
)

// UserQuery narrows ListUsers. Both fields are case-insensitive substrings.
type UserQuery struct {
	Name string
	Role string
}

// UserUpdate carries the fields to change on a user. Nil fields are kept.
type UserUpdate struct {
	Name  *string
	Email *string
	Role  models.Nullable[string]
}

const userColumns = `id, name, email, role, created_at`

func scanUser(row interface{ Scan(...any) error }) (models.User, error) {
	var (
		u    models.User
		role sql.NullString
	)
	if err := row.Scan(&u.ID, &u.Name, &u.Email, &role, &u.CreatedAt); err != nil {
		return models.User{}, err
	}
	u.Role = nullString(role)
	return u, nil
}

// ListUsers returns users ordered by name.
func (s *Store) ListUsers(ctx context.Context, q UserQuery) ([]models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE 1 = 1`
	var args []any
	if v := strings.TrimSpace(q.Name); v != "" {
		query += ` AND name LIKE ? ESCAPE '` + likeEscape + `'`
		args = append(args, likeContains(v))
	}
	if v := strings.TrimSpace(q.Role); v != "" {
		query += ` AND role LIKE ? ESCAPE '` + likeEscape + `'`
		args = append(args, likeContains(v))
	}
	query += ` ORDER BY name COLLATE NOCASE, id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	users := []models.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// GetUser fetches a single user by id.
func (s *Store) GetUser(ctx context.Context, id int64) (models.User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id))
	if err != nil {
		return models.User{}, wrapDBError("get user", err)
	}
	return u, nil
}

// CreateUser inserts a user. Emails are unique.
func (s *Store) CreateUser(ctx context.Context, u models.User) (models.User, error) {
	name := strings.TrimSpace(u.Name)
	email := strings.TrimSpace(u.Email)
	if name == "" || email == "" {
		return models.User{}, fmt.Errorf("user name and email must not be empty: %w", ErrInvalid)
	}

	res, err := s.db.ExecContext(ctx, `INSERT INTO users(name, email, role) VALUES(?, ?, ?)`, name, email, anyOrNil(trimmed(u.Role)))
	if err != nil {
		return models.User{}, wrapDBError("insert user", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return models.User{}, fmt.Errorf("user id: %w", err)
	}
	return s.GetUser(ctx, id)
}

// UpdateUser applies the set fields of upd.
func (s *Store) UpdateUser(ctx context.Context, id int64, upd UserUpdate) (models.User, error) {
	var set setClause
	if upd.Name != nil {
		name := strings.TrimSpace(*upd.Name)
		if name == "" {
			return models.User{}, fmt.Errorf("user name must not be empty: %w", ErrInvalid)
		}
		set.add("name", name)
	}
	if upd.Email != nil {
		email := strings.TrimSpace(*upd.Email)
		if email == "" {
			return models.User{}, fmt.Errorf("user email must not be empty: %w", ErrInvalid)
		}
		set.add("email", email)
	}
	if upd.Role.Set {
		set.add("role", anyOrNil(trimmed(upd.Role.Value)))
	}
	if set.empty() {
		return s.GetUser(ctx, id)
	}

	res, err := s.db.ExecContext(ctx, `UPDATE users SET `+set.sql()+` WHERE id = ?`, append(set.args, id)...)
	if err != nil {
		return models.User{}, wrapDBError("update user", err)
	}
	if err := requireAffected(res, "user"); err != nil {
		return models.User{}, err
	}
	return s.GetUser(ctx, id)
}

// DeleteUser removes a user. Template defaults and project responsibles are
// cleared; a user still responsible for a stage cannot be deleted.
func (s *Store) DeleteUser(ctx context.Context, id int64) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := exists(ctx, tx, "users", id); err != nil {
			return fmt.Errorf("delete user: %w", err)
		}
		var one int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM stages WHERE responsible_id = ? LIMIT 1`, id).Scan(&one)
		switch {
		case err == nil:
			return fmt.Errorf("delete user %d: responsible for stages: %w", id, ErrInUse)
		case !errors.Is(err, sql.ErrNoRows):
			return fmt.Errorf("delete user: %w", err)
		}

		res, err := tx.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
		if err != nil {
			return wrapDeleteError("delete user", err)
		}
		return requireAffected(res, "user")
	})
}
