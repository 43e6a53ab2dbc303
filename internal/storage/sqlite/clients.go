package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"obras/internal/models"
)

// ClientUpdate carries the fields to change on a client.
type ClientUpdate struct {
	Name  *string
	Email models.Nullable[string]
	Phone models.Nullable[string]
}

const clientColumns = `id, name, email, phone, created_at`

func scanClient(row interface{ Scan(...any) error }) (models.Client, error) {
	var (
		c            models.Client
		email, phone sql.NullString
	)
	if err := row.Scan(&c.ID, &c.Name, &email, &phone, &c.CreatedAt); err != nil {
		return models.Client{}, err
	}
	c.Email = nullString(email)
	c.Phone = nullString(phone)
	return c, nil
}

// ListClients returns every client ordered by name.
func (s *Store) ListClients(ctx context.Context) ([]models.Client, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+clientColumns+` FROM clients ORDER BY name COLLATE NOCASE, id`)
	if err != nil {
		return nil, fmt.Errorf("list clients: %w", err)
	}
	defer rows.Close()

	clients := []models.Client{}
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, fmt.Errorf("scan client: %w", err)
		}
		clients = append(clients, c)
	}
	return clients, rows.Err()
}

// GetClient fetches a client by id.
func (s *Store) GetClient(ctx context.Context, id int64) (models.Client, error) {
	c, err := scanClient(s.db.QueryRowContext(ctx, `SELECT `+clientColumns+` FROM clients WHERE id = ?`, id))
	if err != nil {
		return models.Client{}, wrapDBError("get client", err)
	}
	return c, nil
}

// CreateClient inserts a client.
func (s *Store) CreateClient(ctx context.Context, c models.Client) (models.Client, error) {
	name := strings.TrimSpace(c.Name)
	if name == "" {
		return models.Client{}, fmt.Errorf("client name must not be empty: %w", ErrInvalid)
	}

	res, err := s.db.ExecContext(ctx, `INSERT INTO clients(name, email, phone) VALUES(?, ?, ?)`,
		name, anyOrNil(trimmed(c.Email)), anyOrNil(trimmed(c.Phone)))
	if err != nil {
		return models.Client{}, wrapDBError("insert client", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return models.Client{}, fmt.Errorf("client id: %w", err)
	}
	return s.GetClient(ctx, id)
}

// UpdateClient applies the set fields of upd.
func (s *Store) UpdateClient(ctx context.Context, id int64, upd ClientUpdate) (models.Client, error) {
	var set setClause
	if upd.Name != nil {
		name := strings.TrimSpace(*upd.Name)
		if name == "" {
			return models.Client{}, fmt.Errorf("client name must not be empty: %w", ErrInvalid)
		}
		set.add("name", name)
	}
	if upd.Email.Set {
		set.add("email", anyOrNil(trimmed(upd.Email.Value)))
	}
	if upd.Phone.Set {
		set.add("phone", anyOrNil(trimmed(upd.Phone.Value)))
	}
	if set.empty() {
		return s.GetClient(ctx, id)
	}

	res, err := s.db.ExecContext(ctx, `UPDATE clients SET `+set.sql()+` WHERE id = ?`, append(set.args, id)...)
	if err != nil {
		return models.Client{}, wrapDBError("update client", err)
	}
	if err := requireAffected(res, "client"); err != nil {
		return models.Client{}, err
	}
	return s.GetClient(ctx, id)
}

// DeleteClient removes a client; its projects lose the reference.
func (s *Store) DeleteClient(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM clients WHERE id = ?`, id)
	if err != nil {
		return wrapDeleteError("delete client", err)
	}
	return requireAffected(res, "client")
}
