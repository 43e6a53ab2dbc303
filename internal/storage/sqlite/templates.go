package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"obras/internal/models"
)

// TemplateUpdate carries the fields to change on a stage template.
type TemplateUpdate struct {
	Name                  *string
	OrderNumber           *int
	DefaultResponsibleID  models.Nullable[int64]
	EstimatedDurationDays models.Nullable[int]
}

const templateSelect = `SELECT t.id, t.name, t.order_number, t.default_responsible_id, u.name, t.estimated_duration_days, t.created_at
        FROM stage_templates t
        LEFT JOIN users u ON u.id = t.default_responsible_id`

func scanTemplate(row interface{ Scan(...any) error }) (models.StageTemplate, error) {
	var (
		t           models.StageTemplate
		responsible sql.NullInt64
		respName    sql.NullString
		duration    sql.NullInt64
	)
	if err := row.Scan(&t.ID, &t.Name, &t.OrderNumber, &responsible, &respName, &duration, &t.CreatedAt); err != nil {
		return models.StageTemplate{}, err
	}
	t.DefaultResponsibleID = nullInt64(responsible)
	t.DefaultResponsibleName = nullString(respName)
	t.EstimatedDurationDays = nullInt(duration)
	return t, nil
}

// ListTemplates returns the global template set ordered by order number.
func (s *Store) ListTemplates(ctx context.Context) ([]models.StageTemplate, error) {
	return listTemplates(ctx, s.db)
}

func listTemplates(ctx context.Context, q querier) ([]models.StageTemplate, error) {
	rows, err := q.QueryContext(ctx, templateSelect+` ORDER BY t.order_number, t.id`)
	if err != nil {
		return nil, fmt.Errorf("list stage templates: %w", err)
	}
	defer rows.Close()

	templates := []models.StageTemplate{}
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, fmt.Errorf("scan stage template: %w", err)
		}
		templates = append(templates, t)
	}
	return templates, rows.Err()
}

// GetTemplate fetches a stage template by id.
func (s *Store) GetTemplate(ctx context.Context, id int64) (models.StageTemplate, error) {
	t, err := scanTemplate(s.db.QueryRowContext(ctx, templateSelect+` WHERE t.id = ?`, id))
	if err != nil {
		return models.StageTemplate{}, wrapDBError("get stage template", err)
	}
	return t, nil
}

// CreateTemplate inserts a template. A zero order number appends it after the
// current last template.
func (s *Store) CreateTemplate(ctx context.Context, t models.StageTemplate) (models.StageTemplate, error) {
	name := strings.TrimSpace(t.Name)
	if name == "" {
		return models.StageTemplate{}, fmt.Errorf("stage template name must not be empty: %w", ErrInvalid)
	}
	if t.OrderNumber < 0 {
		return models.StageTemplate{}, fmt.Errorf("stage template order must be positive: %w", ErrInvalid)
	}
	if t.EstimatedDurationDays != nil && *t.EstimatedDurationDays < 0 {
		return models.StageTemplate{}, fmt.Errorf("estimated duration must not be negative: %w", ErrInvalid)
	}

	var id int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		order := t.OrderNumber
		if order == 0 {
			var maxOrder sql.NullInt64
			if err := tx.QueryRowContext(ctx, `SELECT MAX(order_number) FROM stage_templates`).Scan(&maxOrder); err != nil {
				return fmt.Errorf("select template order: %w", err)
			}
			order = int(maxOrder.Int64) + 1
		}

		res, err := tx.ExecContext(ctx, `INSERT INTO stage_templates(name, order_number, default_responsible_id, estimated_duration_days) VALUES(?, ?, ?, ?)`,
			name, order, anyOrNil(t.DefaultResponsibleID), anyOrNil(t.EstimatedDurationDays))
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("stage template order %d already in use: %w", order, ErrConflict)
			}
			return wrapDBError("insert stage template", err)
		}
		id, err = res.LastInsertId()
		return err
	})
	if err != nil {
		return models.StageTemplate{}, err
	}
	return s.GetTemplate(ctx, id)
}

// UpdateTemplate applies the set fields of upd. Existing project stages are
// not affected.
func (s *Store) UpdateTemplate(ctx context.Context, id int64, upd TemplateUpdate) (models.StageTemplate, error) {
	var set setClause
	if upd.Name != nil {
		name := strings.TrimSpace(*upd.Name)
		if name == "" {
			return models.StageTemplate{}, fmt.Errorf("stage template name must not be empty: %w", ErrInvalid)
		}
		set.add("name", name)
	}
	if upd.OrderNumber != nil {
		if *upd.OrderNumber < 1 {
			return models.StageTemplate{}, fmt.Errorf("stage template order must be positive: %w", ErrInvalid)
		}
		set.add("order_number", *upd.OrderNumber)
	}
	if upd.DefaultResponsibleID.Set {
		set.add("default_responsible_id", anyOrNil(upd.DefaultResponsibleID.Value))
	}
	if upd.EstimatedDurationDays.Set {
		if v := upd.EstimatedDurationDays.Value; v != nil && *v < 0 {
			return models.StageTemplate{}, fmt.Errorf("estimated duration must not be negative: %w", ErrInvalid)
		}
		set.add("estimated_duration_days", anyOrNil(upd.EstimatedDurationDays.Value))
	}
	if set.empty() {
		return s.GetTemplate(ctx, id)
	}

	res, err := s.db.ExecContext(ctx, `UPDATE stage_templates SET `+set.sql()+` WHERE id = ?`, append(set.args, id)...)
	if err != nil {
		return models.StageTemplate{}, wrapDBError("update stage template", err)
	}
	if err := requireAffected(res, "stage template"); err != nil {
		return models.StageTemplate{}, err
	}
	return s.GetTemplate(ctx, id)
}

// DeleteTemplate removes a template. Stages seeded from it keep their data.
func (s *Store) DeleteTemplate(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM stage_templates WHERE id = ?`, id)
	if err != nil {
		return wrapDeleteError("delete stage template", err)
	}
	return requireAffected(res, "stage template")
}

// ReorderTemplates renumbers templates atomically.
func (s *Store) ReorderTemplates(ctx context.Context, assignments []models.OrderAssignment) ([]models.StageTemplate, error) {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		return renumber(ctx, tx, "stage_templates", "stage template", assignments)
	})
	if err != nil {
		return nil, err
	}
	return s.ListTemplates(ctx)
}
