package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"obras/internal/derive"
	"obras/internal/lifecycle"
	"obras/internal/models"
)

// StatusAll lists projects regardless of status.
const StatusAll = "all"

// ProjectQuery holds the project list filters that run in SQL. An empty Status
// hides completed projects.
type ProjectQuery struct {
	Name               string
	Status             string
	HasCompletedStages bool
	HasPendingStages   bool
}

// ProjectUpdate carries the fields to change on a project.
type ProjectUpdate struct {
	Name          *string
	Description   models.Nullable[string]
	ClientID      models.Nullable[int64]
	ResponsibleID models.Nullable[int64]
	Deadline      models.Nullable[time.Time]
	Status        *string
}

const projectColumns = `p.id, p.name, p.description, p.client_id, c.name, p.responsible_id, u.name, p.deadline, p.status, p.created_at, p.updated_at`

const projectJoins = `FROM projects p
        LEFT JOIN clients c ON c.id = p.client_id
        LEFT JOIN users u ON u.id = p.responsible_id`

func projectDest(p *models.Project, n *projectNulls) []any {
	return []any{&p.ID, &p.Name, &n.description, &n.clientID, &n.clientName, &n.responsibleID, &n.responsibleName, &n.deadline, &p.Status, &p.CreatedAt, &p.UpdatedAt}
}

type projectNulls struct {
	description     sql.NullString
	clientID        sql.NullInt64
	clientName      sql.NullString
	responsibleID   sql.NullInt64
	responsibleName sql.NullString
	deadline        sql.NullString
}

func (n projectNulls) apply(p *models.Project) {
	p.Description = nullString(n.description)
	p.ClientID = nullInt64(n.clientID)
	p.ClientName = nullString(n.clientName)
	p.ResponsibleID = nullInt64(n.responsibleID)
	p.ResponsibleName = nullString(n.responsibleName)
	p.Deadline = parseTime(n.deadline)
}

func validateStatus(status string) error {
	if _, ok := models.ValidProjectStatuses[status]; !ok {
		return fmt.Errorf("unknown project status %q: %w", status, ErrInvalid)
	}
	return nil
}

// CreateProject inserts a project and seeds its stages from the current
// template set in the same transaction. A failure to read the templates is
// logged and the project is created without stages.
func (s *Store) CreateProject(ctx context.Context, p models.Project) (models.ProjectDetail, error) {
	name := strings.TrimSpace(p.Name)
	if name == "" {
		return models.ProjectDetail{}, fmt.Errorf("project name must not be empty: %w", ErrInvalid)
	}
	status := p.Status
	if status == "" {
		status = models.ProjectActive
	}
	if err := validateStatus(status); err != nil {
		return models.ProjectDetail{}, err
	}

	templates, err := s.ListTemplates(ctx)
	if err != nil {
		s.logger.Warn("stage templates unavailable, creating project without stages", slog.String("error", err.Error()))
		templates = nil
	}
	now := s.clock.Now()

	var id int64
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `INSERT INTO projects(name, description, client_id, responsible_id, deadline, status) VALUES(?, ?, ?, ?, ?, ?)`,
			name, anyOrNil(trimmed(p.Description)), anyOrNil(p.ClientID), anyOrNil(p.ResponsibleID), formatTime(p.Deadline), status)
		if err != nil {
			return wrapDBError("insert project", err)
		}
		if id, err = res.LastInsertId(); err != nil {
			return fmt.Errorf("project id: %w", err)
		}

		for _, st := range lifecycle.PlanStages(id, templates, now) {
			if _, err := insertStage(ctx, tx, st); err != nil {
				return wrapDBError("seed stage", err)
			}
		}
		return nil
	})
	if err != nil {
		return models.ProjectDetail{}, err
	}
	return s.GetProject(ctx, id)
}

// GetProject returns a project with its ordered, enriched stages.
func (s *Store) GetProject(ctx context.Context, id int64) (models.ProjectDetail, error) {
	var (
		d models.ProjectDetail
		n projectNulls
	)
	err := s.db.QueryRowContext(ctx, `SELECT `+projectColumns+` `+projectJoins+` WHERE p.id = ?`, id).
		Scan(projectDest(&d.Project, &n)...)
	if err != nil {
		return models.ProjectDetail{}, wrapDBError("get project", err)
	}
	n.apply(&d.Project)

	stages, err := queryStages(ctx, s.db, ` WHERE s.project_id = ?`, id)
	if err != nil {
		return models.ProjectDetail{}, err
	}
	if err := enrichStages(ctx, s.db, stages); err != nil {
		return models.ProjectDetail{}, err
	}
	d.Stages = stages
	d.Progress = derive.StageProgress(stages)
	if cur := derive.CurrentStage(stages); cur != nil {
		name := cur.Name
		d.CurrentStage = &name
	}
	return d, nil
}

// ListProjects returns project summaries, most recently updated first.
func (s *Store) ListProjects(ctx context.Context, q ProjectQuery) ([]models.ProjectSummary, error) {
	query := `SELECT ` + projectColumns + `,
            (SELECT COUNT(*) FROM stages s WHERE s.project_id = p.id),
            (SELECT COUNT(*) FROM stages s WHERE s.project_id = p.id AND s.is_completed = 1),
            (SELECT s.name FROM stages s WHERE s.project_id = p.id AND s.is_completed = 0 ORDER BY s.order_number LIMIT 1)
        ` + projectJoins + ` WHERE 1 = 1`
	var args []any

	if v := strings.TrimSpace(q.Name); v != "" {
		query += ` AND p.name LIKE ? ESCAPE '` + likeEscape + `'`
		args = append(args, likeContains(v))
	}
	switch status := strings.TrimSpace(q.Status); status {
	case "":
		query += ` AND p.status != ?`
		args = append(args, models.ProjectCompleted)
	case StatusAll:
	default:
		if err := validateStatus(status); err != nil {
			return nil, err
		}
		query += ` AND p.status = ?`
		args = append(args, status)
	}
	if q.HasCompletedStages {
		query += ` AND EXISTS (SELECT 1 FROM stages s WHERE s.project_id = p.id AND s.is_completed = 1)`
	}
	if q.HasPendingStages {
		query += ` AND EXISTS (SELECT 1 FROM stages s WHERE s.project_id = p.id AND s.is_completed = 0)`
	}
	query += ` ORDER BY p.updated_at DESC, p.id DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	projects := []models.ProjectSummary{}
	for rows.Next() {
		var (
			ps      models.ProjectSummary
			n       projectNulls
			current sql.NullString
		)
		dest := append(projectDest(&ps.Project, &n), &ps.TotalStages, &ps.CompletedStages, &current)
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		n.apply(&ps.Project)
		ps.CurrentStage = nullString(current)
		ps.Progress = derive.Progress(ps.CompletedStages, ps.TotalStages)
		projects = append(projects, ps)
	}
	return projects, rows.Err()
}

// UpdateProject applies the set fields of upd. Status changes are unconstrained.
func (s *Store) UpdateProject(ctx context.Context, id int64, upd ProjectUpdate) (models.ProjectDetail, error) {
	var set setClause
	if upd.Name != nil {
		name := strings.TrimSpace(*upd.Name)
		if name == "" {
			return models.ProjectDetail{}, fmt.Errorf("project name must not be empty: %w", ErrInvalid)
		}
		set.add("name", name)
	}
	if upd.Description.Set {
		set.add("description", anyOrNil(trimmed(upd.Description.Value)))
	}
	if upd.ClientID.Set {
		set.add("client_id", anyOrNil(upd.ClientID.Value))
	}
	if upd.ResponsibleID.Set {
		set.add("responsible_id", anyOrNil(upd.ResponsibleID.Value))
	}
	if upd.Deadline.Set {
		set.add("deadline", formatTime(upd.Deadline.Value))
	}
	if upd.Status != nil {
		if err := validateStatus(*upd.Status); err != nil {
			return models.ProjectDetail{}, err
		}
		set.add("status", *upd.Status)
	}
	if set.empty() {
		return models.ProjectDetail{}, fmt.Errorf("no fields to update: %w", ErrInvalid)
	}

	res, err := s.db.ExecContext(ctx, `UPDATE projects SET `+set.sql()+` WHERE id = ?`, append(set.args, id)...)
	if err != nil {
		return models.ProjectDetail{}, wrapDBError("update project", err)
	}
	if err := requireAffected(res, "project"); err != nil {
		return models.ProjectDetail{}, err
	}
	return s.GetProject(ctx, id)
}

// DeleteProject removes a project along with its stages, their comments and
// tag links.
func (s *Store) DeleteProject(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM projects WHERE id = ?`, id)
	if err != nil {
		return wrapDeleteError("delete project", err)
	}
	return requireAffected(res, "project")
}
