package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"obras/internal/lifecycle"
	"obras/internal/models"
)

// StageQuery holds the stage list filters that run in SQL. Stages of completed
// projects are hidden unless IncludeCompletedProjects is set.
type StageQuery struct {
	ProjectID                *int64
	ResponsibleID            *int64
	Completed                *bool
	Tag                      string
	IncludeCompletedProjects bool
}

// NewStage is the input for CreateStage.
type NewStage struct {
	ProjectID            int64
	Name                 string
	ResponsibleID        *int64
	StartDate            *time.Time
	EstimatedEndDate     *time.Time
	IntermediateDate     *time.Time
	IntermediateDateNote *string
}

// StageUpdate carries the fields to change on a stage. Completion is changed
// through CompleteStage and UncompleteStage; CompletedDate edits only the date.
type StageUpdate struct {
	Name                 *string
	ResponsibleID        models.Nullable[int64]
	StartDate            models.Nullable[time.Time]
	EstimatedEndDate     models.Nullable[time.Time]
	CompletedDate        models.Nullable[time.Time]
	IntermediateDate     models.Nullable[time.Time]
	IntermediateDateNote models.Nullable[string]
}

const stageSelect = `SELECT s.id, s.project_id, s.template_id, s.name, s.responsible_id,
            s.start_date, s.estimated_end_date, s.completed_date, s.intermediate_date, s.intermediate_date_note,
            s.order_number, s.is_completed, s.created_at,
            u.name, u.email, u.role, p.name, p.client_id, c.name
        FROM stages s
        JOIN projects p ON p.id = s.project_id
        LEFT JOIN users u ON u.id = s.responsible_id
        LEFT JOIN clients c ON c.id = p.client_id`

func scanStage(row interface{ Scan(...any) error }) (models.Stage, error) {
	var (
		st                                  models.Stage
		templateID, responsibleID, clientID sql.NullInt64
		start, end, completed, intermediate sql.NullString
		note, respName, respEmail, respRole sql.NullString
		clientName                          sql.NullString
	)
	err := row.Scan(&st.ID, &st.ProjectID, &templateID, &st.Name, &responsibleID,
		&start, &end, &completed, &intermediate, &note,
		&st.OrderNumber, &st.IsCompleted, &st.CreatedAt,
		&respName, &respEmail, &respRole, &st.ProjectName, &clientID, &clientName)
	if err != nil {
		return models.Stage{}, err
	}
	st.TemplateID = nullInt64(templateID)
	st.ResponsibleID = nullInt64(responsibleID)
	st.StartDate = parseTime(start)
	st.EstimatedEndDate = parseTime(end)
	st.CompletedDate = parseTime(completed)
	st.IntermediateDate = parseTime(intermediate)
	st.IntermediateDateNote = nullString(note)
	st.ResponsibleName = nullString(respName)
	st.ResponsibleEmail = nullString(respEmail)
	st.ResponsibleRole = nullString(respRole)
	st.ClientID = nullInt64(clientID)
	st.ClientName = nullString(clientName)
	return st, nil
}

// queryStages runs stageSelect with the given filter and returns the rows
// ordered by project and order number. The rows are closed before returning.
func queryStages(ctx context.Context, q querier, where string, args ...any) ([]models.Stage, error) {
	rows, err := q.QueryContext(ctx, stageSelect+where+` ORDER BY s.project_id, s.order_number, s.id`, args...)
	if err != nil {
		return nil, fmt.Errorf("list stages: %w", err)
	}
	defer rows.Close()

	stages := []models.Stage{}
	for rows.Next() {
		st, err := scanStage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan stage: %w", err)
		}
		stages = append(stages, st)
	}
	return stages, rows.Err()
}

// enrichStages fills tags, recent comments and comment counts.
func enrichStages(ctx context.Context, q querier, stages []models.Stage) error {
	ids := make([]int64, len(stages))
	for i, st := range stages {
		ids[i] = st.ID
	}
	tags, err := stageTags(ctx, q, ids)
	if err != nil {
		return err
	}
	recent, counts, err := commentStats(ctx, q, ids)
	if err != nil {
		return err
	}
	for i := range stages {
		id := stages[i].ID
		stages[i].Tags = nonNil(tags[id])
		stages[i].RecentComments = nonNil(recent[id])
		stages[i].CommentsCount = counts[id]
	}
	return nil
}

func nonNil[T any](v []T) []T {
	if v == nil {
		return []T{}
	}
	return v
}

// ListStages returns enriched stages matching q.
func (s *Store) ListStages(ctx context.Context, q StageQuery) ([]models.Stage, error) {
	var (
		conds []string
		args  []any
	)
	if !q.IncludeCompletedProjects {
		conds = append(conds, `p.status != ?`)
		args = append(args, models.ProjectCompleted)
	}
	if q.ProjectID != nil {
		conds = append(conds, `s.project_id = ?`)
		args = append(args, *q.ProjectID)
	}
	if q.ResponsibleID != nil {
		conds = append(conds, `s.responsible_id = ?`)
		args = append(args, *q.ResponsibleID)
	}
	if q.Completed != nil {
		conds = append(conds, `s.is_completed = ?`)
		args = append(args, *q.Completed)
	}
	if tag := strings.TrimSpace(q.Tag); tag != "" {
		conds = append(conds, `s.id IN (SELECT st.stage_id FROM stage_tags st JOIN tags t ON t.id = st.tag_id WHERE t.name = ?)`)
		args = append(args, tag)
	}

	where := ""
	if len(conds) > 0 {
		where = ` WHERE ` + strings.Join(conds, ` AND `)
	}
	stages, err := queryStages(ctx, s.db, where, args...)
	if err != nil {
		return nil, err
	}
	if err := enrichStages(ctx, s.db, stages); err != nil {
		return nil, err
	}
	return stages, nil
}

// GetStage returns a stage with its tags and every comment, newest first.
func (s *Store) GetStage(ctx context.Context, id int64) (models.Stage, error) {
	st, err := scanStage(s.db.QueryRowContext(ctx, stageSelect+` WHERE s.id = ?`, id))
	if err != nil {
		return models.Stage{}, wrapDBError("get stage", err)
	}

	tags, err := stageTags(ctx, s.db, []int64{id})
	if err != nil {
		return models.Stage{}, err
	}
	comments, err := s.listComments(ctx, ` WHERE c.stage_id = ?`, id)
	if err != nil {
		return models.Stage{}, err
	}
	st.Tags = nonNil(tags[id])
	st.Comments = comments
	st.RecentComments = comments[:min(len(comments), recentCommentLimit)]
	st.CommentsCount = len(comments)
	return st, nil
}

func insertStage(ctx context.Context, q querier, st models.Stage) (int64, error) {
	res, err := q.ExecContext(ctx, `INSERT INTO stages(project_id, template_id, name, responsible_id, start_date, estimated_end_date,
            completed_date, intermediate_date, intermediate_date_note, order_number, is_completed)
        VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		st.ProjectID, anyOrNil(st.TemplateID), st.Name, anyOrNil(st.ResponsibleID), formatTime(st.StartDate), formatTime(st.EstimatedEndDate),
		formatTime(st.CompletedDate), formatTime(st.IntermediateDate), anyOrNil(trimmed(st.IntermediateDateNote)), st.OrderNumber, st.IsCompleted)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// CreateStage appends a stage to a project. The project and responsible user
// must exist and the stage currently holding the previous order number must be
// completed. A concurrent creator that takes the order number first causes a
// retry.
func (s *Store) CreateStage(ctx context.Context, in NewStage) (models.Stage, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return models.Stage{}, fmt.Errorf("stage name must not be empty: %w", ErrInvalid)
	}

	var id int64
	err := s.retry(ctx, func() error {
		return s.withTx(ctx, func(tx *sql.Tx) error {
			if err := exists(ctx, tx, "projects", in.ProjectID); err != nil {
				return err
			}
			if in.ResponsibleID != nil {
				if err := exists(ctx, tx, "users", *in.ResponsibleID); err != nil {
					return err
				}
			}

			var maxOrder sql.NullInt64
			if err := tx.QueryRowContext(ctx, `SELECT MAX(order_number) FROM stages WHERE project_id = ?`, in.ProjectID).Scan(&maxOrder); err != nil {
				return fmt.Errorf("select stage order: %w", err)
			}
			next := lifecycle.NextOrderNumber(int(maxOrder.Int64))

			var previous *models.Stage
			if next > 1 {
				var done bool
				err := tx.QueryRowContext(ctx, `SELECT is_completed FROM stages WHERE project_id = ? AND order_number = ?`, in.ProjectID, next-1).Scan(&done)
				switch {
				case errors.Is(err, sql.ErrNoRows):
				case err != nil:
					return fmt.Errorf("select previous stage: %w", err)
				default:
					previous = &models.Stage{OrderNumber: next - 1, IsCompleted: done}
				}
			}
			if err := lifecycle.CheckSequence(next, previous); err != nil {
				return err
			}

			newID, err := insertStage(ctx, tx, models.Stage{
				ProjectID:            in.ProjectID,
				Name:                 name,
				ResponsibleID:        in.ResponsibleID,
				StartDate:            in.StartDate,
				EstimatedEndDate:     in.EstimatedEndDate,
				IntermediateDate:     in.IntermediateDate,
				IntermediateDateNote: in.IntermediateDateNote,
				OrderNumber:          next,
			})
			if err != nil {
				if isUniqueViolation(err) {
					return errOrderTaken
				}
				return wrapDBError("insert stage", err)
			}
			id = newID
			return nil
		})
	})
	if errors.Is(err, errOrderTaken) {
		return models.Stage{}, fmt.Errorf("create stage: %w: %w", ErrConflict, err)
	}
	if err != nil {
		return models.Stage{}, fmt.Errorf("create stage: %w", err)
	}
	return s.GetStage(ctx, id)
}

// UpdateStage applies the set fields of upd.
func (s *Store) UpdateStage(ctx context.Context, id int64, upd StageUpdate) (models.Stage, error) {
	var set setClause
	if upd.Name != nil {
		name := strings.TrimSpace(*upd.Name)
		if name == "" {
			return models.Stage{}, fmt.Errorf("stage name must not be empty: %w", ErrInvalid)
		}
		set.add("name", name)
	}
	if upd.ResponsibleID.Set {
		set.add("responsible_id", anyOrNil(upd.ResponsibleID.Value))
	}
	dates := []struct {
		col string
		v   models.Nullable[time.Time]
	}{
		{"start_date", upd.StartDate},
		{"estimated_end_date", upd.EstimatedEndDate},
		{"completed_date", upd.CompletedDate},
		{"intermediate_date", upd.IntermediateDate},
	}
	for _, d := range dates {
		if d.v.Set {
			set.add(d.col, formatTime(d.v.Value))
		}
	}
	if upd.IntermediateDateNote.Set {
		set.add("intermediate_date_note", anyOrNil(trimmed(upd.IntermediateDateNote.Value)))
	}
	if set.empty() {
		return s.GetStage(ctx, id)
	}

	res, err := s.db.ExecContext(ctx, `UPDATE stages SET `+set.sql()+` WHERE id = ?`, append(set.args, id)...)
	if err != nil {
		return models.Stage{}, wrapDBError("update stage", err)
	}
	if err := requireAffected(res, "stage"); err != nil {
		return models.Stage{}, err
	}
	return s.GetStage(ctx, id)
}

// DeleteStage removes a stage with its comments and tag links.
func (s *Store) DeleteStage(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM stages WHERE id = ?`, id)
	if err != nil {
		return wrapDeleteError("delete stage", err)
	}
	return requireAffected(res, "stage")
}

// CompleteStage marks a stage done now. No other stage changes.
func (s *Store) CompleteStage(ctx context.Context, id int64) (models.Stage, error) {
	var st models.Stage
	lifecycle.Complete(&st, s.clock.Now())
	return s.setCompletion(ctx, id, st)
}

// UncompleteStage clears the completion flag and date.
func (s *Store) UncompleteStage(ctx context.Context, id int64) (models.Stage, error) {
	var st models.Stage
	lifecycle.Reopen(&st)
	return s.setCompletion(ctx, id, st)
}

func (s *Store) setCompletion(ctx context.Context, id int64, st models.Stage) (models.Stage, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE stages SET is_completed = ?, completed_date = ? WHERE id = ?`,
		st.IsCompleted, formatTime(st.CompletedDate), id)
	if err != nil {
		return models.Stage{}, fmt.Errorf("update stage completion: %w", err)
	}
	if err := requireAffected(res, "stage"); err != nil {
		return models.Stage{}, err
	}
	return s.GetStage(ctx, id)
}

// StartStage sets the start date to now when it is unset.
func (s *Store) StartStage(ctx context.Context, id int64) (models.Stage, error) {
	now := s.clock.Now()
	res, err := s.db.ExecContext(ctx, `UPDATE stages SET start_date = ? WHERE id = ? AND start_date IS NULL`, formatTime(&now), id)
	if err != nil {
		return models.Stage{}, fmt.Errorf("start stage: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return models.Stage{}, err
	}
	if affected == 0 {
		return models.Stage{}, fmt.Errorf("start stage %d: %w", id, lifecycle.ErrAlreadyStarted)
	}
	return s.GetStage(ctx, id)
}

// ReorderStages applies the assignments atomically. Sequencing and project
// membership are not checked.
func (s *Store) ReorderStages(ctx context.Context, assignments []models.OrderAssignment) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return renumber(ctx, tx, "stages", "stage", assignments)
	})
}
