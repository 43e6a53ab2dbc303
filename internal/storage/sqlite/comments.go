package sqlite

import (
	"context"
	"fmt"
	"strings"

	"obras/internal/models"
)

// recentCommentLimit is how many comments a stage carries in list views.
const recentCommentLimit = 3

// CommentUpdate carries the fields to change on a comment.
type CommentUpdate struct {
	Content *string
	Author  *string
}

const commentSelect = `SELECT c.id, c.stage_id, c.content, c.author, c.created_at, s.name, p.name
        FROM comments c
        JOIN stages s ON s.id = c.stage_id
        JOIN projects p ON p.id = s.project_id`

func scanComment(row interface{ Scan(...any) error }) (models.Comment, error) {
	var c models.Comment
	if err := row.Scan(&c.ID, &c.StageID, &c.Content, &c.Author, &c.CreatedAt, &c.StageName, &c.ProjectName); err != nil {
		return models.Comment{}, err
	}
	return c, nil
}

func (s *Store) listComments(ctx context.Context, where string, args ...any) ([]models.Comment, error) {
	rows, err := s.db.QueryContext(ctx, commentSelect+where+` ORDER BY c.created_at DESC, c.id DESC`, args...)
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	defer rows.Close()

	comments := []models.Comment{}
	for rows.Next() {
		c, err := scanComment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan comment: %w", err)
		}
		comments = append(comments, c)
	}
	return comments, rows.Err()
}

// ListComments returns every comment, newest first, with stage and project names.
func (s *Store) ListComments(ctx context.Context) ([]models.Comment, error) {
	return s.listComments(ctx, "")
}

// ListStageComments returns the comments of one stage, newest first.
func (s *Store) ListStageComments(ctx context.Context, stageID int64) ([]models.Comment, error) {
	if err := exists(ctx, s.db, "stages", stageID); err != nil {
		return nil, fmt.Errorf("list stage comments: %w", err)
	}
	return s.listComments(ctx, ` WHERE c.stage_id = ?`, stageID)
}

// GetComment fetches a comment by id.
func (s *Store) GetComment(ctx context.Context, id int64) (models.Comment, error) {
	c, err := scanComment(s.db.QueryRowContext(ctx, commentSelect+` WHERE c.id = ?`, id))
	if err != nil {
		return models.Comment{}, wrapDBError("get comment", err)
	}
	return c, nil
}

// CreateComment adds a comment to an existing stage.
func (s *Store) CreateComment(ctx context.Context, c models.Comment) (models.Comment, error) {
	content := strings.TrimSpace(c.Content)
	author := strings.TrimSpace(c.Author)
	if content == "" || author == "" {
		return models.Comment{}, fmt.Errorf("comment content and author must not be empty: %w", ErrInvalid)
	}

	res, err := s.db.ExecContext(ctx, `INSERT INTO comments(stage_id, content, author) VALUES(?, ?, ?)`, c.StageID, content, author)
	if err != nil {
		return models.Comment{}, wrapDBError("insert comment", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return models.Comment{}, fmt.Errorf("comment id: %w", err)
	}
	return s.GetComment(ctx, id)
}

// UpdateComment edits the content or author of a comment.
func (s *Store) UpdateComment(ctx context.Context, id int64, upd CommentUpdate) (models.Comment, error) {
	var set setClause
	if upd.Content != nil {
		v := strings.TrimSpace(*upd.Content)
		if v == "" {
			return models.Comment{}, fmt.Errorf("comment content must not be empty: %w", ErrInvalid)
		}
		set.add("content", v)
	}
	if upd.Author != nil {
		v := strings.TrimSpace(*upd.Author)
		if v == "" {
			return models.Comment{}, fmt.Errorf("comment author must not be empty: %w", ErrInvalid)
		}
		set.add("author", v)
	}
	if set.empty() {
		return s.GetComment(ctx, id)
	}

	res, err := s.db.ExecContext(ctx, `UPDATE comments SET `+set.sql()+` WHERE id = ?`, append(set.args, id)...)
	if err != nil {
		return models.Comment{}, wrapDBError("update comment", err)
	}
	if err := requireAffected(res, "comment"); err != nil {
		return models.Comment{}, err
	}
	return s.GetComment(ctx, id)
}

// DeleteComment removes a comment.
func (s *Store) DeleteComment(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM comments WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete comment: %w", err)
	}
	return requireAffected(res, "comment")
}

// commentStats loads, per stage, the most recent comments and the total count.
func commentStats(ctx context.Context, q querier, stageIDs []int64) (map[int64][]models.Comment, map[int64]int, error) {
	recent := make(map[int64][]models.Comment, len(stageIDs))
	counts := make(map[int64]int, len(stageIDs))
	if len(stageIDs) == 0 {
		return recent, counts, nil
	}

	rows, err := q.QueryContext(ctx, `SELECT id, stage_id, content, author, created_at
        FROM comments WHERE stage_id IN (`+placeholders(len(stageIDs))+`)
        ORDER BY stage_id, created_at DESC, id DESC`, int64Args(stageIDs)...)
	if err != nil {
		return nil, nil, fmt.Errorf("list recent comments: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var c models.Comment
		if err := rows.Scan(&c.ID, &c.StageID, &c.Content, &c.Author, &c.CreatedAt); err != nil {
			return nil, nil, fmt.Errorf("scan comment: %w", err)
		}
		counts[c.StageID]++
		if len(recent[c.StageID]) < recentCommentLimit {
			recent[c.StageID] = append(recent[c.StageID], c)
		}
	}
	return recent, counts, rows.Err()
}

// exists reports ErrNotFound when table has no row with id. table is always a
// literal from this package.
func exists(ctx context.Context, q querier, table string, id int64) error {
	var one int
	err := q.QueryRowContext(ctx, `SELECT 1 FROM `+table+` WHERE id = ?`, id).Scan(&one)
	if err != nil {
		return wrapDBError(strings.TrimSuffix(table, "s"), err)
	}
	return nil
}
