package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"math/rand/v2"
	"strings"

	"obras/internal/models"
)

// TagUpdate carries the fields to change on a tag.
type TagUpdate struct {
	Name  *string
	Color models.Nullable[string]
}

func scanTag(row interface{ Scan(...any) error }, withUsage bool) (models.Tag, error) {
	var (
		t     models.Tag
		color sql.NullString
	)
	dest := []any{&t.ID, &t.Name, &color, &t.CreatedAt}
	if withUsage {
		dest = append(dest, &t.UsageCount)
	}
	if err := row.Scan(dest...); err != nil {
		return models.Tag{}, err
	}
	t.Color = nullString(color)
	return t, nil
}

// ListTags returns every tag with the number of stages carrying it.
func (s *Store) ListTags(ctx context.Context) ([]models.Tag, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT t.id, t.name, t.color, t.created_at, COUNT(DISTINCT st.stage_id)
        FROM tags t LEFT JOIN stage_tags st ON st.tag_id = t.id
        GROUP BY t.id ORDER BY t.name COLLATE NOCASE`)
	if err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}
	defer rows.Close()

	tags := []models.Tag{}
	for rows.Next() {
		t, err := scanTag(rows, true)
		if err != nil {
			return nil, fmt.Errorf("scan tag: %w", err)
		}
		tags = append(tags, t)
	}
	return tags, rows.Err()
}

// GetTag fetches a tag by id.
func (s *Store) GetTag(ctx context.Context, id int64) (models.Tag, error) {
	t, err := scanTag(s.db.QueryRowContext(ctx, `SELECT id, name, color, created_at FROM tags WHERE id = ?`, id), false)
	if err != nil {
		return models.Tag{}, wrapDBError("get tag", err)
	}
	return t, nil
}

// CreateTag inserts a tag. Names are unique; a tag without a color gets one
// from the palette.
func (s *Store) CreateTag(ctx context.Context, t models.Tag) (models.Tag, error) {
	name := strings.TrimSpace(t.Name)
	if name == "" {
		return models.Tag{}, fmt.Errorf("tag name must not be empty: %w", ErrInvalid)
	}
	color := trimmed(t.Color)
	if color == nil {
		c := randomPaletteColor()
		color = &c
	}

	res, err := s.db.ExecContext(ctx, `INSERT INTO tags(name, color) VALUES(?, ?)`, name, *color)
	if err != nil {
		return models.Tag{}, wrapDBError("insert tag", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return models.Tag{}, fmt.Errorf("tag id: %w", err)
	}
	return s.GetTag(ctx, id)
}

// UpdateTag applies the set fields of upd.
func (s *Store) UpdateTag(ctx context.Context, id int64, upd TagUpdate) (models.Tag, error) {
	var set setClause
	if upd.Name != nil {
		name := strings.TrimSpace(*upd.Name)
		if name == "" {
			return models.Tag{}, fmt.Errorf("tag name must not be empty: %w", ErrInvalid)
		}
		set.add("name", name)
	}
	if upd.Color.Set {
		set.add("color", anyOrNil(trimmed(upd.Color.Value)))
	}
	if set.empty() {
		return s.GetTag(ctx, id)
	}

	res, err := s.db.ExecContext(ctx, `UPDATE tags SET `+set.sql()+` WHERE id = ?`, append(set.args, id)...)
	if err != nil {
		return models.Tag{}, wrapDBError("update tag", err)
	}
	if err := requireAffected(res, "tag"); err != nil {
		return models.Tag{}, err
	}
	return s.GetTag(ctx, id)
}

// DeleteTag removes a tag and its stage links.
func (s *Store) DeleteTag(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tags WHERE id = ?`, id)
	if err != nil {
		return wrapDeleteError("delete tag", err)
	}
	return requireAffected(res, "tag")
}

// AttachTag links a tag to a stage. A pair can be linked once.
func (s *Store) AttachTag(ctx context.Context, stageID, tagID int64) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO stage_tags(stage_id, tag_id) VALUES(?, ?)`, stageID, tagID)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("tag already attached to stage: %w", ErrConflict)
		}
		return wrapDBError("attach tag", err)
	}
	return nil
}

// DetachTag removes the link between a stage and a tag.
func (s *Store) DetachTag(ctx context.Context, stageID, tagID int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM stage_tags WHERE stage_id = ? AND tag_id = ?`, stageID, tagID)
	if err != nil {
		return fmt.Errorf("detach tag: %w", err)
	}
	return requireAffected(res, "stage tag")
}

// stageTags loads the tags of the given stages keyed by stage id.
func stageTags(ctx context.Context, q querier, stageIDs []int64) (map[int64][]models.Tag, error) {
	out := make(map[int64][]models.Tag, len(stageIDs))
	if len(stageIDs) == 0 {
		return out, nil
	}
	rows, err := q.QueryContext(ctx, `SELECT st.stage_id, t.id, t.name, t.color, t.created_at
        FROM stage_tags st JOIN tags t ON t.id = st.tag_id
        WHERE st.stage_id IN (`+placeholders(len(stageIDs))+`)
        ORDER BY t.name COLLATE NOCASE`, int64Args(stageIDs)...)
	if err != nil {
		return nil, fmt.Errorf("list stage tags: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			stageID int64
			t       models.Tag
			color   sql.NullString
		)
		if err := rows.Scan(&stageID, &t.ID, &t.Name, &color, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan stage tag: %w", err)
		}
		t.Color = nullString(color)
		out[stageID] = append(out[stageID], t)
	}
	return out, rows.Err()
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func int64Args(ids []int64) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}

func randomPaletteColor() string {
	palette := []string{
		"#2563eb", // blue-600
		"#7c3aed", // violet-600
		"#dc2626", // red-600
		"#059669", // green-600
		"#ea580c", // orange-600
		"#d97706", // amber-600
		"#0ea5e9", // sky-500
	}
	return palette[rand.IntN(len(palette))]
}
