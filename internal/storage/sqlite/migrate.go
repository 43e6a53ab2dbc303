package sqlite

import (
	"fmt"
	"log/slog"
)

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            name TEXT NOT NULL,
            email TEXT NOT NULL UNIQUE,
            role TEXT,
            created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
        );`,
		`CREATE TABLE IF NOT EXISTS clients (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            name TEXT NOT NULL,
            email TEXT,
            phone TEXT,
            created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
        );`,
		`CREATE TABLE IF NOT EXISTS projects (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            name TEXT NOT NULL,
            description TEXT,
            client_id INTEGER,
            deadline TEXT,
            status TEXT NOT NULL DEFAULT 'active' CHECK (status IN ('active', 'paused', 'completed')),
            created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
            updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
            FOREIGN KEY(client_id) REFERENCES clients(id) ON DELETE SET NULL
        );`,
		`CREATE TABLE IF NOT EXISTS stage_templates (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            name TEXT NOT NULL,
            order_number INTEGER NOT NULL UNIQUE,
            default_responsible_id INTEGER,
            estimated_duration_days INTEGER CHECK (estimated_duration_days IS NULL OR estimated_duration_days >= 0),
            created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
            FOREIGN KEY(default_responsible_id) REFERENCES users(id) ON DELETE SET NULL
        );`,
		`CREATE TABLE IF NOT EXISTS stages (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            project_id INTEGER NOT NULL,
            template_id INTEGER,
            name TEXT NOT NULL,
            responsible_id INTEGER,
            start_date TEXT,
            estimated_end_date TEXT,
            completed_date TEXT,
            order_number INTEGER NOT NULL,
            is_completed BOOLEAN NOT NULL DEFAULT 0,
            created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
            UNIQUE(project_id, order_number),
            FOREIGN KEY(project_id) REFERENCES projects(id) ON DELETE CASCADE,
            FOREIGN KEY(template_id) REFERENCES stage_templates(id) ON DELETE SET NULL,
            FOREIGN KEY(responsible_id) REFERENCES users(id) ON DELETE RESTRICT
        );`,
		`CREATE TABLE IF NOT EXISTS tags (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            name TEXT NOT NULL UNIQUE,
            color TEXT,
            created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
        );`,
		`CREATE TABLE IF NOT EXISTS stage_tags (
            stage_id INTEGER NOT NULL,
            tag_id INTEGER NOT NULL,
            PRIMARY KEY(stage_id, tag_id),
            FOREIGN KEY(stage_id) REFERENCES stages(id) ON DELETE CASCADE,
            FOREIGN KEY(tag_id) REFERENCES tags(id) ON DELETE CASCADE
        );`,
		`CREATE TABLE IF NOT EXISTS comments (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            stage_id INTEGER NOT NULL,
            content TEXT NOT NULL,
            author TEXT NOT NULL,
            created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
            FOREIGN KEY(stage_id) REFERENCES stages(id) ON DELETE CASCADE
        );`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	// Columns added after the first schema; older databases get them here.
	columns := []struct{ table, column, decl string }{
		{"stages", "intermediate_date", "TEXT"},
		{"stages", "intermediate_date_note", "TEXT"},
		{"projects", "responsible_id", "INTEGER REFERENCES users(id) ON DELETE SET NULL"},
	}
	for _, c := range columns {
		if err := s.addColumnIfMissing(c.table, c.column, c.decl); err != nil {
			return err
		}
	}

	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_stages_project ON stages(project_id);`,
		`CREATE INDEX IF NOT EXISTS idx_stages_responsible ON stages(responsible_id);`,
		`CREATE INDEX IF NOT EXISTS idx_comments_stage ON comments(stage_id, created_at);`,
		`CREATE INDEX IF NOT EXISTS idx_projects_client ON projects(client_id);`,
		`CREATE TRIGGER IF NOT EXISTS trg_projects_updated
            AFTER UPDATE ON projects
            FOR EACH ROW BEGIN
                UPDATE projects SET updated_at = CURRENT_TIMESTAMP WHERE id = OLD.id;
            END;`,
	}
	for _, stmt := range indexes {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

func (s *Store) addColumnIfMissing(table, column, decl string) error {
	rows, err := s.db.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return fmt.Errorf("inspect %s: %w", table, err)
	}
	found := false
	for rows.Next() {
		var (
			cid       int
			name      string
			colType   string
			notNull   int
			dfltValue any
			pk        int
		)
		if err := rows.Scan(&cid, &name, &colType, &notNull, &dfltValue, &pk); err != nil {
			rows.Close()
			return fmt.Errorf("scan %s columns: %w", table, err)
		}
		if name == column {
			found = true
		}
	}
	if err := rows.Close(); err != nil {
		return err
	}
	if found {
		return nil
	}

	if _, err := s.db.Exec(fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, column, decl)); err != nil {
		return fmt.Errorf("add column %s.%s: %w", table, column, err)
	}
	s.logger.Info("added column", slog.String("table", table), slog.String("column", column))
	return nil
}
