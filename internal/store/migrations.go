package store

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS projects (
		id                UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		title             TEXT NOT NULL,
		summary           TEXT NOT NULL DEFAULT '',
		biz_impact        TEXT NOT NULL DEFAULT '',
		dev_load          TEXT NOT NULL DEFAULT '',
		release_window    TEXT NOT NULL DEFAULT '',
		target_date       TEXT NOT NULL DEFAULT '',
		latest_start_date TEXT NOT NULL DEFAULT '',
		kpi               TEXT NOT NULL DEFAULT '',
		created_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at        TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_projects_created_at ON projects(created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_projects_release_window ON projects(release_window)`,
}

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS projects (
		id                TEXT PRIMARY KEY,
		title             TEXT NOT NULL,
		summary           TEXT NOT NULL DEFAULT '',
		biz_impact        TEXT NOT NULL DEFAULT '',
		dev_load          TEXT NOT NULL DEFAULT '',
		release_window    TEXT NOT NULL DEFAULT '',
		target_date       TEXT NOT NULL DEFAULT '',
		latest_start_date TEXT NOT NULL DEFAULT '',
		kpi               TEXT NOT NULL DEFAULT '',
		created_at        DATETIME NOT NULL,
		updated_at        DATETIME NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_projects_created_at ON projects(created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_projects_release_window ON projects(release_window)`,
}
