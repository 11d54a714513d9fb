package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	for i, stmt := range postgresSchema {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate statement %d: %w", i, err)
		}
	}
	return nil
}

const projectColumns = `id, title, summary, biz_impact, dev_load,
	release_window, target_date, latest_start_date, kpi,
	created_at, updated_at`

func (s *PostgresStore) CreateProject(ctx context.Context, p *Project) error {
	return s.pool.QueryRow(ctx, `
		INSERT INTO projects (title, summary, biz_impact, dev_load,
			release_window, target_date, latest_start_date, kpi)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at, updated_at`,
		p.Title, p.Summary, string(p.BizImpact), p.DevLoad,
		p.ReleaseWindow, p.TargetDate, p.LatestStartDate, p.KPI,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
}

func (s *PostgresStore) GetProject(ctx context.Context, id uuid.UUID) (*Project, error) {
	p, err := scanProject(s.pool.QueryRow(ctx, `
		SELECT `+projectColumns+`
		FROM projects WHERE id = $1`, id))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (s *PostgresStore) ListProjects(ctx context.Context, filter ProjectFilter) ([]*Project, error) {
	query := `SELECT ` + projectColumns + ` FROM projects WHERE 1=1`
	args := []interface{}{}
	n := 0

	if filter.ReleaseWindow != "" {
		n++
		query += fmt.Sprintf(" AND release_window = $%d", n)
		args = append(args, filter.ReleaseWindow)
	}
	if filter.DevLoad != "" {
		n++
		query += fmt.Sprintf(" AND dev_load = $%d", n)
		args = append(args, filter.DevLoad)
	}

	query += " ORDER BY created_at ASC, id ASC"

	n++
	query += fmt.Sprintf(" LIMIT $%d", n)
	args = append(args, filter.limit())

	if filter.Offset > 0 {
		n++
		query += fmt.Sprintf(" OFFSET $%d", n)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var projects []*Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

func (s *PostgresStore) UpdateProject(ctx context.Context, p *Project) error {
	err := s.pool.QueryRow(ctx, `
		UPDATE projects SET
			title = $2, summary = $3, biz_impact = $4, dev_load = $5,
			release_window = $6, target_date = $7, latest_start_date = $8, kpi = $9,
			updated_at = now()
		WHERE id = $1
		RETURNING updated_at`,
		p.ID, p.Title, p.Summary, string(p.BizImpact), p.DevLoad,
		p.ReleaseWindow, p.TargetDate, p.LatestStartDate, p.KPI,
	).Scan(&p.UpdatedAt)
	if err == pgx.ErrNoRows {
		return fmt.Errorf("project %s not found", p.ID)
	}
	return err
}

func (s *PostgresStore) DeleteProject(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM projects WHERE id = $1`, id)
	return err
}

func scanProject(row pgx.Row) (*Project, error) {
	p := &Project{}
	var bizImpact string
	if err := row.Scan(
		&p.ID, &p.Title, &p.Summary, &bizImpact, &p.DevLoad,
		&p.ReleaseWindow, &p.TargetDate, &p.LatestStartDate, &p.KPI,
		&p.CreatedAt, &p.UpdatedAt,
	); err != nil {
		return nil, err
	}
	p.BizImpact = RawImpact(bizImpact)
	return p, nil
}
