package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"stelgent-web/internal/domain/models"
)

// CreateProject 写入新项目
func (s *Store) CreateProject(ctx context.Context, p *models.Project) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO projects (id, user_id, name, created_at) VALUES (?, ?, ?, ?)`,
		p.ID, p.UserID, p.Name, toUnix(p.CreatedAt))
	return err
}

// ListProjects 返回用户的全部项目，最新的在前
func (s *Store) ListProjects(ctx context.Context, userID string) ([]models.Project, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, name, created_at FROM projects WHERE user_id = ? ORDER BY created_at DESC, rowid DESC`,
		userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	projects := []models.Project{}
	for rows.Next() {
		var (
			p       models.Project
			created int64
		)
		if err := rows.Scan(&p.ID, &p.UserID, &p.Name, &created); err != nil {
			return nil, err
		}
		p.CreatedAt = fromUnix(created)
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

// GetProject 查询属于 userID 的项目，其他用户的项目视为不存在
func (s *Store) GetProject(ctx context.Context, userID, id string) (*models.Project, error) {
	var (
		p       models.Project
		created int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, name, created_at FROM projects WHERE id = ? AND user_id = ?`,
		id, userID).Scan(&p.ID, &p.UserID, &p.Name, &created)
	if err != nil {
		return nil, notFound(err, "project")
	}
	p.CreatedAt = fromUnix(created)
	return &p, nil
}

// DeleteProject 删除项目及其全部文件
func (s *Store) DeleteProject(ctx context.Context, userID, id string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM projects WHERE id = ? AND user_id = ?`, id, userID)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("project %s: %w", id, models.ErrNotFound)
		}
		_, err = tx.ExecContext(ctx, `DELETE FROM files WHERE project_id = ?`, id)
		return err
	})
}
