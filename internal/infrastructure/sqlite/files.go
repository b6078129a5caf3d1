package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"stelgent-web/internal/domain/models"
	"stelgent-web/pkg/types"
)

const fileColumns = `id, path, type, content, created_at`

func scanFile(row interface{ Scan(...any) error }) (*models.FileRecord, error) {
	var (
		f       models.FileRecord
		created int64
	)
	if err := row.Scan(&f.ID, &f.Path, &f.Type, &f.Content, &created); err != nil {
		return nil, err
	}
	f.CreatedAt = fromUnix(created)
	return &f, nil
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func listFiles(ctx context.Context, q queryer, projectID string) ([]models.FileRecord, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT `+fileColumns+` FROM files WHERE project_id = ? ORDER BY created_at, rowid`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	files := []models.FileRecord{}
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		files = append(files, *f)
	}
	return files, rows.Err()
}

// ListFiles 按创建顺序返回项目的全部文件记录
func (s *Store) ListFiles(ctx context.Context, projectID string) ([]models.FileRecord, error) {
	return listFiles(ctx, s.db, projectID)
}

// GetFile 查询项目中的一条文件记录
func (s *Store) GetFile(ctx context.Context, projectID, fileID string) (*models.FileRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+fileColumns+` FROM files WHERE id = ? AND project_id = ?`, fileID, projectID)
	f, err := scanFile(row)
	if err != nil {
		return nil, notFound(err, "file")
	}
	return f, nil
}

// CreateFile 写入新文件记录；路径已存在时返回 ErrConflict
func (s *Store) CreateFile(ctx context.Context, projectID string, f *models.FileRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO files (id, project_id, path, type, content, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		f.ID, projectID, f.Path, f.Type, f.Content, toUnix(f.CreatedAt))
	if isUniqueViolation(err) {
		return fmt.Errorf("%s: %w", f.Path, types.ErrConflict)
	}
	return err
}

// UpdateFile 保存记录的新路径与内容。folder 记录改名时，oldPath 下的后代一起移动。
func (s *Store) UpdateFile(ctx context.Context, projectID string, f *models.FileRecord, oldPath string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE files SET path = ?, content = ? WHERE id = ? AND project_id = ?`,
			f.Path, f.Content, f.ID, projectID)
		if isUniqueViolation(err) {
			return fmt.Errorf("%s: %w", f.Path, types.ErrConflict)
		}
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("file %s: %w", f.ID, types.ErrNotFound)
		}

		if f.IsFile() || oldPath == f.Path {
			return nil
		}
		return moveDescendants(ctx, tx, projectID, oldPath, f.Path)
	})
}

func moveDescendants(ctx context.Context, tx *sql.Tx, projectID, from, to string) error {
	files, err := listFiles(ctx, tx, projectID)
	if err != nil {
		return err
	}
	for _, f := range files {
		if !types.IsDescendant(f.Path, from) {
			continue
		}
		newPath := to + strings.TrimPrefix(f.Path, from)
		_, err := tx.ExecContext(ctx, `UPDATE files SET path = ? WHERE id = ?`, newPath, f.ID)
		if isUniqueViolation(err) {
			return fmt.Errorf("%s: %w", newPath, types.ErrConflict)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// DeleteFile 删除文件记录；folder 记录连同其后代一起删除。返回删除的记录数。
func (s *Store) DeleteFile(ctx context.Context, projectID string, f *models.FileRecord) (int, error) {
	deleted := 0
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM files WHERE id = ? AND project_id = ?`, f.ID, projectID)
		if err != nil {
			return err
		}
		n, _ := res.RowsAffected()
		if n == 0 {
			return fmt.Errorf("file %s: %w", f.ID, types.ErrNotFound)
		}
		deleted = int(n)

		if f.IsFile() {
			return nil
		}
		files, err := listFiles(ctx, tx, projectID)
		if err != nil {
			return err
		}
		for _, child := range files {
			if !types.IsDescendant(child.Path, f.Path) {
				continue
			}
			if _, err := tx.ExecContext(ctx, `DELETE FROM files WHERE id = ?`, child.ID); err != nil {
				return err
			}
			deleted++
		}
		return nil
	})
	return deleted, err
}

// UpsertFiles 按路径写入导入的文件：已存在的路径更新内容并保留 ID，其余新建。
// 返回写入后的记录，顺序与输入一致。
func (s *Store) UpsertFiles(ctx context.Context, projectID string, files []models.FileRecord) ([]models.FileRecord, error) {
	out := make([]models.FileRecord, 0, len(files))
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO files (id, project_id, path, type, content, created_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(project_id, path) DO UPDATE SET type = excluded.type, content = excluded.content
			RETURNING `+fileColumns)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, f := range files {
			row := stmt.QueryRowContext(ctx, f.ID, projectID, f.Path, f.Type, f.Content, toUnix(f.CreatedAt))
			saved, err := scanFile(row)
			if err != nil {
				return fmt.Errorf("写入 %s 失败: %w", f.Path, err)
			}
			out = append(out, *saved)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
