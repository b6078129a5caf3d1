package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"stelgent-web/internal/domain/models"
)

const userColumns = `id, stellar_public_key, openai_api_key, created_at`

func scanUser(row interface{ Scan(...any) error }) (*models.User, error) {
	var (
		u       models.User
		openai  sql.NullString
		created int64
	)
	if err := row.Scan(&u.ID, &u.StellarPublicKey, &openai, &created); err != nil {
		return nil, err
	}
	if openai.Valid {
		u.OpenAIAPIKey = &openai.String
	}
	u.CreatedAt = fromUnix(created)
	return &u, nil
}

// CreateUser 写入新用户；公钥已存在时返回 ErrConflict
func (s *Store) CreateUser(ctx context.Context, u *models.User) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (`+userColumns+`) VALUES (?, ?, ?, ?)`,
		u.ID, u.StellarPublicKey, u.OpenAIAPIKey, toUnix(u.CreatedAt))
	if isUniqueViolation(err) {
		return fmt.Errorf("user %s: %w", u.StellarPublicKey, models.ErrConflict)
	}
	return err
}

// GetUser 按 ID 查询用户
func (s *Store) GetUser(ctx context.Context, id string) (*models.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	u, err := scanUser(row)
	if err != nil {
		return nil, notFound(err, "user")
	}
	return u, nil
}

// FindUserByPublicKey 按钱包公钥查询用户
func (s *Store) FindUserByPublicKey(ctx context.Context, publicKey string) (*models.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE stellar_public_key = ?`, publicKey)
	u, err := scanUser(row)
	if err != nil {
		return nil, notFound(err, "user")
	}
	return u, nil
}

// SetOpenAIKey 保存用户的 OpenAI API Key，key 为 nil 时清除
func (s *Store) SetOpenAIKey(ctx context.Context, userID string, key *string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE users SET openai_api_key = ? WHERE id = ?`, key, userID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("user %s: %w", userID, models.ErrNotFound)
	}
	return nil
}
