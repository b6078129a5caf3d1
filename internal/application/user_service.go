package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"stelgent-web/internal/auth"
	"stelgent-web/internal/domain/models"
	"stelgent-web/pkg/logger"
)

// UserService 钱包用户应用服务
type UserService struct {
	users UserRepository
	now   func() time.Time
}

// NewUserService 创建用户应用服务实例
func NewUserService(users UserRepository) *UserService {
	return &UserService{users: users, now: time.Now}
}

// Connect 用钱包公钥登录：找到对应用户，不存在时创建
func (s *UserService) Connect(ctx context.Context, publicKey string) (*models.User, error) {
	key, err := auth.ValidatePublicKey(publicKey)
	if err != nil {
		return nil, err
	}

	user, err := s.users.FindUserByPublicKey(ctx, key)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return nil, err
	}

	user = &models.User{ID: uuid.NewString(), StellarPublicKey: key, CreatedAt: s.now()}
	if err := s.users.CreateUser(ctx, user); err != nil {
		// 并发连接时另一请求已创建
		if errors.Is(err, models.ErrConflict) {
			return s.users.FindUserByPublicKey(ctx, key)
		}
		return nil, err
	}
	logger.Info("创建钱包用户", zap.String("user_id", user.ID), zap.String("public_key", key))
	return user, nil
}

// Authenticate 把请求携带的公钥解析为已登录的用户
func (s *UserService) Authenticate(ctx context.Context, publicKey string) (*models.User, error) {
	key, err := auth.ValidatePublicKey(publicKey)
	if err != nil {
		return nil, err
	}
	user, err := s.users.FindUserByPublicKey(ctx, key)
	if errors.Is(err, models.ErrNotFound) {
		return nil, fmt.Errorf("%w: user not found for this wallet", models.ErrUnauthenticated)
	}
	return user, err
}

// VerifyPublicKey 只检查公钥格式，签名校验不在此处进行
func (s *UserService) VerifyPublicKey(publicKey string) (string, error) {
	return auth.ValidatePublicKey(publicKey)
}

// Get 按 ID 查询用户
func (s *UserService) Get(ctx context.Context, id string) (*models.User, error) {
	return s.users.GetUser(ctx, id)
}

// SetOpenAIKey 保存（或在 key 为 nil 时清除）用户的 OpenAI API Key
func (s *UserService) SetOpenAIKey(ctx context.Context, userID string, key *string) (*models.User, error) {
	if err := s.users.SetOpenAIKey(ctx, userID, key); err != nil {
		return nil, err
	}
	return s.users.GetUser(ctx, userID)
}
