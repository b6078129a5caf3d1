package application

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"stelgent-web/internal/domain/models"
	"stelgent-web/pkg/logger"
)

// MaxProjectNameLength 是项目名称的最大字符数
const MaxProjectNameLength = 200

// ProjectService 项目应用服务
type ProjectService struct {
	projects ProjectRepository
	events   Publisher
	now      func() time.Time
}

// NewProjectService 创建项目应用服务实例，events 可以为 nil
func NewProjectService(projects ProjectRepository, events Publisher) *ProjectService {
	if events == nil {
		events = nopPublisher{}
	}
	return &ProjectService{projects: projects, events: events, now: time.Now}
}

// Create 为用户创建项目
func (s *ProjectService) Create(ctx context.Context, userID, name string) (*models.Project, error) {
	name = strings.TrimSpace(name)
	if name == "" || utf8.RuneCountInString(name) > MaxProjectNameLength {
		return nil, fmt.Errorf("%w: project name must be 1-%d characters", models.ErrInvalidArgument, MaxProjectNameLength)
	}

	p := &models.Project{ID: uuid.NewString(), UserID: userID, Name: name, CreatedAt: s.now()}
	if err := s.projects.CreateProject(ctx, p); err != nil {
		return nil, err
	}
	logger.Info("创建项目", zap.String("user_id", userID), zap.String("project_id", p.ID))
	return p, nil
}

// List 返回用户的项目，最新的在前
func (s *ProjectService) List(ctx context.Context, userID string) ([]models.Project, error) {
	return s.projects.ListProjects(ctx, userID)
}

// Get 查询用户的项目
func (s *ProjectService) Get(ctx context.Context, userID, id string) (*models.Project, error) {
	return s.projects.GetProject(ctx, userID, id)
}

// Delete 删除项目及其全部文件
func (s *ProjectService) Delete(ctx context.Context, userID, id string) error {
	if err := s.projects.DeleteProject(ctx, userID, id); err != nil {
		return err
	}
	s.events.Publish(models.ProjectEvent{Type: models.EventProjectDeleted, ProjectID: id})
	logger.Info("删除项目", zap.String("user_id", userID), zap.String("project_id", id))
	return nil
}
