package application

import (
	"context"

	"stelgent-web/internal/domain/models"
)

// UserRepository 用户持久化
type UserRepository interface {
	CreateUser(ctx context.Context, u *models.User) error
	GetUser(ctx context.Context, id string) (*models.User, error)
	FindUserByPublicKey(ctx context.Context, publicKey string) (*models.User, error)
	SetOpenAIKey(ctx context.Context, userID string, key *string) error
}

// ProjectRepository 项目持久化，查询都限定在所有者范围内
type ProjectRepository interface {
	CreateProject(ctx context.Context, p *models.Project) error
	ListProjects(ctx context.Context, userID string) ([]models.Project, error)
	GetProject(ctx context.Context, userID, id string) (*models.Project, error)
	DeleteProject(ctx context.Context, userID, id string) error
}

// FileRepository 项目文件持久化
type FileRepository interface {
	ListFiles(ctx context.Context, projectID string) ([]models.FileRecord, error)
	GetFile(ctx context.Context, projectID, fileID string) (*models.FileRecord, error)
	CreateFile(ctx context.Context, projectID string, f *models.FileRecord) error
	UpdateFile(ctx context.Context, projectID string, f *models.FileRecord, oldPath string) error
	DeleteFile(ctx context.Context, projectID string, f *models.FileRecord) (int, error)
	UpsertFiles(ctx context.Context, projectID string, files []models.FileRecord) ([]models.FileRecord, error)
}

// Publisher 接收项目变更事件
type Publisher interface {
	Publish(ev models.ProjectEvent)
}

// RepoFetcher 从远程仓库读取可导入的文件
type RepoFetcher interface {
	FetchRepo(ctx context.Context, owner, repo, token string) ([]models.FileDraft, []string, error)
}

type nopPublisher struct{}

func (nopPublisher) Publish(models.ProjectEvent) {}
