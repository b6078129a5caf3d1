package application

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"stelgent-web/internal/domain/models"
	"stelgent-web/internal/domain/services"
	"stelgent-web/internal/infrastructure/github"
	"stelgent-web/pkg/logger"
	"stelgent-web/pkg/types"
)

// FileService 项目文件应用服务：增删改查、目录树、预览、导入导出
type FileService struct {
	files         FileRepository
	projects      ProjectRepository
	fileProcessor *services.FileProcessor
	assembler     *services.PreviewAssembler
	fetcher       RepoFetcher
	events        Publisher
	locks         *projectLocks
	now           func() time.Time
}

// NewFileService 创建文件应用服务实例，fetcher 与 events 可以为 nil
func NewFileService(
	files FileRepository,
	projects ProjectRepository,
	fileProcessor *services.FileProcessor,
	assembler *services.PreviewAssembler,
	fetcher RepoFetcher,
	events Publisher,
) *FileService {
	if events == nil {
		events = nopPublisher{}
	}
	return &FileService{
		files:         files,
		projects:      projects,
		fileProcessor: fileProcessor,
		assembler:     assembler,
		fetcher:       fetcher,
		events:        events,
		locks:         newProjectLocks(),
		now:           time.Now,
	}
}

// snapshot 校验项目归属并返回当前的全部文件记录
func (s *FileService) snapshot(ctx context.Context, userID, projectID string) ([]models.FileRecord, error) {
	if _, err := s.projects.GetProject(ctx, userID, projectID); err != nil {
		return nil, err
	}
	return s.files.ListFiles(ctx, projectID)
}

// List 返回项目的全部文件记录
func (s *FileService) List(ctx context.Context, userID, projectID string) ([]models.FileRecord, error) {
	return s.snapshot(ctx, userID, projectID)
}

// Create 新建文件或文件夹。路径非法返回 ErrInvalidPath，与现有路径冲突返回 ErrConflict。
func (s *FileService) Create(ctx context.Context, userID, projectID string, draft models.FileDraft) (*models.FileRecord, error) {
	if draft.Type == "" {
		draft.Type = models.FileTypeFile
	}
	if !draft.Type.Valid() {
		return nil, fmt.Errorf("%w: unknown file type %q", models.ErrInvalidArgument, draft.Type)
	}
	if err := types.ValidatePath(draft.Path); err != nil {
		return nil, err
	}

	unlock := s.locks.lock(projectID)
	defer unlock()

	existing, err := s.snapshot(ctx, userID, projectID)
	if err != nil {
		return nil, err
	}
	if err := types.CheckPathConflict(existing, draft.Path, draft.Type, ""); err != nil {
		return nil, err
	}

	rec := &models.FileRecord{
		ID:        uuid.NewString(),
		Path:      draft.Path,
		Type:      draft.Type,
		Content:   draft.Content,
		CreatedAt: s.now(),
	}
	if !rec.IsFile() {
		rec.Content = ""
	}
	if err := s.files.CreateFile(ctx, projectID, rec); err != nil {
		return nil, err
	}

	s.events.Publish(models.ProjectEvent{Type: models.EventFileCreated, ProjectID: projectID, FileID: rec.ID, Path: rec.Path})
	return rec, nil
}

// Update 重命名文件或修改内容；重命名文件夹时其后代一起移动
func (s *FileService) Update(ctx context.Context, userID, projectID, fileID string, update models.FileUpdate) (*models.FileRecord, error) {
	unlock := s.locks.lock(projectID)
	defer unlock()

	existing, err := s.snapshot(ctx, userID, projectID)
	if err != nil {
		return nil, err
	}
	rec, err := s.files.GetFile(ctx, projectID, fileID)
	if err != nil {
		return nil, err
	}

	oldPath := rec.Path
	if update.Path != nil && *update.Path != rec.Path {
		newPath := *update.Path
		if err := types.ValidatePath(newPath); err != nil {
			return nil, err
		}
		if rec.IsFile() {
			err = types.CheckPathConflict(existing, newPath, rec.Type, rec.ID)
		} else {
			err = checkFolderMove(existing, rec, newPath)
		}
		if err != nil {
			return nil, err
		}
		rec.Path = newPath
	}
	if update.Content != nil && rec.IsFile() {
		rec.Content = *update.Content
	}

	if err := s.files.UpdateFile(ctx, projectID, rec, oldPath); err != nil {
		return nil, err
	}

	s.events.Publish(models.ProjectEvent{Type: models.EventFileUpdated, ProjectID: projectID, FileID: rec.ID, Path: rec.Path})
	return rec, nil
}

// Delete 删除文件；删除文件夹时其后代一起删除。返回删除的记录数。
func (s *FileService) Delete(ctx context.Context, userID, projectID, fileID string) (int, error) {
	if _, err := s.projects.GetProject(ctx, userID, projectID); err != nil {
		return 0, err
	}

	unlock := s.locks.lock(projectID)
	defer unlock()

	rec, err := s.files.GetFile(ctx, projectID, fileID)
	if err != nil {
		return 0, err
	}

	n, err := s.files.DeleteFile(ctx, projectID, rec)
	if err != nil {
		return 0, err
	}

	s.events.Publish(models.ProjectEvent{Type: models.EventFileDeleted, ProjectID: projectID, FileID: rec.ID, Path: rec.Path, Count: n})
	return n, nil
}

// Tree 构建项目的目录树
func (s *FileService) Tree(ctx context.Context, userID, projectID string) (*models.TreeNode, error) {
	files, err := s.snapshot(ctx, userID, projectID)
	if err != nil {
		return nil, err
	}
	return services.BuildTree(files), nil
}

// Preview 组装项目的预览文档，minify 为 true 时压缩输出
func (s *FileService) Preview(ctx context.Context, userID, projectID string, minify bool) (string, error) {
	files, err := s.snapshot(ctx, userID, projectID)
	if err != nil {
		return "", err
	}

	doc, err := s.assembler.Assemble(files)
	if err != nil {
		return "", err
	}
	if minify {
		return services.MinifyDocument(doc)
	}
	return doc, nil
}

// Archive 把项目文件写成 ZIP
func (s *FileService) Archive(ctx context.Context, userID, projectID string, w io.Writer) error {
	files, err := s.snapshot(ctx, userID, projectID)
	if err != nil {
		return err
	}
	return s.fileProcessor.WriteZip(w, files)
}

// ImportZip 导入 ZIP 中的文本文件，同路径文件覆盖内容
func (s *FileService) ImportZip(ctx context.Context, userID, projectID string, r io.ReaderAt, size int64) (*models.ImportResult, error) {
	if _, err := s.projects.GetProject(ctx, userID, projectID); err != nil {
		return nil, err
	}

	drafts, skipped, err := s.fileProcessor.ReadZip(r, size)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrInvalidArgument, err)
	}
	return s.importDrafts(ctx, userID, projectID, drafts, skipped)
}

// ImportGithub 导入 GitHub 仓库中的文本文件，token 为空时使用服务端配置的密钥
func (s *FileService) ImportGithub(ctx context.Context, userID, projectID, repoURL, token string) (*models.ImportResult, error) {
	if s.fetcher == nil {
		return nil, fmt.Errorf("%w: GitHub import is not configured", models.ErrInvalidArgument)
	}
	owner, repo, err := github.ParseRepoURL(repoURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrInvalidArgument, err)
	}

	if _, err := s.projects.GetProject(ctx, userID, projectID); err != nil {
		return nil, err
	}

	drafts, skipped, err := s.fetcher.FetchRepo(ctx, owner, repo, token)
	if err != nil {
		return nil, err
	}
	return s.importDrafts(ctx, userID, projectID, drafts, skipped)
}

func (s *FileService) importDrafts(ctx context.Context, userID, projectID string, drafts []models.FileDraft, skipped []string) (*models.ImportResult, error) {
	unlock := s.locks.lock(projectID)
	defer unlock()

	existing, err := s.snapshot(ctx, userID, projectID)
	if err != nil {
		return nil, err
	}
	records, rejected := planImport(existing, drafts, s.now())
	skipped = append(skipped, rejected...)
	for _, p := range rejected {
		logger.Debug("导入路径冲突，已跳过", zap.String("project_id", projectID), zap.String("path", p))
	}

	result := &models.ImportResult{Imported: []models.FileRecord{}, Skipped: skipped}
	if result.Skipped == nil {
		result.Skipped = []string{}
	}
	if len(records) == 0 {
		return result, nil
	}

	saved, err := s.files.UpsertFiles(ctx, projectID, records)
	if err != nil {
		return nil, err
	}
	result.Imported = saved

	s.events.Publish(models.ProjectEvent{Type: models.EventFilesImported, ProjectID: projectID, Count: len(saved)})
	logger.Info("导入完成",
		zap.String("project_id", projectID),
		zap.Int("imported", len(saved)),
		zap.Int("skipped", len(result.Skipped)))
	return result, nil
}

// checkFolderMove 校验文件夹改名后自身及全部后代的新路径，与未移动的记录比较
func checkFolderMove(existing []models.FileRecord, folder *models.FileRecord, newPath string) error {
	if types.IsDescendant(newPath, folder.Path) {
		return fmt.Errorf("%w: cannot move %s into itself", models.ErrInvalidPath, folder.Path)
	}

	var moved, rest []models.FileRecord
	for _, f := range existing {
		switch {
		case f.ID == folder.ID:
		case types.IsDescendant(f.Path, folder.Path):
			moved = append(moved, f)
		default:
			rest = append(rest, f)
		}
	}

	if err := types.CheckPathConflict(rest, newPath, folder.Type, ""); err != nil {
		return err
	}
	for _, f := range moved {
		target := newPath + strings.TrimPrefix(f.Path, folder.Path)
		if err := types.CheckPathConflict(rest, target, f.Type, ""); err != nil {
			return err
		}
	}
	return nil
}

// planImport 把导入的文件与现有记录合并：同路径的文件覆盖内容，
// 会与目录结构冲突的路径被拒绝
func planImport(existing []models.FileRecord, drafts []models.FileDraft, now time.Time) ([]models.FileRecord, []string) {
	merged := append([]models.FileRecord(nil), existing...)
	byPath := make(map[string]int, len(merged))
	for i, f := range merged {
		byPath[f.Path] = i
	}

	var records []models.FileRecord
	var rejected []string
	for _, d := range drafts {
		if i, ok := byPath[d.Path]; ok {
			if !merged[i].IsFile() {
				rejected = append(rejected, d.Path)
				continue
			}
			merged[i].Content = d.Content
			records = append(records, models.FileRecord{ID: merged[i].ID, Path: d.Path, Type: models.FileTypeFile, Content: d.Content, CreatedAt: now})
			continue
		}
		if err := types.CheckPathConflict(merged, d.Path, models.FileTypeFile, ""); err != nil {
			rejected = append(rejected, d.Path)
			continue
		}
		rec := models.FileRecord{ID: uuid.NewString(), Path: d.Path, Type: models.FileTypeFile, Content: d.Content, CreatedAt: now}
		byPath[rec.Path] = len(merged)
		merged = append(merged, rec)
		records = append(records, rec)
	}
	return records, rejected
}
