package services

import (
	"archive/zip"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"go.uber.org/zap"

	"stelgent-web/internal/domain/models"
	"stelgent-web/pkg/config"
	"stelgent-web/pkg/logger"
	"stelgent-web/pkg/types"
)

// FileProcessor 文件处理服务：ZIP 导入导出与本地目录读取
type FileProcessor struct {
	config *config.Config
}

// NewFileProcessor 创建文件处理服务实例
func NewFileProcessor(cfg *config.Config) *FileProcessor {
	return &FileProcessor{
		config: cfg,
	}
}

// IsExcluded 检查路径是否命中排除规则或超出大小限制
func (fp *FileProcessor) IsExcluded(filePath string, fileSize uint64) bool {
	if maxSize := fp.config.GetMaxFileSize(); maxSize > 0 && fileSize > uint64(maxSize) {
		return true
	}

	return fp.matchesExclude(filepath.ToSlash(filePath))
}

// IsExcludedDir 检查目录（相对路径）是否整体被排除
func (fp *FileProcessor) IsExcludedDir(dirPath string) bool {
	dirPath = filepath.ToSlash(dirPath)
	return fp.matchesExclude(dirPath, dirPath+"/")
}

func (fp *FileProcessor) matchesExclude(candidates ...string) bool {
	for _, pattern := range fp.config.Import.ExcludePatterns {
		for _, candidate := range candidates {
			if ok, err := doublestar.Match(pattern, candidate); err == nil && ok {
				return true
			}
		}
	}
	return false
}

// IsLikelyTextFile 检查文件是否可能是文本文件
func (fp *FileProcessor) IsLikelyTextFile(filePath string) bool {
	if fp.config.IsTextExtension(path.Ext(filePath)) {
		return true
	}
	// 处理无扩展名的常见文本文件
	return fp.config.IsTextFilename(path.Base(filePath))
}

// isTextContent 通过内容嗅探确认是文本
func (fp *FileProcessor) isTextContent(content []byte) (string, bool) {
	if len(content) == 0 {
		return "text/plain", true
	}
	contentType := http.DetectContentType(content)
	return contentType, strings.HasPrefix(contentType, "text/") || fp.config.IsTextContentTypeException(contentType)
}

// ReadZip 读取 ZIP 文件，返回可导入的文件与被跳过的路径
func (fp *FileProcessor) ReadZip(file io.ReaderAt, size int64) ([]models.FileDraft, []string, error) {
	reader, err := zip.NewReader(file, size)
	if err != nil {
		return nil, nil, fmt.Errorf("无法读取ZIP文件: %w", err)
	}

	var names []string
	for _, entry := range reader.File {
		if !entry.FileInfo().IsDir() {
			names = append(names, filepath.ToSlash(entry.Name))
		}
	}
	root := commonRoot(names)

	var drafts []models.FileDraft
	var skipped []string
	for _, entry := range reader.File {
		if entry.FileInfo().IsDir() {
			continue
		}

		rel := strings.TrimPrefix(filepath.ToSlash(entry.Name), root)
		if err := types.ValidatePath(rel); err != nil {
			logger.Debug("排除 (非法路径)", zap.String("path", entry.Name))
			skipped = append(skipped, entry.Name)
			continue
		}
		if fp.IsExcluded(rel, entry.UncompressedSize64) {
			logger.Debug("排除 (规则)", zap.String("path", rel))
			skipped = append(skipped, rel)
			continue
		}
		if !fp.IsLikelyTextFile(rel) {
			logger.Debug("排除 (非文本扩展名)", zap.String("path", rel))
			skipped = append(skipped, rel)
			continue
		}

		content, err := fp.readEntry(entry)
		if err != nil {
			logger.Warn("读取ZIP条目失败", zap.String("path", rel), zap.Error(err))
			skipped = append(skipped, rel)
			continue
		}
		if contentType, ok := fp.isTextContent(content); !ok {
			logger.Debug("排除 (检测到二进制内容)", zap.String("path", rel), zap.String("content_type", contentType))
			skipped = append(skipped, rel)
			continue
		}

		drafts = append(drafts, models.FileDraft{Path: rel, Type: models.FileTypeFile, Content: string(content)})
	}

	return drafts, skipped, nil
}

func (fp *FileProcessor) readEntry(entry *zip.File) ([]byte, error) {
	rc, err := entry.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	limit := fp.config.GetMaxFileSize()
	if limit <= 0 {
		return io.ReadAll(rc)
	}
	content, err := io.ReadAll(io.LimitReader(rc, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(content)) > limit {
		return nil, fmt.Errorf("文件内容超限: %d 字节", len(content))
	}
	return content, nil
}

// commonRoot 当所有条目位于同一个顶层目录下时返回 "dir/"，否则返回空串
func commonRoot(names []string) string {
	if len(names) == 0 {
		return ""
	}
	first, _, found := strings.Cut(names[0], "/")
	if !found {
		return ""
	}
	prefix := first + "/"
	for _, name := range names[1:] {
		if !strings.HasPrefix(name, prefix) {
			return ""
		}
	}
	return prefix
}

// WriteZip 把项目文件写成 ZIP；folder 记录写成目录条目
func (fp *FileProcessor) WriteZip(w io.Writer, files []models.FileRecord) error {
	zw := zip.NewWriter(w)
	for _, f := range files {
		header := &zip.FileHeader{
			Name:     f.Path,
			Method:   zip.Deflate,
			Modified: f.CreatedAt,
		}
		if header.Modified.IsZero() {
			header.Modified = time.Unix(0, 0).UTC()
		}
		if !f.IsFile() {
			header.Name = f.Path + "/"
			header.Method = zip.Store
		}

		out, err := zw.CreateHeader(header)
		if err != nil {
			return fmt.Errorf("写入ZIP条目 %s 失败: %w", f.Path, err)
		}
		if f.IsFile() {
			if _, err := io.WriteString(out, f.Content); err != nil {
				return fmt.Errorf("写入ZIP条目 %s 失败: %w", f.Path, err)
			}
		}
	}
	return zw.Close()
}

// ReadDir 读取本地目录中的文本文件，路径相对于 root，按遍历顺序返回
func (fp *FileProcessor) ReadDir(root string) ([]models.FileRecord, error) {
	var files []models.FileRecord
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if rel == "." {
			return nil
		}

		if d.IsDir() {
			if fp.IsExcludedDir(rel) {
				return filepath.SkipDir
			}
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		if fp.IsExcluded(rel, uint64(info.Size())) || !fp.IsLikelyTextFile(rel) {
			return nil
		}

		content, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		if _, ok := fp.isTextContent(content); !ok {
			return nil
		}

		files = append(files, models.FileRecord{
			ID:        rel,
			Path:      rel,
			Type:      models.FileTypeFile,
			Content:   string(content),
			CreatedAt: info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("读取目录 %s 失败: %w", root, err)
	}
	return files, nil
}
