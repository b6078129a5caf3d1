package handlers

import (
	"bytes"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"stelgent-web/internal/application"
	"stelgent-web/internal/domain/models"
	"stelgent-web/internal/domain/services"
	"stelgent-web/internal/events"
	"stelgent-web/internal/interfaces/http/middleware"
	"stelgent-web/pkg/config"
	"stelgent-web/pkg/logger"
)

// previewCSP 让预览文档运行在不透明的来源中
const previewCSP = "sandbox allow-scripts"

// FileHandler 项目文件 HTTP 处理器
type FileHandler struct {
	fileService    *application.FileService
	projectService *application.ProjectService
	hub            *events.Hub
	config         *config.Config
}

// NewFileHandler 创建文件处理器
func NewFileHandler(fileService *application.FileService, projectService *application.ProjectService, hub *events.Hub, cfg *config.Config) *FileHandler {
	return &FileHandler{
		fileService:    fileService,
		projectService: projectService,
		hub:            hub,
		config:         cfg,
	}
}

type githubImportRequest struct {
	URL   string `json:"url" binding:"required"`
	Token string `json:"token"`
}

// HandleList 列出项目的全部文件
func (h *FileHandler) HandleList(c *gin.Context) {
	files, err := h.fileService.List(c.Request.Context(), middleware.CurrentUser(c).ID, c.Param("id"))
	if err != nil {
		respondError(c, err, "查询文件")
		return
	}
	c.JSON(http.StatusOK, gin.H{"files": files})
}

// HandleCreate 新建文件或文件夹
func (h *FileHandler) HandleCreate(c *gin.Context) {
	var draft models.FileDraft
	if err := c.ShouldBindJSON(&draft); err != nil {
		badRequest(c, err)
		return
	}

	file, err := h.fileService.Create(c.Request.Context(), middleware.CurrentUser(c).ID, c.Param("id"), draft)
	if err != nil {
		respondError(c, err, "创建文件")
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"message": "File created successfully",
		"file":    file,
	})
}

// HandleUpdate 重命名文件或修改内容
func (h *FileHandler) HandleUpdate(c *gin.Context) {
	var update models.FileUpdate
	if err := c.ShouldBindJSON(&update); err != nil {
		badRequest(c, err)
		return
	}

	file, err := h.fileService.Update(c.Request.Context(), middleware.CurrentUser(c).ID, c.Param("id"), c.Param("fileId"), update)
	if err != nil {
		respondError(c, err, "更新文件")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": "File updated successfully",
		"file":    file,
	})
}

// HandleDelete 删除文件，文件夹连同后代一起删除
func (h *FileHandler) HandleDelete(c *gin.Context) {
	n, err := h.fileService.Delete(c.Request.Context(), middleware.CurrentUser(c).ID, c.Param("id"), c.Param("fileId"))
	if err != nil {
		respondError(c, err, "删除文件")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": "File deleted successfully",
		"deleted": n,
	})
}

// HandleTree 返回目录树：format=json（默认）带可见行，format=text 为树形文本
func (h *FileHandler) HandleTree(c *gin.Context) {
	tree, err := h.fileService.Tree(c.Request.Context(), middleware.CurrentUser(c).ID, c.Param("id"))
	if err != nil {
		respondError(c, err, "构建目录树")
		return
	}

	if c.DefaultQuery("format", "json") == "text" {
		c.String(http.StatusOK, services.FormatTree(tree))
		return
	}

	state := services.ViewState{
		ExpandAll: c.Query("expand_all") == "true",
		Selected:  c.Query("selected"),
		Renaming:  c.Query("renaming"),
	}
	if expanded := c.Query("expanded"); expanded != "" {
		state.Expanded = strings.Split(expanded, ",")
	}
	c.JSON(http.StatusOK, gin.H{
		"tree": tree,
		"rows": services.FlattenTree(tree, state),
	})
}

// HandlePreview 返回组装好的预览文档
func (h *FileHandler) HandlePreview(c *gin.Context) {
	minify := c.Query("minify") == "true"
	doc, err := h.fileService.Preview(c.Request.Context(), middleware.CurrentUser(c).ID, c.Param("id"), minify)
	if err != nil {
		respondError(c, err, "组装预览")
		return
	}

	c.Header("Content-Security-Policy", previewCSP)
	c.Header("X-Content-Type-Options", "nosniff")
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(doc))
}

// HandleArchive 下载项目文件的 ZIP
func (h *FileHandler) HandleArchive(c *gin.Context) {
	userID := middleware.CurrentUser(c).ID
	project, err := h.projectService.Get(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		respondError(c, err, "导出项目")
		return
	}

	var buf bytes.Buffer
	if err := h.fileService.Archive(c.Request.Context(), userID, project.ID, &buf); err != nil {
		respondError(c, err, "导出项目")
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", archiveName(project.Name)))
	c.Data(http.StatusOK, "application/zip", buf.Bytes())
}

// archiveName 由项目名生成安全的下载文件名
func archiveName(name string) string {
	safe := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			return r
		default:
			return '_'
		}
	}, name)
	if strings.Trim(safe, "_.") == "" {
		safe = "project"
	}
	return safe + ".zip"
}

// HandleImportZip 导入上传的 ZIP（表单字段 codeZip）
func (h *FileHandler) HandleImportZip(c *gin.Context) {
	requestID := c.GetString(middleware.RequestIDKey)

	file, err := c.FormFile("codeZip")
	if err != nil {
		logger.Warn("未上传ZIP文件",
			zap.String("request_id", requestID),
			zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "请上传 ZIP 文件"})
		return
	}

	if file.Size > h.config.GetMaxUploadSize() {
		logger.Warn("文件大小超过限制",
			zap.String("request_id", requestID),
			zap.String("file_name", file.Filename),
			zap.Int64("file_size", file.Size),
			zap.Int64("max_size", h.config.GetMaxUploadSize()))
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "文件大小超过限制"})
		return
	}

	src, err := file.Open()
	if err != nil {
		respondError(c, err, "读取上传文件")
		return
	}
	defer src.Close()

	result, err := h.fileService.ImportZip(c.Request.Context(), middleware.CurrentUser(c).ID, c.Param("id"), src, file.Size)
	if err != nil {
		respondError(c, err, "导入ZIP")
		return
	}

	logger.Info("ZIP文件导入成功",
		zap.String("request_id", requestID),
		zap.String("file_name", file.Filename),
		zap.Int("files_count", len(result.Imported)))
	c.JSON(http.StatusOK, result)
}

// HandleImportGithub 导入 GitHub 仓库
func (h *FileHandler) HandleImportGithub(c *gin.Context) {
	var req githubImportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "请提供 GitHub 仓库 URL"})
		return
	}

	result, err := h.fileService.ImportGithub(c.Request.Context(), middleware.CurrentUser(c).ID, c.Param("id"), req.URL, req.Token)
	if err != nil {
		respondError(c, err, "导入GitHub仓库")
		return
	}
	c.JSON(http.StatusOK, result)
}

// HandleEvents 把项目变更事件推送到 websocket
func (h *FileHandler) HandleEvents(c *gin.Context) {
	project, err := h.projectService.Get(c.Request.Context(), middleware.CurrentUser(c).ID, c.Param("id"))
	if err != nil {
		respondError(c, err, "订阅事件")
		return
	}

	conn, err := events.Upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warn("websocket 升级失败",
			zap.String("request_id", c.GetString(middleware.RequestIDKey)),
			zap.Error(err))
		return
	}
	events.Stream(conn, h.hub.Subscribe(project.ID))
}
