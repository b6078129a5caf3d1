package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"stelgent-web/internal/application"
	"stelgent-web/internal/interfaces/http/middleware"
)

// ProjectHandler 项目增删查
type ProjectHandler struct {
	projectService *application.ProjectService
}

// NewProjectHandler 创建项目处理器
func NewProjectHandler(projectService *application.ProjectService) *ProjectHandler {
	return &ProjectHandler{projectService: projectService}
}

type createProjectRequest struct {
	Name string `json:"name"`
}

// HandleCreate 创建项目
func (h *ProjectHandler) HandleCreate(c *gin.Context) {
	var req createProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	project, err := h.projectService.Create(c.Request.Context(), middleware.CurrentUser(c).ID, req.Name)
	if err != nil {
		respondError(c, err, "创建项目")
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"message": "Project created successfully",
		"project": project,
	})
}

// HandleList 列出当前用户的项目
func (h *ProjectHandler) HandleList(c *gin.Context) {
	projects, err := h.projectService.List(c.Request.Context(), middleware.CurrentUser(c).ID)
	if err != nil {
		respondError(c, err, "查询项目")
		return
	}
	c.JSON(http.StatusOK, gin.H{"projects": projects})
}

// HandleGet 查询单个项目
func (h *ProjectHandler) HandleGet(c *gin.Context) {
	project, err := h.projectService.Get(c.Request.Context(), middleware.CurrentUser(c).ID, c.Param("id"))
	if err != nil {
		respondError(c, err, "查询项目")
		return
	}
	c.JSON(http.StatusOK, gin.H{"project": project})
}

// HandleDelete 删除项目及其文件
func (h *ProjectHandler) HandleDelete(c *gin.Context) {
	if err := h.projectService.Delete(c.Request.Context(), middleware.CurrentUser(c).ID, c.Param("id")); err != nil {
		respondError(c, err, "删除项目")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Project deleted successfully"})
}
