// Package router wires the HTTP handlers into a gin engine.
package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-chi/cors"

	"stelgent-web/internal/application"
	"stelgent-web/internal/events"
	"stelgent-web/internal/interfaces/http/handlers"
	"stelgent-web/internal/interfaces/http/middleware"
	"stelgent-web/pkg/config"
)

// Deps 是路由需要的服务
type Deps struct {
	Config   *config.Config
	Users    *application.UserService
	Projects *application.ProjectService
	Files    *application.FileService
	Hub      *events.Hub
	DB       handlers.Pinger
}

// New 创建 HTTP 处理器：gin 路由外层包一层 CORS
func New(d Deps) http.Handler {
	engine := gin.New()
	engine.MaxMultipartMemory = d.Config.GetMaxUploadSize()
	engine.Use(middleware.RequestID(), middleware.Logger(), middleware.Recovery())

	authHandler := handlers.NewAuthHandler(d.Users)
	projectHandler := handlers.NewProjectHandler(d.Projects)
	fileHandler := handlers.NewFileHandler(d.Files, d.Projects, d.Hub, d.Config)
	healthHandler := handlers.NewHealthHandler(d.DB)

	engine.GET("/", healthHandler.HandleRoot)
	engine.GET("/health", healthHandler.HandleHealth)

	api := engine.Group("/api")
	api.POST("/auth/wallet/connect", authHandler.HandleWalletConnect)
	api.POST("/auth/wallet/verify", authHandler.HandleWalletVerify)

	// websocket 连接只能通过 ?token= 传递公钥
	api.GET("/projects/:id/events", middleware.Auth(d.Users, true), fileHandler.HandleEvents)

	authed := api.Group("", middleware.Auth(d.Users, false))
	authed.GET("/auth/me", authHandler.HandleMe)
	authed.PUT("/settings/openai", authHandler.HandleOpenAISettings)

	authed.POST("/projects", projectHandler.HandleCreate)
	authed.GET("/projects", projectHandler.HandleList)
	authed.GET("/projects/:id", projectHandler.HandleGet)
	authed.DELETE("/projects/:id", projectHandler.HandleDelete)

	authed.GET("/projects/:id/files", fileHandler.HandleList)
	authed.POST("/projects/:id/files", fileHandler.HandleCreate)
	authed.PUT("/projects/:id/files/:fileId", fileHandler.HandleUpdate)
	authed.DELETE("/projects/:id/files/:fileId", fileHandler.HandleDelete)

	authed.GET("/projects/:id/tree", fileHandler.HandleTree)
	authed.GET("/projects/:id/preview", fileHandler.HandlePreview)
	authed.GET("/projects/:id/archive", fileHandler.HandleArchive)
	authed.POST("/projects/:id/import", fileHandler.HandleImportZip)
	authed.POST("/projects/:id/import/github", fileHandler.HandleImportGithub)

	return cors.Handler(cors.Options{
		AllowedOrigins:   d.Config.Server.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Public-Key", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID", "Content-Disposition"},
		AllowCredentials: false,
		MaxAge:           300,
	})(engine)
}
