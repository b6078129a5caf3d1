package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"stelgent-web/internal/application"
	"stelgent-web/internal/domain/services"
	"stelgent-web/internal/events"
	"stelgent-web/internal/infrastructure/github"
	"stelgent-web/internal/infrastructure/sqlite"
	"stelgent-web/internal/interfaces/http/router"
	"stelgent-web/pkg/config"
	"stelgent-web/pkg/logger"
)

func main() {
	configPath := flag.String("config", envOr("STELGENT_CONFIG", "config/config.yaml"), "配置文件路径")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "stelgent: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	if err := config.Load(configPath); err != nil {
		return fmt.Errorf("加载配置失败: %w", err)
	}
	cfg := config.Get()

	if err := logger.Init(cfg.GetLogLevel(), cfg.GetLogOutputPath()); err != nil {
		return fmt.Errorf("初始化日志失败: %w", err)
	}
	defer logger.Sync()

	if cfg.GetLogLevel() != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	store, err := sqlite.Open(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer store.Close()

	hub := events.NewHub(events.DefaultBuffer)
	defer hub.Close()

	processor := services.NewFileProcessor(cfg)
	assembler := services.NewPreviewAssembler(services.PreviewOptions{
		Lang:              cfg.Preview.Lang,
		Title:             cfg.Preview.Title,
		ScriptExcludeDirs: cfg.Preview.ScriptExcludeDirs,
	})
	githubClient := github.NewClient(cfg, processor)

	projects := application.NewProjectService(store, hub)
	handler := router.New(router.Deps{
		Config:   cfg,
		Users:    application.NewUserService(store),
		Projects: projects,
		Files:    application.NewFileService(store, store, processor, assembler, githubClient, hub),
		Hub:      hub,
		DB:       store,
	})

	srv := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("启动服务",
			zap.String("listen_addr", cfg.Server.ListenAddr),
			zap.String("database", store.Path()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("启动 HTTP 服务失败: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("正在关闭服务")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.GetShutdownTimeout())
		defer cancel()
		// websocket 连接已被劫持，Shutdown 不会等待它们，先关闭 hub 让推送循环退出
		hub.Close()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("服务异常退出", zap.Error(err))
		return err
	}
	logger.Info("服务已关闭")
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
