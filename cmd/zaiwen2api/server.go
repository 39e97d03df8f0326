package main

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/hanekoo/zaiwen2api/account"
	"github.com/hanekoo/zaiwen2api/api/handlers"
	"github.com/hanekoo/zaiwen2api/config"
	"github.com/hanekoo/zaiwen2api/internal/metrics"
	"github.com/hanekoo/zaiwen2api/internal/server"
	"github.com/hanekoo/zaiwen2api/internal/store"
	"github.com/hanekoo/zaiwen2api/zaiwen"
	"github.com/hanekoo/zaiwen2api/zaiwen/imagegen"
)

// =============================================================================
// 🖥️ Server 结构
// =============================================================================

// Server 是 zaiwen2api 的主服务器
type Server struct {
	cfg    *config.Config
	logger *zap.Logger

	// 服务器管理器
	httpManager    *server.Manager
	metricsManager *server.Manager

	// 核心组件
	db       *gorm.DB
	pool     *account.Pool
	provider *zaiwen.Provider
	images   *imagegen.ImageWorkflow

	// 指标收集器
	metricsCollector *metrics.Collector
}

// NewServer 创建新的服务器实例
func NewServer(cfg *config.Config, logger *zap.Logger) *Server {
	return &Server{
		cfg:    cfg,
		logger: logger,
	}
}

// =============================================================================
// 🚀 启动流程
// =============================================================================

// Start 启动所有服务
func (s *Server) Start() error {
	// 1. 初始化指标收集器
	s.metricsCollector = metrics.NewCollector("zaiwen2api")

	// 2. 初始化凭据池与上游组件
	if err := s.initComponents(); err != nil {
		return fmt.Errorf("failed to init components: %w", err)
	}

	// 3. 启动 HTTP 服务器
	if err := s.startHTTPServer(); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	// 4. 启动 Metrics 服务器
	if err := s.startMetricsServer(); err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}

	s.logger.Info("All servers started",
		zap.Int("http_port", s.cfg.Server.HTTPPort),
		zap.Int("metrics_port", s.cfg.Server.MetricsPort),
	)

	return nil
}

// =============================================================================
// 🔧 初始化方法
// =============================================================================

// initComponents 初始化凭据库、凭据池、聊天与图像组件
func (s *Server) initComponents() error {
	db, err := store.Open(s.cfg.Database.Path, s.logger)
	if err != nil {
		return fmt.Errorf("failed to open credential store: %w", err)
	}
	s.db = db

	s.pool = account.NewPool(db, s.logger)

	// 启动时导入 token 文件，文件不存在时静默跳过
	if s.cfg.Pool.TokenFile != "" {
		if _, statErr := os.Stat(s.cfg.Pool.TokenFile); statErr == nil {
			n, importErr := s.pool.ImportFile(context.Background(), s.cfg.Pool.TokenFile)
			if importErr != nil {
				s.logger.Warn("Token file import failed",
					zap.String("path", s.cfg.Pool.TokenFile),
					zap.Error(importErr))
			} else if n > 0 {
				s.logger.Info("Tokens imported",
					zap.String("path", s.cfg.Pool.TokenFile),
					zap.Int("count", n))
			}
		}
	}

	s.provider = zaiwen.NewProvider(zaiwen.Config{
		BaseURL: s.cfg.Upstream.BaseURL,
		Timeout: s.cfg.Upstream.Timeout,
	}, s.pool, s.metricsCollector, s.logger)

	s.images = imagegen.NewImageWorkflow(imagegen.Config{
		BaseURL:      s.cfg.Upstream.BaseURL,
		PollInterval: s.cfg.Upstream.PollInterval,
		PollTimeout:  s.cfg.Upstream.PollTimeout,
	}, s.pool, s.metricsCollector, s.logger)

	s.logger.Info("Components initialized",
		zap.String("upstream", s.cfg.Upstream.BaseURL))
	return nil
}

// =============================================================================
// 🌐 HTTP 服务器
// =============================================================================

// startHTTPServer 启动 HTTP 服务器
func (s *Server) startHTTPServer() error {
	handler := handlers.NewRouter(s.provider, s.images, s.pool, s.metricsCollector, s.logger)

	serverConfig := server.Config{
		Addr:            fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.HTTPPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		IdleTimeout:     2 * s.cfg.Server.ReadTimeout,
		MaxHeaderBytes:  1 << 20, // 1 MB
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}

	s.httpManager = server.NewManager(handler, serverConfig, s.logger)

	// 启动服务器（非阻塞）
	if err := s.httpManager.Start(); err != nil {
		return err
	}

	s.logger.Info("HTTP server started", zap.Int("port", s.cfg.Server.HTTPPort))
	return nil
}

// =============================================================================
// 📊 Metrics 服务器
// =============================================================================

// startMetricsServer 启动 Metrics 服务器，端口为 0 时跳过
func (s *Server) startMetricsServer() error {
	if s.cfg.Server.MetricsPort == 0 {
		s.logger.Info("Metrics server disabled")
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	serverConfig := server.Config{
		Addr:            fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.MetricsPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}

	s.metricsManager = server.NewManager(mux, serverConfig, s.logger)

	// 启动服务器（非阻塞）
	if err := s.metricsManager.Start(); err != nil {
		return err
	}

	s.logger.Info("Metrics server started", zap.Int("port", s.cfg.Server.MetricsPort))
	return nil
}

// =============================================================================
// 🛑 关闭流程
// =============================================================================

// WaitForShutdown 等待关闭信号并优雅关闭
func (s *Server) WaitForShutdown() {
	if s.httpManager != nil {
		s.httpManager.WaitForShutdown()
	}

	s.Shutdown()
}

// Shutdown 优雅关闭所有服务
func (s *Server) Shutdown() {
	s.logger.Info("Starting graceful shutdown...")

	ctx := context.Background()

	// 1. 关闭 HTTP 服务器
	if s.httpManager != nil {
		if err := s.httpManager.Shutdown(ctx); err != nil {
			s.logger.Error("HTTP server shutdown error", zap.Error(err))
		}
	}

	// 2. 关闭 Metrics 服务器
	if s.metricsManager != nil {
		if err := s.metricsManager.Shutdown(ctx); err != nil {
			s.logger.Error("Metrics server shutdown error", zap.Error(err))
		}
	}

	// 3. 关闭凭据库
	if s.db != nil {
		if err := store.Close(s.db); err != nil {
			s.logger.Error("Credential store close error", zap.Error(err))
		}
	}

	s.logger.Info("Graceful shutdown completed")
}
