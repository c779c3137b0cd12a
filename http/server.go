// Package http 提供租车定价 API 服务
package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Server HTTP服务器
type Server struct {
	server  *http.Server
	config  ServerConfig
	logger  *zap.Logger
	streams context.CancelFunc
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Port           int
	Timeout        time.Duration
	AllowedOrigins []string
	MaxBodyBytes   int64
}

func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Port:           4000,
		Timeout:        30 * time.Second,
		AllowedOrigins: []string{"*"},
		MaxBodyBytes:   1 << 20,
	}
}

func NewServer(config ServerConfig, handlers *Handlers, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	streamCtx, cancel := context.WithCancel(context.Background())

	mux := http.NewServeMux()
	RegisterHandlers(mux, handlers)
	RegisterStream(mux, NewPredictionStream(streamCtx, handlers, config.AllowedOrigins, config.MaxBodyBytes))

	// 创建中间件链，Gzip 最内层
	chain := Chain(
		LoggerMiddleware(logger),
		RecoveryMiddleware(logger),
		SecurityHeadersMiddleware,
		CORSMiddleware(config.AllowedOrigins),
		TimeoutMiddleware(config.Timeout),
		RequestSizeMiddleware(config.MaxBodyBytes),
		GzipMiddleware,
	)

	return &Server{
		server: &http.Server{
			Addr:              fmt.Sprintf(":%d", config.Port),
			Handler:           chain(mux),
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       config.Timeout,
			WriteTimeout:      config.Timeout + 5*time.Second,
			IdleTimeout:       120 * time.Second,
		},
		config:  config,
		logger:  logger,
		streams: cancel,
	}
}

// Start 启动服务器，阻塞直到 Stop 被调用
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server",
		zap.String("addr", s.server.Addr),
		zap.String("stream", "ws://localhost"+s.server.Addr+"/ws/predict"),
	)

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// Stop 关闭预测流并优雅关闭服务器
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s.logger.Info("shutting down HTTP server")
	s.streams()

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	return nil
}

func (s *Server) Addr() string {
	return s.server.Addr
}

// Handler 返回包装了中间件的处理器
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}
