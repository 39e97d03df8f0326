// =============================================================================
// 📦 zaiwen2api 默认配置
// =============================================================================
// 提供所有配置项的合理默认值
// =============================================================================
package config

import "time"

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Server:   DefaultServerConfig(),
		Database: DefaultDatabaseConfig(),
		Pool:     DefaultPoolConfig(),
		Upstream: DefaultUpstreamConfig(),
		Log:      DefaultLogConfig(),
	}
}

// DefaultServerConfig 返回默认服务配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:        "0.0.0.0",
		HTTPPort:    8000,
		MetricsPort: 9091,
		ReadTimeout: 30 * time.Second,
		// 流式会话最长 3 分钟，写超时要给足余量
		WriteTimeout:    5 * time.Minute,
		ShutdownTimeout: 15 * time.Second,
	}
}

// DefaultDatabaseConfig 返回默认数据库配置
func DefaultDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Path: "accounts.db",
	}
}

// DefaultPoolConfig 返回默认凭据池配置
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		TokenFile: "tokens.txt",
	}
}

// DefaultUpstreamConfig 返回默认上游配置
func DefaultUpstreamConfig() UpstreamConfig {
	return UpstreamConfig{
		BaseURL:      "https://back.zaiwenai.com",
		Timeout:      180 * time.Second,
		PollInterval: 2 * time.Second,
		PollTimeout:  180 * time.Second,
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stdout"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}
