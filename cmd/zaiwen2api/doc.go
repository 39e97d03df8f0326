/*
Package main 提供 zaiwen2api 服务端程序入口。

# 概述

cmd/zaiwen2api 是对外的可执行入口，提供 OpenAI 兼容 HTTP API、
凭据导入、健康检查和版本查询等子命令。程序支持 YAML 配置文件加载、
环境变量覆盖、结构化日志（zap）与 Prometheus 指标采集。

# 子命令

  - serve          启动 HTTP 服务与独立的 Metrics 服务
  - import-tokens  把 token 文件批量导入凭据池
  - health         对运行中的实例做健康探测
  - version        打印构建版本信息

# 端口布局

主 API 服务与 /metrics 分别监听在 server.http_port 与
server.metrics_port 上。metrics_port 为 0 时不启动指标服务。
*/
package main
