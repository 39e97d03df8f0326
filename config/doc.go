// Package config 提供 zaiwen2api 的配置加载。
//
// 配置来源按优先级从低到高依次是内置默认值、YAML 文件、
// 带 ZAIWEN2API_ 前缀的环境变量。嵌套字段用下划线展开，
// 例如 server.http_port 对应 ZAIWEN2API_SERVER_HTTP_PORT。
package config
