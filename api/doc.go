// Package api 定义对外的 OpenAI 兼容请求与响应形状。
//
// 对话消息的 content 字段兼容两种格式：纯字符串，
// 或由 text / image_url 片段组成的多模态数组。
package api
