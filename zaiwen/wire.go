package zaiwen

import "net/http"

// 后端端点路径（单一固定供应商）
const (
	MessageStreamPath = "/api/v1/ai/message/stream"
	AssetConfigPath   = "/api/v1/asset/config"
	AssetAddPath      = "/api/v1/asset/add"
	DrawTaskPath      = "/api/v1/draw/task"
)

// DefaultBaseURL 后端默认地址。
const DefaultBaseURL = "https://back.zaiwenai.com"

// ApplyBaseHeaders 设置后端要求的固定浏览器头与凭据头。
func ApplyBaseHeaders(req *http.Request, token string) {
	req.Header.Set("Accept", "*/*")
	req.Header.Set("Accept-Language", "zh-CN,zh;q=0.9,en;q=0.8")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Origin", "https://www.zaiwenai.com")
	req.Header.Set("Referer", "https://www.zaiwenai.com/")
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/143.0.0.0 Safari/537.36")
	req.Header.Set("channel", "web.zaiwenai.com")
	if token != "" {
		req.Header.Set("token", token)
	}
}

// BuildMessagePayload 构造 /api/v1/ai/message/stream 的请求体。
// 对话流传 msgType "deepsearch" / online true / draw 空；
// 图像任务传 msgType "draw" / online false / draw 携带比例与参考图。
func BuildMessagePayload(content, model, msgType string, online bool, draw map[string]any) map[string]any {
	if draw == nil {
		draw = map[string]any{}
	}
	return map[string]any{
		"data": map[string]any{
			"content":    content,
			"model":      model,
			"round":      5,
			"type":       msgType,
			"online":     online,
			"file":       map[string]any{},
			"knowledge":  []any{},
			"draw":       draw,
			"suno_input": map[string]any{},
			"video": map[string]any{
				"ratio": "1:1",
				"original_image": map[string]any{
					"image":  map[string]any{},
					"weight": 50,
				},
			},
		},
	}
}
