package zaiwen

// 支持的基础对话模型
var ChatBaseModels = []string{
	"Gemini-3.0-Flash",
	"GPT-5.2-Instant",
	"gemini_2_5_flash",
	"gemini_2_5_pro",
	"Grok-4.1-Fast-Non-Reasoning",
	"Grok-4-Fast-Reasoning",
	"claude-sonnet-4",
}

// 对话模型的输出模式后缀（空串 = 默认简要答案）
var chatModeSuffixes = []string{
	"",
	" (简要答案)",
	" (专业报告)",
	" (HTML)",
}

// 图像模型与比例后缀（空串 = 默认 1:1）
var (
	ImageBaseModels = []string{
		"Nano-Banana",
		"FLUX-2-Pro",
	}
	imageRatioSuffixes = []string{
		"",
		" (1:1)",
		" (4:3)",
		" (3:4)",
		" (16:9)",
		" (9:16)",
		" (1:2)",
		" (3:2)",
		" (2:3)",
	}
)

// 模型目录固定 created 时间：2024-01-01 00:00:00 UTC
const modelCreatedAt = 1704067200

// Model 模型目录条目，OpenAI /v1/models 兼容形状。
type Model struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	OwnedBy string `json:"owned_by"`
	Type    string `json:"type"`
}

// ListModels 合成完整模型目录：对话模型 × 输出模式后缀，
// 图像模型 × 比例后缀。纯本地枚举，不访问后端。
func ListModels() []Model {
	models := make([]Model, 0,
		len(ChatBaseModels)*len(chatModeSuffixes)+len(ImageBaseModels)*len(imageRatioSuffixes))

	for _, base := range ChatBaseModels {
		for _, suffix := range chatModeSuffixes {
			models = append(models, Model{
				ID:      base + suffix,
				Object:  "model",
				Created: modelCreatedAt,
				OwnedBy: "zaiwenai",
				Type:    "chat",
			})
		}
	}
	for _, base := range ImageBaseModels {
		for _, suffix := range imageRatioSuffixes {
			models = append(models, Model{
				ID:      base + suffix,
				Object:  "model",
				Created: modelCreatedAt,
				OwnedBy: "zaiwenai",
				Type:    "image",
			})
		}
	}
	return models
}

// IsImageModel 判断模型名是否属于图像生成模型。
func IsImageModel(model string) bool {
	for _, prefix := range ImageBaseModels {
		if len(model) >= len(prefix) && model[:len(prefix)] == prefix {
			return true
		}
	}
	return false
}
