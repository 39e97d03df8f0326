// Package imagegen 实现在问图像生成链路：参考图上传、任务提交与轮询。
package imagegen

import (
	"regexp"
	"strings"
)

// vendorModels 把对外模型名映射为上游内部模型名。
var vendorModels = map[string]string{
	"Nano-Banana": "poe_model_Nano-Banana",
	"FLUX-2-Pro":  "poe_model_FLUX-2-Pro",
}

// AspectRatios 是上游接受的全部画幅比例。
var AspectRatios = []string{"1:1", "4:3", "3:4", "16:9", "9:16", "1:2", "3:2", "2:3"}

// sizeRatios 把 OpenAI 风格的 size 参数换算成画幅比例。
var sizeRatios = map[string]string{
	"1024x1024": "1:1",
	"1024x768":  "4:3",
	"768x1024":  "3:4",
	"1920x1080": "16:9",
	"1080x1920": "9:16",
	"512x1024":  "1:2",
	"1024x512":  "2:1",
	"1536x1024": "3:2",
	"1024x1536": "2:3",
}

const (
	DefaultRatio    = "1:1"
	DefaultModel    = "FLUX-2-Pro"
	ReferenceWeight = 50
)

var ratioSuffixRe = regexp.MustCompile(`^(.+?)\s*\((\d+:\d+)\)$`)

// ParseModelRatio 从模型名中拆出基础模型与画幅比例。
// "FLUX-2-Pro (16:9)" 解析为 ("FLUX-2-Pro", "16:9")；
// 不认识的比例回落到默认值。
func ParseModelRatio(model string) (string, string) {
	model = strings.TrimSpace(model)
	if m := ratioSuffixRe.FindStringSubmatch(model); m != nil {
		base, ratio := strings.TrimSpace(m[1]), m[2]
		for _, r := range AspectRatios {
			if r == ratio {
				return base, ratio
			}
		}
		return base, DefaultRatio
	}
	return model, DefaultRatio
}

// VendorModel 把对外模型名换成上游内部模型名。
// 已经是内部格式的原样返回，部分匹配兜底，最终回落到默认模型。
func VendorModel(model string) string {
	if internal, ok := vendorModels[model]; ok {
		return internal
	}
	if strings.HasPrefix(model, "poe_model_") {
		return model
	}
	lower := strings.ToLower(model)
	for friendly, internal := range vendorModels {
		if strings.Contains(lower, strings.ToLower(friendly)) {
			return internal
		}
	}
	return vendorModels[DefaultModel]
}

// SizeToRatio 把 "1024x768" 之类的尺寸换算成画幅比例，未知尺寸用默认值。
func SizeToRatio(size string) string {
	if r, ok := sizeRatios[size]; ok {
		return r
	}
	return DefaultRatio
}

// AssetHandle 是上传完成后上游返回的资产句柄。
type AssetHandle struct {
	ID  string
	URL string
}
