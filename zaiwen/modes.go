package zaiwen

import "strings"

// OutputMode 控制后端输出的哪些章节到达调用方、以及流何时提前终止。
type OutputMode string

const (
	ModeConcise OutputMode = "concise" // 简要答案，检测到详细报告标记即停
	ModeReport  OutputMode = "report"  // 专业报告，过滤 HTML，跑到自然结束
	ModeHTML    OutputMode = "html"    // 只提取 HTML 代码块，提取完即停
)

// 模型名中的输出模式后缀
const (
	suffixConcise = "(简要答案)"
	suffixReport  = "(专业报告)"
	suffixHTML    = "(HTML)"
)

// ParseModelName 解析模型名，返回基础模型与输出模式。
// 无后缀时默认简要答案模式。
//
//	"Gemini-3.0-Flash"            -> ("Gemini-3.0-Flash", ModeConcise)
//	"Gemini-3.0-Flash (专业报告)" -> ("Gemini-3.0-Flash", ModeReport)
//	"Gemini-3.0-Flash (HTML)"     -> ("Gemini-3.0-Flash", ModeHTML)
func ParseModelName(model string) (string, OutputMode) {
	model = strings.TrimSpace(model)

	switch {
	case strings.HasSuffix(model, suffixConcise):
		return strings.TrimSpace(strings.TrimSuffix(model, suffixConcise)), ModeConcise
	case strings.HasSuffix(model, suffixReport):
		return strings.TrimSpace(strings.TrimSuffix(model, suffixReport)), ModeReport
	case strings.HasSuffix(model, suffixHTML):
		return strings.TrimSpace(strings.TrimSuffix(model, suffixHTML)), ModeHTML
	}
	return model, ModeConcise
}
