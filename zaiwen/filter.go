package zaiwen

import (
	"encoding/json"
	"regexp"
	"strings"
)

// 后端内部记录行的固定模式目录。这些正则贴着当前提示词模板的措辞，
// 供应商改词后会漂移，但在后端给出显式内容类型标记之前没有更结构化
// 的判定方式，因此只匹配已观测到的形态，不做泛化。
var filterPatterns = []*regexp.Regexp{
	// 会话元数据
	regexp.MustCompile(`(?i)^\s*\{'type':\s*'(conversation|user-message|assistant-message)'.*?\}\s*$`),
	// 深度研究开关标记
	regexp.MustCompile(`(?i)^\s*深度研究:\s*(开启|关闭)\s*$`),
	// 模块日志
	regexp.MustCompile(`(?i)^---\s*模块[\d\.]+.*?---\s*$`),
	regexp.MustCompile(`(?i)^输入(问题|关键词).*?[:：].*$`),
	regexp.MustCompile(`(?i)^(网络搜索|重试后).*?(返回|结束).*$`),
	regexp.MustCompile(`(?i)^\s*核心循环.*轮\s*$`),
	// Thinking 过程
	regexp.MustCompile(`(?i)^\s*\*Thinking\.\.\.\*\s*$`),
	regexp.MustCompile(`(?i)^>\s*\*\*.*?\*\*\s*$`),
	regexp.MustCompile(`(?i)^>\s*$`),
	regexp.MustCompile(`(?i)^>\s*I'm\s+(currently|now|struggling|focusing).*$`),
	regexp.MustCompile(`(?i)^>\s*I've\s+(been|moved|decided).*$`),
	regexp.MustCompile(`(?i)^>\s*My\s+(focus|thought|role).*$`),
	regexp.MustCompile(`(?i)^>\s*The\s+(current|goal|lack|constraints).*$`),
	regexp.MustCompile(`(?i)^>\s*This\s+(approach|is|ensures).*$`),
	// 报告策略师模块
	regexp.MustCompile(`(?i)^报告策略师.*$`),
	// HTML 代码块标记
	regexp.MustCompile("(?i)^```html\\s*$"),
	regexp.MustCompile("(?i)^```\\s*$"),
	// 工作流统计
	regexp.MustCompile(`(?i)^工作流总耗时.*秒\s*$`),
	// 详细专业报告标记
	regexp.MustCompile(`(?i)^#\s*详细专业报告\s*$`),
	regexp.MustCompile(`(?i)^更详细的专业报告见下文。?\s*$`),
	// 最终答案输出标记
	regexp.MustCompile(`(?i)^=+\s*最终答案输出\s*=+\s*$`),
	// 计划获取结果行
	regexp.MustCompile(`(?i)^.*计划最多获取\s*\d+\s*个结果.*$`),
}

// 详细报告章节的起始标记
var detailedReportMarkers = []string{
	"# 详细专业报告",
	"## 1. 执行摘要",
}

// HTML 内容检测
var htmlPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)<!DOCTYPE\s+html>`),
	regexp.MustCompile(`(?i)<html\s+lang=`),
	regexp.MustCompile(`(?i)<head>`),
	regexp.MustCompile(`(?i)<style>`),
	regexp.MustCompile(`(?i)<body>`),
	regexp.MustCompile(`(?i)</html>`),
}

// FilterOptions 控制可选章节的取舍。
type FilterOptions struct {
	// SuppressReport 为 true 时丢弃详细专业报告章节
	SuppressReport bool
	// SuppressHTML 为 true 时丢弃 HTML 代码块
	SuppressHTML bool
}

// OutputFilter 按行分类的流式文本过滤器。
//
// 每个流持有独立实例：状态包括是否处于详细报告 / HTML 块 / 推理块，
// 以及尚未换行收尾的残行缓冲。不跨流共享，也不持久化。
type OutputFilter struct {
	opts FilterOptions

	inReport    bool
	inHTML      bool
	inReasoning bool
	partial     string
}

// NewOutputFilter 创建过滤器。
func NewOutputFilter(opts FilterOptions) *OutputFilter {
	return &OutputFilter{opts: opts}
}

// FilterForMode 返回按输出模式配置好的过滤器。
// html 模式不走行过滤（由调用方做围栏提取），返回 nil。
func FilterForMode(mode OutputMode) *OutputFilter {
	switch mode {
	case ModeReport:
		return NewOutputFilter(FilterOptions{SuppressReport: false, SuppressHTML: true})
	case ModeHTML:
		return nil
	default:
		return NewOutputFilter(FilterOptions{SuppressReport: true, SuppressHTML: true})
	}
}

// Reset 清空全部状态。
func (f *OutputFilter) Reset() {
	f.inReport = false
	f.inHTML = false
	f.inReasoning = false
	f.partial = ""
}

// isJSONMetadata 检测会话元数据行：type 属于已知集合，
// 或同时携带 conversation_id 与 data 字段。
func isJSONMetadata(line string) bool {
	s := strings.TrimSpace(line)
	if !strings.HasPrefix(s, "{") || !strings.HasSuffix(s, "}") {
		return false
	}
	var data map[string]json.RawMessage
	if err := json.Unmarshal([]byte(s), &data); err != nil {
		return false
	}
	if raw, ok := data["type"]; ok {
		var t string
		if json.Unmarshal(raw, &t) == nil {
			switch t {
			case "conversation", "user-message", "assistant-message":
				return true
			}
		}
	}
	if _, ok := data["conversation_id"]; ok {
		if _, ok := data["data"]; ok {
			return true
		}
	}
	return false
}

// shouldDropLine 单行过滤判定。空行永远保留。
func (f *OutputFilter) shouldDropLine(line string) bool {
	s := strings.TrimSpace(line)
	if s == "" {
		return false
	}
	if isJSONMetadata(s) {
		return true
	}
	if f.opts.SuppressHTML {
		for _, p := range htmlPatterns {
			if p.MatchString(s) {
				return true
			}
		}
	}
	for _, p := range filterPatterns {
		if p.MatchString(s) {
			return true
		}
	}
	return false
}

type sectionTransition int

const (
	transitionNone sectionTransition = iota
	transitionReport
	transitionReasoning
	transitionHTML
	transitionBlockEnd
)

// detectTransition 识别章节切换。
func (f *OutputFilter) detectTransition(line string) sectionTransition {
	s := strings.TrimSpace(line)

	for _, marker := range detailedReportMarkers {
		if strings.HasPrefix(s, marker) {
			return transitionReport
		}
	}
	if s == "*Thinking...*" {
		return transitionReasoning
	}
	if s == "```html" {
		return transitionHTML
	}
	if s == "```" && (f.inHTML || f.inReasoning) {
		return transitionBlockEnd
	}
	return transitionNone
}

// keepLine 处理一个完整行，返回是否保留。
func (f *OutputFilter) keepLine(line string) bool {
	switch f.detectTransition(line) {
	case transitionReport:
		if f.opts.SuppressReport {
			f.inReport = true
			return false
		}
	case transitionReasoning:
		f.inReasoning = true
		return false
	case transitionHTML:
		f.inHTML = true
		return false
	case transitionBlockEnd:
		f.inHTML = false
		f.inReasoning = false
		return false
	}

	if f.inReport && f.opts.SuppressReport {
		return false
	}
	if f.inHTML && f.opts.SuppressHTML {
		return false
	}
	if f.inReasoning {
		s := strings.TrimSpace(line)
		if strings.HasPrefix(s, ">") {
			return false
		}
		// 第一个非引用的非空行结束推理块，行本身照常判定
		if s != "" {
			f.inReasoning = false
		}
	}

	return !f.shouldDropLine(line)
}

// FilterText 批量过滤：逐行判定后用换行重连幸存行。
// 状态跨调用保留，同一个流的多次调用共享章节状态。
func (f *OutputFilter) FilterText(content string) string {
	if content == "" {
		return content
	}
	lines := strings.Split(content, "\n")
	kept := make([]string, 0, len(lines))
	for _, line := range lines {
		if f.keepLine(line) {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, "\n")
}

// FilterChunk 流式过滤：拼入增量文本，只处理已经换行收尾的完整行，
// 末尾残行留在缓冲里等待后续输入或 Flush。
func (f *OutputFilter) FilterChunk(chunk string) string {
	f.partial += chunk

	idx := strings.LastIndexByte(f.partial, '\n')
	if idx < 0 {
		return ""
	}

	complete := f.partial[:idx]
	f.partial = f.partial[idx+1:]

	var out strings.Builder
	for _, line := range strings.Split(complete, "\n") {
		if f.keepLine(line) {
			out.WriteString(line)
			out.WriteByte('\n')
		}
	}
	return out.String()
}

// Flush 把残行按同样的逐行逻辑冲出去，流结束时调用。
func (f *OutputFilter) Flush() string {
	if f.partial == "" {
		return ""
	}
	line := f.partial
	f.partial = ""
	if f.keepLine(line) {
		return line
	}
	return ""
}
