package zaiwen

// 统一的上游错误码，用于对齐 HTTP 状态与重试策略。
type ErrorCode string

const (
	ErrNoCredential      ErrorCode = "ZW_NO_CREDENTIAL"      // 凭据池耗尽
	ErrUpstreamRejected  ErrorCode = "ZW_UPSTREAM_REJECTED"  // 上游 401/403，凭据作废
	ErrUpstreamError     ErrorCode = "ZW_UPSTREAM_ERROR"     // 其它非 200 或网络错误
	ErrGenerationFailed  ErrorCode = "ZW_GENERATION_FAILED"  // 生成任务终态失败
	ErrGenerationTimeout ErrorCode = "ZW_GENERATION_TIMEOUT" // 轮询超出硬性截止时间
)

type Error struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	HTTPStatus int       `json:"http_status"`
	Retryable  bool      `json:"retryable"`
}

func (e *Error) Error() string { return e.Message }
