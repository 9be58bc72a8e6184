// Package images は画像アセットの受付と派生画像の生成機能を提供します。
package images

// Result は変換パイプラインの成果を表します。
type Result struct {
	ProcessedURL string `json:"processedUrl"`
	ThumbnailURL string `json:"thumbnailUrl"`
}

// URLs は成果URLを固定順（processed, thumbnail の順）で返します。
func (r *Result) URLs() []string {
	return []string{r.ProcessedURL, r.ThumbnailURL}
}

// Submission は受け付けたアップロードの識別情報です。
type Submission struct {
	JobID  string `json:"jobId"`
	RawKey string `json:"rawKey"`
}

// エラーコード定義。HTTPレイヤーとステータスレコードの両方で使用します。
const (
	CodeInvalidInput    = "INVALID_INPUT"
	CodeEmptyAsset      = "EMPTY_ASSET"
	CodeStorageError    = "STORAGE_ERROR"
	CodeTransformFailed = "TRANSFORM_FAILED"
)

// Error はコード付きのドメインエラーです。
type Error struct {
	Code    string
	Message string
	Cause   error
}

// Error は error インターフェースを実装します。
func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

// Unwrap はラップされた原因エラーを返します。
func (e *Error) Unwrap() error {
	return e.Cause
}

func newError(code, message string, cause error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}
