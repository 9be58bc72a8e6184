package jobs

import "time"

// Status はジョブの実行状態を表します。
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// ResultInfo はジョブ終了時の結果を保持します。
// 成功時は URLs のみ、失敗時は Error のみが設定されます。
type ResultInfo struct {
	URLs  []string `json:"urls,omitempty"`
	Error string   `json:"error,omitempty"`
}

// Record はジョブの現在状態を表します。
// Result は status が completed または failed のときのみ存在します。
type Record struct {
	JobID     string      `json:"jobId"`
	Status    Status      `json:"status"`
	Result    *ResultInfo `json:"result,omitempty"`
	CreatedAt time.Time   `json:"createdAt"`
	UpdatedAt time.Time   `json:"updatedAt"`
}
