package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/hibiken/asynq"

	"github.com/yourusername/image-forge/internal/config"
	"github.com/yourusername/image-forge/internal/images"
)

const (
	// TaskTypeProcessImage は画像変換タスクのタスク名です。
	TaskTypeProcessImage = "process-image"

	queueImages = "images"
)

// Processor は1回の配送に対して変換パイプラインを実行します。
type Processor interface {
	Process(ctx context.Context, rawKey string) (*images.Result, error)
}

// TaskPayload は画像変換タスクのペイロードです。
type TaskPayload struct {
	JobID  string `json:"jobId"`
	RawKey string `json:"rawKey"`
}

// Manager はタスクの投入とワーカー側の実行を担います。
// リトライとバックオフの制御はすべて Asynq 側の責務です。
type Manager struct {
	cfg       *config.Config
	client    *asynq.Client
	server    *asynq.Server
	store     Store
	processor Processor
	logger    *log.Logger
}

// NewManager は Manager を初期化します。
func NewManager(cfg *config.Config, processor Processor, store Store, logger *log.Logger) (*Manager, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	if processor == nil {
		return nil, errors.New("processor is nil")
	}
	if store == nil {
		return nil, errors.New("store is nil")
	}
	opt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}

	client := asynq.NewClient(opt)
	server := asynq.NewServer(
		opt,
		asynq.Config{
			Concurrency: cfg.QueueConcurrency,
			Queues: map[string]int{
				queueImages: 1,
			},
		},
	)

	return &Manager{
		cfg:       cfg,
		client:    client,
		server:    server,
		store:     store,
		processor: processor,
		logger:    logger,
	}, nil
}

// StartWorkers は Asynq サーバーをバックグラウンドで起動します。
func (m *Manager) StartWorkers() {
	go func() {
		if err := m.server.Run(asynq.HandlerFunc(m.dispatch)); err != nil && err != asynq.ErrServerClosed {
			if m.logger != nil {
				m.logger.Printf("asynq server stopped with error: %v", err)
			} else {
				log.Printf("asynq server stopped with error: %v", err)
			}
		}
	}()
}

// Shutdown はサーバーとクライアントを閉じます。
func (m *Manager) Shutdown(ctx context.Context) error {
	m.server.Shutdown()
	m.client.Close()
	return nil
}

// Enqueue はステータスレコードを pending で初期化し、変換タスクをキューに投入します。
// いずれかの手順が失敗した場合、受付全体が失敗として呼び出し側に伝搬します。
func (m *Manager) Enqueue(ctx context.Context, payload *TaskPayload) error {
	if payload == nil {
		return fmt.Errorf("payload is nil")
	}
	if payload.JobID == "" {
		return fmt.Errorf("payload.JobID is required")
	}
	if payload.RawKey == "" {
		return fmt.Errorf("payload.RawKey is required")
	}

	if err := m.store.Create(ctx, payload.JobID); err != nil {
		return err
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	task := asynq.NewTask(TaskTypeProcessImage, body, asynq.Queue(queueImages))
	if _, err := m.client.EnqueueContext(ctx, task, asynq.MaxRetry(m.cfg.TaskMaxRetry)); err != nil {
		// pending のまま照会可能なレコードを残さない
		if delErr := m.store.Delete(ctx, payload.JobID); delErr != nil && m.logger != nil {
			m.logger.Printf("failed to roll back status record job=%s: %v", payload.JobID, delErr)
		}
		return err
	}
	return nil
}

// GetRecord はジョブ情報を取得します。
func (m *Manager) GetRecord(ctx context.Context, jobID string) (*Record, error) {
	return m.store.Get(ctx, jobID)
}

// dispatch はタスク名に応じてハンドラーを振り分けます。
// 未知のタスク名はデータ起因の失敗ではなくプログラミングエラーであり、再試行しません。
func (m *Manager) dispatch(ctx context.Context, task *asynq.Task) error {
	switch task.Type() {
	case TaskTypeProcessImage:
		return m.handleProcessImage(ctx, task)
	default:
		return fmt.Errorf("unknown task type %q: %w", task.Type(), asynq.SkipRetry)
	}
}

func (m *Manager) handleProcessImage(ctx context.Context, task *asynq.Task) error {
	var payload TaskPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal task payload: %v: %w", err, asynq.SkipRetry)
	}
	if payload.JobID == "" || payload.RawKey == "" {
		return fmt.Errorf("task payload missing jobId or rawKey: %w", asynq.SkipRetry)
	}

	if err := m.store.MarkProcessing(ctx, payload.JobID); err != nil {
		return fmt.Errorf("mark processing job=%s: %w", payload.JobID, err)
	}

	result, err := m.processor.Process(ctx, payload.RawKey)
	if err != nil {
		// 失敗は必ずステータスに記録してから伝搬し、再配送は Asynq のポリシーに委ねる
		if markErr := m.store.MarkFailed(ctx, payload.JobID, failureMessage(err)); markErr != nil && m.logger != nil {
			m.logger.Printf("failed to mark job failed job=%s: %v", payload.JobID, markErr)
		}
		return fmt.Errorf("process image job=%s: %w", payload.JobID, err)
	}

	if err := m.store.MarkCompleted(ctx, payload.JobID, result.URLs()); err != nil {
		return fmt.Errorf("mark completed job=%s: %w", payload.JobID, err)
	}

	if m.logger != nil {
		m.logger.Printf("job completed job=%s rawKey=%s", payload.JobID, payload.RawKey)
	}
	return nil
}

// failureMessage はステータスレコードに残すエラーメッセージを組み立てます。
func failureMessage(err error) string {
	var apiErr *images.Error
	if errors.As(err, &apiErr) {
		return apiErr.Error()
	}
	return err.Error()
}
