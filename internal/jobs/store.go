package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	jobKeyPrefix = "job:"
)

// Store はジョブ状態の読み書き契約です。
// 書き込みは常に last-write-wins で、後から来た書き込みが前の書き込みを上書きします。
type Store interface {
	// Get はジョブ情報を取得します。レコードが存在しない場合は (nil, nil) を返します。
	Get(ctx context.Context, jobID string) (*Record, error)
	// Create はジョブレコードを pending 状態で新規作成します。
	Create(ctx context.Context, jobID string) error
	// MarkProcessing はジョブを processing 状態にします（再配送時の再入ポイント）。
	MarkProcessing(ctx context.Context, jobID string) error
	// MarkCompleted はジョブを completed 状態にし、成果URLを保存します。
	MarkCompleted(ctx context.Context, jobID string, urls []string) error
	// MarkFailed はジョブを failed 状態にし、エラーメッセージを保存します。
	MarkFailed(ctx context.Context, jobID string, message string) error
	// Delete はジョブレコードを削除します。受付失敗時の巻き戻しに使用します。
	Delete(ctx context.Context, jobID string) error
}

// RedisStore はジョブ状態を Redis に保存する Store 実装です。
type RedisStore struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisStore は RedisStore を作成します。ttl が 0 の場合レコードは無期限に保持されます。
func NewRedisStore(rdb *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{
		rdb: rdb,
		ttl: ttl,
	}
}

// Get はジョブ情報を取得します。
func (s *RedisStore) Get(ctx context.Context, jobID string) (*Record, error) {
	if jobID == "" {
		return nil, fmt.Errorf("jobID is required")
	}
	data, err := s.rdb.Get(ctx, jobKey(jobID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}
	var record Record
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, err
	}
	return &record, nil
}

// Create はジョブレコードを pending 状態で新規作成します。
func (s *RedisStore) Create(ctx context.Context, jobID string) error {
	if jobID == "" {
		return fmt.Errorf("jobID is required")
	}
	now := time.Now().UTC()
	return s.write(ctx, &Record{
		JobID:     jobID,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	})
}

// MarkProcessing はジョブを processing 状態にします。
// 再配送された試行では終端状態を上書きし、前回の結果は破棄されます。
func (s *RedisStore) MarkProcessing(ctx context.Context, jobID string) error {
	return s.transition(ctx, jobID, func(record *Record) {
		record.Status = StatusProcessing
		record.Result = nil
	})
}

// MarkCompleted はジョブを completed 状態にし、成果URLを保存します。
func (s *RedisStore) MarkCompleted(ctx context.Context, jobID string, urls []string) error {
	return s.transition(ctx, jobID, func(record *Record) {
		record.Status = StatusCompleted
		record.Result = &ResultInfo{URLs: urls}
	})
}

// MarkFailed はジョブを failed 状態にし、エラーメッセージを保存します。
func (s *RedisStore) MarkFailed(ctx context.Context, jobID string, message string) error {
	return s.transition(ctx, jobID, func(record *Record) {
		record.Status = StatusFailed
		record.Result = &ResultInfo{Error: message}
	})
}

// Delete はジョブレコードを削除します。
func (s *RedisStore) Delete(ctx context.Context, jobID string) error {
	if jobID == "" {
		return fmt.Errorf("jobID is required")
	}
	return s.rdb.Del(ctx, jobKey(jobID)).Err()
}

// transition は現在のレコードを読み出して変更を適用し、無条件に書き戻します。
// 配送は at-least-once を前提としており、CAS は行いません。
func (s *RedisStore) transition(ctx context.Context, jobID string, mutate func(*Record)) error {
	if jobID == "" {
		return fmt.Errorf("jobID is required")
	}
	record, err := s.Get(ctx, jobID)
	if err != nil {
		return err
	}
	if record == nil {
		// レコードがTTLで失効した後に再配送された場合は作り直す
		record = &Record{
			JobID:     jobID,
			CreatedAt: time.Now().UTC(),
		}
	}
	mutate(record)
	record.UpdatedAt = time.Now().UTC()
	return s.write(ctx, record)
}

func (s *RedisStore) write(ctx context.Context, record *Record) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, jobKey(record.JobID), payload, s.ttl).Err()
}

func jobKey(id string) string {
	return jobKeyPrefix + id
}
