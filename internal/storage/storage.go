// Package storage はオブジェクトストレージの抽象化レイヤーを提供します。
package storage

import (
	"context"
	"time"
)

// ObjectStore はバケット単位のバイナリ保存と署名付きURL発行を提供します。
type ObjectStore interface {
	// Put はオブジェクトを保存します。
	Put(ctx context.Context, bucket, key string, data []byte, contentType string) error
	// Get はオブジェクトの内容を取得します。
	Get(ctx context.Context, bucket, key string) ([]byte, error)
	// Remove はオブジェクトを削除します。
	Remove(ctx context.Context, bucket, key string) error
	// Presign は期限付きのダウンロードURLを発行します。
	Presign(ctx context.Context, bucket, key string, expiry time.Duration) (string, error)
}
