// Package config は環境変数から設定を読み込み、アプリケーション全体で使用する設定を提供します。
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config はアプリケーションの設定を保持する構造体です。
type Config struct {
	// サーバー設定
	Port    string // APIサーバーのポート番号
	GinMode string // Ginの実行モード (debug, release, test)

	// CORS設定
	CORSAllowedOrigins string // CORS許可オリジン（カンマ区切り）

	// ファイル制限
	MaxFileSize int64 // アップロード1件の最大サイズ（バイト）

	// ジョブ/キュー設定
	RedisURL         string // ステータスストア兼Asynq用Redis接続URL
	QueueConcurrency int    // ワーカーの同時実行数
	TaskMaxRetry     int    // タスクの最大リトライ回数（再配送はキュー側が管理）
	JobExpireHours   int    // ジョブレコードの有効期限（時間、0で無期限）

	// オブジェクトストレージ設定
	MinioEndpoint   string // MinIO/S3互換エンドポイント
	MinioAccessKey  string // アクセスキー
	MinioSecretKey  string // シークレットキー
	MinioUseSSL     bool   // TLS接続を使用するか
	MinioRegion     string // リージョン（省略可）
	RawBucket       string // 元画像を保存するバケット名
	ProcessedBucket string // 生成画像を保存するバケット名

	// 画像処理設定
	ProcessedMaxWidth  int // processed版の最大幅
	ProcessedMaxHeight int // processed版の最大高さ
	ThumbnailSize      int // サムネイルの一辺（正方形クロップ）
	JPEGQuality        int // JPEG出力品質 (1-100)
	PresignTTLSeconds  int // 署名付きURLの有効期間（秒）
}

// Load は環境変数から設定を読み込みます。
// .env.local ファイルが存在する場合はそこから読み込みます。
func Load() (*Config, error) {
	// .env.local ファイルを読み込む（存在しない場合はスキップ）
	loadEnvFile()

	config := &Config{
		// サーバー設定
		Port:    getEnv("PORT", "8080"),
		GinMode: getEnv("GIN_MODE", "debug"),

		// CORS設定
		CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173"),

		// ファイル制限
		MaxFileSize: getEnvAsInt64("MAX_FILE_SIZE", 10*1024*1024), // 10MB

		// ジョブ/キュー設定
		RedisURL:         getEnv("REDIS_URL", "redis://127.0.0.1:6379/0"),
		QueueConcurrency: getEnvAsInt("QUEUE_CONCURRENCY", 4),
		TaskMaxRetry:     getEnvAsInt("TASK_MAX_RETRY", 3),
		JobExpireHours:   getEnvAsInt("JOB_EXPIRE_HOURS", 168), // 7日

		// オブジェクトストレージ設定
		MinioEndpoint:   getEnv("MINIO_ENDPOINT", "localhost:9000"),
		MinioAccessKey:  getEnv("MINIO_ACCESS_KEY", "minio"),
		MinioSecretKey:  getEnv("MINIO_SECRET_KEY", "minio123"),
		MinioUseSSL:     getEnvAsBool("MINIO_USE_SSL", false),
		MinioRegion:     getEnv("MINIO_REGION", ""),
		RawBucket:       getEnv("RAW_BUCKET", "raw-images"),
		ProcessedBucket: getEnv("PROCESSED_BUCKET", "processed-images"),

		// 画像処理設定
		ProcessedMaxWidth:  getEnvAsInt("PROCESSED_MAX_WIDTH", 800),
		ProcessedMaxHeight: getEnvAsInt("PROCESSED_MAX_HEIGHT", 600),
		ThumbnailSize:      getEnvAsInt("THUMBNAIL_SIZE", 150),
		JPEGQuality:        getEnvAsInt("JPEG_QUALITY", 85),
		PresignTTLSeconds:  getEnvAsInt("PRESIGN_TTL_SECONDS", 604800), // 7日
	}

	// 必須設定のバリデーション
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func loadEnvFile() {
	if err := godotenv.Load(".env.local"); err == nil {
		return
	}

	cwd, err := os.Getwd()
	if err != nil {
		return
	}

	parent := filepath.Dir(cwd)
	if parent == "" || parent == cwd {
		return
	}

	_ = godotenv.Load(filepath.Join(parent, ".env.local"))
}

// Validate は設定の妥当性を検証します。
func (c *Config) Validate() error {
	if c.RawBucket == "" {
		return fmt.Errorf("RAW_BUCKET is required")
	}
	if c.ProcessedBucket == "" {
		return fmt.Errorf("PROCESSED_BUCKET is required")
	}
	if c.RawBucket == c.ProcessedBucket {
		return fmt.Errorf("RAW_BUCKET and PROCESSED_BUCKET must be distinct")
	}
	if c.JPEGQuality < 1 || c.JPEGQuality > 100 {
		return fmt.Errorf("JPEG_QUALITY must be between 1 and 100")
	}
	if c.PresignTTLSeconds <= 0 {
		return fmt.Errorf("PRESIGN_TTL_SECONDS must be positive")
	}

	// ローカル開発ではデフォルト認証情報を許容
	// 本番環境では厳格にチェックする想定
	if c.GinMode == "release" {
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required in release mode")
		}
		if c.MinioEndpoint == "" {
			return fmt.Errorf("MINIO_ENDPOINT is required in release mode")
		}
		if c.MinioAccessKey == "" || c.MinioSecretKey == "" {
			return fmt.Errorf("MINIO_ACCESS_KEY and MINIO_SECRET_KEY are required in release mode")
		}
	}

	return nil
}

// getEnv は環境変数を取得し、存在しない場合はデフォルト値を返します。
func getEnv(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvAsInt は環境変数を整数として取得します。
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsInt64 は環境変数を64ビット整数として取得します。
func getEnvAsInt64(key string, defaultValue int64) int64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseInt(valueStr, 10, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsBool は環境変数を真偽値として取得します。
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := strings.TrimSpace(os.Getenv(key))
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
