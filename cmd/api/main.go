// Package main はAPIサーバーのエントリーポイントです。
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/yourusername/image-forge/internal/config"
	"github.com/yourusername/image-forge/internal/images"
	"github.com/yourusername/image-forge/internal/jobs"
	"github.com/yourusername/image-forge/internal/storage"
)

func main() {
	// 設定の読み込み
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Ginのモードを設定
	gin.SetMode(cfg.GinMode)

	// オブジェクトストレージクライアントの初期化
	objectStore, err := storage.NewMinioStore(storage.MinioOptions{
		Endpoint:  cfg.MinioEndpoint,
		AccessKey: cfg.MinioAccessKey,
		SecretKey: cfg.MinioSecretKey,
		UseSSL:    cfg.MinioUseSSL,
		Region:    cfg.MinioRegion,
	})
	if err != nil {
		log.Fatalf("Failed to initialise object store: %v", err)
	}

	bucketCtx, cancelBuckets := context.WithTimeout(context.Background(), 30*time.Second)
	if err := objectStore.EnsureBuckets(bucketCtx, cfg.RawBucket, cfg.ProcessedBucket); err != nil {
		log.Fatalf("Failed to ensure buckets: %v", err)
	}
	cancelBuckets()

	// 画像処理サービスの初期化
	imageService, err := images.NewService(objectStore, images.Options{
		RawBucket:       cfg.RawBucket,
		ProcessedBucket: cfg.ProcessedBucket,
		MaxWidth:        cfg.ProcessedMaxWidth,
		MaxHeight:       cfg.ProcessedMaxHeight,
		ThumbnailSize:   cfg.ThumbnailSize,
		JPEGQuality:     cfg.JPEGQuality,
		PresignTTL:      time.Duration(cfg.PresignTTLSeconds) * time.Second,
	})
	if err != nil {
		log.Fatalf("Failed to initialise image service: %v", err)
	}

	// ジョブマネージャーの初期化とワーカーの起動
	manager, err := setupJobs(cfg, imageService)
	if err != nil {
		log.Fatalf("Failed to initialise job manager: %v", err)
	}
	manager.StartWorkers()

	// Ginルーターの初期化（デフォルトミドルウェア: Logger, Recovery）
	router := gin.Default()
	router.MaxMultipartMemory = cfg.MaxFileSize

	// CORSミドルウェアの設定
	corsConfig := cors.DefaultConfig()
	// CORS許可オリジンを設定（カンマ区切りの文字列を配列に変換）
	corsConfig.AllowOrigins = strings.Split(cfg.CORSAllowedOrigins, ",")
	router.Use(cors.New(corsConfig))

	// ルーティングの設定
	setupRoutes(router, cfg, imageService, manager)

	// サーバーの起動とシグナルによる停止
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	addr := ":" + cfg.Port
	server := &http.Server{Addr: addr, Handler: router}

	go func() {
		log.Printf("Starting API server on %s (mode: %s)", addr, cfg.GinMode)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Print("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown: %v", err)
	}
	if err := manager.Shutdown(shutdownCtx); err != nil {
		log.Printf("Job manager shutdown: %v", err)
	}
}

// handleHealth はヘルスチェックエンドポイントのハンドラーです。
func handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "image-forge-api",
		"version": "0.1.0",
	})
}

// setupRoutes はアップロード受付と照会エンドポイントの配線を行います。
func setupRoutes(router *gin.Engine, cfg *config.Config, imageService *images.Service, manager *jobs.Manager) {
	router.GET("/health", handleHealth)

	scheduler := &imageJobScheduler{manager: manager}
	upload := router.Group("/upload")
	{
		upload.POST("", images.UploadHandler(imageService, images.HandlerOptions{
			Scheduler:   scheduler,
			MaxFileSize: cfg.MaxFileSize,
		}))
		upload.GET("/:jobId/status", jobStatusHandler(manager))
		upload.GET("/:jobId/result", jobResultHandler(manager))
	}
}
