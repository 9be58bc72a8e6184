package main

import (
	"context"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	redis "github.com/redis/go-redis/v9"

	"github.com/yourusername/image-forge/internal/config"
	"github.com/yourusername/image-forge/internal/images"
	"github.com/yourusername/image-forge/internal/jobs"
)

// imageJobScheduler は jobs.Manager を images.JobScheduler に適合させるアダプターです。
type imageJobScheduler struct {
	manager *jobs.Manager
}

func (s *imageJobScheduler) Schedule(ctx context.Context, jobID, rawKey string) error {
	return s.manager.Enqueue(ctx, &jobs.TaskPayload{
		JobID:  jobID,
		RawKey: rawKey,
	})
}

func setupJobs(cfg *config.Config, imageService *images.Service) (*jobs.Manager, error) {
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, err
	}

	redisClient := redis.NewClient(opt)
	store := jobs.NewRedisStore(redisClient, time.Duration(cfg.JobExpireHours)*time.Hour)
	manager, err := jobs.NewManager(cfg, imageService, store, log.Default())
	if err != nil {
		return nil, err
	}
	return manager, nil
}

// recordGetter はジョブレコードの読み出しを提供します。
type recordGetter interface {
	GetRecord(ctx context.Context, jobID string) (*jobs.Record, error)
}

// jobStatusHandler は GET /upload/:jobId/status のハンドラーを返します。
// ステータス値のみを返し、結果ペイロードは含めません。
func jobStatusHandler(getter recordGetter) gin.HandlerFunc {
	return func(c *gin.Context) {
		jobID := c.Param("jobId")
		if strings.TrimSpace(jobID) == "" {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    "INVALID_INPUT",
				"message": "jobId を指定してください。",
			})
			return
		}

		record, err := getter.GetRecord(c.Request.Context(), jobID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"code":    "INTERNAL_ERROR",
				"message": "ジョブ情報の取得に失敗しました。",
			})
			return
		}
		if record == nil {
			c.JSON(http.StatusNotFound, gin.H{
				"code":    "JOB_NOT_FOUND",
				"message": "指定されたジョブは存在しません。",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{"status": record.Status})
	}
}

// jobResultHandler は GET /upload/:jobId/result のハンドラーを返します。
// ジョブが completed でない場合は 409 を返し、未存在（404）と区別します。
func jobResultHandler(getter recordGetter) gin.HandlerFunc {
	return func(c *gin.Context) {
		jobID := c.Param("jobId")
		if strings.TrimSpace(jobID) == "" {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    "INVALID_INPUT",
				"message": "jobId を指定してください。",
			})
			return
		}

		record, err := getter.GetRecord(c.Request.Context(), jobID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"code":    "INTERNAL_ERROR",
				"message": "ジョブ情報の取得に失敗しました。",
			})
			return
		}
		if record == nil {
			c.JSON(http.StatusNotFound, gin.H{
				"code":    "JOB_NOT_FOUND",
				"message": "指定されたジョブは存在しません。",
			})
			return
		}
		if record.Status != jobs.StatusCompleted {
			c.JSON(http.StatusConflict, gin.H{
				"code":    "JOB_NOT_COMPLETED",
				"message": "ジョブはまだ完了していません。",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status": record.Status,
			"result": record.Result,
		})
	}
}
