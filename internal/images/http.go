package images

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
)

// UploadService はアップロード受付を提供するサービスが実装します。
type UploadService interface {
	StoreRaw(ctx context.Context, filename string, data []byte) (*Submission, error)
	Discard(ctx context.Context, rawKey string) error
}

// JobScheduler はジョブを非同期キューに投入するためのインターフェースです。
type JobScheduler interface {
	Schedule(ctx context.Context, jobID, rawKey string) error
}

// HandlerOptions はアップロードハンドラーの設定です。
type HandlerOptions struct {
	Scheduler   JobScheduler
	MaxFileSize int64 // 1ファイルあたりの上限バイト数（0で無制限）
}

// UploadHandler は POST /upload のハンドラーを返します。
// 元画像の保存・キュー投入・ステータス初期化がすべて成功した場合のみ 201 を返します。
func UploadHandler(svc UploadService, opts HandlerOptions) gin.HandlerFunc {
	return func(c *gin.Context) {
		fileHeader, err := c.FormFile("file")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    CodeInvalidInput,
				"message": "multipart/form-data の file フィールドで画像を送信してください。",
			})
			return
		}

		if opts.MaxFileSize > 0 && fileHeader.Size > opts.MaxFileSize {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{
				"code":    "LIMIT_EXCEEDED",
				"message": fmt.Sprintf("ファイルサイズが上限（%dバイト）を超えています。", opts.MaxFileSize),
			})
			return
		}

		file, err := fileHeader.Open()
		if err != nil {
			respondWithError(c, err)
			return
		}
		defer file.Close()

		data, err := io.ReadAll(file)
		if err != nil {
			respondWithError(c, err)
			return
		}

		sub, err := svc.StoreRaw(c.Request.Context(), fileHeader.Filename, data)
		if err != nil {
			respondWithError(c, err)
			return
		}

		if err := opts.Scheduler.Schedule(c.Request.Context(), sub.JobID, sub.RawKey); err != nil {
			// 受付を丸ごと失敗させる。問い合わせ不能な元画像を残さない
			if cleanupErr := svc.Discard(c.Request.Context(), sub.RawKey); cleanupErr != nil {
				err = fmt.Errorf("%w (cleanup failed: %v)", err, cleanupErr)
			}
			respondWithError(c, err)
			return
		}

		c.JSON(http.StatusCreated, gin.H{"jobId": sub.JobID})
	}
}

func respondWithError(c *gin.Context, err error) {
	var apiErr *Error
	switch {
	case errors.As(err, &apiErr):
		status := http.StatusInternalServerError
		if apiErr.Code == CodeInvalidInput || apiErr.Code == CodeEmptyAsset {
			status = http.StatusBadRequest
		}
		c.JSON(status, gin.H{
			"code":    apiErr.Code,
			"message": apiErr.Message,
		})
	case errors.Is(err, context.Canceled):
		c.JSON(http.StatusRequestTimeout, gin.H{
			"code":    "REQUEST_CANCELED",
			"message": "リクエストがキャンセルされました。",
		})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    "INTERNAL_ERROR",
			"message": "サーバー内部でエラーが発生しました。",
		})
	}
}
