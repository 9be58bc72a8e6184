package images

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/yourusername/image-forge/internal/storage"
)

// Options は画像処理サービスの動作設定です。
type Options struct {
	RawBucket       string        // 元画像バケット
	ProcessedBucket string        // 生成画像バケット
	MaxWidth        int           // processed版を収める最大幅
	MaxHeight       int           // processed版を収める最大高さ
	ThumbnailSize   int           // サムネイルの一辺
	JPEGQuality     int           // JPEG出力品質
	PresignTTL      time.Duration // 署名付きURLの有効期間
}

// Service は元画像の受付保存と派生画像の生成を担います。
type Service struct {
	store storage.ObjectStore
	opts  Options
}

// NewService は Service を作成します。
func NewService(store storage.ObjectStore, opts Options) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("object store is nil")
	}
	if opts.RawBucket == "" || opts.ProcessedBucket == "" {
		return nil, fmt.Errorf("bucket names are required")
	}
	return &Service{store: store, opts: opts}, nil
}

// StoreRaw はアップロードされたバイト列を検証し、ジョブIDを割り当てて元画像バケットに保存します。
// 変換処理のスケジューリングは呼び出し側（HTTPハンドラー）の責務です。
func (s *Service) StoreRaw(ctx context.Context, filename string, data []byte) (*Submission, error) {
	if len(data) == 0 {
		return nil, newError(CodeInvalidInput, "アップロードされたファイルが空です。", nil)
	}

	jobID := uuid.NewString()
	rawKey := fmt.Sprintf("%s-%s", jobID, filepath.Base(filename))

	contentType := mimetype.Detect(data).String()
	if err := s.store.Put(ctx, s.opts.RawBucket, rawKey, data, contentType); err != nil {
		return nil, newError(CodeStorageError, "元画像の保存に失敗しました。", err)
	}

	return &Submission{
		JobID:  jobID,
		RawKey: rawKey,
	}, nil
}

// Discard は受付済みの元画像を削除します。キュー投入に失敗した場合の巻き戻しに使用します。
func (s *Service) Discard(ctx context.Context, rawKey string) error {
	if strings.TrimSpace(rawKey) == "" {
		return fmt.Errorf("rawKey is required")
	}
	return s.store.Remove(ctx, s.opts.RawBucket, rawKey)
}

// Process は rawKey の元画像から processed 版とサムネイルを生成し、
// 署名付きURLを固定順（processed, thumbnail）で返します。
// 同一の rawKey に対して何度実行しても出力キーは決定的で、再実行は安全です。
func (s *Service) Process(ctx context.Context, rawKey string) (*Result, error) {
	raw, err := s.store.Get(ctx, s.opts.RawBucket, rawKey)
	if err != nil {
		return nil, newError(CodeStorageError, "元画像のダウンロードに失敗しました。", err)
	}
	if len(raw) == 0 {
		return nil, newError(CodeEmptyAsset, "ダウンロードした元画像が空です。", nil)
	}

	img, err := imaging.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, newError(CodeTransformFailed, "画像のデコードに失敗しました。対応フォーマットか確認してください。", err)
	}

	processedKey, thumbnailKey := derivedKeys(rawKey)

	// 2つの派生画像は互いに独立しているため並行して生成する
	var result Result
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		processed := imaging.Fit(img, s.opts.MaxWidth, s.opts.MaxHeight, imaging.Lanczos)
		url, err := s.storeDerivative(gctx, processedKey, processed)
		if err != nil {
			return err
		}
		result.ProcessedURL = url
		return nil
	})
	g.Go(func() error {
		thumbnail := imaging.Fill(img, s.opts.ThumbnailSize, s.opts.ThumbnailSize, imaging.Center, imaging.Lanczos)
		url, err := s.storeDerivative(gctx, thumbnailKey, thumbnail)
		if err != nil {
			return err
		}
		result.ThumbnailURL = url
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &result, nil
}

// storeDerivative は派生画像をJPEGとして保存し、署名付きURLを発行します。
func (s *Service) storeDerivative(ctx context.Context, key string, img image.Image) (string, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(s.opts.JPEGQuality)); err != nil {
		return "", newError(CodeTransformFailed, "JPEGへのエンコードに失敗しました。", err)
	}

	if err := s.store.Put(ctx, s.opts.ProcessedBucket, key, buf.Bytes(), "image/jpeg"); err != nil {
		return "", newError(CodeStorageError, "生成画像のアップロードに失敗しました。", err)
	}

	url, err := s.store.Presign(ctx, s.opts.ProcessedBucket, key, s.opts.PresignTTL)
	if err != nil {
		return "", newError(CodeStorageError, "ダウンロードURLの発行に失敗しました。", err)
	}
	return url, nil
}

// derivedKeys は rawKey の拡張子を除いた基底名から2つの出力キーを導出します。
func derivedKeys(rawKey string) (processedKey, thumbnailKey string) {
	baseName := strings.TrimSuffix(rawKey, path.Ext(rawKey))
	return baseName + "-processed.jpg", baseName + "-thumbnail.jpg"
}
