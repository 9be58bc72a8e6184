package images

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

type stubUploadService struct {
	sub       *Submission
	err       error
	discarded []string
}

func (s *stubUploadService) StoreRaw(ctx context.Context, filename string, data []byte) (*Submission, error) {
	return s.sub, s.err
}

func (s *stubUploadService) Discard(ctx context.Context, rawKey string) error {
	s.discarded = append(s.discarded, rawKey)
	return nil
}

type stubScheduler struct {
	err       error
	scheduled []string
}

func (s *stubScheduler) Schedule(ctx context.Context, jobID, rawKey string) error {
	if s.err != nil {
		return s.err
	}
	s.scheduled = append(s.scheduled, jobID)
	return nil
}

func uploadRequest(t *testing.T, fieldName, filename string, content []byte) *http.Request {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	fileWriter, err := writer.CreateFormFile(fieldName, filename)
	if err != nil {
		t.Fatalf("failed to create form file: %v", err)
	}
	if _, err := io.Copy(fileWriter, bytes.NewReader(content)); err != nil {
		t.Fatalf("failed to write form file: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("failed to close writer: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func serveUpload(svc UploadService, opts HandlerOptions, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	router := gin.New()
	router.POST("/upload", UploadHandler(svc, opts))
	router.ServeHTTP(rec, req)
	return rec
}

func TestUploadHandlerSuccess(t *testing.T) {
	gin.SetMode(gin.TestMode)
	service := &stubUploadService{
		sub: &Submission{JobID: "job-123", RawKey: "job-123-cat.png"},
	}
	scheduler := &stubScheduler{}

	req := uploadRequest(t, "file", "cat.png", []byte("image-bytes"))
	rec := serveUpload(service, HandlerOptions{Scheduler: scheduler}, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("unexpected status: %d body=%s", rec.Code, rec.Body.String())
	}

	var payload map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if payload["jobId"] != "job-123" {
		t.Fatalf("unexpected jobId: %q", payload["jobId"])
	}
	if len(scheduler.scheduled) != 1 || scheduler.scheduled[0] != "job-123" {
		t.Fatalf("task was not scheduled: %#v", scheduler.scheduled)
	}
}

func TestUploadHandlerMissingFile(t *testing.T) {
	gin.SetMode(gin.TestMode)
	service := &stubUploadService{}
	scheduler := &stubScheduler{}

	req := httptest.NewRequest(http.MethodPost, "/upload", bytes.NewBufferString(""))
	req.Header.Set("Content-Type", "multipart/form-data; boundary=empty")
	rec := serveUpload(service, HandlerOptions{Scheduler: scheduler}, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
	var payload map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if payload["code"] != CodeInvalidInput {
		t.Fatalf("unexpected code: %s", payload["code"])
	}
	if len(scheduler.scheduled) != 0 {
		t.Fatal("no task should be scheduled for a rejected upload")
	}
}

func TestUploadHandlerEmptyPayload(t *testing.T) {
	gin.SetMode(gin.TestMode)
	service := &stubUploadService{
		err: newError(CodeInvalidInput, "アップロードされたファイルが空です。", nil),
	}
	scheduler := &stubScheduler{}

	req := uploadRequest(t, "file", "empty.png", nil)
	rec := serveUpload(service, HandlerOptions{Scheduler: scheduler}, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
	if len(scheduler.scheduled) != 0 {
		t.Fatal("no task should be scheduled for an empty upload")
	}
}

func TestUploadHandlerFileTooLarge(t *testing.T) {
	gin.SetMode(gin.TestMode)
	service := &stubUploadService{}
	scheduler := &stubScheduler{}

	req := uploadRequest(t, "file", "big.png", bytes.Repeat([]byte("x"), 64))
	rec := serveUpload(service, HandlerOptions{Scheduler: scheduler, MaxFileSize: 16}, req)

	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
}

func TestUploadHandlerScheduleFailureDiscardsRawObject(t *testing.T) {
	gin.SetMode(gin.TestMode)
	service := &stubUploadService{
		sub: &Submission{JobID: "job-456", RawKey: "job-456-cat.png"},
	}
	scheduler := &stubScheduler{err: errors.New("queue unavailable")}

	req := uploadRequest(t, "file", "cat.png", []byte("image-bytes"))
	rec := serveUpload(service, HandlerOptions{Scheduler: scheduler}, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
	if len(service.discarded) != 1 || service.discarded[0] != "job-456-cat.png" {
		t.Fatalf("raw object should be discarded on a failed handoff: %#v", service.discarded)
	}
}

func TestUploadHandlerStorageFailure(t *testing.T) {
	gin.SetMode(gin.TestMode)
	service := &stubUploadService{
		err: newError(CodeStorageError, "元画像の保存に失敗しました。", errors.New("connection refused")),
	}
	scheduler := &stubScheduler{}

	req := uploadRequest(t, "file", "cat.png", []byte("image-bytes"))
	rec := serveUpload(service, HandlerOptions{Scheduler: scheduler}, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
	var payload map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if payload["code"] != CodeStorageError {
		t.Fatalf("unexpected code: %s", payload["code"])
	}
}
