package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/image-forge/internal/jobs"
)

type stubRecordGetter struct {
	record *jobs.Record
	err    error
}

func (s *stubRecordGetter) GetRecord(ctx context.Context, jobID string) (*jobs.Record, error) {
	return s.record, s.err
}

func serveJobRoute(getter recordGetter, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	router := gin.New()
	router.GET("/upload/:jobId/status", jobStatusHandler(getter))
	router.GET("/upload/:jobId/result", jobResultHandler(getter))
	req := httptest.NewRequest(http.MethodGet, path, nil)
	router.ServeHTTP(rec, req)
	return rec
}

func TestJobStatusHandlerNotFound(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rec := serveJobRoute(&stubRecordGetter{}, "/upload/nonexistent-id/status")

	if rec.Code != http.StatusNotFound {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
	var payload map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if payload["code"] != "JOB_NOT_FOUND" {
		t.Fatalf("unexpected code: %s", payload["code"])
	}
}

func TestJobStatusHandlerPending(t *testing.T) {
	gin.SetMode(gin.TestMode)
	getter := &stubRecordGetter{
		record: &jobs.Record{JobID: "job-1", Status: jobs.StatusPending},
	}
	rec := serveJobRoute(getter, "/upload/job-1/status")

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d body=%s", rec.Code, rec.Body.String())
	}
	var payload map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if payload["status"] != "pending" {
		t.Fatalf("unexpected status value: %v", payload["status"])
	}
	if _, ok := payload["result"]; ok {
		t.Fatal("status response must never include the result payload")
	}
}

func TestJobResultHandlerNotFound(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rec := serveJobRoute(&stubRecordGetter{}, "/upload/nonexistent-id/result")

	if rec.Code != http.StatusNotFound {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
}

func TestJobResultHandlerNotCompleted(t *testing.T) {
	gin.SetMode(gin.TestMode)
	for _, status := range []jobs.Status{jobs.StatusPending, jobs.StatusProcessing, jobs.StatusFailed} {
		getter := &stubRecordGetter{
			record: &jobs.Record{JobID: "job-2", Status: status},
		}
		rec := serveJobRoute(getter, "/upload/job-2/result")

		if rec.Code != http.StatusConflict {
			t.Fatalf("status %s: expected 409, got %d", status, rec.Code)
		}
		var payload map[string]string
		if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
			t.Fatalf("failed to parse response: %v", err)
		}
		if payload["code"] != "JOB_NOT_COMPLETED" {
			t.Fatalf("unexpected code: %s", payload["code"])
		}
	}
}

func TestJobResultHandlerCompleted(t *testing.T) {
	gin.SetMode(gin.TestMode)
	getter := &stubRecordGetter{
		record: &jobs.Record{
			JobID:  "job-3",
			Status: jobs.StatusCompleted,
			Result: &jobs.ResultInfo{
				URLs: []string{
					"https://store.example/processed/job-3-cat-processed.jpg",
					"https://store.example/processed/job-3-cat-thumbnail.jpg",
				},
			},
		},
	}
	rec := serveJobRoute(getter, "/upload/job-3/result")

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d body=%s", rec.Code, rec.Body.String())
	}

	var payload struct {
		Status string `json:"status"`
		Result struct {
			URLs []string `json:"urls"`
		} `json:"result"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if payload.Status != "completed" {
		t.Fatalf("unexpected status value: %q", payload.Status)
	}
	if len(payload.Result.URLs) != 2 {
		t.Fatalf("expected 2 urls, got %d", len(payload.Result.URLs))
	}
	if payload.Result.URLs[0] != getter.record.Result.URLs[0] || payload.Result.URLs[1] != getter.record.Result.URLs[1] {
		t.Fatalf("urls must keep processed-first ordering: %#v", payload.Result.URLs)
	}
}

func TestJobStatusHandlerStoreError(t *testing.T) {
	gin.SetMode(gin.TestMode)
	getter := &stubRecordGetter{err: context.DeadlineExceeded}
	rec := serveJobRoute(getter, "/upload/job-4/status")

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
}
