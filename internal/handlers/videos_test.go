package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	pkgerrors "github.com/moveatlas/moveatlas-backend/internal/pkg/errors"
	"github.com/moveatlas/moveatlas-backend/internal/types"
)

func TestProcessVideoAccepted(t *testing.T) {
	t.Parallel()

	jobID := uuid.New()
	var gotURL string
	ingest := &fakeIngestService{
		enqueueFn: func(_ context.Context, rawURL string) (*types.IngestJob, error) {
			gotURL = rawURL
			return &types.IngestJob{JobID: jobID, URL: rawURL, State: types.JobStatePending}, nil
		},
	}

	r := newTestRouter()
	r.POST("/api/videos/process", NewVideoHandler(ingest).ProcessVideo)

	body := strings.NewReader(`{"url":"https://youtube.com/watch?v=abc123"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/videos/process", body)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status: want=%d got=%d body=%s", http.StatusAccepted, rec.Code, rec.Body.String())
	}
	if gotURL != "https://youtube.com/watch?v=abc123" {
		t.Fatalf("enqueued url: want=%q got=%q", "https://youtube.com/watch?v=abc123", gotURL)
	}

	var resp struct {
		JobID uuid.UUID `json:"job_id"`
		State string    `json:"state"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.JobID != jobID {
		t.Fatalf("job_id: want=%s got=%s", jobID, resp.JobID)
	}
	if resp.State != types.JobStatePending {
		t.Fatalf("state: want=%q got=%q", types.JobStatePending, resp.State)
	}
}

func TestProcessVideoInvalidURL(t *testing.T) {
	t.Parallel()

	ingest := &fakeIngestService{
		enqueueFn: func(context.Context, string) (*types.IngestJob, error) {
			return nil, fmt.Errorf("%w: url must be http or https", pkgerrors.ErrInvalidArgument)
		},
	}

	r := newTestRouter()
	r.POST("/api/videos/process", NewVideoHandler(ingest).ProcessVideo)

	req := httptest.NewRequest(http.MethodPost, "/api/videos/process", strings.NewReader(`{"url":"ftp://nope"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status: want=%d got=%d", http.StatusBadRequest, rec.Code)
	}
}

func TestProcessVideoMalformedBody(t *testing.T) {
	t.Parallel()

	called := false
	ingest := &fakeIngestService{
		enqueueFn: func(context.Context, string) (*types.IngestJob, error) {
			called = true
			return nil, nil
		},
	}

	r := newTestRouter()
	r.POST("/api/videos/process", NewVideoHandler(ingest).ProcessVideo)

	req := httptest.NewRequest(http.MethodPost, "/api/videos/process", strings.NewReader(`{"url":`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status: want=%d got=%d", http.StatusBadRequest, rec.Code)
	}
	if called {
		t.Fatal("service should not be called on malformed body")
	}
}
