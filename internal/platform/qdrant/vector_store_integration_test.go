package qdrant

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/moveatlas/moveatlas-backend/internal/platform/logger"
)

func TestVectorStoreIntegrationAgainstLocalQdrant(t *testing.T) {
	if !qdrantIntegrationEnabled() {
		t.Skip("set QDRANT_INTEGRATION=1 to run Qdrant integration tests")
	}

	baseURL := qdrantIntegrationURL()
	if err := waitForQdrantReady(baseURL); err != nil {
		t.Fatalf("qdrant not ready: %v", err)
	}

	collection := "ma_it_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	t.Cleanup(func() {
		_ = deleteIntegrationCollection(baseURL, collection)
	})

	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	t.Cleanup(func() {
		log.Sync()
	})

	vs, err := NewVectorStore(log, Config{
		URL:        baseURL,
		Collection: collection,
		VectorDim:  3,
	})
	if err != nil {
		t.Fatalf("NewVectorStore: %v", err)
	}

	ctx := context.Background()
	idA := uuid.NewString()
	idB := uuid.NewString()
	if err := vs.Upsert(ctx, []Point{
		{
			ID:     idA,
			Values: []float32{1, 0, 0},
			Payload: map[string]any{
				"database_id":   "row-a",
				"name":          "wall handstand hold",
				"fitness_level": 6,
			},
		},
		{
			ID:     idB,
			Values: []float32{0, 1, 0},
			Payload: map[string]any{
				"database_id":   "row-b",
				"name":          "deep squat hold",
				"fitness_level": 2,
			},
		},
	}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	filter := map[string]any{
		"fitness_level": map[string]any{
			"$gte": 4,
		},
	}
	hits, err := vs.Search(ctx, []float32{1, 0, 0}, 5, 0, filter)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 1 {
		t.Fatalf("Search filtered: want=1 hit got=%d", len(hits))
	}
	if hits[0].ID != idA {
		t.Fatalf("Search first id: want=%q got=%q", idA, hits[0].ID)
	}
	if hits[0].Payload["database_id"] != "row-a" {
		t.Fatalf("Search payload: got=%v", hits[0].Payload)
	}

	info, err := vs.Info(ctx)
	if err != nil {
		t.Fatalf("Info: %v", err)
	}
	if info.Points != 2 {
		t.Fatalf("Info points: want=2 got=%d", info.Points)
	}
	if info.VectorDim != 3 {
		t.Fatalf("Info vector dim: want=3 got=%d", info.VectorDim)
	}

	var seen []string
	offset := ""
	for {
		points, next, err := vs.Scroll(ctx, 1, offset)
		if err != nil {
			t.Fatalf("Scroll: %v", err)
		}
		for _, p := range points {
			seen = append(seen, p.ID)
		}
		if next == "" {
			break
		}
		offset = next
	}
	if len(seen) != 2 {
		t.Fatalf("Scroll sweep: want=2 points got=%v", seen)
	}

	if err := vs.Delete(ctx, []string{idA}); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	remaining, err := vs.Search(ctx, []float32{1, 0, 0}, 5, 0, nil)
	if err != nil {
		t.Fatalf("Search after delete: %v", err)
	}
	if containsHitID(remaining, idA) {
		t.Fatalf("deleted vector still returned: hits=%v", remaining)
	}
	if !containsHitID(remaining, idB) {
		t.Fatalf("expected remaining vector after delete: hits=%v", remaining)
	}
}

func qdrantIntegrationEnabled() bool {
	raw := strings.TrimSpace(strings.ToLower(os.Getenv("QDRANT_INTEGRATION")))
	return raw == "1" || raw == "true" || raw == "yes"
}

func qdrantIntegrationURL() string {
	if url := strings.TrimSpace(os.Getenv("QDRANT_INTEGRATION_URL")); url != "" {
		return strings.TrimRight(url, "/")
	}
	if url := strings.TrimSpace(os.Getenv("QDRANT_URL")); url != "" {
		return strings.TrimRight(url, "/")
	}
	return "http://127.0.0.1:6333"
}

func waitForQdrantReady(baseURL string) error {
	client := &http.Client{Timeout: 2 * time.Second}
	readyURL := baseURL + "/readyz"
	var lastErr error
	for i := 0; i < 20; i++ {
		req, err := http.NewRequest(http.MethodGet, readyURL, nil)
		if err != nil {
			return err
		}
		resp, err := client.Do(req)
		if err == nil && resp != nil {
			_ = resp.Body.Close()
			if resp.StatusCode >= 200 && resp.StatusCode < 300 {
				return nil
			}
			lastErr = fmt.Errorf("status=%d", resp.StatusCode)
		} else if err != nil {
			lastErr = err
		}
		time.Sleep(200 * time.Millisecond)
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("timeout")
	}
	return fmt.Errorf("ready check failed for %s: %w", readyURL, lastErr)
}

func deleteIntegrationCollection(baseURL, collection string) error {
	client := &http.Client{Timeout: 5 * time.Second}
	url := fmt.Sprintf("%s/collections/%s", strings.TrimRight(baseURL, "/"), collection)
	req, err := http.NewRequest(http.MethodDelete, url, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("qdrant collection delete failed: status=%d body=%q", resp.StatusCode, string(raw))
	}
	return nil
}

func containsHitID(hits []Hit, target string) bool {
	for _, hit := range hits {
		if hit.ID == target {
			return true
		}
	}
	return false
}
