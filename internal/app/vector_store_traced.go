package app

import (
	"context"
	"strconv"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/moveatlas/moveatlas-backend/internal/observability"
	"github.com/moveatlas/moveatlas-backend/internal/platform/qdrant"
)

// tracedVectorStore wraps the Qdrant store so every call shows up as a
// span under whatever request or pipeline span is live on the context.
type tracedVectorStore struct {
	inner qdrant.VectorStore
}

func traceVectorStore(inner qdrant.VectorStore) qdrant.VectorStore {
	if inner == nil {
		return nil
	}
	return &tracedVectorStore{inner: inner}
}

func (s *tracedVectorStore) Upsert(ctx context.Context, points []qdrant.Point) error {
	ctx, span := observability.StartSpan(ctx, "qdrant.upsert", "point_count", strconv.Itoa(len(points)))
	defer span.End()
	err := s.inner.Upsert(ctx, points)
	recordSpanError(span, err)
	return err
}

func (s *tracedVectorStore) Search(ctx context.Context, query []float32, limit int, scoreThreshold float64, filter map[string]any) ([]qdrant.Hit, error) {
	ctx, span := observability.StartSpan(ctx, "qdrant.search", "limit", strconv.Itoa(limit))
	defer span.End()
	hits, err := s.inner.Search(ctx, query, limit, scoreThreshold, filter)
	recordSpanError(span, err)
	return hits, err
}

func (s *tracedVectorStore) Delete(ctx context.Context, ids []string) error {
	ctx, span := observability.StartSpan(ctx, "qdrant.delete", "id_count", strconv.Itoa(len(ids)))
	defer span.End()
	err := s.inner.Delete(ctx, ids)
	recordSpanError(span, err)
	return err
}

func (s *tracedVectorStore) Scroll(ctx context.Context, limit int, offset string) ([]qdrant.ScrollPoint, string, error) {
	ctx, span := observability.StartSpan(ctx, "qdrant.scroll", "limit", strconv.Itoa(limit))
	defer span.End()
	points, next, err := s.inner.Scroll(ctx, limit, offset)
	recordSpanError(span, err)
	return points, next, err
}

func (s *tracedVectorStore) Info(ctx context.Context) (*qdrant.CollectionInfo, error) {
	ctx, span := observability.StartSpan(ctx, "qdrant.info")
	defer span.End()
	info, err := s.inner.Info(ctx)
	recordSpanError(span, err)
	return info, err
}

func recordSpanError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
