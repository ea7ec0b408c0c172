package services

import (
  "context"
  "fmt"
  "strings"

  "github.com/google/uuid"

  "github.com/moveatlas/moveatlas-backend/internal/clients/openai"
  "github.com/moveatlas/moveatlas-backend/internal/pkg/dbctx"
  pkgerrors "github.com/moveatlas/moveatlas-backend/internal/pkg/errors"
  "github.com/moveatlas/moveatlas-backend/internal/platform/logger"
  "github.com/moveatlas/moveatlas-backend/internal/platform/qdrant"
  "github.com/moveatlas/moveatlas-backend/internal/repos"
  "github.com/moveatlas/moveatlas-backend/internal/types"
)

const (
  defaultScoreThreshold  = 0.3
  defaultMaxPerCategory  = 2
  defaultDiverseK        = 5
  diverseFetchExtra      = 30
)

// DiverseSearchParams are the retrieval knobs. Nil pointers take the
// defaults: threshold 0.3, two picks per movement family.
type DiverseSearchParams struct {
  Query          string
  K              int
  ScoreThreshold *float64
  MaxPerCategory *int
}

// RetrievedExercise is one enriched hit: the full row joined back from the
// metadata store plus the similarity score and the movement family that
// diversity bookkeeping assigned.
type RetrievedExercise struct {
  Exercise *types.Exercise `json:"exercise"`
  Score    float64         `json:"score"`
  Category string          `json:"category"`
}

type RetrievalService interface {
  DiverseSearch(ctx context.Context, params DiverseSearchParams) ([]RetrievedExercise, error)
  SearchIDsForStory(ctx context.Context, story string, k int) ([]uuid.UUID, error)
}

type retrievalService struct {
  log          *logger.Logger
  ai           openai.Client
  vectors      qdrant.VectorStore
  exerciseRepo repos.ExerciseRepo
  cfg          RetrievalConfig
}

func NewRetrievalService(
  baseLog *logger.Logger,
  ai openai.Client,
  vectors qdrant.VectorStore,
  exerciseRepo repos.ExerciseRepo,
  cfg RetrievalConfig,
) RetrievalService {
  return &retrievalService{
    log:          baseLog.With("service", "RetrievalService"),
    ai:           ai,
    vectors:      vectors,
    exerciseRepo: exerciseRepo,
    cfg:          cfg,
  }
}

// DiverseSearch embeds the query, over-fetches from the vector store, then
// greedily picks by descending score while capping each movement family,
// so one crowded family cannot fill the whole result. Survivors are joined
// back to their rows; hits whose row is gone are dropped as orphans.
func (s *retrievalService) DiverseSearch(ctx context.Context, params DiverseSearchParams) ([]RetrievedExercise, error) {
  query := strings.TrimSpace(params.Query)
  if query == "" {
    return nil, pkgerrors.ErrInvalidArgument
  }
  k := params.K
  if k <= 0 {
    k = defaultDiverseK
  }
  threshold := defaultScoreThreshold
  if params.ScoreThreshold != nil {
    threshold = *params.ScoreThreshold
  }
  maxPer := defaultMaxPerCategory
  if params.MaxPerCategory != nil && *params.MaxPerCategory > 0 {
    maxPer = *params.MaxPerCategory
  }

  embeddings, err := s.ai.Embed(ctx, []string{query})
  if err != nil {
    return nil, fmt.Errorf("embed query: %w", err)
  }
  if len(embeddings) == 0 || len(embeddings[0]) == 0 {
    return nil, fmt.Errorf("embedder returned no vector")
  }

  fetch := 2*k + diverseFetchExtra
  hits, err := s.vectors.Search(ctx, embeddings[0], fetch, threshold, nil)
  if err != nil {
    return nil, fmt.Errorf("vector search: %w", err)
  }

  type picked struct {
    hit      qdrant.Hit
    category string
    dbID     uuid.UUID
  }

  // Hits arrive sorted by descending score; the greedy pass preserves
  // that order.
  perCategory := make(map[string]int)
  selected := make([]picked, 0, k)
  for _, hit := range hits {
    if len(selected) >= k {
      break
    }
    dbID, ok := payloadDatabaseID(hit.Payload)
    if !ok {
      s.log.Warn("vector hit missing database_id", "vector_id", hit.ID)
      continue
    }
    category := s.cfg.Categorize(payloadString(hit.Payload, "name"), payloadString(hit.Payload, "how_to"))
    if perCategory[category] >= maxPer {
      continue
    }
    perCategory[category]++
    selected = append(selected, picked{hit: hit, category: category, dbID: dbID})
  }

  ids := make([]uuid.UUID, 0, len(selected))
  for _, p := range selected {
    ids = append(ids, p.dbID)
  }
  rows, err := s.exerciseRepo.GetByIDs(dbctx.Context{Ctx: ctx}, ids)
  if err != nil {
    return nil, fmt.Errorf("join exercise rows: %w", err)
  }
  byID := make(map[uuid.UUID]*types.Exercise, len(rows))
  for _, row := range rows {
    byID[row.ID] = row
  }

  out := make([]RetrievedExercise, 0, len(selected))
  for _, p := range selected {
    row, ok := byID[p.dbID]
    if !ok {
      s.log.Warn("dropping orphan vector hit", "vector_id", p.hit.ID, "database_id", p.dbID)
      continue
    }
    out = append(out, RetrievedExercise{
      Exercise: row,
      Score:    p.hit.Score,
      Category: p.category,
    })
  }

  s.log.Debug("diverse search complete",
    "query_len", len(query),
    "fetched", len(hits),
    "selected", len(selected),
    "returned", len(out),
  )
  return out, nil
}

func (s *retrievalService) SearchIDsForStory(ctx context.Context, story string, k int) ([]uuid.UUID, error) {
  results, err := s.DiverseSearch(ctx, DiverseSearchParams{Query: story, K: k})
  if err != nil {
    return nil, err
  }
  ids := make([]uuid.UUID, 0, len(results))
  for _, r := range results {
    ids = append(ids, r.Exercise.ID)
  }
  return ids, nil
}

func payloadDatabaseID(payload map[string]any) (uuid.UUID, bool) {
  raw := payloadString(payload, "database_id")
  if raw == "" {
    return uuid.Nil, false
  }
  id, err := uuid.Parse(raw)
  if err != nil {
    return uuid.Nil, false
  }
  return id, true
}

func payloadString(payload map[string]any, key string) string {
  if payload == nil {
    return ""
  }
  if v, ok := payload[key].(string); ok {
    return v
  }
  return ""
}
