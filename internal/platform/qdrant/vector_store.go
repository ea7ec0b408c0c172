package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/moveatlas/moveatlas-backend/internal/pkg/ctxutil"
	"github.com/moveatlas/moveatlas-backend/internal/platform/logger"
)

const maxErrorBodyBytes = 1024

// Point is one vector plus its payload. The point id is the vector id stored
// on the owning exercise row, so no separate id mapping exists anywhere.
type Point struct {
	ID      string
	Values  []float32
	Payload map[string]any
}

// Hit is a single search result. Payload carries whatever was stored at
// upsert time, including the database_id used to join back to Postgres.
type Hit struct {
	ID      string
	Score   float64
	Payload map[string]any
}

// ScrollPoint is one point returned by a scroll sweep.
type ScrollPoint struct {
	ID      string
	Payload map[string]any
}

// CollectionInfo describes the live collection: exact point count plus the
// dimension and distance the store was validated against at bootstrap.
type CollectionInfo struct {
	Points    int64
	VectorDim int
	Distance  string
}

type VectorStore interface {
	Upsert(ctx context.Context, points []Point) error
	Search(ctx context.Context, query []float32, limit int, scoreThreshold float64, filter map[string]any) ([]Hit, error)
	Delete(ctx context.Context, ids []string) error
	Scroll(ctx context.Context, limit int, offset string) ([]ScrollPoint, string, error)
	Info(ctx context.Context) (*CollectionInfo, error)
}

type vectorStore struct {
	log      *logger.Logger
	cfg      Config
	baseURL  string
	distance string
	http     *http.Client
}

type qdrantEnvelope struct {
	Result json.RawMessage `json:"result"`
	Status json.RawMessage `json:"status"`
	Time   float64         `json:"time"`
}

type qdrantSearchResultItem struct {
	ID      json.RawMessage `json:"id"`
	Score   float64         `json:"score"`
	Payload map[string]any  `json:"payload"`
}

type qdrantScrollResult struct {
	Points         []qdrantSearchResultItem `json:"points"`
	NextPageOffset json.RawMessage          `json:"next_page_offset"`
}

type qdrantCountResult struct {
	Count int64 `json:"count"`
}

type qdrantCollectionInfo struct {
	Config struct {
		Params struct {
			Vectors struct {
				Size     int    `json:"size"`
				Distance string `json:"distance"`
			} `json:"vectors"`
		} `json:"params"`
	} `json:"config"`
}

// NewVectorStore verifies the qdrant instance is reachable and that the
// configured collection exists with the expected vector size, creating it
// with cosine distance when missing.
func NewVectorStore(log *logger.Logger, cfg Config) (VectorStore, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if err := ValidateConfig(cfg, true); err != nil {
		return nil, err
	}

	s := &vectorStore{
		log:     log.With("service", "QdrantVectorStore"),
		cfg:     cfg,
		baseURL: strings.TrimRight(cfg.URL, "/"),
		http: &http.Client{
			Timeout: 15 * time.Second,
		},
	}

	if err := s.verifyReady(context.Background()); err != nil {
		return nil, err
	}
	if err := s.ensureCollection(context.Background()); err != nil {
		return nil, err
	}

	s.log.Info(
		"Qdrant vector store ready",
		"url", s.baseURL,
		"collection", cfg.Collection,
		"vector_dim", cfg.VectorDim,
		"distance", s.distance,
	)
	return s, nil
}

func (s *vectorStore) Upsert(ctx context.Context, points []Point) error {
	if s == nil {
		return nil
	}
	const op = "upsert"
	if len(points) == 0 {
		return nil
	}

	body := make([]map[string]any, 0, len(points))
	for _, p := range points {
		pointID := strings.TrimSpace(p.ID)
		if pointID == "" {
			return opErr(op, OperationErrorValidation, "point id is required", nil)
		}
		if _, err := uuid.Parse(pointID); err != nil {
			return opErr(op, OperationErrorValidation, fmt.Sprintf("point id %q is not a uuid", pointID), err)
		}
		if len(p.Values) == 0 {
			return opErr(op, OperationErrorValidation, fmt.Sprintf("point %q has empty vector", pointID), nil)
		}
		if s.cfg.VectorDim > 0 && len(p.Values) != s.cfg.VectorDim {
			return opErr(
				op,
				OperationErrorValidation,
				fmt.Sprintf(
					"point %q dimension mismatch: expected=%d got=%d",
					pointID,
					s.cfg.VectorDim,
					len(p.Values),
				),
				nil,
			)
		}
		body = append(body, map[string]any{
			"id":      pointID,
			"vector":  p.Values,
			"payload": clonePayload(p.Payload),
		})
	}

	req := map[string]any{"points": body}
	return s.doJSON(ctx, op, http.MethodPut, s.collectionPath("/points?wait=true"), req, nil)
}

func (s *vectorStore) Search(ctx context.Context, query []float32, limit int, scoreThreshold float64, filter map[string]any) ([]Hit, error) {
	if s == nil {
		return nil, fmt.Errorf("vector store unavailable")
	}
	const op = "search"
	if len(query) == 0 {
		return nil, opErr(op, OperationErrorValidation, "query vector required", nil)
	}
	if s.cfg.VectorDim > 0 && len(query) != s.cfg.VectorDim {
		return nil, opErr(
			op,
			OperationErrorValidation,
			fmt.Sprintf("query vector dimension mismatch: expected=%d got=%d", s.cfg.VectorDim, len(query)),
			nil,
		)
	}
	if limit <= 0 {
		limit = 10
	}

	req := map[string]any{
		"vector":       query,
		"limit":        limit,
		"with_payload": true,
		"with_vector":  false,
	}
	// For euclid and manhattan collections the raw score is a distance, so the
	// threshold is applied to the normalized score client-side instead.
	serverThreshold := scoreThreshold > 0 && s.thresholdOnServer()
	if serverThreshold {
		req["score_threshold"] = scoreThreshold
	}
	if len(filter) > 0 {
		translated, err := translateFilterMap(filter)
		if err != nil {
			var opErrTyped *OperationError
			if errors.As(err, &opErrTyped) && opErrTyped.Code == OperationErrorUnsupportedFilter {
				s.log.Warn("qdrant search filter unsupported", "error", err)
			}
			return nil, err
		}
		req["filter"] = translated.asMap()
	}

	var rawResults []qdrantSearchResultItem
	if err := s.doJSON(
		ctx,
		op,
		http.MethodPost,
		s.collectionPath("/points/search"),
		req,
		&rawResults,
	); err != nil {
		return nil, err
	}

	out := make([]Hit, 0, len(rawResults))
	for _, item := range rawResults {
		id := decodePointID(item.ID)
		if id == "" {
			continue
		}
		score := s.normalizeScore(item.Score)
		if !serverThreshold && scoreThreshold > 0 && score < scoreThreshold {
			continue
		}
		out = append(out, Hit{
			ID:      id,
			Score:   score,
			Payload: item.Payload,
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score == out[j].Score {
			return out[i].ID < out[j].ID
		}
		return out[i].Score > out[j].Score
	})
	return out, nil
}

func (s *vectorStore) Delete(ctx context.Context, ids []string) error {
	if s == nil {
		return nil
	}
	const op = "delete"
	if len(ids) == 0 {
		return nil
	}

	pointIDs := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		pointID := strings.TrimSpace(id)
		if pointID == "" {
			continue
		}
		if _, exists := seen[pointID]; exists {
			continue
		}
		seen[pointID] = struct{}{}
		pointIDs = append(pointIDs, pointID)
	}
	if len(pointIDs) == 0 {
		return nil
	}

	req := map[string]any{"points": pointIDs}
	return s.doJSON(ctx, op, http.MethodPost, s.collectionPath("/points/delete?wait=true"), req, nil)
}

// Scroll pages through every point in the collection. Pass the returned
// offset to the next call; an empty offset means the sweep is complete.
func (s *vectorStore) Scroll(ctx context.Context, limit int, offset string) ([]ScrollPoint, string, error) {
	if s == nil {
		return nil, "", fmt.Errorf("vector store unavailable")
	}
	const op = "scroll"
	if limit <= 0 {
		limit = 256
	}

	req := map[string]any{
		"limit":        limit,
		"with_payload": true,
		"with_vector":  false,
	}
	if strings.TrimSpace(offset) != "" {
		req["offset"] = offset
	}

	var result qdrantScrollResult
	if err := s.doJSON(
		ctx,
		op,
		http.MethodPost,
		s.collectionPath("/points/scroll"),
		req,
		&result,
	); err != nil {
		return nil, "", err
	}

	out := make([]ScrollPoint, 0, len(result.Points))
	for _, item := range result.Points {
		id := decodePointID(item.ID)
		if id == "" {
			continue
		}
		out = append(out, ScrollPoint{ID: id, Payload: item.Payload})
	}
	return out, decodePointID(result.NextPageOffset), nil
}

func (s *vectorStore) Info(ctx context.Context) (*CollectionInfo, error) {
	if s == nil {
		return nil, fmt.Errorf("vector store unavailable")
	}
	const op = "info"

	req := map[string]any{"exact": true}
	var result qdrantCountResult
	if err := s.doJSON(
		ctx,
		op,
		http.MethodPost,
		s.collectionPath("/points/count"),
		req,
		&result,
	); err != nil {
		return nil, err
	}
	return &CollectionInfo{
		Points:    result.Count,
		VectorDim: s.cfg.VectorDim,
		Distance:  s.distance,
	}, nil
}

func (s *vectorStore) verifyReady(ctx context.Context) error {
	if s == nil {
		return fmt.Errorf("qdrant vector store not initialized")
	}
	const op = "bootstrap_verify"

	readyReq, err := http.NewRequestWithContext(ctxutil.Default(ctx), http.MethodGet, s.baseURL+"/readyz", nil)
	if err != nil {
		return opErr(op, OperationErrorTransportFailed, "build ready request failed", err)
	}
	readyResp, err := s.http.Do(readyReq)
	if err != nil {
		return classifyHTTPCallError(op, "qdrant ready check failed", err)
	}
	_ = readyResp.Body.Close()
	if readyResp.StatusCode < 200 || readyResp.StatusCode >= 300 {
		return &OperationError{
			Code:       OperationErrorQueryFailed,
			Operation:  op,
			StatusCode: readyResp.StatusCode,
			Message:    fmt.Sprintf("qdrant ready check returned status=%d", readyResp.StatusCode),
		}
	}
	return nil
}

func (s *vectorStore) ensureCollection(ctx context.Context) error {
	const op = "ensure_collection"

	var info qdrantCollectionInfo
	err := s.doJSON(ctx, op, http.MethodGet, s.collectionPath(""), nil, &info)
	if err != nil {
		if !IsNotFound(err) {
			return err
		}
		create := map[string]any{
			"vectors": map[string]any{
				"size":     s.cfg.VectorDim,
				"distance": "Cosine",
			},
		}
		if err := s.doJSON(ctx, op, http.MethodPut, s.collectionPath(""), create, nil); err != nil {
			return err
		}
		s.log.Info(
			"qdrant collection created",
			"collection", s.cfg.Collection,
			"vector_dim", s.cfg.VectorDim,
		)
		if err := s.doJSON(ctx, op, http.MethodGet, s.collectionPath(""), nil, &info); err != nil {
			return err
		}
	}

	size := info.Config.Params.Vectors.Size
	if size != 0 && size != s.cfg.VectorDim {
		return &OperationError{
			Code:      OperationErrorValidation,
			Operation: op,
			Message: fmt.Sprintf(
				"qdrant collection %q vector size mismatch: expected=%d actual=%d",
				s.cfg.Collection,
				s.cfg.VectorDim,
				size,
			),
		}
	}
	s.distance = strings.TrimSpace(info.Config.Params.Vectors.Distance)
	return nil
}

func (s *vectorStore) doJSON(ctx context.Context, op, method, path string, in any, out any) error {
	var body io.Reader
	if in != nil {
		var buf bytes.Buffer
		if err := json.NewEncoder(&buf).Encode(in); err != nil {
			return opErr(op, OperationErrorEncodeFailed, "encode request failed", err)
		}
		body = &buf
	}

	req, err := http.NewRequestWithContext(ctxutil.Default(ctx), method, s.baseURL+path, body)
	if err != nil {
		return opErr(op, OperationErrorTransportFailed, "build request failed", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.http.Do(req)
	if err != nil {
		return classifyHTTPCallError(op, "qdrant request failed", err)
	}
	defer resp.Body.Close()

	raw, readErr := io.ReadAll(io.LimitReader(resp.Body, 10*maxErrorBodyBytes))
	if readErr != nil {
		return opErr(op, OperationErrorDecodeFailed, "read response failed", readErr)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &OperationError{
			Code:       OperationErrorQueryFailed,
			Operation:  op,
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("qdrant http status=%d body=%q", resp.StatusCode, truncateBody(raw)),
		}
	}

	var envelope qdrantEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return opErr(op, OperationErrorDecodeFailed, "decode qdrant envelope failed", err)
	}
	if statusErr := parseEnvelopeStatus(envelope.Status); statusErr != "" {
		return &OperationError{
			Code:       OperationErrorQueryFailed,
			Operation:  op,
			StatusCode: resp.StatusCode,
			Message:    statusErr,
		}
	}

	if out == nil {
		return nil
	}
	if len(envelope.Result) == 0 || string(envelope.Result) == "null" {
		return nil
	}
	if err := json.Unmarshal(envelope.Result, out); err != nil {
		return opErr(op, OperationErrorDecodeFailed, "decode qdrant result failed", err)
	}
	return nil
}

func classifyHTTPCallError(op, message string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return opErr(op, OperationErrorTimeout, message, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return opErr(op, OperationErrorTimeout, message, err)
	}
	return opErr(op, OperationErrorTransportFailed, message, err)
}

func parseEnvelopeStatus(raw json.RawMessage) string {
	status := strings.TrimSpace(string(raw))
	if status == "" || status == "null" {
		return ""
	}

	var statusString string
	if err := json.Unmarshal(raw, &statusString); err == nil {
		if strings.EqualFold(statusString, "ok") {
			return ""
		}
		return fmt.Sprintf("qdrant status=%q", statusString)
	}

	var statusObject struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(raw, &statusObject); err == nil {
		if strings.TrimSpace(statusObject.Error) != "" {
			return strings.TrimSpace(statusObject.Error)
		}
	}

	return fmt.Sprintf("qdrant status=%s", status)
}

func truncateBody(raw []byte) string {
	if len(raw) <= maxErrorBodyBytes {
		return string(raw)
	}
	return string(raw[:maxErrorBodyBytes]) + "..."
}

func clonePayload(in map[string]any) map[string]any {
	if len(in) == 0 {
		return map[string]any{}
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func (s *vectorStore) collectionPath(suffix string) string {
	path := "/collections/" + s.cfg.Collection
	if strings.TrimSpace(suffix) == "" {
		return path
	}
	return path + suffix
}

func decodePointID(raw json.RawMessage) string {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return ""
	}
	var idString string
	if err := json.Unmarshal(raw, &idString); err == nil {
		return strings.TrimSpace(idString)
	}
	var idNumber int64
	if err := json.Unmarshal(raw, &idNumber); err == nil {
		return fmt.Sprintf("%d", idNumber)
	}
	return trimmed
}

func (s *vectorStore) normalizeScore(score float64) float64 {
	switch strings.ToLower(strings.TrimSpace(s.distance)) {
	case "euclid", "manhattan":
		if score < 0 {
			score = -score
		}
		return 1.0 / (1.0 + score)
	default:
		return score
	}
}

func (s *vectorStore) thresholdOnServer() bool {
	switch strings.ToLower(strings.TrimSpace(s.distance)) {
	case "euclid", "manhattan":
		return false
	default:
		return true
	}
}
