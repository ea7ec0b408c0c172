package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/moveatlas/moveatlas-backend/internal/pkg/ctxutil"
	"github.com/moveatlas/moveatlas-backend/internal/pkg/httpx"
	"github.com/moveatlas/moveatlas-backend/internal/platform/logger"
)

// ImageInput is the normalized multimodal image input used by Client.
type ImageInput struct {
	// Can be https://... or data:image/...;base64,...
	ImageURL string
	// Optional. "low" is plenty for pose recognition on keyframes.
	Detail string // "low" | "high"
}

// TranscriptSegment is one time-aligned span from audio transcription.
type TranscriptSegment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// Client is the OpenAI API client used by the rest of the backend. The
// analyzer, embedder, transcriber and story generator all ride on it.
type Client interface {
	Embed(ctx context.Context, inputs []string) ([][]float32, error)

	// Structured outputs (json_schema)
	GenerateJSON(ctx context.Context, system string, user string, schemaName string, schema map[string]any) (map[string]any, error)

	// Multimodal: user prompt + frames -> structured output
	GenerateJSONWithImages(ctx context.Context, system string, user string, images []ImageInput, schemaName string, schema map[string]any) (map[string]any, error)

	// Plain text (no schema)
	GenerateText(ctx context.Context, system string, user string) (string, error)

	// Audio file -> time-aligned transcript segments
	Transcribe(ctx context.Context, audioPath string) ([]TranscriptSegment, error)
}

type client struct {
	log             *logger.Logger
	baseURL         string
	apiKey          string
	backupAPIKey    string
	model           string
	embedModel      string
	transcribeModel string
	httpClient      *http.Client

	maxRetries int
}

func NewClient(log *logger.Logger) (Client, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}

	apiKey := strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
	if apiKey == "" {
		return nil, fmt.Errorf("missing OPENAI_API_KEY")
	}
	backupKey := strings.TrimSpace(os.Getenv("OPENAI_API_KEY_BACKUP"))

	baseURL := strings.TrimSpace(os.Getenv("OPENAI_BASE_URL"))
	if baseURL == "" {
		baseURL = "https://api.openai.com"
	}
	baseURL = strings.TrimRight(baseURL, "/")

	model := strings.TrimSpace(os.Getenv("OPENAI_MODEL"))
	if model == "" {
		model = "gpt-5.2"
	}

	embed := strings.TrimSpace(os.Getenv("OPENAI_EMBED_MODEL"))
	if embed == "" {
		embed = "text-embedding-3-small"
	}

	transcribe := strings.TrimSpace(os.Getenv("OPENAI_TRANSCRIBE_MODEL"))
	if transcribe == "" {
		transcribe = "whisper-1"
	}

	timeoutSec := 180
	if v := os.Getenv("OPENAI_TIMEOUT_SECONDS"); v != "" {
		if parsed, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && parsed > 0 {
			timeoutSec = parsed
		}
	}

	maxRetries := 2
	if v := os.Getenv("OPENAI_MAX_RETRIES"); v != "" {
		if parsed, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && parsed >= 0 {
			maxRetries = parsed
		}
	}

	return &client{
		log:             log.With("service", "OpenAIClient"),
		baseURL:         baseURL,
		apiKey:          apiKey,
		backupAPIKey:    backupKey,
		model:           model,
		embedModel:      embed,
		transcribeModel: transcribe,
		httpClient:      &http.Client{Timeout: time.Duration(timeoutSec) * time.Second},
		maxRetries:      maxRetries,
	}, nil
}

type openAIHTTPError struct {
	StatusCode int
	Body       string
}

func (e *openAIHTTPError) Error() string {
	body := e.Body
	if len(body) > 500 {
		body = body[:500]
	}
	return fmt.Sprintf("openai http %d: %s", e.StatusCode, body)
}

func (e *openAIHTTPError) HTTPStatusCode() int {
	if e == nil {
		return 0
	}
	return e.StatusCode
}

// isQuotaError recognizes quota-shaped 429s, which warrant a credential
// swap rather than a plain retry.
func isQuotaError(err error) bool {
	var he *openAIHTTPError
	if !errors.As(err, &he) {
		return false
	}
	if he.StatusCode != http.StatusTooManyRequests {
		return false
	}
	return strings.Contains(he.Body, "insufficient_quota") ||
		strings.Contains(he.Body, "billing_hard_limit_reached")
}

func (c *client) doOnce(ctx context.Context, method, path, key string, body any) (*http.Response, []byte, error) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctxutil.Default(ctx), method, c.baseURL+path, &buf)
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Authorization", "Bearer "+key)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, err
	}

	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return resp, nil, readErr
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp, raw, &openAIHTTPError{StatusCode: resp.StatusCode, Body: string(raw)}
	}
	return resp, raw, nil
}

// do runs one JSON call with bounded retries. A quota-shaped 429 swaps in
// the backup key without resetting the attempt counter, so a pair of
// exhausted keys still terminates.
func (c *client) do(ctx context.Context, method, path string, body any, out any) error {
	backoff := 1 * time.Second
	key := c.apiKey

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		resp, raw, err := c.doOnce(ctx, method, path, key, body)
		if err == nil {
			if out == nil {
				return nil
			}
			if uErr := json.Unmarshal(raw, out); uErr != nil {
				return fmt.Errorf("openai decode error: %w; raw=%s", uErr, string(raw))
			}
			return nil
		}

		if isQuotaError(err) && c.backupAPIKey != "" && key != c.backupAPIKey {
			c.log.Warn("OpenAI primary key out of quota, switching to backup",
				"path", path,
				"attempt", attempt+1,
			)
			key = c.backupAPIKey
			continue
		}

		if !httpx.IsRetryableError(err) {
			return err
		}
		if attempt == c.maxRetries {
			return err
		}

		sleepFor := httpx.RetryAfterDuration(resp, backoff, 10*time.Second)
		sleepFor = httpx.JitterSleep(sleepFor)

		c.log.Warn("OpenAI request retrying",
			"path", path,
			"attempt", attempt+1,
			"max_retries", c.maxRetries,
			"sleep", sleepFor.String(),
			"error", err.Error(),
		)

		if sErr := ctxutil.Sleep(ctx, sleepFor); sErr != nil {
			return sErr
		}
		backoff *= 2
	}

	return fmt.Errorf("unreachable retry loop")
}

// -------------------- Embeddings --------------------

type embeddingsRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingsResponse struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
}

func (c *client) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	if len(inputs) == 0 {
		return [][]float32{}, nil
	}

	clean := make([]string, len(inputs))
	for i := range inputs {
		s := strings.TrimSpace(inputs[i])
		if s == "" {
			s = " "
		}
		clean[i] = s
	}

	req := embeddingsRequest{
		Model: c.embedModel,
		Input: clean,
	}

	out, err := c.embedOnce(ctx, req)
	if err != nil {
		return nil, err
	}
	if !hasMissingEmbeddings(out) {
		return out, nil
	}

	c.log.Warn("Embeddings response missing indices; retrying once",
		"requested", len(clean),
		"model", c.embedModel,
	)
	out, err = c.embedOnce(ctx, req)
	if err != nil {
		return nil, err
	}
	if hasMissingEmbeddings(out) {
		return nil, fmt.Errorf("openai embeddings missing indices after retry: requested=%d model=%s", len(clean), c.embedModel)
	}
	return out, nil
}

func (c *client) embedOnce(ctx context.Context, req embeddingsRequest) ([][]float32, error) {
	var resp embeddingsResponse
	if err := c.do(ctx, "POST", "/v1/embeddings", req, &resp); err != nil {
		return nil, err
	}

	out := make([][]float32, len(req.Input))
	for _, d := range resp.Data {
		vec := make([]float32, len(d.Embedding))
		for i, f := range d.Embedding {
			vec[i] = float32(f)
		}
		if d.Index >= 0 && d.Index < len(out) {
			out[d.Index] = vec
		}
	}

	// Some gateways omit index; fall back to positional order when the
	// row count lines up.
	if hasMissingEmbeddings(out) && len(resp.Data) == len(req.Input) {
		for i := range out {
			if out[i] != nil {
				continue
			}
			d := resp.Data[i]
			vec := make([]float32, len(d.Embedding))
			for j, f := range d.Embedding {
				vec[j] = float32(f)
			}
			out[i] = vec
		}
	}
	return out, nil
}

func hasMissingEmbeddings(v [][]float32) bool {
	for i := range v {
		if len(v[i]) == 0 {
			return true
		}
	}
	return false
}

// -------------------- Responses API --------------------

type responsesRequest struct {
	Model string `json:"model"`

	Input []struct {
		Role    string `json:"role"`
		Content any    `json:"content"`
	} `json:"input"`

	Text struct {
		Format map[string]any `json:"format,omitempty"`
	} `json:"text,omitempty"`

	Temperature float64 `json:"temperature,omitempty"`
}

type responsesResponse struct {
	Output []struct {
		Type    string `json:"type"`
		Role    string `json:"role,omitempty"`
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text,omitempty"`
		} `json:"content,omitempty"`
	} `json:"output"`
	Refusal string `json:"refusal,omitempty"`
}

func extractOutputText(resp responsesResponse) string {
	var out strings.Builder
	for _, item := range resp.Output {
		if item.Type == "message" && item.Role == "assistant" {
			for _, c := range item.Content {
				if c.Type == "output_text" && c.Text != "" {
					out.WriteString(c.Text)
				}
			}
		}
	}
	return out.String()
}

func (c *client) GenerateJSON(ctx context.Context, system string, user string, schemaName string, schema map[string]any) (map[string]any, error) {
	return c.GenerateJSONWithImages(ctx, system, user, nil, schemaName, schema)
}

func (c *client) GenerateJSONWithImages(ctx context.Context, system string, user string, images []ImageInput, schemaName string, schema map[string]any) (map[string]any, error) {
	if schemaName == "" {
		return nil, errors.New("schemaName required")
	}
	if schema == nil {
		return nil, errors.New("schema required")
	}

	var userContent any = user
	if len(images) > 0 {
		content := make([]map[string]any, 0, 1+len(images))
		content = append(content, map[string]any{
			"type": "input_text",
			"text": user,
		})
		for _, img := range images {
			u := strings.TrimSpace(img.ImageURL)
			if u == "" {
				continue
			}
			item := map[string]any{
				"type":      "input_image",
				"image_url": u,
			}
			if strings.TrimSpace(img.Detail) != "" {
				item["detail"] = strings.TrimSpace(img.Detail)
			}
			content = append(content, item)
		}
		userContent = content
	}

	req := responsesRequest{
		Model: c.model,
		Input: []struct {
			Role    string `json:"role"`
			Content any    `json:"content"`
		}{
			{Role: "system", Content: system},
			{Role: "user", Content: userContent},
		},
		Temperature: 0.2,
	}
	req.Text.Format = map[string]any{
		"type":   "json_schema",
		"name":   schemaName,
		"schema": schema,
		"strict": true,
	}

	var resp responsesResponse
	if err := c.do(ctx, "POST", "/v1/responses", req, &resp); err != nil {
		return nil, err
	}
	if resp.Refusal != "" {
		return nil, fmt.Errorf("model refused: %s", resp.Refusal)
	}

	jsonText := extractOutputText(resp)
	if strings.TrimSpace(jsonText) == "" {
		return nil, fmt.Errorf("no output_text found in response")
	}

	var obj map[string]any
	if err := json.Unmarshal([]byte(jsonText), &obj); err != nil {
		return nil, fmt.Errorf("failed to parse model JSON: %w; text=%s", err, jsonText)
	}
	return obj, nil
}

func (c *client) GenerateText(ctx context.Context, system string, user string) (string, error) {
	req := responsesRequest{
		Model: c.model,
		Input: []struct {
			Role    string `json:"role"`
			Content any    `json:"content"`
		}{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Temperature: 0.2,
	}

	var resp responsesResponse
	if err := c.do(ctx, "POST", "/v1/responses", req, &resp); err != nil {
		return "", err
	}
	if resp.Refusal != "" {
		return "", fmt.Errorf("model refused: %s", resp.Refusal)
	}

	text := extractOutputText(resp)
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("no output_text found in response")
	}
	return text, nil
}

// -------------------- Transcription --------------------

type transcriptionResponse struct {
	Text     string              `json:"text"`
	Segments []TranscriptSegment `json:"segments"`
}

// Transcribe uploads an audio file for verbose transcription. The retry
// loop rebuilds the multipart body each attempt because a consumed reader
// cannot be replayed.
func (c *client) Transcribe(ctx context.Context, audioPath string) ([]TranscriptSegment, error) {
	backoff := 1 * time.Second
	key := c.apiKey
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		segments, resp, err := c.transcribeOnce(ctx, key, audioPath)
		if err == nil {
			return segments, nil
		}
		lastErr = err

		if isQuotaError(err) && c.backupAPIKey != "" && key != c.backupAPIKey {
			c.log.Warn("OpenAI primary key out of quota, switching to backup",
				"path", "/v1/audio/transcriptions",
				"attempt", attempt+1,
			)
			key = c.backupAPIKey
			continue
		}

		if !httpx.IsRetryableError(err) {
			return nil, err
		}
		if attempt == c.maxRetries {
			break
		}

		sleepFor := httpx.RetryAfterDuration(resp, backoff, 10*time.Second)
		sleepFor = httpx.JitterSleep(sleepFor)
		c.log.Warn("OpenAI transcription retrying",
			"attempt", attempt+1,
			"sleep", sleepFor.String(),
			"error", err.Error(),
		)
		if sErr := ctxutil.Sleep(ctx, sleepFor); sErr != nil {
			return nil, sErr
		}
		backoff *= 2
	}
	return nil, lastErr
}

func (c *client) transcribeOnce(ctx context.Context, key, audioPath string) ([]TranscriptSegment, *http.Response, error) {
	f, err := os.Open(audioPath)
	if err != nil {
		return nil, nil, fmt.Errorf("open audio file: %w", err)
	}
	defer f.Close()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filepath.Base(audioPath))
	if err != nil {
		return nil, nil, err
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, nil, fmt.Errorf("read audio file: %w", err)
	}
	_ = mw.WriteField("model", c.transcribeModel)
	_ = mw.WriteField("response_format", "verbose_json")
	_ = mw.WriteField("timestamp_granularities[]", "segment")
	if err := mw.Close(); err != nil {
		return nil, nil, err
	}

	req, err := http.NewRequestWithContext(ctxutil.Default(ctx), "POST", c.baseURL+"/v1/audio/transcriptions", &buf)
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Authorization", "Bearer "+key)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, err
	}
	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return nil, resp, readErr
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, resp, &openAIHTTPError{StatusCode: resp.StatusCode, Body: string(raw)}
	}

	var parsed transcriptionResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, resp, fmt.Errorf("openai decode error: %w; raw=%s", err, string(raw))
	}

	segments := parsed.Segments
	if len(segments) == 0 && strings.TrimSpace(parsed.Text) != "" {
		segments = []TranscriptSegment{{Start: 0, End: 0, Text: parsed.Text}}
	}
	for i := range segments {
		segments[i].Text = strings.TrimSpace(segments[i].Text)
	}
	return segments, resp, nil
}
