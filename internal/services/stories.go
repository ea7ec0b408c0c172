package services

import (
  "context"
  "crypto/sha256"
  "encoding/hex"
  "encoding/json"
  "strconv"
  "strings"
  "unicode"

  "gorm.io/datatypes"

  "github.com/moveatlas/moveatlas-backend/internal/clients/openai"
  "github.com/moveatlas/moveatlas-backend/internal/pkg/dbctx"
  pkgerrors "github.com/moveatlas/moveatlas-backend/internal/pkg/errors"
  "github.com/moveatlas/moveatlas-backend/internal/platform/logger"
  "github.com/moveatlas/moveatlas-backend/internal/repos"
  "github.com/moveatlas/moveatlas-backend/internal/types"
)

const (
  defaultStoryCount = 5
  maxStoryCount     = 10
)

const storySystemPrompt = "You are an expert fitness coach. Given user requirements, you produce short, distinct, actionable exercise stories. Each story describes one specific exercise or movement goal in natural language. Be concise."

// StoryService turns a free-form user prompt into short exercise stories
// that drive vector retrieval. Results are memoized by prompt hash; when
// the model is unavailable the fixed fallback list keeps the product
// usable.
type StoryService interface {
  GenerateStories(ctx context.Context, prompt string, n int) ([]string, error)
}

type storyService struct {
  log       *logger.Logger
  ai        openai.Client
  cacheRepo repos.StoryCacheRepo
  cfg       RetrievalConfig
}

func NewStoryService(
  baseLog *logger.Logger,
  ai openai.Client,
  cacheRepo repos.StoryCacheRepo,
  cfg RetrievalConfig,
) StoryService {
  return &storyService{
    log:       baseLog.With("service", "StoryService"),
    ai:        ai,
    cacheRepo: cacheRepo,
    cfg:       cfg,
  }
}

func (s *storyService) GenerateStories(ctx context.Context, prompt string, n int) ([]string, error) {
  prompt = strings.TrimSpace(prompt)
  if prompt == "" {
    return nil, pkgerrors.ErrInvalidArgument
  }
  if n <= 0 {
    n = defaultStoryCount
  }
  if n > maxStoryCount {
    n = maxStoryCount
  }

  dbc := dbctx.Context{Ctx: ctx}
  hash := promptHash(prompt)

  if entry, err := s.cacheRepo.GetByHash(dbc, hash); err != nil {
    s.log.Warn("story cache read failed", "error", err)
  } else if entry != nil {
    var cached []string
    if err := json.Unmarshal(entry.Stories, &cached); err != nil {
      s.log.Warn("story cache entry unparsable, regenerating", "prompt_hash", hash, "error", err)
    } else if len(cached) >= n {
      if err := s.cacheRepo.Touch(dbc, hash); err != nil {
        s.log.Warn("story cache touch failed", "error", err)
      }
      s.log.Info("story cache hit", "prompt_hash", hash, "stories", n)
      return cached[:n], nil
    }
  }

  user := "USER REQUIREMENTS: " + prompt + "\n\nGenerate up to " + strconv.Itoa(n) + " distinct exercise stories. Return them as a numbered list, one per line, nothing else."
  text, err := s.ai.GenerateText(ctx, storySystemPrompt, user)
  if err != nil {
    s.log.Warn("story generation failed, serving fallback list", "error", err)
    return clampStories(s.cfg.FallbackStories, n), nil
  }

  stories := parseStoryList(text, n)
  if len(stories) == 0 {
    s.log.Warn("story generation returned nothing parsable, serving fallback list")
    return clampStories(s.cfg.FallbackStories, n), nil
  }

  raw, err := json.Marshal(stories)
  if err == nil {
    if _, err := s.cacheRepo.Put(dbc, &types.StoryCache{
      PromptHash: hash,
      Prompt:     prompt,
      Stories:    datatypes.JSON(raw),
    }); err != nil {
      s.log.Warn("story cache write failed", "error", err)
    }
  }

  s.log.Info("generated stories", "prompt_hash", hash, "stories", len(stories))
  return stories, nil
}

// promptHash hashes the normalized prompt: lowercased, punctuation
// stripped, whitespace collapsed. "Help my tight hips!" and "help my
// tight hips" land on the same cache entry.
func promptHash(prompt string) string {
  var b strings.Builder
  lastSpace := true
  for _, r := range strings.ToLower(strings.TrimSpace(prompt)) {
    switch {
    case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_':
      b.WriteRune(r)
      lastSpace = false
    case unicode.IsSpace(r):
      if !lastSpace {
        b.WriteByte(' ')
        lastSpace = true
      }
    }
  }
  normalized := strings.TrimRight(b.String(), " ")
  sum := sha256.Sum256([]byte(normalized))
  return hex.EncodeToString(sum[:])
}

// parseStoryList accepts numbered lists, bulleted lists, or bare lines.
func parseStoryList(text string, n int) []string {
  var out []string
  for _, line := range strings.Split(text, "\n") {
    line = strings.TrimSpace(line)
    if line == "" {
      continue
    }
    line = strings.TrimLeft(line, "0123456789.)-*• \t")
    line = strings.TrimSpace(line)
    if line == "" {
      continue
    }
    out = append(out, line)
    if len(out) >= n {
      break
    }
  }
  return out
}

func clampStories(stories []string, n int) []string {
  if len(stories) > n {
    return stories[:n]
  }
  out := make([]string, len(stories))
  copy(out, stories)
  return out
}
