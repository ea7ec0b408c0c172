package services

import (
  "os"
  "strings"

  "gopkg.in/yaml.v3"

  "github.com/moveatlas/moveatlas-backend/internal/platform/logger"
)

// CategoryRule assigns hits to one movement family. Rules are evaluated in
// declared order and the first match wins, so specific families must come
// before broad ones.
type CategoryRule struct {
  Name     string   `yaml:"name"`
  Keywords []string `yaml:"keywords"`
}

// RetrievalConfig carries the tunable halves of diverse search and story
// generation: the category table that caps near-duplicate picks, and the
// stories served when the generator model is unavailable.
type RetrievalConfig struct {
  Categories      []CategoryRule `yaml:"categories"`
  FallbackStories []string       `yaml:"fallback_stories"`
}

const categoryOther = "other"

func DefaultRetrievalConfig() RetrievalConfig {
  return RetrievalConfig{
    Categories: []CategoryRule{
      {Name: "handstand", Keywords: []string{"handstand", "hand stand", "press to hand", "inversion", "kick up"}},
      {Name: "stretch", Keywords: []string{"stretch", "mobility", "flexib", "opener", "pancake", "splits"}},
      {Name: "core", Keywords: []string{"core", "plank", "hollow", "crunch", "sit-up", "sit up", "ab ", "abs", "l-sit", "v-up"}},
      {Name: "push", Keywords: []string{"push", "press", "pike press", "dip"}},
      {Name: "hip_leg", Keywords: []string{"hip", "squat", "lunge", "leg", "glute", "hamstring", "calf"}},
      {Name: "balance", Keywords: []string{"balance", "stability", "single leg", "stabiliz"}},
      {Name: "wall", Keywords: []string{"wall"}},
      {Name: "floor", Keywords: []string{"floor", "ground", "seated", "lying", "supine", "prone"}},
    },
    FallbackStories: []string{
      "Hip flexor stretches to improve hip mobility",
      "Core strengthening exercises for handstand preparation",
      "Shoulder and wrist mobility work for handstand support",
      "Progressive handstand practice against a wall",
      "Balance and stability training for handstand progression",
    },
  }
}

// LoadRetrievalConfig returns the default table unless RETRIEVAL_CONFIG_PATH
// points at a yaml override. A broken override falls back to the default
// loudly rather than failing startup.
func LoadRetrievalConfig(log *logger.Logger) RetrievalConfig {
  cfg := DefaultRetrievalConfig()

  path := strings.TrimSpace(os.Getenv("RETRIEVAL_CONFIG_PATH"))
  if path == "" {
    return cfg
  }

  raw, err := os.ReadFile(path)
  if err != nil {
    log.Warn("retrieval config unreadable, using defaults", "path", path, "error", err)
    return cfg
  }

  var override RetrievalConfig
  if err := yaml.Unmarshal(raw, &override); err != nil {
    log.Warn("retrieval config unparsable, using defaults", "path", path, "error", err)
    return cfg
  }

  if len(override.Categories) > 0 {
    cfg.Categories = override.Categories
  }
  if len(override.FallbackStories) > 0 {
    cfg.FallbackStories = override.FallbackStories
  }
  log.Info("loaded retrieval config override",
    "path", path,
    "categories", len(cfg.Categories),
    "fallback_stories", len(cfg.FallbackStories),
  )
  return cfg
}

// Categorize maps an exercise to its movement family by scanning the rule
// table in order over the lowercased name plus how-to text.
func (rc RetrievalConfig) Categorize(name, howTo string) string {
  haystack := strings.ToLower(name + " " + howTo)
  for _, rule := range rc.Categories {
    for _, kw := range rule.Keywords {
      if kw != "" && strings.Contains(haystack, strings.ToLower(kw)) {
        return rule.Name
      }
    }
  }
  return categoryOther
}
