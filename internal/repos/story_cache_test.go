package repos

import (
  "context"
  "testing"

  "github.com/google/uuid"
  "gorm.io/datatypes"

  "github.com/moveatlas/moveatlas-backend/internal/pkg/dbctx"
  "github.com/moveatlas/moveatlas-backend/internal/repos/testutil"
  "github.com/moveatlas/moveatlas-backend/internal/types"
)

func TestStoryCacheRepo(t *testing.T) {
  db := testutil.DB(t)
  tx := testutil.Tx(t, db)
  dbc := dbctx.Context{Ctx: context.Background(), Tx: tx}
  repo := NewStoryCacheRepo(db, testutil.Logger(t))

  hash := "a3f5" + uuid.NewString()[:8]

  miss, err := repo.GetByHash(dbc, hash)
  if err != nil || miss != nil {
    t.Fatalf("GetByHash miss: want=(nil,nil) got=(%+v,%v)", miss, err)
  }

  entry := &types.StoryCache{
    ID:         uuid.New(),
    PromptHash: hash,
    Prompt:     "stories for: handstand",
    Stories:    datatypes.JSON(`["hold the line","upside down morning"]`),
  }
  if _, err := repo.Put(dbc, entry); err != nil {
    t.Fatalf("Put: %v", err)
  }

  hit, err := repo.GetByHash(dbc, hash)
  if err != nil || hit == nil {
    t.Fatalf("GetByHash hit: got=(%+v,%v)", hit, err)
  }
  if hit.UseCount != 0 || hit.LastUsedAt != nil {
    t.Fatalf("fresh entry counters: %+v", hit)
  }

  if err := repo.Touch(dbc, hash); err != nil {
    t.Fatalf("Touch: %v", err)
  }
  if err := repo.Touch(dbc, hash); err != nil {
    t.Fatalf("Touch: %v", err)
  }
  touched, err := repo.GetByHash(dbc, hash)
  if err != nil || touched == nil {
    t.Fatalf("GetByHash touched: got=(%+v,%v)", touched, err)
  }
  if touched.UseCount != 2 || touched.LastUsedAt == nil {
    t.Fatalf("touch counters: want use_count=2 got=%+v", touched)
  }

  // Same prompt hash written again refreshes the payload instead of erroring.
  refreshed := &types.StoryCache{
    ID:         uuid.New(),
    PromptHash: hash,
    Prompt:     "stories for: handstand",
    Stories:    datatypes.JSON(`["wall walk wednesday"]`),
  }
  if _, err := repo.Put(dbc, refreshed); err != nil {
    t.Fatalf("Put refresh: %v", err)
  }
  after, err := repo.GetByHash(dbc, hash)
  if err != nil || after == nil {
    t.Fatalf("GetByHash after refresh: got=(%+v,%v)", after, err)
  }
  if string(after.Stories) != `["wall walk wednesday"]` {
    t.Fatalf("refreshed stories: got=%s", after.Stories)
  }
}
