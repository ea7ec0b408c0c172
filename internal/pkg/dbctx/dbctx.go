package dbctx

import (
	"context"

	"gorm.io/gorm"
)

// Context bundles a request context with an optional GORM transaction.
// Repos fall back to their own pooled handle when Tx is nil, so callers
// outside a transaction can pass Context{Ctx: ctx} and nothing else.
type Context struct {
	Ctx context.Context
	Tx  *gorm.DB
}

// WithTx returns a copy of c bound to tx. Used by the ingest orchestrator
// to rebind repo calls inside a persistence transaction.
func (c Context) WithTx(tx *gorm.DB) Context {
	return Context{Ctx: c.Ctx, Tx: tx}
}
