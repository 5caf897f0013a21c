package dbctx

import (
	"context"

	"gorm.io/gorm"
)

// Context bundles a request context with an optional GORM transaction.
type Context struct {
	Ctx context.Context
	Tx  *gorm.DB
}

// DB returns the transaction when set, otherwise fallback, bound to Ctx.
func (c Context) DB(fallback *gorm.DB) *gorm.DB {
	db := fallback
	if c.Tx != nil {
		db = c.Tx
	}
	if c.Ctx != nil {
		db = db.WithContext(c.Ctx)
	}
	return db
}
