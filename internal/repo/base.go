package repo

import (
	"context"

	"gorm.io/gorm"
)

// Base is embedded by the domain repositories.
type Base struct {
	db *gorm.DB
}

func NewBase(db *gorm.DB) Base {
	return Base{db: db}
}

// DB returns the connection bound to ctx.
func (b Base) DB(ctx context.Context) *gorm.DB {
	if ctx == nil {
		return b.db
	}
	return b.db.WithContext(ctx)
}

// Bind returns a Base on tx, or b itself when tx is nil so callers outside a
// transaction keep the pooled connection.
func (b Base) Bind(tx *gorm.DB) Base {
	if tx == nil {
		return b
	}
	return Base{db: tx}
}

// NewestFirst sorts by created_at then id, both descending. alias qualifies
// the columns when the query joins other tables.
func NewestFirst(alias string) func(*gorm.DB) *gorm.DB {
	prefix := ""
	if alias != "" {
		prefix = alias + "."
	}
	return func(q *gorm.DB) *gorm.DB {
		return q.Order(prefix + "created_at DESC").Order(prefix + "id DESC")
	}
}
