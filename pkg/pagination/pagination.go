// Package pagination implements newest-first keyset paging over
// (created_at, id). Cursors are opaque to clients.
package pagination

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

var ErrInvalidCursor = errors.New("invalid cursor")

// Cursor is the position of the last row a client has seen.
type Cursor struct {
	CreatedAt time.Time `json:"t"`
	ID        int64     `json:"i"`
}

// Limit clamps a requested page size into [1, MaxLimit].
func Limit(requested int) int {
	if requested <= 0 {
		return DefaultLimit
	}
	return min(requested, MaxLimit)
}

func (c Cursor) String() string {
	raw, _ := json.Marshal(Cursor{CreatedAt: c.CreatedAt.UTC(), ID: c.ID})
	return base64.RawURLEncoding.EncodeToString(raw)
}

// Parse returns nil for a blank cursor, meaning the first page.
func Parse(value string) (*Cursor, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(value)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}
	var c Cursor
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}
	if c.ID <= 0 || c.CreatedAt.IsZero() {
		return nil, ErrInvalidCursor
	}
	return &c, nil
}

// After is a gorm scope that keeps rows strictly older than c in
// (created_at DESC, id DESC) order. A nil cursor leaves the query alone.
func After(c *Cursor) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if c == nil {
			return db
		}
		return db.Where("(created_at < ?) OR (created_at = ? AND id < ?)", c.CreatedAt, c.CreatedAt, c.ID)
	}
}

// Cut trims rows fetched with Limit(limit)+1 back to one page and returns
// the cursor for the next page, or nil when this page is the last.
func Cut[T any](rows []T, limit int, key func(T) Cursor) ([]T, *Cursor) {
	size := Limit(limit)
	if len(rows) <= size {
		return rows, nil
	}
	page := rows[:size]
	next := key(page[size-1])
	return page, &next
}
