package repo

import (
	"context"
	"testing"
	"time"

	"github.com/angelmondragon/roha-backend/pkg/db/dbtest"
)

type row struct {
	ID        int64 `gorm:"primaryKey"`
	Label     string
	CreatedAt time.Time
}

func TestBindKeepsConnectionWithoutTx(t *testing.T) {
	db := dbtest.Open(t, &row{})
	base := NewBase(db)

	if base.Bind(nil).db != db {
		t.Fatalf("expected nil tx to keep the original connection")
	}
	tx := db.Begin()
	defer tx.Rollback()
	if base.Bind(tx).db != tx {
		t.Fatalf("expected Bind to use the transaction")
	}
}

func TestDBBindsContext(t *testing.T) {
	base := NewBase(dbtest.Open(t, &row{}))

	type key struct{}
	ctx := context.WithValue(context.Background(), key{}, "value")
	withCtx := base.DB(ctx)
	if withCtx.Statement == nil || withCtx.Statement.Context != ctx {
		t.Fatalf("expected statement bound to the supplied context")
	}
}

func TestNewestFirstBreaksTiesByID(t *testing.T) {
	db := dbtest.Open(t, &row{})
	at := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	rows := []row{
		{ID: 1, Label: "old", CreatedAt: at.Add(-time.Hour)},
		{ID: 2, Label: "tie-low", CreatedAt: at},
		{ID: 3, Label: "tie-high", CreatedAt: at},
	}
	if err := db.Create(&rows).Error; err != nil {
		t.Fatalf("seed rows: %v", err)
	}

	var got []row
	if err := NewBase(db).DB(context.Background()).Scopes(NewestFirst("")).Find(&got).Error; err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(got) != 3 || got[0].ID != 3 || got[1].ID != 2 || got[2].ID != 1 {
		t.Fatalf("unexpected order: %+v", got)
	}
}
