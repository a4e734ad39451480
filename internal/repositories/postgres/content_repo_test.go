package postgres

import (
	"context"
	"strings"
	"testing"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// dryRunDB builds SQL without touching a database; the captured statement is
// what would be sent to Postgres.
func dryRunDB(t *testing.T, captured *string) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(postgres.New(postgres.Config{
		DSN:                  "host=localhost user=test dbname=test",
		PreferSimpleProtocol: true,
	}), &gorm.Config{
		DryRun:               true,
		DisableAutomaticPing: true,
	})
	if err != nil {
		t.Fatalf("open dry-run db: %v", err)
	}
	err = db.Callback().Query().After("gorm:query").Register("capture_sql", func(tx *gorm.DB) {
		*captured = tx.Statement.SQL.String()
	})
	if err != nil {
		t.Fatalf("register callback: %v", err)
	}
	return db
}

func TestSearchByEmbeddingGeneratesVectorOrderBy(t *testing.T) {
	var sql string
	r := &contentRepo{db: dryRunDB(t, &sql)}

	if _, err := r.SearchByEmbedding(context.Background(), []float32{0.1, 0.2, 0.3}, 3); err != nil {
		t.Fatalf("SearchByEmbedding: %v", err)
	}

	if !strings.Contains(sql, "ORDER BY embedding <=> ") {
		t.Fatalf("generated SQL missing vector ORDER BY: %q", sql)
	}
	if !strings.Contains(sql, "LIMIT") {
		t.Fatalf("generated SQL missing LIMIT: %q", sql)
	}
}

func TestListByChapterGeneratesChapterFilter(t *testing.T) {
	var sql string
	r := &contentRepo{db: dryRunDB(t, &sql)}

	if _, err := r.ListByChapter(context.Background(), "quadratic-equations", 5); err != nil {
		t.Fatalf("ListByChapter: %v", err)
	}

	if !strings.Contains(sql, "chapter_id") {
		t.Fatalf("generated SQL missing chapter filter: %q", sql)
	}
	if !strings.Contains(sql, "ORDER BY created_at") {
		t.Fatalf("generated SQL missing created_at ordering: %q", sql)
	}
}
