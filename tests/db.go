package testutil

import (
	"os"
	"strings"
	"testing"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/trezcool/dojo/storage/database"
)

var tables = []string{
	"activity_log", "attendance", "bookings", "recurring_rules", "class_sessions", "invoices", "subscriptions", "users",
}

// PrepareDB opens the database named by TEST_DATABASE_URL, brings its schema up to date and empties it.
// The test is skipped when the variable is not set.
func PrepareDB(t *testing.T) *sqlx.DB {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	db, err := database.OpenURL(url)
	if err != nil {
		t.Fatalf("PrepareDB() failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err = database.Migrate(db); err != nil {
		t.Fatalf("PrepareDB() failed: %v", err)
	}
	dbx := sqlx.NewDb(db, "postgres")
	ResetDB(t, dbx)
	return dbx
}

func ResetDB(t *testing.T, db *sqlx.DB) {
	t.Helper()
	if _, err := db.Exec("TRUNCATE " + strings.Join(tables, ", ") + " CASCADE"); err != nil {
		t.Fatalf("ResetDB() failed: %v", err)
	}
}
