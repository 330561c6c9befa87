package testutil

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"

	"github.com/jmoiron/sqlx"

	"github.com/trezcool/masomo-credits/core"
	"github.com/trezcool/masomo-credits/core/credit"
	"github.com/trezcool/masomo-credits/storage/database"
)

// DatabaseURLEnv holds the connection string of the database used by integration tests.
const DatabaseURLEnv = "TEST_DATABASE_URL"

// PrepareDB opens the test database, migrates it and empties the ledger tables.
// the test is skipped when no test database is configured.
func PrepareDB(t *testing.T) *sqlx.DB {
	t.Helper()

	dsn := os.Getenv(DatabaseURLEnv)
	if dsn == "" {
		t.Skipf("%s is not set: skipping database test", DatabaseURLEnv)
	}

	db, err := database.OpenURL(context.Background(), dsn, 5)
	if err != nil {
		t.Fatalf("PrepareDB() failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err = database.Migrate(db.DB, "up"); err != nil {
		t.Fatalf("PrepareDB() failed: %v", err)
	}
	ResetDB(t, db)
	return db
}

// ResetDB empties the ledger tables, the seeded catalog is kept.
func ResetDB(t *testing.T, db *sqlx.DB) {
	t.Helper()

	if _, err := db.Exec("TRUNCATE credit_usage, credit_transaction, credit_balance"); err != nil {
		t.Fatalf("ResetDB() failed: %v", err)
	}
}

// NewConfig returns the app config with test defaults.
func NewConfig() *core.Config {
	conf := core.NewConfig()
	conf.TestMode = true
	return conf
}

// Credit tops up the owner's balance by `amount` credits.
func Credit(t *testing.T, repo credit.Repository, owner string, amount int64) credit.Balance {
	t.Helper()

	bal, err := repo.Credit(context.Background(), owner, amount, credit.NowFunc())
	if err != nil {
		t.Fatalf("Credit() failed: %v", err)
	}
	return bal
}

type LogEntry struct {
	Level string
	Msg   string
	Args  []interface{}
}

// Logger is a core.Logger that records entries instead of printing them.
type Logger struct {
	mu      sync.Mutex
	entries []LogEntry
}

var _ core.Logger = (*Logger)(nil)

func (l *Logger) log(level, msg string, args []interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, LogEntry{Level: level, Msg: msg, Args: args})
}

func (l *Logger) Debug(msg string, args ...interface{}) { l.log("debug", msg, args) }
func (l *Logger) Info(msg string, args ...interface{})  { l.log("info", msg, args) }
func (l *Logger) Warn(msg string, args ...interface{})  { l.log("warn", msg, args) }
func (l *Logger) Error(msg string, args ...interface{}) { l.log("error", msg, args) }
func (l *Logger) Fatal(msg string, args ...interface{}) {
	l.log("fatal", msg, args)
	panic(fmt.Sprintf("fatal: %s", msg))
}

// Entries returns the recorded entries of the given level (all when empty).
func (l *Logger) Entries(level string) []LogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	entries := make([]LogEntry, 0, len(l.entries))
	for _, e := range l.entries {
		if level == "" || e.Level == level {
			entries = append(entries, e)
		}
	}
	return entries
}
