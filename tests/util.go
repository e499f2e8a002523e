package testutil

import (
	"context"
	"fmt"
	"log"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/trezcool/colegio/core"
	"github.com/trezcool/colegio/core/document"
	"github.com/trezcool/colegio/core/task"
	"github.com/trezcool/colegio/core/user"
	"github.com/trezcool/colegio/storage/database"
)

var dbCounter int64

// PrepareDB opens a fresh migrated in-memory database, closed when t ends.
func PrepareDB(t *testing.T) *sqlx.DB {
	t.Helper()

	// a named shared-cache memory database per test, so that tests never see each other's rows
	dsn := fmt.Sprintf("file:testdb%d?mode=memory&cache=shared", atomic.AddInt64(&dbCounter, 1))
	db, err := sqlx.Open(database.EngineSQLite, dsn)
	if err != nil {
		t.Fatalf("PrepareDB() failed: %v", err)
	}
	db.SetMaxOpenConns(1)
	if err = database.Migrate(db); err != nil {
		t.Fatalf("PrepareDB() failed: %v", err)
	}

	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Errorf("db.Close() failed: %v", err)
		}
	})
	return db
}

// NewValidator returns a validator with every custom validation registered.
func NewValidator() *validator.Validate {
	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	document.InitValidators(validate, translator)
	task.InitValidators(validate, translator)
	return validate
}

// QuotaConfig returns the default limits.
func QuotaConfig() core.QuotaConfig {
	return core.QuotaConfig{DocumentsLimit: 500 * core.MiB, EvidencesLimit: 1 * core.GiB}
}

func CreateUser(
	t *testing.T,
	repo user.Repository,
	name, email string,
	roles []string,
	isActive bool,
	createdAt ...time.Time,
) user.User {
	t.Helper()

	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	if roles == nil {
		roles = []string{}
	}
	usr, err := repo.CreateUser(context.Background(), user.User{
		Name:      name,
		Email:     email,
		Roles:     roles,
		IsActive:  isActive,
		CreatedAt: tstamp,
	})
	if err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	return usr
}

// Logger discards every record, or prints them when verbose.
type Logger struct {
	Verbose bool

	Warnings int64
	Errors   int64
}

var _ core.Logger = (*Logger)(nil)

func (l *Logger) print(level, msg string) {
	if l.Verbose {
		log.Printf("%s: %s", level, msg)
	}
}

func (l *Logger) Debug(msg string, _ ...interface{}) { l.print("DEBUG", msg) }
func (l *Logger) Info(msg string, _ ...interface{})  { l.print("INFO", msg) }

func (l *Logger) Warn(msg string, _ ...interface{}) {
	atomic.AddInt64(&l.Warnings, 1)
	l.print("WARN", msg)
}

func (l *Logger) Error(msg string, _ ...interface{}) {
	atomic.AddInt64(&l.Errors, 1)
	l.print("ERROR", msg)
}

func (l *Logger) Fatal(msg string, _ ...interface{}) {
	l.print("FATAL", msg)
	panic(msg)
}
