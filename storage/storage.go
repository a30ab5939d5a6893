// Package storage persists rooms, furniture, the furniture catalog, users,
// script key/value stores and script document collections.
package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-pkgz/expirable-cache/v3"
	"github.com/jmoiron/sqlx"
	"github.com/zond/juiceroom"
	"github.com/zond/juiceroom/storage/dbm"
	"github.com/zond/juiceroom/storage/docdb"
	"github.com/zond/juiceroom/structs"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

const (
	sqliteDriver   = "sqlite"
	postgresDriver = "postgres"

	defaultDefinitionTTL  = 10 * time.Minute
	defaultDefinitionKeys = 4096
)

func init() {
	sqlx.BindDriver(sqliteDriver, sqlx.QUESTION)
}

type Options struct {
	// Dir holds the key/value tree, the audit log, and the sqlite database
	// unless SQL is set.
	Dir string
	// SQL is a postgres:// URL. Empty means sqlite in Dir.
	SQL string
	// MaxCollections caps the document collections of each room.
	MaxCollections int
	DefinitionTTL  time.Duration
}

type Storage struct {
	sql         *sqlx.DB
	driver      string
	kv          *dbm.Tree
	docs        *docdb.DB
	definitions cache.Cache[int, *structs.FurnitureDefinition]
	audit       *AuditLogger
}

func New(ctx context.Context, opts Options) (*Storage, error) {
	if err := os.MkdirAll(opts.Dir, 0700); err != nil {
		return nil, juiceroom.WithStack(err)
	}
	driver, dsn := sqliteDriver, fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", filepath.Join(opts.Dir, "juiceroom.db"))
	if strings.HasPrefix(opts.SQL, "postgres://") || strings.HasPrefix(opts.SQL, "postgresql://") {
		driver, dsn = postgresDriver, opts.SQL
	} else if opts.SQL != "" {
		return nil, juiceroom.WithStack(fmt.Errorf("unsupported SQL URL %q", opts.SQL))
	}
	db, err := sqlx.ConnectContext(ctx, driver, dsn)
	if err != nil {
		return nil, juiceroom.WithStack(err)
	}
	if driver == sqliteDriver {
		db.SetMaxOpenConns(1)
	}
	for _, stmt := range schema(driver) {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, juiceroom.WithStack(fmt.Errorf("%w: %s", err, stmt))
		}
	}
	docs, err := docdb.New(ctx, db, opts.MaxCollections)
	if err != nil {
		db.Close()
		return nil, err
	}
	kv, err := dbm.OpenTree(filepath.Join(opts.Dir, "kv"))
	if err != nil {
		db.Close()
		return nil, err
	}
	audit, err := NewAuditLogger(filepath.Join(opts.Dir, "audit.log"))
	if err != nil {
		db.Close()
		kv.Close()
		return nil, err
	}
	ttl := opts.DefinitionTTL
	if ttl <= 0 {
		ttl = defaultDefinitionTTL
	}
	return &Storage{
		sql:         db,
		driver:      driver,
		kv:          kv,
		docs:        docs,
		definitions: cache.NewCache[int, *structs.FurnitureDefinition]().WithMaxKeys(defaultDefinitionKeys).WithLRU().WithTTL(ttl),
		audit:       audit,
	}, nil
}

func (s *Storage) Close() error {
	errs := juiceroom.Errs{}
	if err := s.sql.Close(); err != nil {
		errs = append(errs, juiceroom.WithStack(err))
	}
	if err := s.kv.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := s.audit.Close(); err != nil {
		errs = append(errs, juiceroom.WithStack(err))
	}
	return errs.Err()
}

// Docs is the document store room scripts use as their database.
func (s *Storage) Docs() *docdb.DB {
	return s.docs
}

func (s *Storage) AuditLog(ctx context.Context, event string, data AuditData) {
	s.audit.Log(ctx, event, data)
}

func schema(driver string) []string {
	id, bigID, floatType := "INTEGER PRIMARY KEY", "INTEGER PRIMARY KEY", "REAL"
	if driver == postgresDriver {
		id, bigID, floatType = "SERIAL PRIMARY KEY", "BIGSERIAL PRIMARY KEY", "DOUBLE PRECISION"
	}
	return []string{
		`CREATE TABLE IF NOT EXISTS furniture_definitions (
			id ` + id + `,
			sprite_id INTEGER NOT NULL,
			name TEXT NOT NULL,
			width INTEGER NOT NULL DEFAULT 1,
			length INTEGER NOT NULL DEFAULT 1,
			stack_height ` + floatType + ` NOT NULL DEFAULT 0,
			can_stack BOOLEAN NOT NULL DEFAULT FALSE,
			can_sit BOOLEAN NOT NULL DEFAULT FALSE,
			can_lay BOOLEAN NOT NULL DEFAULT FALSE,
			can_walk BOOLEAN NOT NULL DEFAULT FALSE,
			interaction_type TEXT NOT NULL DEFAULT '',
			interaction_modes_count INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS rooms (
			id ` + id + `,
			name TEXT NOT NULL,
			owner_id BIGINT NOT NULL DEFAULT 0,
			heightmap TEXT NOT NULL,
			script TEXT NOT NULL DEFAULT '',
			config TEXT NOT NULL DEFAULT '{}'
		)`,
		`CREATE TABLE IF NOT EXISTS furni (
			id ` + id + `,
			room_id INTEGER NOT NULL,
			definition_id INTEGER NOT NULL,
			kind TEXT NOT NULL,
			owner_id BIGINT NOT NULL DEFAULT 0,
			x INTEGER NOT NULL,
			y INTEGER NOT NULL,
			z ` + floatType + ` NOT NULL DEFAULT 0,
			rotation INTEGER NOT NULL DEFAULT 0,
			state TEXT NOT NULL DEFAULT '0',
			wall_position TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS furni_room ON furni (room_id)`,
		`CREATE TABLE IF NOT EXISTS users (
			id ` + bigID + `,
			name TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL,
			wizard BOOLEAN NOT NULL DEFAULT FALSE,
			home_room INTEGER NOT NULL DEFAULT 0,
			figure TEXT NOT NULL DEFAULT '',
			motto TEXT NOT NULL DEFAULT ''
		)`,
	}
}
