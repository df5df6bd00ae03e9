package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/blake2b"

	"github.com/egcoder/telegram-ai-bot/internal/logging"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

var (
	// ErrSchemaDrift means an applied migration no longer matches the
	// embedded file. Grants and the ledger chain are only trusted on the
	// schema they were written with, so startup stops.
	ErrSchemaDrift = errors.New("applied migration was modified")
	// ErrSchemaAhead means the database carries migrations this binary does
	// not know, i.e. it was written by a newer release.
	ErrSchemaAhead = errors.New("database schema is newer than this binary")
)

// Migration is one numbered schema step. Files are named NNN_label.sql.
type Migration struct {
	Seq      int
	Name     string
	Checksum string
	sql      string
}

// Migrate applies pending migrations.
func (db *DB) Migrate() error {
	return db.MigrateContext(context.Background())
}

// MigrateContext applies pending migrations in sequence order, each in its
// own transaction together with its _migrations row.
func (db *DB) MigrateContext(ctx context.Context) error {
	return db.migrate(ctx, migrationsFS)
}

func (db *DB) migrate(ctx context.Context, fsys fs.FS) error {
	if _, err := db.conn.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS _migrations (
			seq        INTEGER PRIMARY KEY,
			name       TEXT NOT NULL UNIQUE,
			checksum   TEXT NOT NULL,
			applied_at INTEGER NOT NULL
		)
	`); err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	known, err := loadMigrations(fsys)
	if err != nil {
		return err
	}
	applied, err := db.appliedChecksums(ctx)
	if err != nil {
		return err
	}

	bySeq := make(map[int]Migration, len(known))
	for _, m := range known {
		bySeq[m.Seq] = m
	}
	for seq, sum := range applied {
		m, ok := bySeq[seq]
		if !ok {
			return fmt.Errorf("%w: migration %d", ErrSchemaAhead, seq)
		}
		if m.Checksum != sum {
			return fmt.Errorf("%w: %s", ErrSchemaDrift, m.Name)
		}
	}

	for _, m := range known {
		if _, ok := applied[m.Seq]; ok {
			continue
		}
		if err := db.apply(ctx, m); err != nil {
			return fmt.Errorf("migration %s: %w", m.Name, err)
		}
		logging.WithFields(map[string]interface{}{
			"migration": m.Name,
			"checksum":  m.Checksum[:12],
		}).Info("applied migration")
	}
	return nil
}

// Migrations returns the applied migrations in order.
func (db *DB) Migrations(ctx context.Context) ([]Migration, error) {
	rows, err := db.conn.QueryContext(ctx, "SELECT seq, name, checksum FROM _migrations ORDER BY seq")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Migration
	for rows.Next() {
		var m Migration
		if err := rows.Scan(&m.Seq, &m.Name, &m.Checksum); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (db *DB) appliedChecksums(ctx context.Context) (map[int]string, error) {
	applied, err := db.Migrations(ctx)
	if err != nil {
		return nil, fmt.Errorf("read applied migrations: %w", err)
	}
	sums := make(map[int]string, len(applied))
	for _, m := range applied {
		sums[m.Seq] = m.Checksum
	}
	return sums, nil
}

func (db *DB) apply(ctx context.Context, m Migration) error {
	return db.TransactionContext(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, m.sql); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx,
			"INSERT INTO _migrations (seq, name, checksum, applied_at) VALUES (?, ?, ?, ?)",
			m.Seq, m.Name, m.Checksum, time.Now().UnixNano())
		return err
	})
}

// loadMigrations reads migrations/*.sql from fsys sorted by sequence.
func loadMigrations(fsys fs.FS) ([]Migration, error) {
	names, err := fs.Glob(fsys, "migrations/*.sql")
	if err != nil {
		return nil, fmt.Errorf("list migrations: %w", err)
	}

	seen := make(map[int]string, len(names))
	out := make([]Migration, 0, len(names))
	for _, p := range names {
		name := path.Base(p)
		seq, err := migrationSeq(name)
		if err != nil {
			return nil, err
		}
		if prev, dup := seen[seq]; dup {
			return nil, fmt.Errorf("migrations %s and %s share sequence %d", prev, name, seq)
		}
		seen[seq] = name

		content, err := fs.ReadFile(fsys, p)
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", name, err)
		}
		sum := blake2b.Sum256(content)
		out = append(out, Migration{
			Seq:      seq,
			Name:     name,
			Checksum: hex.EncodeToString(sum[:]),
			sql:      string(content),
		})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, nil
}

func migrationSeq(name string) (int, error) {
	prefix, _, ok := strings.Cut(name, "_")
	if !ok {
		return 0, fmt.Errorf("migration %s: name must be NNN_label.sql", name)
	}
	seq, err := strconv.Atoi(prefix)
	if err != nil || seq <= 0 {
		return 0, fmt.Errorf("migration %s: bad sequence %q", name, prefix)
	}
	return seq, nil
}
