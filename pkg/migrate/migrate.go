// Package migrate applies the embedded SQL migrations with pgx.
package migrate

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

const versionTable = "schema_migrations"

// Migration is one numbered schema step.
type Migration struct {
	Version int
	Name    string
	UpSQL   string
	DownSQL string
}

// Load reads NNNNNN_name.up.sql / .down.sql pairs from fsys. Versions must be
// contiguous starting at 1 and every version needs an up file.
func Load(fsys fs.FS) ([]Migration, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("read migrations: %w", err)
	}

	byVersion := map[int]*Migration{}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		var up bool
		switch {
		case strings.HasSuffix(name, ".up.sql"):
			up = true
		case strings.HasSuffix(name, ".down.sql"):
		default:
			continue
		}
		prefix, rest, ok := strings.Cut(name, "_")
		if !ok {
			continue
		}
		version, err := strconv.Atoi(prefix)
		if err != nil || version <= 0 {
			continue
		}
		data, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", name, err)
		}

		m, ok := byVersion[version]
		if !ok {
			m = &Migration{Version: version, Name: strings.TrimSuffix(strings.TrimSuffix(rest, ".up.sql"), ".down.sql")}
			byVersion[version] = m
		}
		if up {
			m.UpSQL = string(data)
		} else {
			m.DownSQL = string(data)
		}
	}

	if len(byVersion) == 0 {
		return nil, errors.New("no migration files found")
	}

	migrations := make([]Migration, 0, len(byVersion))
	for _, m := range byVersion {
		migrations = append(migrations, *m)
	}
	sort.Slice(migrations, func(i, j int) bool { return migrations[i].Version < migrations[j].Version })
	for i, m := range migrations {
		if m.Version != i+1 {
			return nil, fmt.Errorf("migration %d missing", i+1)
		}
		if strings.TrimSpace(m.UpSQL) == "" {
			return nil, fmt.Errorf("migration %d has no up.sql", m.Version)
		}
	}
	return migrations, nil
}

// Statements splits a migration body on semicolons, dropping empty statements.
func Statements(body string) []string {
	parts := strings.Split(body, ";")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Migrator applies migrations over a dedicated pgx connection.
type Migrator struct {
	conn       *pgx.Conn
	migrations []Migration
	logger     *zap.Logger
}

// New connects to Postgres and prepares the given migrations.
func New(ctx context.Context, dsn string, migrations []Migration, logger *zap.Logger) (*Migrator, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	m := &Migrator{conn: conn, migrations: migrations, logger: logger}
	if _, err := conn.Exec(ctx, "CREATE TABLE IF NOT EXISTS "+versionTable+" (version INT PRIMARY KEY, applied_at TIMESTAMPTZ NOT NULL DEFAULT now())"); err != nil {
		_ = conn.Close(ctx)
		return nil, fmt.Errorf("ensure %s: %w", versionTable, err)
	}
	return m, nil
}

// Close releases the connection.
func (m *Migrator) Close(ctx context.Context) error {
	return m.conn.Close(ctx)
}

// Version returns the highest applied version, 0 when none.
func (m *Migrator) Version(ctx context.Context) (int, error) {
	var version *int
	err := m.conn.QueryRow(ctx, "SELECT MAX(version) FROM "+versionTable).Scan(&version)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "42P01" {
			return 0, nil
		}
		return 0, fmt.Errorf("current migration version: %w", err)
	}
	if version == nil {
		return 0, nil
	}
	return *version, nil
}

// Up applies every pending migration, each in its own transaction.
func (m *Migrator) Up(ctx context.Context) error {
	current, err := m.Version(ctx)
	if err != nil {
		return err
	}
	for _, mig := range m.migrations {
		if mig.Version <= current {
			continue
		}
		if err := m.apply(ctx, mig.Version, mig.UpSQL, true); err != nil {
			return err
		}
		m.logger.Info("migration applied", zap.Int("version", mig.Version), zap.String("name", mig.Name))
	}
	return nil
}

// Down rolls back the latest applied migration.
func (m *Migrator) Down(ctx context.Context) error {
	current, err := m.Version(ctx)
	if err != nil {
		return err
	}
	if current == 0 {
		return errors.New("no migrations to roll back")
	}
	mig := m.migrations[current-1]
	if strings.TrimSpace(mig.DownSQL) == "" {
		return fmt.Errorf("migration %d has no down.sql", current)
	}
	if err := m.apply(ctx, mig.Version, mig.DownSQL, false); err != nil {
		return err
	}
	m.logger.Info("migration rolled back", zap.Int("version", mig.Version), zap.String("name", mig.Name))
	return nil
}

func (m *Migrator) apply(ctx context.Context, version int, body string, up bool) error {
	tx, err := m.conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin migration %d: %w", version, err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	for i, stmt := range Statements(body) {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d statement %d: %w", version, i+1, err)
		}
	}

	record := "INSERT INTO " + versionTable + " (version) VALUES ($1) ON CONFLICT (version) DO NOTHING"
	if !up {
		record = "DELETE FROM " + versionTable + " WHERE version = $1"
	}
	if _, err := tx.Exec(ctx, record, version); err != nil {
		return fmt.Errorf("record migration %d: %w", version, err)
	}
	return tx.Commit(ctx)
}

// SeedAdmin creates the bootstrap admin unless any admin account already exists.
// It reports whether a row was inserted.
func (m *Migrator) SeedAdmin(ctx context.Context, id, name, email, passwordHash string) (bool, error) {
	tag, err := m.conn.Exec(ctx, `
		INSERT INTO users (id, name, email, password_hash, role)
		SELECT $1::uuid, $2::text, $3::text, $4::text, 'admin'
		WHERE NOT EXISTS (SELECT 1 FROM users WHERE role = 'admin')
		ON CONFLICT (email) DO NOTHING`, id, name, email, passwordHash)
	if err != nil {
		return false, fmt.Errorf("seed admin: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}
