package migrate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/syssam/strata/dialect"
	sqldialect "github.com/syssam/strata/dialect/sql"
)

// DefaultTable is the bookkeeping table recording applied migrations.
const DefaultTable = "strata_migrations"

// ErrIrreversible is returned when rolling back a migration that declares
// no Down step.
var ErrIrreversible = errors.New("migrate: migration is irreversible")

// Migration is one versioned schema change. Versions order lexically, so
// timestamp versions like "20260815120000" apply in creation order.
type Migration struct {
	// Version is the unique, lexically ordered migration version.
	Version string
	// Name describes the change, recorded in the bookkeeping table.
	Name string
	// Up applies the change.
	Up func(ctx context.Context, conn dialect.ExecQuerier) error
	// Down reverses the change. Nil marks the migration irreversible.
	Down func(ctx context.Context, conn dialect.ExecQuerier) error
}

// MigrationError reports a failure while applying or reverting one
// migration. Migrations after the failing one are left untouched.
type MigrationError struct {
	Version string
	Name    string
	Err     error
}

// Error returns the error string.
func (e *MigrationError) Error() string {
	return fmt.Sprintf("migrate: %s %s: %v", e.Version, e.Name, e.Err)
}

// Unwrap returns the underlying error.
func (e *MigrationError) Unwrap() error { return e.Err }

// Status is the bookkeeping view of one known migration.
type Status struct {
	Version   string
	Name      string
	Applied   bool
	Batch     int64
	AppliedAt time.Time
}

// Migrator applies and reverts versioned migrations against a driver.
// Every Up run groups its applied migrations into one batch; Rollback
// reverts exactly the latest batch.
type Migrator struct {
	driver     dialect.Driver
	log        *slog.Logger
	table      string
	noTx       bool
	migrations []*Migration
}

// MigratorOption configures a Migrator.
type MigratorOption func(*Migrator)

// WithLog sets the structured logger of the migrator.
func WithLog(l *slog.Logger) MigratorOption {
	return func(m *Migrator) { m.log = l }
}

// WithTable overrides the bookkeeping table name.
func WithTable(name string) MigratorOption {
	return func(m *Migrator) { m.table = name }
}

// WithoutTransactions runs each migration directly on the driver instead
// of wrapping it in a transaction. Intended for engines whose DDL
// auto-commits, such as MySQL, where the wrapping buys nothing.
func WithoutTransactions() MigratorOption {
	return func(m *Migrator) { m.noTx = true }
}

// NewMigrator returns a Migrator bound to the driver.
func NewMigrator(driver dialect.Driver, opts ...MigratorOption) *Migrator {
	m := &Migrator{
		driver: driver,
		log:    slog.Default(),
		table:  DefaultTable,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Add registers migrations. Duplicate or empty versions are rejected.
func (m *Migrator) Add(migrations ...*Migration) error {
	seen := make(map[string]bool, len(m.migrations))
	for _, known := range m.migrations {
		seen[known.Version] = true
	}
	for _, mg := range migrations {
		if mg.Version == "" {
			return fmt.Errorf("migrate: migration %q has no version", mg.Name)
		}
		if mg.Up == nil {
			return fmt.Errorf("migrate: migration %s has no Up step", mg.Version)
		}
		if seen[mg.Version] {
			return fmt.Errorf("migrate: duplicate version %s", mg.Version)
		}
		seen[mg.Version] = true
		m.migrations = append(m.migrations, mg)
	}
	return nil
}

// Up applies every pending migration in ascending version order and
// records them under a new batch. The first failure stops the run; the
// failing migration's transaction is rolled back and everything applied
// before it stays applied.
func (m *Migrator) Up(ctx context.Context) (int, error) {
	if err := m.ensureTable(ctx); err != nil {
		return 0, err
	}
	applied, maxBatch, err := m.applied(ctx)
	if err != nil {
		return 0, err
	}
	pending := make([]*Migration, 0, len(m.migrations))
	for _, mg := range m.migrations {
		if _, done := applied[mg.Version]; !done {
			pending = append(pending, mg)
		}
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].Version < pending[j].Version })
	batch := maxBatch + 1
	for i, mg := range pending {
		if err := m.applyOne(ctx, mg, batch); err != nil {
			return i, err
		}
		m.log.InfoContext(ctx, "migration applied", "version", mg.Version, "name", mg.Name, "batch", batch)
	}
	return len(pending), nil
}

// tx demarcates one migration step.
func (m *Migrator) tx(ctx context.Context) (dialect.Tx, error) {
	if m.noTx {
		return dialect.NopTx(m.driver), nil
	}
	return m.driver.Tx(ctx)
}

// applyOne runs one migration and its bookkeeping insert in a single
// transaction.
func (m *Migrator) applyOne(ctx context.Context, mg *Migration, batch int64) error {
	tx, err := m.tx(ctx)
	if err != nil {
		return &MigrationError{Version: mg.Version, Name: mg.Name, Err: err}
	}
	if err := mg.Up(ctx, tx); err != nil {
		_ = tx.Rollback()
		return &MigrationError{Version: mg.Version, Name: mg.Name, Err: err}
	}
	query, args := sqldialect.Dialect(m.driver.Dialect()).
		Insert(m.table).
		Columns("version", "name", "batch", "applied_at").
		Values(mg.Version, mg.Name, batch, time.Now().UTC()).
		Query()
	if err := tx.Exec(ctx, query, args, nil); err != nil {
		_ = tx.Rollback()
		return &MigrationError{Version: mg.Version, Name: mg.Name, Err: err}
	}
	if err := tx.Commit(); err != nil {
		return &MigrationError{Version: mg.Version, Name: mg.Name, Err: err}
	}
	return nil
}

// Rollback reverts the latest batch in descending version order. A
// migration without a Down step aborts the rollback with ErrIrreversible
// before any of the batch is touched.
func (m *Migrator) Rollback(ctx context.Context) (int, error) {
	if err := m.ensureTable(ctx); err != nil {
		return 0, err
	}
	applied, maxBatch, err := m.applied(ctx)
	if err != nil {
		return 0, err
	}
	if maxBatch == 0 {
		return 0, nil
	}
	byVersion := make(map[string]*Migration, len(m.migrations))
	for _, mg := range m.migrations {
		byVersion[mg.Version] = mg
	}
	var revert []*Migration
	for version, batch := range applied {
		if batch != maxBatch {
			continue
		}
		mg, known := byVersion[version]
		if !known {
			return 0, fmt.Errorf("migrate: applied version %s is not registered", version)
		}
		if mg.Down == nil {
			return 0, &MigrationError{Version: mg.Version, Name: mg.Name, Err: ErrIrreversible}
		}
		revert = append(revert, mg)
	}
	sort.Slice(revert, func(i, j int) bool { return revert[i].Version > revert[j].Version })
	for i, mg := range revert {
		if err := m.revertOne(ctx, mg); err != nil {
			return i, err
		}
		m.log.InfoContext(ctx, "migration reverted", "version", mg.Version, "name", mg.Name, "batch", maxBatch)
	}
	return len(revert), nil
}

// revertOne runs one Down step and its bookkeeping delete in a single
// transaction.
func (m *Migrator) revertOne(ctx context.Context, mg *Migration) error {
	tx, err := m.tx(ctx)
	if err != nil {
		return &MigrationError{Version: mg.Version, Name: mg.Name, Err: err}
	}
	if err := mg.Down(ctx, tx); err != nil {
		_ = tx.Rollback()
		return &MigrationError{Version: mg.Version, Name: mg.Name, Err: err}
	}
	query, args := sqldialect.Dialect(m.driver.Dialect()).
		Delete(m.table).
		Where(sqldialect.EQ("version", mg.Version)).
		Query()
	if err := tx.Exec(ctx, query, args, nil); err != nil {
		_ = tx.Rollback()
		return &MigrationError{Version: mg.Version, Name: mg.Name, Err: err}
	}
	if err := tx.Commit(); err != nil {
		return &MigrationError{Version: mg.Version, Name: mg.Name, Err: err}
	}
	return nil
}

// Statuses returns the bookkeeping view of every registered migration in
// ascending version order.
func (m *Migrator) Statuses(ctx context.Context) ([]*Status, error) {
	if err := m.ensureTable(ctx); err != nil {
		return nil, err
	}
	query, args := sqldialect.Dialect(m.driver.Dialect()).
		Select("version", "name", "batch", "applied_at").
		From(m.table).
		Query()
	var rows sqldialect.Rows
	if err := m.driver.Query(ctx, query, args, &rows); err != nil {
		return nil, err
	}
	raw, err := sqldialect.ScanMaps(rows)
	if err != nil {
		return nil, err
	}
	rec := make(map[string]*Status, len(raw))
	for _, row := range raw {
		s := &Status{Applied: true}
		s.Version, _ = asString(row["version"])
		s.Name, _ = asString(row["name"])
		s.Batch = asInt64(row["batch"])
		if t, ok := asTime(row["applied_at"]); ok {
			s.AppliedAt = t
		}
		rec[s.Version] = s
	}
	out := make([]*Status, 0, len(m.migrations))
	for _, mg := range m.migrations {
		if s, ok := rec[mg.Version]; ok {
			out = append(out, s)
			continue
		}
		out = append(out, &Status{Version: mg.Version, Name: mg.Name})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

// ensureTable creates the bookkeeping table if missing.
func (m *Migrator) ensureTable(ctx context.Context) error {
	var ddl string
	switch m.driver.Dialect() {
	case dialect.Postgres:
		ddl = fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %q ("version" varchar(128) PRIMARY KEY, "name" varchar(255) NOT NULL, "batch" bigint NOT NULL, "applied_at" timestamptz NOT NULL)`, m.table)
	case dialect.MySQL:
		ddl = fmt.Sprintf("CREATE TABLE IF NOT EXISTS `%s` (`version` varchar(128) PRIMARY KEY, `name` varchar(255) NOT NULL, `batch` bigint NOT NULL, `applied_at` datetime NOT NULL)", m.table)
	default:
		ddl = fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %q ("version" text PRIMARY KEY, "name" text NOT NULL, "batch" integer NOT NULL, "applied_at" datetime NOT NULL)`, m.table)
	}
	return m.driver.Exec(ctx, ddl, []any{}, nil)
}

// applied returns the applied versions with their batch, plus the highest
// batch number.
func (m *Migrator) applied(ctx context.Context) (map[string]int64, int64, error) {
	query, args := sqldialect.Dialect(m.driver.Dialect()).
		Select("version", "batch").
		From(m.table).
		Query()
	var rows sqldialect.Rows
	if err := m.driver.Query(ctx, query, args, &rows); err != nil {
		return nil, 0, err
	}
	raw, err := sqldialect.ScanMaps(rows)
	if err != nil {
		return nil, 0, err
	}
	applied := make(map[string]int64, len(raw))
	var maxBatch int64
	for _, row := range raw {
		version, ok := asString(row["version"])
		if !ok {
			continue
		}
		batch := asInt64(row["batch"])
		applied[version] = batch
		if batch > maxBatch {
			maxBatch = batch
		}
	}
	return applied, maxBatch, nil
}

func asString(v any) (string, bool) {
	switch s := v.(type) {
	case string:
		return s, true
	case []byte:
		return string(s), true
	}
	return "", false
}

// asTime tolerates drivers that hand datetime columns back as text.
func asTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case []byte:
		return parseTime(string(t))
	case string:
		return parseTime(t)
	}
	return time.Time{}, false
}

func parseTime(s string) (time.Time, bool) {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05.999999999-07:00", "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func asInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case []byte:
		var out int64
		fmt.Sscanf(string(n), "%d", &out)
		return out
	}
	return 0
}
