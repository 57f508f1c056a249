package migrate

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	atlas "ariga.io/atlas/sql/migrate"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/syssam/strata/dialect"
	sqldialect "github.com/syssam/strata/dialect/sql"
)

func sqliteDriver(t *testing.T) *sqldialect.Driver {
	t.Helper()
	db, err := sql.Open("sqlite", "file:"+filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return sqldialect.OpenDB(dialect.SQLite, db)
}

func ddlMigration(version, name, up, down string, applied, reverted *[]string) *Migration {
	m := &Migration{
		Version: version,
		Name:    name,
		Up: func(ctx context.Context, conn dialect.ExecQuerier) error {
			if applied != nil {
				*applied = append(*applied, version)
			}
			return conn.Exec(ctx, up, []any{}, nil)
		},
	}
	if down != "" {
		m.Down = func(ctx context.Context, conn dialect.ExecQuerier) error {
			if reverted != nil {
				*reverted = append(*reverted, version)
			}
			return conn.Exec(ctx, down, []any{}, nil)
		}
	}
	return m
}

func TestMigratorAppliesInVersionOrder(t *testing.T) {
	drv := sqliteDriver(t)
	m := NewMigrator(drv)
	var applied []string
	// Registered out of order on purpose.
	require.NoError(t, m.Add(
		ddlMigration("3", "add_comments", `CREATE TABLE c (id integer)`, `DROP TABLE c`, &applied, nil),
		ddlMigration("1", "add_users", `CREATE TABLE u (id integer)`, `DROP TABLE u`, &applied, nil),
		ddlMigration("2", "add_posts", `CREATE TABLE p (id integer)`, `DROP TABLE p`, &applied, nil),
	))

	ctx := context.Background()
	n, err := m.Up(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, n)
	require.Equal(t, []string{"1", "2", "3"}, applied)

	statuses, err := m.Statuses(ctx)
	require.NoError(t, err)
	require.Len(t, statuses, 3)
	for _, s := range statuses {
		require.True(t, s.Applied)
		require.Equal(t, int64(1), s.Batch)
		require.False(t, s.AppliedAt.IsZero())
	}

	// Idempotent: a second run has nothing to do.
	n, err = m.Up(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, n)
}

func TestMigratorFailStop(t *testing.T) {
	drv := sqliteDriver(t)
	m := NewMigrator(drv)
	require.NoError(t, m.Add(
		ddlMigration("1", "ok", `CREATE TABLE a (id integer)`, "", nil, nil),
		ddlMigration("2", "broken", `CREATE SYNTAX ERROR`, "", nil, nil),
		ddlMigration("3", "never_reached", `CREATE TABLE b (id integer)`, "", nil, nil),
	))

	ctx := context.Background()
	n, err := m.Up(ctx)
	require.Error(t, err)
	require.Equal(t, 1, n)
	var me *MigrationError
	require.True(t, errors.As(err, &me))
	require.Equal(t, "2", me.Version)

	statuses, err := m.Statuses(ctx)
	require.NoError(t, err)
	require.True(t, statuses[0].Applied)
	require.False(t, statuses[1].Applied)
	require.False(t, statuses[2].Applied)
}

func TestMigratorRollbackLastBatch(t *testing.T) {
	drv := sqliteDriver(t)
	m := NewMigrator(drv)
	var reverted []string
	ctx := context.Background()

	require.NoError(t, m.Add(
		ddlMigration("1", "base", `CREATE TABLE a (id integer)`, `DROP TABLE a`, nil, &reverted),
	))
	_, err := m.Up(ctx)
	require.NoError(t, err)

	require.NoError(t, m.Add(
		ddlMigration("2", "second", `CREATE TABLE b (id integer)`, `DROP TABLE b`, nil, &reverted),
		ddlMigration("3", "third", `CREATE TABLE c (id integer)`, `DROP TABLE c`, nil, &reverted),
	))
	_, err = m.Up(ctx)
	require.NoError(t, err)

	// Only the latest batch is reverted, newest first.
	n, err := m.Rollback(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, n)
	require.Equal(t, []string{"3", "2"}, reverted)

	statuses, err := m.Statuses(ctx)
	require.NoError(t, err)
	require.True(t, statuses[0].Applied)
	require.False(t, statuses[1].Applied)
	require.False(t, statuses[2].Applied)

	n, err = m.Rollback(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	// Nothing left to roll back.
	n, err = m.Rollback(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, n)
}

func TestMigratorIrreversible(t *testing.T) {
	drv := sqliteDriver(t)
	m := NewMigrator(drv)
	ctx := context.Background()
	require.NoError(t, m.Add(
		ddlMigration("1", "one_way", `CREATE TABLE a (id integer)`, "", nil, nil),
	))
	_, err := m.Up(ctx)
	require.NoError(t, err)

	_, err = m.Rollback(ctx)
	require.ErrorIs(t, err, ErrIrreversible)

	// The batch stays applied.
	statuses, err := m.Statuses(ctx)
	require.NoError(t, err)
	require.True(t, statuses[0].Applied)
}

func TestMigratorAddValidation(t *testing.T) {
	m := NewMigrator(sqliteDriver(t))
	require.NoError(t, m.Add(&Migration{Version: "1", Up: func(context.Context, dialect.ExecQuerier) error { return nil }}))
	require.Error(t, m.Add(&Migration{Version: "1", Up: func(context.Context, dialect.ExecQuerier) error { return nil }}))
	require.Error(t, m.Add(&Migration{Version: "", Up: func(context.Context, dialect.ExecQuerier) error { return nil }}))
	require.Error(t, m.Add(&Migration{Version: "2"}))
}

func TestMigrationUpFailureRollsBackItsTransaction(t *testing.T) {
	drv := sqliteDriver(t)
	m := NewMigrator(drv)
	ctx := context.Background()
	require.NoError(t, m.Add(&Migration{
		Version: "1",
		Name:    "partial",
		Up: func(ctx context.Context, conn dialect.ExecQuerier) error {
			if err := conn.Exec(ctx, `CREATE TABLE a (id integer)`, []any{}, nil); err != nil {
				return err
			}
			return errors.New("boom")
		},
	}))
	_, err := m.Up(ctx)
	require.Error(t, err)

	// The failed migration left no trace.
	err = drv.Exec(ctx, `INSERT INTO a (id) VALUES (1)`, []any{}, nil)
	require.Error(t, err)
}

func TestCreateTables(t *testing.T) {
	drv := sqliteDriver(t)
	users, posts := testTables(t)
	ctx := context.Background()
	require.NoError(t, Create(ctx, drv, users, posts))

	err := drv.Exec(ctx, `INSERT INTO users (name, email, role) VALUES ('a', 'a@b.c', 'admin')`, []any{}, nil)
	require.NoError(t, err)
	// Enum domain enforced through the CHECK constraint.
	err = drv.Exec(ctx, `INSERT INTO users (name, email, role) VALUES ('b', 'b@b.c', 'root')`, []any{}, nil)
	require.Error(t, err)
}

func TestWritePlan(t *testing.T) {
	p := t.TempDir()
	dir, err := atlas.NewLocalDir(p)
	require.NoError(t, err)

	users, posts := testTables(t)
	plan := Plan("init", dialect.Postgres, users, posts)
	require.Len(t, plan.Changes, 2)
	require.NoError(t, WritePlan(dir, atlas.DefaultFormatter, plan))

	entries, err := os.ReadDir(p)
	require.NoError(t, err)
	var sqlFile string
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), "_init.sql") {
			sqlFile = e.Name()
		}
	}
	require.NotEmpty(t, sqlFile)
	data, err := os.ReadFile(filepath.Join(p, sqlFile))
	require.NoError(t, err)
	require.Contains(t, string(data), `CREATE TABLE IF NOT EXISTS "users"`)
	require.Contains(t, string(data), `CREATE TABLE IF NOT EXISTS "posts"`)

	require.FileExists(t, filepath.Join(p, atlas.HashFileName))
	require.NoError(t, atlas.Validate(dir))
}
