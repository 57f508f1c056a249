package strata

import (
	"context"
	stdsql "database/sql"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/syssam/strata/dialect"
	sqldialect "github.com/syssam/strata/dialect/sql"
)

func newMockClient(t *testing.T, opts ...Option) (*Client, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return newMockClientOn(t, db, opts...), mock
}

func newMockClientOn(t *testing.T, db *stdsql.DB, opts ...Option) *Client {
	t.Helper()
	reg := newTestRegistry(t)
	opts = append([]Option{Driver(sqldialect.OpenDB(dialect.Postgres, db))}, opts...)
	return NewClient(reg, opts...)
}

const userSelect = `SELECT "id", "name", "email", "role", "age", "api_token", "created_at", "updated_at", "deleted_at" FROM "users"`

func userRows(ids ...int64) *sqlmock.Rows {
	rows := sqlmock.NewRows([]string{"id", "name", "email", "role", "age"})
	for _, id := range ids {
		rows.AddRow(id, "alice", "alice@example.com", "user", int64(30))
	}
	return rows
}

func TestQueryAll(t *testing.T) {
	c, mock := newMockClient(t)
	mock.ExpectQuery(userSelect + ` WHERE ("role" = $1) AND ("deleted_at" IS NULL)`).
		WithArgs("admin").
		WillReturnRows(userRows(1, 2))

	recs, err := c.Entity("User").Where("role", "=", "admin").All(context.Background())
	require.NoError(t, err)
	require.Len(t, recs, 2)
	require.Equal(t, int64(1), recs[0].ID())
	require.True(t, recs[0].Exists())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestQuerySoftDeleteDefaultScope(t *testing.T) {
	c, mock := newMockClient(t)
	mock.ExpectQuery(userSelect + ` WHERE "deleted_at" IS NULL`).
		WillReturnRows(userRows(1))

	_, err := c.Entity("User").All(context.Background())
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestQueryWithTrashed(t *testing.T) {
	c, mock := newMockClient(t)
	mock.ExpectQuery(userSelect).
		WillReturnRows(userRows(1))

	_, err := c.Entity("User").WithTrashed().All(context.Background())
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestQueryOnlyTrashed(t *testing.T) {
	c, mock := newMockClient(t)
	mock.ExpectQuery(userSelect + ` WHERE "deleted_at" IS NOT NULL`).
		WillReturnRows(userRows(3))

	recs, err := c.Entity("User").OnlyTrashed().All(context.Background())
	require.NoError(t, err)
	require.Len(t, recs, 1)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestQueryTrashedFlagsConflict(t *testing.T) {
	c, mock := newMockClient(t)
	_, err := c.Entity("User").WithTrashed().OnlyTrashed().All(context.Background())
	require.True(t, IsConfigError(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestQueryNoSoftDeleteScopeOnPlainEntity(t *testing.T) {
	c, mock := newMockClient(t)
	mock.ExpectQuery(`SELECT "id", "title", "body", "published", "user_id" FROM "posts"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "title"}).AddRow(int64(1), "hi"))

	_, err := c.Entity("Post").All(context.Background())
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestQueryUnknownFieldFailsBeforeExecuting(t *testing.T) {
	c, mock := newMockClient(t)
	_, err := c.Entity("User").Where("no_such", "=", 1).All(context.Background())
	require.True(t, IsConfigError(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestQueryUnsupportedOperator(t *testing.T) {
	c, _ := newMockClient(t)
	_, err := c.Entity("User").Where("name", "~~", "x").All(context.Background())
	require.True(t, IsConfigError(err))
}

func TestQueryUnknownEntity(t *testing.T) {
	c, _ := newMockClient(t)
	_, err := c.Entity("Ghost").All(context.Background())
	require.True(t, IsConfigError(err))
}

func TestQueryScopes(t *testing.T) {
	c, mock := newMockClient(t)
	mock.ExpectQuery(userSelect+` WHERE (("deleted_at" IS NULL) AND ("age" >= $1)) AND ("role" = $2)`).
		WithArgs(18, "admin").
		WillReturnRows(userRows(1))

	// Scopes compose conjunctively in application order.
	_, err := c.Entity("User").Scope("adults").Scope("admins").All(context.Background())
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestQueryUnknownScope(t *testing.T) {
	c, _ := newMockClient(t)
	_, err := c.Entity("User").Scope("minors").All(context.Background())
	require.True(t, IsConfigError(err))
}

func TestQueryFirst(t *testing.T) {
	c, mock := newMockClient(t)
	mock.ExpectQuery(userSelect + ` WHERE ("email" = $1) AND ("deleted_at" IS NULL) LIMIT 1`).
		WithArgs("alice@example.com").
		WillReturnRows(userRows(1))

	rec, err := c.Entity("User").Where("email", "=", "alice@example.com").First(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(1), rec.ID())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestQueryFirstNotFound(t *testing.T) {
	c, mock := newMockClient(t)
	mock.ExpectQuery(userSelect + ` WHERE ("email" = $1) AND ("deleted_at" IS NULL) LIMIT 1`).
		WithArgs("ghost@example.com").
		WillReturnRows(userRows())

	_, err := c.Entity("User").Where("email", "=", "ghost@example.com").First(context.Background())
	require.True(t, IsNotFound(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestQueryCount(t *testing.T) {
	c, mock := newMockClient(t)
	mock.ExpectQuery(`SELECT COUNT(*) FROM "users" WHERE "deleted_at" IS NULL`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(42)))

	// Pagination does not leak into the aggregate.
	n, err := c.Entity("User").OrderBy("name").Limit(5).Count(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(42), n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestQueryExist(t *testing.T) {
	c, mock := newMockClient(t)
	mock.ExpectQuery(`SELECT "id" FROM "users" WHERE ("email" = $1) AND ("deleted_at" IS NULL) LIMIT 1`).
		WithArgs("alice@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(1)))

	ok, err := c.Entity("User").Where("email", "=", "alice@example.com").Exist(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestQueryOrderLimitOffset(t *testing.T) {
	c, mock := newMockClient(t)
	mock.ExpectQuery(userSelect + ` WHERE "deleted_at" IS NULL ORDER BY "name", "created_at" DESC LIMIT 10 OFFSET 20`).
		WillReturnRows(userRows(1))

	_, err := c.Entity("User").
		OrderBy("name").
		OrderByDesc("created_at").
		Limit(10).
		Offset(20).
		All(context.Background())
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestQueryWhereInEmptyMatchesNothing(t *testing.T) {
	c, mock := newMockClient(t)
	mock.ExpectQuery(userSelect + ` WHERE (FALSE) AND ("deleted_at" IS NULL)`).
		WillReturnRows(userRows())

	recs, err := c.Entity("User").WhereIn("id").All(context.Background())
	require.NoError(t, err)
	require.Empty(t, recs)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestQueryOrWhere(t *testing.T) {
	c, mock := newMockClient(t)
	mock.ExpectQuery(userSelect+` WHERE (("role" = $1) OR ("role" = $2)) AND ("deleted_at" IS NULL)`).
		WithArgs("admin", "user").
		WillReturnRows(userRows(1)).
		RowsWillBeClosed()

	_, err := c.Entity("User").
		Where("role", "=", "admin").
		OrWhere("role", "=", "user").
		All(context.Background())
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestQueryHydrationFailureSurfaces(t *testing.T) {
	c, mock := newMockClient(t)
	mock.ExpectQuery(userSelect + ` WHERE "deleted_at" IS NULL`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "role"}).AddRow(int64(1), "superuser"))

	_, err := c.Entity("User").All(context.Background())
	require.Error(t, err)
	require.True(t, IsValidationError(err))
}
