package strata

import (
	"context"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/require"

	"github.com/syssam/strata/dialect"
	sqldialect "github.com/syssam/strata/dialect/sql"
)

const userInsert = `INSERT INTO "users" ("name", "email", "role", "created_at", "updated_at") VALUES ($1, $2, $3, $4, $5) RETURNING "id"`

func TestCreate(t *testing.T) {
	c, mock := newMockClient(t)
	mock.ExpectQuery(userInsert).
		WithArgs("alice", "alice@example.com", "user", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(7)))

	rec, err := c.Create(context.Background(), "User", map[string]any{
		"name":  "alice",
		"email": "alice@example.com",
	})
	require.NoError(t, err)
	require.True(t, rec.Exists())
	require.Equal(t, int64(7), rec.ID())
	// Declared defaults applied for missing fields.
	require.Equal(t, "user", rec.GetString("role"))
	require.False(t, rec.GetTime("created_at").IsZero())
	require.False(t, rec.IsDirty())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateGuardsMassAssignment(t *testing.T) {
	c, mock := newMockClient(t)
	mock.ExpectQuery(userInsert).
		WithArgs("alice", "a@b.c", "user", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(1)))

	rec, err := c.Create(context.Background(), "User", map[string]any{
		"name":      "alice",
		"email":     "a@b.c",
		"api_token": "injected",
		"id":        int64(999),
	})
	require.NoError(t, err)
	require.Nil(t, rec.Get("api_token"))
	require.Equal(t, int64(1), rec.ID())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateLastInsertID(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	c := NewClient(newTestRegistry(t), Driver(sqldialect.OpenDB(dialect.SQLite, db)))

	mock.ExpectExec(`INSERT INTO "users" ("name", "email", "role", "created_at", "updated_at") VALUES (?, ?, ?, ?, ?)`).
		WithArgs("bob", "bob@example.com", "user", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(11, 1))

	rec, err := c.Create(context.Background(), "User", map[string]any{
		"name":  "bob",
		"email": "bob@example.com",
	})
	require.NoError(t, err)
	require.Equal(t, int64(11), rec.ID())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateValidationError(t *testing.T) {
	c, mock := newMockClient(t)
	_, err := c.Create(context.Background(), "User", map[string]any{
		"name":  "alice",
		"email": "a@b.c",
		"role":  "superuser",
	})
	require.True(t, IsValidationError(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateConstraintError(t *testing.T) {
	c, mock := newMockClient(t)
	mock.ExpectQuery(userInsert).
		WithArgs("alice", "a@b.c", "user", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnError(&pq.Error{Code: "23505", Message: `duplicate key value violates unique constraint "users_email_key"`})

	_, err := c.Create(context.Background(), "User", map[string]any{
		"name":  "alice",
		"email": "a@b.c",
	})
	require.True(t, IsConstraintError(err))
	var me *MutationError
	require.True(t, errors.As(err, &me))
	require.Equal(t, "create", me.Op)
	require.NoError(t, mock.ExpectationsWereMet())
}

func persistedUser(t *testing.T, c *Client, id int64) *Record {
	t.Helper()
	desc, err := c.Registry().Lookup("User")
	require.NoError(t, err)
	rec, err := hydrate(desc, map[string]any{
		"id":         id,
		"name":       "alice",
		"email":      "alice@example.com",
		"role":       "user",
		"created_at": time.Now().Add(-time.Hour),
		"updated_at": time.Now().Add(-time.Hour),
	})
	require.NoError(t, err)
	return rec
}

func TestSaveDirtyColumnsOnly(t *testing.T) {
	c, mock := newMockClient(t)
	rec := persistedUser(t, c, 1)
	require.NoError(t, rec.Set("name", "bob"))

	mock.ExpectExec(`UPDATE "users" SET "name" = $1, "updated_at" = $2 WHERE "id" = $3`).
		WithArgs("bob", sqlmock.AnyArg(), int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, c.Save(context.Background(), rec))
	require.False(t, rec.IsDirty())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveCleanRecordIsNoOp(t *testing.T) {
	c, mock := newMockClient(t)
	rec := persistedUser(t, c, 1)
	require.NoError(t, c.Save(context.Background(), rec))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveNewRecordInserts(t *testing.T) {
	c, mock := newMockClient(t)
	desc, _ := c.Registry().Lookup("Post")
	rec := newRecord(desc).Fill(map[string]any{
		"title":   "hello",
		"user_id": int64(1),
	})
	mock.ExpectQuery(`INSERT INTO "posts" ("title", "published", "user_id") VALUES ($1, $2, $3) RETURNING "id"`).
		WithArgs("hello", false, int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(5)))

	require.NoError(t, c.Save(context.Background(), rec))
	require.True(t, rec.Exists())
	require.Equal(t, int64(5), rec.ID())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFind(t *testing.T) {
	c, mock := newMockClient(t)
	mock.ExpectQuery(userSelect + ` WHERE ("id" = $1) AND ("deleted_at" IS NULL) LIMIT 1`).
		WithArgs(int64(7)).
		WillReturnRows(userRows(7))

	rec, err := c.Find(context.Background(), "User", int64(7))
	require.NoError(t, err)
	require.Equal(t, int64(7), rec.ID())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFindNotFound(t *testing.T) {
	c, mock := newMockClient(t)
	mock.ExpectQuery(userSelect + ` WHERE ("id" = $1) AND ("deleted_at" IS NULL) LIMIT 1`).
		WithArgs(int64(404)).
		WillReturnRows(userRows())

	_, err := c.Find(context.Background(), "User", int64(404))
	require.True(t, IsNotFound(err))
	var nfe *NotFoundError
	require.True(t, errors.As(err, &nfe))
	require.Equal(t, int64(404), nfe.ID())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteSoft(t *testing.T) {
	c, mock := newMockClient(t)
	rec := persistedUser(t, c, 1)
	mock.ExpectExec(`UPDATE "users" SET "deleted_at" = $1 WHERE "id" = $2`).
		WithArgs(sqlmock.AnyArg(), int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, c.Delete(context.Background(), rec))
	require.True(t, rec.Trashed())
	require.True(t, rec.Exists())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteHard(t *testing.T) {
	c, mock := newMockClient(t)
	desc, _ := c.Registry().Lookup("Post")
	rec, err := hydrate(desc, map[string]any{"id": int64(3), "title": "hi"})
	require.NoError(t, err)

	mock.ExpectExec(`DELETE FROM "posts" WHERE "id" = $1`).
		WithArgs(int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, c.Delete(context.Background(), rec))
	require.False(t, rec.Exists())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestForceDelete(t *testing.T) {
	c, mock := newMockClient(t)
	rec := persistedUser(t, c, 1)
	mock.ExpectExec(`DELETE FROM "users" WHERE "id" = $1`).
		WithArgs(int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, c.ForceDelete(context.Background(), rec))
	require.False(t, rec.Exists())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRestore(t *testing.T) {
	c, mock := newMockClient(t)
	rec := persistedUser(t, c, 1)
	rec.attrs[DeletedColumn] = time.Now()
	rec.syncOriginal()
	require.True(t, rec.Trashed())

	mock.ExpectExec(`UPDATE "users" SET "deleted_at" = $1 WHERE "id" = $2`).
		WithArgs(nil, int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, c.Restore(context.Background(), rec))
	require.False(t, rec.Trashed())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRestoreRequiresSoftDeletes(t *testing.T) {
	c, _ := newMockClient(t)
	desc, _ := c.Registry().Lookup("Post")
	rec := newRecord(desc)
	err := c.Restore(context.Background(), rec)
	require.True(t, IsConfigError(err))
}

func TestWithTxCommit(t *testing.T) {
	c, mock := newMockClient(t)
	mock.ExpectBegin()
	mock.ExpectQuery(userInsert).
		WithArgs("alice", "a@b.c", "user", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(1)))
	mock.ExpectCommit()

	err := WithTx(context.Background(), c, func(tx *Client) error {
		_, err := tx.Create(context.Background(), "User", map[string]any{
			"name":  "alice",
			"email": "a@b.c",
		})
		return err
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTxRollbackOnError(t *testing.T) {
	c, mock := newMockClient(t)
	mock.ExpectBegin()
	mock.ExpectRollback()

	boom := errors.New("boom")
	err := WithTx(context.Background(), c, func(tx *Client) error {
		return boom
	})
	require.ErrorIs(t, err, boom)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNestedTxRejected(t *testing.T) {
	c, mock := newMockClient(t)
	mock.ExpectBegin()
	mock.ExpectRollback()

	tx, err := c.Tx(context.Background())
	require.NoError(t, err)
	_, err = tx.Client().Tx(context.Background())
	require.ErrorIs(t, err, ErrTxStarted)
	require.NoError(t, tx.Rollback())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStatementTimeout(t *testing.T) {
	c, mock := newMockClient(t, StatementTimeout(10*time.Millisecond))
	mock.ExpectQuery(userSelect + ` WHERE "deleted_at" IS NULL`).
		WillDelayFor(200 * time.Millisecond).
		WillReturnRows(userRows())

	_, err := c.Entity("User").All(context.Background())
	require.Error(t, err)
	require.True(t, IsTimeout(err))
}
