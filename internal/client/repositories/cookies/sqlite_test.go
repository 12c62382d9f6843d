package cookies

import (
	"bytes"
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/dmitrijs2005/biru/internal/client/models"
	"github.com/dmitrijs2005/biru/internal/cryptox"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

var testNow = time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`
CREATE TABLE cookies (
  name       TEXT PRIMARY KEY,
  value      BLOB NOT NULL,
  expires_at INTEGER NOT NULL
);`)
	require.NoError(t, err)
	return db
}

func newRepo(t *testing.T, db *sql.DB, sealer Sealer) *SQLiteRepository {
	t.Helper()
	r := NewSQLiteRepository(db, sealer)
	r.now = func() time.Time { return testNow }
	return r
}

func TestSetAndGet_Plain(t *testing.T) {
	r := newRepo(t, setupDB(t), nil)
	ctx := context.Background()

	require.NoError(t, r.Set(ctx, &models.Cookie{Name: "did", Value: "did:plc:alice", ExpiresAt: testNow.Add(time.Hour)}))

	c, err := r.Get(ctx, "did")
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, "did:plc:alice", c.Value)
	assert.Equal(t, testNow.Add(time.Hour).Unix(), c.ExpiresAt.Unix())
}

func TestGet_AbsentReturnsNilNil(t *testing.T) {
	r := newRepo(t, setupDB(t), nil)

	c, err := r.Get(context.Background(), "server")
	require.NoError(t, err)
	assert.Nil(t, c)
}

func TestGet_ExpiredReturnsNilNil(t *testing.T) {
	r := newRepo(t, setupDB(t), nil)
	ctx := context.Background()

	require.NoError(t, r.Set(ctx, &models.Cookie{Name: "access_token", Value: "tok", ExpiresAt: testNow.Add(-time.Minute)}))

	c, err := r.Get(ctx, "access_token")
	require.NoError(t, err)
	assert.Nil(t, c)
}

func TestSet_Upserts(t *testing.T) {
	r := newRepo(t, setupDB(t), nil)
	ctx := context.Background()
	exp := testNow.Add(time.Hour)

	require.NoError(t, r.Set(ctx, &models.Cookie{Name: "server", Value: "bsky.social", ExpiresAt: exp}))
	require.NoError(t, r.Set(ctx, &models.Cookie{Name: "server", Value: "pds.example.com", ExpiresAt: exp}))

	c, err := r.Get(ctx, "server")
	require.NoError(t, err)
	assert.Equal(t, "pds.example.com", c.Value)
}

func TestSealer_StoresCiphertext(t *testing.T) {
	db := setupDB(t)
	sealer, err := cryptox.NewSealer(bytes.Repeat([]byte{3}, 32))
	require.NoError(t, err)
	r := newRepo(t, db, sealer)
	ctx := context.Background()

	require.NoError(t, r.Set(ctx, &models.Cookie{Name: "refresh_token", Value: "refresh-secret", ExpiresAt: testNow.Add(time.Hour)}))

	var raw []byte
	require.NoError(t, db.QueryRow(`SELECT value FROM cookies WHERE name='refresh_token'`).Scan(&raw))
	assert.NotContains(t, string(raw), "refresh-secret")

	c, err := r.Get(ctx, "refresh_token")
	require.NoError(t, err)
	assert.Equal(t, "refresh-secret", c.Value)
}

func TestDeleteAndClear(t *testing.T) {
	r := newRepo(t, setupDB(t), nil)
	ctx := context.Background()
	exp := testNow.Add(time.Hour)

	require.NoError(t, r.Set(ctx, &models.Cookie{Name: "did", Value: "a", ExpiresAt: exp}))
	require.NoError(t, r.Set(ctx, &models.Cookie{Name: "server", Value: "b", ExpiresAt: exp}))

	require.NoError(t, r.Delete(ctx, "did"))
	require.NoError(t, r.Delete(ctx, "did"))
	c, err := r.Get(ctx, "did")
	require.NoError(t, err)
	assert.Nil(t, c)

	require.NoError(t, r.Clear(ctx))
	c, err = r.Get(ctx, "server")
	require.NoError(t, err)
	assert.Nil(t, c)
}

func TestDBErrorsWrapped(t *testing.T) {
	db := setupDB(t)
	r := newRepo(t, db, nil)
	ctx := context.Background()
	require.NoError(t, db.Close())

	_, err := r.Get(ctx, "k")
	require.ErrorContains(t, err, "failed to get cookie[k]")

	err = r.Set(ctx, &models.Cookie{Name: "k", Value: "v", ExpiresAt: testNow})
	require.ErrorContains(t, err, "failed to set cookie[k]")

	require.ErrorContains(t, r.Delete(ctx, "k"), "failed to delete cookie[k]")
	require.ErrorContains(t, r.Clear(ctx), "failed to clear cookies")
}
