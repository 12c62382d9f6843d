package services

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/dmitrijs2005/biru/internal/client/atproto"
	"github.com/dmitrijs2005/biru/internal/client/atproto/atprototest"
	"github.com/dmitrijs2005/biru/internal/client/client"
	"github.com/dmitrijs2005/biru/internal/client/models"
	"github.com/dmitrijs2005/biru/internal/client/registry"
	"github.com/dmitrijs2005/biru/internal/client/registry/registrytest"
	"github.com/dmitrijs2005/biru/internal/client/repositories/cookies"
	"github.com/dmitrijs2005/biru/internal/common"
	"github.com/dmitrijs2005/biru/internal/cryptox"
	"github.com/dmitrijs2005/biru/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	methodCreateSession  = "com.atproto.server.createSession"
	methodRefreshSession = "com.atproto.server.refreshSession"
	methodDescribeServer = "com.atproto.server.describeServer"
)

// ---- helpers ----

type env struct {
	db      *sql.DB
	sealer  *cryptox.Sealer
	pds     *atprototest.FakePDS
	reg     *registrytest.FakeRegistry
	atp     *atproto.Client
	auth    AuthService
	handles HandleService
	posts   PostService
}

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := client.InitDatabase(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func newEnv(t *testing.T) *env {
	t.Helper()
	e := &env{db: setupDB(t), pds: atprototest.New(t), reg: registrytest.New(t)}

	var err error
	e.sealer, err = cryptox.NewSealer(common.GenerateRandByteArray(32))
	require.NoError(t, err)

	e.atp = atproto.New(e.pds.Client())
	log := logging.Discard()
	e.auth = NewAuthService(e.atp, e.db, e.sealer, 24*time.Hour, log)
	e.handles = NewHandleService(e.auth, registry.New(e.reg.URL(), nil), e.db, log)
	e.posts = NewPostService(e.auth, e.atp, log)
	return e
}

func (e *env) login(t *testing.T) *models.Profile {
	t.Helper()
	p, err := e.auth.Login(context.Background(), "bsky.social", e.pds.Identifier, e.pds.Password)
	require.NoError(t, err)
	return p
}

func (e *env) cookie(t *testing.T, name string) *models.Cookie {
	t.Helper()
	c, err := cookies.NewSQLiteRepository(e.db, e.sealer).Get(context.Background(), name)
	require.NoError(t, err)
	return c
}

// ---- tests ----

func TestValidHostname(t *testing.T) {
	tests := []struct {
		host string
		want bool
	}{
		{"bsky.social", true},
		{"pds.example.com", true},
		{"xn--bcher-kva.example", true},
		{"my-pds.co.uk", true},
		{"", false},
		{"bad server", false},
		{"localhost", false},
		{"-bad.example", false},
		{"a.b.c.d", false},
		{"pds.example.com:8080", false},
	}
	for _, tt := range tests {
		t.Run(tt.host, func(t *testing.T) {
			assert.Equal(t, tt.want, ValidHostname(tt.host))
		})
	}
}

func TestLookupServer(t *testing.T) {
	e := newEnv(t)

	desc, err := e.auth.LookupServer(context.Background(), "  BSKY.social ")
	require.NoError(t, err)
	assert.Equal(t, "bsky.social", desc.Host)
	assert.Equal(t, []string{"bsky.social"}, e.pds.Hosts())
}

func TestLookupServer_InvalidMakesNoCall(t *testing.T) {
	e := newEnv(t)

	_, err := e.auth.LookupServer(context.Background(), "bad server")
	require.Error(t, err)
	assert.True(t, common.IsValidation(err))
	assert.Equal(t, 0, e.pds.Calls(methodDescribeServer))
}

func TestLookupServer_NotFound(t *testing.T) {
	e := newEnv(t)
	e.pds.Unreachable = map[string]bool{"nowhere.example": true}

	_, err := e.auth.LookupServer(context.Background(), "nowhere.example")
	require.ErrorIs(t, err, common.ErrServerNotFound)
}

func TestLogin_PersistsSession(t *testing.T) {
	e := newEnv(t)
	e.pds.DisplayName = "Alice"

	p := e.login(t)
	assert.Equal(t, "did:plc:alice", p.DID)
	assert.Equal(t, "Alice", p.DisplayName)
	assert.Equal(t, p, e.auth.CurrentUser())

	creds := e.auth.Credentials()
	assert.Equal(t, "bsky.social", creds.Server)
	assert.Equal(t, "did:plc:alice", creds.DID)

	assert.Equal(t, "did:plc:alice", e.cookie(t, common.CookieDID).Value)
	assert.Equal(t, "bsky.social", e.cookie(t, common.CookieServer).Value)
	access := e.cookie(t, common.CookieAccessToken)
	assert.Equal(t, creds.AccessToken, access.Value)
	assert.WithinDuration(t, time.Now().Add(24*time.Hour), access.ExpiresAt, time.Minute)

	var raw []byte
	require.NoError(t, e.db.QueryRow(`SELECT value FROM cookies WHERE name = ?`, common.CookieAccessToken).Scan(&raw))
	assert.NotContains(t, string(raw), creds.AccessToken)
}

func TestLogin_EmptyPasswordMakesNoCall(t *testing.T) {
	e := newEnv(t)

	_, err := e.auth.Login(context.Background(), "bsky.social", "alice.bsky.social", "")
	require.Error(t, err)
	assert.True(t, common.IsValidation(err))
	assert.Equal(t, 0, e.pds.Calls(methodCreateSession))
}

func TestLogin_WrongPasswordIsGeneric(t *testing.T) {
	e := newEnv(t)

	_, err := e.auth.Login(context.Background(), "bsky.social", e.pds.Identifier, "nope")
	require.ErrorIs(t, err, common.ErrAuth)
	assert.Equal(t, "verification failed", err.Error())
	assert.Nil(t, e.auth.CurrentUser())
	assert.Nil(t, e.cookie(t, common.CookieAccessToken))
}

func TestRestore(t *testing.T) {
	e := newEnv(t)
	e.login(t)

	fresh := NewAuthService(e.atp, e.db, e.sealer, time.Hour, logging.Discard())
	s, err := fresh.Restore(context.Background())
	require.NoError(t, err)
	assert.Equal(t, e.auth.Credentials(), s.Credentials())

	p, err := fresh.RefreshProfile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, e.pds.Handle, p.Handle)
}

func TestRestore_NoSession(t *testing.T) {
	e := newEnv(t)

	_, err := e.auth.Restore(context.Background())
	require.ErrorIs(t, err, common.ErrNoSession)

	err = e.auth.Authorized(context.Background(), func(context.Context, models.Credentials) error { return nil })
	require.ErrorIs(t, err, common.ErrNoSession)
}

func TestLogout_ClearsEverything(t *testing.T) {
	e := newEnv(t)
	e.login(t)
	e.reg.Seed("did:plc:alice", "alice", "bsky.makeup")
	_, err := e.handles.ListRegistrations(context.Background())
	require.NoError(t, err)

	require.NoError(t, e.auth.Logout(context.Background()))
	assert.Nil(t, e.auth.CurrentUser())
	assert.True(t, e.auth.Credentials().Empty())

	_, err = e.auth.Restore(context.Background())
	require.ErrorIs(t, err, common.ErrNoSession)

	var n int
	require.NoError(t, e.db.QueryRow(`SELECT COUNT(*) FROM registrations`).Scan(&n))
	assert.Equal(t, 0, n)
}

func TestAuthorized_RefreshesNearExpiry(t *testing.T) {
	e := newEnv(t)
	e.pds.AccessTTL = 10 * time.Second
	e.login(t)
	before := e.pds.Calls(methodRefreshSession)
	require.GreaterOrEqual(t, before, 1)

	_, err := e.auth.RefreshProfile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, before+1, e.pds.Calls(methodRefreshSession))
	assert.Equal(t, e.auth.Credentials().AccessToken, e.cookie(t, common.CookieAccessToken).Value)
}

func TestAuthorized_RetriesOnceAfterRejection(t *testing.T) {
	e := newEnv(t)
	e.login(t)
	old := e.auth.Credentials().AccessToken
	e.pds.ExpireAccess()

	_, err := e.auth.RefreshProfile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, e.pds.Calls(methodRefreshSession))
	assert.NotEqual(t, old, e.auth.Credentials().AccessToken)
}

func TestAuthorized_RejectedRefreshEndsSession(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	repo := cookies.NewSQLiteRepository(e.db, e.sealer)
	expires := time.Now().Add(time.Hour)
	for name, value := range map[string]string{
		common.CookieDID:          "did:plc:alice",
		common.CookieServer:       "bsky.social",
		common.CookieAccessToken:  atprototest.MintToken("did:plc:alice", -time.Hour),
		common.CookieRefreshToken: "bogus",
	} {
		require.NoError(t, repo.Set(ctx, &models.Cookie{Name: name, Value: value, ExpiresAt: expires}))
	}
	_, err := e.auth.Restore(ctx)
	require.NoError(t, err)

	called := false
	err = e.auth.Authorized(ctx, func(context.Context, models.Credentials) error {
		called = true
		return nil
	})
	require.ErrorIs(t, err, common.ErrNoSession)
	assert.False(t, called)
}

func TestExpiresSoon(t *testing.T) {
	now := time.Now()
	assert.True(t, expiresSoon(atprototest.MintToken("did:x", -time.Minute), now))
	assert.True(t, expiresSoon(atprototest.MintToken("did:x", 10*time.Second), now))
	assert.False(t, expiresSoon(atprototest.MintToken("did:x", time.Hour), now))
	assert.False(t, expiresSoon("not-a-jwt", now))
}
