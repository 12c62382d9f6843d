// Package services contains application services for the biru client.
// This file defines the authentication service: server lookup, login with an
// app password, session restore from persisted cookies, token refresh and
// logout.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/biru/internal/client/client"
	"github.com/dmitrijs2005/biru/internal/client/models"
	"github.com/dmitrijs2005/biru/internal/client/repositories/cookies"
	"github.com/dmitrijs2005/biru/internal/client/repositories/registrations"
	"github.com/dmitrijs2005/biru/internal/common"
	"github.com/dmitrijs2005/biru/internal/dbx"
	"github.com/dmitrijs2005/biru/internal/logging"
	"github.com/golang-jwt/jwt/v5"
)

// refreshLeeway is how close to expiry an access token may get before it is
// refreshed ahead of a call.
const refreshLeeway = 30 * time.Second

var hostnameRe = regexp.MustCompile(`(?i)^(xn--)?[a-z0-9][a-z0-9-_]{0,61}[a-z0-9]{0,1}\.(xn--)?([a-z0-9\-]{1,61}|[a-z0-9-]{1,30}\.[a-z]{2,})$`)

// NormalizeHostname trims and lower-cases user input.
func NormalizeHostname(host string) string {
	return strings.ToLower(strings.TrimSpace(host))
}

// ValidHostname reports whether host looks like a server hostname. It does
// not touch the network.
func ValidHostname(host string) bool {
	return host != "" && !strings.HasPrefix(host, "-") && hostnameRe.MatchString(host)
}

// PDS is the subset of the AT-Protocol client the services need.
type PDS interface {
	DescribeServer(ctx context.Context, host string) (*models.ServerDescriptor, error)
	CreateSession(ctx context.Context, host, identifier, password string) (*models.Session, error)
	RefreshSession(ctx context.Context, host, refreshJwt string) (*models.Session, error)
	GetProfile(ctx context.Context, creds models.Credentials, actor string) (*models.Profile, error)
	ResolveHandle(ctx context.Context, host, handle string) (string, error)
	CreateRecord(ctx context.Context, creds models.Credentials, collection string, record any) (string, error)
}

// AuthService defines session operations for the front-ends.
//
// Contract:
//   - LookupServer: validate a hostname locally, then ask the server to describe itself.
//   - Login: create a session with an app password and persist it as cookies.
//   - Restore: load a previously persisted session.
//   - Logout: forget the session and every cached registration.
//   - Authorized: run fn with fresh credentials, refreshing and retrying once on 401.
type AuthService interface {
	LookupServer(ctx context.Context, host string) (*models.ServerDescriptor, error)
	Login(ctx context.Context, server, identifier, password string) (*models.Profile, error)
	Logout(ctx context.Context) error
	Restore(ctx context.Context) (*models.Session, error)
	CurrentUser() *models.Profile
	Credentials() models.Credentials
	RefreshProfile(ctx context.Context) (*models.Profile, error)
	Authorized(ctx context.Context, fn func(ctx context.Context, creds models.Credentials) error) error
}

type authService struct {
	pds    PDS
	db     *sql.DB
	sealer cookies.Sealer
	ttl    time.Duration
	log    logging.Logger
	now    func() time.Time

	mu      sync.RWMutex
	session *models.Session
	profile *models.Profile

	refreshMu sync.Mutex
}

// NewAuthService constructs an AuthService. Cookies written by Login expire
// after ttl.
func NewAuthService(pds PDS, db *sql.DB, sealer cookies.Sealer, ttl time.Duration, log logging.Logger) AuthService {
	return &authService{pds: pds, db: db, sealer: sealer, ttl: ttl, log: log, now: time.Now}
}

// LookupServer returns a ValidationError for a malformed host without any
// network call, and ErrServerNotFound when describeServer fails.
func (a *authService) LookupServer(ctx context.Context, host string) (*models.ServerDescriptor, error) {
	host = NormalizeHostname(host)
	if !ValidHostname(host) {
		return nil, common.NewValidationError("server", "not a hostname")
	}

	desc, err := a.pds.DescribeServer(ctx, host)
	if err != nil {
		a.log.Debug(ctx, "describe server failed", "host", host, "error", err)
		return nil, fmt.Errorf("%w: %s", common.ErrServerNotFound, host)
	}
	a.log.Info(ctx, "server found", "host", host, "did", desc.DID)
	return desc, nil
}

// Login authenticates and persists the session. Any failure reported by the
// server is returned as the generic common.ErrAuth.
func (a *authService) Login(ctx context.Context, server, identifier, password string) (*models.Profile, error) {
	server = NormalizeHostname(server)
	identifier = strings.TrimPrefix(strings.TrimSpace(identifier), "@")
	switch {
	case !ValidHostname(server):
		return nil, common.NewValidationError("server", "not a hostname")
	case identifier == "":
		return nil, common.NewValidationError("identifier", "required")
	case password == "":
		return nil, common.NewValidationError("password", "required")
	}

	s, err := a.pds.CreateSession(ctx, server, identifier, password)
	if err != nil {
		a.log.Warn(ctx, "create session failed", "server", server, "error", err)
		return nil, common.ErrAuth
	}

	if err := a.persist(ctx, s, true); err != nil {
		return nil, fmt.Errorf("session saving error: %w", err)
	}

	a.mu.Lock()
	a.session = s
	a.profile = &models.Profile{DID: s.DID, Handle: s.Handle}
	a.mu.Unlock()
	a.log.Info(ctx, "logged in", "server", server, "did", s.DID)

	p, err := a.RefreshProfile(ctx)
	if err != nil {
		a.log.Warn(ctx, "profile fetch failed", "error", err)
		return a.CurrentUser(), nil
	}
	return p, nil
}

// persist writes the session cookies in a single transaction. all=false only
// rewrites the token pair.
func (a *authService) persist(ctx context.Context, s *models.Session, all bool) error {
	expires := a.now().Add(a.ttl)
	values := []models.Cookie{
		{Name: common.CookieAccessToken, Value: s.AccessJwt},
		{Name: common.CookieRefreshToken, Value: s.RefreshJwt},
	}
	if all {
		values = append(values,
			models.Cookie{Name: common.CookieDID, Value: s.DID},
			models.Cookie{Name: common.CookieServer, Value: s.Server},
		)
	}

	return dbx.WithTx(ctx, a.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := cookies.NewSQLiteRepository(tx, a.sealer)
		for i := range values {
			values[i].ExpiresAt = expires
			if err := repo.Set(ctx, &values[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

// Logout clears the cookies and the registration cache.
func (a *authService) Logout(ctx context.Context) error {
	err := dbx.WithTx(ctx, a.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := cookies.NewSQLiteRepository(tx, a.sealer).Clear(ctx); err != nil {
			return err
		}
		return registrations.NewSQLiteRepository(tx).Clear(ctx)
	})
	if err != nil {
		return fmt.Errorf("logout error: %w", err)
	}

	a.mu.Lock()
	a.session = nil
	a.profile = nil
	a.mu.Unlock()
	a.log.Info(ctx, "logged out")
	return nil
}

// Restore loads the persisted session. Missing or expired cookies yield
// common.ErrNoSession.
func (a *authService) Restore(ctx context.Context) (*models.Session, error) {
	repo := cookies.NewSQLiteRepository(a.db, a.sealer)

	values := make(map[string]string, len(common.SessionCookieNames))
	for _, name := range common.SessionCookieNames {
		c, err := repo.Get(ctx, name)
		if err != nil {
			return nil, err
		}
		if c == nil || c.Value == "" {
			return nil, common.ErrNoSession
		}
		values[name] = c.Value
	}

	s := &models.Session{
		Server:     values[common.CookieServer],
		DID:        values[common.CookieDID],
		AccessJwt:  values[common.CookieAccessToken],
		RefreshJwt: values[common.CookieRefreshToken],
	}

	a.mu.Lock()
	a.session = s
	a.profile = &models.Profile{DID: s.DID}
	a.mu.Unlock()
	a.log.Debug(ctx, "session restored", "server", s.Server, "did", s.DID)
	return s, nil
}

func (a *authService) CurrentUser() *models.Profile {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.profile == nil {
		return nil
	}
	p := *a.profile
	return &p
}

func (a *authService) Credentials() models.Credentials {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.session.Credentials()
}

func (a *authService) refreshJwt() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.session == nil {
		return ""
	}
	return a.session.RefreshJwt
}

// RefreshProfile re-fetches the profile, e.g. after a handle switch.
func (a *authService) RefreshProfile(ctx context.Context) (*models.Profile, error) {
	var p *models.Profile
	err := a.Authorized(ctx, func(ctx context.Context, creds models.Credentials) error {
		var err error
		p, err = a.pds.GetProfile(ctx, creds, creds.DID)
		return err
	})
	if err != nil {
		return nil, err
	}

	a.mu.Lock()
	a.profile = p
	a.mu.Unlock()
	return a.CurrentUser(), nil
}

// Authorized calls fn with the current credentials. Tokens about to expire
// are refreshed first; an ErrUnauthorized from fn triggers one refresh and
// one retry.
func (a *authService) Authorized(ctx context.Context, fn func(ctx context.Context, creds models.Credentials) error) error {
	creds := a.Credentials()
	if creds.Empty() {
		return common.ErrNoSession
	}

	if expiresSoon(creds.AccessToken, a.now()) {
		if err := a.refresh(ctx, creds.AccessToken); err != nil {
			return err
		}
		creds = a.Credentials()
	}

	err := fn(ctx, creds)
	if !errors.Is(err, client.ErrUnauthorized) {
		return err
	}

	a.log.Debug(ctx, "access token rejected, refreshing")
	if err := a.refresh(ctx, creds.AccessToken); err != nil {
		return err
	}
	return fn(ctx, a.Credentials())
}

// refresh trades the refresh token for a new pair unless another goroutine
// already replaced stale.
func (a *authService) refresh(ctx context.Context, stale string) error {
	a.refreshMu.Lock()
	defer a.refreshMu.Unlock()

	current := a.Credentials()
	if current.Empty() {
		return common.ErrNoSession
	}
	if current.AccessToken != stale {
		return nil
	}

	s, err := a.pds.RefreshSession(ctx, current.Server, a.refreshJwt())
	if err != nil {
		if errors.Is(err, client.ErrUnauthorized) {
			a.log.Warn(ctx, "refresh token rejected", "did", current.DID)
			return fmt.Errorf("%w: session expired", common.ErrNoSession)
		}
		return fmt.Errorf("refresh session error: %w", err)
	}

	if err := a.persist(ctx, s, false); err != nil {
		return fmt.Errorf("session saving error: %w", err)
	}

	a.mu.Lock()
	if a.session != nil {
		a.session.AccessJwt = s.AccessJwt
		a.session.RefreshJwt = s.RefreshJwt
	}
	if a.profile != nil && s.Handle != "" {
		a.profile.Handle = s.Handle
	}
	a.mu.Unlock()
	a.log.Debug(ctx, "session refreshed", "did", current.DID)
	return nil
}

// expiresSoon decodes the exp claim without verifying the signature; the
// server is the one that verifies. Tokens without a readable exp are used
// as-is.
func expiresSoon(token string, now time.Time) bool {
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return false
	}
	if claims.ExpiresAt == nil {
		return false
	}
	return claims.ExpiresAt.Time.Sub(now) < refreshLeeway
}
