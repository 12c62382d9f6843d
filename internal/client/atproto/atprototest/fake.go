// Package atprototest provides an in-process fake AT-Protocol server for tests.
package atprototest

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var signingKey = []byte("atprototest")

// FakePDS answers the XRPC methods biru uses. Zero values give a healthy
// server with one account (Identifier/Password).
type FakePDS struct {
	Server *httptest.Server

	Identifier  string
	Password    string
	DID         string
	Handle      string
	DisplayName string
	AccessTTL   time.Duration

	// Handles maps handles to DIDs for resolveHandle.
	Handles map[string]string

	// Unreachable hosts fail at the transport level.
	Unreachable map[string]bool

	mu           sync.Mutex
	calls        map[string]int
	hosts        []string
	records      []json.RawMessage
	accessToken  string
	refreshToken string
	lastAuth     string
}

// New starts a fake server; it is closed when the test ends via t.Cleanup.
func New(t interface{ Cleanup(func()) }) *FakePDS {
	f := &FakePDS{
		Identifier: "alice.bsky.social",
		Password:   "app-pass-word",
		DID:        "did:plc:alice",
		Handle:     "alice.bsky.social",
		AccessTTL:  time.Hour,
		Handles:    map[string]string{},
		calls:      map[string]int{},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/xrpc/com.atproto.server.describeServer", f.describeServer)
	mux.HandleFunc("/xrpc/com.atproto.server.createSession", f.createSession)
	mux.HandleFunc("/xrpc/com.atproto.server.refreshSession", f.refreshSession)
	mux.HandleFunc("/xrpc/app.bsky.actor.getProfile", f.getProfile)
	mux.HandleFunc("/xrpc/com.atproto.identity.resolveHandle", f.resolveHandle)
	mux.HandleFunc("/xrpc/com.atproto.repo.createRecord", f.createRecord)

	f.Server = httptest.NewServer(mux)
	t.Cleanup(f.Server.Close)
	return f
}

// Client returns an http.Client that sends every https://<host>/... request
// to the fake server, remembering the host it was meant for.
func (f *FakePDS) Client() *http.Client {
	return &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		f.mu.Lock()
		f.hosts = append(f.hosts, r.URL.Host)
		unreachable := f.Unreachable[r.URL.Host]
		f.mu.Unlock()
		if unreachable {
			return nil, errors.New("dial tcp: no such host")
		}

		out := r.Clone(r.Context())
		out.URL.Scheme = "http"
		out.URL.Host = f.Server.Listener.Addr().String()
		out.Host = ""
		return http.DefaultTransport.RoundTrip(out)
	})}
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (fn roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return fn(r) }

// Calls reports how many times an XRPC method was hit.
func (f *FakePDS) Calls(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

// Hosts lists the hosts requests were addressed to, in order.
func (f *FakePDS) Hosts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.hosts...)
}

// Records returns the raw createRecord bodies received.
func (f *FakePDS) Records() []json.RawMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]json.RawMessage(nil), f.records...)
}

// LastAuthorization is the Authorization header of the latest request.
func (f *FakePDS) LastAuthorization() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastAuth
}

// SetHandle changes the account handle, as a handle switch would.
func (f *FakePDS) SetHandle(h string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Handle = h
}

// ExpireAccess invalidates the current access token server-side.
func (f *FakePDS) ExpireAccess() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.accessToken = "revoked"
}

// MintToken returns a JWT for sub expiring after ttl (negative for expired).
func MintToken(sub string, ttl time.Duration) string {
	now := time.Now()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ID:        strconv.FormatInt(now.UnixNano(), 36),
		Subject:   sub,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	})
	s, err := tok.SignedString(signingKey)
	if err != nil {
		panic(err)
	}
	return s
}

func (f *FakePDS) hit(r *http.Request, method string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[method]++
	f.lastAuth = r.Header.Get("Authorization")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func xrpcError(w http.ResponseWriter, status int, name, msg string) {
	writeJSON(w, status, map[string]string{"error": name, "message": msg})
}

func (f *FakePDS) issueTokens() (string, string) {
	f.accessToken = MintToken(f.DID, f.AccessTTL)
	f.refreshToken = MintToken(f.DID, 90*24*time.Hour)
	return f.accessToken, f.refreshToken
}

func (f *FakePDS) authorized(r *http.Request) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.accessToken != "" && r.Header.Get("Authorization") == "Bearer "+f.accessToken
}

func (f *FakePDS) describeServer(w http.ResponseWriter, r *http.Request) {
	f.hit(r, "com.atproto.server.describeServer")
	writeJSON(w, http.StatusOK, map[string]any{
		"did":                  "did:web:" + r.Host,
		"availableUserDomains": []string{".bsky.social"},
		"inviteCodeRequired":   false,
	})
}

func (f *FakePDS) createSession(w http.ResponseWriter, r *http.Request) {
	f.hit(r, "com.atproto.server.createSession")
	var body struct {
		Identifier string `json:"identifier"`
		Password   string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		xrpcError(w, http.StatusBadRequest, "InvalidRequest", err.Error())
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if body.Identifier != f.Identifier || body.Password != f.Password {
		xrpcError(w, http.StatusUnauthorized, "AuthenticationRequired", "Invalid identifier or password")
		return
	}
	access, refresh := f.issueTokens()
	writeJSON(w, http.StatusOK, map[string]string{"did": f.DID, "handle": f.Handle, "accessJwt": access, "refreshJwt": refresh})
}

func (f *FakePDS) refreshSession(w http.ResponseWriter, r *http.Request) {
	f.hit(r, "com.atproto.server.refreshSession")

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.refreshToken == "" || r.Header.Get("Authorization") != "Bearer "+f.refreshToken {
		xrpcError(w, http.StatusBadRequest, "ExpiredToken", "Token has expired")
		return
	}
	access, refresh := f.issueTokens()
	writeJSON(w, http.StatusOK, map[string]string{"did": f.DID, "handle": f.Handle, "accessJwt": access, "refreshJwt": refresh})
}

func (f *FakePDS) getProfile(w http.ResponseWriter, r *http.Request) {
	f.hit(r, "app.bsky.actor.getProfile")
	if !f.authorized(r) {
		xrpcError(w, http.StatusBadRequest, "ExpiredToken", "Token has expired")
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	actor := r.URL.Query().Get("actor")
	if actor != f.DID && actor != f.Handle {
		xrpcError(w, http.StatusBadRequest, "InvalidRequest", "Profile not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"did":         f.DID,
		"handle":      f.Handle,
		"displayName": f.DisplayName,
		"avatar":      "https://cdn.example.com/" + f.DID + ".jpg",
	})
}

func (f *FakePDS) resolveHandle(w http.ResponseWriter, r *http.Request) {
	f.hit(r, "com.atproto.identity.resolveHandle")

	f.mu.Lock()
	did, ok := f.Handles[r.URL.Query().Get("handle")]
	f.mu.Unlock()
	if !ok {
		xrpcError(w, http.StatusBadRequest, "InvalidRequest", "Unable to resolve handle")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"did": did})
}

func (f *FakePDS) createRecord(w http.ResponseWriter, r *http.Request) {
	f.hit(r, "com.atproto.repo.createRecord")
	if !f.authorized(r) {
		xrpcError(w, http.StatusBadRequest, "ExpiredToken", "Token has expired")
		return
	}

	var body json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		xrpcError(w, http.StatusBadRequest, "InvalidRequest", err.Error())
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, body)
	writeJSON(w, http.StatusOK, map[string]string{
		"uri": "at://" + f.DID + "/app.bsky.feed.post/3k" + strings.Repeat("a", len(f.records)),
		"cid": "bafyrei",
	})
}
