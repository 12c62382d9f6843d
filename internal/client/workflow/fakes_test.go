package workflow

import (
	"context"
	"errors"
	"strconv"
	"sync"

	"github.com/dmitrijs2005/biru/internal/client/models"
	"github.com/dmitrijs2005/biru/internal/common"
)

// fakeAuth knows a fixed set of servers and one account.
type fakeAuth struct {
	mu         sync.Mutex
	known      map[string]bool
	lookups    []string
	lookupHook func(host string)
	logins     int
	loginErr   error
	loggedIn   bool
	profile    models.Profile
	refreshes  int
}

func newFakeAuth() *fakeAuth {
	return &fakeAuth{
		known:   map[string]bool{"bsky.social": true, "pds.example.com": true},
		profile: models.Profile{DID: "did:plc:alice", Handle: "alice.bsky.social"},
	}
}

func (a *fakeAuth) LookupServer(_ context.Context, host string) (*models.ServerDescriptor, error) {
	a.mu.Lock()
	a.lookups = append(a.lookups, host)
	hook := a.lookupHook
	known := a.known[host]
	a.mu.Unlock()

	if hook != nil {
		hook(host)
	}
	if !known {
		return nil, common.ErrServerNotFound
	}
	return &models.ServerDescriptor{Host: host, DID: "did:web:" + host}, nil
}

func (a *fakeAuth) Login(_ context.Context, _, _, password string) (*models.Profile, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.logins++
	if a.loginErr != nil {
		return nil, a.loginErr
	}
	if password != "app-pass-word" {
		return nil, common.ErrAuth
	}
	a.loggedIn = true
	p := a.profile
	return &p, nil
}

func (a *fakeAuth) Logout(context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.loggedIn = false
	return nil
}

func (a *fakeAuth) Restore(context.Context) (*models.Session, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.loggedIn {
		return nil, common.ErrNoSession
	}
	return &models.Session{Server: "bsky.social", DID: a.profile.DID, AccessJwt: "a", RefreshJwt: "r"}, nil
}

func (a *fakeAuth) CurrentUser() *models.Profile {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.loggedIn {
		return nil
	}
	p := a.profile
	return &p
}

func (a *fakeAuth) Credentials() models.Credentials {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.loggedIn {
		return models.Credentials{}
	}
	return models.Credentials{Server: "bsky.social", DID: a.profile.DID, AccessToken: "a"}
}

func (a *fakeAuth) RefreshProfile(context.Context) (*models.Profile, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.refreshes++
	p := a.profile
	return &p, nil
}

func (a *fakeAuth) Authorized(ctx context.Context, fn func(context.Context, models.Credentials) error) error {
	return fn(ctx, a.Credentials())
}

func (a *fakeAuth) lookupCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.lookups)
}

// fakeHandles keeps registrations in memory. Gate, when set, blocks switch
// and release until it is closed; Started is signalled on entry.
type fakeHandles struct {
	mu          sync.Mutex
	regs        []models.Registration
	taken       map[string]bool
	checks      []models.Pair
	checkHook   func(models.Pair)
	checkErr    error
	registerErr error
	listErr     error
	lists       int
	seq         int
	primary     string

	Gate    chan struct{}
	Started chan string
}

func newFakeHandles() *fakeHandles {
	return &fakeHandles{taken: map[string]bool{"bob.bsky.makeup": true}}
}

func (h *fakeHandles) seed(n int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i := 0; i < n; i++ {
		h.addLocked(models.Pair{Subdomain: "user" + strconv.Itoa(i), Domain: "bsky.makeup"})
	}
}

func (h *fakeHandles) addLocked(p models.Pair) {
	h.seq++
	h.regs = append(h.regs, models.Registration{ID: "reg" + strconv.Itoa(h.seq), Subdomain: p.Subdomain, Domain: p.Domain})
	h.taken[p.Handle()] = true
}

func (h *fakeHandles) ListRegistrations(context.Context) ([]models.Registration, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lists++
	if h.listErr != nil {
		return nil, h.listErr
	}
	return append([]models.Registration{}, h.regs...), nil
}

func (h *fakeHandles) Domains(context.Context) ([]models.Domain, error) {
	return []models.Domain{
		{Name: "bsky.makeup", Owner: &models.DomainOwner{Handle: "makeup.example", Verified: true}},
		{Name: "handles.example", Owner: &models.DomainOwner{Handle: "someone.example", AttestationURL: "https://handles.example/owner"}},
		{Name: "plain.example"},
	}, nil
}

func (h *fakeHandles) CheckAvailability(_ context.Context, pair models.Pair) (*models.Availability, error) {
	h.mu.Lock()
	h.checks = append(h.checks, pair)
	hook := h.checkHook
	err := h.checkErr
	taken := h.taken[pair.Handle()]
	h.mu.Unlock()

	if hook != nil {
		hook(pair)
	}
	if err != nil {
		return nil, err
	}
	return &models.Availability{Pair: pair, Available: !taken}, nil
}

func (h *fakeHandles) Register(_ context.Context, pair models.Pair, _ bool) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.registerErr != nil {
		return &common.OperationError{Op: "register", Err: h.registerErr}
	}
	h.addLocked(pair)
	return nil
}

func (h *fakeHandles) wait(op string) {
	if h.Started != nil {
		h.Started <- op
	}
	if h.Gate != nil {
		<-h.Gate
	}
}

func (h *fakeHandles) SwitchPrimary(_ context.Context, id string) error {
	h.wait(OpSwitch)
	h.mu.Lock()
	defer h.mu.Unlock()
	h.primary = id
	return nil
}

func (h *fakeHandles) Release(_ context.Context, id string) error {
	h.wait(OpRelease)
	h.mu.Lock()
	defer h.mu.Unlock()
	for i, r := range h.regs {
		if r.ID == id {
			h.regs = append(h.regs[:i:i], h.regs[i+1:]...)
			return nil
		}
	}
	return &common.OperationError{Op: "release", Err: errors.New("no such registration")}
}

func (h *fakeHandles) checkedPairs() []models.Pair {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]models.Pair(nil), h.checks...)
}

func (h *fakeHandles) listCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lists
}
