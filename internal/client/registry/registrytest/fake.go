// Package registrytest provides an in-process fake handle backend for tests.
package registrytest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"time"
)

// FakeRegistry keeps registrations per DID in memory. Tokens are accepted when
// Authorize returns true (any non-empty bearer by default).
type FakeRegistry struct {
	Server *httptest.Server

	// Authorize decides whether a bearer token is valid for did.
	Authorize func(token, did string) bool

	// DomainList is served by /api/domains and bounds /api/check.
	DomainList []Domain

	// Taken handles answer available=false on /api/check.
	Taken map[string]bool

	// FailWith, when non-zero, is returned as the status for every call.
	FailWith int

	// Gate, when set, blocks switch/release until it is closed or receives.
	Gate chan struct{}

	mu       sync.Mutex
	regs     map[string][]Registration
	primary  map[string]string
	calls    map[string]int
	headers  []http.Header
	bodies   map[string][]json.RawMessage
	sequence int
}

type Owner struct {
	Handle         string `json:"handle"`
	ProfileURL     string `json:"profileUrl,omitempty"`
	AttestationURL string `json:"attestationUrl,omitempty"`
	Verified       bool   `json:"verified"`
}

type Domain struct {
	Domain string `json:"domain"`
	Owner  *Owner `json:"owner,omitempty"`
}

type Registration struct {
	ID               string    `json:"id"`
	Subdomain        string    `json:"subdomain"`
	Domain           string    `json:"domain"`
	PreviousUsername string    `json:"previousUsername,omitempty"`
	CreatedAt        time.Time `json:"createdAt"`
	Primary          bool      `json:"primary,omitempty"`
}

// New starts a fake backend serving bsky.makeup and its owner; it is closed
// when the test ends.
func New(t interface{ Cleanup(func()) }) *FakeRegistry {
	f := &FakeRegistry{
		Authorize: func(token, did string) bool { return token != "" && did != "" },
		DomainList: []Domain{
			{Domain: "bsky.makeup", Owner: &Owner{Handle: "makeup.example", ProfileURL: "https://bsky.app/profile/makeup.example", Verified: true}},
			{Domain: "handles.example", Owner: &Owner{Handle: "someone.example", AttestationURL: "https://handles.example/.well-known/owner"}},
		},
		Taken:   map[string]bool{},
		regs:    map[string][]Registration{},
		primary: map[string]string{},
		calls:   map[string]int{},
		bodies:  map[string][]json.RawMessage{},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/list", f.wrap("list", f.list))
	mux.HandleFunc("/api/domains", f.wrap("domains", f.domains))
	mux.HandleFunc("/api/check", f.wrap("check", f.check))
	mux.HandleFunc("/api/register", f.wrap("register", f.register))
	mux.HandleFunc("/api/switch", f.wrap("switch", f.switchPrimary))
	mux.HandleFunc("/api/release", f.wrap("release", f.release))

	f.Server = httptest.NewServer(mux)
	t.Cleanup(f.Server.Close)
	return f
}

// URL is the backend base URL.
func (f *FakeRegistry) URL() string { return f.Server.URL }

// Seed adds a registration for did directly.
func (f *FakeRegistry) Seed(did, subdomain, domain string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.add(did, subdomain, domain)
}

// Primary returns the registration id currently primary for did, or "".
func (f *FakeRegistry) Primary(did string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.primary[did]
}

// Calls reports how many times an endpoint (e.g. "check") was hit.
func (f *FakeRegistry) Calls(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

// LastHeader is the header set of the latest request.
func (f *FakeRegistry) LastHeader() http.Header {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.headers) == 0 {
		return nil
	}
	return f.headers[len(f.headers)-1].Clone()
}

// Bodies returns the raw request bodies received by an endpoint.
func (f *FakeRegistry) Bodies(name string) []json.RawMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]json.RawMessage(nil), f.bodies[name]...)
}

func (f *FakeRegistry) add(did, subdomain, domain string) string {
	f.sequence++
	id := "reg" + strconv.Itoa(f.sequence)
	f.regs[did] = append(f.regs[did], Registration{
		ID:        id,
		Subdomain: subdomain,
		Domain:    domain,
		CreatedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(f.sequence) * time.Hour),
	})
	f.Taken[subdomain+"."+domain] = true
	return id
}

type handler func(w http.ResponseWriter, r *http.Request, did string, body json.RawMessage)

func (f *FakeRegistry) wrap(name string, h handler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body json.RawMessage
		if r.Method == http.MethodPost {
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
				return
			}
		}

		f.mu.Lock()
		f.calls[name]++
		f.headers = append(f.headers, r.Header.Clone())
		if body != nil {
			f.bodies[name] = append(f.bodies[name], body)
		}
		failWith := f.FailWith
		authorize := f.Authorize
		f.mu.Unlock()

		if failWith != 0 {
			writeJSON(w, failWith, map[string]string{"error": http.StatusText(failWith)})
			return
		}

		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		did := r.Header.Get("X-Atproto-Did")
		if !authorize(token, did) {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid token"})
			return
		}
		h(w, r, did, body)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (f *FakeRegistry) list(w http.ResponseWriter, _ *http.Request, did string, _ json.RawMessage) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Registration, 0, len(f.regs[did]))
	for _, r := range f.regs[did] {
		r.Primary = f.primary[did] == r.ID
		out = append(out, r)
	}
	writeJSON(w, http.StatusOK, out)
}

func (f *FakeRegistry) domains(w http.ResponseWriter, _ *http.Request, _ string, _ json.RawMessage) {
	f.mu.Lock()
	defer f.mu.Unlock()
	writeJSON(w, http.StatusOK, f.DomainList)
}

func (f *FakeRegistry) findDomain(name string) (Domain, bool) {
	for _, d := range f.DomainList {
		if d.Domain == name {
			return d, true
		}
	}
	return Domain{}, false
}

func (f *FakeRegistry) check(w http.ResponseWriter, _ *http.Request, _ string, body json.RawMessage) {
	var req struct {
		Subdomain string `json:"subdomain"`
		Domain    string `json:"domain"`
	}
	_ = json.Unmarshal(body, &req)

	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.findDomain(req.Domain)
	if !ok {
		writeJSON(w, http.StatusOK, map[string]any{"available": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"available": !f.Taken[req.Subdomain+"."+req.Domain],
		"owner":     d.Owner,
	})
}

func (f *FakeRegistry) register(w http.ResponseWriter, _ *http.Request, did string, body json.RawMessage) {
	var req struct {
		Domain               string `json:"domain"`
		Subdomain            string `json:"subdomain"`
		SetAsPrimaryUsername bool   `json:"setAsPrimaryUsername"`
	}
	_ = json.Unmarshal(body, &req)

	f.mu.Lock()
	defer f.mu.Unlock()
	switch {
	case len(f.regs[did]) >= 5:
		writeJSON(w, http.StatusOK, map[string]any{"success": false, "message": "limit reached"})
		return
	case f.Taken[req.Subdomain+"."+req.Domain]:
		writeJSON(w, http.StatusConflict, map[string]any{"success": false, "message": "taken"})
		return
	}
	if _, ok := f.findDomain(req.Domain); !ok {
		writeJSON(w, http.StatusOK, map[string]any{"success": false, "message": "unknown domain"})
		return
	}
	id := f.add(did, req.Subdomain, req.Domain)
	if req.SetAsPrimaryUsername {
		f.primary[did] = id
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "id": id})
}

func (f *FakeRegistry) wait() {
	f.mu.Lock()
	gate := f.Gate
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
}

func (f *FakeRegistry) switchPrimary(w http.ResponseWriter, _ *http.Request, did string, body json.RawMessage) {
	f.wait()
	var req struct {
		ID string `json:"id"`
	}
	_ = json.Unmarshal(body, &req)

	f.mu.Lock()
	defer f.mu.Unlock()
	if req.ID == "default" {
		delete(f.primary, did)
		writeJSON(w, http.StatusOK, map[string]bool{"success": true})
		return
	}
	for _, r := range f.regs[did] {
		if r.ID == req.ID {
			f.primary[did] = r.ID
			writeJSON(w, http.StatusOK, map[string]bool{"success": true})
			return
		}
	}
	writeJSON(w, http.StatusNotFound, map[string]string{"error": "no such registration"})
}

func (f *FakeRegistry) release(w http.ResponseWriter, _ *http.Request, did string, body json.RawMessage) {
	f.wait()
	var req struct {
		ID string `json:"id"`
	}
	_ = json.Unmarshal(body, &req)

	f.mu.Lock()
	defer f.mu.Unlock()
	regs := f.regs[did]
	for i, r := range regs {
		if r.ID == req.ID {
			f.regs[did] = append(regs[:i:i], regs[i+1:]...)
			delete(f.Taken, r.Subdomain+"."+r.Domain)
			if f.primary[did] == r.ID {
				delete(f.primary, did)
			}
			writeJSON(w, http.StatusOK, map[string]bool{"success": true})
			return
		}
	}
	writeJSON(w, http.StatusNotFound, map[string]string{"error": "no such registration"})
}
