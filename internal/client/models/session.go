// Package models defines client-side data models used by the biru CLI.
package models

import (
	"log/slog"
	"time"
)

// Session is an authenticated connection to one AT-Protocol server.
type Session struct {
	Server     string
	DID        string
	Handle     string
	AccessJwt  string
	RefreshJwt string
}

// Credentials returns the bearer material for authenticated calls.
func (s *Session) Credentials() Credentials {
	if s == nil {
		return Credentials{}
	}
	return Credentials{Server: s.Server, DID: s.DID, AccessToken: s.AccessJwt}
}

// Credentials is what authenticated calls need. It refuses to print its token.
type Credentials struct {
	Server      string
	DID         string
	AccessToken string
}

func (c Credentials) Empty() bool { return c.AccessToken == "" }

func (c Credentials) String() string {
	return "Credentials{server=" + c.Server + " did=" + c.DID + " token=[redacted]}"
}

func (c Credentials) GoString() string { return c.String() }

func (c Credentials) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("server", c.Server),
		slog.String("did", c.DID),
		slog.String("token", "[redacted]"),
	)
}

// Profile is the public profile of the authenticated account.
type Profile struct {
	DID         string `json:"did"`
	Handle      string `json:"handle"`
	DisplayName string `json:"displayName,omitempty"`
	Avatar      string `json:"avatar,omitempty"`
}

// ServerDescriptor is what com.atproto.server.describeServer reports.
type ServerDescriptor struct {
	Host                 string   `json:"-"`
	DID                  string   `json:"did"`
	AvailableUserDomains []string `json:"availableUserDomains"`
	InviteCodeRequired   bool     `json:"inviteCodeRequired"`
	Links                struct {
		PrivacyPolicy  string `json:"privacyPolicy,omitempty"`
		TermsOfService string `json:"termsOfService,omitempty"`
	} `json:"links"`
}

// Cookie is one persisted piece of session state.
type Cookie struct {
	Name      string
	Value     string
	ExpiresAt time.Time
}

// Expired reports whether the cookie is past its expiry at now.
func (c *Cookie) Expired(now time.Time) bool {
	return !c.ExpiresAt.After(now)
}
