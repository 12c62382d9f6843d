package models

import (
	"strings"
	"time"
)

// Pair is the subdomain+domain a handle is composed of.
type Pair struct {
	Subdomain string `json:"subdomain"`
	Domain    string `json:"domain"`
}

// NewPair normalizes user input: trimmed, lower-cased, no leading '@' or dots.
func NewPair(subdomain, domain string) Pair {
	return Pair{
		Subdomain: strings.Trim(strings.ToLower(strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(subdomain), "@"))), "."),
		Domain:    strings.Trim(strings.ToLower(strings.TrimSpace(domain)), "."),
	}
}

// Complete reports whether both parts are present.
func (p Pair) Complete() bool {
	return p.Subdomain != "" && p.Domain != ""
}

// Handle composes "subdomain.domain".
func (p Pair) Handle() string {
	if !p.Complete() {
		return ""
	}
	return p.Subdomain + "." + p.Domain
}

// Registration is a subdomain+domain handle claimed by the user.
type Registration struct {
	ID               string    `json:"id"`
	Subdomain        string    `json:"subdomain"`
	Domain           string    `json:"domain"`
	PreviousUsername string    `json:"previousUsername,omitempty"`
	CreatedAt        time.Time `json:"createdAt"`
	Primary          bool      `json:"primary,omitempty"`
}

func (r Registration) Pair() Pair { return Pair{Subdomain: r.Subdomain, Domain: r.Domain} }

func (r Registration) Handle() string { return r.Pair().Handle() }

// DomainOwner is backend-provided ownership metadata for a domain.
type DomainOwner struct {
	Handle         string `json:"handle"`
	ProfileURL     string `json:"profileUrl,omitempty"`
	AttestationURL string `json:"attestationUrl,omitempty"`
	Verified       bool   `json:"verified"`
}

// OwnerBadge tells the views how to present a domain owner.
type OwnerBadge int

const (
	BadgeNone OwnerBadge = iota
	BadgeVerified
	BadgeAttested
)

func (o *DomainOwner) Badge() OwnerBadge {
	switch {
	case o == nil || o.Handle == "":
		return BadgeNone
	case o.Verified:
		return BadgeVerified
	default:
		return BadgeAttested
	}
}

// Domain is an operator domain handles can be registered under.
type Domain struct {
	Name  string       `json:"domain"`
	Owner *DomainOwner `json:"owner,omitempty"`
}

// Availability is the outcome of /api/check for exactly one Pair.
type Availability struct {
	Pair      Pair         `json:"-"`
	Available bool         `json:"available"`
	Owner     *DomainOwner `json:"owner,omitempty"`
}
