package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewPair_Normalizes(t *testing.T) {
	p := NewPair("  @Alice ", "Example.COM.")

	assert.Equal(t, Pair{Subdomain: "alice", Domain: "example.com"}, p)
	assert.Equal(t, "alice.example.com", p.Handle())
	assert.True(t, p.Complete())
}

func TestPair_IncompleteHasNoHandle(t *testing.T) {
	assert.Equal(t, "", NewPair("alice", "").Handle())
	assert.Equal(t, "", NewPair("", "example.com").Handle())
	assert.False(t, Pair{}.Complete())
}

func TestDomainOwner_Badge(t *testing.T) {
	var none *DomainOwner
	assert.Equal(t, BadgeNone, none.Badge())
	assert.Equal(t, BadgeNone, (&DomainOwner{}).Badge())
	assert.Equal(t, BadgeVerified, (&DomainOwner{Handle: "owner.example.com", Verified: true}).Badge())
	assert.Equal(t, BadgeAttested, (&DomainOwner{Handle: "owner.example.com", AttestationURL: "https://example.com/att"}).Badge())
}

func TestRegistration_Handle(t *testing.T) {
	r := Registration{ID: "1", Subdomain: "bob", Domain: "bsky.makeup"}
	assert.Equal(t, "bob.bsky.makeup", r.Handle())
}
