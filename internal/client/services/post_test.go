package services

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/dmitrijs2005/biru/internal/client/models"
	"github.com/dmitrijs2005/biru/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordBody struct {
	Repo       string      `json:"repo"`
	Collection string      `json:"collection"`
	Record     models.Post `json:"record"`
}

func lastRecord(t *testing.T, e *env) recordBody {
	t.Helper()
	records := e.pds.Records()
	require.NotEmpty(t, records)
	var body recordBody
	require.NoError(t, json.Unmarshal(records[len(records)-1], &body))
	return body
}

func span(text, sub string) models.ByteSlice {
	i := strings.Index(text, sub)
	return models.ByteSlice{ByteStart: i, ByteEnd: i + len(sub)}
}

func TestCreatePost_Facets(t *testing.T) {
	e := newEnv(t)
	e.login(t)
	e.pds.Handles["bob.example.com"] = "did:plc:bob"

	text := "héllo @bob.example.com, see https://example.com/x. #golang #123 @ghost.example"
	uri, err := e.posts.CreatePost(context.Background(), text, "2024-05-01")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(uri, "at://did:plc:alice/app.bsky.feed.post/"))

	body := lastRecord(t, e)
	assert.Equal(t, "did:plc:alice", body.Repo)
	assert.Equal(t, "app.bsky.feed.post", body.Collection)
	assert.Equal(t, "app.bsky.feed.post", body.Record.Type)
	assert.Equal(t, time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), body.Record.CreatedAt.UTC())

	want := []models.Facet{
		{Index: span(text, "@bob.example.com"), Features: []models.FacetFeature{{Type: models.FacetMention, DID: "did:plc:bob"}}},
		{Index: span(text, "https://example.com/x"), Features: []models.FacetFeature{{Type: models.FacetLink, URI: "https://example.com/x"}}},
		{Index: span(text, "#golang"), Features: []models.FacetFeature{{Type: models.FacetTag, Tag: "golang"}}},
	}
	assert.Equal(t, want, body.Record.Facets)
	assert.Equal(t, 7, want[0].Index.ByteStart)
}

func TestCreatePost_DefaultsToNow(t *testing.T) {
	e := newEnv(t)
	e.login(t)

	_, err := e.posts.CreatePost(context.Background(), "plain text", "")
	require.NoError(t, err)

	body := lastRecord(t, e)
	assert.Empty(t, body.Record.Facets)
	assert.WithinDuration(t, time.Now(), body.Record.CreatedAt, time.Minute)
}

func TestCreatePost_Validation(t *testing.T) {
	e := newEnv(t)
	e.login(t)
	ctx := context.Background()

	tests := []struct {
		name, text, date string
	}{
		{"empty", "   ", ""},
		{"too long", strings.Repeat("a", MaxPostLength+1), ""},
		{"bad date", "hello", "01/05/2024"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.posts.CreatePost(ctx, tt.text, tt.date)
			assert.True(t, common.IsValidation(err))
		})
	}
	assert.Empty(t, e.pds.Records())
}

func TestCreatePost_NoSession(t *testing.T) {
	e := newEnv(t)

	_, err := e.posts.CreatePost(context.Background(), "hello", "")
	require.ErrorIs(t, err, common.ErrNoSession)
}
