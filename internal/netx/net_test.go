package netx

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDoJSON_PostWithBodyAndHeaders(t *testing.T) {
	var gotMethod, gotCT, gotAuth string
	var gotBody map[string]string

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotCT = r.Header.Get("Content-Type")
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"available":true}`))
	}))
	defer ts.Close()

	var out struct {
		Available bool `json:"available"`
	}
	err := DoJSON(context.Background(), ts.Client(), Request{
		Method: http.MethodPost,
		URL:    ts.URL + "/api/check",
		Header: http.Header{"Authorization": []string{"Bearer tok"}},
		Body:   map[string]string{"subdomain": "alice", "domain": "example.com"},
	}, &out)

	require.NoError(t, err)
	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Equal(t, "application/json", gotCT)
	assert.Equal(t, "Bearer tok", gotAuth)
	assert.Equal(t, map[string]string{"subdomain": "alice", "domain": "example.com"}, gotBody)
	assert.True(t, out.Available)
}

func TestDoJSON_QueryString(t *testing.T) {
	var gotActor string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotActor = r.URL.Query().Get("actor")
		_, _ = w.Write([]byte(`{}`))
	}))
	defer ts.Close()

	err := DoJSON(context.Background(), ts.Client(), Request{
		Method: http.MethodGet,
		URL:    ts.URL + "/xrpc/app.bsky.actor.getProfile",
		Query:  url.Values{"actor": []string{"did:plc:alice"}},
	}, nil)

	require.NoError(t, err)
	assert.Equal(t, "did:plc:alice", gotActor)
}

func TestDoJSON_NonSuccessStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"error":"taken"}`))
	}))
	defer ts.Close()

	err := DoJSON(context.Background(), ts.Client(), Request{Method: http.MethodPost, URL: ts.URL, Body: struct{}{}}, nil)

	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusConflict, se.StatusCode)
	assert.Equal(t, `{"error":"taken"}`, se.Body)
	assert.Contains(t, err.Error(), "409")
}

func TestDoJSON_EmptyBodyIsFine(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	var out map[string]any
	require.NoError(t, DoJSON(context.Background(), ts.Client(), Request{Method: http.MethodPost, URL: ts.URL}, &out))
	assert.Nil(t, out)
}

func TestDoJSON_MalformedJSON(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{not json`))
	}))
	defer ts.Close()

	var out map[string]any
	err := DoJSON(context.Background(), ts.Client(), Request{Method: http.MethodGet, URL: ts.URL}, &out)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode response")
}

func TestDoJSON_BadURL(t *testing.T) {
	err := DoJSON(context.Background(), http.DefaultClient, Request{Method: http.MethodGet, URL: "http://[::1"}, nil)
	require.Error(t, err)
}
