package atproto

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/dmitrijs2005/biru/internal/client/client"
	"github.com/dmitrijs2005/biru/internal/client/models"
	"github.com/dmitrijs2005/biru/internal/common"
	"github.com/dmitrijs2005/biru/internal/netx"
)

// XRPC method ids.
const (
	MethodDescribeServer = "com.atproto.server.describeServer"
	MethodCreateSession  = "com.atproto.server.createSession"
	MethodRefreshSession = "com.atproto.server.refreshSession"
	MethodGetProfile     = "app.bsky.actor.getProfile"
	MethodResolveHandle  = "com.atproto.identity.resolveHandle"
	MethodCreateRecord   = "com.atproto.repo.createRecord"
)

// CollectionPost is the NSID of Bluesky posts.
const CollectionPost = "app.bsky.feed.post"

// Client performs XRPC calls against any AT-Protocol server.
type Client struct {
	http *http.Client
}

// New returns a Client using hc, or a client with a 10s timeout when hc is nil.
func New(hc *http.Client) *Client {
	if hc == nil {
		hc = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{http: hc}
}

type xrpcError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

type sessionResponse struct {
	DID        string `json:"did"`
	Handle     string `json:"handle"`
	AccessJwt  string `json:"accessJwt"`
	RefreshJwt string `json:"refreshJwt"`
}

func (r sessionResponse) toSession(host string) *models.Session {
	return &models.Session{Server: host, DID: r.DID, Handle: r.Handle, AccessJwt: r.AccessJwt, RefreshJwt: r.RefreshJwt}
}

func endpoint(host, method string) string {
	return "https://" + host + "/xrpc/" + method
}

func bearer(token string) http.Header {
	return http.Header{common.AuthorizationHeaderName: []string{common.BearerPrefix + token}}
}

// DescribeServer fetches the server descriptor for host.
func (c *Client) DescribeServer(ctx context.Context, host string) (*models.ServerDescriptor, error) {
	var out models.ServerDescriptor
	err := netx.DoJSON(ctx, c.http, netx.Request{Method: http.MethodGet, URL: endpoint(host, MethodDescribeServer)}, &out)
	if err != nil {
		return nil, c.mapError(err)
	}
	out.Host = host
	return &out, nil
}

// CreateSession logs in with an identifier (handle or email) and app password.
func (c *Client) CreateSession(ctx context.Context, host, identifier, password string) (*models.Session, error) {
	var out sessionResponse
	err := netx.DoJSON(ctx, c.http, netx.Request{
		Method: http.MethodPost,
		URL:    endpoint(host, MethodCreateSession),
		Body:   map[string]string{"identifier": identifier, "password": password},
	}, &out)
	if err != nil {
		return nil, c.mapError(err)
	}
	return out.toSession(host), nil
}

// RefreshSession trades a refresh JWT for a new token pair.
func (c *Client) RefreshSession(ctx context.Context, host, refreshJwt string) (*models.Session, error) {
	var out sessionResponse
	err := netx.DoJSON(ctx, c.http, netx.Request{
		Method: http.MethodPost,
		URL:    endpoint(host, MethodRefreshSession),
		Header: bearer(refreshJwt),
	}, &out)
	if err != nil {
		return nil, c.mapError(err)
	}
	return out.toSession(host), nil
}

// GetProfile fetches the profile of actor (a DID or handle).
func (c *Client) GetProfile(ctx context.Context, creds models.Credentials, actor string) (*models.Profile, error) {
	var out models.Profile
	err := netx.DoJSON(ctx, c.http, netx.Request{
		Method: http.MethodGet,
		URL:    endpoint(creds.Server, MethodGetProfile),
		Query:  url.Values{"actor": []string{actor}},
		Header: bearer(creds.AccessToken),
	}, &out)
	if err != nil {
		return nil, c.mapError(err)
	}
	return &out, nil
}

// ResolveHandle returns the DID a handle points at.
func (c *Client) ResolveHandle(ctx context.Context, host, handle string) (string, error) {
	var out struct {
		DID string `json:"did"`
	}
	err := netx.DoJSON(ctx, c.http, netx.Request{
		Method: http.MethodGet,
		URL:    endpoint(host, MethodResolveHandle),
		Query:  url.Values{"handle": []string{handle}},
	}, &out)
	if err != nil {
		return "", c.mapError(err)
	}
	return out.DID, nil
}

// CreateRecord writes record into collection of the authenticated repo and
// returns the new record URI.
func (c *Client) CreateRecord(ctx context.Context, creds models.Credentials, collection string, record any) (string, error) {
	var out struct {
		URI string `json:"uri"`
		CID string `json:"cid"`
	}
	err := netx.DoJSON(ctx, c.http, netx.Request{
		Method: http.MethodPost,
		URL:    endpoint(creds.Server, MethodCreateRecord),
		Header: bearer(creds.AccessToken),
		Body: map[string]any{
			"repo":       creds.DID,
			"collection": collection,
			"record":     record,
		},
	}, &out)
	if err != nil {
		return "", c.mapError(err)
	}
	return out.URI, nil
}

func (c *Client) mapError(err error) error {
	if mapped, ok := client.Classify(err); ok {
		return mapped
	}

	var se *netx.StatusError
	if errors.As(err, &se) {
		var xe xrpcError
		if json.Unmarshal([]byte(se.Body), &xe) == nil {
			switch xe.Error {
			case "ExpiredToken", "InvalidToken", "AuthenticationRequired", "AuthFactorTokenRequired":
				return client.ErrUnauthorized
			}
			if xe.Error != "" {
				return fmt.Errorf("xrpc %s: %w", xe.Error, err)
			}
		}
	}
	return fmt.Errorf("xrpc error: %w", err)
}
