package registry

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/dmitrijs2005/biru/internal/client/client"
	"github.com/dmitrijs2005/biru/internal/client/models"
	"github.com/dmitrijs2005/biru/internal/common"
	"github.com/dmitrijs2005/biru/internal/netx"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/sony/gobreaker"
)

const (
	HeaderServer    = "X-Atproto-Server"
	HeaderDID       = "X-Atproto-Did"
	HeaderRequestID = "X-Request-Id"
)

var ErrRejected = errors.New("rejected by backend")

var validate = validator.New()

type checkRequest struct {
	Subdomain string `json:"subdomain" validate:"required,max=63"`
	Domain    string `json:"domain" validate:"required,fqdn"`
}

type registerRequest struct {
	Domain               string `json:"domain" validate:"required,fqdn"`
	Subdomain            string `json:"subdomain" validate:"required,max=63"`
	SetAsPrimaryUsername bool   `json:"setAsPrimaryUsername"`
}

type idRequest struct {
	ID string `json:"id" validate:"required"`
}

type registerResponse struct {
	Success *bool  `json:"success"`
	ID      string `json:"id"`
	Message string `json:"message"`
	Error   string `json:"error"`
}

// Client talks to the handle backend at baseURL.
type Client struct {
	baseURL string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker
}

// New returns a Client. hc may be nil for a default client with a 10s timeout.
func New(baseURL string, hc *http.Client) *Client {
	if hc == nil {
		hc = &http.Client{Timeout: 10 * time.Second}
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "registry",
		MaxRequests: 1,
		Interval:    30 * time.Second,
		Timeout:     15 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !errors.Is(err, client.ErrUnavailable)
		},
	})
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: hc, breaker: cb}
}

// List returns the caller's registrations in backend order.
func (c *Client) List(ctx context.Context, creds models.Credentials) ([]models.Registration, error) {
	var out []models.Registration
	if err := c.call(ctx, creds, http.MethodGet, "/api/list", nil, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = []models.Registration{}
	}
	return out, nil
}

// Domains returns the operator domains handles can be registered under.
func (c *Client) Domains(ctx context.Context, creds models.Credentials) ([]models.Domain, error) {
	var out []models.Domain
	if err := c.call(ctx, creds, http.MethodGet, "/api/domains", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Check asks whether pair is free. The result is tagged with pair.
func (c *Client) Check(ctx context.Context, creds models.Credentials, pair models.Pair) (*models.Availability, error) {
	req := checkRequest{Subdomain: pair.Subdomain, Domain: pair.Domain}
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	var out models.Availability
	if err := c.call(ctx, creds, http.MethodPost, "/api/check", req, &out); err != nil {
		return nil, err
	}
	out.Pair = pair
	return &out, nil
}

// Register claims pair, optionally making it the primary handle.
func (c *Client) Register(ctx context.Context, creds models.Credentials, pair models.Pair, setPrimary bool) error {
	req := registerRequest{Domain: pair.Domain, Subdomain: pair.Subdomain, SetAsPrimaryUsername: setPrimary}
	if err := validateRequest(req); err != nil {
		return err
	}

	var out registerResponse
	if err := c.call(ctx, creds, http.MethodPost, "/api/register", req, &out); err != nil {
		return err
	}
	if out.Success != nil && !*out.Success {
		reason := out.Message
		if reason == "" {
			reason = out.Error
		}
		if reason == "" {
			return ErrRejected
		}
		return fmt.Errorf("%w: %s", ErrRejected, reason)
	}
	return nil
}

// Switch makes registration id (or common.DefaultHandleID) the primary handle.
func (c *Client) Switch(ctx context.Context, creds models.Credentials, id string) error {
	return c.postID(ctx, creds, "/api/switch", id)
}

// Release gives up registration id.
func (c *Client) Release(ctx context.Context, creds models.Credentials, id string) error {
	return c.postID(ctx, creds, "/api/release", id)
}

func (c *Client) postID(ctx context.Context, creds models.Credentials, path, id string) error {
	req := idRequest{ID: id}
	if err := validateRequest(req); err != nil {
		return err
	}
	return c.call(ctx, creds, http.MethodPost, path, req, nil)
}

func (c *Client) call(ctx context.Context, creds models.Credentials, method, path string, body, out any) error {
	if creds.Empty() {
		return client.ErrUnauthorized
	}

	header := http.Header{}
	header.Set(common.AuthorizationHeaderName, common.BearerPrefix+creds.AccessToken)
	header.Set(HeaderServer, creds.Server)
	header.Set(HeaderDID, creds.DID)
	header.Set(HeaderRequestID, uuid.NewString())

	_, err := c.breaker.Execute(func() (interface{}, error) {
		err := netx.DoJSON(ctx, c.http, netx.Request{Method: method, URL: c.baseURL + path, Header: header, Body: body}, out)
		return nil, c.mapError(err)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %v", client.ErrUnavailable, err)
	}
	return err
}

func (c *Client) mapError(err error) error {
	if err == nil {
		return nil
	}
	if mapped, ok := client.Classify(err); ok {
		return mapped
	}
	return fmt.Errorf("registry error: %w", err)
}

func validateRequest(req any) error {
	err := validate.Struct(req)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return common.NewValidationError(strings.ToLower(fe.Field()), "failed "+fe.Tag()+" check")
	}
	return err
}
