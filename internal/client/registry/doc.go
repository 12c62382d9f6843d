// Package registry is the REST client for the handle backend:
// /api/list, /api/domains, /api/check, /api/register, /api/switch and
// /api/release.
//
// Every call is bearer-authenticated with the user's AT-Protocol access token
// and names the issuing server and DID in X-Atproto-Server / X-Atproto-Did,
// so the backend can verify the token with that server.
//
// Calls run through a circuit breaker: when the backend keeps failing, the
// breaker opens and calls fail fast with client.ErrUnavailable instead of
// piling up behind debounced availability checks.
package registry
