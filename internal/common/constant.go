// Package common contains shared constants and sentinel errors used across
// biru components.
package common

// AuthorizationHeaderName carries the bearer access token on outbound requests.
const AuthorizationHeaderName = "Authorization"

// BearerPrefix precedes the access token in the Authorization header.
const BearerPrefix = "Bearer "

// MaxUsernames is the number of handles a single account may hold at once.
const MaxUsernames = 5

// DefaultHandleID is the sentinel registration id that refers to the
// handle originally issued by the user's server.
const DefaultHandleID = "default"

// Persisted session cookie names.
const (
	CookieDID          = "did"
	CookieServer       = "server"
	CookieAccessToken  = "access_token"
	CookieRefreshToken = "refresh_token"
)

// SessionCookieNames lists every cookie that makes up a persisted session.
var SessionCookieNames = []string{CookieDID, CookieServer, CookieAccessToken, CookieRefreshToken}
