// Package cookies persists the session cookies (did, server, access_token,
// refresh_token) in the local SQLite database.
//
// Values go through an optional Sealer before they hit the table, so the
// database file on its own holds only ciphertext. Expired cookies behave as
// if they were never stored.
package cookies
