// Package registrations caches the last list of handle registrations the
// backend returned for each account.
//
// The backend stays authoritative: every successful /api/list call replaces
// the cached rows for that DID wholesale (Replace), which is how optimistic
// local edits get reconciled. The cache is only read when the backend cannot
// be reached, so the user still sees a (possibly stale) list.
//
// Replace deletes then inserts; run it through dbx.WithTx so readers never
// observe a half-written list.
package registrations
