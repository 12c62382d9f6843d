// Package atproto is a small XRPC client for the handful of AT-Protocol
// methods biru needs: server discovery, session creation and refresh,
// profile lookup, handle resolution and record creation.
//
// Hosts are bare hostnames ("bsky.social"); the client always speaks HTTPS.
// Errors are mapped with client.Classify, plus the XRPC "ExpiredToken" and
// "InvalidToken" error names, which servers return with status 400.
package atproto
