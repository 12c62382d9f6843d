// Package client contains client-side building blocks shared by the biru
// remote clients and services.
//
// # Overview
//
// The package provides:
//  1. Transport sentinel errors (ErrUnavailable, ErrUnauthorized) and
//     Classify, which maps HTTP status codes and dial/timeout failures onto
//     them. The XRPC and registry clients use it in their mapError helpers.
//  2. Local persistence bootstrap (InitDatabase, RunMigrations): an SQLite
//     database with embedded goose migrations holding the persisted session
//     cookies and the last-known registration list.
//
// # Error Handling
//
// Callers match the sentinels with errors.Is. Errors that are neither
// authorization nor availability problems are passed through unchanged.
package client
