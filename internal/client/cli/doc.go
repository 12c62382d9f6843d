// Package cli provides the interactive biru command-line client.
//
// It wires configuration, the session store, the PDS and handle backend
// clients, and the registration workflow behind a line-oriented REPL. On
// start it resumes a saved session when all four session cookies are
// present; otherwise it looks up the configured default server and waits
// for 'login'.
//
// Commands:
//   - server / login / logout / whoami
//   - domains / list / check / register / switch / release
//   - post
//   - tui, a full-screen registration form
//
// The REPL is started via App.Run(ctx), which blocks until the user exits.
package cli
