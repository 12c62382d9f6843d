// Package workflow holds the interactive state shared by the REPL and the TUI:
// the login form (server lookup, credentials) and the handle registration form
// (availability check, confirmation, switch/release).
//
// Keystroke-level input is debounced with a cancel-and-reschedule timer, and
// every asynchronous answer is tagged with the input it was computed for so a
// late response for stale input is dropped. State is published as immutable
// Snapshots through the OnChange callback.
package workflow
