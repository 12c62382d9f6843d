// Package tui is the keystroke-driven registration form built on bubbletea.
//
// Every edit goes straight to the workflow controller, which debounces the
// availability check; the controller's change callback repaints the view.
package tui
