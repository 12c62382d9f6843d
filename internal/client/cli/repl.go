package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/dmitrijs2005/biru/internal/client/client"
	"github.com/dmitrijs2005/biru/internal/common"
)

// printlnFn is a test seam for user-facing output. In tests, replace it with a stub.
var printlnFn = fmt.Println

// execIface defines the minimal command surface the REPL needs to operate.
// The real App type satisfies this interface; tests can provide a lightweight stub.
type execIface interface {
	isLoggedIn() bool
	Server(ctx context.Context, args []string) error
	Login(ctx context.Context) error
	Logout(ctx context.Context) error
	WhoAmI(ctx context.Context) error
	Domains(ctx context.Context) error
	List(ctx context.Context) error
	Check(ctx context.Context, args []string) error
	Register(ctx context.Context, args []string) error
	Switch(ctx context.Context, args []string) error
	Release(ctx context.Context, args []string) error
	Post(ctx context.Context) error
	TUI(ctx context.Context) error
}

type command struct {
	name    string
	args    string
	minArgs int
	auth    bool
}

var commands = []command{
	{name: "server", args: "<hostname>", minArgs: 1},
	{name: "login"},
	{name: "whoami", auth: true},
	{name: "domains", auth: true},
	{name: "list", auth: true},
	{name: "check", args: "<subdomain> [domain]", minArgs: 1, auth: true},
	{name: "register", args: "<subdomain> [domain] [primary]", minArgs: 1, auth: true},
	{name: "switch", args: "<number|id|default>", minArgs: 1, auth: true},
	{name: "release", args: "<number|id>", minArgs: 1, auth: true},
	{name: "post", auth: true},
	{name: "tui", auth: true},
	{name: "logout", auth: true},
}

func lookup(name string) (command, bool) {
	if name == "l" {
		name = "list"
	}
	for _, c := range commands {
		if c.name == name {
			return c, true
		}
	}
	return command{}, false
}

func help(loggedIn bool) string {
	var names []string
	for _, c := range commands {
		if c.auth == loggedIn {
			names = append(names, c.name)
		}
	}
	names = append(names, "help", "exit")
	return "Available commands: " + strings.Join(names, ", ")
}

// userMessage turns a command error into the line shown to the user.
// Credential and token detail never reaches the terminal.
func userMessage(err error) string {
	var ve *common.ValidationError
	var oe *common.OperationError
	switch {
	case errors.As(err, &ve):
		return "Error: " + ve.Error()
	case errors.Is(err, common.ErrAuth):
		return "Error: verification failed"
	case errors.Is(err, common.ErrNoSession):
		return "Error: you are not logged in (or the session expired), use 'login'"
	case errors.Is(err, common.ErrServerNotFound):
		return "Error: " + err.Error()
	case errors.Is(err, common.ErrBusy):
		return "Error: another operation is in progress, try again"
	case errors.Is(err, common.ErrCapacity):
		return fmt.Sprintf("Error: you already have %d handles, release one first", common.MaxUsernames)
	case errors.Is(err, common.ErrNotAvailable):
		return "Error: that handle is taken"
	case errors.Is(err, common.ErrNotConfirmed):
		return "Error: registration was not confirmed"
	case errors.Is(err, common.ErrNetwork), errors.Is(err, client.ErrUnavailable):
		return "Error: server unavailable, try again later"
	case errors.As(err, &oe):
		return "Error: " + oe.Error()
	}
	return "Error: " + err.Error()
}

// runREPL starts a simple read–eval–print loop for the biru CLI.
//
// It reads a line from reader, parses the first token as the command, and
// dispatches to methods on 'a'. The same reader feeds the interactive
// prompts of the commands themselves. The loop exits on EOF, when ctx is
// done, or when the user types "exit" or "quit".
//
// The prompt shows the current status (from statusFn). Commands marked as
// requiring a session are refused until the user logs in.
func runREPL(ctx context.Context, a execIface, statusFn func() string, reader *bufio.Reader) {
	for {
		if ctx.Err() != nil {
			return
		}

		printlnFn(fmt.Sprintf("biru %s> ", statusFn()))
		line, err := reader.ReadString('\n')
		if err != nil && (err != io.EOF || line == "") {
			return
		}
		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}
		name, args := parts[0], parts[1:]

		switch name {
		case "help":
			printlnFn(help(a.isLoggedIn()))
			continue
		case "exit", "quit":
			printlnFn("Bye!")
			return
		}

		cmd, ok := lookup(name)
		if !ok {
			printlnFn("Unknown command:", name)
			continue
		}
		if len(args) < cmd.minArgs {
			printlnFn("Usage:", cmd.name, cmd.args)
			continue
		}
		if cmd.auth && !a.isLoggedIn() {
			printlnFn("Please log in first")
			continue
		}

		if err := dispatch(ctx, a, cmd.name, args); err != nil {
			printlnFn(userMessage(err))
		}
	}
}

func dispatch(ctx context.Context, a execIface, name string, args []string) error {
	switch name {
	case "server":
		return a.Server(ctx, args)
	case "login":
		return a.Login(ctx)
	case "whoami":
		return a.WhoAmI(ctx)
	case "domains":
		return a.Domains(ctx)
	case "list":
		return a.List(ctx)
	case "check":
		return a.Check(ctx, args)
	case "register":
		return a.Register(ctx, args)
	case "switch":
		return a.Switch(ctx, args)
	case "release":
		return a.Release(ctx, args)
	case "post":
		return a.Post(ctx)
	case "tui":
		return a.TUI(ctx)
	case "logout":
		return a.Logout(ctx)
	}
	return nil
}
