package cli

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/biru/internal/client/workflow"
	"github.com/dmitrijs2005/biru/internal/common"
)

// getSimpleText, getPassword and getConfirmation are indirections used to
// facilitate testing. They point to interactive input helpers and can be
// swapped in tests.
var (
	getSimpleText   = GetSimpleText
	getPassword     = GetPassword
	getConfirmation = GetConfirmation
	getMultiline    = GetMultiline
)

// Server looks up the given server right away. A malformed hostname is
// ignored quietly.
func (a *App) Server(ctx context.Context, args []string) error {
	a.flow.SetServer(args[0])
	a.flow.FlushServer()

	s := a.flow.Snapshot().Login
	switch s.ServerStatus {
	case workflow.ServerFound:
		a.printf("Server %s found\n", s.Server)
	case workflow.ServerNotFound:
		a.println("Server not found")
	}
	return nil
}

// Login prompts for an identifier (handle or email) and an app password and
// signs in to the current server.
//
// The password byte slice is wiped before returning. The server's reason
// for a failed login is never shown; the user only sees
// "verification failed".
func (a *App) Login(ctx context.Context) error {
	s := a.flow.Snapshot().Login
	if s.ServerStatus != workflow.ServerFound {
		return fmt.Errorf("%w: use 'server <hostname>' first", common.ErrServerNotFound)
	}

	identifier, err := getSimpleText(a.reader, "Handle or email on "+s.Server, a.out)
	if err != nil {
		return err
	}

	password, err := getPassword(a.out)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	a.flow.SetIdentifier(identifier)
	a.flow.SetPassword(string(password))
	if err := a.flow.Login(ctx); err != nil {
		a.flow.SetPassword("")
		return err
	}

	a.println("Logged in as", a.userName())
	return nil
}

// Logout asks for confirmation, then forgets the saved session and cached
// handles.
func (a *App) Logout(ctx context.Context) error {
	ok, err := getConfirmation(a.reader, "Log out and forget the saved session?", a.out)
	if err != nil {
		return err
	}
	if !ok {
		a.println("Cancelled")
		return nil
	}

	if err := a.flow.Logout(ctx); err != nil {
		return err
	}
	a.println("Logged out")
	a.useDefaultServer()
	return nil
}

// WhoAmI prints the current account.
func (a *App) WhoAmI(ctx context.Context) error {
	snap := a.flow.Snapshot()
	u := snap.User
	if u == nil {
		return common.ErrNoSession
	}

	a.println("Handle: ", "@"+u.Handle)
	if u.DisplayName != "" {
		a.println("Name:   ", u.DisplayName)
	}
	a.println("DID:    ", u.DID)
	a.println("Server: ", snap.Login.Server)
	return nil
}
