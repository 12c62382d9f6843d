package cli

import (
	"context"
	"fmt"
	"strconv"

	"github.com/dmitrijs2005/biru/internal/client/models"
	"github.com/dmitrijs2005/biru/internal/client/workflow"
	"github.com/dmitrijs2005/biru/internal/common"
)

func ownerText(o *models.DomainOwner) string {
	switch o.Badge() {
	case models.BadgeVerified:
		return "owner @" + o.Handle + " (verified)"
	case models.BadgeAttested:
		if o.AttestationURL != "" {
			return "owner @" + o.Handle + " (attested: " + o.AttestationURL + ")"
		}
		return "owner @" + o.Handle + " (attested)"
	}
	return "owner unknown"
}

// Domains prints the domains handles can be registered under.
func (a *App) Domains(ctx context.Context) error {
	domains := a.flow.Snapshot().Registration.Domains
	if len(domains) == 0 {
		a.flow.Refresh(ctx)
		domains = a.flow.Snapshot().Registration.Domains
	}
	if len(domains) == 0 {
		a.println("No domains available")
		return nil
	}
	for _, d := range domains {
		a.printf("  %-24s %s\n", d.Name, ownerText(d.Owner))
	}
	return nil
}

// List reloads and prints the user's handles.
func (a *App) List(ctx context.Context) error {
	a.flow.Refresh(ctx)
	r := a.flow.Snapshot().Registration

	a.printf("Your handles (%d/%d):\n", len(r.Registrations), common.MaxUsernames)
	if len(r.Registrations) == 0 {
		a.println("  none yet, use 'register <subdomain> <domain>'")
	}
	for i, reg := range r.Registrations {
		line := fmt.Sprintf("  %d. @%s  id=%s", i+1, reg.Handle(), reg.ID)
		if reg.Primary {
			line += "  (primary)"
		}
		if !reg.CreatedAt.IsZero() {
			line += "  since " + reg.CreatedAt.Format("2006-01-02")
		}
		a.println(line)
	}
	if !r.FormVisible() {
		a.printf("You have reached the limit of %d handles; release one to register another.\n", common.MaxUsernames)
	}
	return nil
}

// pair turns "<subdomain> [domain]" into a pair, defaulting to the first
// operator domain.
func (a *App) pair(ctx context.Context, args []string) (string, string, error) {
	if len(args) >= 2 {
		return args[0], args[1], nil
	}
	domains := a.flow.Snapshot().Registration.Domains
	if len(domains) == 0 {
		a.flow.Refresh(ctx)
		domains = a.flow.Snapshot().Registration.Domains
	}
	if len(domains) == 0 {
		return "", "", common.NewValidationError("domain", "required")
	}
	return args[0], domains[0].Name, nil
}

// check runs the availability check for the pair right away and prints the
// answer.
func (a *App) check(ctx context.Context, args []string) (workflow.RegistrationState, error) {
	sub, domain, err := a.pair(ctx, args)
	if err != nil {
		return workflow.RegistrationState{}, err
	}
	// clear first so an unchanged pair is checked again
	a.flow.SetHandle("", "")
	a.flow.SetHandle(sub, domain)
	a.flow.FlushCheck()

	r := a.flow.Snapshot().Registration
	if !r.Pair.Complete() {
		return r, common.NewValidationError("handle", "subdomain and domain are required")
	}
	switch r.CheckStatus {
	case workflow.CheckFailed:
		return r, r.Err
	case workflow.CheckDone:
		if r.Available() {
			a.printf("@%s is available\n", r.Pair.Handle())
		} else {
			a.printf("@%s is taken\n", r.Pair.Handle())
		}
		a.println(" ", ownerText(r.Owner()))
	}
	return r, nil
}

func (a *App) Check(ctx context.Context, args []string) error {
	_, err := a.check(ctx, args)
	return err
}

// Register checks the handle, asks the user to acknowledge that the domain
// owner controls it, then registers it.
func (a *App) Register(ctx context.Context, args []string) error {
	if !a.flow.Snapshot().Registration.FormVisible() {
		return common.ErrCapacity
	}

	r, err := a.check(ctx, args)
	if err != nil {
		return err
	}
	if !r.Available() {
		return common.ErrNotAvailable
	}

	primary := len(args) >= 3 && args[2] == "primary"
	ok, err := getConfirmation(a.reader, fmt.Sprintf("The %s of %s can take @%s back at any time. Register it?", ownerText(r.Owner()), r.Pair.Domain, r.Pair.Handle()), a.out)
	if err != nil {
		return err
	}
	if !ok {
		a.println("Cancelled")
		return nil
	}

	a.flow.SetConfirmed(true)
	a.flow.SetPrimary(primary)
	if err := a.flow.Register(ctx); err != nil {
		return err
	}

	a.printf("Registered @%s\n", r.Pair.Handle())
	if primary {
		a.println("It is now your primary handle:", a.userName())
	}
	return nil
}

// resolveID accepts a list number, a registration id or "default".
func (a *App) resolveID(arg string) (string, string, error) {
	if arg == common.DefaultHandleID {
		return arg, "your default handle", nil
	}

	regs := a.flow.Snapshot().Registration.Registrations
	if n, err := strconv.Atoi(arg); err == nil {
		if n < 1 || n > len(regs) {
			return "", "", common.NewValidationError("number", "no such entry, see 'list'")
		}
		return regs[n-1].ID, "@" + regs[n-1].Handle(), nil
	}
	for _, reg := range regs {
		if reg.ID == arg {
			return reg.ID, "@" + reg.Handle(), nil
		}
	}
	return arg, arg, nil
}

func (a *App) Switch(ctx context.Context, args []string) error {
	id, name, err := a.resolveID(args[0])
	if err != nil {
		return err
	}
	if err := a.flow.Switch(ctx, id); err != nil {
		return err
	}
	a.printf("Switched to %s, now %s\n", name, a.userName())
	return nil
}

func (a *App) Release(ctx context.Context, args []string) error {
	id, name, err := a.resolveID(args[0])
	if err != nil {
		return err
	}
	if err := a.flow.Release(ctx, id); err != nil {
		return err
	}
	a.printf("Released %s\n", name)
	return nil
}
