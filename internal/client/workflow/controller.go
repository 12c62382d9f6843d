package workflow

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/biru/internal/client/models"
	"github.com/dmitrijs2005/biru/internal/client/services"
	"github.com/dmitrijs2005/biru/internal/common"
	"github.com/dmitrijs2005/biru/internal/logging"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const (
	OpSwitch  = "switch"
	OpRelease = "release"
)

type Options struct {
	// Scheduler drives the debounce timers; nil means RealScheduler.
	Scheduler Scheduler
	// DebounceDelay is the quiet period before a lookup or check is sent.
	DebounceDelay time.Duration
	// RequestTimeout bounds every network call.
	RequestTimeout time.Duration
	Logger         logging.Logger
}

// Controller owns the login and registration state.
type Controller struct {
	auth    services.AuthService
	handles services.HandleService
	log     logging.Logger
	timeout time.Duration

	serverDebounce *Debouncer
	checkDebounce  *Debouncer

	mu       sync.Mutex
	state    Snapshot
	password string
	opToken  string
	onChange func(Snapshot)
}

func NewController(auth services.AuthService, handles services.HandleService, opts Options) *Controller {
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 10 * time.Second
	}
	return &Controller{
		auth:           auth,
		handles:        handles,
		log:            opts.Logger,
		timeout:        opts.RequestTimeout,
		serverDebounce: NewDebouncer(opts.Scheduler, opts.DebounceDelay),
		checkDebounce:  NewDebouncer(opts.Scheduler, opts.DebounceDelay),
	}
}

// OnChange registers fn to receive a snapshot after every state change. fn
// runs without the controller lock held.
func (c *Controller) OnChange(fn func(Snapshot)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onChange = fn
}

func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.clone()
}

// Close cancels pending debounced calls.
func (c *Controller) Close() {
	c.serverDebounce.Stop()
	c.checkDebounce.Stop()
}

// update applies fn under the lock and publishes the result.
func (c *Controller) update(fn func(s *Snapshot)) {
	c.mu.Lock()
	fn(&c.state)
	snap := c.state.clone()
	notify := c.onChange
	c.mu.Unlock()

	if notify != nil {
		notify(snap)
	}
}

func (c *Controller) callCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.timeout)
}

// ---- login form ----

// SetServer edits the server field. Like the login form it resets the
// descriptor and credentials, then schedules a debounced lookup.
func (c *Controller) SetServer(host string) {
	host = services.NormalizeHostname(host)
	valid := services.ValidHostname(host)

	c.update(func(s *Snapshot) {
		s.Login = LoginState{Server: host}
		c.password = ""
		switch {
		case host == "":
			s.Login.ServerStatus = ServerIdle
		case !valid:
			s.Login.ServerStatus = ServerInvalid
		}
	})

	if !valid {
		c.serverDebounce.Stop()
		return
	}
	c.serverDebounce.Trigger(func() { c.lookupServer(host) })
}

// FlushServer runs a pending lookup immediately.
func (c *Controller) FlushServer() bool {
	return c.serverDebounce.Flush()
}

func (c *Controller) lookupServer(host string) {
	stale := false
	c.update(func(s *Snapshot) {
		if s.Login.Server != host {
			stale = true
			return
		}
		s.Login.ServerStatus = ServerLookingUp
	})
	if stale {
		return
	}

	ctx, cancel := c.callCtx(context.Background())
	defer cancel()
	desc, err := c.auth.LookupServer(ctx, host)

	c.update(func(s *Snapshot) {
		if s.Login.Server != host {
			c.log.Debug(ctx, "stale server lookup dropped", "host", host)
			return
		}
		if err != nil {
			s.Login.ServerStatus = ServerNotFound
			s.Login.Descriptor = nil
			return
		}
		s.Login.ServerStatus = ServerFound
		s.Login.Descriptor = desc
	})
}

func (c *Controller) SetIdentifier(identifier string) {
	c.update(func(s *Snapshot) {
		s.Login.Identifier = strings.TrimSpace(identifier)
		resetFailure(&s.Login)
	})
}

func (c *Controller) SetPassword(password string) {
	c.update(func(s *Snapshot) {
		c.password = password
		s.Login.HasPassword = password != ""
		resetFailure(&s.Login)
	})
}

func resetFailure(l *LoginState) {
	if l.Status == LoginFailed {
		l.Status = LoginIdle
		l.Err = nil
	}
}

// Login submits the login form. On success the password is forgotten and
// the registration list is loaded.
func (c *Controller) Login(ctx context.Context) error {
	var (
		server, identifier, password string
		guard                        error
	)
	c.update(func(s *Snapshot) {
		l := &s.Login
		switch {
		case l.Status == LoggingIn:
			guard = common.ErrBusy
		case l.Identifier == "":
			guard = common.NewValidationError("identifier", "required")
		case !l.HasPassword:
			guard = common.NewValidationError("password", "required")
		case l.ServerStatus != ServerFound:
			guard = common.ErrServerNotFound
		default:
			l.Status = LoggingIn
			l.Err = nil
			server, identifier, password = l.Server, l.Identifier, c.password
		}
	})
	if guard != nil {
		return guard
	}

	callCtx, cancel := c.callCtx(ctx)
	defer cancel()
	profile, err := c.auth.Login(callCtx, server, identifier, password)

	c.update(func(s *Snapshot) {
		if err != nil {
			s.Login.Status = LoginFailed
			s.Login.Err = err
			return
		}
		s.Login.Status = Authenticated
		s.Login.HasPassword = false
		c.password = ""
		s.User = profile
	})
	if err != nil {
		return err
	}
	c.Refresh(ctx)
	return nil
}

// Restore resumes a persisted session. It returns common.ErrNoSession when
// there is none.
func (c *Controller) Restore(ctx context.Context) error {
	sess, err := c.auth.Restore(ctx)
	if err != nil {
		return err
	}

	c.update(func(s *Snapshot) {
		s.Login = LoginState{Server: sess.Server, ServerStatus: ServerFound, Status: Authenticated}
		s.User = c.auth.CurrentUser()
	})
	c.Refresh(ctx)
	return nil
}

// Logout drops the session and resets both forms.
func (c *Controller) Logout(ctx context.Context) error {
	if err := c.auth.Logout(ctx); err != nil {
		return err
	}
	c.Close()
	c.update(func(s *Snapshot) {
		*s = Snapshot{}
		c.password = ""
		c.opToken = ""
	})
	return nil
}

// ---- registration form ----

type refreshParts struct {
	list, domains, profile bool
}

// Refresh reloads the registration list, the domain list and the profile
// concurrently. Failures are logged; the previous values stay visible.
func (c *Controller) Refresh(ctx context.Context) {
	c.refresh(ctx, refreshParts{list: true, domains: true, profile: true})
}

func (c *Controller) refresh(ctx context.Context, parts refreshParts) {
	var (
		g       errgroup.Group
		regs    []models.Registration
		listErr error
		domains []models.Domain
		profile *models.Profile
	)

	if parts.list {
		g.Go(func() error {
			callCtx, cancel := c.callCtx(ctx)
			defer cancel()
			regs, listErr = c.handles.ListRegistrations(callCtx)
			if listErr != nil {
				c.log.Warn(ctx, "list registrations failed", "error", listErr)
			}
			return nil
		})
	}
	if parts.domains {
		g.Go(func() error {
			callCtx, cancel := c.callCtx(ctx)
			defer cancel()
			var err error
			if domains, err = c.handles.Domains(callCtx); err != nil {
				c.log.Warn(ctx, "list domains failed", "error", err)
			}
			return nil
		})
	}
	if parts.profile {
		g.Go(func() error {
			callCtx, cancel := c.callCtx(ctx)
			defer cancel()
			var err error
			if profile, err = c.auth.RefreshProfile(callCtx); err != nil {
				c.log.Warn(ctx, "profile refresh failed", "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()

	c.update(func(s *Snapshot) {
		switch {
		case listErr == nil && regs != nil:
			s.Registration.Registrations = regs
		case listErr != nil && len(s.Registration.Registrations) == 0 && len(regs) > 0:
			s.Registration.Registrations = regs
		}
		if domains != nil {
			s.Registration.Domains = domains
		}
		if profile != nil {
			s.User = profile
		}
	})
}

// SetHandle edits the subdomain and domain fields. A changed pair drops the
// previous availability answer and schedules a debounced check; an
// incomplete pair stops checking altogether.
func (c *Controller) SetHandle(subdomain, domain string) {
	pair := models.NewPair(subdomain, domain)
	changed := false

	c.update(func(s *Snapshot) {
		r := &s.Registration
		if r.Pair == pair {
			return
		}
		changed = true
		r.Pair = pair
		r.Availability = nil
		r.Err = nil
		if pair.Complete() {
			r.CheckStatus = CheckPending
		} else {
			r.CheckStatus = CheckIdle
		}
	})
	if !changed {
		return
	}

	if !pair.Complete() {
		c.checkDebounce.Stop()
		return
	}
	c.checkDebounce.Trigger(func() { c.check(pair) })
}

// FlushCheck runs a pending availability check immediately.
func (c *Controller) FlushCheck() bool {
	return c.checkDebounce.Flush()
}

func (c *Controller) check(pair models.Pair) {
	stale := false
	c.update(func(s *Snapshot) {
		if s.Registration.Pair != pair {
			stale = true
			return
		}
		s.Registration.CheckStatus = Checking
	})
	if stale {
		return
	}

	ctx, cancel := c.callCtx(context.Background())
	defer cancel()
	a, err := c.handles.CheckAvailability(ctx, pair)

	c.update(func(s *Snapshot) {
		r := &s.Registration
		if r.Pair != pair {
			c.log.Debug(ctx, "stale availability dropped", "handle", pair.Handle())
			return
		}
		if err != nil {
			r.CheckStatus = CheckFailed
			r.Availability = nil
			r.Err = err
			return
		}
		if a.Pair != pair {
			return
		}
		r.CheckStatus = CheckDone
		r.Availability = a
	})
}

func (c *Controller) SetConfirmed(confirmed bool) {
	c.update(func(s *Snapshot) { s.Registration.Confirmed = confirmed })
}

func (c *Controller) SetPrimary(primary bool) {
	c.update(func(s *Snapshot) { s.Registration.SetPrimary = primary })
}

// Register claims the current pair. It is refused unless the pair was
// checked available, the confirmation is given, nothing else is in flight
// and the user is below the handle limit.
func (c *Controller) Register(ctx context.Context) error {
	var (
		pair    models.Pair
		primary bool
		guard   error
	)
	c.update(func(s *Snapshot) {
		r := &s.Registration
		switch {
		case !r.FormVisible():
			guard = common.ErrCapacity
		case !r.Pair.Complete():
			guard = common.NewValidationError("handle", "subdomain and domain are required")
		case r.Registering || r.CheckStatus == Checking:
			guard = common.ErrBusy
		case !r.Available():
			guard = common.ErrNotAvailable
		case !r.Confirmed:
			guard = common.ErrNotConfirmed
		default:
			r.Registering = true
			r.Err = nil
			pair, primary = r.Pair, r.SetPrimary
		}
	})
	if guard != nil {
		return guard
	}

	callCtx, cancel := c.callCtx(ctx)
	defer cancel()
	err := c.handles.Register(callCtx, pair, primary)

	c.update(func(s *Snapshot) {
		r := &s.Registration
		r.Registering = false
		if err != nil {
			r.Err = err
			return
		}
		if r.Pair == pair {
			r.Pair = models.Pair{}
			r.CheckStatus = CheckIdle
			r.Availability = nil
			r.Confirmed = false
			r.SetPrimary = false
		}
	})
	if err != nil {
		return err
	}
	c.refresh(ctx, refreshParts{list: true, profile: true})
	return nil
}

// begin takes the single in-flight slot shared by switch and release.
func (c *Controller) begin(op, id string) (string, error) {
	var (
		token string
		err   error
	)
	c.update(func(s *Snapshot) {
		if c.opToken != "" {
			err = common.ErrBusy
			return
		}
		token = uuid.NewString()
		c.opToken = token
		s.Registration.InFlightOp = op
		s.Registration.InFlightID = id
		s.Registration.Err = nil
	})
	return token, err
}

func (c *Controller) end(token string, opErr error, apply func(s *Snapshot)) {
	c.update(func(s *Snapshot) {
		if c.opToken != token {
			return
		}
		c.opToken = ""
		s.Registration.InFlightOp = ""
		s.Registration.InFlightID = ""
		if opErr != nil {
			s.Registration.Err = opErr
			return
		}
		if apply != nil {
			apply(s)
		}
	})
}

// Switch makes registration id primary; common.DefaultHandleID goes back to
// the server-issued handle.
func (c *Controller) Switch(ctx context.Context, id string) error {
	if id == "" {
		return common.NewValidationError("id", "required")
	}
	token, err := c.begin(OpSwitch, id)
	if err != nil {
		return err
	}

	callCtx, cancel := c.callCtx(ctx)
	defer cancel()
	err = c.handles.SwitchPrimary(callCtx, id)
	c.end(token, err, nil)
	if err != nil {
		return err
	}
	c.refresh(ctx, refreshParts{list: true, profile: true})
	return nil
}

// Release gives up registration id. The entry is removed locally as soon as
// the backend accepts.
func (c *Controller) Release(ctx context.Context, id string) error {
	if id == "" || id == common.DefaultHandleID {
		return common.NewValidationError("id", "not a registration")
	}
	token, err := c.begin(OpRelease, id)
	if err != nil {
		return err
	}

	callCtx, cancel := c.callCtx(ctx)
	defer cancel()
	err = c.handles.Release(callCtx, id)
	c.end(token, err, func(s *Snapshot) {
		regs := s.Registration.Registrations[:0:0]
		for _, r := range s.Registration.Registrations {
			if r.ID != id {
				regs = append(regs, r)
			}
		}
		s.Registration.Registrations = regs
	})
	if err != nil {
		return err
	}
	c.refresh(ctx, refreshParts{profile: true})
	return nil
}

// IsBusy reports whether err is a refusal because something is in flight.
func IsBusy(err error) bool {
	return errors.Is(err, common.ErrBusy)
}
