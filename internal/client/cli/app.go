package cli

import (
	"bufio"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/dmitrijs2005/biru/internal/client/atproto"
	"github.com/dmitrijs2005/biru/internal/client/client"
	"github.com/dmitrijs2005/biru/internal/client/config"
	"github.com/dmitrijs2005/biru/internal/client/registry"
	"github.com/dmitrijs2005/biru/internal/client/repositories/cookies"
	"github.com/dmitrijs2005/biru/internal/client/services"
	"github.com/dmitrijs2005/biru/internal/client/tui"
	"github.com/dmitrijs2005/biru/internal/client/workflow"
	"github.com/dmitrijs2005/biru/internal/common"
	"github.com/dmitrijs2005/biru/internal/cryptox"
	"github.com/dmitrijs2005/biru/internal/logging"
)

type App struct {
	config  *config.Config
	db      *sql.DB
	log     logging.Logger
	auth    services.AuthService
	handles services.HandleService
	posts   services.PostService
	flow    *workflow.Controller
	reader  *bufio.Reader
	out     io.Writer
}

// deps are the pieces NewApp builds from Config; tests supply their own.
type deps struct {
	db           *sql.DB
	sealer       cookies.Sealer
	pdsHTTP      *http.Client
	registryHTTP *http.Client
	scheduler    workflow.Scheduler
	log          logging.Logger
	reader       *bufio.Reader
	out          io.Writer
}

// NewApp opens the session database and token key, and wires the services
// and the workflow controller.
func NewApp(c *config.Config) (*App, error) {
	ctx := context.Background()
	log := logging.New(c.LogLevel, os.Stderr)

	db, err := client.InitDatabase(ctx, c.DBPath)
	if err != nil {
		log.Error(ctx, "error initializing database", "path", c.DBPath, "error", err)
		return nil, err
	}

	key, err := cryptox.LoadOrCreateKey(c.KeyPath)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("token key: %w", err)
	}
	sealer, err := cryptox.NewSealer(key)
	common.WipeByteArray(key)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	hc := &http.Client{Timeout: c.RequestTimeout}
	return newApp(c, deps{
		db:           db,
		sealer:       sealer,
		pdsHTTP:      hc,
		registryHTTP: hc,
		scheduler:    workflow.RealScheduler{},
		log:          log,
		reader:       bufio.NewReader(os.Stdin),
		out:          os.Stdout,
	}), nil
}

func newApp(c *config.Config, d deps) *App {
	pds := atproto.New(d.pdsHTTP)
	auth := services.NewAuthService(pds, d.db, d.sealer, c.SessionTTL, d.log.With("component", "auth"))
	handles := services.NewHandleService(auth, registry.New(c.RegistryURL, d.registryHTTP), d.db, d.log.With("component", "handles"))
	posts := services.NewPostService(auth, pds, d.log.With("component", "posts"))

	flow := workflow.NewController(auth, handles, workflow.Options{
		Scheduler:      d.scheduler,
		DebounceDelay:  c.DebounceDelay,
		RequestTimeout: c.RequestTimeout,
		Logger:         d.log.With("component", "workflow"),
	})

	return &App{
		config:  c,
		db:      d.db,
		log:     d.log,
		auth:    auth,
		handles: handles,
		posts:   posts,
		flow:    flow,
		reader:  d.reader,
		out:     d.out,
	}
}

// Run resumes a saved session when there is one and then serves the REPL
// until the user exits or ctx is done.
func (a *App) Run(ctx context.Context) {
	defer a.db.Close()
	defer a.flow.Close()

	a.println("Welcome to biru (type 'help' for commands)")

	err := a.flow.Restore(ctx)
	switch {
	case err == nil:
		a.println("Welcome back,", a.userName())
	case errors.Is(err, common.ErrNoSession):
		a.useDefaultServer()
	default:
		a.log.Warn(ctx, "session restore failed", "error", err)
		a.useDefaultServer()
	}

	runREPL(ctx, a, a.status, a.reader)
}

func (a *App) useDefaultServer() {
	a.flow.SetServer(a.config.Server)
	a.flow.FlushServer()
}

func (a *App) println(args ...any) {
	fmt.Fprintln(a.out, args...)
}

func (a *App) printf(format string, args ...any) {
	fmt.Fprintf(a.out, format, args...)
}

func (a *App) isLoggedIn() bool {
	return a.flow.Snapshot().LoggedIn()
}

func (a *App) userName() string {
	u := a.flow.Snapshot().User
	switch {
	case u == nil:
		return ""
	case u.Handle != "":
		return "@" + u.Handle
	default:
		return u.DID
	}
}

func (a *App) status() string {
	if a.isLoggedIn() {
		return "(" + a.userName() + ")"
	}
	if s := a.flow.Snapshot().Login; s.ServerStatus == workflow.ServerFound {
		return "(" + s.Server + ")"
	}
	return ""
}

// TUI opens the interactive registration form.
func (a *App) TUI(ctx context.Context) error {
	if err := tui.Run(ctx, a.flow); err != nil {
		return err
	}
	a.flow.Refresh(ctx)
	return nil
}
