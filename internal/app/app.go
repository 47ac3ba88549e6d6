// Package app wires the session store, the backend client, the query cache,
// the login flow and the router into one client application.
package app

import (
	"context"
	"fmt"
	"io"

	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/patientenakte/internal/api"
	"github.com/wolfeidau/patientenakte/internal/client"
	"github.com/wolfeidau/patientenakte/internal/config"
	"github.com/wolfeidau/patientenakte/internal/login"
	"github.com/wolfeidau/patientenakte/internal/query"
	"github.com/wolfeidau/patientenakte/internal/router"
	"github.com/wolfeidau/patientenakte/internal/session"
)

// Option configures an App.
type Option func(*options)

type options struct {
	storage       session.Storage
	clientOptions []client.Option
	queryOptions  []query.Option
}

// WithStorage replaces the session file in the session directory.
func WithStorage(storage session.Storage) Option {
	return func(o *options) { o.storage = storage }
}

// WithClientOptions passes options to the backend client.
func WithClientOptions(opts ...client.Option) Option {
	return func(o *options) { o.clientOptions = append(o.clientOptions, opts...) }
}

// WithQueryOptions passes options to the query cache.
func WithQueryOptions(opts ...query.Option) Option {
	return func(o *options) { o.queryOptions = append(o.queryOptions, opts...) }
}

// App is the assembled client.
type App struct {
	Sessions  *session.Store
	Client    *client.Client
	Auth      *api.Auth
	Patients  *api.Patients
	Queries   *query.Client
	Login     *login.Flow
	Router    *router.Router
	Navigator *router.Navigator

	closers []func()
}

// New assembles the application. Rendered views are written to out.
func New(settings config.Settings, out io.Writer, opts ...Option) (*App, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}

	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	if o.storage == nil {
		fs, err := session.NewFileStorage(settings.SessionDir)
		if err != nil {
			return nil, fmt.Errorf("failed to open session storage: %w", err)
		}
		o.storage = fs
	}

	a := &App{
		Sessions: session.NewStore(o.storage),
		Queries:  query.New(o.queryOptions...),
	}

	c, err := client.New(client.Config{
		BaseURL: settings.APIURL,
		Timeout: settings.Timeout,
		Cache:   settings.Cache,
	}, a.Sessions, o.clientOptions...)
	if err != nil {
		return nil, err
	}
	a.Client = c
	a.Auth = api.NewAuth(c)
	a.Patients = api.NewPatients(c)

	a.closers = append(a.closers, a.Sessions.Subscribe(a.resetCachesOnTokenChange()))

	a.Login = login.NewFlow(a.Auth, a.Sessions)
	a.closers = append(a.closers, a.Login.Close)

	a.Router = a.routes()
	a.Navigator = router.NewNavigator(a.Router, out, c)
	a.closers = append(a.closers, a.Navigator.Close)

	return a, nil
}

// Close releases subscriptions and waits for background work.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// Open navigates to path.
func (a *App) Open(ctx context.Context, path string) error {
	return a.Navigator.Navigate(ctx, path)
}

// SignIn submits credentials and waits for the user profile to load.
func (a *App) SignIn(ctx context.Context, creds api.Credentials) error {
	if err := a.Login.Submit(ctx, creds); err != nil {
		return err
	}
	a.Login.Wait()
	return nil
}

// Logout ends the local session. The backend keeps no session state to
// revoke.
func (a *App) Logout() error {
	return a.Sessions.Logout()
}

// resetCachesOnTokenChange drops every cached response when the token
// changes, so nothing fetched for one session is served to another.
func (a *App) resetCachesOnTokenChange() func(session.Session) {
	last := a.Sessions.Get().Token
	return func(s session.Session) {
		if s.Token == last {
			return
		}
		last = s.Token

		a.Client.ResetCache()
		a.Queries.Clear()
		log.Debug().Bool("authenticated", s.Authenticated).Msg("session changed, caches reset")
	}
}

func (a *App) routes() *router.Router {
	guard := router.NewGuard(a.Sessions)

	r := router.New()
	r.Handle("/", router.RedirectTo(router.DashboardPath))
	r.Handle(router.LoginPath, router.ViewFunc(a.loginView))
	r.Handle(router.DashboardPath, guard.Protect(router.ViewFunc(a.dashboardView)))
	r.Handle("/patients", guard.Protect(router.ViewFunc(a.patientsView)))
	r.Handle("/patients/{id:[0-9]+}", guard.Protect(router.ViewFunc(a.patientView)))
	return r
}
