// Package login drives the interactive login: it submits credentials,
// stores the issued token and fills in the user profile in the background.
package login

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/patientenakte/internal/api"
	"github.com/wolfeidau/patientenakte/internal/models"
	"github.com/wolfeidau/patientenakte/internal/session"
	"github.com/wolfeidau/patientenakte/internal/telemetry"
)

var (
	// ErrLoginInProgress is returned when Submit is called while a login
	// is already being processed.
	ErrLoginInProgress = errors.New("login already in progress")

	ErrMissingCredentials = errors.New("username and password are required")
)

// State of the login flow.
type State int

const (
	Anonymous State = iota
	Authenticating
	Authenticated
)

func (s State) String() string {
	switch s {
	case Anonymous:
		return "anonymous"
	case Authenticating:
		return "authenticating"
	case Authenticated:
		return "authenticated"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Authenticator is the part of the backend API the flow talks to.
type Authenticator interface {
	Login(ctx context.Context, creds api.Credentials) (*api.LoginResult, error)
	CurrentUser(ctx context.Context) (*models.Profile, error)
}

// Sessions is the part of the session store the flow writes to.
type Sessions interface {
	Get() session.Session
	SetSession(token string, user *session.User) error
	SetUser(user session.User) error
	Subscribe(fn func(session.Session)) func()
}

// Flow is the login state machine.
type Flow struct {
	auth     Authenticator
	sessions Sessions

	mu    sync.Mutex
	state State

	wg          sync.WaitGroup
	unsubscribe func()
}

// NewFlow creates a flow starting from the store's current session. Any
// logout observed on the store moves the flow back to Anonymous.
func NewFlow(auth Authenticator, sessions Sessions) *Flow {
	f := &Flow{
		auth:     auth,
		sessions: sessions,
	}
	if sessions.Get().Authenticated {
		f.state = Authenticated
	}
	f.unsubscribe = sessions.Subscribe(f.sessionChanged)
	return f
}

// State returns the current state.
func (f *Flow) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Submit logs in with creds. It returns once the token is stored; the user
// profile is fetched afterwards, see Wait.
func (f *Flow) Submit(ctx context.Context, creds api.Credentials) error {
	if creds.Username == "" || creds.Password == "" {
		return ErrMissingCredentials
	}

	f.mu.Lock()
	if f.state == Authenticating {
		f.mu.Unlock()
		return ErrLoginInProgress
	}
	f.state = Authenticating
	f.mu.Unlock()

	m := telemetry.GetMetrics()
	m.LoginAttemptsTotal.Add(ctx, 1)

	token, err := f.authenticate(ctx, creds)
	if err != nil {
		m.LoginFailuresTotal.Add(ctx, 1)
		log.Info().Str("username", creds.Username).Err(err).Msg("login failed")

		f.mu.Lock()
		f.state = Anonymous
		f.mu.Unlock()
		return err
	}

	f.mu.Lock()
	f.state = Authenticated
	f.mu.Unlock()

	log.Info().Str("username", creds.Username).Msg("login succeeded")

	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		f.loadUser(context.WithoutCancel(ctx), token)
	}()

	return nil
}

// Wait blocks until background profile loads have finished.
func (f *Flow) Wait() {
	f.wg.Wait()
}

// Close stops observing the session store.
func (f *Flow) Close() {
	f.unsubscribe()
	f.wg.Wait()
}

func (f *Flow) authenticate(ctx context.Context, creds api.Credentials) (string, error) {
	res, err := f.auth.Login(ctx, creds)
	if err != nil {
		return "", err
	}

	// the previous user, if any, is dropped until the profile is loaded
	if err := f.sessions.SetSession(res.Token, nil); err != nil {
		return "", fmt.Errorf("failed to store session: %w", err)
	}
	return res.Token, nil
}

// loadUser fills in the session's user. A failure leaves the session
// authenticated without a user.
func (f *Flow) loadUser(ctx context.Context, token string) {
	profile, err := f.auth.CurrentUser(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("failed to load user profile")
		return
	}

	// a newer login or a logout happened meanwhile
	if f.sessions.Get().Token != token {
		return
	}

	if err := f.sessions.SetUser(UserFromProfile(profile)); err != nil {
		log.Warn().Err(err).Msg("failed to store user profile")
	}
}

func (f *Flow) sessionChanged(s session.Session) {
	if s.Authenticated {
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.state == Authenticated {
		log.Debug().Msg("session ended, login flow reset")
		f.state = Anonymous
	}
}

// UserFromProfile keeps the identity fields of a profile.
func UserFromProfile(p *models.Profile) session.User {
	return session.User{
		ID:       p.ID,
		Username: p.Username,
		Role:     p.Role,
	}
}
