package session

import (
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

// ErrNotAuthenticated is returned by Token when there is no session.
var ErrNotAuthenticated = errors.New("not authenticated")

var _ oauth2.TokenSource = (*Store)(nil)

// Store owns the client session. Mutations are written through to the
// storage before they become visible in memory.
//
// Subscribers are called synchronously, in mutation order, after the new
// state is visible. They may read the store but must not mutate it.
type Store struct {
	storage Storage

	// writeMu serializes mutations and subscriber delivery.
	writeMu sync.Mutex

	mu      sync.RWMutex
	current Session

	subMu  sync.Mutex
	nextID int
	subs   map[int]func(Session)
}

// NewStore creates a store and rehydrates it from storage. A stored token is
// trusted as is; it is not revalidated against the backend.
func NewStore(storage Storage) *Store {
	s := &Store{
		storage: storage,
		subs:    make(map[int]func(Session)),
	}

	rec, err := storage.Load()
	switch {
	case errors.Is(err, ErrNoRecord):
		log.Debug().Msg("no persisted session, starting anonymous")
	case err != nil:
		log.Warn().Err(err).Msg("discarding unreadable session record")
	default:
		s.current = fromRecord(rec)
		log.Debug().Bool("authenticated", s.current.Authenticated).Msg("session rehydrated")
	}

	return s
}

// Get returns a snapshot of the current session.
func (s *Store) Get() Session {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := s.current
	snap.User = cloneUser(snap.User)
	return snap
}

// Authenticated reports whether a token is held.
func (s *Store) Authenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.Authenticated
}

// Token implements oauth2.TokenSource over the current bearer token.
func (s *Store) Token() (*oauth2.Token, error) {
	s.mu.RLock()
	token := s.current.Token
	s.mu.RUnlock()

	if token == "" {
		return nil, ErrNotAuthenticated
	}
	return &oauth2.Token{AccessToken: token, TokenType: "Bearer"}, nil
}

// SetSession stores a freshly issued token. Any previously known user is
// dropped, pass user to set it in the same step.
func (s *Store) SetSession(token string, user *User) error {
	if token == "" {
		return fmt.Errorf("%w: empty token", ErrValidation)
	}

	return s.mutate(func(Session) (Session, bool) {
		return Session{Token: token, User: cloneUser(user), Authenticated: true}, true
	})
}

// SetUser records the identity for the current session. It does nothing
// when there is no session.
func (s *Store) SetUser(user User) error {
	return s.mutate(func(cur Session) (Session, bool) {
		if !cur.Authenticated {
			log.Debug().Str("username", user.Username).Msg("ignoring user update without session")
			return cur, false
		}
		cur.User = &user
		return cur, true
	})
}

// Logout clears the session. The in-memory state is cleared even when the
// storage write fails. Calling Logout repeatedly is harmless.
func (s *Store) Logout() error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	saveErr := s.storage.Save(&Record{})

	s.mu.Lock()
	wasAuthenticated := s.current.Authenticated
	s.current = Session{}
	s.mu.Unlock()

	if wasAuthenticated {
		log.Info().Msg("session cleared")
	}

	s.notify(Session{})

	if saveErr != nil {
		return fmt.Errorf("failed to persist logout: %w", saveErr)
	}
	return nil
}

// Subscribe registers fn to observe every mutation. The returned func
// removes the subscription.
func (s *Store) Subscribe(fn func(Session)) func() {
	s.subMu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.subMu.Unlock()

	return func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}
}

func (s *Store) mutate(fn func(Session) (Session, bool)) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	next, changed := fn(s.Get())
	if !changed {
		return nil
	}

	if err := s.storage.Save(next.record()); err != nil {
		return err
	}

	s.mu.Lock()
	s.current = next
	s.mu.Unlock()

	s.notify(next)
	return nil
}

func (s *Store) notify(snap Session) {
	s.subMu.Lock()
	subs := make([]func(Session), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.subMu.Unlock()

	for _, fn := range subs {
		c := snap
		c.User = cloneUser(snap.User)
		fn(c)
	}
}
