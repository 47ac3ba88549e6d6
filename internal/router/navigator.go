package router

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/patientenakte/internal/client"
)

const maxRedirects = 5

// ErrTooManyRedirects is returned when views keep redirecting.
var ErrTooManyRedirects = errors.New("too many redirects")

// InvalidationSource emits an event whenever the backend rejects the
// session.
type InvalidationSource interface {
	OnSessionInvalidated(fn client.InvalidationFunc) func()
}

// Navigator renders the view for a location and follows redirects. When the
// session is invalidated it moves to the login page.
type Navigator struct {
	router *Router
	out    io.Writer

	mu          sync.Mutex
	location    string
	invalidated uint64

	unsubscribe func()
}

// NewNavigator creates a navigator writing rendered views to out.
func NewNavigator(router *Router, out io.Writer, events InvalidationSource) *Navigator {
	n := &Navigator{
		router: router,
		out:    out,
	}
	n.unsubscribe = events.OnSessionInvalidated(n.sessionInvalidated)
	return n
}

// Location is the path of the last rendered or forced location.
func (n *Navigator) Location() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.location
}

// Close stops listening for session invalidation.
func (n *Navigator) Close() {
	n.unsubscribe()
}

// Navigate renders the view for p. Output of a view whose session was
// invalidated while rendering is discarded and the login page is shown
// instead.
func (n *Navigator) Navigate(ctx context.Context, p string) error {
	for range maxRedirects + 1 {
		view, req, err := n.router.Resolve(p)
		if err != nil {
			return err
		}
		n.setLocation(req.Path)

		gen := n.generation()

		var buf bytes.Buffer
		err = view.Render(ctx, &buf, req)

		var redirect *Redirect
		if errors.As(err, &redirect) {
			log.Debug().Str("from", req.Path).Str("to", redirect.To).Msg("redirect")
			p = redirect.To
			continue
		}

		expired := errors.Is(err, client.ErrAuthExpired) || n.generation() != gen
		if expired && req.Path != LoginPath {
			p = LoginPath
			continue
		}
		if err != nil {
			return err
		}

		_, err = io.Copy(n.out, &buf)
		return err
	}

	return fmt.Errorf("%w: last location %s", ErrTooManyRedirects, p)
}

func (n *Navigator) sessionInvalidated(ctx context.Context, err *client.HTTPError) {
	n.mu.Lock()
	defer n.mu.Unlock()

	log.Debug().Str("from", n.location).Msg("session invalidated, forcing login")
	n.location = LoginPath
	n.invalidated++
}

func (n *Navigator) setLocation(p string) {
	n.mu.Lock()
	n.location = p
	n.mu.Unlock()
}

func (n *Navigator) generation() uint64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.invalidated
}
