package router

import (
	"context"
	"io"

	"github.com/rs/zerolog/log"
)

// SessionReader reports whether the client currently holds a session.
type SessionReader interface {
	Authenticated() bool
}

// Decision is the outcome of a guard check: either the view to render or
// the location to go to instead.
type Decision struct {
	View       View
	RedirectTo string
}

// Guard admits views only while a session is held. It reads the session on
// every decision and never calls the backend.
type Guard struct {
	sessions SessionReader
}

// NewGuard creates a guard over sessions.
func NewGuard(sessions SessionReader) *Guard {
	return &Guard{sessions: sessions}
}

// Decide returns the view when authenticated, a redirect to the login
// page otherwise.
func (g *Guard) Decide(view View) Decision {
	if !g.sessions.Authenticated() {
		return Decision{RedirectTo: LoginPath}
	}
	return Decision{View: view}
}

// Protect wraps view so that it is only rendered when Decide admits it.
func (g *Guard) Protect(view View) View {
	return ViewFunc(func(ctx context.Context, w io.Writer, req Request) error {
		d := g.Decide(view)
		if d.RedirectTo != "" {
			log.Debug().Str("path", req.Path).Msg("no session, redirecting to login")
			return &Redirect{To: d.RedirectTo}
		}
		return d.View.Render(ctx, w, req)
	})
}
