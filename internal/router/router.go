// Package router maps in-app paths to views and gates the protected ones
// behind the session.
package router

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"

	"github.com/gorilla/mux"
)

// Well known locations.
const (
	LoginPath     = "/login"
	DashboardPath = "/dashboard"
)

// ErrRouteNotFound is returned for paths no view is registered for.
var ErrRouteNotFound = errors.New("route not found")

// Request is what a view is rendered for.
type Request struct {
	Path string
	Vars map[string]string
}

// View renders a page.
type View interface {
	Render(ctx context.Context, w io.Writer, req Request) error
}

// ViewFunc adapts a function to a View.
type ViewFunc func(ctx context.Context, w io.Writer, req Request) error

func (f ViewFunc) Render(ctx context.Context, w io.Writer, req Request) error {
	return f(ctx, w, req)
}

// Redirect is returned by a view to send the navigation elsewhere.
type Redirect struct {
	To string
}

func (r *Redirect) Error() string {
	return "redirect to " + r.To
}

// RedirectTo returns a view that always redirects.
func RedirectTo(to string) View {
	return ViewFunc(func(context.Context, io.Writer, Request) error {
		return &Redirect{To: to}
	})
}

// Router resolves paths to views using gorilla/mux patterns such as
// "/patients/{id:[0-9]+}".
type Router struct {
	mux   *mux.Router
	views map[string]View
}

// New creates an empty router.
func New() *Router {
	return &Router{
		mux:   mux.NewRouter().SkipClean(true),
		views: make(map[string]View),
	}
}

// Handle registers view for the path template.
func (r *Router) Handle(tpl string, view View) {
	r.mux.NewRoute().Path(tpl).Name(tpl)
	r.views[tpl] = view
}

// Resolve finds the view registered for p.
func (r *Router) Resolve(p string) (View, Request, error) {
	req, err := http.NewRequest(http.MethodGet, p, nil)
	if err != nil {
		return nil, Request{}, fmt.Errorf("invalid path %q: %w", p, err)
	}
	if req.URL.Path != "/" {
		req.URL.Path = path.Clean(req.URL.Path)
	}

	var match mux.RouteMatch
	if !r.mux.Match(req, &match) || match.Route == nil {
		return nil, Request{}, fmt.Errorf("%w: %s", ErrRouteNotFound, req.URL.Path)
	}

	view, ok := r.views[match.Route.GetName()]
	if !ok {
		return nil, Request{}, fmt.Errorf("%w: %s", ErrRouteNotFound, req.URL.Path)
	}

	return view, Request{Path: req.URL.Path, Vars: match.Vars}, nil
}
