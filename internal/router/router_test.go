package router

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/patientenakte/internal/client"
)

type fakeSession struct {
	mu   sync.Mutex
	auth bool
}

func (f *fakeSession) Authenticated() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.auth
}

func (f *fakeSession) set(auth bool) {
	f.mu.Lock()
	f.auth = auth
	f.mu.Unlock()
}

type fakeEvents struct {
	mu        sync.Mutex
	listeners []client.InvalidationFunc
}

func (f *fakeEvents) OnSessionInvalidated(fn client.InvalidationFunc) func() {
	f.mu.Lock()
	f.listeners = append(f.listeners, fn)
	f.mu.Unlock()
	return func() {
		f.mu.Lock()
		f.listeners = nil
		f.mu.Unlock()
	}
}

func (f *fakeEvents) fire() {
	f.mu.Lock()
	listeners := append([]client.InvalidationFunc(nil), f.listeners...)
	f.mu.Unlock()
	for _, fn := range listeners {
		fn(context.Background(), &client.HTTPError{StatusCode: http.StatusUnauthorized})
	}
}

func text(s string) View {
	return ViewFunc(func(ctx context.Context, w io.Writer, req Request) error {
		_, err := fmt.Fprint(w, s)
		return err
	})
}

func newTestRouter(sessions SessionReader, patients View) *Router {
	guard := NewGuard(sessions)

	r := New()
	r.Handle("/", RedirectTo(DashboardPath))
	r.Handle(LoginPath, text("login"))
	r.Handle(DashboardPath, guard.Protect(text("dashboard")))
	r.Handle("/patients", guard.Protect(patients))
	r.Handle("/patients/{id:[0-9]+}", guard.Protect(ViewFunc(func(ctx context.Context, w io.Writer, req Request) error {
		_, err := fmt.Fprintf(w, "patient %s", req.Vars["id"])
		return err
	})))
	return r
}

func TestGuard_Decide(t *testing.T) {
	view := text("dashboard")

	tests := []struct {
		name     string
		auth     bool
		wantView bool
		wantTo   string
	}{
		{name: "authenticated", auth: true, wantView: true},
		{name: "anonymous", auth: false, wantTo: LoginPath},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewGuard(&fakeSession{auth: tt.auth})
			d := g.Decide(view)
			assert.Equal(t, tt.wantTo, d.RedirectTo)
			assert.Equal(t, tt.wantView, d.View != nil)
		})
	}
}

func TestGuard_DecideReadsEveryTime(t *testing.T) {
	sessions := &fakeSession{auth: true}
	g := NewGuard(sessions)

	assert.Empty(t, g.Decide(text("x")).RedirectTo)
	sessions.set(false)
	assert.Equal(t, LoginPath, g.Decide(text("x")).RedirectTo)
}

func TestRouter_Resolve(t *testing.T) {
	r := newTestRouter(&fakeSession{auth: true}, text("patients"))

	tests := []struct {
		path     string
		wantPath string
		wantVars map[string]string
		wantErr  bool
	}{
		{path: "/login", wantPath: "/login", wantVars: map[string]string{}},
		{path: "/patients/42", wantPath: "/patients/42", wantVars: map[string]string{"id": "42"}},
		{path: "/patients/", wantPath: "/patients", wantVars: map[string]string{}},
		{path: "/patients/abc", wantErr: true},
		{path: "/settings", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			_, req, err := r.Resolve(tt.path)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrRouteNotFound)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantPath, req.Path)
			assert.Equal(t, tt.wantVars, req.Vars)
		})
	}
}

func TestNavigator_Navigate(t *testing.T) {
	tests := []struct {
		name         string
		auth         bool
		path         string
		wantLocation string
		wantOutput   string
	}{
		{name: "root redirects to dashboard", auth: true, path: "/", wantLocation: "/dashboard", wantOutput: "dashboard"},
		{name: "anonymous root ends at login", auth: false, path: "/", wantLocation: "/login", wantOutput: "login"},
		{name: "anonymous protected", auth: false, path: "/patients/7", wantLocation: "/login", wantOutput: "login"},
		{name: "authenticated detail", auth: true, path: "/patients/7", wantLocation: "/patients/7", wantOutput: "patient 7"},
		{name: "public login", auth: false, path: "/login", wantLocation: "/login", wantOutput: "login"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			n := NewNavigator(newTestRouter(&fakeSession{auth: tt.auth}, text("patients")), &out, &fakeEvents{})
			defer n.Close()

			require.NoError(t, n.Navigate(context.Background(), tt.path))
			assert.Equal(t, tt.wantLocation, n.Location())
			assert.Equal(t, tt.wantOutput, out.String())
		})
	}
}

func TestNavigator_NotFound(t *testing.T) {
	var out bytes.Buffer
	n := NewNavigator(newTestRouter(&fakeSession{auth: true}, text("patients")), &out, &fakeEvents{})

	err := n.Navigate(context.Background(), "/nowhere")
	require.ErrorIs(t, err, ErrRouteNotFound)
	assert.Empty(t, out.String())
}

func TestNavigator_AuthExpiredDuringRender(t *testing.T) {
	sessions := &fakeSession{auth: true}
	events := &fakeEvents{}

	patients := ViewFunc(func(ctx context.Context, w io.Writer, req Request) error {
		fmt.Fprint(w, "secret rows")
		sessions.set(false)
		events.fire()
		return fmt.Errorf("list patients: %w", &client.HTTPError{StatusCode: http.StatusUnauthorized})
	})

	var out bytes.Buffer
	n := NewNavigator(newTestRouter(sessions, patients), &out, events)
	defer n.Close()

	require.NoError(t, n.Navigate(context.Background(), "/patients"))
	assert.Equal(t, LoginPath, n.Location())
	assert.Equal(t, "login", out.String())
}

func TestNavigator_InvalidationDiscardsSwallowedFailure(t *testing.T) {
	sessions := &fakeSession{auth: true}
	events := &fakeEvents{}

	patients := ViewFunc(func(ctx context.Context, w io.Writer, req Request) error {
		fmt.Fprint(w, "partial rows")
		sessions.set(false)
		events.fire()
		return nil
	})

	var out bytes.Buffer
	n := NewNavigator(newTestRouter(sessions, patients), &out, events)
	defer n.Close()

	require.NoError(t, n.Navigate(context.Background(), "/patients"))
	assert.Equal(t, "login", out.String())
}

func TestNavigator_InvalidationForcesLogin(t *testing.T) {
	events := &fakeEvents{}
	n := NewNavigator(newTestRouter(&fakeSession{auth: true}, text("patients")), io.Discard, events)
	defer n.Close()

	require.NoError(t, n.Navigate(context.Background(), "/patients/3"))
	require.Equal(t, "/patients/3", n.Location())

	events.fire()
	assert.Equal(t, LoginPath, n.Location())
}

func TestNavigator_ViewError(t *testing.T) {
	failing := ViewFunc(func(ctx context.Context, w io.Writer, req Request) error {
		return &client.HTTPError{StatusCode: http.StatusInternalServerError}
	})

	var out bytes.Buffer
	n := NewNavigator(newTestRouter(&fakeSession{auth: true}, failing), &out, &fakeEvents{})

	err := n.Navigate(context.Background(), "/patients")
	require.Error(t, err)
	assert.Equal(t, http.StatusInternalServerError, client.StatusCode(err))
	assert.Equal(t, "/patients", n.Location())
	assert.Empty(t, out.String())
}

func TestNavigator_TooManyRedirects(t *testing.T) {
	r := New()
	r.Handle("/a", RedirectTo("/b"))
	r.Handle("/b", RedirectTo("/a"))

	n := NewNavigator(r, io.Discard, &fakeEvents{})
	err := n.Navigate(context.Background(), "/a")
	require.ErrorIs(t, err, ErrTooManyRedirects)
}
