package commands

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/wolfeidau/patientenakte/internal/app"
	"github.com/wolfeidau/patientenakte/internal/client"
	"github.com/wolfeidau/patientenakte/internal/config"
)

type Globals struct {
	Debug    bool
	Version  string
	Settings config.Settings

	// Out and In default to stdout and stdin.
	Out io.Writer
	In  io.Reader

	// AppOptions are passed to every app the commands open.
	AppOptions []app.Option

	reader *bufio.Reader
}

func (g *Globals) stdout() io.Writer {
	if g.Out == nil {
		return os.Stdout
	}
	return g.Out
}

func (g *Globals) stdin() io.Reader {
	if g.In == nil {
		return os.Stdin
	}
	return g.In
}

func (g *Globals) openApp() (*app.App, error) {
	a, err := app.New(g.Settings, g.stdout(), g.AppOptions...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize client: %w", err)
	}
	return a, nil
}

var errNotSignedIn = errors.New("not signed in\n\nRun 'patientenakte login' to sign in")

// explain adds a hint for the errors a user can act on.
func explain(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, client.ErrAuthExpired) {
		return fmt.Errorf("session expired or invalid, run 'patientenakte login': %w", err)
	}
	var netErr *client.NetworkError
	if errors.As(err, &netErr) {
		return fmt.Errorf("backend not reachable, check --api-url: %w", err)
	}
	return err
}
