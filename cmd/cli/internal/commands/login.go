package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/wolfeidau/patientenakte/internal/api"
	"github.com/wolfeidau/patientenakte/internal/client"
)

// LoginCmd signs in and stores the session.
type LoginCmd struct {
	Username string `help:"Username, prompted for when empty" short:"u"`
	Password string `help:"Password, prompted for when empty" env:"PATIENTENAKTE_PASSWORD"`
}

func (c *LoginCmd) Run(ctx context.Context, globals *Globals) error {
	a, err := globals.openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	creds := api.Credentials{Username: c.Username, Password: c.Password}
	if creds.Username == "" {
		if creds.Username, err = globals.prompt("Username: ", false); err != nil {
			return err
		}
	}
	if creds.Password == "" {
		if creds.Password, err = globals.prompt("Password: ", true); err != nil {
			return err
		}
	}

	if err := a.SignIn(ctx, creds); err != nil {
		if client.StatusCode(err) == http.StatusUnauthorized {
			return fmt.Errorf("login failed: %s", detail(err))
		}
		return explain(err)
	}

	out := globals.stdout()
	if u := a.Sessions.Get().User; u != nil {
		fmt.Fprintf(out, "Signed in as %s (%s)\n", u.Username, u.Role)
	} else {
		fmt.Fprintln(out, "Signed in")
	}
	return nil
}

func detail(err error) string {
	var httpErr *client.HTTPError
	if errors.As(err, &httpErr) {
		if d := httpErr.Detail(); d != "" {
			return d
		}
	}
	return err.Error()
}
