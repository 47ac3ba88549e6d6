package commands

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/wolfeidau/patientenakte/internal/session"
)

// StatusCmd shows the stored session.
type StatusCmd struct {
	Refresh bool `help:"Fetch the current profile from the backend"`
}

func (c *StatusCmd) Run(ctx context.Context, globals *Globals) error {
	a, err := globals.openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	out := globals.stdout()
	s := a.Sessions.Get()
	if !s.Authenticated {
		fmt.Fprintln(out, "Not signed in")
		fmt.Fprintln(out)
		fmt.Fprintln(out, "To sign in:")
		fmt.Fprintln(out, "  patientenakte login")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Backend:\t%s\n", a.Client.BaseURL())
	if s.User != nil {
		fmt.Fprintf(w, "User:\t%s\n", s.User.Username)
		fmt.Fprintf(w, "Role:\t%s\n", s.User.Role)
	} else {
		fmt.Fprintf(w, "User:\t%s\n", "unknown")
	}

	// the expiry is read from the token without verifying it
	if exp, ok := session.TokenExpiry(s.Token); ok {
		state := "valid"
		if time.Now().After(exp) {
			state = "expired"
		}
		fmt.Fprintf(w, "Token expires:\t%s (%s)\n", exp.Local().Format("2006-01-02 15:04:05"), state)
	}

	if c.Refresh {
		profile, err := a.CurrentUser(ctx)
		if err != nil {
			w.Flush()
			return explain(err)
		}
		fmt.Fprintf(w, "Name:\t%s\n", profile.DisplayName())
		if profile.Email != "" {
			fmt.Fprintf(w, "Email:\t%s\n", profile.Email)
		}
		fmt.Fprintf(w, "MFA:\t%v\n", profile.MFAEnabled)
		if profile.LastLogin != nil {
			fmt.Fprintf(w, "Last login:\t%s\n", profile.LastLogin.Local().Format("2006-01-02 15:04:05"))
		}
	}

	return w.Flush()
}
