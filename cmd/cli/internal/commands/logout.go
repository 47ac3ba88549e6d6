package commands

import (
	"context"
	"fmt"
)

// LogoutCmd removes the stored session.
type LogoutCmd struct{}

func (c *LogoutCmd) Run(ctx context.Context, globals *Globals) error {
	a, err := globals.openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	wasSignedIn := a.Sessions.Authenticated()
	if err := a.Logout(); err != nil {
		return fmt.Errorf("failed to sign out: %w", err)
	}

	if wasSignedIn {
		fmt.Fprintln(globals.stdout(), "Signed out")
	} else {
		fmt.Fprintln(globals.stdout(), "Not signed in")
	}
	return nil
}
