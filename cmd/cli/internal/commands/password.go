package commands

import (
	"context"
	"errors"
	"fmt"
)

// PasswordCmd changes the password of the signed in user.
type PasswordCmd struct{}

func (c *PasswordCmd) Run(ctx context.Context, globals *Globals) error {
	a, err := globals.openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if !a.Sessions.Authenticated() {
		return errNotSignedIn
	}

	oldPassword, err := globals.prompt("Current password: ", true)
	if err != nil {
		return err
	}
	newPassword, err := globals.prompt("New password: ", true)
	if err != nil {
		return err
	}
	confirm, err := globals.prompt("Repeat new password: ", true)
	if err != nil {
		return err
	}

	if newPassword == "" {
		return errors.New("new password must not be empty")
	}
	if newPassword != confirm {
		return errors.New("passwords do not match")
	}

	if err := a.ChangePassword(ctx, oldPassword, newPassword); err != nil {
		return explain(err)
	}

	fmt.Fprintln(globals.stdout(), "Password changed")
	return nil
}
