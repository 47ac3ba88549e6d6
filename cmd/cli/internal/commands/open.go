package commands

import (
	"context"
)

// OpenCmd renders the page at an in-app path, e.g. /patients/7.
type OpenCmd struct {
	Path string `arg:"" optional:"" help:"Path to open" default:"/"`
}

func (c *OpenCmd) Run(ctx context.Context, globals *Globals) error {
	a, err := globals.openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	return explain(a.Open(ctx, c.Path))
}
