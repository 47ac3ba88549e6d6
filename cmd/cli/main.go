package main

import (
	"context"
	"time"

	"github.com/alecthomas/kong"
	zlog "github.com/rs/zerolog/log"
	"github.com/wolfeidau/patientenakte/cmd/cli/internal/commands"
	"github.com/wolfeidau/patientenakte/internal/app"
	"github.com/wolfeidau/patientenakte/internal/client"
	"github.com/wolfeidau/patientenakte/internal/config"
	"github.com/wolfeidau/patientenakte/internal/logger"
	"github.com/wolfeidau/patientenakte/internal/telemetry"
)

var (
	version = "dev"
	cli     struct {
		Login    commands.LoginCmd    `cmd:"" help:"Sign in"`
		Logout   commands.LogoutCmd   `cmd:"" help:"Sign out and remove the stored session"`
		Status   commands.StatusCmd   `cmd:"" help:"Show the stored session"`
		Password commands.PasswordCmd `cmd:"" help:"Change your password"`
		Open     commands.OpenCmd     `cmd:"" help:"Open a page, e.g. /dashboard or /patients/7"`
		Patients commands.PatientsCmd `cmd:"" help:"Manage patient records"`

		APIURL     string        `name:"api-url" help:"Backend base URL" default:"${api_url}" env:"PATIENTENAKTE_API_URL"`
		SessionDir string        `help:"Session directory (default ~/.patientenakte)" env:"PATIENTENAKTE_SESSION_DIR"`
		Timeout    time.Duration `help:"Request timeout" default:"30s" env:"PATIENTENAKTE_TIMEOUT"`
		NoCache    bool          `help:"Disable the HTTP read cache"`
		Config     string        `help:"YAML/JSON config file path"`
		Telemetry  bool          `help:"Export traces and metrics over OTLP" env:"PATIENTENAKTE_TELEMETRY"`
		Debug      bool          `help:"Enable debug mode."`
		Version    kong.VersionFlag
	}
)

func main() {
	ctx := context.Background()
	cmd := kong.Parse(&cli,
		kong.Name("patientenakte"),
		kong.Description("Client for the Patientenakte patient record service."),
		kong.Vars{
			"version": version,
			"api_url": config.DefaultAPIURL,
		},
		kong.BindTo(ctx, (*context.Context)(nil)))

	settings := config.Settings{
		APIURL:     cli.APIURL,
		SessionDir: cli.SessionDir,
		Timeout:    cli.Timeout,
		Cache:      !cli.NoCache,
		Debug:      cli.Debug,
		Telemetry:  cli.Telemetry,
	}
	if cli.Config != "" {
		f, err := config.Load(cli.Config)
		cmd.FatalIfErrorf(err)
		f.Apply(&settings)
	}

	zlog.Logger = logger.Setup(settings.Debug)

	shutdown := func(context.Context) error { return nil }
	if settings.Telemetry {
		var err error
		shutdown, err = telemetry.InitTelemetry(ctx, "patientenakte-cli", version, 1.0)
		if err != nil {
			zlog.Warn().Err(err).Msg("Failed to initialize telemetry, continuing without it")
			shutdown = func(context.Context) error { return nil }
		}
	}

	err := cmd.Run(&commands.Globals{
		Debug:    settings.Debug,
		Version:  version,
		Settings: settings,
		AppOptions: []app.Option{
			app.WithClientOptions(client.WithLogger(zlog.Logger.With().Str("component", "api-client").Logger())),
		},
	})

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if serr := shutdown(shutdownCtx); serr != nil {
		zlog.Error().Err(serr).Msg("Failed to shutdown telemetry")
	}
	cancel()

	cmd.FatalIfErrorf(err)
}
