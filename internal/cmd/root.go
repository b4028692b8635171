package cmd

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/appify/internal/config"
	"github.com/felixgeelhaar/appify/internal/log"
	"github.com/felixgeelhaar/appify/internal/version"
)

// annotationNoConfig marks commands that run without loading configuration.
const annotationNoConfig = "appify/no-config"

var rootCmd = &cobra.Command{
	Use:   "appify",
	Short: "Browse and run Apify actors",
	Long: `appify runs Apify actors from a guided terminal wizard, from scripts,
or as an HTTP service.

The HTTP service proxies the Apify API for browser frontends, renders
actor input schemas into forms and pushes run status updates over a
WebSocket. The CLI talks to Apify directly, or to a running appify
server when --server is given.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
}

// globalFlags hold the persistent flags shared by every command.
type globalFlags struct {
	configPath string
	apiKey     string
	output     string
	server     string
	logLevel   string
	noColor    bool
}

var globals globalFlags

// app is populated by setup before any command that needs configuration.
var app struct {
	cfg    *config.Config
	logger *log.Logger
}

// Execute runs the root command
func Execute() error {
	return ExecuteContext(context.Background())
}

// ExecuteContext runs the root command with ctx, which commands observe for
// cancellation.
func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&globals.configPath, "config", "", "config file (default is $HOME/.appify/config.yaml)")
	pf.StringVar(&globals.apiKey, "api-key", "", "Apify API key (overrides APPIFY_API_KEY)")
	pf.StringVarP(&globals.output, "output", "o", "text", "output format: text, json or yaml")
	pf.StringVar(&globals.server, "server", "", "base URL of a running appify server (default: talk to Apify directly)")
	pf.StringVar(&globals.logLevel, "log-level", "", "log level: debug, info, warn or error")
	pf.BoolVar(&globals.noColor, "no-color", false, "disable coloured output")

	rootCmd.Version = version.GetInfo().Short()
	rootCmd.SetVersionTemplate("appify {{.Version}}\n")
}

// setup loads configuration and installs the process logger.
func setup(cmd *cobra.Command, _ []string) error {
	if cmd.Annotations[annotationNoConfig] == "true" {
		return nil
	}

	cfg, err := config.Load(globals.configPath)
	if err != nil {
		return err
	}
	if globals.logLevel != "" {
		cfg.Log.Level = globals.logLevel
	}

	app.cfg = cfg
	app.logger = newLogger(cmd, cfg)
	log.SetDefaultLogger(app.logger)
	return nil
}

// newLogger builds the logger for cmd. The server logs as configured;
// interactive commands log coloured text to stderr and stay quiet below
// warnings unless --log-level asks for more.
func newLogger(cmd *cobra.Command, cfg *config.Config) *log.Logger {
	lc := log.DefaultConfig()
	lc.Output = cmd.ErrOrStderr()
	lc.ServiceVersion = version.Version
	lc.Level = log.ParseLevel(cfg.Log.Level)
	lc.Format = log.ParseFormat(cfg.Log.Format)
	lc.NoColor = globals.noColor || os.Getenv("NO_COLOR") != ""

	if cmd.Name() != "serve" {
		lc.Format = log.FormatText
		if globals.logLevel == "" {
			lc.Level = log.LevelWarn
		}
	}
	return log.New(lc)
}
