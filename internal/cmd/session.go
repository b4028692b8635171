package cmd

import (
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/appify/internal/config"
	"github.com/felixgeelhaar/appify/internal/errors"
	"github.com/felixgeelhaar/appify/internal/httpapi"
	"github.com/felixgeelhaar/appify/internal/proxy"
	"github.com/felixgeelhaar/appify/internal/relay"
	"github.com/felixgeelhaar/appify/internal/tui"
	"github.com/felixgeelhaar/appify/internal/ux"
	"github.com/felixgeelhaar/appify/pkg/appify/client"
)

// serverEnv names a running appify server when --server is not given.
const serverEnv = config.EnvPrefix + "_SERVER"

// session is the backend a command talks to: Apify directly through an
// in-process proxy, or a running appify server through the Go client.
type session struct {
	api   httpapi.Proxy
	watch tui.RunWatcher
	close func()
}

// openSession connects according to --server. The caller must call close.
func openSession(cfg *config.Config) *session {
	if server := serverURL(); server != "" {
		c := client.NewWithConfig(server, "", &client.Config{
			MaxRetries: client.DefaultConfig().MaxRetries,
			RetryDelay: client.DefaultConfig().RetryDelay,
			Timeout:    cfg.Upstream.Timeout,
		})
		return &session{api: c, watch: c.WatchRun, close: func() {}}
	}

	svc := proxy.New(proxyConfig(cfg), proxy.WithLogger(app.logger))
	rl := relay.New(svc, relay.Config{
		Interval:     cfg.Relay.Interval,
		InitialDelay: cfg.Relay.InitialDelay,
	}, relay.WithLogger(app.logger))
	return &session{api: svc, watch: rl.Follow, close: func() { _ = rl.Close() }}
}

func serverURL() string {
	if globals.server != "" {
		return globals.server
	}
	return strings.TrimSpace(os.Getenv(serverEnv))
}

func proxyConfig(cfg *config.Config) proxy.Config {
	return proxy.Config{
		BaseURL:   cfg.Upstream.BaseURL,
		Timeout:   cfg.Upstream.Timeout,
		UserAgent: cfg.Upstream.UserAgent,
	}
}

// credential resolves the API key: --api-key, then configuration and
// environment, then an interactive prompt when a terminal is attached.
func credential(cfg *config.Config) (string, error) {
	if key := strings.TrimSpace(globals.apiKey); key != "" {
		return key, nil
	}
	if key := strings.TrimSpace(cfg.APIKey); key != "" {
		return key, nil
	}
	if tui.ShouldPrompt() {
		key, err := tui.PromptForAPIKey()
		if err != nil {
			return "", err
		}
		if key = strings.TrimSpace(key); key != "" {
			return key, nil
		}
	}
	return "", errors.NewMissingCredentialError()
}

// printResult writes raw through the --output formatter. Text output uses
// the view returned by text, which is only called for text.
func printResult(cmd *cobra.Command, raw any, text func() ux.TextRenderer) error {
	f, err := ux.NewFormatter(globals.output, &ux.FormatterOptions{
		Writer:  cmd.OutOrStdout(),
		NoColor: globals.noColor || !tui.IsInteractive(),
	})
	if err != nil {
		return err
	}
	if _, isText := f.(*ux.TextFormatter); isText && text != nil {
		return f.Format(text())
	}
	return f.Format(raw)
}

// textOutput reports whether --output selects human-readable text.
func textOutput() bool {
	return globals.output == "" || globals.output == ux.FormatText
}
