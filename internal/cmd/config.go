package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/felixgeelhaar/appify/internal/config"
	"github.com/felixgeelhaar/appify/internal/proxy"
	"github.com/felixgeelhaar/appify/internal/ux"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect appify configuration",
	Long: `Inspect the configuration appify runs with.

Values come from, in increasing precedence: built-in defaults, the config
file (~/.appify/config.yaml or ./config.yaml), a .env file in the working
directory, APPIFY_* environment variables and command-line flags.

Examples:
  # View the effective configuration
  appify config view

  # Show which configuration file is read
  appify config path
`,
}

var configViewCmd = &cobra.Command{
	Use:   "view",
	Short: "Display the effective configuration",
	Long:  `Display the effective configuration. The API key is shown as a fingerprint.`,
	Args:  cobra.NoArgs,
	RunE:  runConfigView,
}

var configPathCmd = &cobra.Command{
	Use:         "path",
	Short:       "Show configuration file path",
	Long:        `Display the path of the configuration file and whether it exists.`,
	Args:        cobra.NoArgs,
	Annotations: map[string]string{annotationNoConfig: "true"},
	RunE:        runConfigPath,
}

func init() {
	configCmd.AddCommand(configViewCmd, configPathCmd)
	rootCmd.AddCommand(configCmd)
}

func runConfigView(cmd *cobra.Command, _ []string) error {
	view, err := configView(app.cfg)
	if err != nil {
		return err
	}
	return printResult(cmd, view, func() ux.TextRenderer { return yamlText{value: view} })
}

// configView converts cfg into a generic document keyed like the config
// file, with the API key replaced by its fingerprint.
func configView(cfg *config.Config) (map[string]any, error) {
	raw, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to encode configuration: %w", err)
	}
	view := map[string]any{}
	if err := yaml.Unmarshal(raw, &view); err != nil {
		return nil, fmt.Errorf("failed to encode configuration: %w", err)
	}

	key := "(not set)"
	if cfg.APIKey != "" {
		key = "set, fingerprint " + proxy.Fingerprint(cfg.APIKey)
	}
	view["api_key"] = key
	return view, nil
}

// yamlText prints a value as YAML in text mode.
type yamlText struct {
	value any
}

// RenderText implements ux.TextRenderer.
func (y yamlText) RenderText(w io.Writer, _ bool) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	defer enc.Close()
	return enc.Encode(y.value)
}

func runConfigPath(cmd *cobra.Command, _ []string) error {
	path := globals.configPath
	if path == "" {
		var err error
		path, err = config.DefaultPath()
		if err != nil {
			return fmt.Errorf("failed to resolve home directory: %w", err)
		}
	}

	status := "exists"
	if _, err := os.Stat(path); os.IsNotExist(err) {
		status = "not found, defaults and environment apply"
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, path)
	fmt.Fprintf(out, "  %s\n", status)
	return nil
}
