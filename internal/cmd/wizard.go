package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/appify/internal/tui"
	"github.com/felixgeelhaar/appify/internal/wizard"
	"github.com/felixgeelhaar/appify/pkg/appify/types"
)

var wizardCmd = &cobra.Command{
	Use:   "wizard",
	Short: "Run an actor with a guided terminal wizard",
	Long: `Walk through the five steps of running an actor: enter your API key,
pick an actor from the store, fill in its input form, start the run and
follow it until the results arrive.

The wizard talks to Apify directly unless --server points at a running
appify server, in which case status updates arrive over its WebSocket.`,
	Args: cobra.NoArgs,
	RunE: runWizard,
}

var wizardOpts struct {
	search  string
	limit   int
	results int
}

func init() {
	f := wizardCmd.Flags()
	f.StringVar(&wizardOpts.search, "search", "", "only offer store actors matching this search")
	f.IntVar(&wizardOpts.limit, "limit", 0, "number of store actors to offer (default 50)")
	f.IntVar(&wizardOpts.results, "results", 0, "number of result items to fetch (default 100)")

	rootCmd.AddCommand(wizardCmd)
}

func runWizard(cmd *cobra.Command, _ []string) error {
	if !tui.IsInteractive() {
		return fmt.Errorf("the wizard needs an interactive terminal; use 'appify runs start' in scripts")
	}

	sess := openSession(app.cfg)
	defer sess.close()

	opts := []wizard.Option{wizard.WithLogger(app.logger)}
	if wizardOpts.search != "" || wizardOpts.limit > 0 {
		opts = append(opts, wizard.WithActorsFilter(types.ListActorsFilter{
			Search: wizardOpts.search,
			Limit:  wizardOpts.limit,
		}))
	}
	if wizardOpts.results > 0 {
		opts = append(opts, wizard.WithResultsLimit(wizardOpts.results))
	}
	ctrl := wizard.New(sess.api, opts...)

	key := strings.TrimSpace(globals.apiKey)
	if key == "" {
		key = strings.TrimSpace(app.cfg.APIKey)
	}

	final, err := tui.RunWizard(cmd.Context(), ctrl,
		tui.WithRunWatcher(sess.watch),
		tui.WithInitialKey(key),
	)
	if err != nil {
		return err
	}

	if final.Result != nil && final.Result.Run != nil {
		fmt.Fprintf(cmd.OutOrStdout(), "Last run: %s (%s)\n", final.Result.Run.ID, final.Result.Run.Status)
	}
	return nil
}
