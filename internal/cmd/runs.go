package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/appify/internal/errors"
	"github.com/felixgeelhaar/appify/internal/exitcode"
	"github.com/felixgeelhaar/appify/internal/form"
	"github.com/felixgeelhaar/appify/internal/tui"
	"github.com/felixgeelhaar/appify/internal/ux"
	"github.com/felixgeelhaar/appify/pkg/appify/types"
)

var runsCmd = &cobra.Command{
	Use:     "runs",
	Aliases: []string{"run"},
	Short:   "Start and inspect actor runs",
	Long: `Start actors and inspect, follow or abort their runs.

Examples:
  # Start an actor with inline input and follow it to the end
  appify runs start apify/web-scraper --input '{"startUrls":[{"url":"https://example.com"}]}' --watch

  # Set individual inputs; values are typed by the actor's input schema
  appify runs start compass/crawler-google-places --set searchString=cafe --set maxResults=20

  # Fetch results as CSV
  appify runs results <runId> --format csv > results.csv`,
}

var runsStartCmd = &cobra.Command{
	Use:   "start <actorId>",
	Short: "Start an actor run",
	Long: `Start an actor run. Input is read from --input, --input-file and --set,
in that order, later sources overriding earlier ones. Unless --no-validate
is given, the input is completed with the schema defaults and checked
against the actor's input schema before anything is sent.`,
	Args: cobra.ExactArgs(1),
	RunE: runRunsStart,
}

var runsGetCmd = &cobra.Command{
	Use:   "get <runId>",
	Short: "Show a run",
	Args:  cobra.ExactArgs(1),
	RunE:  runRunsGet,
}

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List your recent runs",
	Args:  cobra.NoArgs,
	RunE:  runRunsList,
}

var runsAbortCmd = &cobra.Command{
	Use:   "abort <runId>",
	Short: "Abort a running run",
	Args:  cobra.ExactArgs(1),
	RunE:  runRunsAbort,
}

var runsResultsCmd = &cobra.Command{
	Use:   "results <runId>",
	Short: "Print the items of a run's default dataset",
	Args:  cobra.ExactArgs(1),
	RunE:  runRunsResults,
}

var runsLogCmd = &cobra.Command{
	Use:   "log <runId>",
	Short: "Print a run's log",
	Args:  cobra.ExactArgs(1),
	RunE:  runRunsLog,
}

var runsStartOpts struct {
	input      string
	inputFile  string
	set        []string
	options    types.RunOptions
	watch      bool
	noValidate bool
}

var (
	runsGetWatch   bool
	runsListOpts   types.ListRunsFilter
	runsAbortYes   bool
	runsResultOpts types.ResultsQuery
)

func init() {
	f := runsStartCmd.Flags()
	f.StringVar(&runsStartOpts.input, "input", "", "run input as a JSON object")
	f.StringVar(&runsStartOpts.inputFile, "input-file", "", `file holding the run input as JSON ("-" reads stdin)`)
	f.StringArrayVar(&runsStartOpts.set, "set", nil, "set one input field, as name=value (repeatable)")
	f.IntVar(&runsStartOpts.options.Timeout, "timeout", 0, "run timeout in seconds")
	f.IntVar(&runsStartOpts.options.Memory, "memory", 0, "run memory in megabytes")
	f.StringVar(&runsStartOpts.options.Build, "build", "", "actor build tag or number")
	f.BoolVarP(&runsStartOpts.watch, "watch", "w", false, "follow the run until it finishes")
	f.BoolVar(&runsStartOpts.noValidate, "no-validate", false, "send the input without checking it against the input schema")

	runsGetCmd.Flags().BoolVarP(&runsGetWatch, "watch", "w", false, "follow the run until it finishes")

	lf := runsListCmd.Flags()
	lf.StringVar(&runsListOpts.Status, "status", "", "only runs with this status (e.g. RUNNING, SUCCEEDED)")
	lf.IntVar(&runsListOpts.Limit, "limit", types.DefaultListLimit, "maximum number of runs")
	lf.IntVar(&runsListOpts.Offset, "offset", 0, "number of runs to skip")

	runsAbortCmd.Flags().BoolVarP(&runsAbortYes, "yes", "y", false, "do not ask for confirmation")

	rf := runsResultsCmd.Flags()
	rf.StringVar(&runsResultOpts.Format, "format", types.DefaultResultFormat, "dataset format: json, csv, xlsx, xml, html or rss")
	rf.IntVar(&runsResultOpts.Limit, "limit", types.DefaultResultsLimit, "maximum number of items")
	rf.IntVar(&runsResultOpts.Offset, "offset", 0, "number of items to skip")

	runsCmd.AddCommand(runsStartCmd, runsGetCmd, runsListCmd, runsAbortCmd, runsResultsCmd, runsLogCmd)
	rootCmd.AddCommand(runsCmd)
}

func runRunsStart(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	actorID := args[0]

	input, err := readRunInput(cmd.InOrStdin())
	if err != nil {
		return err
	}

	key, err := credential(app.cfg)
	if err != nil {
		return err
	}
	sess := openSession(app.cfg)
	defer sess.close()

	var schema *form.Schema
	if !runsStartOpts.noValidate {
		detail, err := sess.api.GetActorDetail(ctx, key, actorID)
		if err != nil {
			return err
		}
		if detail.HasInputSchema() {
			if schema, err = form.ParseSchema(detail.InputSchema); err != nil {
				app.logger.WithError(err).Warn("input schema unreadable, sending input unchecked", "actor_id", actorID)
				schema = nil
			}
		}
	}

	input, err = completeInput(schema, input, runsStartOpts.set)
	if err != nil {
		return err
	}

	run, err := sess.api.StartRun(ctx, key, actorID, input, runsStartOpts.options)
	if err != nil {
		return err
	}
	if !runsStartOpts.watch {
		return printResult(cmd, run, func() ux.TextRenderer { return runDetail(run) })
	}
	if textOutput() {
		fmt.Fprintf(cmd.OutOrStdout(), "Started run %s\n", run.ID)
	}
	return watchRun(cmd, sess, key, run)
}

// readRunInput merges --input and --input-file into one object.
func readRunInput(stdin io.Reader) (map[string]any, error) {
	input := map[string]any{}

	if raw := strings.TrimSpace(runsStartOpts.input); raw != "" {
		if err := json.Unmarshal([]byte(raw), &input); err != nil {
			return nil, errors.NewBadRequestError(fmt.Sprintf("--input is not a JSON object: %v", err))
		}
	}

	if path := runsStartOpts.inputFile; path != "" {
		var data []byte
		var err error
		if path == "-" {
			data, err = io.ReadAll(stdin)
		} else {
			data, err = os.ReadFile(path)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read input file: %w", err)
		}
		var fromFile map[string]any
		if err := json.Unmarshal(data, &fromFile); err != nil {
			return nil, errors.NewBadRequestError(fmt.Sprintf("%s is not a JSON object: %v", path, err))
		}
		for k, v := range fromFile {
			input[k] = v
		}
	}
	return input, nil
}

// completeInput applies --set assignments, fills schema defaults and
// validates the result. A nil schema passes input through, with --set
// values taken as strings.
func completeInput(schema *form.Schema, input map[string]any, assignments []string) (map[string]any, error) {
	values := form.Defaults(schema)
	for k, v := range input {
		values[k] = v
	}

	for _, a := range assignments {
		name, text, ok := strings.Cut(a, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, errors.NewBadRequestError(fmt.Sprintf("--set %q: expected name=value", a))
		}
		if f, known := schema.Field(name); known {
			values[name] = form.ParseText(f.FieldSpec, text)
		} else {
			values[name] = text
		}
	}

	if schema == nil {
		return map[string]any(values), nil
	}
	if errs := form.ValidateInputs(schema, values); len(errs) > 0 {
		return nil, errors.NewValidationError(errs)
	}
	return form.Payload(schema, values), nil
}

func runRunsGet(cmd *cobra.Command, args []string) error {
	key, err := credential(app.cfg)
	if err != nil {
		return err
	}
	sess := openSession(app.cfg)
	defer sess.close()

	run, err := sess.api.GetRun(cmd.Context(), key, args[0])
	if err != nil {
		return err
	}
	if runsGetWatch && run.Status.IsActive() {
		return watchRun(cmd, sess, key, run)
	}
	return printResult(cmd, run, func() ux.TextRenderer { return runDetail(run) })
}

func runRunsList(cmd *cobra.Command, _ []string) error {
	key, err := credential(app.cfg)
	if err != nil {
		return err
	}
	sess := openSession(app.cfg)
	defer sess.close()

	page, err := sess.api.ListRuns(cmd.Context(), key, runsListOpts)
	if err != nil {
		return err
	}
	return printResult(cmd, page, func() ux.TextRenderer { return runsTable(page) })
}

func runRunsAbort(cmd *cobra.Command, args []string) error {
	runID := args[0]
	key, err := credential(app.cfg)
	if err != nil {
		return err
	}

	if !runsAbortYes && tui.ShouldPrompt() {
		ok, err := tui.PromptForConfirmation(fmt.Sprintf("Abort run %s?", runID), false)
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintln(cmd.OutOrStdout(), "Aborted nothing.")
			return nil
		}
	}

	sess := openSession(app.cfg)
	defer sess.close()

	res, err := sess.api.AbortRun(cmd.Context(), key, runID)
	if err != nil {
		return err
	}
	return printResult(cmd, res, func() ux.TextRenderer {
		return ux.Detail{
			Title: "Run " + res.ID,
			Fields: []ux.Field{
				{Label: "Status", Value: string(res.Status)},
				{Label: "Finished", Value: formatTime(res.FinishedAt)},
			},
		}
	})
}

func runRunsResults(cmd *cobra.Command, args []string) error {
	key, err := credential(app.cfg)
	if err != nil {
		return err
	}
	sess := openSession(app.cfg)
	defer sess.close()

	page, err := sess.api.GetRunResults(cmd.Context(), key, args[0], runResultOptsNormalized())
	if err != nil {
		return err
	}
	if page.IsRaw() {
		_, err := cmd.OutOrStdout().Write(page.Raw)
		return err
	}
	return printResult(cmd, page, func() ux.TextRenderer { return itemsView{page: page, offset: runsResultOpts.Offset} })
}

func runResultOptsNormalized() types.ResultsQuery {
	q := runsResultOpts
	q.Format = strings.ToLower(strings.TrimSpace(q.Format))
	return q.Normalized()
}

func runRunsLog(cmd *cobra.Command, args []string) error {
	key, err := credential(app.cfg)
	if err != nil {
		return err
	}
	sess := openSession(app.cfg)
	defer sess.close()

	text, err := sess.api.GetRunLog(cmd.Context(), key, args[0])
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if _, err := io.WriteString(out, text); err != nil {
		return err
	}
	if text != "" && !strings.HasSuffix(text, "\n") {
		_, err = io.WriteString(out, "\n")
	}
	return err
}

// watchRun follows run until it leaves the active statuses and prints each
// update. A run that does not end SUCCEEDED is reported as ErrRunFailed.
func watchRun(cmd *cobra.Command, sess *session, key string, run *types.Run) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	events, err := sess.watch(ctx, key, run.ID)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	var last *types.RunUpdate
	for ev := range events {
		if !textOutput() {
			if err := printResult(cmd, ev, nil); err != nil {
				return err
			}
		}
		if ev.Type == types.EventRunError {
			return fmt.Errorf("following run %s failed: %s", run.ID, ev.Error)
		}
		if ev.Data == nil {
			continue
		}
		if textOutput() && (last == nil || last.Status != ev.Data.Status) {
			fmt.Fprintf(out, "%s  %s\n", time.Now().Format("15:04:05"), ev.Data.Status)
		}
		last = ev.Data
	}

	if ctx.Err() != nil {
		return ctx.Err()
	}
	if last == nil || last.Status.IsActive() {
		return fmt.Errorf("stopped following run %s before it finished", run.ID)
	}

	if textOutput() {
		final, err := sess.api.GetRun(ctx, key, run.ID)
		if err == nil {
			if err := printResult(cmd, final, func() ux.TextRenderer { return runDetail(final) }); err != nil {
				return err
			}
		}
	}

	if last.Status != types.RunStatusSucceeded {
		return fmt.Errorf("run %s finished with status %s: %w", run.ID, last.Status, exitcode.ErrRunFailed)
	}
	return nil
}

func runDetail(run *types.Run) ux.Detail {
	exit := ""
	if run.ExitCode != nil {
		exit = strconv.Itoa(*run.ExitCode)
	}
	return ux.Detail{
		Title: "Run " + run.ID,
		Fields: []ux.Field{
			{Label: "Actor", Value: run.ActID},
			{Label: "Status", Value: string(run.Status)},
			{Label: "Started", Value: formatTime(run.StartedAt)},
			{Label: "Finished", Value: formatTime(run.FinishedAt)},
			{Label: "Duration", Value: runDuration(run)},
			{Label: "Exit code", Value: exit},
			{Label: "Dataset", Value: run.DefaultDatasetID},
			{Label: "Build", Value: run.BuildNumber},
		},
	}
}

func runsTable(page *types.Page[types.Run]) ux.Table {
	t := ux.Table{Headers: []string{"ID", "ACTOR", "STATUS", "STARTED", "DURATION"}}
	for i := range page.Items {
		r := &page.Items[i]
		t.Rows = append(t.Rows, []string{r.ID, r.ActID, string(r.Status), formatTime(r.StartedAt), runDuration(r)})
	}
	t.Footer = pageFooter(page.Offset, len(page.Items), page.Total)
	return t
}

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

func runDuration(run *types.Run) string {
	if run.StartedAt == nil || run.FinishedAt == nil {
		return ""
	}
	return run.FinishedAt.Sub(*run.StartedAt).Round(100 * time.Millisecond).String()
}

// itemsView prints dataset items as indented JSON.
type itemsView struct {
	page   *types.DatasetPage
	offset int
}

// RenderText implements ux.TextRenderer.
func (v itemsView) RenderText(w io.Writer, _ bool) error {
	if len(v.page.Items) == 0 {
		_, err := fmt.Fprintln(w, "No results.")
		return err
	}
	for i, item := range v.page.Items {
		var pretty any
		text := string(item)
		if err := json.Unmarshal(item, &pretty); err == nil {
			if b, err := json.MarshalIndent(pretty, "", "  "); err == nil {
				text = string(b)
			}
		}
		if _, err := fmt.Fprintf(w, "# %d\n%s\n", v.offset+i+1, text); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintln(w, pageFooter(v.offset, len(v.page.Items), v.page.Total))
	return err
}
