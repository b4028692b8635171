package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/appify/internal/form"
	"github.com/felixgeelhaar/appify/internal/ux"
	"github.com/felixgeelhaar/appify/pkg/appify/types"
)

var actorsCmd = &cobra.Command{
	Use:     "actors",
	Aliases: []string{"actor"},
	Short:   "Browse the Apify store",
	Long: `Browse actors in the Apify store and inspect their input schemas.

Examples:
  # Search the store
  appify actors list --search "google maps"

  # Show an actor and the inputs it accepts
  appify actors get compass/crawler-google-places`,
}

var actorsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List store actors",
	Args:  cobra.NoArgs,
	RunE:  runActorsList,
}

var actorsGetCmd = &cobra.Command{
	Use:   "get <actorId>",
	Short: "Show an actor and its input schema",
	Long: `Show an actor with its input fields. The actor id may be the store id
or "username/name".`,
	Args: cobra.ExactArgs(1),
	RunE: runActorsGet,
}

var actorsListOpts types.ListActorsFilter

func init() {
	f := actorsListCmd.Flags()
	f.StringVar(&actorsListOpts.Search, "search", "", "full-text search")
	f.StringVar(&actorsListOpts.Category, "category", "", "store category")
	f.IntVar(&actorsListOpts.Limit, "limit", types.DefaultListLimit, "maximum number of actors")
	f.IntVar(&actorsListOpts.Offset, "offset", 0, "number of actors to skip")

	actorsCmd.AddCommand(actorsListCmd, actorsGetCmd)
	rootCmd.AddCommand(actorsCmd)
}

func runActorsList(cmd *cobra.Command, _ []string) error {
	key, err := credential(app.cfg)
	if err != nil {
		return err
	}
	sess := openSession(app.cfg)
	defer sess.close()

	page, err := sess.api.ListActors(cmd.Context(), key, actorsListOpts)
	if err != nil {
		return err
	}
	return printResult(cmd, page, func() ux.TextRenderer { return actorsTable(page) })
}

func runActorsGet(cmd *cobra.Command, args []string) error {
	key, err := credential(app.cfg)
	if err != nil {
		return err
	}
	sess := openSession(app.cfg)
	defer sess.close()

	detail, err := sess.api.GetActorDetail(cmd.Context(), key, args[0])
	if err != nil {
		return err
	}
	return printResult(cmd, detail, func() ux.TextRenderer { return newActorView(detail) })
}

func actorsTable(page *types.Page[types.ActorSummary]) ux.Table {
	t := ux.Table{Headers: []string{"ID", "NAME", "TITLE", "CATEGORY"}}
	for _, a := range page.Items {
		name := a.Name
		if a.Username != "" {
			name = a.Username + "/" + a.Name
		}
		t.Rows = append(t.Rows, []string{a.ID, name, a.Title, a.Category})
	}
	t.Footer = pageFooter(page.Offset, len(page.Items), page.Total)
	return t
}

func pageFooter(offset, count, total int) string {
	if count == 0 {
		return ""
	}
	return fmt.Sprintf("Showing %d-%d of %d", offset+1, offset+count, total)
}

// actorView prints an actor followed by its input fields.
type actorView struct {
	detail    *types.ActorDetail
	schema    *form.Schema
	schemaErr error
}

func newActorView(detail *types.ActorDetail) actorView {
	v := actorView{detail: detail}
	if detail.HasInputSchema() {
		v.schema, v.schemaErr = form.ParseSchema(detail.InputSchema)
	}
	return v
}

// RenderText implements ux.TextRenderer.
func (v actorView) RenderText(w io.Writer, styled bool) error {
	d := v.detail
	name := d.Name
	if d.Username != "" {
		name = d.Username + "/" + d.Name
	}
	title := d.Title
	if title == "" {
		title = name
	}

	header := ux.Detail{
		Title: title,
		Fields: []ux.Field{
			{Label: "ID", Value: d.ID},
			{Label: "Name", Value: name},
			{Label: "Description", Value: d.Description},
		},
	}
	if err := header.RenderText(w, styled); err != nil {
		return err
	}
	if _, err := fmt.Fprintln(w); err != nil {
		return err
	}

	switch {
	case v.schemaErr != nil:
		_, err := fmt.Fprintf(w, "Input schema could not be read: %v\n", v.schemaErr)
		return err
	case v.schema == nil || v.schema.Len() == 0:
		_, err := fmt.Fprintln(w, "This actor has no configurable inputs.")
		return err
	}

	return inputsTable(v.schema).RenderText(w, styled)
}

func inputsTable(schema *form.Schema) ux.Table {
	t := ux.Table{Headers: []string{"INPUT", "TYPE", "REQUIRED", "DEFAULT", "DETAILS"}}
	for _, f := range schema.Fields {
		required := ""
		if f.Required {
			required = "yes"
		}
		ctrl := form.RenderField(f.Name, f.FieldSpec, nil)
		def := ""
		if f.HasDefault {
			def = form.RenderField(f.Name, f.FieldSpec, f.Default).Text()
		}

		var details []string
		if f.Title != "" {
			details = append(details, f.Title)
		}
		if ctrl.RangeHint != "" {
			details = append(details, ctrl.RangeHint)
		}
		if len(f.Options) > 0 {
			details = append(details, "one of: "+strings.Join(f.Options, ", "))
		}
		t.Rows = append(t.Rows, []string{f.Name, f.Type, required, def, strings.Join(details, "; ")})
	}
	return t
}
