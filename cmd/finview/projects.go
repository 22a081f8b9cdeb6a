package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/finview/internal/projectsvc"
	"github.com/fyrsmithlabs/finview/internal/tui"
	"github.com/fyrsmithlabs/finview/internal/wizard"
)

var (
	jsonOutput   bool
	assumeYes    bool
	projectName  string
	projectFile  string
	mappingSheet string
	mappingCol   string
	mappingDate  string
	mappingLine  string
)

// errFailed marks an operation whose outcome was already printed.
var errFailed = errors.New("operation failed")

func init() {
	projectsCmd.AddCommand(listCmd, createCmd, configureCmd, replaceCmd, deleteCmd, analysisCmd)

	listCmd.Flags().BoolVar(&jsonOutput, "json", false, "print JSON")
	analysisCmd.Flags().BoolVar(&jsonOutput, "json", false, "print JSON")

	createCmd.Flags().StringVar(&projectName, "name", "", "project name")
	createCmd.Flags().StringVar(&projectFile, "file", "", "spreadsheet to upload (.xlsx, .xls or .csv)")
	for _, c := range []*cobra.Command{createCmd, configureCmd} {
		c.Flags().StringVar(&mappingSheet, "sheet", wizard.DefaultSheet, "sheet holding the values")
		c.Flags().StringVar(&mappingCol, "column", "", "value column")
		c.Flags().StringVar(&mappingDate, "date-column", "", "date column (optional)")
		c.Flags().StringVar(&mappingLine, "line", wizard.DefaultStartRow, "header row")
	}
	_ = configureCmd.MarkFlagRequired("column")

	replaceCmd.Flags().StringVar(&projectFile, "file", "", "new spreadsheet (.xlsx or .xls)")
	deleteCmd.Flags().BoolVarP(&assumeYes, "yes", "y", false, "skip the confirmation prompt")
}

var projectsCmd = &cobra.Command{
	Use:   "projects",
	Short: "Manage projects",
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List projects",
	Args:  cobra.NoArgs,
	RunE: withApp(func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
		return listProjects(ctx, a, cmd.OutOrStdout(), jsonOutput)
	}),
}

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Upload a spreadsheet as a new project",
	Long: `Upload a spreadsheet as a new project and, when --column is given, save its
column mapping in the same run.

Without --column the project stays unconfigured; finish it later with
"finview projects configure ID --column C".

Examples:
  finview projects create --name "Caixa 2026" --file caixa.xlsx --column Valor --date-column Data --line 1`,
	Args: cobra.NoArgs,
	RunE: withApp(func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
		var draft *wizard.MappingDraft
		if mappingCol != "" {
			draft = &wizard.MappingDraft{Sheet: mappingSheet, Column: mappingCol, DateColumn: mappingDate, StartRow: mappingLine}
		}
		return createProject(ctx, a, cmd.OutOrStdout(), projectName, fileArg(projectFile), draft)
	}),
}

var configureCmd = &cobra.Command{
	Use:   "configure ID",
	Short: "Save the column mapping of an unconfigured project",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
		draft := wizard.MappingDraft{Sheet: mappingSheet, Column: mappingCol, DateColumn: mappingDate, StartRow: mappingLine}
		return configureProject(ctx, a, cmd.OutOrStdout(), projectsvc.ID(args[0]), draft)
	}),
}

var replaceCmd = &cobra.Command{
	Use:   "replace ID",
	Short: "Replace the spreadsheet of a project",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
		return replaceFile(ctx, a, cmd.OutOrStdout(), projectsvc.ID(args[0]), fileArg(projectFile))
	}),
}

var deleteCmd = &cobra.Command{
	Use:   "delete ID",
	Short: "Delete a project",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
		return deleteProject(ctx, a, cmd.InOrStdin(), cmd.OutOrStdout(), projectsvc.ID(args[0]), assumeYes)
	}),
}

var analysisCmd = &cobra.Command{
	Use:   "analysis ID",
	Short: "Print the analysis of a configured project",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
		return printAnalysis(ctx, a, cmd.OutOrStdout(), projectsvc.ID(args[0]), jsonOutput)
	}),
}

// withApp loads config, builds the app with a printing bus and resolves the
// session before running fn.
func withApp(fn func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logger, err := newLogger(cfg, cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		a, err := newApp(ctx, cfg, logger, &printer{w: cmd.OutOrStdout()}, &redirectPrinter{w: cmd.ErrOrStderr()})
		if err != nil {
			return err
		}
		defer a.Close()
		if err := a.requireSession(ctx); err != nil {
			return err
		}
		return fn(ctx, a, cmd, args)
	}
}

func fileArg(path string) projectsvc.File {
	if strings.TrimSpace(path) == "" {
		return nil
	}
	return projectsvc.LocalFile(path)
}

// resultErr turns a failed Result into an error. Auth failures have already
// been reported by the redirect.
func resultErr[T any](r projectsvc.Result[T]) error {
	switch {
	case r.IsOk():
		return nil
	case r.IsIgnored():
		return errFailed
	case r.Kind() == projectsvc.KindAuth:
		return fmt.Errorf("%w: %w", errFailed, projectsvc.ErrAuth)
	}
	return fmt.Errorf("%s", r.Message())
}

func listProjects(ctx context.Context, a *app, w io.Writer, asJSON bool) error {
	if err := a.store.Refresh(ctx); err != nil {
		return fmt.Errorf("listing projects: %w", err)
	}
	projects := a.store.Projects()
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(projects)
	}
	if len(projects) == 0 {
		fmt.Fprintln(w, "No projects.")
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tFILE\tUPDATED")
	for _, p := range projects {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", p.ID, p.Name, p.OriginalFilename, p.UpdatedAt.Local().Format("2006-01-02 15:04"))
	}
	return tw.Flush()
}

func createProject(ctx context.Context, a *app, w io.Writer, name string, file projectsvc.File, draft *wizard.MappingDraft) error {
	a.wizard.Open()
	defer func() {
		if _, idle := a.wizard.State().(wizard.Idle); !idle {
			a.wizard.Close()
		}
	}()

	up := a.wizard.SubmitUpload(ctx, name, file)
	if err := resultErr(up); err != nil {
		return err
	}
	id := up.Value()
	if draft == nil {
		fmt.Fprintf(w, "Project %s uploaded. Save its mapping with: finview projects configure %s --column C\n", id, id)
		return nil
	}

	res := a.wizard.SubmitMapping(ctx, *draft)
	if err := resultErr(res); err != nil {
		fmt.Fprintf(w, "Project %s was uploaded but not configured. Retry with: finview projects configure %s\n", id, id)
		return err
	}
	return nil
}

func configureProject(ctx context.Context, a *app, w io.Writer, id projectsvc.ID, draft wizard.MappingDraft) error {
	settings, err := draft.Settings()
	if err != nil {
		return errors.New(projectsvc.UserMessage(err, wizard.MsgMappingFailed))
	}
	if err := a.client.UpdateSettings(ctx, id, settings); err != nil {
		if errors.Is(err, projectsvc.ErrAuth) {
			return fmt.Errorf("%w: %w", errFailed, err)
		}
		return errors.New(projectsvc.UserMessage(err, wizard.MsgMappingFailed))
	}
	fmt.Fprintf(w, "Project %s configured.\n", id)
	return nil
}

func replaceFile(ctx context.Context, a *app, w io.Writer, id projectsvc.ID, file projectsvc.File) error {
	a.replace.Open(id)
	defer a.replace.Close()
	return resultErr(a.replace.SubmitReplace(ctx, id, file))
}

func deleteProject(ctx context.Context, a *app, in io.Reader, w io.Writer, id projectsvc.ID, yes bool) error {
	if err := a.store.Refresh(ctx); err != nil {
		return fmt.Errorf("listing projects: %w", err)
	}
	p, ok := a.store.Get(id)
	if !ok {
		return fmt.Errorf("project %s not found", id)
	}
	if err := a.deletion.RequestDelete(p); err != nil {
		return err
	}
	if !yes {
		fmt.Fprintf(w, "Delete %q? This cannot be undone. [y/N] ", p.Name)
		answer, _ := bufio.NewReader(in).ReadString('\n')
		if ans := strings.ToLower(strings.TrimSpace(answer)); ans != "y" && ans != "yes" {
			a.deletion.CancelDelete()
			fmt.Fprintln(w, "Cancelled.")
			return nil
		}
	}
	res := a.deletion.ConfirmDelete(ctx)
	if res.IsOk() {
		return nil
	}
	// The failure notification is already printed.
	if res.Kind() == projectsvc.KindAuth {
		return fmt.Errorf("%w: %w", errFailed, projectsvc.ErrAuth)
	}
	return errFailed
}

func printAnalysis(ctx context.Context, a *app, w io.Writer, id projectsvc.ID, asJSON bool) error {
	res, err := a.client.Analysis(ctx, id, projectsvc.FullAnalysis)
	if err != nil {
		var pe *projectsvc.Error
		if errors.As(err, &pe) && pe.Message != "" && pe.Kind != projectsvc.KindAuth {
			return errors.New(pe.Message)
		}
		return fmt.Errorf("loading analysis: %w", err)
	}
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	row := func(k, v string) { fmt.Fprintf(tw, "%s\t%s\n", k, v) }
	row("Column", res.Column)
	row("Entries", strconv.Itoa(res.Count))
	row("Sum", tui.FormatMoney(res.Sum))
	row("Mean", tui.FormatMoney(res.Mean))
	row("Std dev", tui.FormatMoney(res.StdDev))
	if len(res.BalanceSeries) > 0 {
		row("Total return", tui.FormatPercentage(res.TotalReturn))
		row("Inflow", tui.FormatMoney(res.FlowSummary.TotalInflow))
		row("Outflow", tui.FormatMoney(res.FlowSummary.TotalOutflow))
		row("Balance", tui.FormatMoney(res.Health.CurrentBalance))
		row("Burn rate", tui.FormatMoney(res.Health.BurnRate)+"/mo")
		row("Runway", tui.FormatRunway(res.Health.RunwayMonths))
		row("Status", res.Health.Status)
		if res.Health.Message != "" {
			row("", res.Health.Message)
		}
	}
	return tw.Flush()
}
