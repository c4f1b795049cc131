package cmd

import (
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"github.com/abdul-hamid-achik/testhost/packages/history"
)

var (
	historyLimitFlag int
	historyTestFlag  string
)

var historyCmd = &cobra.Command{
	Use:   "history <database>",
	Short: "Show recorded runs from a history database",
	Long: `Show the runs recorded with "testhost run -history <database>", newest
first, or the recorded results of a single test.

Examples:
  testhost history runs.db
  testhost history sqlite://runs.db --limit 5
  testhost history runs.db --test "Acme.Math.Adds"`,
	Args: cobra.ExactArgs(1),
	RunE: historyCommand,
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimitFlag, "limit", "n", 20, "Number of entries to show")
	historyCmd.Flags().StringVar(&historyTestFlag, "test", "", "Show the results of one test by display name")
}

func historyCommand(cmd *cobra.Command, args []string) error {
	store, err := history.Open(args[0])
	if err != nil {
		return withCode(ExitConfigError, err)
	}
	defer store.Close()

	noColor := getEnvBool("NO_COLOR", false)
	if historyTestFlag != "" {
		result, err := store.TestHistory(historyTestFlag, historyLimitFlag)
		if err != nil {
			return err
		}
		printQueryResult(cmd.OutOrStdout(), result)
		return nil
	}

	runs, err := store.Runs(historyLimitFlag)
	if err != nil {
		return err
	}
	printRuns(cmd.OutOrStdout(), runs, noColor)
	return nil
}

func printRuns(w io.Writer, runs []history.Run, noColor bool) {
	red := color.New(color.FgRed)
	if noColor {
		red.DisableColor()
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Run", "Started", "Total", "Failed", "Skipped", "Not run", "Errors", "Duration"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 3, Align: text.AlignRight},
		{Number: 4, Align: text.AlignRight},
		{Number: 5, Align: text.AlignRight},
		{Number: 6, Align: text.AlignRight},
		{Number: 7, Align: text.AlignRight},
		{Number: 8, Align: text.AlignRight},
	})
	for _, r := range runs {
		failed := fmt.Sprint(r.Failed)
		if r.Failed > 0 {
			failed = red.Sprint(failed)
		}
		duration := "running"
		if !r.FinishedAt.IsZero() {
			duration = r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond).String()
		}
		if r.Cancelled {
			duration += " (cancelled)"
		}
		t.AppendRow(table.Row{r.ID, r.StartedAt.Local().Format("2006-01-02 15:04:05"),
			r.Total, failed, r.Skipped, r.NotRun, r.Errors, duration})
	}
	t.AppendFooter(table.Row{fmt.Sprintf("%d run(s)", len(runs))})
	t.Render()
}

func printQueryResult(w io.Writer, result *history.QueryResult) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	header := make(table.Row, 0, len(result.Columns))
	for _, c := range result.Columns {
		header = append(header, c)
	}
	t.AppendHeader(header)
	for _, row := range result.Rows {
		r := make(table.Row, 0, len(result.Columns))
		for _, c := range result.Columns {
			r = append(r, row[c])
		}
		t.AppendRow(r)
	}
	t.Render()
}
