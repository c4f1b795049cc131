package cmd

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/abdul-hamid-achik/testhost/packages/core/config"
	"github.com/abdul-hamid-achik/testhost/packages/core/events"
	"github.com/abdul-hamid-achik/testhost/packages/core/runner"
	"github.com/abdul-hamid-achik/testhost/packages/logger"
	"github.com/abdul-hamid-achik/testhost/packages/manifest"
	"github.com/abdul-hamid-achik/testhost/packages/sink"
)

var listCmd = &cobra.Command{
	Use:   "list <manifest>... [options]",
	Short: "List the tests a run would execute",
	Long: `List the tests declared in manifests after filters are applied, without
running them. The -list option picks what is listed (tests, classes, methods,
traits or full); the default is tests.

Examples:
  testhost list suite.yaml
  testhost list suite.yaml -list traits
  testhost list suite.yaml -trait category=unit -list full`,
	DisableFlagParsing: true,
	RunE:               listCommand,
}

func listCommand(cmd *cobra.Command, args []string) error {
	inv, err := parseInvocation(args)
	if err != nil {
		return err
	}
	if inv.help {
		printRunUsage(cmd.OutOrStdout())
		return errHelp
	}
	if err := inv.requireManifests(); err != nil {
		return err
	}
	cfg, err := inv.resolve()
	if err != nil {
		return err
	}
	if cfg.List == "" {
		cfg.List = "tests"
	}
	return listTests(cmd.Context(), cmd.OutOrStdout(), cfg, inv.manifests, newLogger(cfg))
}

// listTests discovers the filtered cases and prints them in cfg.List mode
func listTests(ctx context.Context, w io.Writer, cfg *config.Config, manifests []string, lggr logger.Logger) error {
	if ctx == nil {
		ctx = context.Background()
	}
	rec := sink.NewRecorder()
	bus := sink.New([]sink.Sink{rec}, sink.WithLogger(lggr))
	r := runner.NewRunner(cfg, manifest.NewSource(manifests...), bus, runner.WithLogger(lggr))
	result, err := r.Discover(ctx)
	if err != nil {
		return err
	}
	if err := bus.Close(); err != nil {
		return err
	}

	var cases []*events.CaseDiscovered
	var faults []string
	for _, ev := range rec.Events() {
		switch e := ev.(type) {
		case *events.CaseDiscovered:
			cases = append(cases, e)
		case *events.ErrorMessage:
			faults = append(faults, e.Message)
		}
	}
	if result.Faulted {
		return fmt.Errorf("discovery failed: %s", strings.Join(faults, "; "))
	}

	printListing(w, cfg.List, cases)
	return nil
}

func printListing(w io.Writer, mode string, cases []*events.CaseDiscovered) {
	switch mode {
	case "classes":
		classes := lo.Uniq(lo.Map(cases, func(c *events.CaseDiscovered, _ int) string { return c.Class }))
		sort.Strings(classes)
		for _, c := range classes {
			fmt.Fprintln(w, c)
		}
	case "methods":
		methods := lo.Uniq(lo.Map(cases, func(c *events.CaseDiscovered, _ int) string {
			if c.Class == "" {
				return c.Method
			}
			return c.Class + "." + c.Method
		}))
		sort.Strings(methods)
		for _, m := range methods {
			fmt.Fprintln(w, m)
		}
	case "traits":
		traits := map[string][]string{}
		for _, c := range cases {
			for name, values := range c.Traits {
				traits[name] = lo.Uniq(append(traits[name], values...))
			}
		}
		names := lo.Keys(traits)
		sort.Strings(names)
		for _, name := range names {
			values := traits[name]
			sort.Strings(values)
			fmt.Fprintf(w, "%s: %s\n", name, strings.Join(values, ", "))
		}
	case "full":
		t := table.NewWriter()
		t.SetOutputMirror(w)
		t.SetStyle(table.StyleLight)
		t.AppendHeader(table.Row{"Test", "Class", "Method", "Traits", "Source", "Skip"})
		for _, c := range cases {
			source := ""
			if c.SourceFile != "" {
				source = fmt.Sprintf("%s:%d", c.SourceFile, c.SourceLine)
			}
			t.AppendRow(table.Row{c.DisplayName, c.Class, c.Method, formatTraits(c.Traits), source, c.SkipReason})
		}
		t.AppendFooter(table.Row{fmt.Sprintf("%d test case(s)", len(cases))})
		t.Render()
	default:
		for _, c := range cases {
			fmt.Fprintln(w, c.DisplayName)
		}
	}
}

func formatTraits(traits map[string][]string) string {
	names := lo.Keys(traits)
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, name := range names {
		for _, v := range traits[name] {
			parts = append(parts, name+"="+v)
		}
	}
	return strings.Join(parts, " ")
}
