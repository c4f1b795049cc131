package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"go.uber.org/zap/zapcore"

	"github.com/abdul-hamid-achik/testhost/packages/core/config"
	"github.com/abdul-hamid-achik/testhost/packages/core/options"
	"github.com/abdul-hamid-achik/testhost/packages/logger"
	"github.com/abdul-hamid-achik/testhost/packages/manifest"
)

// errHelp is returned after usage was printed on request
var errHelp = withCode(ExitUsageError, nil)

// invocation is a command line split into manifests, registry options and
// the switches only the CLI understands
type invocation struct {
	manifests  []string
	tokens     []string
	configPath string
	watch      bool
	help       bool
}

func isSwitch(token string, names ...string) bool {
	t := strings.ToLower(strings.TrimLeft(token, "-"))
	if t == strings.ToLower(token) {
		return false
	}
	for _, n := range names {
		if t == n {
			return true
		}
	}
	return false
}

// parseInvocation splits args. Manifests are the leading arguments before
// the first option; anything else is left for the option registry to judge.
func parseInvocation(args []string) (*invocation, error) {
	inv := &invocation{}
	i := 0
	for ; i < len(args); i++ {
		if strings.HasPrefix(args[i], "-") || !manifest.IsManifest(args[i]) {
			break
		}
		inv.manifests = append(inv.manifests, args[i])
	}

	for ; i < len(args); i++ {
		token := args[i]
		switch {
		case token == "/?" || isSwitch(token, "?", "h", "help"):
			inv.help = true
		case isSwitch(token, "watch"):
			inv.watch = true
		case isSwitch(token, "config"):
			if i+1 >= len(args) || strings.HasPrefix(args[i+1], "-") {
				return nil, withCode(ExitUsageError, errors.New("missing argument for -config"))
			}
			i++
			inv.configPath = args[i]
		default:
			inv.tokens = append(inv.tokens, token)
		}
	}
	return inv, nil
}

// resolve loads the config file and applies the registry options on top
func (inv *invocation) resolve() (*config.Config, error) {
	base, err := config.LoadConfig(inv.configPath)
	if err != nil {
		return nil, withCode(ExitConfigError, fmt.Errorf("loading config: %w", err))
	}
	cfg, err := options.Resolve(inv.tokens, options.WithBase(base))
	if err != nil {
		return nil, err
	}
	if getEnvBool("NO_COLOR", false) {
		cfg.NoColor = config.BoolPtr(true)
	}
	return cfg, nil
}

func (inv *invocation) requireManifests() error {
	if len(inv.manifests) == 0 {
		return withCode(ExitUsageError, errors.New("at least one manifest (.yaml or .yml) is required"))
	}
	for _, m := range inv.manifests {
		if _, err := os.Stat(m); err != nil {
			return withCode(ExitUsageError, fmt.Errorf("cannot access %s: %w", m, err))
		}
	}
	return nil
}

// newLogger logs to stderr; internal diagnostics turn on debug logs
func newLogger(cfg *config.Config) logger.Logger {
	lvl := zapcore.WarnLevel
	if cfg.GetInternalDiagnostics() {
		lvl = zapcore.DebugLevel
	}
	return logger.New(os.Stderr, lvl)
}

// printOptions writes the option reference table
func printOptions(w io.Writer) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Option", "Aliases", "Args", "Description"})
	for _, d := range options.Default().Descriptors() {
		aliases := make([]string, 0, len(d.Aliases))
		for _, a := range d.Aliases {
			aliases = append(aliases, "-"+a)
		}
		t.AppendRow(table.Row{"-" + d.Name, strings.Join(aliases, " "), d.Arity.String(), d.Description})
	}
	t.Render()
}

func printRunUsage(w io.Writer) {
	fmt.Fprintln(w, "usage: testhost run <manifest> [manifest]... [options]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "  -config <file>  load settings from a config file")
	fmt.Fprintln(w, "  -watch          re-run when a manifest changes")
	fmt.Fprintln(w)
	printOptions(w)
}
