package options

import (
	"github.com/abdul-hamid-achik/testhost/packages/core/config"
	"github.com/abdul-hamid-achik/testhost/packages/core/filter"
)

// ReportKinds lists the supported report transforms
var ReportKinds = []string{"ctrf", "html", "junit", "nunit", "xunit", "tap"}

var reportDescriptions = map[string]string{
	"ctrf":  "Enable generating CTRF (JSON) report",
	"html":  "Enable generating HTML report",
	"junit": "Enable generating JUnit (XML) report",
	"nunit": "Enable generating NUnit (v2.5 XML) report",
	"xunit": "Enable generating xUnit.net (v2 XML) report",
	"tap":   "Enable generating TAP (v13) report",
}

// ListModes are the accepted values for the list option
var ListModes = []string{"tests", "classes", "methods", "traits", "full"}

func reportOption(kind string) string         { return "report-" + kind }
func reportFilenameOption(kind string) string { return "report-" + kind + "-filename" }

func onOff(name string, aliases []string, description string, set func(*config.Config, *bool)) *Descriptor {
	return &Descriptor{
		Name:        name,
		Aliases:     aliases,
		Description: description + " (on/off)",
		Arity:       ArityExactlyOne,
		Apply: func(ctx *Context, args []string) error {
			v, err := parseOnOff(name, args[0])
			if err != nil {
				return err
			}
			set(ctx.Config, config.BoolPtr(v))
			return nil
		},
	}
}

func switchOption(name string, aliases []string, description string, set func(*config.Config)) *Descriptor {
	return &Descriptor{
		Name:        name,
		Aliases:     aliases,
		Description: description,
		Arity:       ArityZero,
		Apply: func(ctx *Context, _ []string) error {
			set(ctx.Config)
			return nil
		},
	}
}

func enumOption(name string, aliases []string, description string, symbols []string, set func(*config.Config, string)) *Descriptor {
	return &Descriptor{
		Name:        name,
		Aliases:     aliases,
		Description: description,
		Arity:       ArityExactlyOne,
		Apply: func(ctx *Context, args []string) error {
			v, err := parseEnum(name, args[0], symbols...)
			if err != nil {
				return err
			}
			set(ctx.Config, v)
			return nil
		},
	}
}

func listOption(name string, aliases []string, description string, add func(*filter.Set, []string)) *Descriptor {
	return &Descriptor{
		Name:        name,
		Aliases:     aliases,
		Description: description,
		Arity:       ArityOneOrMore,
		Apply: func(ctx *Context, args []string) error {
			add(&ctx.Config.Filters, args)
			return nil
		},
	}
}

func traitOption(name string, aliases []string, description string, add func(*filter.Set, string, string)) *Descriptor {
	return &Descriptor{
		Name:        name,
		Aliases:     aliases,
		Description: description,
		Arity:       ArityOneOrMore,
		Apply: func(ctx *Context, args []string) error {
			for _, arg := range args {
				k, v, err := parseTrait(name, arg)
				if err != nil {
					return err
				}
				add(&ctx.Config.Filters, k, v)
			}
			return nil
		},
	}
}

func builtinDescriptors() []*Descriptor {
	ds := []*Descriptor{
		{
			Name:        "culture",
			Description: "Run tests under the given culture: 'default', 'invariant' or a BCP 47 tag such as 'en-US'",
			Arity:       ArityExactlyOne,
			Apply: func(ctx *Context, args []string) error {
				c, err := parseCulture("culture", args[0])
				if err != nil {
					return err
				}
				ctx.Config.Culture = c
				return nil
			},
		},
		enumOption("explicit", nil, "Change the way explicit tests are handled (on/off/only)",
			[]string{config.ExplicitOn, config.ExplicitOff, config.ExplicitOnly},
			func(c *config.Config, v string) { c.Explicit = v }),
		onOff("fail-skips", []string{"failskips"}, "Treat skipped tests as failures",
			func(c *config.Config, v *bool) { c.FailSkips = v }),
		onOff("fail-warns", []string{"failwarns"}, "Treat passing tests with warnings as failures",
			func(c *config.Config, v *bool) { c.FailWarns = v }),
		{
			Name:        "max-threads",
			Aliases:     []string{"maxthreads"},
			Description: "Maximum thread count for collection parallelization: 'default', 'unlimited', a number, or a multiplier such as '2x'",
			Arity:       ArityExactlyOne,
			Apply: func(ctx *Context, args []string) error {
				n, err := parseMaxThreads("max-threads", args[0], ctx.CPUs)
				if err != nil {
					return err
				}
				if n == 0 {
					ctx.Config.MaxThreads = nil
				} else {
					ctx.Config.MaxThreads = config.IntPtr(n)
				}
				return nil
			},
		},
		enumOption("method-display", []string{"methoddisplay"}, "Set default test display name (classAndMethod/method)",
			[]string{config.MethodDisplayClassAndMethod, config.MethodDisplayMethod},
			func(c *config.Config, v string) { c.MethodDisplay = v }),
		{
			Name:        "method-display-options",
			Aliases:     []string{"methoddisplayoptions"},
			Description: "Alter the default test display name (none, all, replacePeriodWithComma, replaceUnderscoreWithSpace, useOperatorMonikers, useEscapeSequences)",
			Arity:       ArityOneOrMore,
			Apply: func(ctx *Context, args []string) error {
				opts, err := parseDisplayOptions("method-display-options", args)
				if err != nil {
					return err
				}
				ctx.Config.MethodDisplayOptions = opts
				return nil
			},
		},
		enumOption("parallel", nil, "Set parallelization based on option (none/collections)",
			[]string{config.ParallelNone, config.ParallelCollections},
			func(c *config.Config, v string) { c.Parallel = v }),
		enumOption("parallel-algorithm", []string{"parallelalgorithm"}, "Set the parallelization algorithm (conservative/aggressive)",
			[]string{config.AlgorithmConservative, config.AlgorithmAggressive},
			func(c *config.Config, v string) { c.ParallelAlgorithm = v }),
		onOff("pre-enumerate-theories", []string{"preenumeratetheories"}, "Turn pre-enumeration of theories into separate test cases",
			func(c *config.Config, v *bool) { c.PreEnumerateTheories = v }),
		{
			Name:        "seed",
			Description: "Set the randomization seed (0 - 2147483647)",
			Arity:       ArityExactlyOne,
			Apply: func(ctx *Context, args []string) error {
				n, err := parseSeed("seed", args[0])
				if err != nil {
					return err
				}
				ctx.Config.Seed = config.IntPtr(n)
				return nil
			},
		},
		onOff("show-live-output", []string{"showliveoutput"}, "Show output messages from tests live",
			func(c *config.Config, v *bool) { c.ShowLiveOutput = v }),
		onOff("stop-on-fail", []string{"stoponfail"}, "Stop running tests after the first test failure",
			func(c *config.Config, v *bool) { c.StopOnFail = v }),
		onOff("diagnostics", nil, "Display diagnostic messages",
			func(c *config.Config, v *bool) { c.Diagnostics = v }),
		onOff("internal-diagnostics", []string{"internaldiagnostics"}, "Display internal diagnostic messages",
			func(c *config.Config, v *bool) { c.InternalDiagnostics = v }),
		{
			Name:        "long-running",
			Aliases:     []string{"longrunning"},
			Description: "Report tests that run longer than the given number of seconds",
			Arity:       ArityExactlyOne,
			Apply: func(ctx *Context, args []string) error {
				n, err := parsePositive("long-running", args[0])
				if err != nil {
					return err
				}
				ctx.Config.LongRunningSeconds = n
				return nil
			},
		},

		listOption("filter-class", []string{"class"}, "Run all methods in a given test class (fully qualified)",
			func(f *filter.Set, v []string) { f.IncludeClasses = filter.Append(f.IncludeClasses, v...) }),
		listOption("filter-not-class", []string{"noclass"}, "Do not run any methods in a given test class (fully qualified)",
			func(f *filter.Set, v []string) { f.ExcludeClasses = filter.Append(f.ExcludeClasses, v...) }),
		listOption("filter-method", []string{"method"}, "Run a given test method, '*' wildcards allowed at the start and end",
			func(f *filter.Set, v []string) { f.IncludeMethods = filter.Append(f.IncludeMethods, v...) }),
		listOption("filter-not-method", []string{"nomethod"}, "Do not run a given test method, '*' wildcards allowed at the start and end",
			func(f *filter.Set, v []string) { f.ExcludeMethods = filter.Append(f.ExcludeMethods, v...) }),
		listOption("filter-namespace", []string{"namespace"}, "Run all methods in the given namespace",
			func(f *filter.Set, v []string) { f.IncludeNamespaces = filter.Append(f.IncludeNamespaces, v...) }),
		listOption("filter-not-namespace", []string{"nonamespace"}, "Do not run any methods in the given namespace",
			func(f *filter.Set, v []string) { f.ExcludeNamespaces = filter.Append(f.ExcludeNamespaces, v...) }),
		traitOption("filter-trait", []string{"trait"}, `Only run tests with matching name/value traits ("name=value")`,
			(*filter.Set).AddIncludeTrait),
		traitOption("filter-not-trait", []string{"notrait"}, `Do not run tests with matching name/value traits ("name=value")`,
			(*filter.Set).AddExcludeTrait),
	}

	for _, kind := range ReportKinds {
		kind := kind
		ds = append(ds,
			&Descriptor{
				Name:        reportOption(kind),
				Description: reportDescriptions[kind],
				Arity:       ArityZero,
				Apply: func(ctx *Context, _ []string) error {
					if ctx.Config.Reports == nil {
						ctx.Config.Reports = make(map[string]string)
					}
					if _, ok := ctx.Config.Reports[kind]; !ok {
						ctx.Config.Reports[kind] = ""
					}
					return nil
				},
			},
			&Descriptor{
				Name:        reportFilenameOption(kind),
				Description: "The name of the generated " + kind + " report",
				Arity:       ArityExactlyOne,
				Requires:    reportOption(kind),
				Apply: func(ctx *Context, args []string) error {
					name := reportFilenameOption(kind)
					if err := validateReportFilename(name, args[0]); err != nil {
						return err
					}
					if ctx.Config.Reports == nil {
						ctx.Config.Reports = make(map[string]string)
					}
					ctx.Config.Reports[kind] = args[0]
					return nil
				},
			},
		)
	}

	ds = append(ds,
		&Descriptor{
			Name:        "results-directory",
			Description: "The directory where report files are written (default: TestResults)",
			Arity:       ArityExactlyOne,
			Apply: func(ctx *Context, args []string) error {
				ctx.Config.ResultsDirectory = args[0]
				return nil
			},
		},
		&Descriptor{
			Name:        "automated",
			Description: "Enable automated mode: machine-readable JSON output; 'sync' waits for acknowledgement of every message",
			Arity:       ArityZeroOrOne,
			Apply: func(ctx *Context, args []string) error {
				mode := config.AutomatedAsync
				if len(args) == 1 {
					v, err := parseEnum("automated", args[0], config.AutomatedAsync, config.AutomatedSync)
					if err != nil {
						return err
					}
					mode = v
				}
				ctx.Config.Automated = mode
				return nil
			},
		},
		switchOption("ignore-failures", []string{"ignorefailures"}, "If tests fail, do not return a failure exit code",
			func(c *config.Config) { c.IgnoreFailures = config.BoolPtr(true) }),
		switchOption("no-color", []string{"nocolor"}, "Do not output results with colors",
			func(c *config.Config) { c.NoColor = config.BoolPtr(true) }),
		switchOption("no-logo", []string{"nologo"}, "Do not show the copyright message",
			func(c *config.Config) { c.NoLogo = config.BoolPtr(true) }),
		switchOption("info", []string{"xunit-info"}, "Show runner information lines",
			func(c *config.Config) { c.Info = config.BoolPtr(true) }),
		enumOption("list", nil, "List information about the test instead of running it (tests/classes/methods/traits/full)",
			ListModes, func(c *config.Config, v string) { c.List = v }),
		&Descriptor{
			Name:        "metrics-file",
			Description: "Write Prometheus metrics for the run to the given file",
			Arity:       ArityExactlyOne,
			Apply: func(ctx *Context, args []string) error {
				ctx.Config.MetricsFile = args[0]
				return nil
			},
		},
		&Descriptor{
			Name:        "history",
			Description: "Record run summaries in the given SQLite database",
			Arity:       ArityExactlyOne,
			Apply: func(ctx *Context, args []string) error {
				ctx.Config.History = args[0]
				return nil
			},
		},
	)

	return ds
}
