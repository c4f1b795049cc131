package options

import (
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/abdul-hamid-achik/testhost/packages/core/config"
)

// Context is handed to every ApplyFunc during a single resolution
type Context struct {
	Config *config.Config
	CPUs   int

	present map[string]bool
}

// Present reports whether the canonical option name has been applied
func (c *Context) Present(name string) bool {
	return c.present[strings.ToLower(name)]
}

// ResolveOption customizes a resolution
type ResolveOption func(*resolver)

type resolver struct {
	base    *config.Config
	cpus    int
	now     func() time.Time
	user    string
	machine string
}

// WithBase starts resolution from an existing configuration, e.g. a config file
func WithBase(cfg *config.Config) ResolveOption {
	return func(r *resolver) {
		r.base = cfg
	}
}

// WithCPUs overrides the processor count used for thread multipliers
func WithCPUs(n int) ResolveOption {
	return func(r *resolver) {
		r.cpus = n
	}
}

// WithClock overrides the clock used for synthesized report names
func WithClock(now func() time.Time) ResolveOption {
	return func(r *resolver) {
		r.now = now
	}
}

// WithIdentity overrides the user and machine names used for synthesized report names
func WithIdentity(userName, machine string) ResolveOption {
	return func(r *resolver) {
		r.user = userName
		r.machine = machine
	}
}

func newResolver(opts []ResolveOption) *resolver {
	r := &resolver{cpus: runtime.NumCPU(), now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	if r.base == nil {
		r.base = config.DefaultConfig()
	}
	if r.user == "" {
		r.user = currentUser()
	}
	if r.machine == "" {
		r.machine, _ = os.Hostname()
	}
	return r
}

func (rs *resolver) context() *Context {
	return &Context{
		Config:  rs.base.Clone(),
		CPUs:    rs.cpus,
		present: make(map[string]bool),
	}
}

func currentUser() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	if name := os.Getenv("USER"); name != "" {
		return name
	}
	return os.Getenv("USERNAME")
}

// Resolve parses a raw token list (the console surface)
func (r *Registry) Resolve(tokens []string, opts ...ResolveOption) (*config.Config, error) {
	rs := newResolver(opts)
	ctx := rs.context()

	for i := 0; i < len(tokens); {
		token := tokens[i]
		d, ok := r.Lookup(token)
		if !isOptionToken(token) || !ok {
			return nil, unknownOption(token)
		}
		i++

		var args []string
		args, i = collectArgs(d, tokens, i)
		if err := r.apply(ctx, d, args); err != nil {
			return nil, err
		}
	}

	return rs.finish(r, ctx)
}

func collectArgs(d *Descriptor, tokens []string, i int) ([]string, int) {
	switch d.Arity {
	case ArityZero:
		return nil, i
	case ArityZeroOrOne, ArityExactlyOne:
		if i < len(tokens) && !isOptionToken(tokens[i]) {
			return tokens[i : i+1], i + 1
		}
		return nil, i
	default:
		j := i
		for j < len(tokens) && !isOptionToken(tokens[j]) {
			j++
		}
		return tokens[i:j], j
	}
}

// Structured is the host surface: options already split into name and arguments
type Structured interface {
	IsOptionSet(name string) bool
	TryGetOptionArgumentList(name string) ([]string, bool)
}

// Lister is implemented by structured sources that can enumerate what was set,
// which lets unknown names be reported.
type Lister interface {
	OptionNames() []string
}

// Map is a Structured source keyed by option name
type Map map[string][]string

func (m Map) IsOptionSet(name string) bool {
	_, ok := m[name]
	return ok
}

func (m Map) TryGetOptionArgumentList(name string) ([]string, bool) {
	args, ok := m[name]
	return args, ok
}

func (m Map) OptionNames() []string {
	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// ResolveStructured resolves options handed over by a host platform
func (r *Registry) ResolveStructured(src Structured, opts ...ResolveOption) (*config.Config, error) {
	rs := newResolver(opts)
	ctx := rs.context()

	set := make(map[*Descriptor][]string)
	if lister, ok := src.(Lister); ok {
		for _, name := range lister.OptionNames() {
			d, found := r.Lookup(name)
			if !found {
				return nil, unknownOption("--" + strings.TrimLeft(name, "-"))
			}
			args, _ := src.TryGetOptionArgumentList(name)
			set[d] = append(set[d], args...)
		}
	} else {
		for _, d := range r.descriptors {
			if src.IsOptionSet(d.Name) {
				args, _ := src.TryGetOptionArgumentList(d.Name)
				set[d] = args
			}
		}
	}

	for _, d := range r.descriptors {
		args, ok := set[d]
		if !ok {
			continue
		}
		if err := r.apply(ctx, d, args); err != nil {
			return nil, err
		}
	}

	return rs.finish(r, ctx)
}

// ValidateArguments checks the arguments of one option in isolation
func (r *Registry) ValidateArguments(name string, args []string) error {
	d, ok := r.Lookup(name)
	if !ok {
		return unknownOption("--" + strings.TrimLeft(name, "-"))
	}
	rs := newResolver(nil)
	return r.apply(rs.context(), d, args)
}

func (r *Registry) apply(ctx *Context, d *Descriptor, args []string) error {
	if err := checkArity(d, args); err != nil {
		return err
	}
	ctx.present[strings.ToLower(d.Name)] = true
	return d.Apply(ctx, args)
}

func checkArity(d *Descriptor, args []string) error {
	switch d.Arity {
	case ArityZero:
		if len(args) > 0 {
			return invalidValue(d.Name, "does not take a value")
		}
	case ArityZeroOrOne:
		if len(args) > 1 {
			return invalidValue(d.Name, "takes at most one value")
		}
	case ArityExactlyOne:
		if len(args) == 0 {
			return missingArgument(d.Name)
		}
		if len(args) > 1 {
			return invalidValue(d.Name, "takes exactly one value")
		}
	case ArityOneOrMore:
		if len(args) == 0 {
			return missingArgument(d.Name)
		}
	}
	return nil
}

// finish validates cross-option dependencies and fills in report outputs
func (rs *resolver) finish(r *Registry, ctx *Context) (*config.Config, error) {
	for _, d := range r.descriptors {
		if d.Requires == "" || !ctx.Present(d.Name) {
			continue
		}
		companion, _ := r.Lookup(d.Requires)
		if !ctx.Present(companion.Name) {
			return nil, dependencyUnmet(d.Name, companion.Name)
		}
	}

	cfg := ctx.Config
	if len(cfg.Reports) == 0 {
		cfg.Outputs = nil
		return cfg, nil
	}

	stamp := rs.now().UTC().Format("2006-01-02_15_04_05.000")
	root := fmt.Sprintf("%s_%s_%s", sanitize(rs.user), sanitize(rs.machine), stamp)

	kinds := make([]string, 0, len(cfg.Reports))
	for kind := range cfg.Reports {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)

	cfg.Outputs = make(map[string]string, len(cfg.Reports))
	for _, kind := range kinds {
		filename := cfg.Reports[kind]
		if filename == "" {
			filename = root + "." + kind
		} else if err := validateReportFilename(reportFilenameOption(kind), filename); err != nil {
			return nil, err
		}
		cfg.Outputs[kind] = filepath.Join(cfg.GetResultsDirectory(), filename)
	}

	return cfg, nil
}

func sanitize(s string) string {
	if s == "" {
		return "unknown"
	}
	return strings.NewReplacer(`\`, "_", "/", "_", " ", "_").Replace(s)
}

var (
	defaultOnce     sync.Once
	defaultRegistry *Registry
)

// Default returns the built-in option registry
func Default() *Registry {
	defaultOnce.Do(func() {
		defaultRegistry = MustRegistry(builtinDescriptors()...)
	})
	return defaultRegistry
}

// Resolve resolves tokens against the built-in registry
func Resolve(tokens []string, opts ...ResolveOption) (*config.Config, error) {
	return Default().Resolve(tokens, opts...)
}

// ResolveStructured resolves host options against the built-in registry
func ResolveStructured(src Structured, opts ...ResolveOption) (*config.Config, error) {
	return Default().ResolveStructured(src, opts...)
}

// ValidateArguments validates one option against the built-in registry
func ValidateArguments(name string, args []string) error {
	return Default().ValidateArguments(name, args)
}
