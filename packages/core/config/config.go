package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/abdul-hamid-achik/testhost/packages/core/filter"
)

// Config represents the resolved testhost configuration.
// Once returned by the option resolver it must be treated as read-only.
type Config struct {
	Culture              *string  `json:"culture,omitempty" yaml:"culture,omitempty"` // nil = default, "" = invariant
	Explicit             string   `json:"explicit,omitempty" yaml:"explicit,omitempty"`
	FailSkips            *bool    `json:"failSkips,omitempty" yaml:"failSkips,omitempty"`
	FailWarns            *bool    `json:"failWarns,omitempty" yaml:"failWarns,omitempty"`
	MaxThreads           *int     `json:"maxThreads,omitempty" yaml:"maxThreads,omitempty"` // nil = one per CPU, -1 = unlimited
	MethodDisplay        string   `json:"methodDisplay,omitempty" yaml:"methodDisplay,omitempty"`
	MethodDisplayOptions []string `json:"methodDisplayOptions,omitempty" yaml:"methodDisplayOptions,omitempty"`
	Parallel             string   `json:"parallel,omitempty" yaml:"parallel,omitempty"`
	ParallelAlgorithm    string   `json:"parallelAlgorithm,omitempty" yaml:"parallelAlgorithm,omitempty"`
	PreEnumerateTheories *bool    `json:"preEnumerateTheories,omitempty" yaml:"preEnumerateTheories,omitempty"`
	Seed                 *int     `json:"seed,omitempty" yaml:"seed,omitempty"`
	ShowLiveOutput       *bool    `json:"showLiveOutput,omitempty" yaml:"showLiveOutput,omitempty"`
	StopOnFail           *bool    `json:"stopOnFail,omitempty" yaml:"stopOnFail,omitempty"`
	Diagnostics          *bool    `json:"diagnostics,omitempty" yaml:"diagnostics,omitempty"`
	InternalDiagnostics  *bool    `json:"internalDiagnostics,omitempty" yaml:"internalDiagnostics,omitempty"`
	LongRunningSeconds   int      `json:"longRunning,omitempty" yaml:"longRunning,omitempty"`

	Filters filter.Set `json:"filters,omitempty" yaml:"filters,omitempty"`

	// Reports maps a report kind to an optional file name ("" = synthesized)
	Reports          map[string]string `json:"reports,omitempty" yaml:"reports,omitempty"`
	ResultsDirectory string            `json:"resultsDirectory,omitempty" yaml:"resultsDirectory,omitempty"`
	// Outputs maps a report kind to its final path; filled in by the resolver
	Outputs map[string]string `json:"-" yaml:"-"`

	Automated      string `json:"automated,omitempty" yaml:"automated,omitempty"` // "", "async" or "sync"
	IgnoreFailures *bool  `json:"ignoreFailures,omitempty" yaml:"ignoreFailures,omitempty"`
	NoColor        *bool  `json:"noColor,omitempty" yaml:"noColor,omitempty"`
	NoLogo         *bool  `json:"noLogo,omitempty" yaml:"noLogo,omitempty"`
	Info           *bool  `json:"info,omitempty" yaml:"info,omitempty"`
	List           string `json:"list,omitempty" yaml:"list,omitempty"`
	MetricsFile    string `json:"metricsFile,omitempty" yaml:"metricsFile,omitempty"`
	History        string `json:"history,omitempty" yaml:"history,omitempty"`

	// Notify is only settable from a config file
	Notify *NotifyConfig `json:"notify,omitempty" yaml:"notify,omitempty"`
}

// NotifyConfig holds the webhook targets that receive a run summary
type NotifyConfig struct {
	On           string `json:"on,omitempty" yaml:"on,omitempty"`
	Slack        string `json:"slack,omitempty" yaml:"slack,omitempty"`
	SlackChannel string `json:"slackChannel,omitempty" yaml:"slackChannel,omitempty"`
	Teams        string `json:"teams,omitempty" yaml:"teams,omitempty"`
}

// GetOn returns the notification policy, defaulting to "failure"
func (n *NotifyConfig) GetOn() string {
	return getString(n.On, NotifyFailure)
}

// BoolPtr returns a pointer to b
func BoolPtr(b bool) *bool {
	return &b
}

// IntPtr returns a pointer to i
func IntPtr(i int) *int {
	return &i
}

// StringPtr returns a pointer to s
func StringPtr(s string) *string {
	return &s
}

// getBool returns the value of a bool pointer, or the default if nil
func getBool(b *bool, defaultVal bool) bool {
	if b == nil {
		return defaultVal
	}
	return *b
}

func getString(s, defaultVal string) string {
	if s == "" {
		return defaultVal
	}
	return s
}

// GetExplicit returns the explicit test policy, defaulting to "off"
func (c *Config) GetExplicit() string {
	return getString(c.Explicit, ExplicitOff)
}

// GetFailSkips returns the fail-skips setting, defaulting to false
func (c *Config) GetFailSkips() bool {
	return getBool(c.FailSkips, false)
}

// GetFailWarns returns the fail-warns setting, defaulting to false
func (c *Config) GetFailWarns() bool {
	return getBool(c.FailWarns, false)
}

// GetMaxThreads returns the thread budget for a machine with cpus processors.
// UnlimitedThreads means no limit.
func (c *Config) GetMaxThreads(cpus int) int {
	if c.MaxThreads == nil || *c.MaxThreads == 0 {
		if cpus < 1 {
			return 1
		}
		return cpus
	}
	return *c.MaxThreads
}

// GetMethodDisplay returns the method display style, defaulting to "classAndMethod"
func (c *Config) GetMethodDisplay() string {
	return getString(c.MethodDisplay, MethodDisplayClassAndMethod)
}

// GetParallel returns the parallelization granularity, defaulting to "collections"
func (c *Config) GetParallel() string {
	return getString(c.Parallel, ParallelCollections)
}

// GetParallelAlgorithm returns the parallel algorithm, defaulting to "conservative"
func (c *Config) GetParallelAlgorithm() string {
	return getString(c.ParallelAlgorithm, AlgorithmConservative)
}

// GetPreEnumerateTheories returns whether theory rows become separate cases
func (c *Config) GetPreEnumerateTheories() bool {
	return getBool(c.PreEnumerateTheories, false)
}

// GetShowLiveOutput returns the show-live-output setting, defaulting to false
func (c *Config) GetShowLiveOutput() bool {
	return getBool(c.ShowLiveOutput, false)
}

// GetStopOnFail returns the stop-on-fail setting, defaulting to false
func (c *Config) GetStopOnFail() bool {
	return getBool(c.StopOnFail, false)
}

// GetDiagnostics returns the diagnostics setting, defaulting to false
func (c *Config) GetDiagnostics() bool {
	return getBool(c.Diagnostics, false)
}

// GetInternalDiagnostics returns the internal diagnostics setting, defaulting to false
func (c *Config) GetInternalDiagnostics() bool {
	return getBool(c.InternalDiagnostics, false)
}

// GetResultsDirectory returns the report output directory, defaulting to "TestResults"
func (c *Config) GetResultsDirectory() string {
	return getString(c.ResultsDirectory, DefaultResultsDirectory)
}

// GetIgnoreFailures returns the ignore-failures setting, defaulting to false
func (c *Config) GetIgnoreFailures() bool {
	return getBool(c.IgnoreFailures, false)
}

// GetNoColor returns the no color setting, defaulting to false
func (c *Config) GetNoColor() bool {
	return getBool(c.NoColor, false)
}

// GetNoLogo returns the no logo setting, defaulting to false
func (c *Config) GetNoLogo() bool {
	return getBool(c.NoLogo, false)
}

// GetInfo returns whether runner info lines are shown
func (c *Config) GetInfo() bool {
	return getBool(c.Info, false)
}

// OutputPath pairs a report kind with its final path
type OutputPath struct {
	Kind string
	Path string
}

// SortedOutputs returns the resolved report outputs ordered by kind
func (c *Config) SortedOutputs() []OutputPath {
	kinds := make([]string, 0, len(c.Outputs))
	for k := range c.Outputs {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)

	out := make([]OutputPath, 0, len(kinds))
	for _, k := range kinds {
		out = append(out, OutputPath{Kind: k, Path: c.Outputs[k]})
	}
	return out
}

// Clone returns a deep copy of the configuration
func (c *Config) Clone() *Config {
	result := *c
	result.MethodDisplayOptions = append([]string(nil), c.MethodDisplayOptions...)
	result.Filters = c.Filters.Clone()
	result.Reports = cloneMap(c.Reports)
	result.Outputs = cloneMap(c.Outputs)
	if c.Notify != nil {
		n := *c.Notify
		result.Notify = &n
	}
	return &result
}

func cloneMap(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// ConfigFilenames contains the possible config file names
var ConfigFilenames = []string{
	".testhost.json",
	"testhost.config.json",
	"testhost.config.yaml",
	"testhost.config.yml",
}

// LoadConfig loads configuration from the specified path or searches for config files
func LoadConfig(path string) (*Config, error) {
	if path != "" {
		return loadConfigFromFile(path)
	}

	return FindAndLoadConfig(".")
}

// FindAndLoadConfig searches for a config file in the given directory
func FindAndLoadConfig(dir string) (*Config, error) {
	for _, filename := range ConfigFilenames {
		configPath := filepath.Join(dir, filename)
		if _, err := os.Stat(configPath); err == nil {
			return loadConfigFromFile(configPath)
		}
	}

	return DefaultConfig(), nil
}

// loadConfigFromFile loads and schema-validates configuration from a specific file
func loadConfigFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if ext := strings.ToLower(filepath.Ext(path)); ext == ".yaml" || ext == ".yml" {
		data, err = yamlToJSON(data)
		if err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	}

	if err := Validate(data); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	config := DefaultConfig()
	if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	return config, nil
}

func yamlToJSON(data []byte) ([]byte, error) {
	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if doc == nil {
		doc = map[string]any{}
	}
	return json.Marshal(doc)
}
