package config

// Explicit test policies
const (
	ExplicitOn   = "on"
	ExplicitOff  = "off"
	ExplicitOnly = "only"
)

// Parallelization granularity
const (
	ParallelNone        = "none"
	ParallelCollections = "collections"
)

// Parallel algorithms
const (
	AlgorithmConservative = "conservative"
	AlgorithmAggressive   = "aggressive"
)

// Method display styles
const (
	MethodDisplayClassAndMethod = "classAndMethod"
	MethodDisplayMethod         = "method"
)

// Automated modes
const (
	AutomatedAsync = "async"
	AutomatedSync  = "sync"
)

// Notification policies
const (
	NotifyAlways  = "always"
	NotifyFailure = "failure"
	NotifySuccess = "success"
)

const (
	// UnlimitedThreads is the MaxThreads sentinel for an unbounded thread budget
	UnlimitedThreads = -1

	// MaxSeed is the largest accepted randomization seed
	MaxSeed = 2147483647

	DefaultResultsDirectory = "TestResults"
)

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	return &Config{
		Explicit:          ExplicitOff,
		MethodDisplay:     MethodDisplayClassAndMethod,
		Parallel:          ParallelCollections,
		ParallelAlgorithm: AlgorithmConservative,
		ResultsDirectory:  DefaultResultsDirectory,
	}
}

// IsDefault returns true if the config matches defaults
func (c *Config) IsDefault() bool {
	defaults := DefaultConfig()
	return c.Culture == nil &&
		c.GetExplicit() == defaults.Explicit &&
		c.FailSkips == nil && c.FailWarns == nil &&
		c.MaxThreads == nil &&
		c.GetMethodDisplay() == defaults.MethodDisplay &&
		len(c.MethodDisplayOptions) == 0 &&
		c.GetParallel() == defaults.Parallel &&
		c.GetParallelAlgorithm() == defaults.ParallelAlgorithm &&
		c.PreEnumerateTheories == nil &&
		c.Seed == nil &&
		c.ShowLiveOutput == nil && c.StopOnFail == nil &&
		c.Diagnostics == nil && c.InternalDiagnostics == nil &&
		c.LongRunningSeconds == 0 &&
		c.Filters.Empty() &&
		len(c.Reports) == 0 &&
		c.GetResultsDirectory() == defaults.ResultsDirectory &&
		c.Automated == "" &&
		c.IgnoreFailures == nil && c.NoColor == nil && c.NoLogo == nil && c.Info == nil &&
		c.List == "" && c.MetricsFile == "" && c.History == "" &&
		c.Notify == nil
}
