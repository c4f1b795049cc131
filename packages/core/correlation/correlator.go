package correlation

import (
	"time"

	"github.com/abdul-hamid-achik/testhost/packages/core/events"
)

const (
	// UnknownTest is the display name used for output of an uncorrelated test
	UnknownTest = "<unknown test>"
	// UnknownTestDisplayName is the display name used for results of an uncorrelated test
	UnknownTestDisplayName = "<unknown test display name>"
)

// Correlator enriches test events with metadata from their starting events
// and evicts cache entries once an entity finishes.
type Correlator struct {
	cache   *Cache
	display DisplayFormatter
	now     func() time.Time
}

// Option configures a Correlator
type Option func(*Correlator)

// WithDisplayFormatter sets the display name rewriting rules
func WithDisplayFormatter(f DisplayFormatter) Option {
	return func(c *Correlator) {
		c.display = f
	}
}

// WithClock overrides the clock used to time tests without an execution time
func WithClock(now func() time.Time) Option {
	return func(c *Correlator) {
		c.now = now
	}
}

// WithCache shares an existing cache
func WithCache(cache *Cache) Option {
	return func(c *Correlator) {
		c.cache = cache
	}
}

// New creates a Correlator
func New(opts ...Option) *Correlator {
	c := &Correlator{now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	if c.cache == nil {
		c.cache = NewCache()
	}
	return c
}

// Cache returns the underlying metadata cache
func (c *Correlator) Cache() *Cache {
	return c.cache
}

// Correlate enriches ev in place and returns it. A missing starting event
// is not an error: the event gets a placeholder display name and
// Info().Correlated stays false.
func (c *Correlator) Correlate(ev events.Event) events.Event {
	switch e := ev.(type) {
	case *events.AssemblyStarting:
		c.cache.Set(e.AssemblyKey(), e)
	case *events.AssemblyFinished:
		c.cache.Remove(e.AssemblyKey())
	case *events.CollectionStarting:
		c.cache.Set(e.CollectionKey(), e)
	case *events.CollectionFinished:
		c.cache.Remove(e.CollectionKey())
	case *events.CaseStarting:
		e.DisplayName = c.display.Format(e.DisplayName)
		c.cache.Set(e.CaseKey(), e)
	case *events.CaseFinished:
		c.cache.Remove(e.CaseKey())
	case *events.CaseDiscovered:
		e.DisplayName = c.display.Format(e.DisplayName)
	case *events.TestStarting:
		e.DisplayName = c.display.Format(e.DisplayName)
		if e.StartTime.IsZero() {
			e.StartTime = c.now()
		}
		c.fillFromCase(&e.TestInfo)
		e.Correlated = true
		c.cache.Set(e.TestKey(), e)
	case *events.TestFinished:
		c.enrich(&e.TestInfo, UnknownTestDisplayName)
		c.fillTiming(&e.TestInfo, &e.Outcome)
		c.cache.Remove(e.TestKey())
	case *events.TestOutput:
		c.enrich(&e.TestInfo, UnknownTest)
	case *events.TestPassed:
		c.enrich(&e.TestInfo, UnknownTestDisplayName)
		c.fillTiming(&e.TestInfo, &e.Outcome)
	case *events.TestFailed:
		c.enrich(&e.TestInfo, UnknownTestDisplayName)
		c.fillTiming(&e.TestInfo, &e.Outcome)
	case *events.TestSkipped:
		c.enrich(&e.TestInfo, UnknownTestDisplayName)
	case *events.TestNotRun:
		c.enrich(&e.TestInfo, UnknownTestDisplayName)
	}
	return ev
}

func (c *Correlator) enrich(info *events.TestInfo, placeholder string) {
	if cached, ok := c.cache.Get(info.TestKey()); ok {
		if start, ok := cached.(*events.TestStarting); ok {
			info.DisplayName = start.DisplayName
			info.StartTime = start.StartTime
			info.Namespace = start.Namespace
			info.Class = start.Class
			info.Method = start.Method
			info.Traits = start.Traits
			info.SourceFile = start.SourceFile
			info.SourceLine = start.SourceLine
			info.Correlated = true
			return
		}
	}

	caseName := c.fillFromCase(info)
	if info.DisplayName == "" {
		info.DisplayName = caseName
	}
	if info.DisplayName == "" {
		info.DisplayName = placeholder
	}
}

// fillFromCase copies case level metadata and returns the case display name
func (c *Correlator) fillFromCase(info *events.TestInfo) string {
	cached, ok := c.cache.Get(info.CaseKey())
	if !ok {
		return ""
	}
	cs, ok := cached.(*events.CaseStarting)
	if !ok {
		return ""
	}
	if info.Namespace == "" {
		info.Namespace = cs.Namespace
	}
	if info.Class == "" {
		info.Class = cs.Class
	}
	if info.Method == "" {
		info.Method = cs.Method
	}
	if info.Traits == nil {
		info.Traits = cs.Traits
	}
	if info.SourceFile == "" {
		info.SourceFile = cs.SourceFile
		info.SourceLine = cs.SourceLine
	}
	return cs.DisplayName
}

func (c *Correlator) fillTiming(info *events.TestInfo, out *events.Outcome) {
	if out.ExecutionTime == 0 && !info.StartTime.IsZero() {
		out.ExecutionTime = c.now().Sub(info.StartTime)
	}
}
