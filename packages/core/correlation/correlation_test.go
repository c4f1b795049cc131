package correlation

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abdul-hamid-achik/testhost/packages/core/config"
	"github.com/abdul-hamid-achik/testhost/packages/core/events"
)

func ref(caseID, testID string) events.Ref {
	return events.Ref{AssemblyID: "asm", CollectionID: "col", CaseID: caseID, TestID: testID}
}

func TestCache_SetGetRemove(t *testing.T) {
	c := NewCache()
	key := events.Key{Kind: events.KeyTest, ID: "t1"}

	_, ok := c.Get(key)
	assert.False(t, ok)

	c.Set(key, &events.TestStarting{TestInfo: events.TestInfo{DisplayName: "first"}})
	c.Set(key, &events.TestStarting{TestInfo: events.TestInfo{DisplayName: "second"}})
	assert.Equal(t, 1, c.Len())

	got, ok := c.Get(key)
	require.True(t, ok)
	assert.Equal(t, "second", got.(*events.TestStarting).DisplayName)

	c.Remove(key)
	c.Remove(key)
	_, ok = c.Get(key)
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestCache_KeyKindsAreDistinct(t *testing.T) {
	c := NewCache()
	c.Set(events.Key{Kind: events.KeyCase, ID: "x"}, &events.CaseStarting{})
	_, ok := c.Get(events.Key{Kind: events.KeyTest, ID: "x"})
	assert.False(t, ok)
}

func TestCache_ConcurrentReaders(t *testing.T) {
	c := NewCache()
	key := events.Key{Kind: events.KeyTest, ID: "shared"}
	c.Set(key, &events.TestStarting{TestInfo: events.TestInfo{DisplayName: "shared"}})

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			own := events.Key{Kind: events.KeyTest, ID: fmt.Sprintf("t%d", i)}
			c.Set(own, &events.TestStarting{})

			got, ok := c.Get(key)
			if assert.True(t, ok) {
				assert.Equal(t, "shared", got.(*events.TestStarting).DisplayName)
			}
			c.Remove(own)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, c.Len())
	c.Remove(key)
	_, ok := c.Get(key)
	assert.False(t, ok)
}

func TestCorrelator_EnrichesResults(t *testing.T) {
	start := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	now := start.Add(250 * time.Millisecond)
	c := New(WithClock(func() time.Time { return now }))

	c.Correlate(&events.CaseStarting{
		Ref:         ref("c1", ""),
		DisplayName: "Acme.MathTests.Adds",
		Namespace:   "Acme",
		Class:       "Acme.MathTests",
		Method:      "Adds",
		Traits:      map[string][]string{"category": {"unit"}},
		SourceFile:  "math.yaml",
		SourceLine:  12,
	})
	c.Correlate(&events.TestStarting{TestInfo: events.TestInfo{
		Ref: ref("c1", "t1"), DisplayName: "Acme.MathTests.Adds", StartTime: start,
	}})

	passed := c.Correlate(&events.TestPassed{TestInfo: events.TestInfo{Ref: ref("c1", "t1")}}).(*events.TestPassed)
	assert.True(t, passed.Correlated)
	assert.Equal(t, "Acme.MathTests.Adds", passed.DisplayName)
	assert.Equal(t, "Acme.MathTests", passed.Class)
	assert.Equal(t, []string{"unit"}, passed.Traits["category"])
	assert.Equal(t, "math.yaml", passed.SourceFile)
	assert.Equal(t, 12, passed.SourceLine)
	assert.Equal(t, 250*time.Millisecond, passed.ExecutionTime)

	out := c.Correlate(&events.TestOutput{TestInfo: events.TestInfo{Ref: ref("c1", "t1")}, Output: "x"}).(*events.TestOutput)
	assert.Equal(t, "Acme.MathTests.Adds", out.DisplayName)
}

func TestCorrelator_Placeholders(t *testing.T) {
	c := New()

	out := c.Correlate(&events.TestOutput{TestInfo: events.TestInfo{Ref: ref("c9", "t9")}}).(*events.TestOutput)
	assert.Equal(t, UnknownTest, out.DisplayName)
	assert.False(t, out.Correlated)

	failed := c.Correlate(&events.TestFailed{TestInfo: events.TestInfo{Ref: ref("c9", "t9")}}).(*events.TestFailed)
	assert.Equal(t, UnknownTestDisplayName, failed.DisplayName)
	assert.False(t, failed.Correlated)
}

func TestCorrelator_EvictsOnFinished(t *testing.T) {
	c := New()

	c.Correlate(&events.AssemblyStarting{Ref: events.Ref{AssemblyID: "asm"}})
	c.Correlate(&events.CollectionStarting{Ref: ref("", "")})
	c.Correlate(&events.CaseStarting{Ref: ref("c1", ""), DisplayName: "A.B"})
	c.Correlate(&events.TestStarting{TestInfo: events.TestInfo{Ref: ref("c1", "t1"), DisplayName: "A.B"}})
	assert.Equal(t, 4, c.Cache().Len())

	c.Correlate(&events.TestPassed{TestInfo: events.TestInfo{Ref: ref("c1", "t1")}})
	finished := c.Correlate(&events.TestFinished{TestInfo: events.TestInfo{Ref: ref("c1", "t1")}}).(*events.TestFinished)
	assert.Equal(t, "A.B", finished.DisplayName)
	assert.Equal(t, 3, c.Cache().Len())

	// a duplicate terminal event after finish degrades to a miss
	dup := c.Correlate(&events.TestPassed{TestInfo: events.TestInfo{Ref: ref("c1", "t1")}}).(*events.TestPassed)
	assert.False(t, dup.Correlated)
	assert.Equal(t, "A.B", dup.DisplayName, "case metadata still present")

	c.Correlate(&events.CaseFinished{Ref: ref("c1", "")})
	c.Correlate(&events.CollectionFinished{Ref: ref("", "")})
	c.Correlate(&events.AssemblyFinished{Ref: events.Ref{AssemblyID: "asm"}})
	assert.Equal(t, 0, c.Cache().Len())
}

func TestCorrelator_ConcurrentStreams(t *testing.T) {
	c := New()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r := ref(fmt.Sprintf("c%d", i), fmt.Sprintf("t%d", i))
			name := fmt.Sprintf("Suite.Test%d", i)
			c.Correlate(&events.CaseStarting{Ref: r, DisplayName: name})
			c.Correlate(&events.TestStarting{TestInfo: events.TestInfo{Ref: r, DisplayName: name}})
			res := c.Correlate(&events.TestPassed{TestInfo: events.TestInfo{Ref: r}}).(*events.TestPassed)
			assert.Equal(t, name, res.DisplayName)
			c.Correlate(&events.TestFinished{TestInfo: events.TestInfo{Ref: r}})
			c.Correlate(&events.CaseFinished{Ref: r})
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 0, c.Cache().Len())
}

func TestDisplayFormatter(t *testing.T) {
	tests := []struct {
		name    string
		display string
		opts    []string
		in      string
		want    string
	}{
		{"default", "", nil, "Acme.MathTests.Adds(x: 1)", "Acme.MathTests.Adds(x: 1)"},
		{"method only", "method", nil, "Acme.MathTests.Adds(x: 1.5)", "Adds(x: 1.5)"},
		{"underscores", "method", []string{"replaceUnderscoreWithSpace"}, "A.Adds_two_numbers", "Adds two numbers"},
		{"monikers", "method", []string{"useOperatorMonikers", "replaceUnderscoreWithSpace"}, "A.one_lt_two", "one < two"},
		{"escapes", "method", []string{"useEscapeSequences"}, "A.AX2DB", "A-B"},
		{"unicode escapes", "method", []string{"useEscapeSequences"}, "A.pieU03C0", "pieπ"},
		{"period", "", []string{"replacePeriodWithComma"}, "A.B", "A, B"},
		{"all", "method", []string{"all"}, "A.a_eq_b", "a = b"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.DefaultConfig()
			if tt.display != "" {
				cfg.MethodDisplay = tt.display
			}
			cfg.MethodDisplayOptions = tt.opts
			assert.Equal(t, tt.want, NewDisplayFormatter(cfg).Format(tt.in))
		})
	}
}

func TestCorrelator_AppliesDisplayFormatter(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.MethodDisplay = config.MethodDisplayMethod
	c := New(WithDisplayFormatter(NewDisplayFormatter(cfg)))

	c.Correlate(&events.TestStarting{TestInfo: events.TestInfo{Ref: ref("c", "t"), DisplayName: "Pkg.Suite.Works"}})
	res := c.Correlate(&events.TestPassed{TestInfo: events.TestInfo{Ref: ref("c", "t")}}).(*events.TestPassed)
	assert.Equal(t, "Works", res.DisplayName)
}
