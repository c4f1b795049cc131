// Package framework models discovered tests and the opaque capability that
// executes a test body.
package framework

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/abdul-hamid-achik/testhost/packages/core/filter"
)

// idNamespace seeds the deterministic test case ids
var idNamespace = uuid.MustParse("6f1c1f3e-5b0a-4f7e-9a55-2d8b1f1b7c10")

// Body runs one test. Returning nil passes; see Fail, Skip and Timeout
// handling in the runner for the other outcomes.
type Body func(ctx context.Context, t *T) error

// Row is one data row of a theory
type Row struct {
	Label  string            `json:"label" yaml:"label"`
	Values map[string]string `json:"values,omitempty" yaml:"values,omitempty"`
}

// TestCase is a discovered test. A case with Rows is a theory that runs one
// test per row.
type TestCase struct {
	ID          string
	DisplayName string
	Namespace   string
	Class       string // fully qualified
	Method      string
	Traits      map[string][]string
	SourceFile  string
	SourceLine  int
	Explicit    bool
	SkipReason  string
	Timeout     time.Duration
	Collection  string
	Rows        []Row
	Body        Body
}

// Assembly is a unit of discovery, e.g. one manifest file
type Assembly struct {
	ID    string
	Name  string
	Path  string
	Cases []*TestCase
}

// Source discovers assemblies
type Source interface {
	Discover(ctx context.Context) ([]*Assembly, error)
}

// Static is a Source over already built assemblies
type Static []*Assembly

// Discover returns the assemblies as-is
func (s Static) Discover(context.Context) ([]*Assembly, error) {
	return s, nil
}

// CaseID returns the deterministic id for a case
func CaseID(assembly, class, method, row string) string {
	key := strings.Join([]string{assembly, class, method, row}, "\x00")
	return uuid.NewSHA1(idNamespace, []byte(key)).String()
}

// TestID returns the deterministic id for the n-th test of a case
func TestID(caseID string, n int) string {
	return uuid.NewSHA1(idNamespace, []byte(fmt.Sprintf("%s\x00%d", caseID, n))).String()
}

// AssemblyID returns the deterministic id for an assembly path
func AssemblyID(path string) string {
	return uuid.NewSHA1(idNamespace, []byte(path)).String()
}

// Target returns what filters are evaluated against
func (tc *TestCase) Target() filter.Target {
	return filter.Target{
		Namespace: tc.Namespace,
		Class:     tc.Class,
		Method:    tc.Method,
		Traits:    tc.Traits,
	}
}

// FullName is Class.Method, or Method without a class
func (tc *TestCase) FullName() string {
	if tc.Class == "" {
		return tc.Method
	}
	return tc.Class + "." + tc.Method
}

// CollectionName returns the collection the case runs in, defaulting to
// one collection per class
func (tc *TestCase) CollectionName() string {
	if tc.Collection != "" {
		return tc.Collection
	}
	if tc.Class != "" {
		return "Test collection for " + tc.Class
	}
	return "Default collection"
}

// RowDisplayName returns the display name for one theory row
func (tc *TestCase) RowDisplayName(row Row) string {
	if row.Label == "" {
		return tc.DisplayName
	}
	return fmt.Sprintf("%s(%s)", tc.DisplayName, row.Label)
}

// Enumerate splits a theory into one case per row
func (tc *TestCase) Enumerate(assemblyPath string) []*TestCase {
	if len(tc.Rows) == 0 {
		return []*TestCase{tc}
	}
	out := make([]*TestCase, 0, len(tc.Rows))
	for _, row := range tc.Rows {
		c := *tc
		c.ID = CaseID(assemblyPath, tc.Class, tc.Method, row.Label)
		c.DisplayName = tc.RowDisplayName(row)
		c.Rows = []Row{row}
		out = append(out, &c)
	}
	return out
}
