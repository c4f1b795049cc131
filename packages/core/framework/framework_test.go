package framework

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCaseID_Deterministic(t *testing.T) {
	a := CaseID("suite.yaml", "Acme.Math", "Adds", "")
	b := CaseID("suite.yaml", "Acme.Math", "Adds", "")
	c := CaseID("suite.yaml", "Acme.Math", "Adds", "row1")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 36)
	assert.NotEqual(t, TestID(a, 0), TestID(a, 1))
}

func TestTestCase_Names(t *testing.T) {
	tc := &TestCase{DisplayName: "Acme.Math.Adds", Class: "Acme.Math", Method: "Adds"}
	assert.Equal(t, "Acme.Math.Adds", tc.FullName())
	assert.Equal(t, "Test collection for Acme.Math", tc.CollectionName())
	assert.Equal(t, "Acme.Math.Adds(small)", tc.RowDisplayName(Row{Label: "small"}))

	tc.Collection = "db"
	assert.Equal(t, "db", tc.CollectionName())

	assert.Equal(t, "Default collection", (&TestCase{Method: "x"}).CollectionName())
}

func TestTestCase_Enumerate(t *testing.T) {
	tc := &TestCase{
		ID:          CaseID("s", "C", "M", ""),
		DisplayName: "C.M",
		Class:       "C",
		Method:      "M",
		Rows:        []Row{{Label: "a"}, {Label: "b"}},
	}

	cases := tc.Enumerate("s")
	require.Len(t, cases, 2)
	assert.Equal(t, "C.M(a)", cases[0].DisplayName)
	assert.Equal(t, []Row{{Label: "b"}}, cases[1].Rows)
	assert.NotEqual(t, cases[0].ID, cases[1].ID)
	assert.Len(t, tc.Rows, 2, "original untouched")

	single := &TestCase{DisplayName: "x"}
	assert.Equal(t, []*TestCase{single}, single.Enumerate("s"))
}

func TestInvoke(t *testing.T) {
	var lines []string
	tt := NewT(Row{}, func(line string) { lines = append(lines, line) })

	err := Invoke(context.Background(), func(ctx context.Context, t *T) error {
		t.Log("hello", "world")
		t.Logf("n=%d", 3)
		t.Warn("careful")
		return nil
	}, tt)
	require.NoError(t, err)
	assert.Equal(t, "hello world\nn=3\n", tt.Output())
	assert.Equal(t, []string{"hello world\n", "n=3\n"}, lines)
	assert.Equal(t, []string{"careful"}, tt.Warnings())
}

func TestInvoke_Outcomes(t *testing.T) {
	err := Invoke(context.Background(), func(context.Context, *T) error {
		return Fail("expected %d, got %d", 1, 2)
	}, NewT(Row{}, nil))
	var ae *AssertionError
	require.True(t, errors.As(err, &ae))
	assert.Equal(t, "expected 1, got 2", ae.Message)

	err = Invoke(context.Background(), func(context.Context, *T) error {
		return Skip("not today")
	}, NewT(Row{}, nil))
	var se *SkipError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "not today", se.Reason)

	err = Invoke(context.Background(), func(context.Context, *T) error {
		panic("kaboom")
	}, NewT(Row{}, nil))
	var pe *PanicError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "kaboom", pe.Value)
	assert.NotEmpty(t, pe.Stack)

	assert.Error(t, Invoke(context.Background(), nil, NewT(Row{}, nil)))
}

func TestStatic(t *testing.T) {
	asm := &Assembly{ID: AssemblyID("x"), Name: "x"}
	got, err := Static{asm}.Discover(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []*Assembly{asm}, got)
}
