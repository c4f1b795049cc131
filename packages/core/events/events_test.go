package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func TestMarshal(t *testing.T) {
	ev := &TestFailed{
		TestInfo: TestInfo{
			Ref:         Ref{AssemblyID: "a1", CaseID: "c1", TestID: "t1"},
			DisplayName: "Math.Adds",
		},
		Outcome:  Outcome{ExecutionTime: 1500 * time.Millisecond, Output: "hello"},
		Cause:    CauseAssertion,
		Messages: []string{"expected 2, got 3"},
	}

	data, err := Marshal(ev)
	require.NoError(t, err)

	doc := gjson.ParseBytes(data)
	assert.Equal(t, "test-failed", doc.Get("$type").String())
	assert.Equal(t, "a1", doc.Get("assemblyId").String())
	assert.Equal(t, "t1", doc.Get("testId").String())
	assert.Equal(t, "Math.Adds", doc.Get("displayName").String())
	assert.Equal(t, "assertion", doc.Get("cause").String())
	assert.Equal(t, "expected 2, got 3", doc.Get("messages.0").String())
	assert.Equal(t, int64(1500*time.Millisecond), doc.Get("executionTime").Int())
	assert.False(t, doc.Get("startTime").Exists())
}

func TestMarshal_EmptyBody(t *testing.T) {
	data, err := Marshal(&ExecutionSummary{})
	require.NoError(t, err)
	assert.True(t, gjson.ValidBytes(data))
	assert.Equal(t, "execution-summary", gjson.GetBytes(data, "$type").String())
}

func TestMarshal_InternalDiagnostic(t *testing.T) {
	_, err := Marshal(&InternalDiagnostic{Message: "x"})
	assert.ErrorIs(t, err, ErrNotSerializable)
}

func TestIsResult(t *testing.T) {
	assert.True(t, IsResult(&TestPassed{}))
	assert.True(t, IsResult(&TestFailed{}))
	assert.True(t, IsResult(&TestSkipped{}))
	assert.True(t, IsResult(&TestNotRun{}))
	assert.False(t, IsResult(&TestFinished{}))
	assert.False(t, IsResult(&TestStarting{}))
}

func TestTestEvent_InfoIsShared(t *testing.T) {
	var ev TestEvent = &TestOutput{TestInfo: TestInfo{Ref: Ref{TestID: "t"}}}
	ev.Info().DisplayName = "named"
	assert.Equal(t, "named", ev.(*TestOutput).DisplayName)
	assert.Equal(t, Key{Kind: KeyTest, ID: "t"}, ev.Info().TestKey())
}

func TestSummary_Add(t *testing.T) {
	s := Summary{Totals: Totals{Total: 2, Failed: 1}, Elapsed: time.Second}
	s.Add(Summary{Totals: Totals{Total: 3, Skipped: 1}, Errors: 1, Elapsed: 2 * time.Second})

	assert.Equal(t, 5, s.Total)
	assert.Equal(t, 1, s.Failed)
	assert.Equal(t, 1, s.Skipped)
	assert.Equal(t, 1, s.Errors)
	assert.Equal(t, 2*time.Second, s.Elapsed)
}
