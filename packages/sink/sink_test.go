package sink

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/abdul-hamid-achik/testhost/packages/core/events"
	"github.com/abdul-hamid-achik/testhost/packages/logger"
)

func constant(name string, result bool, calls *[]string) *Func {
	return &Func{SinkName: name, Fn: func(events.Event) (bool, error) {
		*calls = append(*calls, name)
		return result, nil
	}}
}

func TestFanOut_RegistrationOrder(t *testing.T) {
	var calls []string
	f := New([]Sink{constant("a", true, &calls), constant("b", true, &calls)})
	f.Add(constant("c", true, &calls))

	ok, err := f.Dispatch(&events.Diagnostic{Message: "x"})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []string{"a", "b", "c"}, calls)
}

func TestFanOut_FalsePropagates(t *testing.T) {
	var calls []string
	f := New([]Sink{constant("yes", true, &calls), constant("no", false, &calls), constant("after", true, &calls)})

	ok, err := f.Dispatch(&events.Diagnostic{})
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, []string{"yes", "no", "after"}, calls, "every sink still sees the event")
}

func TestFanOut_CancellationFlag(t *testing.T) {
	var calls []string
	flag := &Flag{}
	f := New([]Sink{constant("a", true, &calls)}, WithFlag(flag))

	ok, err := f.Dispatch(&events.Diagnostic{})
	require.NoError(t, err)
	assert.True(t, ok)

	assert.True(t, flag.Cancel())
	assert.False(t, flag.Cancel())

	ok, err = f.Dispatch(&events.Diagnostic{})
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Same(t, flag, f.Flag())
}

func TestFanOut_NotSerializableIsSwallowed(t *testing.T) {
	lggr, logs := logger.TestObserved(t, zapcore.DebugLevel)
	var calls []string
	picky := &Func{SinkName: "picky", Fn: func(events.Event) (bool, error) {
		return false, fmt.Errorf("encoding: %w", ErrNotSerializable)
	}}
	f := New([]Sink{picky, constant("next", true, &calls)}, WithLogger(lggr))

	ok, err := f.Dispatch(&events.InternalDiagnostic{Message: "x"})
	require.NoError(t, err)
	assert.True(t, ok, "a swallowed error does not count as a stop request")
	assert.Equal(t, []string{"next"}, calls)
	assert.Equal(t, 1, logs.FilterMessage("event not serializable").Len())
}

func TestFanOut_ConsumerFault(t *testing.T) {
	boom := errors.New("disk full")
	var calls []string
	bad := &Func{SinkName: "report", Fn: func(events.Event) (bool, error) { return true, boom }}
	f := New([]Sink{bad, constant("never", true, &calls)})

	ok, err := f.Dispatch(&events.Diagnostic{})
	assert.False(t, ok)

	var fault *ConsumerFaultError
	require.ErrorAs(t, err, &fault)
	assert.Equal(t, "report", fault.Sink)
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, calls)
}

func TestFanOut_Interest(t *testing.T) {
	var calls []string
	only := &Func{SinkName: "only-failed", Kinds: []events.Kind{events.KindTestFailed}, Fn: func(events.Event) (bool, error) {
		calls = append(calls, "called")
		return false, nil
	}}
	f := New([]Sink{only})

	ok, err := f.Dispatch(&events.TestPassed{})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, calls)

	ok, err = f.Dispatch(&events.TestFailed{})
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Len(t, calls, 1)
}

func TestFanOut_ConcurrentDispatch(t *testing.T) {
	rec := NewRecorder()
	f := New([]Sink{rec})

	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := f.Dispatch(&events.Diagnostic{Message: fmt.Sprint(i)})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	assert.Len(t, rec.Events(), 64)
}

func TestFanOut_DispatchIsSerialized(t *testing.T) {
	var inFlight, peak atomic.Int32
	slow := &Func{SinkName: "slow", Fn: func(events.Event) (bool, error) {
		n := inFlight.Add(1)
		if n > peak.Load() {
			peak.Store(n)
		}
		time.Sleep(time.Millisecond)
		inFlight.Add(-1)
		return true, nil
	}}
	first, second := NewRecorder(), NewRecorder()
	f := New([]Sink{first, slow, second})

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := f.Dispatch(&events.Diagnostic{Message: fmt.Sprint(i)})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), peak.Load(), "a blocking sink holds back other dispatches")
	require.Len(t, second.Events(), 16)
	assert.Equal(t, first.Events(), second.Events(), "every sink sees the same order")
}

type closer struct {
	Func
	err    error
	closed int
}

func (c *closer) Close() error {
	c.closed++
	return c.err
}

func TestFanOut_Close(t *testing.T) {
	a := &closer{Func: Func{SinkName: "a"}}
	b := &closer{Func: Func{SinkName: "b"}, err: errors.New("flush failed")}
	f := New([]Sink{a, b})

	err := f.Close()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "closing b: flush failed")
	assert.NoError(t, f.Close())
	assert.Equal(t, 1, a.closed)
	assert.Equal(t, 1, b.closed)

	_, err = f.Dispatch(&events.Diagnostic{})
	assert.Error(t, err)
}
