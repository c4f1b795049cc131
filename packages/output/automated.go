package output

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/tidwall/gjson"

	"github.com/abdul-hamid-achik/testhost/packages/core/events"
	"github.com/abdul-hamid-achik/testhost/packages/logger"
)

// DefaultAckTimeout bounds the wait for an acknowledgement in sync mode
const DefaultAckTimeout = 30 * time.Second

// AutomatedSink writes one JSON object per event, for another program to
// read. In sync mode every write waits for a line on the ack reader; an ack
// of the form {"cancel": true} asks the run to stop.
type AutomatedSink struct {
	writer     io.Writer
	acks       <-chan string
	ackTimeout time.Duration
	stopOnFail bool
	lggr       logger.Logger

	mu      sync.Mutex
	noticed bool
}

type AutomatedOption func(*AutomatedSink)

// WithAcks switches the sink to sync mode, reading acks from r
func WithAcks(r io.Reader) AutomatedOption {
	return func(s *AutomatedSink) {
		s.acks = readLines(r)
	}
}

func WithAckTimeout(d time.Duration) AutomatedOption {
	return func(s *AutomatedSink) {
		s.ackTimeout = d
	}
}

// WithStopOnFailNotice emits a diagnostic when a failure cancels the run
func WithStopOnFailNotice(on bool) AutomatedOption {
	return func(s *AutomatedSink) {
		s.stopOnFail = on
	}
}

func WithAutomatedLogger(lggr logger.Logger) AutomatedOption {
	return func(s *AutomatedSink) {
		s.lggr = lggr
	}
}

func NewAutomatedSink(w io.Writer, opts ...AutomatedOption) *AutomatedSink {
	s := &AutomatedSink{
		writer:     w,
		ackTimeout: DefaultAckTimeout,
		lggr:       logger.Nop(),
	}
	if s.writer == nil {
		s.writer = os.Stdout
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *AutomatedSink) Name() string { return "automated" }

// Interested skips internal diagnostics, which have no wire form
func (s *AutomatedSink) Interested(kind events.Kind) bool {
	return kind != events.KindInternalDiagnostic
}

func (s *AutomatedSink) OnEvent(ev events.Event) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sum, ok := ev.(*events.ExecutionSummary); ok && s.stopOnFail && !s.noticed && sum.Cancelled && sum.Summary.Failed > 0 {
		s.noticed = true
		notice := &events.Diagnostic{AssemblyID: sum.AssemblyID, Message: strings.TrimSuffix(StopOnFailNotice, "...")}
		if cont, err := s.write(notice); err != nil || !cont {
			return cont, err
		}
	}
	return s.write(ev)
}

func (s *AutomatedSink) write(ev events.Event) (bool, error) {
	line, err := events.Marshal(ev)
	if err != nil {
		if errors.Is(err, events.ErrNotSerializable) {
			return true, err
		}
		return false, fmt.Errorf("encoding %s: %w", ev.Kind(), err)
	}

	line = append(line, '\n')
	if _, err := s.writer.Write(line); err != nil {
		return false, fmt.Errorf("writing %s: %w", ev.Kind(), err)
	}

	if s.acks == nil {
		return true, nil
	}
	return s.waitForAck(ev.Kind()), nil
}

func (s *AutomatedSink) waitForAck(kind events.Kind) bool {
	timer := time.NewTimer(s.ackTimeout)
	defer timer.Stop()

	select {
	case ack, ok := <-s.acks:
		if !ok {
			// reader went away; nobody is left to acknowledge
			s.acks = nil
			return true
		}
		return !gjson.Get(ack, "cancel").Bool()
	case <-timer.C:
		s.lggr.Warnw("timed out waiting for acknowledgement", "kind", kind, "timeout", s.ackTimeout)
		return true
	}
}

func (s *AutomatedSink) Close() error { return nil }

func readLines(r io.Reader) <-chan string {
	ch := make(chan string)
	go func() {
		defer close(ch)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			ch <- scanner.Text()
		}
	}()
	return ch
}
