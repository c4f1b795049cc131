package runner

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type runningTest struct {
	assemblyID string
	name       string
	start      time.Time
	notices    *rate.Limiter
}

// longRunningMonitor reports tests that have run past a threshold, at most
// once per threshold interval per test
type longRunningMonitor struct {
	threshold time.Duration
	now       func() time.Time
	notify    func(assemblyID, msg string)

	mu      sync.Mutex
	running map[string]*runningTest

	once    sync.Once
	done    chan struct{}
	stopped chan struct{}
}

func newLongRunningMonitor(threshold time.Duration, now func() time.Time, notify func(assemblyID, msg string)) *longRunningMonitor {
	return &longRunningMonitor{
		threshold: threshold,
		now:       now,
		notify:    notify,
		running:   make(map[string]*runningTest),
		done:      make(chan struct{}),
		stopped:   make(chan struct{}),
	}
}

func (m *longRunningMonitor) track(testID, assemblyID, name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.running[testID] = &runningTest{
		assemblyID: assemblyID,
		name:       name,
		start:      m.now(),
		notices:    rate.NewLimiter(rate.Every(m.threshold), 1),
	}
}

func (m *longRunningMonitor) untrack(testID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.running, testID)
}

func (m *longRunningMonitor) run(ctx context.Context) {
	defer close(m.stopped)

	interval := m.threshold / 4
	if interval > time.Second {
		interval = time.Second
	}
	if interval <= 0 {
		interval = m.threshold
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.done:
			return
		case <-ticker.C:
			m.check()
		}
	}
}

func (m *longRunningMonitor) check() {
	now := m.now()

	type notice struct {
		assemblyID, msg string
	}
	var notices []notice

	m.mu.Lock()
	for _, rt := range m.running {
		if now.Sub(rt.start) < m.threshold || !rt.notices.AllowN(now, 1) {
			continue
		}
		notices = append(notices, notice{
			assemblyID: rt.assemblyID,
			msg:        fmt.Sprintf("[Long Running Test] '%s', Elapsed: %s", rt.name, elapsed(now.Sub(rt.start))),
		})
	}
	m.mu.Unlock()

	sort.Slice(notices, func(i, j int) bool { return notices[i].msg < notices[j].msg })
	for _, n := range notices {
		m.notify(n.assemblyID, n.msg)
	}
}

// stop ends run and waits for it, so no notice is sent afterwards
func (m *longRunningMonitor) stop() {
	m.once.Do(func() { close(m.done) })
	<-m.stopped
}
