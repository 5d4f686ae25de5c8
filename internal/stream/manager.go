// Package stream keeps one live log stream connection open, recovering
// from token expiry and network failures on its own.
package stream

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/your-username/ehr-console/internal/models"
	"github.com/your-username/ehr-console/internal/monitoring"
)

const (
	// DefaultRetryDelay is the wait before reconnecting when a refresh did not help
	DefaultRetryDelay = 3 * time.Second

	// DefaultQueueSize bounds frames waiting for the consumer
	DefaultQueueSize = 4096
)

var ErrGaveUp = errors.New("stream retry limit reached")

// TokenSource is the part of the token store the manager uses
type TokenSource interface {
	Get() string
	Refresh(ctx context.Context) (string, error)
}

// Backoff decides how long to wait between failed attempts.
// The zero value of Multiplier (or 1) gives a fixed delay.
type Backoff struct {
	Delay      time.Duration
	Multiplier float64
	MaxDelay   time.Duration
	// MaxRetries stops retrying after that many consecutive failures; 0 retries forever
	MaxRetries int
}

// Next returns the delay before retry number attempt (1-based)
func (b Backoff) Next(attempt int) time.Duration {
	delay := b.Delay
	if delay <= 0 {
		delay = DefaultRetryDelay
	}
	if b.Multiplier > 1 && attempt > 1 {
		delay = time.Duration(float64(delay) * math.Pow(b.Multiplier, float64(attempt-1)))
	}
	if b.MaxDelay > 0 && delay > b.MaxDelay {
		delay = b.MaxDelay
	}
	return delay
}

// Options configures a Manager
type Options struct {
	Transport Transport
	Tokens    TokenSource
	Backoff   Backoff
	// Paused starts the manager idle
	Paused    bool
	QueueSize int
	Metrics   *monitoring.MetricsCollector

	// newTimer is replaced in tests
	newTimer func(time.Duration) (<-chan time.Time, func() bool)
}

// Event is emitted on Manager.Events
type Event interface {
	isEvent()
}

// StateEvent reports a connection status change
type StateEvent struct {
	State models.ConnectionState
	// Attempt counts consecutive failures since the last successful open
	Attempt int
	// RetryIn is the scheduled reconnect delay while State is Error and the refresh failed
	RetryIn time.Duration
	// Refreshing is set while a token refresh is in flight
	Refreshing bool
	Err        error
}

// FrameEvent carries one accepted stream event
type FrameEvent struct {
	Name string
	Data string
}

func (StateEvent) isEvent() {}
func (FrameEvent) isEvent() {}

// Accepted event names: the default channel plus one channel per level
var acceptedNames = map[string]bool{
	"message": true,
	"LOG":     true,
	"ERROR":   true,
	"WARN":    true,
	"DEBUG":   true,
	"VERBOSE": true,
}

type phase int

const (
	phaseIdle phase = iota
	phaseConnecting
	phaseOpen
	phaseRetrying
)

type command int

const (
	cmdPause command = iota
	cmdResume
)

type request struct {
	cmd  command
	done chan struct{}
}

// loop inputs produced by connection and refresh goroutines
type (
	openedMsg    struct{ gen int }
	failedMsg    struct {
		gen int
		err error
	}
	frameMsg struct {
		gen int
		ev  Event
	}
	refreshedMsg struct {
		gen int
		err error
	}
)

// attempt is one connection attempt; teardown may run before or after the dial completes
type attempt struct {
	cancel context.CancelFunc
	mu     sync.Mutex
	conn   Conn
	closed bool
}

// adopt hands conn to the attempt, or closes it when the attempt is already torn down
func (a *attempt) adopt(conn Conn) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		conn.Close()
		return false
	}
	a.conn = conn
	return true
}

func (a *attempt) close() {
	a.mu.Lock()
	a.closed = true
	conn := a.conn
	a.conn = nil
	a.mu.Unlock()

	a.cancel()
	if conn != nil {
		conn.Close()
	}
}

// Manager owns at most one stream connection at a time. All state lives in
// a single loop goroutine; connections, refreshes and timers report back to
// it tagged with the generation that started them, and reports from an
// older generation are ignored.
type Manager struct {
	opts   Options
	reqs   chan request
	inbox  chan interface{}
	events chan Event
	done   chan struct{}
	cancel context.CancelFunc

	closeOnce sync.Once
	dropped   int64

	// owned by the loop goroutine
	ctx           context.Context
	gen           int
	phase         phase
	paused        bool
	failures      int
	current       *attempt
	refreshCancel context.CancelFunc
	timer         <-chan time.Time
	stopTimer     func() bool
	lastErr       error
	queue         []Event
}

// NewManager creates a manager; call Start to run it
func NewManager(opts Options) *Manager {
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	if opts.newTimer == nil {
		opts.newTimer = func(d time.Duration) (<-chan time.Time, func() bool) {
			t := time.NewTimer(d)
			return t.C, t.Stop
		}
	}
	return &Manager{
		opts:   opts,
		reqs:   make(chan request),
		inbox:  make(chan interface{}),
		events: make(chan Event),
		done:   make(chan struct{}),
		paused: opts.Paused,
	}
}

// Events delivers state changes and frames in order. It is closed after Close.
func (m *Manager) Events() <-chan Event {
	return m.events
}

// Dropped returns how many frames were discarded because the consumer fell behind
func (m *Manager) Dropped() int64 {
	return atomic.LoadInt64(&m.dropped)
}

// Start runs the manager until ctx ends or Close is called
func (m *Manager) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	m.ctx = ctx
	m.cancel = cancel
	go m.loop()
}

// Pause closes the live connection and cancels any pending retry.
// When Pause returns, no frame from the closed connection will be emitted.
func (m *Manager) Pause() {
	m.send(cmdPause)
}

// Resume reconnects after Pause, or after the retry limit was reached
func (m *Manager) Resume() {
	m.send(cmdResume)
}

// Close tears down the connection, timers and the loop, then closes Events
func (m *Manager) Close() {
	m.closeOnce.Do(func() {
		if m.cancel != nil {
			m.cancel()
			<-m.done
		}
	})
}

func (m *Manager) send(cmd command) {
	req := request{cmd: cmd, done: make(chan struct{})}
	select {
	case m.reqs <- req:
		<-req.done
	case <-m.done:
	}
}

func (m *Manager) loop() {
	defer close(m.done)
	defer close(m.events)

	if m.paused {
		m.emit(StateEvent{State: models.StateClosed})
	} else {
		m.connect()
	}

	for {
		var (
			out  chan<- Event
			next Event
		)
		if len(m.queue) > 0 {
			out = m.events
			next = m.queue[0]
		}

		select {
		case <-m.ctx.Done():
			m.teardown()
			return

		case req := <-m.reqs:
			m.handle(req.cmd)
			close(req.done)

		case msg := <-m.inbox:
			m.receive(msg)

		case <-m.timer:
			m.timer, m.stopTimer = nil, nil
			m.connect()

		case out <- next:
			m.queue[0] = nil
			m.queue = m.queue[1:]
		}
	}
}

func (m *Manager) handle(cmd command) {
	switch cmd {
	case cmdPause:
		m.paused = true
		if m.phase == phaseIdle {
			return
		}
		m.teardown()
		m.dropQueuedFrames()
		m.phase = phaseIdle
		m.failures = 0
		log.Info().Msg("Log stream paused")
		m.emit(StateEvent{State: models.StateClosed})

	case cmdResume:
		m.paused = false
		if m.phase == phaseIdle {
			log.Info().Msg("Log stream resumed")
			m.failures = 0
			m.connect()
		}
	}
}

func (m *Manager) receive(msg interface{}) {
	switch msg := msg.(type) {
	case openedMsg:
		if msg.gen != m.gen {
			return
		}
		m.phase = phaseOpen
		m.failures = 0
		m.lastErr = nil
		log.Info().Int("generation", msg.gen).Msg("Log stream connected")
		m.emit(StateEvent{State: models.StateOpen})

	case frameMsg:
		if msg.gen != m.gen {
			return
		}
		m.opts.Metrics.RecordFrame()
		m.emit(msg.ev)

	case failedMsg:
		if msg.gen != m.gen {
			return
		}
		m.fail(msg.err)

	case refreshedMsg:
		if msg.gen != m.gen || m.phase != phaseRetrying {
			return
		}
		m.refreshCancel = nil
		if msg.err == nil {
			log.Info().Msg("Access token refreshed, reconnecting")
			m.connect()
			return
		}
		m.opts.Metrics.IncrementCounter(monitoring.RefreshFailures, 1)
		log.Warn().Err(msg.err).Msg("Token refresh failed, retrying after delay")

		delay := m.opts.Backoff.Next(m.failures)
		m.timer, m.stopTimer = m.opts.newTimer(delay)
		m.emit(StateEvent{
			State:   models.StateError,
			Attempt: m.failures,
			RetryIn: delay,
			Err:     m.lastErr,
		})
	}
}

// fail handles a transport failure of the current attempt: one refresh, then backoff
func (m *Manager) fail(err error) {
	m.teardown()
	m.failures++
	m.lastErr = err
	m.opts.Metrics.IncrementCounter(monitoring.Failures, 1)
	log.Error().Err(err).Int("attempt", m.failures).Msg("Log stream error")

	if max := m.opts.Backoff.MaxRetries; max > 0 && m.failures > max {
		m.phase = phaseIdle
		m.emit(StateEvent{
			State:   models.StateClosed,
			Attempt: m.failures - 1,
			Err:     fmt.Errorf("%w after %d attempts: %v", ErrGaveUp, max, err),
		})
		return
	}

	m.phase = phaseRetrying
	m.emit(StateEvent{
		State:      models.StateError,
		Attempt:    m.failures,
		Refreshing: true,
		Err:        err,
	})

	ctx, cancel := context.WithCancel(m.ctx)
	m.refreshCancel = cancel
	gen := m.gen
	m.opts.Metrics.IncrementCounter(monitoring.Refreshes, 1)
	go func() {
		_, err := m.opts.Tokens.Refresh(ctx)
		m.post(ctx, refreshedMsg{gen: gen, err: err})
	}()
}

// connect supersedes whatever is running with a fresh attempt
func (m *Manager) connect() {
	m.teardown()
	m.phase = phaseConnecting
	m.opts.Metrics.IncrementCounter(monitoring.Connects, 1)
	m.emit(StateEvent{State: models.StateConnecting, Attempt: m.failures})

	ctx, cancel := context.WithCancel(m.ctx)
	a := &attempt{cancel: cancel}
	m.current = a
	gen := m.gen
	token := m.opts.Tokens.Get()

	go m.run(ctx, a, gen, token)
}

// run dials and pumps one connection until it fails or is torn down
func (m *Manager) run(ctx context.Context, a *attempt, gen int, token string) {
	conn, err := m.opts.Transport.Dial(ctx, token)
	if err != nil {
		m.post(ctx, failedMsg{gen: gen, err: err})
		return
	}
	if !a.adopt(conn) {
		return
	}
	if !m.post(ctx, openedMsg{gen: gen}) {
		return
	}

	for {
		ev, err := conn.Next()
		if err != nil {
			m.post(ctx, failedMsg{gen: gen, err: fmt.Errorf("stream dropped: %w", err)})
			return
		}
		if !acceptedNames[ev.Name] {
			continue
		}
		if !m.post(ctx, frameMsg{gen: gen, ev: FrameEvent{Name: ev.Name, Data: ev.Data}}) {
			return
		}
	}
}

// post delivers msg to the loop unless ctx ends first
func (m *Manager) post(ctx context.Context, msg interface{}) bool {
	select {
	case m.inbox <- msg:
		return true
	case <-ctx.Done():
		return false
	}
}

// teardown closes the current attempt, the pending refresh wait and the
// retry timer, and moves to a new generation so late reports are ignored
func (m *Manager) teardown() {
	m.gen++
	if m.current != nil {
		m.current.close()
		m.current = nil
	}
	if m.refreshCancel != nil {
		m.refreshCancel()
		m.refreshCancel = nil
	}
	if m.stopTimer != nil {
		m.stopTimer()
	}
	m.timer, m.stopTimer = nil, nil
}

func (m *Manager) emit(ev Event) {
	if _, ok := ev.(FrameEvent); ok && len(m.queue) >= m.opts.QueueSize {
		for i, queued := range m.queue {
			if _, ok := queued.(FrameEvent); ok {
				m.queue = append(m.queue[:i], m.queue[i+1:]...)
				atomic.AddInt64(&m.dropped, 1)
				m.opts.Metrics.IncrementCounter(monitoring.FramesDropped, 1)
				break
			}
		}
	}
	m.queue = append(m.queue, ev)
}

func (m *Manager) dropQueuedFrames() {
	kept := m.queue[:0]
	for _, ev := range m.queue {
		if _, ok := ev.(FrameEvent); !ok {
			kept = append(kept, ev)
		}
	}
	for i := len(kept); i < len(m.queue); i++ {
		m.queue[i] = nil
	}
	m.queue = kept
}
