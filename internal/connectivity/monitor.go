// Package connectivity tracks whether the remote task service is reachable
// and tells subscribers when that changes.
package connectivity

import (
	"context"
	"sync"
	"time"

	"tasksync/internal/metrics"
	"tasksync/internal/models"

	"github.com/rs/zerolog"
)

// Monitor polls a Probe and broadcasts state changes. Two consecutive equal
// readings never produce two notifications.
type Monitor struct {
	probe    Probe
	interval time.Duration
	timeout  time.Duration
	logger   *zerolog.Logger

	mu     sync.Mutex
	state  bool
	subs   map[int]chan bool
	nextID int
	closed bool

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewMonitor(probe Probe, interval, timeout time.Duration, logger *zerolog.Logger) *Monitor {
	if interval <= 0 {
		interval = models.DefaultProbeInterval * time.Second
	}
	if timeout <= 0 {
		timeout = models.DefaultProbeTimeout * time.Second
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Monitor{
		probe:    probe,
		interval: interval,
		timeout:  timeout,
		logger:   logger,
		subs:     make(map[int]chan bool),
	}
}

// Start takes the initial reading without notifying anyone, then polls in
// the background until ctx is done or Stop is called.
func (m *Monitor) Start(ctx context.Context) {
	initial := m.check(ctx)

	m.mu.Lock()
	m.state = initial
	m.mu.Unlock()
	metrics.SetOnline(initial)
	m.logger.Info().Bool("online", initial).Dur("interval", m.interval).Msg("Connectivity monitor started")

	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel

	m.wg.Add(1)
	go m.loop(ctx)
}

func (m *Monitor) loop(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Refresh(ctx)
		}
	}
}

// Stop ends polling and closes every subscriber channel.
func (m *Monitor) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	for id, ch := range m.subs {
		close(ch)
		delete(m.subs, id)
	}
}

func (m *Monitor) check(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	return m.probe.CheckNow(ctx)
}

// Refresh probes once and broadcasts if the state changed. It returns the
// new state, or the unchanged one when ctx is done before the probe ends.
func (m *Monitor) Refresh(ctx context.Context) bool {
	state := m.check(ctx)
	// A probe cut short by cancellation says nothing about the network.
	if ctx.Err() != nil {
		return m.CurrentState()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed || state == m.state {
		return state
	}
	m.state = state

	metrics.SetOnline(state)
	metrics.IncTransition()
	m.logger.Info().Bool("online", state).Msg("Connectivity changed")

	for _, ch := range m.subs {
		deliver(ch, state)
	}
	return state
}

// deliver never blocks. A full buffer loses its oldest value: only the
// latest state matters to a slow reader.
func deliver(ch chan bool, state bool) {
	for {
		select {
		case ch <- state:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}

func (m *Monitor) CurrentState() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Subscribe returns a channel of state changes and a function that cancels
// the subscription and closes the channel. Subscribing to a stopped monitor
// yields a closed channel.
func (m *Monitor) Subscribe() (<-chan bool, func()) {
	ch := make(chan bool, models.SubscriberBufferSize)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		close(ch)
		return ch, func() {}
	}

	id := m.nextID
	m.nextID++
	m.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			if c, ok := m.subs[id]; ok {
				close(c)
				delete(m.subs, id)
			}
		})
	}
}
