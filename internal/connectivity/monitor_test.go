package connectivity

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type switchProbe struct {
	online atomic.Bool
	calls  atomic.Int32
}

func (p *switchProbe) CheckNow(_ context.Context) bool {
	p.calls.Add(1)
	return p.online.Load()
}

func drain(ch <-chan bool) []bool {
	var got []bool
	for {
		select {
		case v, ok := <-ch:
			if !ok {
				return got
			}
			got = append(got, v)
		default:
			return got
		}
	}
}

func TestMonitor_Dedup(t *testing.T) {
	probe := &switchProbe{}
	m := NewMonitor(probe, time.Hour, time.Second, nil)
	ctx := context.Background()

	ch, unsubscribe := m.Subscribe()
	defer unsubscribe()

	probe.online.Store(true)
	assert.True(t, m.Refresh(ctx))
	assert.True(t, m.Refresh(ctx))

	assert.Equal(t, []bool{true}, drain(ch))
	assert.True(t, m.CurrentState())

	probe.online.Store(false)
	m.Refresh(ctx)
	m.Refresh(ctx)
	probe.online.Store(true)
	m.Refresh(ctx)

	assert.Equal(t, []bool{false, true}, drain(ch))
}

func TestMonitor_StartDoesNotEmitInitialState(t *testing.T) {
	probe := &switchProbe{}
	probe.online.Store(true)
	m := NewMonitor(probe, time.Hour, time.Second, nil)

	ch, unsubscribe := m.Subscribe()
	defer unsubscribe()

	m.Start(context.Background())
	defer m.Stop()

	assert.True(t, m.CurrentState())
	assert.Empty(t, drain(ch))
	assert.Equal(t, int32(1), probe.calls.Load())
}

func TestMonitor_PollingEmitsTransitions(t *testing.T) {
	probe := &switchProbe{}
	m := NewMonitor(probe, 5*time.Millisecond, time.Second, nil)

	ch, unsubscribe := m.Subscribe()
	defer unsubscribe()

	m.Start(context.Background())
	defer m.Stop()
	require.False(t, m.CurrentState())

	probe.online.Store(true)
	select {
	case v := <-ch:
		assert.True(t, v)
	case <-time.After(2 * time.Second):
		t.Fatal("no notification after going online")
	}
}

func TestMonitor_MultipleSubscribersAndUnsubscribe(t *testing.T) {
	probe := &switchProbe{}
	m := NewMonitor(probe, time.Hour, time.Second, nil)
	ctx := context.Background()

	a, unsubA := m.Subscribe()
	b, unsubB := m.Subscribe()
	defer unsubB()

	probe.online.Store(true)
	m.Refresh(ctx)
	assert.Equal(t, []bool{true}, drain(a))

	unsubA()
	unsubA()
	_, ok := <-a
	assert.False(t, ok, "unsubscribe closes the channel")

	probe.online.Store(false)
	m.Refresh(ctx)
	assert.Equal(t, []bool{true, false}, drain(b))
}

func TestMonitor_SlowSubscriberKeepsLatest(t *testing.T) {
	probe := &switchProbe{}
	m := NewMonitor(probe, time.Hour, time.Second, nil)
	ctx := context.Background()

	ch, unsubscribe := m.Subscribe()
	defer unsubscribe()

	for i := 0; i < 21; i++ {
		probe.online.Store(i%2 == 0)
		m.Refresh(ctx)
	}

	got := drain(ch)
	require.NotEmpty(t, got)
	assert.True(t, got[len(got)-1])
}

func TestMonitor_StopClosesSubscribers(t *testing.T) {
	m := NewMonitor(ProbeFunc(func(context.Context) bool { return false }), time.Hour, time.Second, nil)
	m.Start(context.Background())

	ch, unsubscribe := m.Subscribe()
	m.Stop()
	m.Stop()
	unsubscribe()

	_, ok := <-ch
	assert.False(t, ok)

	late, _ := m.Subscribe()
	_, ok = <-late
	assert.False(t, ok)
}

func TestMonitor_StopDuringProbeKeepsState(t *testing.T) {
	var calls atomic.Int32
	blocked := make(chan struct{})
	var once sync.Once
	probe := ProbeFunc(func(ctx context.Context) bool {
		if calls.Add(1) == 1 {
			return true
		}
		once.Do(func() { close(blocked) })
		<-ctx.Done()
		return false
	})
	m := NewMonitor(probe, 5*time.Millisecond, time.Hour, nil)
	m.Start(context.Background())
	require.True(t, m.CurrentState())

	ch, _ := m.Subscribe()

	select {
	case <-blocked:
	case <-time.After(5 * time.Second):
		t.Fatal("poll never started")
	}
	m.Stop()

	assert.Empty(t, drain(ch))
	assert.True(t, m.CurrentState())
	assert.True(t, m.Refresh(canceledContext()))
}

func canceledContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	return ctx
}

func TestMonitor_ProbeTimeout(t *testing.T) {
	slow := ProbeFunc(func(ctx context.Context) bool {
		<-ctx.Done()
		return false
	})
	m := NewMonitor(slow, time.Hour, 10*time.Millisecond, nil)

	start := time.Now()
	assert.False(t, m.Refresh(context.Background()))
	assert.Less(t, time.Since(start), time.Second)
}

func TestTCPProbe(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	probe := &TCPProbe{Address: addr}
	assert.True(t, probe.CheckNow(ctx))

	require.NoError(t, ln.Close())
	assert.False(t, probe.CheckNow(ctx))
}

func TestHTTPProbe(t *testing.T) {
	var status atomic.Int32
	status.Store(http.StatusNoContent)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodHead, r.Method)
		w.WriteHeader(int(status.Load()))
	}))
	defer srv.Close()

	probe := &HTTPProbe{URL: srv.URL, Client: srv.Client()}
	ctx := context.Background()
	assert.True(t, probe.CheckNow(ctx))

	status.Store(http.StatusNotFound)
	assert.True(t, probe.CheckNow(ctx))

	status.Store(http.StatusBadGateway)
	assert.False(t, probe.CheckNow(ctx))

	assert.False(t, (&HTTPProbe{URL: "://bad"}).CheckNow(ctx))
}
