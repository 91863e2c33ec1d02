package main

import (
	"testing"
	"time"

	"tasksync/internal/config"
	"tasksync/internal/connectivity"
	"tasksync/internal/remote"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEngineOptions(t *testing.T) {
	opts := engineOptions(config.SyncConfig{RemoteTimeout: 5 * time.Second})
	assert.Equal(t, 5*time.Second, opts.RemoteTimeout)
	assert.Nil(t, opts.Retry)

	opts = engineOptions(config.SyncConfig{
		RemoteTimeout: time.Second,
		Retry: config.RetryConfig{
			Enabled:      true,
			MaxRetries:   3,
			InitialDelay: time.Second,
			MaxDelay:     10 * time.Second,
			Multiplier:   1.5,
		},
	})
	require.NotNil(t, opts.Retry)
	assert.Equal(t, 3, opts.Retry.MaxRetries)
	assert.Equal(t, 1.5, opts.Retry.BackoffFactor)
}

func TestNewProbe(t *testing.T) {
	assert.IsType(t, &connectivity.HTTPProbe{}, newProbe(config.ConnectivityConfig{Probe: "http", URL: "http://example.invalid"}))
	assert.IsType(t, &connectivity.TCPProbe{}, newProbe(config.ConnectivityConfig{Probe: "tcp", Address: "127.0.0.1:1"}))
}

func TestInitRemote(t *testing.T) {
	logger := zerolog.Nop()

	svc, closeFn, err := initRemote(&config.Config{Remote: config.RemoteConfig{Kind: "memory"}}, &logger)
	require.NoError(t, err)
	assert.IsType(t, &remote.Memory{}, svc)
	closeFn()

	svc, closeFn, err = initRemote(&config.Config{Remote: config.RemoteConfig{
		Kind: "http",
		HTTP: config.RemoteHTTPConfig{BaseURL: "http://127.0.0.1:1", RPS: 1, Burst: 1},
	}}, &logger)
	require.NoError(t, err)
	assert.IsType(t, &remote.HTTP{}, svc)
	closeFn()

	_, _, err = initRemote(&config.Config{Remote: config.RemoteConfig{Kind: "ftp"}}, &logger)
	assert.Error(t, err)
}
