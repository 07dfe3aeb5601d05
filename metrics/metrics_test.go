package metrics_test

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wricardo/bridge/bridge/service"
	"github.com/wricardo/bridge/metrics"
)

// MockSource implements metrics.Source
type MockSource struct {
	StatsFunc   func() service.Stats
	ClientsFunc func() []service.ClientStatus
}

func (m *MockSource) Stats() service.Stats {
	if m.StatsFunc != nil {
		return m.StatsFunc()
	}
	return service.Stats{}
}

func (m *MockSource) ClientStatusList() []service.ClientStatus {
	if m.ClientsFunc != nil {
		return m.ClientsFunc()
	}
	return []service.ClientStatus{}
}

func TestCollectorActiveBridge(t *testing.T) {
	src := &MockSource{
		StatsFunc: func() service.Stats {
			return service.Stats{
				State:                service.StateActive,
				Restarts:             2,
				BindFailures:         1,
				LiveSessions:         3,
				RegisteredIdentities: 2,
				BoundAt:              time.Unix(1700000000, 0),
			}
		},
		ClientsFunc: func() []service.ClientStatus {
			return []service.ClientStatus{{Identity: "bob", SessionID: 7}}
		},
	}

	expected := `
# HELP bridge_acceptor_active Whether the acceptor is bound and accepting (1) or not (0).
# TYPE bridge_acceptor_active gauge
bridge_acceptor_active 1
# HELP bridge_acceptor_bound_timestamp_seconds Unix time the current acceptor was bound, 0 when there is none.
# TYPE bridge_acceptor_bound_timestamp_seconds gauge
bridge_acceptor_bound_timestamp_seconds 1.7e+09
# HELP bridge_acceptor_restarts_total Acceptor restarts requested.
# TYPE bridge_acceptor_restarts_total counter
bridge_acceptor_restarts_total 2
# HELP bridge_bind_failures_total Failed attempts to bind the acceptor.
# TYPE bridge_bind_failures_total counter
bridge_bind_failures_total 1
# HELP bridge_connected_clients Identified clients with a live session.
# TYPE bridge_connected_clients gauge
bridge_connected_clients 1
# HELP bridge_live_sessions Sessions in the acceptor's live table.
# TYPE bridge_live_sessions gauge
bridge_live_sessions 3
# HELP bridge_registered_identities Entries in the identity registry, including stale ones.
# TYPE bridge_registered_identities gauge
bridge_registered_identities 2
`
	err := testutil.CollectAndCompare(metrics.NewCollector(src), strings.NewReader(expected))
	assert.NoError(t, err)
}

func TestCollectorInactiveBridge(t *testing.T) {
	src := &MockSource{
		StatsFunc: func() service.Stats {
			return service.Stats{State: service.StateInactive, BindFailures: 4}
		},
	}

	expected := `
# HELP bridge_acceptor_active Whether the acceptor is bound and accepting (1) or not (0).
# TYPE bridge_acceptor_active gauge
bridge_acceptor_active 0
# HELP bridge_acceptor_bound_timestamp_seconds Unix time the current acceptor was bound, 0 when there is none.
# TYPE bridge_acceptor_bound_timestamp_seconds gauge
bridge_acceptor_bound_timestamp_seconds 0
`
	err := testutil.CollectAndCompare(metrics.NewCollector(src), strings.NewReader(expected),
		"bridge_acceptor_active", "bridge_acceptor_bound_timestamp_seconds")
	assert.NoError(t, err)
}

func TestFramesCounters(t *testing.T) {
	frames := metrics.NewFrames()
	frames.RecordReceived("login")
	frames.RecordReceived("login")
	frames.RecordRejected("login")

	reg, err := metrics.NewRegistry(&MockSource{}, frames)
	require.NoError(t, err)

	expected := `
# HELP bridge_frames_received_total Client frames received, by type.
# TYPE bridge_frames_received_total counter
bridge_frames_received_total{type="login"} 2
# HELP bridge_frames_rejected_total Client frames answered with an error, by type.
# TYPE bridge_frames_rejected_total counter
bridge_frames_rejected_total{type="login"} 1
`
	err = testutil.GatherAndCompare(reg, strings.NewReader(expected),
		"bridge_frames_received_total", "bridge_frames_rejected_total")
	assert.NoError(t, err)
}

func TestNewRegistryIncludesRuntimeCollectors(t *testing.T) {
	reg, err := metrics.NewRegistry(&MockSource{}, nil)
	require.NoError(t, err)

	families, err := reg.Gather()
	require.NoError(t, err)

	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["go_goroutines"])
	assert.True(t, names["bridge_acceptor_active"])
}
