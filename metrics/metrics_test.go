package metrics

import (
	"context"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestCollector_ObserveDecision(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := New(reg)

	c.ObserveDecision("", time.Millisecond)
	c.ObserveDecision("SWEAR", time.Millisecond)
	c.ObserveDecision("SWEAR", 2*time.Millisecond)
	c.IncAutoMutes()

	require.Equal(t, 1.0, testutil.ToFloat64(c.decisions.WithLabelValues("allow", "none")))
	require.Equal(t, 2.0, testutil.ToFloat64(c.decisions.WithLabelValues("deny", "SWEAR")))
	require.Equal(t, 1.0, testutil.ToFloat64(c.mutes))
	require.Equal(t, 1, testutil.CollectAndCount(c.duration))
}

func TestServer_ServesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := New(reg)
	c.ObserveDecision("CAPS", time.Millisecond)

	srv := httptest.NewServer(NewServer("", reg).Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), `chatguard_decisions_total{action="deny",reason="CAPS"} 1`)
}

func TestServer_RunStopsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- NewServer("127.0.0.1:0", prometheus.NewRegistry()).Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("metrics server did not stop")
	}
}
