package metrics

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServerServesMetrics(t *testing.T) {
	drops := QueueDropsTotal.WithLabelValues("TEST_QUEUE")
	drops.Add(3)
	want := fmt.Sprintf(`sourcewatch_queue_drops_total{queue="TEST_QUEUE"} %v`, testutil.ToFloat64(drops))

	s := NewServer("127.0.0.1:0", "")
	require.NoError(t, s.Start())
	defer s.Stop(context.Background())

	resp, err := http.Get("http://" + s.Addr() + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), want)
}

func TestServerStartBindError(t *testing.T) {
	first := NewServer("127.0.0.1:0", "/m")
	require.NoError(t, first.Start())
	defer first.Stop(context.Background())

	second := NewServer(first.Addr(), "/m")
	assert.Error(t, second.Start())
}

func TestServerStopBeforeStart(t *testing.T) {
	assert.NoError(t, NewServer(":0", "").Stop(context.Background()))
}
