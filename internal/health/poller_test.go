package health

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bhandras/qachat/internal/gateway"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestClassify(t *testing.T) {
	require.Equal(t, StatusError, Classify(nil, errors.New("down")))
	require.Equal(t, StatusError, Classify(nil, nil))
	require.Equal(t, StatusReady, Classify(&gateway.HealthResponse{Status: "healthy", SystemReady: true}, nil))
	require.Equal(t, StatusInitializing, Classify(&gateway.HealthResponse{Status: "healthy"}, nil))
	require.Equal(t, StatusInitializing, Classify(&gateway.HealthResponse{Status: "degraded", SystemReady: true}, nil))
}

type recorder struct {
	mu  sync.Mutex
	got []Status
}

func (r *recorder) record(s Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, s)
}

func (r *recorder) statuses() []Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Status(nil), r.got...)
}

func TestPollerReportsTransitionsOnly(t *testing.T) {
	var ready atomic.Bool
	var probes atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/health", r.URL.Path)
		probes.Add(1)
		w.Header().Set("Content-Type", "application/json")
		if ready.Load() {
			_, _ = w.Write([]byte(`{"status":"healthy","system_ready":true}`))
			return
		}
		_, _ = w.Write([]byte(`{"status":"healthy","system_ready":false}`))
	}))
	defer srv.Close()

	client := gateway.New(srv.URL+"/api", gateway.WithHTTPClient(srv.Client()))
	rec := &recorder{}
	p := NewPoller(client, 5*time.Millisecond, rec.record)
	p.Start(context.Background())
	p.Start(context.Background())
	defer p.Stop()

	require.Eventually(t, func() bool { return probes.Load() >= 3 }, time.Second, time.Millisecond)
	require.Equal(t, []Status{StatusInitializing}, rec.statuses())

	ready.Store(true)
	require.Eventually(t, func() bool { return p.Status() == StatusReady }, time.Second, time.Millisecond)
	require.Equal(t, []Status{StatusInitializing, StatusReady}, rec.statuses())
}

func TestPollerUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	p := NewPoller(gateway.New(url), time.Hour, nil)
	require.Equal(t, StatusUnknown, p.Status())
	require.Equal(t, StatusError, p.Probe(context.Background()))
	require.Equal(t, StatusError, p.Status())
}

type blockingClient struct {
	entered chan struct{}
}

func (c blockingClient) Health(ctx context.Context) (*gateway.HealthResponse, error) {
	close(c.entered)
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestPollerStopCancelsInFlightProbe(t *testing.T) {
	c := blockingClient{entered: make(chan struct{})}
	p := NewPoller(c, 0, func(Status) { t.Error("no status change expected") })
	require.Equal(t, DefaultInterval, p.interval)

	p.Start(context.Background())
	<-c.entered
	p.Stop()
	p.Stop()
	require.Equal(t, StatusUnknown, p.Status())
}
