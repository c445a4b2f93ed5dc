// Package health polls the service health endpoint and reports status
// transitions.
package health

import (
	"context"
	"sync"
	"time"

	"github.com/bhandras/qachat/internal/gateway"
	"github.com/bhandras/qachat/pkg/logger"
)

// DefaultInterval is the polling period used when none is configured.
const DefaultInterval = 30 * time.Second

// Status is the coarse service status shown to the user.
type Status string

const (
	// StatusUnknown is reported until the first probe completes.
	StatusUnknown Status = "unknown"
	// StatusReady means the service is healthy and its index is loaded.
	StatusReady Status = "ready"
	// StatusInitializing means the service answers but is not ready yet.
	StatusInitializing Status = "initializing"
	// StatusError means the probe failed or returned nothing usable.
	StatusError Status = "error"
)

// Client is the part of the gateway the poller needs.
type Client interface {
	Health(ctx context.Context) (*gateway.HealthResponse, error)
}

// Classify maps one probe outcome to a Status.
func Classify(resp *gateway.HealthResponse, err error) Status {
	switch {
	case err != nil || resp == nil:
		return StatusError
	case resp.Healthy():
		return StatusReady
	default:
		return StatusInitializing
	}
}

// Poller probes the health endpoint on a fixed period. OnChange is called
// from the polling goroutine whenever the status differs from the last
// probe.
type Poller struct {
	client   Client
	interval time.Duration
	onChange func(Status)

	mu      sync.Mutex
	status  Status
	cancel  context.CancelFunc
	stopped chan struct{}
}

// NewPoller builds a stopped poller. A non-positive interval means
// DefaultInterval.
func NewPoller(client Client, interval time.Duration, onChange func(Status)) *Poller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Poller{
		client:   client,
		interval: interval,
		onChange: onChange,
		status:   StatusUnknown,
	}
}

// Start probes once immediately and then every interval until Stop or ctx
// is done. Calling Start on a running poller does nothing.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.stopped = make(chan struct{})
	go p.loop(ctx, p.stopped)
}

// Stop cancels polling and waits for an in-flight probe to return.
func (p *Poller) Stop() {
	p.mu.Lock()
	cancel, stopped := p.cancel, p.stopped
	p.cancel, p.stopped = nil, nil
	p.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-stopped
}

// Status returns the result of the latest probe.
func (p *Poller) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

// Probe runs one health check and records its status.
func (p *Poller) Probe(ctx context.Context) Status {
	resp, err := p.client.Health(ctx)
	if ctx.Err() != nil {
		return p.Status()
	}
	next := Classify(resp, err)
	if err != nil {
		logger.Debugf("health: probe failed: %v", err)
	}

	p.mu.Lock()
	prev := p.status
	p.status = next
	p.mu.Unlock()

	if prev != next {
		logger.Infof("health: %s -> %s", prev, next)
		if p.onChange != nil {
			p.onChange(next)
		}
	}
	return next
}

func (p *Poller) loop(ctx context.Context, stopped chan struct{}) {
	defer close(stopped)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.Probe(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Probe(ctx)
		}
	}
}
