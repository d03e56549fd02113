package influxdb

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"

	"github.com/nerrad567/gray-logic-echonet/internal/infrastructure/config"
)

const (
	pingTimeout = 10 * time.Second

	fallbackBatchSize      = 100
	fallbackFlushIntervalS = 10
	msPerSecond            = 1000
)

// Client is the bridge's telemetry sink. Points are queued on the library's
// batched write API, so WriteState never blocks the poller.
type Client struct {
	client   influxdb2.Client
	writeAPI api.WriteAPI

	closed atomic.Bool

	errMu   sync.RWMutex
	onError func(err error)
}

// Connect pings the server once and opens the write API for cfg.Org and
// cfg.Bucket. A disabled section yields ErrDisabled so callers can skip
// telemetry without treating it as a failure.
func Connect(ctx context.Context, cfg config.InfluxDBConfig) (*Client, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	batch := uint(positiveOr(cfg.BatchSize, fallbackBatchSize))                       // #nosec G115 -- positive
	flushMs := uint(positiveOr(cfg.FlushInterval, fallbackFlushIntervalS)) * msPerSecond // #nosec G115 -- positive
	opts := influxdb2.DefaultOptions().SetBatchSize(batch).SetFlushInterval(flushMs)
	client := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token, opts)

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	ok, err := client.Ping(pingCtx)
	switch {
	case err != nil:
		client.Close()
		return nil, fmt.Errorf("%w: %s: %w", ErrConnectionFailed, cfg.URL, err)
	case !ok:
		client.Close()
		return nil, fmt.Errorf("%w: %s reported unhealthy", ErrConnectionFailed, cfg.URL)
	}

	c := &Client{
		client:   client,
		writeAPI: client.WriteAPI(cfg.Org, cfg.Bucket),
	}
	go c.forwardErrors(c.writeAPI.Errors())
	return c, nil
}

func positiveOr(v, fallback int) int {
	if v > 0 {
		return v
	}
	return fallback
}

// forwardErrors hands async write failures to the OnError callback until
// the write API is closed.
func (c *Client) forwardErrors(errs <-chan error) {
	for err := range errs {
		c.errMu.RLock()
		fn := c.onError
		c.errMu.RUnlock()
		if fn != nil {
			fn(err)
		}
	}
}

// SetOnError registers the callback for failed batch writes.
func (c *Client) SetOnError(fn func(err error)) {
	c.errMu.Lock()
	c.onError = fn
	c.errMu.Unlock()
}

// active reports whether points are still accepted.
func (c *Client) active() bool {
	return c.writeAPI != nil && !c.closed.Load()
}

// Flush pushes queued points out now. No-op once closed.
func (c *Client) Flush() {
	if c.active() {
		c.writeAPI.Flush()
	}
}

// Close writes what is queued and releases the client. Later WriteState
// calls are dropped. Safe to call more than once and on a zero Client.
func (c *Client) Close() error {
	if c.client == nil || c.closed.Swap(true) {
		return nil
	}
	c.writeAPI.Flush()
	c.client.Close()
	return nil
}
