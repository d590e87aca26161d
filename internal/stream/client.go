// Package stream consumes the server's update stream and delivers decoded
// messages in arrival order.
package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"pkt.systems/cellview/internal/version"
	"pkt.systems/cellview/schema"
	"pkt.systems/pslog"
)

// DefaultPath is the stream endpoint of the server.
const DefaultPath = "/getnext"

// Config configures the stream client.
type Config struct {
	// URL is the server base URL, e.g. http://localhost:8000.
	URL string
	// Path is appended to URL. Defaults to DefaultPath.
	Path           string
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	// HTTPClient defaults to a client without timeout.
	HTTPClient *http.Client
}

// Client reads the update stream and reconnects when it drops.
type Client struct {
	endpoint string
	http     *http.Client
	initial  time.Duration
	max      time.Duration
	lastID   string
	retry    time.Duration
}

// ErrStatus is returned for a non-200 stream response.
var ErrStatus = errors.New("unexpected stream status")

// New validates cfg and returns a Client.
func New(cfg Config) (*Client, error) {
	base := strings.TrimSpace(cfg.URL)
	if base == "" {
		return nil, errors.New("stream url is required")
	}
	parsed, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("parse stream url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("stream url %q: scheme must be http or https", base)
	}
	path := cfg.Path
	if path == "" {
		path = DefaultPath
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	parsed.Path = strings.TrimSuffix(parsed.Path, "/") + path
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	initial := cfg.InitialBackoff
	if initial <= 0 {
		initial = 500 * time.Millisecond
	}
	maxBackoff := cfg.MaxBackoff
	if maxBackoff <= 0 {
		maxBackoff = 30 * time.Second
	}
	if maxBackoff < initial {
		maxBackoff = initial
	}
	return &Client{
		endpoint: parsed.String(),
		http:     client,
		initial:  initial,
		max:      maxBackoff,
	}, nil
}

// Endpoint returns the resolved stream URL.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// Run streams messages into out until ctx is done. Connection failures are
// retried with exponential backoff; a server supplied retry interval takes
// precedence when it is longer. Run returns nil when ctx is cancelled.
func (c *Client) Run(ctx context.Context, out chan<- schema.Message) error {
	log := pslog.Ctx(ctx).With("endpoint", c.endpoint)
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.initial
	bo.MaxInterval = c.max
	bo.Reset()
	for {
		delivered, err := c.connect(ctx, out)
		if ctx.Err() != nil {
			log.Info("stream stopped")
			return nil
		}
		if delivered > 0 {
			bo.Reset()
		}
		wait := bo.NextBackOff()
		if c.retry > wait {
			wait = c.retry
		}
		if err != nil {
			log.Warn("stream disconnected", "error", err, "delivered", delivered, "retry_in", wait)
		} else {
			log.Info("stream ended", "delivered", delivered, "retry_in", wait)
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			log.Info("stream stopped")
			return nil
		case <-timer.C:
		}
	}
}

func (c *Client) connect(ctx context.Context, out chan<- schema.Message) (int, error) {
	log := pslog.Ctx(ctx)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("User-Agent", version.UserAgent())
	req.Header.Set("Cache-Control", "no-cache")
	if c.lastID != "" {
		req.Header.Set("Last-Event-ID", c.lastID)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return 0, fmt.Errorf("%w: %s", ErrStatus, resp.Status)
	}
	log.Info("stream connected", "endpoint", c.endpoint, "last_id", c.lastID)

	reader := NewReader(resp.Body)
	delivered := 0
	for {
		event, err := reader.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return delivered, nil
			}
			return delivered, err
		}
		if event.Retry > 0 {
			c.retry = event.Retry
		}
		if event.Data == "" && event.Type == "" {
			continue
		}
		if id := reader.LastID(); id != "" {
			c.lastID = id
		}
		if event.Type != "message" {
			log.Trace("stream event ignored", "type", event.Type)
			continue
		}
		msg, err := schema.DecodeMessage([]byte(event.Data))
		if err != nil {
			log.Warn("stream payload skipped", "error", err, "id", event.ID)
			continue
		}
		select {
		case out <- msg:
			delivered++
		case <-ctx.Done():
			return delivered, ctx.Err()
		}
	}
}
