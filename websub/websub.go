// Package websub subscribes to a channel's upload feed on a WebSub (PubSubHubbub) hub and
// parses the Atom notifications the hub pushes back.
package websub

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/onnwee/streamsync/telemetry"
)

// TopicURL is the feed a channel's uploads are published to.
func TopicURL(channelID string) string {
	return "https://www.youtube.com/xml/feeds/videos.xml?channel_id=" + url.QueryEscape(channelID)
}

// DefaultMaxTries is the Subscribe attempt budget when Client.MaxTries is zero.
const DefaultMaxTries = 3

// Client issues subscription requests to a hub.
type Client struct {
	HubURL     string
	HTTPClient *http.Client
	// MaxTries bounds attempts per Subscribe; zero means DefaultMaxTries.
	MaxTries uint
	// InitialInterval is the first retry delay; zero uses the backoff default.
	InitialInterval time.Duration
}

// NewClient returns a Client with an instrumented HTTP transport.
func NewClient(hubURL string, timeout time.Duration) *Client {
	return &Client{
		HubURL:     hubURL,
		HTTPClient: &http.Client{Timeout: timeout, Transport: otelhttp.NewTransport(http.DefaultTransport)},
	}
}

// Subscribe asks the hub to deliver topic notifications to callback. The hub verifies
// asynchronously, so success only means the request was accepted. 5xx and transport
// errors are retried with exponential backoff; 4xx responses are not.
func (c *Client) Subscribe(ctx context.Context, callback, topic string) error {
	form := url.Values{
		"hub.callback": {callback},
		"hub.topic":    {topic},
		"hub.mode":     {"subscribe"},
		"hub.verify":   {"async"},
	}
	hc := c.HTTPClient
	if hc == nil {
		hc = http.DefaultClient
	}
	tries := c.MaxTries
	if tries == 0 {
		tries = DefaultMaxTries
	}
	b := backoff.NewExponentialBackOff()
	if c.InitialInterval > 0 {
		b.InitialInterval = c.InitialInterval
	}

	attempt := 0
	op := func() (struct{}, error) {
		attempt++
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.HubURL, strings.NewReader(form.Encode()))
		if err != nil {
			return struct{}{}, backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		resp, err := hc.Do(req)
		if err != nil {
			slog.Debug("hub subscribe attempt failed", slog.Int("attempt", attempt), slog.Any("err", err), slog.String("component", "websub"))
			return struct{}{}, err
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return struct{}{}, nil
		}
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		err = fmt.Errorf("hub responded %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
		if resp.StatusCode < 500 {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	}

	_, err := backoff.Retry(ctx, op, backoff.WithBackOff(b), backoff.WithMaxTries(tries))
	if err != nil {
		telemetry.CountUpstreamFailure("subscribe")
		return fmt.Errorf("websub subscribe: %w", err)
	}
	slog.Info("websub subscription requested", slog.String("topic", topic), slog.String("callback", callback), slog.String("component", "websub"))
	return nil
}
