// Package youtubeapi wraps the YouTube Data API v3 for the two reads the sync paths need:
// channel event searches (live / completed) and single video detail lookups. Requests
// authenticate with an API key; no user OAuth flow is involved.
package youtubeapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"google.golang.org/api/googleapi/transport"
	"google.golang.org/api/option"
	yt "google.golang.org/api/youtube/v3"

	"github.com/onnwee/streamsync/telemetry"
)

// ErrNotConfigured is returned by calls made on a client built without an API key.
var ErrNotConfigured = errors.New("youtube api key not configured")

// EventType selects broadcasts by their live state.
type EventType string

const (
	EventLive      EventType = "live"
	EventCompleted EventType = "completed"
)

// Options configures New.
type Options struct {
	APIKey string
	// BaseURL overrides the API root (tests point it at an httptest server).
	BaseURL string
	// Timeout bounds each call; zero means 10s.
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Client issues read-only Data API calls.
type Client struct {
	svc     *yt.Service
	timeout time.Duration
}

// VideoSummary is one search hit.
type VideoSummary struct {
	VideoID     string
	Title       string
	Thumbnail   string
	PublishedAt string
}

// VideoDetails is the subset of a videos.list item the webhook path uses.
type VideoDetails struct {
	VideoID              string
	Title                string
	Thumbnail            string
	PublishedAt          string
	Duration             string
	LiveBroadcastContent string
}

// IsLive reports whether the platform marks the video as currently broadcasting.
func (d *VideoDetails) IsLive() bool { return d.LiveBroadcastContent == "live" }

// New builds a client. A blank APIKey yields a client whose Configured reports false.
func New(ctx context.Context, opts Options) (*Client, error) {
	c := &Client{timeout: opts.Timeout}
	if c.timeout <= 0 {
		c.timeout = 10 * time.Second
	}
	key := strings.TrimSpace(opts.APIKey)
	if key == "" {
		return c, nil
	}

	base := http.DefaultTransport
	if opts.HTTPClient != nil && opts.HTTPClient.Transport != nil {
		base = opts.HTTPClient.Transport
	}
	hc := &http.Client{Transport: &transport.APIKey{Key: key, Transport: otelhttp.NewTransport(base)}}

	clientOpts := []option.ClientOption{option.WithHTTPClient(hc)}
	if opts.BaseURL != "" {
		endpoint := opts.BaseURL
		if !strings.HasSuffix(endpoint, "/") {
			endpoint += "/"
		}
		clientOpts = append(clientOpts, option.WithEndpoint(endpoint))
	}
	svc, err := yt.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("youtube service: %w", err)
	}
	c.svc = svc
	return c, nil
}

// Configured reports whether the client has a credential.
func (c *Client) Configured() bool { return c != nil && c.svc != nil }

// SearchEvents lists up to max videos of channelID in the given event state.
func (c *Client) SearchEvents(ctx context.Context, channelID string, event EventType, max int64) ([]VideoSummary, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}
	call := "search_" + string(event)
	ctx, span := telemetry.StartSpan(ctx, "youtubeapi", "youtube.search",
		attribute.String("youtube.event_type", string(event)),
		attribute.String("youtube.channel_id", channelID))
	defer span.End()
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	resp, err := c.svc.Search.List([]string{"snippet"}).
		ChannelId(channelID).
		Type("video").
		EventType(string(event)).
		MaxResults(max).
		Context(ctx).
		Do()
	telemetry.ObserveUpstream(call, time.Since(start))
	if err != nil {
		telemetry.CountUpstreamFailure(call)
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("youtube search %s: %w", event, err)
	}

	out := make([]VideoSummary, 0, len(resp.Items))
	for _, item := range resp.Items {
		if item.Id == nil || item.Id.VideoId == "" || item.Snippet == nil {
			continue
		}
		out = append(out, VideoSummary{
			VideoID:     item.Id.VideoId,
			Title:       item.Snippet.Title,
			Thumbnail:   BestThumbnail(item.Snippet.Thumbnails),
			PublishedAt: item.Snippet.PublishedAt,
		})
	}
	telemetry.SetSpanSuccess(span)
	return out, nil
}

// Video fetches details for one video. It returns nil, nil when the platform does not know the id.
func (c *Client) Video(ctx context.Context, videoID string) (*VideoDetails, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}
	ctx, span := telemetry.StartSpan(ctx, "youtubeapi", "youtube.videos", attribute.String("youtube.video_id", videoID))
	defer span.End()
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	resp, err := c.svc.Videos.List([]string{"snippet", "contentDetails", "liveStreamingDetails"}).
		Id(videoID).
		Context(ctx).
		Do()
	telemetry.ObserveUpstream("video", time.Since(start))
	if err != nil {
		telemetry.CountUpstreamFailure("video")
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("youtube video %s: %w", videoID, err)
	}
	if len(resp.Items) == 0 || resp.Items[0].Snippet == nil {
		return nil, nil
	}

	v := resp.Items[0]
	d := &VideoDetails{
		VideoID:              v.Id,
		Title:                v.Snippet.Title,
		Thumbnail:            BestThumbnail(v.Snippet.Thumbnails),
		PublishedAt:          v.Snippet.PublishedAt,
		LiveBroadcastContent: v.Snippet.LiveBroadcastContent,
	}
	if d.VideoID == "" {
		d.VideoID = videoID
	}
	if v.ContentDetails != nil {
		d.Duration = v.ContentDetails.Duration
	}
	telemetry.SetSpanSuccess(span)
	return d, nil
}

// BestThumbnail picks high, then medium, then default resolution.
func BestThumbnail(t *yt.ThumbnailDetails) string {
	if t == nil {
		return ""
	}
	for _, th := range []*yt.Thumbnail{t.High, t.Medium, t.Default} {
		if th != nil && th.Url != "" {
			return th.Url
		}
	}
	return ""
}
