// Package webhook handles the push side of sync: hub subscription verification and Atom
// notifications that name a single video to refresh.
package webhook

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/onnwee/streamsync/stream"
	"github.com/onnwee/streamsync/telemetry"
	"github.com/onnwee/streamsync/websub"
	"github.com/onnwee/streamsync/youtubeapi"
)

var (
	// ErrInvalidVerification is returned for a verification request that is not a subscribe
	// confirmation or carries no challenge.
	ErrInvalidVerification = errors.New("invalid verification request")
	// ErrMissingAPIKey means a notification arrived but the platform cannot be queried.
	ErrMissingAPIKey = errors.New("API key missing")
)

// Outcome classifies a handled notification.
type Outcome int

const (
	NoOp Outcome = iota
	Processed
)

func (o Outcome) String() string {
	if o == Processed {
		return "processed"
	}
	return "noop"
}

// VideoLookup fetches one video's details; nil, nil means the platform does not know it.
type VideoLookup interface {
	Configured() bool
	Video(ctx context.Context, videoID string) (*youtubeapi.VideoDetails, error)
}

// Upserter writes a single payload.
type Upserter interface {
	Upsert(ctx context.Context, p stream.Payload) (int64, error)
}

// Receiver turns hub callbacks into upserts.
type Receiver struct {
	lookup   VideoLookup
	upserter Upserter
}

func NewReceiver(lookup VideoLookup, upserter Upserter) *Receiver {
	return &Receiver{lookup: lookup, upserter: upserter}
}

// Verify answers the hub's intent check. Only subscribe confirmations are echoed.
func (r *Receiver) Verify(mode, challenge string) (string, error) {
	if mode != "subscribe" || challenge == "" {
		return "", ErrInvalidVerification
	}
	return challenge, nil
}

// Notify processes one pushed feed body. Bodies with nothing actionable (no entry, no video
// id, unparseable XML, tombstones, a video the platform no longer knows, or a video with no
// usable publish time) are NoOp. Only the first entry is considered.
func (r *Receiver) Notify(ctx context.Context, body []byte) (Outcome, error) {
	ctx, span := telemetry.StartSpan(ctx, "webhook", "webhook.notify")
	defer span.End()
	log := telemetry.LoggerWithCorr(ctx).With(slog.String("component", "webhook"))

	feed, err := websub.ParseFeed(body)
	if err != nil {
		log.Info("ignoring unparseable notification", slog.Any("err", err))
		return r.done(span, NoOp, nil)
	}
	if len(feed.Entries) == 0 {
		if len(feed.Deleted) > 0 {
			log.Info("ignoring deleted-entry notification", slog.String("video_id", feed.Deleted[0].VideoID()))
		} else {
			log.Info("no entry found in notification")
		}
		return r.done(span, NoOp, nil)
	}
	entry := feed.Entries[0]
	if entry.VideoID == "" {
		log.Info("no video id in notification")
		return r.done(span, NoOp, nil)
	}
	span.SetAttributes(attribute.String("youtube.video_id", entry.VideoID))
	log = log.With(slog.String("video_id", entry.VideoID))
	log.Info("notification received", slog.String("title", entry.Title))

	if !r.lookup.Configured() {
		log.Error("youtube api key not configured")
		return r.done(span, NoOp, ErrMissingAPIKey)
	}

	v, err := r.lookup.Video(ctx, entry.VideoID)
	if err != nil {
		log.Error("failed to fetch video details", slog.Any("err", err))
		return r.done(span, NoOp, fmt.Errorf("fetch video details: %w", err))
	}
	if v == nil {
		log.Info("video not found")
		return r.done(span, NoOp, nil)
	}

	published := v.PublishedAt
	if published == "" {
		published = entry.Published
	}
	p := stream.Payload{
		VideoID:     entry.VideoID,
		Title:       v.Title,
		Thumbnail:   v.Thumbnail,
		PublishedAt: published,
		Duration:    stream.KnownDuration(v.Duration),
		IsLive:      v.IsLive(),
	}
	if _, err := r.upserter.Upsert(ctx, p); err != nil {
		if errors.Is(err, stream.ErrInvalidPayload) {
			log.Info("ignoring unstorable notification", slog.Any("err", err))
			return r.done(span, NoOp, nil)
		}
		log.Error("upsert failed", slog.Any("err", err))
		return r.done(span, NoOp, err)
	}
	log.Info("stream upserted", slog.Bool("is_live", p.IsLive))
	return r.done(span, Processed, nil)
}

func (r *Receiver) done(span trace.Span, o Outcome, err error) (Outcome, error) {
	if err != nil {
		telemetry.CountWebhook("error")
		telemetry.RecordError(span, err)
		return o, err
	}
	telemetry.CountWebhook(o.String())
	telemetry.SetSpanSuccess(span)
	return o, nil
}
