// Package syncjob implements the scheduled poll: query the platform for a channel's live and
// completed broadcasts, write them through the upsert engine, and renew the push subscription.
package syncjob

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/onnwee/streamsync/stream"
	"github.com/onnwee/streamsync/telemetry"
	"github.com/onnwee/streamsync/websub"
	"github.com/onnwee/streamsync/youtubeapi"
)

// ErrMissingAPIKey is a configuration error: the platform credential is absent.
var ErrMissingAPIKey = errors.New("API key missing")

// LastSyncKey is the kv key the completion time of the last run is stored under.
const LastSyncKey = "streams:last_sync"

// Platform is the read side of the video platform.
type Platform interface {
	Configured() bool
	SearchEvents(ctx context.Context, channelID string, event youtubeapi.EventType, max int64) ([]youtubeapi.VideoSummary, error)
}

// Upserter writes a batch of payloads.
type Upserter interface {
	UpsertBatch(ctx context.Context, payloads []stream.Payload) ([]int64, error)
}

// Subscriber renews the push subscription.
type Subscriber interface {
	Subscribe(ctx context.Context, callback, topic string) error
}

// Marker persists the time of the last run. Optional.
type Marker interface {
	Mark(ctx context.Context, key string, t time.Time) error
}

// Options configures a Job.
type Options struct {
	ChannelID           string
	CallbackURL         string
	LiveMaxResults      int64
	CompletedMaxResults int64
	Marker              Marker
	Now                 func() time.Time
}

// Result reports one run. Per-call errors are recorded but never fail the run.
type Result struct {
	Timestamp    time.Time
	LiveErr      error
	CompletedErr error
	SubscribeErr error
	UpsertErr    error
	Synced       int
}

// Status summarizes the result for metrics: ok, partial or error.
func (r Result) Status() string {
	failed := 0
	for _, err := range []error{r.LiveErr, r.CompletedErr, r.UpsertErr} {
		if err != nil {
			failed++
		}
	}
	switch {
	case failed == 0:
		return "ok"
	case r.LiveErr != nil && r.CompletedErr != nil:
		return "error"
	default:
		return "partial"
	}
}

// Job runs one poll cycle per Run call.
type Job struct {
	platform Platform
	upserter Upserter
	sub      Subscriber
	opts     Options
}

// New builds a Job. sub may be nil to skip subscription renewal.
func New(platform Platform, upserter Upserter, sub Subscriber, opts Options) *Job {
	if opts.LiveMaxResults <= 0 {
		opts.LiveMaxResults = 5
	}
	if opts.CompletedMaxResults <= 0 || opts.CompletedMaxResults > 50 {
		opts.CompletedMaxResults = 50
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Job{platform: platform, upserter: upserter, sub: sub, opts: opts}
}

func toPayloads(items []youtubeapi.VideoSummary, live bool) []stream.Payload {
	out := make([]stream.Payload, 0, len(items))
	for _, it := range items {
		out = append(out, stream.Payload{
			VideoID:     it.VideoID,
			Title:       it.Title,
			Thumbnail:   it.Thumbnail,
			PublishedAt: it.PublishedAt,
			Duration:    stream.UnknownDuration(),
			IsLive:      live,
		})
	}
	return out
}

// Run performs one cycle. It returns ErrMissingAPIKey before any network call when the
// platform has no credential; every other failure is contained in Result.
func (j *Job) Run(ctx context.Context) (Result, error) {
	if !j.platform.Configured() {
		return Result{}, ErrMissingAPIKey
	}
	ctx, span := telemetry.StartSpan(ctx, "syncjob", "sync.run")
	defer span.End()
	log := telemetry.LoggerWithCorr(ctx).With(slog.String("component", "sync"))

	var (
		res       Result
		live      []youtubeapi.VideoSummary
		completed []youtubeapi.VideoSummary
	)
	took := telemetry.TimeFunc(telemetry.SyncDuration, func() {
		var g errgroup.Group
		g.Go(func() error {
			items, err := j.platform.SearchEvents(ctx, j.opts.ChannelID, youtubeapi.EventLive, j.opts.LiveMaxResults)
			if err != nil {
				res.LiveErr = err
				log.Warn("live search failed", slog.Any("err", err))
				return nil
			}
			live = items
			return nil
		})
		g.Go(func() error {
			items, err := j.platform.SearchEvents(ctx, j.opts.ChannelID, youtubeapi.EventCompleted, j.opts.CompletedMaxResults)
			if err != nil {
				res.CompletedErr = err
				log.Warn("completed search failed", slog.Any("err", err))
				return nil
			}
			completed = items
			return nil
		})
		_ = g.Wait()

		// Live first so a broadcast that ended mid-run converges on its completed entry.
		payloads := append(toPayloads(live, true), toPayloads(completed, false)...)
		if len(payloads) > 0 {
			ids, err := j.upserter.UpsertBatch(ctx, payloads)
			for _, id := range ids {
				if id != 0 {
					res.Synced++
				}
			}
			if err != nil {
				res.UpsertErr = err
				log.Warn("batch upsert had failures", slog.Int("failed", len(payloads)-res.Synced), slog.Any("err", err))
			}
		}

		if j.sub != nil {
			if err := j.sub.Subscribe(ctx, j.opts.CallbackURL, websub.TopicURL(j.opts.ChannelID)); err != nil {
				res.SubscribeErr = err
				log.Warn("webhook subscription failed", slog.Any("err", err))
			}
		}

		res.Timestamp = j.opts.Now().UTC()
		if j.opts.Marker != nil {
			if err := j.opts.Marker.Mark(ctx, LastSyncKey, res.Timestamp); err != nil {
				log.Warn("record last sync failed", slog.Any("err", err))
			}
		}
	})

	status := res.Status()
	telemetry.CountSyncRun(status, res.Synced, res.Timestamp)
	if status == "error" {
		telemetry.RecordError(span, fmt.Errorf("both searches failed: %w", errors.Join(res.LiveErr, res.CompletedErr)))
	} else {
		telemetry.SetSpanSuccess(span)
	}
	log.Info("sync finished",
		slog.Int("synced", res.Synced),
		slog.Int("live", len(live)),
		slog.Int("completed", len(completed)),
		slog.String("status", status),
		slog.Duration("took", took))
	return res, nil
}
