package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
)

func TestHelpersAreSafeBeforeInit(t *testing.T) {
	if Upserts != nil {
		t.Skip("metrics already initialized by another test")
	}
	CountUpsert("created")
	CountSyncRun("ok", 3, time.Now())
	CountUpstreamFailure("live")
	CountWebhook("noop")
	ObserveUpstream("video", time.Second)
	UpdateDatabasePoolMetrics(1, 1)
}

func TestCountersIncrement(t *testing.T) {
	Init()

	before := testutil.ToFloat64(Upserts.WithLabelValues("created"))
	CountUpsert("created")
	CountUpsert("created")
	if got := testutil.ToFloat64(Upserts.WithLabelValues("created")); got != before+2 {
		t.Errorf("upserts{created} = %v, want %v", got, before+2)
	}

	beforeSynced := testutil.ToFloat64(StreamsSynced)
	CountSyncRun("ok", 4, time.Unix(1700000000, 0))
	if got := testutil.ToFloat64(StreamsSynced); got != beforeSynced+4 {
		t.Errorf("streams synced = %v, want %v", got, beforeSynced+4)
	}
	if got := testutil.ToFloat64(LastSyncTimestamp); got != 1700000000 {
		t.Errorf("last sync timestamp = %v", got)
	}

	beforeUnauth := testutil.ToFloat64(SyncRuns.WithLabelValues("unauthorized"))
	CountSyncRun("unauthorized", 0, time.Time{})
	if got := testutil.ToFloat64(SyncRuns.WithLabelValues("unauthorized")); got != beforeUnauth+1 {
		t.Errorf("sync runs{unauthorized} = %v, want %v", got, beforeUnauth+1)
	}
	if got := testutil.ToFloat64(LastSyncTimestamp); got != 1700000000 {
		t.Errorf("a run that never started moved last sync timestamp to %v", got)
	}

	CountWebhook("processed")
	if testutil.ToFloat64(WebhookNotifications.WithLabelValues("processed")) < 1 {
		t.Error("webhook counter not incremented")
	}
	CountUpstreamFailure("subscribe")
	if testutil.ToFloat64(UpstreamFailures.WithLabelValues("subscribe")) < 1 {
		t.Error("upstream failure counter not incremented")
	}
}

func TestDatabasePoolMetrics(t *testing.T) {
	Init()
	UpdateDatabasePoolMetrics(10, 5)
	if got := testutil.ToFloat64(DBConnsInUse); got != 5 {
		t.Errorf("in use = %v, want 5", got)
	}
}

func TestTimeFuncRecordsObservation(t *testing.T) {
	h := prometheus.NewHistogram(prometheus.HistogramOpts{Name: "test_duration_seconds", Help: "Test duration"})

	executed := false
	d := TimeFunc(h, func() {
		time.Sleep(10 * time.Millisecond)
		executed = true
	})
	if !executed {
		t.Error("TimeFunc did not execute provided function")
	}
	if d < 10*time.Millisecond {
		t.Errorf("TimeFunc duration = %v, want >= 10ms", d)
	}

	metric := &dto.Metric{}
	if err := h.Write(metric); err != nil {
		t.Fatalf("write metric: %v", err)
	}
	if metric.Histogram.GetSampleCount() != 1 {
		t.Errorf("sample count = %d, want 1", metric.Histogram.GetSampleCount())
	}
}

func TestCorrelation(t *testing.T) {
	ctx := context.Background()
	if GetCorrelation(ctx) != "" {
		t.Fatal("expected empty correlation")
	}
	ctx = WithCorrelation(ctx, "abc-123")
	if got := GetCorrelation(ctx); got != "abc-123" {
		t.Errorf("GetCorrelation = %q", got)
	}
	if LoggerWithCorr(ctx) == nil {
		t.Error("nil logger")
	}
}
