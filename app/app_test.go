package app

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onnwee/streamsync/config"
	"github.com/onnwee/streamsync/syncjob"
)

func TestOpenSQLiteWithoutAPIKey(t *testing.T) {
	ctx := context.Background()
	cfg := &config.Config{
		DBDriver:          "sqlite",
		DBDsn:             "file:" + filepath.Join(t.TempDir(), "app.db"),
		YouTubeChannelID:  "UC1",
		HubURL:            config.DefaultHubURL,
		UpstreamTimeout:   time.Second,
		UpsertConcurrency: 2,
	}
	a, err := Open(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	assert.False(t, a.YouTube.Configured())
	require.NoError(t, a.DB().PingContext(ctx))

	_, err = a.Sync.Run(ctx)
	assert.ErrorIs(t, err, syncjob.ErrMissingAPIKey)

	n, err := a.Store.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), &config.Config{DBDriver: "oracle"})
	assert.Error(t, err)
}
