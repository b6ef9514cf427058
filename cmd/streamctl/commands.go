package main

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/onnwee/streamsync/app"
	"github.com/onnwee/streamsync/config"
	"github.com/onnwee/streamsync/db"
	"github.com/onnwee/streamsync/stream"
	"github.com/onnwee/streamsync/websub"
)

func newMigrateCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:       "migrate [up|down|version]",
		Short:     "Apply, roll back or inspect schema migrations",
		Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"up", "down", "version"},
		RunE: func(cmd *cobra.Command, args []string) error {
			action := "up"
			if len(args) == 1 {
				action = args[0]
			}
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			dialect, err := db.ParseDialect(cfg.DBDriver)
			if err != nil {
				return err
			}
			database, err := db.Connect(dialect, cfg.DBDsn)
			if err != nil {
				return err
			}
			defer func() { _ = database.Close() }()

			switch action {
			case "up":
				if err := db.Setup(cmd.Context(), database, dialect); err != nil {
					return err
				}
			case "down":
				if err := db.MigrateDown(database, dialect); err != nil {
					return err
				}
			}
			version, dirty, err := db.GetMigrationVersion(database, dialect)
			if err != nil {
				return err
			}
			out := map[string]any{"driver": string(dialect), "version": version, "dirty": dirty}
			return emit(cmd.OutOrStdout(), opts, out, func(w io.Writer) {
				fmt.Fprintf(w, "%s schema version %d (dirty=%t)\n", dialect, version, dirty)
			})
		},
	}
}

func newSyncCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Run one poll cycle against the platform",
		Long: `Run one poll cycle: search live and completed broadcasts, upsert them, renew the
hub subscription and record the sync time. Exits non-zero only when the API key is missing.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(a *app.App) error {
				res, err := a.Sync.Run(cmd.Context())
				if err != nil {
					return err
				}
				out := map[string]any{
					"success":   true,
					"synced":    res.Synced,
					"status":    res.Status(),
					"timestamp": res.Timestamp.Format(time.RFC3339Nano),
				}
				if res.LiveErr != nil {
					out["live_error"] = res.LiveErr.Error()
				}
				if res.CompletedErr != nil {
					out["completed_error"] = res.CompletedErr.Error()
				}
				if res.SubscribeErr != nil {
					out["subscribe_error"] = res.SubscribeErr.Error()
				}
				return emit(cmd.OutOrStdout(), opts, out, func(w io.Writer) {
					fmt.Fprintf(w, "synced %d streams (%s) at %s\n", res.Synced, res.Status(), out["timestamp"])
				})
			})
		},
	}
}

func newSubscribeCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "subscribe",
		Short: "Ask the hub to push channel notifications to the webhook",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(a *app.App) error {
				callback := a.Config.CallbackURL()
				topic := websub.TopicURL(a.Config.YouTubeChannelID)
				if err := a.Hub.Subscribe(cmd.Context(), callback, topic); err != nil {
					return err
				}
				out := map[string]any{"callback": callback, "topic": topic}
				return emit(cmd.OutOrStdout(), opts, out, func(w io.Writer) {
					fmt.Fprintf(w, "subscription requested: %s -> %s\n", topic, callback)
				})
			})
		},
	}
}

func newListCommand(opts *RootOptions) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List cached streams, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(a *app.App) error {
				page, err := a.Reader.Recent(cmd.Context(), limit)
				if err != nil {
					return err
				}
				return emit(cmd.OutOrStdout(), opts, page.Streams, func(w io.Writer) {
					for _, rec := range page.Streams {
						printRecord(w, rec)
					}
				})
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", stream.DefaultLimit, "number of streams (max 50)")
	return cmd
}

func newGetCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get <video-id>",
		Short: "Show one cached stream",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(a *app.App) error {
				rec, err := a.Engine.Get(cmd.Context(), args[0])
				if err != nil {
					return fmt.Errorf("get %s: %w", args[0], err)
				}
				return emit(cmd.OutOrStdout(), opts, rec, func(w io.Writer) { printRecord(w, rec) })
			})
		},
	}
}

func newSetLiveCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "set-live <video-id> <true|false>",
		Short: "Override the live flag of a cached stream",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			live, err := strconv.ParseBool(args[1])
			if err != nil {
				return fmt.Errorf("invalid live flag %q", args[1])
			}
			return withApp(cmd, opts, func(a *app.App) error {
				id, ok, err := a.Engine.SetLiveStatus(cmd.Context(), args[0], live)
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("set-live %s: %w", args[0], stream.ErrNotFound)
				}
				out := map[string]any{"id": id, "videoId": args[0], "isLive": live}
				return emit(cmd.OutOrStdout(), opts, out, func(w io.Writer) {
					fmt.Fprintf(w, "%s live=%t\n", args[0], live)
				})
			})
		},
	}
}

func printRecord(w io.Writer, rec stream.Record) {
	live := ""
	if rec.IsLive {
		live = " [LIVE]"
	}
	dur := rec.Duration
	if dur == "" {
		dur = "-"
	}
	fmt.Fprintf(w, "%s  %s  %s  %s%s\n", rec.VideoID, rec.PublishedAt, dur, rec.Title, live)
}
