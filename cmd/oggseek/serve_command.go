package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/agleyzer/oggseek/internal/cluster"
	"github.com/agleyzer/oggseek/internal/logging"
	"github.com/agleyzer/oggseek/internal/playlist"
	"github.com/agleyzer/oggseek/internal/probe"
	"github.com/agleyzer/oggseek/internal/server"
)

// leaderTimeout bounds the wait for the first election.
const leaderTimeout = 30 * time.Second

func newServeCommand(ctx *commandContext) *cobra.Command {
	var (
		listen     string
		windowSize int
		loopAfter  string
		useIndex   bool
		raftID     string
		raftBind   string
		raftPeers  string
	)

	cmd := &cobra.Command{
		Use:   "serve <file>",
		Short: "Serve a file with its byte-range playlist and a seek endpoint",
		Long: "Serve a file with its byte-range playlist and a seek endpoint.\n\n" +
			"With --window-size the playlist is a live window that loops over the\n" +
			"file, otherwise it is a complete VOD playlist. With --raft-bind the\n" +
			"live window is shared with the other servers listed in --raft-peers.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if windowSize < 0 {
				return fmt.Errorf("window size must not be negative")
			}
			if raftBind != "" && windowSize == 0 {
				return fmt.Errorf("--raft-bind requires a live window (--window-size)")
			}
			loop, err := parseLoopAfter(loopAfter)
			if err != nil {
				return err
			}
			cfg := ctx.config
			if listen == "" {
				listen = cfg.Server.Listen
			}

			media, err := openMedia(args[0])
			if err != nil {
				return err
			}
			defer media.Close()

			logger, err := ctx.logger(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			opts, err := ctx.demuxOptions(cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			logger.Info("oggseek starting", "version", version)

			stream, err := buildStream(cmd.Context(), media, opts, streamOptions{
				uri:            server.MediaPath,
				targetDuration: time.Duration(cfg.Server.TargetDuration) * time.Second,
				loopAfter:      loop,
			}, logger)
			if err != nil {
				return err
			}
			if useIndex || cfg.Demux.UseIndex {
				opts.Index, err = probe.Index(cmd.Context(), media, media.size, opts)
				if err != nil {
					return fmt.Errorf("index %s: %w", media.name, err)
				}
			}

			serverConfig := server.Config{
				Listen:          listen,
				ShutdownTimeout: time.Duration(cfg.Server.ShutdownTimeout) * time.Second,
			}

			var pl playlist.Playlist
			if raftBind != "" {
				raftLog, err := logging.NewNamed("cluster", ctx.logOptions(cmd.ErrOrStderr()))
				if err != nil {
					return err
				}
				mgr, err := startCluster(cmd.Context(), cluster.Config{
					RaftID:   raftID,
					BindAddr: raftBind,
					Peers:    cluster.ParsePeers(raftPeers),
					Logger:   raftLog,
				}, stream, logger)
				if err != nil {
					return err
				}
				defer mgr.Shutdown()

				pl, err = playlist.NewShared(stream, windowSize, mgr, logger)
				if err != nil {
					return fmt.Errorf("failed to create playlist: %w", err)
				}
				serverConfig.Cluster = mgr
			} else {
				pl, err = playlist.New(stream, windowSize, logger)
				if err != nil {
					return fmt.Errorf("failed to create playlist: %w", err)
				}
			}
			if windowSize > 0 {
				go pl.StartAutoAdvance(cmd.Context())
			}

			srv := server.New(pl, server.Source{
				Name:    media.name,
				Reader:  media,
				Size:    media.size,
				ModTime: media.modTime,
			}, opts, serverConfig, logger)

			logger.Info("playlist ready",
				"listen", listen,
				"segments", len(stream.Segments),
				"live", windowSize > 0,
				"clustered", raftBind != "",
			)

			// Blocks until shutdown
			if err := srv.Start(cmd.Context()); err != nil {
				return err
			}
			logger.Info("oggseek stopped")
			return nil
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "Listen address (default from config)")
	cmd.Flags().IntVar(&windowSize, "window-size", 0, "Segments in a looping live window (0 serves VOD)")
	cmd.Flags().StringVar(&loopAfter, "loop-after", "", "Maximum duration of audio to serve (e.g., '10s', '1m30s')")
	cmd.Flags().BoolVar(&useIndex, "use-index", false, "Answer seeks from a page index instead of bisecting")
	cmd.Flags().StringVar(&raftID, "raft-id", "", "Raft node ID (default: the bind address)")
	cmd.Flags().StringVar(&raftBind, "raft-bind", "", "Raft bind address; enables a shared live window")
	cmd.Flags().StringVar(&raftPeers, "raft-peers", "", "Comma-separated Raft peers as [id=]host:port, including this node")
	return cmd
}

// startCluster joins the Raft cluster and, on the leader, initializes the
// window for stream. Followers pick the state up from the log.
func startCluster(ctx context.Context, config cluster.Config, stream playlist.Stream, logger *slog.Logger) (*cluster.Manager, error) {
	if config.RaftID == "" {
		config.RaftID = config.BindAddr
	}
	if len(config.Peers) == 0 {
		config.Peers = []string{config.RaftID + "=" + config.BindAddr}
	}

	mgr, err := cluster.NewManager(config, logger)
	if err != nil {
		return nil, err
	}
	if err := mgr.Start(ctx); err != nil {
		return nil, fmt.Errorf("start cluster: %w", err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, leaderTimeout)
	defer cancel()
	if err := mgr.WaitForLeader(waitCtx); err != nil {
		mgr.Shutdown()
		return nil, fmt.Errorf("wait for leader: %w", err)
	}

	if mgr.IsLeader() {
		if err := mgr.Initialize(cluster.WindowState{
			TotalSegments: len(stream.Segments),
			Serial:        stream.Serial,
		}); err != nil {
			mgr.Shutdown()
			return nil, fmt.Errorf("initialize window: %w", err)
		}
	}

	logger.Info("joined cluster",
		"node_id", mgr.NodeID(),
		"state", mgr.State(),
		"leader", mgr.LeaderAddr(),
	)
	return mgr, nil
}
