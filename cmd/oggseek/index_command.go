package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/agleyzer/oggseek/internal/playlist"
)

func newIndexCommand(ctx *commandContext) *cobra.Command {
	var (
		output         string
		uri            string
		targetDuration int
		loopAfter      string
	)

	cmd := &cobra.Command{
		Use:   "index <file>",
		Short: "Write a byte-range HLS playlist indexing the pages of a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			loop, err := parseLoopAfter(loopAfter)
			if err != nil {
				return err
			}
			if targetDuration == 0 {
				targetDuration = ctx.config.Server.TargetDuration
			}
			if targetDuration < 0 {
				return fmt.Errorf("--target-duration must be positive")
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
			if uri == "" {
				uri = filepath.Base(args[0])
			}

			stream, err := buildStream(cmd.Context(), media, opts, streamOptions{
				uri:            uri,
				targetDuration: time.Duration(targetDuration) * time.Second,
				loopAfter:      loop,
			}, logger)
			if err != nil {
				return err
			}

			pl, err := playlist.New(stream, 0, logger)
			if err != nil {
				return err
			}
			content, err := pl.Generate()
			if err != nil {
				return err
			}

			if output == "" || output == "-" {
				_, err = fmt.Fprint(cmd.OutOrStdout(), content)
				return err
			}
			if err := os.WriteFile(output, []byte(content), 0o644); err != nil {
				return fmt.Errorf("write playlist: %w", err)
			}
			logger.Info("wrote playlist", "path", output, "segments", len(stream.Segments))
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Playlist output path (default stdout)")
	cmd.Flags().StringVar(&uri, "uri", "", "URI segments reference (default the file name)")
	cmd.Flags().IntVar(&targetDuration, "target-duration", 0, "Segment target duration in seconds (default from config)")
	cmd.Flags().StringVar(&loopAfter, "loop-after", "", "Only index this much audio (e.g., '10s', '1m30s')")
	return cmd
}
