package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/agleyzer/oggseek/internal/parser"
	"github.com/agleyzer/oggseek/internal/probe"
	"github.com/agleyzer/oggseek/internal/server"
)

type seekOutput struct {
	Target  float64 `json:"target"`
	Time    float64 `json:"time"`
	Granule int64   `json:"granule"`
	Offset  int64   `json:"offset"`
}

func newSeekCommand(ctx *commandContext) *cobra.Command {
	var (
		playlistPath string
		useIndex     bool
		asJSON       bool
	)

	cmd := &cobra.Command{
		Use:   "seek <file> <time>...",
		Short: "Resolve times to the packet and page a player resumes at",
		Long: "Resolve times to the packet and page a player resumes at.\n\n" +
			"Times are Go durations (1m30s) or seconds (90.5). Seeking bisects the\n" +
			"file unless a page index is built with --use-index or read from a\n" +
			"playlist written by the index command.",
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			targets := make([]time.Duration, 0, len(args)-1)
			for _, arg := range args[1:] {
				t, err := server.ParseTime(arg)
				if err != nil {
					return err
				}
				targets = append(targets, t)
			}

			media, err := openMedia(args[0])
			if err != nil {
				return err
			}
			defer media.Close()

			opts, err := ctx.demuxOptions(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			switch {
			case playlistPath != "":
				info, err := parser.ParsePlaylist(playlistPath)
				if err != nil {
					return err
				}
				opts.Index = info.Stream.Index()
			case useIndex || ctx.config.Demux.UseIndex:
				index, err := probe.Index(cmd.Context(), media, media.size, opts)
				if err != nil {
					return fmt.Errorf("index %s: %w", media.name, err)
				}
				opts.Index = index
			}

			results := make([]seekOutput, 0, len(targets))
			for _, t := range targets {
				point, err := probe.Seek(cmd.Context(), media, media.size, t, opts)
				if err != nil {
					return fmt.Errorf("seek %s to %v: %w", media.name, t, err)
				}
				results = append(results, seekOutput{
					Target:  point.Target.Seconds(),
					Time:    point.Time.Seconds(),
					Granule: point.Granule,
					Offset:  point.Offset,
				})
			}
			if asJSON {
				return writeJSON(cmd, results)
			}

			rows := make([][]string, 0, len(results))
			for i, r := range results {
				rows = append(rows, []string{
					targets[i].String(),
					time.Duration(r.Time * float64(time.Second)).Round(time.Microsecond).String(),
					strconv.FormatInt(r.Granule, 10),
					humanize.Comma(r.Offset),
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Target", "Resumes at", "Granule", "Page offset"},
				rows,
				[]columnAlignment{alignRight, alignRight, alignRight, alignRight},
			))
			return nil
		},
	}

	cmd.Flags().StringVar(&playlistPath, "index", "", "Seek from the byte ranges of a playlist (file or URL)")
	cmd.Flags().BoolVar(&useIndex, "use-index", false, "Build a page index before seeking")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Write JSON instead of a table")
	return cmd
}
