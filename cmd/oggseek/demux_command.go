package main

import (
	"fmt"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/agleyzer/oggseek/internal/probe"
)

func newDemuxCommand(ctx *commandContext) *cobra.Command {
	var (
		showPackets bool
		limit       int
	)

	cmd := &cobra.Command{
		Use:   "demux <file>",
		Short: "Read every audio packet of a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit < 0 {
				return fmt.Errorf("--limit must not be negative")
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

			var rows [][]string
			var collect func(probe.Packet) error
			if showPackets {
				collect = func(p probe.Packet) error {
					if limit == 0 || len(rows) < limit {
						rows = append(rows, []string{
							strconv.Itoa(len(rows)),
							p.Time.String(),
							strconv.Itoa(p.Size),
							humanize.Comma(p.Offset),
						})
					}
					return nil
				}
			}

			stats, err := probe.Demux(cmd.Context(), media, media.size, opts, collect)
			if err != nil {
				return fmt.Errorf("demux %s: %w", media.name, err)
			}

			out := cmd.OutOrStdout()
			if showPackets {
				fmt.Fprintln(out, renderTable(
					[]string{"#", "Time", "Size", "Page offset"},
					rows,
					[]columnAlignment{alignRight, alignRight, alignRight, alignRight},
				))
			}
			fmt.Fprintf(out, "%s packets, %s, %v to %v\n",
				humanize.Comma(int64(stats.Packets)), humanize.IBytes(uint64(stats.Bytes)), stats.First, stats.Last)
			return nil
		},
	}

	cmd.Flags().BoolVar(&showPackets, "packets", false, "List packets")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of packets to list (0 lists all)")
	return cmd
}
