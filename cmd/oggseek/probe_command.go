package main

import (
	"fmt"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/agleyzer/oggseek/internal/extractor"
	"github.com/agleyzer/oggseek/internal/probe"
)

type probeOutput struct {
	File         string   `json:"file"`
	Codec        string   `json:"codec"`
	MimeType     string   `json:"mime_type"`
	SampleRate   int      `json:"sample_rate"`
	Channels     int      `json:"channels"`
	Duration     float64  `json:"duration"`
	Seekable     bool     `json:"seekable"`
	Size         int64    `json:"size"`
	DataOffset   int64    `json:"data_offset"`
	EncoderDelay int      `json:"encoder_delay,omitempty"`
	Vendor       string   `json:"vendor,omitempty"`
	Comments     []string `json:"comments,omitempty"`
}

func newProbeCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "probe <file>",
		Short: "Show the codec, duration and seekability of a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			media, err := openMedia(args[0])
			if err != nil {
				return err
			}
			defer media.Close()

			opts, err := ctx.demuxOptions(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			info, err := probe.Probe(cmd.Context(), media, media.size, opts)
			if err != nil {
				return fmt.Errorf("probe %s: %w", media.name, err)
			}

			out := probeOutput{
				File:         media.name,
				Codec:        info.Variant.String(),
				MimeType:     info.Format.MimeType,
				SampleRate:   info.Format.SampleRate,
				Channels:     info.Format.Channels,
				Seekable:     info.Seekable,
				Size:         info.Size,
				DataOffset:   info.DataOffset,
				EncoderDelay: info.Format.EncoderDelay,
				Vendor:       info.Format.Metadata.Vendor,
				Comments:     info.Format.Metadata.Comments,
			}
			if info.Duration != extractor.DurationUnknown {
				out.Duration = info.Duration.Seconds()
			}
			if asJSON {
				return writeJSON(cmd, out)
			}

			duration := "unknown"
			if info.Duration != extractor.DurationUnknown {
				duration = info.Duration.String()
			}
			rows := [][]string{
				{"File", out.File},
				{"Codec", out.Codec},
				{"MIME type", out.MimeType},
				{"Sample rate", strconv.Itoa(out.SampleRate) + " Hz"},
				{"Channels", strconv.Itoa(out.Channels)},
				{"Duration", duration},
				{"Seekable", yesNo(out.Seekable)},
				{"Size", humanize.IBytes(uint64(out.Size))},
				{"Data offset", humanize.Comma(out.DataOffset)},
			}
			if out.EncoderDelay > 0 {
				rows = append(rows, []string{"Encoder delay", strconv.Itoa(out.EncoderDelay) + " samples"})
			}
			if out.Vendor != "" {
				rows = append(rows, []string{"Vendor", out.Vendor})
			}
			for _, c := range out.Comments {
				rows = append(rows, []string{"Comment", c})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Field", "Value"}, rows, nil))
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Write JSON instead of a table")
	return cmd
}
