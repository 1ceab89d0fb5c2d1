package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/ccampbell/fmp4split/clip"
	"github.com/ccampbell/fmp4split/internal/movie"
	"github.com/ccampbell/fmp4split/split"
)

var (
	clipStart  uint64
	clipEnd    uint64
	clipOutput string
)

var clipCmd = &cobra.Command{
	Use:   "clip <input>",
	Short: "Extract a keyframe-aligned sub-clip as a plain, non-fragmented MP4",
	Args:  cobra.ExactArgs(1),
	RunE:  runClip,
}

func init() {
	rootCmd.AddCommand(clipCmd)
	clipCmd.Flags().Uint64Var(&clipStart, "start", 0, "start time, movie timescale units")
	clipCmd.Flags().Uint64Var(&clipEnd, "end", 0, "end time, movie timescale units (0 means to end of movie)")
	clipCmd.Flags().StringVarP(&clipOutput, "output", "o", "", "output file (default: stdout)")
}

func runClip(_ *cobra.Command, args []string) error {
	m, err := movie.Open(args[0])
	if err != nil {
		return err
	}
	defer m.Close()

	log := Log.With().Str("input", args[0]).Logger()
	log.Debug().Uint64("start", clipStart).Uint64("end", clipEnd).Msg("planning sub-clip")

	ranges, err := split.Plan(m.Tracks, m.TimeScale, clipStart, clipEnd)
	if err != nil {
		return err
	}

	buckets, err := clip.BuildClip(m.Moov, m.Ftyp, m.Tracks, ranges)
	if err != nil {
		return err
	}

	out, err := openOutput(clipOutput)
	if err != nil {
		return err
	}
	defer out.Close()

	n, err := buckets.WriteTo(out, m.File)
	if err != nil {
		return err
	}
	log.Info().Int64("bytes", n).Msg("wrote sub-clip")
	return nil
}

func openOutput(path string) (*os.File, error) {
	if path == "" || path == "-" {
		return os.Stdout, nil
	}
	return os.Create(path)
}
