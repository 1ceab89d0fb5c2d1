package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ccampbell/fmp4split/fragment"
	"github.com/ccampbell/fmp4split/internal/movie"
	"github.com/ccampbell/fmp4split/split"
)

var (
	fragTrackID uint32
	fragStart   uint64
	fragEnd     uint64
	fragOutput  string
	fragSeqNum  uint32
)

var fragmentCmd = &cobra.Command{
	Use:   "fragment <input>",
	Short: "Build a single Smooth Streaming fragment (moof+mdat) for one track",
	Args:  cobra.ExactArgs(1),
	RunE:  runFragment,
}

func init() {
	rootCmd.AddCommand(fragmentCmd)
	fragmentCmd.Flags().Uint32Var(&fragTrackID, "track", 0, "track ID to fragment (required)")
	fragmentCmd.Flags().Uint64Var(&fragStart, "start", 0, "start time, movie timescale units")
	fragmentCmd.Flags().Uint64Var(&fragEnd, "end", 0, "end time, movie timescale units (0 means to end of movie)")
	fragmentCmd.Flags().Uint32Var(&fragSeqNum, "seq", 1, "mfhd.sequence_number for the built fragment")
	fragmentCmd.Flags().StringVarP(&fragOutput, "output", "o", "", "output file (default: stdout)")
	cobra.CheckErr(fragmentCmd.MarkFlagRequired("track"))
}

func runFragment(_ *cobra.Command, args []string) error {
	m, err := movie.Open(args[0])
	if err != nil {
		return err
	}
	defer m.Close()

	log := Log.With().Str("input", args[0]).Uint32("track", fragTrackID).Logger()

	ranges, err := split.Plan(m.Tracks, m.TimeScale, fragStart, fragEnd)
	if err != nil {
		return err
	}

	var r *split.Range
	for i := range ranges {
		if ranges[i].Track.ID == fragTrackID {
			r = &ranges[i]
			break
		}
	}
	if r == nil {
		return fmt.Errorf("fragment: no track with ID %d", fragTrackID)
	}

	baseMediaDecodeTime := uint64(fragment.ScaleTime(r.Track.Samples[r.StartSample].DTS, r.Track.TimeScale, fragment.SmoothTimescale))

	result, err := fragment.BuildFragment(m.File, r.Track, r.StartSample, r.EndSample, fragSeqNum, baseMediaDecodeTime, fragment.FormatMP4)
	if err != nil {
		return err
	}

	out, err := openOutput(fragOutput)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := out.Write(result.Moof); err != nil {
		return err
	}
	n, err := result.Payload.WriteTo(out, m.File)
	if err != nil {
		return err
	}
	log.Info().Int64("bytes", n+int64(len(result.Moof))).Msg("wrote fragment")
	return nil
}
