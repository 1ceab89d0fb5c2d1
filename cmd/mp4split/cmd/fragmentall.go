package cmd

import (
	"github.com/spf13/cobra"

	"github.com/ccampbell/fmp4split/fragment"
	"github.com/ccampbell/fmp4split/internal/movie"
)

var fragmentAllOutput string

var fragmentAllCmd = &cobra.Command{
	Use:   "fragment-all <input>",
	Short: "Rewrite the whole file as a fragmented MP4 with a random-access index",
	Args:  cobra.ExactArgs(1),
	RunE:  runFragmentAll,
}

func init() {
	rootCmd.AddCommand(fragmentAllCmd)
	fragmentAllCmd.Flags().StringVarP(&fragmentAllOutput, "output", "o", "", "output file (default: stdout)")
}

func runFragmentAll(_ *cobra.Command, args []string) error {
	m, err := movie.Open(args[0])
	if err != nil {
		return err
	}
	defer m.Close()

	log := Log.With().Str("input", args[0]).Logger()

	result, err := fragment.BuildFullFragment(m.File, m.TimeScale, m.Tracks)
	if err != nil {
		return err
	}

	out, err := openOutput(fragmentAllOutput)
	if err != nil {
		return err
	}
	defer out.Close()

	n, err := result.Buckets.WriteTo(out, m.File)
	if err != nil {
		return err
	}
	log.Info().Int64("bytes", n).Msg("wrote fragmented file")
	return nil
}
