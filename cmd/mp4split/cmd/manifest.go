package cmd

import (
	"github.com/spf13/cobra"

	"github.com/ccampbell/fmp4split/internal/movie"
	"github.com/ccampbell/fmp4split/manifest"
)

var manifestOutput string

var manifestCmd = &cobra.Command{
	Use:   "manifest <input>",
	Short: "Build a Smooth Streaming client manifest (Manifest.xml) for one or more bitrate variants",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runManifest,
}

func init() {
	rootCmd.AddCommand(manifestCmd)
	manifestCmd.Flags().StringVarP(&manifestOutput, "output", "o", "", "output file (default: stdout)")
}

func runManifest(_ *cobra.Command, args []string) error {
	log := Log.With().Strs("inputs", args).Logger()

	medias := make([]*manifest.SmoothStreamingMedia, 0, len(args))
	bitrates := make([]uint32, 0, len(args))
	for _, path := range args {
		m, err := movie.Open(path)
		if err != nil {
			return err
		}
		media, err := manifest.BuildManifest(m.Tracks, &log)
		m.Close()
		if err != nil {
			return err
		}
		bitrate, err := manifest.ParseBitrateFromFilename(path)
		if err != nil {
			return err
		}
		medias = append(medias, media)
		bitrates = append(bitrates, bitrate)
	}

	merged := medias[0]
	if len(medias) > 1 {
		var err error
		merged, err = manifest.Merge(medias, bitrates)
		if err != nil {
			return err
		}
	}

	xmlBytes, err := manifest.Render(merged)
	if err != nil {
		return err
	}

	out, err := openOutput(manifestOutput)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := out.Write(xmlBytes); err != nil {
		return err
	}
	log.Info().Int("bytes", len(xmlBytes)).Msg("wrote manifest")
	return nil
}
