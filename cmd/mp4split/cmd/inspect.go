package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ccampbell/fmp4split/internal/movie"
	"github.com/ccampbell/fmp4split/sampletable"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <input>",
	Short: "Print per-track codec info and keyframe distribution",
	Args:  cobra.ExactArgs(1),
	RunE:  runInspect,
}

func init() {
	rootCmd.AddCommand(inspectCmd)
}

func runInspect(_ *cobra.Command, args []string) error {
	m, err := movie.Open(args[0])
	if err != nil {
		return err
	}
	defer m.Close()

	for i, track := range m.Tracks {
		printTrack(i, track)
	}
	return nil
}

func printTrack(i int, track *sampletable.Track) {
	n := len(track.Samples) - 1 // exclude terminal sentinel
	fmt.Printf("Track %d: id=%d kind=%v codec=%s\n", i, track.ID, track.Kind, track.Codec)
	fmt.Printf("  Total samples: %d\n", n)
	fmt.Printf("  Duration: %.2fs\n", float64(track.Duration)/float64(track.TimeScale))
	fmt.Printf("  TimeScale: %d\n", track.TimeScale)
	if !track.HasSyncTable {
		fmt.Println("  No stss: every sample is its own sync point")
	}

	fmt.Println("  Sync samples (is_ss):")
	shown := 0
	var prevTime float64
	var intervals []float64
	total := 0
	for j := 0; j < n; j++ {
		s := track.Samples[j]
		if !s.IsSync {
			continue
		}
		total++
		pts := float64(s.PTS()) / float64(track.TimeScale)
		if shown < 20 {
			line := fmt.Sprintf("    [%5d] %.3fs", j, pts)
			if total > 1 {
				interval := pts - prevTime
				intervals = append(intervals, interval)
				line += fmt.Sprintf(" (%.3fs since last)", interval)
			}
			fmt.Println(line)
			shown++
		}
		prevTime = pts
	}
	if total > shown {
		fmt.Printf("    ... (%d more sync samples)\n", total-shown)
	}
	fmt.Printf("  Total sync samples: %d\n", total)
	if len(intervals) > 0 {
		fmt.Printf("  Sync interval: avg=%.3fs min=%.3fs max=%.3fs\n",
			average(intervals), minimum(intervals), maximum(intervals))
	}
	fmt.Println()
}

func average(vals []float64) float64 {
	sum := 0.0
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}

func minimum(vals []float64) float64 {
	m := vals[0]
	for _, v := range vals {
		if v < m {
			m = v
		}
	}
	return m
}

func maximum(vals []float64) float64 {
	m := vals[0]
	for _, v := range vals {
		if v > m {
			m = v
		}
	}
	return m
}
