// Command mp4split extracts sub-clips, Smooth Streaming fragments,
// fully fragmented files and Smooth Streaming manifests from an ISO
// Base Media File Format input, without transcoding.
package main

import (
	"fmt"
	"os"

	"github.com/ccampbell/fmp4split/cmd/mp4split/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
