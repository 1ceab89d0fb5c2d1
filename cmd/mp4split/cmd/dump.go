package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ccampbell/fmp4split/boxtree"
)

var dumpCmd = &cobra.Command{
	Use:   "dump <input>",
	Short: "Print the full ISOBMFF box tree of a file",
	Args:  cobra.ExactArgs(1),
	RunE:  runDump,
}

func init() {
	rootCmd.AddCommand(dumpCmd)
}

func runDump(_ *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}

	boxes, err := boxtree.DecodeAll(data)
	if err != nil {
		return err
	}
	for _, b := range boxes {
		printBox(b, 0)
	}
	return nil
}

func printBox(b *boxtree.Box, depth int) {
	indent := strings.Repeat("  ", depth)
	fmt.Printf("%s%s\n", indent, boxTypeString(b.Type))
	for _, raw := range b.Unknown {
		fmt.Printf("%s  %s (%d bytes, unparsed)\n", indent, boxTypeString(raw.Type), len(raw.Data))
	}
	for _, children := range b.Children {
		for _, c := range children {
			printBox(c, depth+1)
		}
	}
}

func boxTypeString(t boxtree.BoxType) string {
	return string(t[:])
}
