// Command sdpp runs the SD card block driver against a disk image.
//
// The image is served by a simulated card of the selected kind, so every
// request goes through the same SPI command sequence a real card sees.
//
// Usage:
//
//	sdpp info    --image card.img [--card sdhc] [--partition n]
//	sdpp read    --image card.img LBN [COUNT] [--out file]
//	sdpp write   --image card.img LBN FILE
//	sdpp mkimage card.img [--sectors n] [--fat32] [--start n]
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/ardnew/sdspi/pkg"
)

// Component identifier for sdpp logging.
const componentCLI pkg.Component = "sdpp"

// flags holds the persistent command line options.
type flags struct {
	image     string
	kind      string
	partition uint8
	readOnly  bool
	trace     bool
	verbose   bool
	jsonOut   bool
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	f := &flags{}

	root := &cobra.Command{
		Use:           "sdpp",
		Short:         "SD card block driver over a simulated SPI card",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			configureLogging(f)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&f.image, "image", "", "disk image served by the simulated card")
	pf.StringVar(&f.kind, "card", "sdhc", "card kind: sdhc, sdsc, sdv1 or mmc")
	pf.Uint8Var(&f.partition, "partition", 0, "force partition 1-4 (0 selects automatically)")
	pf.BoolVar(&f.readOnly, "read-only", false, "open the image read-only (write protected card)")
	pf.BoolVar(&f.trace, "trace", false, "log every bus transfer (implies -v)")
	pf.BoolVarP(&f.verbose, "verbose", "v", false, "enable verbose logging")
	pf.BoolVar(&f.jsonOut, "json", false, "output logs as JSON")

	root.AddCommand(
		newInfoCommand(f),
		newReadCommand(f),
		newWriteCommand(f),
		newImageCommand(),
	)
	return root
}

func configureLogging(f *flags) {
	switch {
	case f.verbose || f.trace:
		pkg.SetLogLevel(slog.LevelDebug)
	default:
		pkg.SetLogLevel(slog.LevelWarn)
	}
	if f.jsonOut {
		pkg.SetLogger(pkg.NewJSONLogger(os.Stderr, &slog.HandlerOptions{
			Level: pkg.GetLogLevel(),
		}))
	}
}
