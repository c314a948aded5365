// Command cryosweep removes extraneous checkpoint files from cryoDRGN
// experiment output directories.
//
// Scan the current directory:
//
//	cryosweep
//
// Scan specific directories:
//
//	cryosweep outdir outdir2
//
// Scan every directory found in the current folder, or recursively for
// outputs containing the substring "old". Quote the globs to keep the shell
// from expanding them first:
//
//	cryosweep "*"
//	cryosweep "**/*old*"
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/afero"
	"github.com/spf13/pflag"

	"github.com/harunnryd/cryosweep/pkg/logging"
	"github.com/harunnryd/cryosweep/pkg/scan"
)

func main() {
	everyN := pflag.IntP("every-n-epochs", "n", 5,
		"only save output from every certain number of epochs")
	force := pflag.BoolP("force", "f", false,
		"clean automatically without prompting the user")
	verbose := pflag.CountP("verbose", "v",
		"print more messages about ignored directories, etc.")
	dryRun := pflag.BoolP("dry-run", "d", false,
		"only scan directories and identify their status, don't update")
	pflag.Parse()

	printBanner()
	logger := logging.InitLogger(logging.LevelFromVerbosity(*verbose))
	slog.SetDefault(logger)

	driver := scan.NewDriver(afero.NewOsFs(), os.Stdin, os.Stdout, logger, scan.Options{
		EveryN:  *everyN,
		Force:   *force,
		DryRun:  *dryRun,
		Verbose: *verbose,
	})
	if err := driver.Run(pflag.Args()); err != nil {
		fmt.Println("scan error:", err)
		os.Exit(1)
	}
}
