// Package scan discovers candidate experiment output directories from glob
// patterns, classifies them, and hands the recognized ones to the cleaner.
package scan

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	"github.com/harunnryd/cryosweep/pkg/clean"
	"github.com/harunnryd/cryosweep/pkg/errorsx"
	"github.com/harunnryd/cryosweep/pkg/logging"
)

// Options control a whole scan run.
type Options struct {
	EveryN  int
	Force   bool
	DryRun  bool
	Verbose int
}

// Driver walks candidate directories in sorted order, prompting the operator
// before cleaning unless forced or in dry-run mode.
type Driver struct {
	fs     afero.Fs
	in     *bufio.Scanner
	out    io.Writer
	logger *slog.Logger
	opts   Options
}

// NewDriver builds a Driver reading prompt answers from in and writing
// status lines to out.
func NewDriver(fs afero.Fs, in io.Reader, out io.Writer, logger *slog.Logger, opts Options) *Driver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Driver{
		fs:  fs,
		in:  bufio.NewScanner(in),
		out: out,
		logger: logging.NewComponentLogger(logger, "scan").With(
			slog.String("scan_id", uuid.NewString()),
		),
		opts: opts,
	}
}

// Run expands the glob patterns and processes every matched directory. With
// no patterns the working directory is the sole candidate. Subdirectories of
// a recognized output directory are dropped from the queue: their internal
// layout is already understood and must not be scanned independently.
func (d *Driver) Run(globs []string) error {
	dirs, err := d.expand(globs)
	if err != nil {
		return err
	}
	if len(dirs) == 0 {
		d.logger.Debug("no candidate directories matched", slog.Int("patterns", len(globs)))
		return nil
	}

	maxlen := 0
	for _, dir := range dirs {
		if len(dir) > maxlen {
			maxlen = len(dir)
		}
	}

	for len(dirs) > 0 {
		cur := dirs[0]
		dirs = dirs[1:]

		cfg, err := OpenConfig(d.fs, cur)
		if err != nil {
			return err
		}
		recognized := len(cfg) > 0
		d.report(cur, recognized, maxlen)
		d.logger.Debug("scanned directory",
			slog.String("dir", cur),
			slog.Bool("recognized", recognized))

		if recognized {
			if err := d.maybeClean(cur); err != nil {
				return err
			}
			dirs = pruneDescendants(dirs, cur)
		}
	}
	return nil
}

// expand resolves glob patterns to a deduplicated, sorted list of
// directories.
func (d *Driver) expand(globs []string) ([]string, error) {
	if len(globs) == 0 {
		wd, err := os.Getwd()
		if err != nil {
			return nil, errorsx.Wrap(err, errorsx.ReasonScanGlob)
		}
		return []string{wd}, nil
	}

	seen := make(map[string]struct{})
	var dirs []string
	for _, pattern := range globs {
		matches, err := afero.Glob(d.fs, pattern)
		if err != nil {
			return nil, errorsx.Wrap(err, errorsx.ReasonScanGlob)
		}
		for _, match := range matches {
			isDir, err := afero.IsDir(d.fs, match)
			if err != nil {
				return nil, errorsx.Wrap(err, errorsx.ReasonScanDir)
			}
			if !isDir {
				continue
			}
			if _, dup := seen[match]; dup {
				continue
			}
			seen[match] = struct{}{}
			dirs = append(dirs, match)
		}
	}
	sort.Strings(dirs)
	return dirs, nil
}

func (d *Driver) report(dir string, recognized bool, maxlen int) {
	msg := "is a cryoDRGN directory"
	if !recognized {
		msg = "is not a cryoDRGN directory"
	}
	if (recognized && d.opts.DryRun) || (!recognized && d.opts.Verbose > 0) {
		fmt.Fprintf(d.out, "%s %s\n", pad("`"+dir+"`", maxlen+2), msg)
	}
}

// maybeClean prompts the operator unless forced or in dry-run mode, then
// sweeps the directory and reports the removal count.
func (d *Driver) maybeClean(dir string) error {
	if !d.opts.Force && !d.opts.DryRun {
		fmt.Fprintf(d.out,
			"`%s` is a cryoDRGN directory, enter 1) \"(s)kip\" or 2) any other key to clean: ", dir)
		answer, err := d.readAnswer()
		if err != nil {
			return err
		}
		if answer == "s" || answer == "skip" {
			return nil
		}
	}

	removed, err := clean.Dir(d.fs, dir, clean.Options{
		EveryN: d.opts.EveryN,
		DryRun: d.opts.DryRun,
	})
	if err != nil {
		return err
	}
	if d.opts.DryRun {
		fmt.Fprintf(d.out, "\tWould remove %d files!\n", removed)
	} else {
		fmt.Fprintf(d.out, "\tRemoved %d files!\n", removed)
	}
	return nil
}

// readAnswer reads one prompt reply. A bare Enter is an empty reply, which
// cleans. End of input is not a reply at all: an interactive run whose stdin
// has closed must abort rather than fall through to deleting files.
func (d *Driver) readAnswer() (string, error) {
	if !d.in.Scan() {
		err := d.in.Err()
		if err == nil {
			err = fmt.Errorf("prompt input closed before a reply")
		}
		return "", errorsx.Wrap(err, errorsx.ReasonPrompt)
	}
	return strings.TrimSpace(d.in.Text()), nil
}

// pruneDescendants drops queued paths living under parent.
func pruneDescendants(dirs []string, parent string) []string {
	kept := make([]string, 0, len(dirs))
	for _, dir := range dirs {
		if !isDescendant(parent, dir) {
			kept = append(kept, dir)
		}
	}
	return kept
}

func isDescendant(parent, dir string) bool {
	rel, err := filepath.Rel(parent, dir)
	if err != nil {
		return false
	}
	if rel == "." {
		return true
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func pad(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return s + strings.Repeat(" ", width-len(s))
}
