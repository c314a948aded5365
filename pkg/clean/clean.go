// Package clean removes intermediate checkpoint files from a recognized
// cryoDRGN experiment output directory on a keep-every-N-epochs schedule.
package clean

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/afero"

	"github.com/harunnryd/cryosweep/pkg/errorsx"
)

// checkpointLabels are the per-epoch output prefixes cryoDRGN writes.
var checkpointLabels = []string{"weights", "z", "pose", "reconstruct"}

const analyzePrefix = "analyze."

// Options control one retention sweep.
type Options struct {
	// EveryN keeps every N-th epoch; all other epochs are removed.
	EveryN int
	// DryRun counts removals without touching the filesystem.
	DryRun bool
}

// Dir sweeps one directory and returns the number of checkpoint files
// removed (or, in dry-run mode, that would be removed). Epochs divisible by
// EveryN and epochs referenced by an analyze.<epoch> subdirectory are kept.
// Removal errors abort the sweep immediately.
func Dir(fs afero.Fs, dir string, opts Options) (int, error) {
	if opts.EveryN <= 0 {
		return 0, errorsx.Wrap(
			fmt.Errorf("every-n-epochs must be positive, got %d", opts.EveryN),
			errorsx.ReasonCleanArgs)
	}

	analysis, err := analysisEpochs(fs, dir)
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, label := range checkpointLabels {
		matches, err := afero.Glob(fs, filepath.Join(dir, label+".*"))
		if err != nil {
			return removed, errorsx.Wrap(err, errorsx.ReasonScanGlob)
		}
		for _, match := range matches {
			info, err := fs.Stat(match)
			if err != nil {
				return removed, errorsx.Wrap(err, errorsx.ReasonCleanRemove)
			}
			if info.IsDir() {
				continue
			}
			epoch, ok := epochFromName(filepath.Base(match))
			if !ok {
				continue
			}
			if epoch%opts.EveryN == 0 {
				continue
			}
			if _, protected := analysis[epoch]; protected {
				continue
			}
			removed++
			if opts.DryRun {
				continue
			}
			if err := fs.Remove(match); err != nil {
				return removed, errorsx.Wrap(err, errorsx.ReasonCleanRemove)
			}
		}
	}
	return removed, nil
}

// analysisEpochs collects epochs referenced by analyze.<epoch>
// subdirectories; those epochs are protected from removal.
func analysisEpochs(fs afero.Fs, dir string) (map[int]struct{}, error) {
	infos, err := afero.ReadDir(fs, dir)
	if err != nil {
		return nil, errorsx.Wrap(err, errorsx.ReasonScanDir)
	}
	epochs := make(map[int]struct{})
	for _, info := range infos {
		if !info.IsDir() || !strings.HasPrefix(info.Name(), analyzePrefix) {
			continue
		}
		if epoch, ok := epochFromName(info.Name()); ok {
			epochs[epoch] = struct{}{}
		}
	}
	return epochs, nil
}

// epochFromName extracts the epoch from a name shaped like
// <label>.<epoch>[.<ext>]. The token must be all digits, so names like
// weights.pkl or pose.-1.pkl are passed over.
func epochFromName(name string) (int, bool) {
	parts := strings.Split(name, ".")
	if len(parts) < 2 || !allDigits(parts[1]) {
		return 0, false
	}
	epoch, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, false
	}
	return epoch, true
}

func allDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
