// Package trainfix drives the cryoDRGN training tool as a subprocess to
// produce a real experiment output directory for use by other tests, and
// snapshots the generated files so tests can mutate and restore them without
// paying for another training run.
package trainfix

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/harunnryd/cryosweep/pkg/configutil"
	"github.com/harunnryd/cryosweep/pkg/errorsx"
	"github.com/harunnryd/cryosweep/pkg/logging"
)

// FinalEpoch addresses the unsuffixed output files written after the last
// training epoch (weights.pkl as opposed to weights.<epoch>.pkl).
const FinalEpoch = -1

// successMarker appears in cryoDRGN's stdout when a run completes.
const successMarker = ") Finished in "

const (
	defaultTool    = "cryodrgn"
	defaultDataDir = "testing/data"
	cacheDirName   = "orig_cache"
)

// Config selects the dataset and training mode for a fixture run. Small
// model dimensions are forced on the command line to keep runs fast.
type Config struct {
	Dataset  string `mapstructure:"dataset"`   // "toy" or "hand"
	TrainCmd string `mapstructure:"train_cmd"` // "train_nn" or "train_vae"
	Epochs   int    `mapstructure:"epochs"`
	Seed     int    `mapstructure:"seed"`    // 0 means unseeded
	OutLbl   string `mapstructure:"out_lbl"` // output directory label or path
	DataDir  string `mapstructure:"data_dir"`
	Tool     string `mapstructure:"tool"` // training binary, default "cryodrgn"
}

// TrainDir is a trained experiment output directory with a snapshot of its
// original file set.
type TrainDir struct {
	Dataset  string
	TrainCmd string
	Epochs   int
	OutLbl   string
	Outdir   string

	seed      int
	tool      string
	origCache string
	particles string
	poses     string
	logger    *slog.Logger
}

// New runs the training tool once and snapshots the resulting output
// directory. Any subprocess failure or incomplete output set is an error.
func New(cfg Config) (*TrainDir, error) {
	if cfg.TrainCmd != "train_nn" && cfg.TrainCmd != "train_vae" {
		return nil, errorsx.Wrap(
			fmt.Errorf("unrecognized training command %q", cfg.TrainCmd),
			errorsx.ReasonTrainArgs)
	}
	if cfg.Epochs <= 0 {
		return nil, errorsx.Wrap(
			fmt.Errorf("epoch count must be positive, got %d", cfg.Epochs),
			errorsx.ReasonTrainArgs)
	}

	dataDir := cfg.DataDir
	if dataDir == "" {
		dataDir = defaultDataDir
	}

	t := &TrainDir{
		Dataset:  cfg.Dataset,
		TrainCmd: cfg.TrainCmd,
		Epochs:   cfg.Epochs,
		seed:     cfg.Seed,
		tool:     cfg.Tool,
	}
	if t.tool == "" {
		t.tool = defaultTool
	}

	switch cfg.Dataset {
	case "toy":
		t.particles = filepath.Join(dataDir, "toy_projections.mrcs")
		t.poses = filepath.Join(dataDir, "toy_angles.pkl")
	case "hand":
		t.particles = filepath.Join(dataDir, "hand.mrcs")
		t.poses = filepath.Join(dataDir, "hand_rot.pkl")
	default:
		return nil, errorsx.Wrap(
			fmt.Errorf("unrecognized dataset label %q", cfg.Dataset),
			errorsx.ReasonTrainArgs)
	}

	t.OutLbl = cfg.OutLbl
	if t.OutLbl == "" {
		t.OutLbl = cfg.Dataset + "_" + cfg.TrainCmd
	}
	outdir, err := filepath.Abs(t.OutLbl)
	if err != nil {
		return nil, errorsx.Wrap(err, errorsx.ReasonTrainArgs)
	}
	t.Outdir = outdir
	t.origCache = filepath.Join(outdir, cacheDirName)
	t.logger = logging.NewComponentLogger(slog.Default(), "trainfix").With(
		slog.String("outdir", t.Outdir),
	)

	if err := t.run(t.Epochs, ""); err != nil {
		return nil, err
	}
	if err := t.requireAllFiles(); err != nil {
		return nil, err
	}
	if err := t.snapshot(); err != nil {
		return nil, err
	}
	return t, nil
}

// ParseRequest fills a fixture request map with the conventional defaults:
// the hand dataset trained with train_nn for 10 epochs, unseeded.
func ParseRequest(req map[string]any) (Config, error) {
	cfg := Config{Dataset: "hand", TrainCmd: "train_nn", Epochs: 10}
	if err := configutil.DecodeSettings(req, &cfg); err != nil {
		return Config{}, errorsx.Wrap(err, errorsx.ReasonTrainArgs)
	}
	if cfg.OutLbl == "" {
		parts := []string{cfg.Dataset, cfg.TrainCmd, strconv.Itoa(cfg.Epochs)}
		if cfg.Seed != 0 {
			parts = append(parts, strconv.Itoa(cfg.Seed))
		}
		cfg.OutLbl = strings.Join(parts, "_")
	}
	return cfg, nil
}

// run invokes the training tool synchronously and checks the completion
// marker in its stdout.
func (t *TrainDir) run(epochs int, loadPath string) error {
	args := []string{
		t.TrainCmd, t.particles,
		"-o", t.Outdir,
		"--poses", t.poses,
		"--no-amp",
		fmt.Sprintf("-n=%d", epochs),
	}
	switch t.TrainCmd {
	case "train_vae":
		args = append(args, "--zdim=8", "--tdim=16", "--tlayers=1")
	case "train_nn":
		args = append(args, "--dim=16", "--layers=2")
	}
	if loadPath != "" {
		args = append(args, "--load", loadPath)
	}
	if t.seed != 0 {
		args = append(args, fmt.Sprintf("--seed=%d", t.seed))
	}

	t.logger.Debug("starting training run",
		slog.String("tool", t.tool),
		slog.Int("epochs", epochs))

	cmd := exec.Command(t.tool, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return errorsx.Wrap(
			fmt.Errorf("training run failed: %w: %s", err, strings.TrimSpace(stderr.String())),
			errorsx.ReasonTrainRun)
	}
	if !strings.Contains(stdout.String(), successMarker) {
		return errorsx.Wrap(
			fmt.Errorf("training output missing completion marker: %s",
				strings.TrimSpace(stderr.String())),
			errorsx.ReasonTrainRun)
	}

	t.logger.Debug("training run finished", slog.Int("epochs", epochs))
	return nil
}

// OutFiles lists the names currently present in the output directory.
func (t *TrainDir) OutFiles() ([]string, error) {
	entries, err := os.ReadDir(t.Outdir)
	if err != nil {
		return nil, errorsx.Wrap(err, errorsx.ReasonTrainOutput)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		names = append(names, entry.Name())
	}
	return names, nil
}

// EpochCleaned reports whether the outputs for one epoch have been removed.
// Pass FinalEpoch for the unsuffixed variant written after the last epoch.
func (t *TrainDir) EpochCleaned(epoch int) (bool, error) {
	if epoch != FinalEpoch && (epoch < 0 || epoch >= t.Epochs) {
		return false, errorsx.Wrap(fmt.Errorf(
			"cannot check epoch %d for output folder %q which only contains %d epochs",
			epoch, t.Outdir, t.Epochs), errorsx.ReasonEpochRange)
	}

	outFiles, err := t.OutFiles()
	if err != nil {
		return false, err
	}
	present := make(map[string]struct{}, len(outFiles))
	for _, name := range outFiles {
		present[name] = struct{}{}
	}

	suffix := ""
	if epoch != FinalEpoch {
		suffix = fmt.Sprintf(".%d", epoch)
	}

	if _, ok := present["weights"+suffix+".pkl"]; ok {
		return false, nil
	}
	switch t.TrainCmd {
	case "train_nn":
		if _, ok := present["reconstruct"+suffix+".mrc"]; ok {
			return false, nil
		}
	case "train_vae":
		if _, ok := present["z"+suffix+".pkl"]; ok {
			return false, nil
		}
	}
	return true, nil
}

// AllFilesPresent reports whether every per-epoch output plus the final
// unsuffixed variant still exists.
func (t *TrainDir) AllFilesPresent() (bool, error) {
	for epoch := 0; epoch < t.Epochs; epoch++ {
		cleaned, err := t.EpochCleaned(epoch)
		if err != nil {
			return false, err
		}
		if cleaned {
			return false, nil
		}
	}
	cleaned, err := t.EpochCleaned(FinalEpoch)
	if err != nil {
		return false, err
	}
	return !cleaned, nil
}

func (t *TrainDir) requireAllFiles() error {
	ok, err := t.AllFilesPresent()
	if err != nil {
		return err
	}
	if !ok {
		return errorsx.Wrap(
			fmt.Errorf("training outputs incomplete in %q", t.Outdir),
			errorsx.ReasonTrainOutput)
	}
	return nil
}

// TrainLoadEpoch resumes training from a saved checkpoint, then re-validates
// completeness against the new epoch count.
func (t *TrainDir) TrainLoadEpoch(loadEpoch, trainEpochs int) error {
	if loadEpoch < 0 || loadEpoch >= t.Epochs {
		return errorsx.Wrap(fmt.Errorf(
			"epoch to load %d is not valid for an experiment with %d epochs",
			loadEpoch, t.Epochs), errorsx.ReasonEpochRange)
	}
	load := filepath.Join(t.Outdir, fmt.Sprintf("weights.%d.pkl", loadEpoch))
	if err := t.run(trainEpochs, load); err != nil {
		return err
	}
	t.Epochs = trainEpochs
	return t.requireAllFiles()
}

// snapshot copies every generated file into the cache subdirectory.
func (t *TrainDir) snapshot() error {
	if err := os.MkdirAll(t.origCache, 0o755); err != nil {
		return errorsx.Wrap(err, errorsx.ReasonSnapshot)
	}
	return errorsx.Wrap(copyDirFiles(t.Outdir, t.origCache), errorsx.ReasonSnapshot)
}

// ReplaceFiles restores the snapshot taken at construction, undoing any
// deletions a test performed on the output directory.
func (t *TrainDir) ReplaceFiles() error {
	return errorsx.Wrap(copyDirFiles(t.origCache, t.Outdir), errorsx.ReasonSnapshot)
}

// Cleanup deletes the output directory, snapshot included.
func (t *TrainDir) Cleanup() error {
	return os.RemoveAll(t.Outdir)
}

func copyDirFiles(srcDir, dstDir string) error {
	entries, err := os.ReadDir(srcDir)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		if err := copyFile(
			filepath.Join(srcDir, entry.Name()),
			filepath.Join(dstDir, entry.Name()),
		); err != nil {
			return err
		}
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
