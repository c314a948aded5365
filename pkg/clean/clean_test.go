package clean

import (
	"fmt"
	"testing"

	"github.com/spf13/afero"

	"github.com/harunnryd/cryosweep/pkg/errorsx"
)

const outdir = "/out/run1"

func newOutputDir(t *testing.T, epochs int) afero.Fs {
	t.Helper()
	fs := afero.NewMemMapFs()
	for epoch := 0; epoch < epochs; epoch++ {
		name := fmt.Sprintf("%s/weights.%d.pkl", outdir, epoch)
		if err := afero.WriteFile(fs, name, []byte("w"), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	return fs
}

func remaining(t *testing.T, fs afero.Fs) map[int]bool {
	t.Helper()
	kept := make(map[int]bool)
	for epoch := 0; epoch < 100; epoch++ {
		ok, err := afero.Exists(fs, fmt.Sprintf("%s/weights.%d.pkl", outdir, epoch))
		if err != nil {
			t.Fatalf("exists: %v", err)
		}
		if ok {
			kept[epoch] = true
		}
	}
	return kept
}

func TestRetentionKeepsEveryNth(t *testing.T) {
	fs := newOutputDir(t, 10)

	removed, err := Dir(fs, outdir, Options{EveryN: 5})
	if err != nil {
		t.Fatalf("clean error: %v", err)
	}
	if removed != 8 {
		t.Fatalf("expected 8 files removed, got %d", removed)
	}
	kept := remaining(t, fs)
	if len(kept) != 2 || !kept[0] || !kept[5] {
		t.Fatalf("expected epochs 0 and 5 to survive, got %v", kept)
	}
}

func TestAnalysisEpochsProtected(t *testing.T) {
	fs := newOutputDir(t, 10)
	if err := fs.MkdirAll(outdir+"/analyze.3", 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	removed, err := Dir(fs, outdir, Options{EveryN: 5})
	if err != nil {
		t.Fatalf("clean error: %v", err)
	}
	if removed != 7 {
		t.Fatalf("expected 7 files removed, got %d", removed)
	}
	kept := remaining(t, fs)
	if len(kept) != 3 || !kept[0] || !kept[3] || !kept[5] {
		t.Fatalf("expected epochs 0, 3 and 5 to survive, got %v", kept)
	}
}

func TestDryRunCountsWithoutRemoving(t *testing.T) {
	fs := newOutputDir(t, 10)

	removed, err := Dir(fs, outdir, Options{EveryN: 5, DryRun: true})
	if err != nil {
		t.Fatalf("clean error: %v", err)
	}
	if removed != 8 {
		t.Fatalf("expected 8 files counted, got %d", removed)
	}
	if kept := remaining(t, fs); len(kept) != 10 {
		t.Fatalf("expected dry run to leave all 10 files, got %v", kept)
	}
}

func TestSecondSweepRemovesNothing(t *testing.T) {
	fs := newOutputDir(t, 10)

	if _, err := Dir(fs, outdir, Options{EveryN: 5}); err != nil {
		t.Fatalf("first sweep: %v", err)
	}
	removed, err := Dir(fs, outdir, Options{EveryN: 5})
	if err != nil {
		t.Fatalf("second sweep: %v", err)
	}
	if removed != 0 {
		t.Fatalf("expected idempotent sweep, removed %d files", removed)
	}
}

func TestAllCheckpointLabelsSwept(t *testing.T) {
	fs := afero.NewMemMapFs()
	for _, label := range []string{"weights", "z", "pose", "reconstruct"} {
		for _, name := range []string{label + ".1.pkl", label + ".5.pkl"} {
			if err := afero.WriteFile(fs, outdir+"/"+name, []byte("x"), 0o644); err != nil {
				t.Fatalf("write: %v", err)
			}
		}
	}

	removed, err := Dir(fs, outdir, Options{EveryN: 5})
	if err != nil {
		t.Fatalf("clean error: %v", err)
	}
	if removed != 4 {
		t.Fatalf("expected one removal per label, got %d", removed)
	}
	for _, label := range []string{"weights", "z", "pose", "reconstruct"} {
		if ok, _ := afero.Exists(fs, outdir+"/"+label+".5.pkl"); !ok {
			t.Fatalf("expected %s.5.pkl to survive", label)
		}
	}
}

func TestMalformedNamesAndForeignFilesUntouched(t *testing.T) {
	fs := newOutputDir(t, 2)
	keepers := []string{
		"weights.pkl",
		"weights.final.pkl",
		"pose.-1.pkl",
		"config.yaml",
		"run.log",
	}
	for _, name := range keepers {
		if err := afero.WriteFile(fs, outdir+"/"+name, []byte("x"), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	// A directory that happens to match the checkpoint pattern is skipped.
	if err := fs.MkdirAll(outdir+"/z.3.out", 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	removed, err := Dir(fs, outdir, Options{EveryN: 5})
	if err != nil {
		t.Fatalf("clean error: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected only weights.1.pkl removed, got %d", removed)
	}
	for _, name := range keepers {
		if ok, _ := afero.Exists(fs, outdir+"/"+name); !ok {
			t.Fatalf("expected %s to survive", name)
		}
	}
	if ok, _ := afero.DirExists(fs, outdir+"/z.3.out"); !ok {
		t.Fatalf("expected directory z.3.out to survive")
	}
}

func TestRemovalFailureAborts(t *testing.T) {
	fs := newOutputDir(t, 10)
	ro := afero.NewReadOnlyFs(fs)

	_, err := Dir(ro, outdir, Options{EveryN: 5})
	if !errorsx.HasReason(err, errorsx.ReasonCleanRemove) {
		t.Fatalf("expected removal error to propagate, got %v", err)
	}
	if kept := remaining(t, fs); len(kept) != 10 {
		t.Fatalf("expected read-only sweep to leave files, got %v", kept)
	}
}

func TestEveryNMustBePositive(t *testing.T) {
	fs := newOutputDir(t, 3)
	for _, n := range []int{0, -5} {
		if _, err := Dir(fs, outdir, Options{EveryN: n}); !errorsx.HasReason(err, errorsx.ReasonCleanArgs) {
			t.Fatalf("expected argument error for EveryN=%d, got %v", n, err)
		}
	}
}
