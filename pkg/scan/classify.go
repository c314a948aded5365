package scan

import (
	"errors"
	"io"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
	"github.com/spf13/viper"

	"github.com/harunnryd/cryosweep/pkg/configutil"
	"github.com/harunnryd/cryosweep/pkg/errorsx"
)

// configNames are the config filenames recognized inside an experiment
// directory, in priority order. The first one present wins.
var configNames = []string{"config.yaml", "config.yml", "configs.yaml", "configs.yml"}

// trainCommands are the cryoDRGN subcommands whose output directories follow
// the checkpoint naming convention this tool knows how to clean.
var trainCommands = map[string]struct{}{
	"abinit_homo": {},
	"abinit_het":  {},
	"train_nn":    {},
	"train_vae":   {},
}

type experimentConfig struct {
	Cmd []string `mapstructure:"cmd"`
}

// OpenConfig safely gets the config from a potential cryoDRGN directory.
// It returns the parsed config map when dir holds a recognizable experiment
// output, and an empty map when it does not. A missing, corrupted, or
// wrong-shaped config all count as "not recognized"; filesystem faults
// (unreadable directory, permission errors) propagate instead.
func OpenConfig(fs afero.Fs, dir string) (map[string]any, error) {
	infos, err := afero.ReadDir(fs, dir)
	if err != nil {
		return nil, errorsx.Wrap(err, errorsx.ReasonScanDir)
	}
	files := make(map[string]struct{}, len(infos))
	for _, info := range infos {
		if !info.IsDir() {
			files[info.Name()] = struct{}{}
		}
	}

	var name string
	for _, candidate := range configNames {
		if _, ok := files[candidate]; ok {
			name = candidate
			break
		}
	}
	if name == "" {
		return map[string]any{}, nil
	}

	v := viper.New()
	v.SetFs(fs)
	v.SetConfigFile(filepath.Join(dir, name))
	if err := v.ReadInConfig(); err != nil {
		var parseErr viper.ConfigParseError
		if errors.As(err, &parseErr) || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return map[string]any{}, nil
		}
		return nil, errorsx.Wrap(err, errorsx.ReasonConfigOpen)
	}

	settings := v.AllSettings()
	if err := configutil.ValidateSettings(settings, configutil.Schema{
		Required:     []string{"cmd", "dataset_args"},
		AllowUnknown: true,
	}); err != nil {
		return map[string]any{}, nil
	}

	var cfg experimentConfig
	if err := configutil.DecodeSettings(settings, &cfg); err != nil {
		return map[string]any{}, nil
	}
	if len(cfg.Cmd) < 2 || !strings.Contains(cfg.Cmd[0], "cryodrgn") {
		return map[string]any{}, nil
	}
	if _, ok := trainCommands[cfg.Cmd[1]]; !ok {
		return map[string]any{}, nil
	}
	return settings, nil
}
