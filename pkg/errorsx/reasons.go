package errorsx

// ReasonCode is a short machine-readable error reason.
type ReasonCode string

const (
	ReasonUnknown ReasonCode = "unknown"

	ReasonConfigOpen ReasonCode = "config_open"
	ReasonScanGlob   ReasonCode = "scan_glob"
	ReasonScanDir    ReasonCode = "scan_dir"
	ReasonPrompt     ReasonCode = "prompt_read"

	ReasonCleanArgs   ReasonCode = "clean_args"
	ReasonCleanRemove ReasonCode = "clean_remove"

	ReasonTrainArgs   ReasonCode = "train_args"
	ReasonTrainRun    ReasonCode = "train_run"
	ReasonTrainOutput ReasonCode = "train_output"
	ReasonEpochRange  ReasonCode = "epoch_range"
	ReasonSnapshot    ReasonCode = "snapshot"
)
