package types

import "time"

type SyncOptions struct {
	BatchSize   int  `json:"batch_size"`
	DryRun      bool `json:"dry_run"`
	ForceUpdate bool `json:"force_update"`
}

// SyncResult reports one sync or cleanup run. Success is false only when the
// run itself could not progress (for example a failed page read); individual
// record failures land in Errors and leave Success true.
type SyncResult struct {
	Success          bool          `json:"success"`
	RecordsProcessed int           `json:"records_processed"`
	Errors           []string      `json:"errors,omitempty"`
	Warnings         []string      `json:"warnings,omitempty"`
	Duration         time.Duration `json:"duration_ns"`
}
