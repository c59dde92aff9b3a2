package tasks

// Stage names used in logs, errors and metrics.
const (
	StageFetch  = "fetch"
	StageBackup = "backup"
	StageMerge  = "merge"
	StageNotify = "notify"
)

// StageError tags a pipeline failure with the stage that aborted the run.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return e.Stage + ": " + e.Err.Error()
}

func (e *StageError) Unwrap() error { return e.Err }

// RunResult is what one scrape run produced.
type RunResult struct {
	Features    int
	Records     int
	BackupPath  string
	EmptyBackup bool

	ReportCreated   bool
	ReportUnchanged bool
	RowsAdded       int
	ReportRows      int
	MissingDays     int

	NotifyFailures int
}
