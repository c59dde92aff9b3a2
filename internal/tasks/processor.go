package tasks

import (
	"context"
	"errors"
	"time"

	"github.com/go-logr/logr"

	"vacinacao/internal/backup"
	"vacinacao/internal/config"
	"vacinacao/internal/metrics"
	"vacinacao/internal/models"
	"vacinacao/internal/normalize"
	"vacinacao/internal/notify"
	"vacinacao/internal/pkg/arcgis"
	"vacinacao/internal/pkg/openai"
	"vacinacao/internal/report"
)

// Notifier is the optional last stage. Its errors are logged, never returned.
type Notifier interface {
	Notify(ctx context.Context, records []*models.Record) error
}

// TaskProcessor holds the dependencies of a scrape run
type TaskProcessor struct {
	config       *config.Config
	log          logr.Logger
	arcgisClient *arcgis.Client
	backups      *backup.Writer
	merger       *report.Merger
	notifier     Notifier
	metrics      *metrics.Run
}

// NewTaskProcessor wires every stage from config. Notification is enabled
// only when webhooks are configured.
func NewTaskProcessor(cfg *config.Config, log logr.Logger) *TaskProcessor {
	p := &TaskProcessor{
		config: cfg,
		log:    log,
		arcgisClient: arcgis.New(cfg.FeedURL,
			arcgis.WithTimeout(cfg.HTTPTimeout),
			arcgis.WithRetry(cfg.FetchRetries, cfg.FetchBackoff, cfg.FetchMaxBackoff),
			arcgis.WithLogger(log.WithName(StageFetch)),
		),
		backups: backup.NewWriter(cfg.BackupDir, cfg.SchemaPolicy, log.WithName(StageBackup)),
		merger:  report.NewMerger(cfg.ReportPath, cfg.Location, log.WithName(StageMerge)),
		metrics: metrics.NewRun(),
	}

	if len(cfg.Webhooks) > 0 {
		opts := notify.Options{
			Username:       cfg.NotifyUsername,
			AvatarURL:      cfg.NotifyAvatarURL,
			MaxContent:     cfg.NotifyMaxContent,
			Timeout:        cfg.HTTPTimeout,
			PostsPerSecond: cfg.NotifyRate,
		}
		if cfg.OpenAIAPIKey != "" {
			s, err := openai.NewSummarizer(cfg.OpenAIAPIKey, cfg.OpenAIModel, nil)
			if err != nil {
				log.Error(err, "summaries disabled")
			} else {
				opts.Summarizer = s
			}
		}
		p.notifier = notify.New(cfg.Webhooks, opts, log.WithName(StageNotify))
	}

	return p
}

// HandleScrapeTask runs fetch, normalize, backup, merge and notify once.
// Fetch, backup and merge failures abort the run and leave the report as it was.
func (p *TaskProcessor) HandleScrapeTask(ctx context.Context) (*RunResult, error) {
	start := time.Now()
	res, err := p.run(ctx)
	p.metrics.Finish(start, time.Now(), err == nil)

	var stageErr *StageError
	if errors.As(err, &stageErr) {
		p.metrics.StageFailures.WithLabelValues(stageErr.Stage).Inc()
		p.log.Error(stageErr.Err, "run aborted", "stage", stageErr.Stage)
	}

	return res, err
}

func (p *TaskProcessor) run(ctx context.Context) (*RunResult, error) {
	res := &RunResult{}

	features, err := p.arcgisClient.GetFeatures(ctx)
	if err != nil {
		return res, &StageError{Stage: StageFetch, Err: err}
	}
	res.Features = len(features)
	p.metrics.FeaturesFetched.Set(float64(res.Features))

	records := normalize.Features(features, p.config.Location)
	res.Records = len(records)
	p.metrics.RecordsNormalized.Set(float64(res.Records))
	if dropped := res.Features - res.Records; dropped > 0 {
		p.log.Info("dropped features without attributes", "dropped", dropped)
	}

	written, err := p.backups.Write(records)
	if err != nil {
		return res, &StageError{Stage: StageBackup, Err: err}
	}
	res.BackupPath = written.Path
	res.EmptyBackup = written.Empty

	merged, err := p.merger.Merge(written.Path)
	if err != nil {
		return res, &StageError{Stage: StageMerge, Err: err}
	}
	res.ReportCreated = merged.Created
	res.ReportUnchanged = merged.Unchanged
	res.RowsAdded = merged.Added
	res.ReportRows = merged.Rows
	for _, g := range merged.Gaps {
		res.MissingDays += g.Missing
	}
	p.metrics.RowsAdded.Set(float64(res.RowsAdded))
	p.metrics.ReportRows.Set(float64(res.ReportRows))
	p.metrics.ReportGaps.Set(float64(res.MissingDays))

	switch {
	case merged.Created:
		p.log.Info("CSV Created", "path", merged.Path, "rows", merged.Rows, "columns", merged.Columns)
	case merged.Unchanged:
		p.log.Info("CSV unchanged", "path", merged.Path, "rows", merged.Rows)
	default:
		p.log.Info("CSV updated", "path", merged.Path, "added", merged.Added, "rows", merged.Rows)
	}

	if p.notifier != nil {
		if err := p.notifier.Notify(ctx, records); err != nil {
			res.NotifyFailures = countErrors(err)
			p.metrics.NotifyFailures.Set(float64(res.NotifyFailures))
			p.log.Error(err, "some notifications failed", "failed", res.NotifyFailures)
		}
	}

	return res, nil
}

// SetNotifier replaces the notification stage; nil disables it.
func (p *TaskProcessor) SetNotifier(n Notifier) {
	p.notifier = n
}

func (p *TaskProcessor) GetArcGISClient() *arcgis.Client {
	return p.arcgisClient
}

func (p *TaskProcessor) GetNotifier() Notifier {
	return p.notifier
}

func (p *TaskProcessor) Metrics() *metrics.Run {
	return p.metrics
}

func countErrors(err error) int {
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		return len(joined.Unwrap())
	}
	return 1
}
