package export

import (
	"context"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// RunRequest describes one export run.
type RunRequest struct {
	// Config holds the raw configuration keys (dbtype, filename, ...).
	Config map[string]any
	Source Source
	// Progress, when set, observes each written payload.
	Progress func(ProgressDelta)
}

// Runner wires a Source to the consumer for the configured output format
// through a MemoryChannel.
type Runner struct {
	Dialects    *DialectRegistry
	Preparer    FilePreparer
	Tracker     ProgressTracker
	Metrics     MetricsHook
	Logger      Logger
	Now         func() time.Time
	IDGenerator func() string
}

// NewRunner creates a runner with the default dialects.
func NewRunner() *Runner {
	return &Runner{
		Dialects:    DefaultDialects(),
		Logger:      NopLogger{},
		Now:         time.Now,
		IDGenerator: uuid.NewString,
	}
}

// Run executes an export. Configuration is validated before the source is
// started, so a bad configuration never touches the filesystem.
func (r *Runner) Run(ctx context.Context, req RunRequest) (ExportResult, error) {
	if r == nil {
		return ExportResult{}, NewError(KindInternal, "runner is nil", nil)
	}
	r.defaults()
	if req.Source == nil {
		return ExportResult{}, NewError(KindConfiguration, "source is required", nil)
	}

	exportID := r.IDGenerator()
	info := runInfo{exportID: exportID, startedAt: r.Now()}

	cfg, err := ParseConfig(req.Config)
	if err != nil {
		r.emitMetrics(ctx, info, "export.failed", ExportResult{}, err)
		return ExportResult{}, err
	}
	consumer, err := NewConsumer(cfg.Format,
		WithLogger(r.Logger),
		WithDialects(r.Dialects),
		WithClock(r.Now),
		WithPreparer(r.Preparer),
		WithProgress(func(delta ProgressDelta) {
			if r.Tracker != nil {
				if err := r.Tracker.Advance(ctx, info.exportID, delta); err != nil {
					r.Logger.Warnf("tracker advance: %v", err)
				}
			}
			if req.Progress != nil {
				req.Progress(delta)
			}
		}),
	)
	if err == nil {
		err = consumer.Configure(cfg)
	}
	if err != nil {
		r.emitMetrics(ctx, info, "export.failed", ExportResult{}, err)
		return ExportResult{}, err
	}
	// xlsx runs have no SQL dialect; tracking and metrics label them by format.
	info.dialect = cfg.Dialect
	if cfg.Format == FormatXLSX {
		info.dialect = DialectName(FormatXLSX)
	}
	info.table = cfg.Target()

	if r.Tracker != nil {
		id, err := r.Tracker.Start(ctx, ExportRecord{
			ID:        exportID,
			Table:     info.table,
			Dialect:   info.dialect,
			Filename:  cfg.Filename,
			State:     RunRunning,
			CreatedAt: info.startedAt,
			StartedAt: info.startedAt,
		})
		if err != nil {
			return ExportResult{}, err
		}
		if id != "" {
			info.exportID = id
		}
	}
	r.emitMetrics(ctx, info, "export.started", ExportResult{}, nil)

	ch := NewMemoryChannel()
	group, gctx := errgroup.WithContext(ctx)

	var result ExportResult
	group.Go(func() error {
		res, err := consumer.Consume(gctx, ch)
		result = res
		return err
	})
	group.Go(func() error {
		if err := req.Source.Produce(gctx, ch); err != nil {
			r.Logger.Errorf("source failed: %v", err)
			return err
		}
		ch.Close()
		return nil
	})

	if err := group.Wait(); err != nil {
		r.fail(ctx, info, err)
		return ExportResult{}, err
	}

	result.ID = info.exportID
	if r.Tracker != nil {
		if err := r.Tracker.Complete(ctx, info.exportID, result); err != nil {
			r.Logger.Warnf("tracker complete: %v", err)
		}
	}
	r.emitMetrics(ctx, info, "export.completed", result, nil)
	return result, nil
}

func (r *Runner) defaults() {
	if r.Dialects == nil {
		r.Dialects = DefaultDialects()
	}
	if r.Logger == nil {
		r.Logger = NopLogger{}
	}
	if r.Now == nil {
		r.Now = time.Now
	}
	if r.IDGenerator == nil {
		r.IDGenerator = uuid.NewString
	}
}

func (r *Runner) fail(ctx context.Context, info runInfo, err error) {
	if r.Tracker != nil {
		if terr := r.Tracker.Fail(ctx, info.exportID, err); terr != nil {
			r.Logger.Warnf("tracker fail: %v", terr)
		}
	}
	r.emitMetrics(ctx, info, "export.failed", ExportResult{}, err)
}

func (r *Runner) emitMetrics(ctx context.Context, info runInfo, name string, result ExportResult, err error) {
	if r.Metrics == nil {
		return
	}
	now := r.Now()
	kind := ErrorKind("")
	if err != nil {
		kind = KindFromError(err)
	}
	_ = r.Metrics.Emit(ctx, MetricsEvent{
		Name:      name,
		ExportID:  info.exportID,
		Dialect:   info.dialect,
		Table:     info.table,
		Rows:      result.Rows,
		Bytes:     result.Bytes,
		Duration:  now.Sub(info.startedAt),
		ErrorKind: kind,
		Timestamp: now,
	})
}

type runInfo struct {
	exportID  string
	dialect   DialectName
	table     string
	startedAt time.Time
}
