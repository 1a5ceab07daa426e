package command

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	gcmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-errors"
	"gopkg.in/yaml.v3"

	"github.com/goliatone/go-sqlexport/export"
	"github.com/goliatone/go-sqlexport/sources"
)

// BatchRequest is one entry of a batch manifest.
type BatchRequest struct {
	Name   string         `json:"name" yaml:"name"`
	Config map[string]any `json:"config" yaml:"config"`
	Source sources.Spec   `json:"source" yaml:"source"`
}

// BatchLoader loads batch requests from a source.
type BatchLoader func(ctx context.Context) ([]BatchRequest, error)

// BatchExecutor runs a single export.
type BatchExecutor interface {
	Execute(ctx context.Context, msg RunExport) error
}

// BatchCommand runs a list of exports one after another, on demand or from
// a cron schedule.
type BatchCommand struct {
	executor   BatchExecutor
	loader     BatchLoader
	cronConfig gcmd.HandlerConfig
	limits     BatchLimits
	logger     export.Logger
	sleep      func(time.Duration)
}

// BatchOption customizes batch commands.
type BatchOption func(*BatchCommand)

// BatchLimits bounds batch execution throughput.
type BatchLimits struct {
	MaxRequests int
	MinInterval time.Duration
	// ContinueOnError keeps running the remaining entries after a failure.
	ContinueOnError bool
}

// WithBatchCronConfig overrides cron configuration.
func WithBatchCronConfig(cfg gcmd.HandlerConfig) BatchOption {
	return func(cmd *BatchCommand) {
		cmd.cronConfig = cfg
	}
}

// WithBatchLimits overrides batch execution limits.
func WithBatchLimits(limits BatchLimits) BatchOption {
	return func(cmd *BatchCommand) {
		cmd.limits = limits
	}
}

// WithBatchLogger sets the logger used for per-entry failures.
func WithBatchLogger(logger export.Logger) BatchOption {
	return func(cmd *BatchCommand) {
		cmd.logger = logger
	}
}

// NewScheduledExportsCommand creates a batch command that runs hourly by
// default.
func NewScheduledExportsCommand(executor BatchExecutor, loader BatchLoader, opts ...BatchOption) *BatchCommand {
	cmd := &BatchCommand{
		executor:   executor,
		loader:     loader,
		cronConfig: gcmd.HandlerConfig{Expression: "0 * * * *"},
		logger:     export.NopLogger{},
		sleep:      time.Sleep,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(cmd)
		}
	}
	return cmd
}

// CronHandler executes the batch.
func (c *BatchCommand) CronHandler() func() error {
	return func() error {
		_, err := c.Run(context.Background())
		return err
	}
}

// CronOptions returns cron configuration.
func (c *BatchCommand) CronOptions() gcmd.HandlerConfig {
	if c == nil {
		return gcmd.HandlerConfig{}
	}
	return c.cronConfig
}

// Run executes every loaded entry and returns how many succeeded.
func (c *BatchCommand) Run(ctx context.Context) (int, error) {
	if c == nil {
		return 0, errors.New("batch command is nil", errors.CategoryInternal).
			WithTextCode("BATCH_CMD_NIL")
	}
	if c.executor == nil {
		return 0, errors.New("batch executor is required", errors.CategoryValidation).
			WithTextCode("EXECUTOR_REQUIRED")
	}
	if c.loader == nil {
		return 0, errors.New("batch loader not configured", errors.CategoryValidation).
			WithTextCode("LOADER_REQUIRED")
	}

	requests, err := c.loader(ctx)
	if err != nil {
		return 0, err
	}

	var (
		count    int
		firstErr error
	)
	for i, item := range requests {
		if c.limits.MaxRequests > 0 && i >= c.limits.MaxRequests {
			break
		}
		if err := ctx.Err(); err != nil {
			return count, err
		}
		err := c.executor.Execute(ctx, RunExport{Config: item.Config, Source: item.Source})
		if err != nil {
			if !c.limits.ContinueOnError {
				return count, err
			}
			c.logger.Errorf("batch entry %q failed: %v", item.Name, err)
			if firstErr == nil {
				firstErr = err
			}
		} else {
			count++
		}
		if c.limits.MinInterval > 0 && c.sleep != nil {
			c.sleep(c.limits.MinInterval)
		}
	}
	return count, firstErr
}

// FileBatchLoader loads a JSON or YAML manifest on every call so schedule
// edits apply on the next tick.
func FileBatchLoader(path string) BatchLoader {
	return func(context.Context) ([]BatchRequest, error) {
		return loadBatchRequestsFromFile(path)
	}
}

func loadBatchRequestsFromFile(path string) ([]BatchRequest, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryExternal, "read batch file failed").
			WithTextCode("BATCH_FILE_READ")
	}

	var requests []BatchRequest
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(content, &requests); err != nil {
			return nil, errors.Wrap(err, errors.CategoryValidation, "batch file invalid YAML").
				WithTextCode("BATCH_FILE_INVALID")
		}
	default:
		if err := json.Unmarshal(content, &requests); err != nil {
			return nil, errors.Wrap(err, errors.CategoryValidation, "batch file invalid JSON").
				WithTextCode("BATCH_FILE_INVALID")
		}
	}
	return requests, nil
}
