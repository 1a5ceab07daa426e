package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	gcmd "github.com/goliatone/go-command"
	"github.com/robfig/cron/v3"
	"github.com/urfave/cli/v2"

	exportfiber "github.com/goliatone/go-sqlexport/adapters/fiber"
	exportprometheus "github.com/goliatone/go-sqlexport/adapters/metrics/prometheus"
	"github.com/goliatone/go-sqlexport/command"
	"github.com/goliatone/go-sqlexport/export"
	"github.com/goliatone/go-sqlexport/query"
)

func runExport(c *cli.Context) error {
	e, err := loadEnv(c)
	if err != nil {
		return err
	}
	ctx, stop := signalContext(c.Context)
	defer stop()

	tracker, closeTracker, err := e.openTracker(ctx)
	if err != nil {
		return err
	}
	defer closeTracker()

	res, err := e.resources()
	if err != nil {
		return err
	}
	handler := command.NewRunExportHandler(e.newRunner(tracker, nil), res)
	var bar *progress
	if !c.Bool("no-progress") {
		bar = newProgress(e.stderr)
		handler.Progress = bar.Add
	}

	cfg, spec := e.exportRequest(c)
	var result export.ExportResult
	err = handler.Execute(ctx, command.RunExport{Config: cfg, Source: spec, Result: &result})
	if bar != nil {
		bar.Finish()
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(e.stdout, "%s: %d rows, %d bytes, xxh3 %s (%s)\n",
		result.Filename, result.Rows, result.Bytes, result.Checksum, result.Duration.Round(time.Millisecond))
	return nil
}

func runSchedule(c *cli.Context) error {
	e, err := loadEnv(c)
	if err != nil {
		return err
	}
	ctx, stop := signalContext(c.Context)
	defer stop()

	tracker, closeTracker, err := e.openTracker(ctx)
	if err != nil {
		return err
	}
	defer closeTracker()

	expr := e.cfg.Schedule.Expression
	setString(c, "cron", &expr)
	manifest := e.cfg.Schedule.Manifest
	setString(c, "manifest", &manifest)

	loader := command.FileBatchLoader(manifest)
	if manifest == "" {
		cfg, spec := e.exportRequest(c)
		loader = func(context.Context) ([]command.BatchRequest, error) {
			return []command.BatchRequest{{Name: "default", Config: cfg, Source: spec}}, nil
		}
	}

	res, err := e.resources()
	if err != nil {
		return err
	}
	handler := command.NewRunExportHandler(e.newRunner(tracker, nil), res)
	batch := command.NewScheduledExportsCommand(handler, loader,
		command.WithBatchCronConfig(gcmd.HandlerConfig{Expression: expr}),
		command.WithBatchLimits(command.BatchLimits{
			ContinueOnError: e.cfg.Schedule.ContinueOnError || c.Bool("continue-on-error"),
		}),
		command.WithBatchLogger(e.logger),
	)

	scheduler := cron.New()
	_, err = scheduler.AddFunc(batch.CronOptions().Expression, func() {
		done, err := batch.Run(ctx)
		if err != nil {
			e.logger.Errorf("scheduled exports: %d succeeded before error: %v", done, err)
			return
		}
		e.logger.Infof("scheduled exports: %d succeeded", done)
	})
	if err != nil {
		return export.NewError(export.KindConfiguration, fmt.Sprintf("invalid cron expression %q", expr), err)
	}

	e.logger.Infof("scheduling exports with %q", expr)
	scheduler.Start()
	<-ctx.Done()
	<-scheduler.Stop().Done()
	return nil
}

func runApply(c *cli.Context) error {
	e, err := loadEnv(c)
	if err != nil {
		return err
	}
	ctx, stop := signalContext(c.Context)
	defer stop()

	var count int
	err = command.NewApplyFileHandler().Execute(ctx, command.ApplyFile{
		Path:    c.String("file"),
		Dialect: export.DialectName(c.String("dialect")),
		Driver:  c.String("driver"),
		DSN:     c.String("dsn"),
		Result:  &count,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(e.stdout, "applied %d statements from %s\n", count, c.String("file"))
	return nil
}

func runServe(c *cli.Context) error {
	e, err := loadEnv(c)
	if err != nil {
		return err
	}
	ctx, stop := signalContext(c.Context)
	defer stop()

	tracker, closeTracker, err := e.openTracker(ctx)
	if err != nil {
		return err
	}
	defer closeTracker()

	var metrics export.MetricsHook
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	if !c.Bool("no-metrics") && e.cfg.Server.MetricsPath != "" {
		hook := exportprometheus.NewHook(nil)
		metrics = hook
		app.Get(e.cfg.Server.MetricsPath, adaptor.HTTPHandler(hook.Handler()))
	}

	res, err := e.resources()
	if err != nil {
		return err
	}
	runner := e.newRunner(tracker, metrics)
	cfg := exportfiber.Config{
		Runner:     runner,
		Resources:  res,
		BasePath:   e.cfg.Server.BasePath,
		OutputRoot: e.cfg.Server.OutputRoot,
		InputRoot:  e.cfg.Server.InputRoot,
		Logger:     e.logger,
	}
	if runner.Tracker == nil {
		cfg.Tracker = export.NewMemoryTracker()
		runner.Tracker = cfg.Tracker
	}
	exportfiber.NewHandler(cfg).RegisterRoutes(app)

	addr := e.cfg.Server.Address
	setString(c, "addr", &addr)

	go func() {
		<-ctx.Done()
		_ = app.Shutdown()
	}()
	e.logger.Infof("listening on %s", addr)
	return app.Listen(addr)
}

func runHistory(c *cli.Context) error {
	e, err := loadEnv(c)
	if err != nil {
		return err
	}
	ctx := c.Context
	if !e.cfg.Tracker.Enabled {
		return export.NewError(export.KindConfiguration, "tracker is disabled", nil)
	}
	tracker, closeTracker, err := e.openTracker(ctx)
	if err != nil {
		return err
	}
	defer closeTracker()

	var records []export.ExportRecord
	if id := c.String("id"); id != "" {
		record, err := query.NewExportStatusHandler(tracker).Query(ctx, query.ExportStatus{ExportID: id})
		if err != nil {
			return err
		}
		records = append(records, record)
	} else {
		records, err = query.NewExportHistoryHandler(tracker).Query(ctx, query.ExportHistory{
			Filter: export.ProgressFilter{
				Table: c.String("table"),
				State: export.ExportState(c.String("state")),
			},
			Limit: c.Int("limit"),
		})
		if err != nil {
			return err
		}
	}

	w := tabwriter.NewWriter(e.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTABLE\tDIALECT\tSTATE\tROWS\tBYTES\tSTARTED\tFILE")
	for _, r := range records {
		started := ""
		if !r.StartedAt.IsZero() {
			started = r.StartedAt.Format(time.RFC3339)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\t%s\t%s\n",
			r.ID, r.Table, r.Dialect, r.State, r.Rows, r.Bytes, started, r.Filename)
	}
	return w.Flush()
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
