package main

import (
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v2"
)

var version = "dev"

func main() {
	if err := newApp(os.Stdout, os.Stderr).Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "sqlexport:", err)
		os.Exit(1)
	}
}

func newApp(stdout, stderr io.Writer) *cli.App {
	return &cli.App{
		Name:      "sqlexport",
		Usage:     "Write streamed rows as SQL INSERT scripts",
		Version:   version,
		Writer:    stdout,
		ErrWriter: stderr,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to a YAML configuration file",
				EnvVars: []string{"SQLEXPORT_CONFIG"},
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "debug, info, warn or error",
			},
			&cli.StringFlag{
				Name:  "log-format",
				Usage: "text or json",
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "run",
				Usage:  "Run one export",
				Action: runExport,
				Flags:  append(exportFlags(), &cli.BoolFlag{Name: "no-progress", Usage: "Disable the progress bar"}),
			},
			{
				Name:   "schedule",
				Usage:  "Run exports on a cron schedule until interrupted",
				Action: runSchedule,
				Flags: append(exportFlags(),
					&cli.StringFlag{Name: "cron", Usage: "Cron expression (minute hour dom month dow)"},
					&cli.StringFlag{Name: "manifest", Usage: "YAML or JSON list of exports to run on each tick"},
					&cli.BoolFlag{Name: "continue-on-error", Usage: "Keep running manifest entries after a failure"},
				),
			},
			{
				Name:   "apply",
				Usage:  "Execute a generated SQL file against a database",
				Action: runApply,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "file", Aliases: []string{"f"}, Usage: "SQL file to apply", Required: true},
					&cli.StringFlag{Name: "dialect", Value: "mysql", Usage: "Dialect the file was generated for"},
					&cli.StringFlag{Name: "driver", Usage: "database/sql driver (defaults from dialect)"},
					&cli.StringFlag{Name: "dsn", Usage: "Target database DSN", Required: true, EnvVars: []string{"SQLEXPORT_TARGET_DSN"}},
				},
			},
			{
				Name:   "serve",
				Usage:  "Serve the export HTTP API",
				Action: runServe,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "addr", Usage: "Listen address"},
					&cli.BoolFlag{Name: "no-metrics", Usage: "Do not expose Prometheus metrics"},
				},
			},
			{
				Name:   "history",
				Usage:  "List tracked export runs",
				Action: runHistory,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "table", Usage: "Only runs for this table"},
					&cli.StringFlag{Name: "state", Usage: "Only runs in this state"},
					&cli.IntFlag{Name: "limit", Value: 20, Usage: "Maximum number of runs"},
					&cli.StringFlag{Name: "id", Usage: "Show a single run"},
				},
			},
		},
	}
}

// exportFlags override values of the config file export and source blocks.
func exportFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "format", Aliases: []string{"f"}, Usage: "Output format: sql or xlsx"},
		&cli.StringFlag{Name: "dialect", Aliases: []string{"d"}, Usage: "mysql or postgresql"},
		&cli.StringFlag{Name: "filename", Aliases: []string{"o"}, Usage: "Output path; ${date} is replaced"},
		&cli.StringFlag{Name: "table", Aliases: []string{"t"}, Usage: "Target table name"},
		&cli.StringFlag{Name: "date-format", Usage: "Date pattern for ${date}"},
		&cli.BoolFlag{Name: "create-table", Usage: "Emit CREATE TABLE (mysql only)"},
		&cli.BoolFlag{Name: "overwrite", Usage: "Replace an existing output file"},
		&cli.StringFlag{Name: "output-sheet", Usage: "Sheet written by xlsx output"},
		&cli.BoolFlag{Name: "append", Usage: "Append to an existing xlsx workbook"},
		&cli.StringSliceFlag{Name: "field", Usage: "Explicit field name, repeatable"},
		&cli.StringFlag{Name: "source", Usage: "Source type: csv, xlsx, configfile or sql"},
		&cli.StringFlag{Name: "input", Aliases: []string{"i"}, Usage: "Source file path"},
		&cli.StringFlag{Name: "delimiter", Usage: "CSV delimiter"},
		&cli.StringFlag{Name: "encoding", Usage: "CSV input encoding"},
		&cli.StringFlag{Name: "sheet", Usage: "Spreadsheet sheet name"},
		&cli.StringFlag{Name: "driver", Usage: "SQL source driver"},
		&cli.StringFlag{Name: "dsn", Usage: "SQL source DSN", EnvVars: []string{"SQLEXPORT_SOURCE_DSN"}},
		&cli.StringFlag{Name: "query", Usage: "SQL source query"},
	}
}
