// Package cmd implements the cipherd command line tools.
package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"cipherd/api"
	"cipherd/bootstrap"
	"cipherd/config"
	"cipherd/storage"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	successColor = color.New(color.FgGreen, color.Bold)
	warningColor = color.New(color.FgYellow)
	infoColor    = color.New(color.FgCyan)
	headerColor  = color.New(color.FgBlue, color.Bold)
)

const (
	OutputTable = "table"
	OutputJSON  = "json"
	OutputYAML  = "yaml"

	defaultTimeout = 30 * time.Second
)

// logsOptions holds the flags of the logs command
type logsOptions struct {
	size       int
	offset     int
	output     string
	configFile string
	noColor    bool
	quiet      bool
}

// logPage is one page of the request log plus the total count
type logPage struct {
	Items  []api.LogItem `json:"items" yaml:"items"`
	Total  int64         `json:"total" yaml:"total"`
	Size   int           `json:"size" yaml:"size"`
	Offset int           `json:"offset" yaml:"offset"`
}

// NewLogsCmd creates the 'logs' command
func NewLogsCmd() *cobra.Command {
	opts := &logsOptions{}

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show the request log",
		Long: `Display one page of the request log, oldest first.

The configured store is opened read-only; the server may keep running.`,
		Args: cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if opts.noColor {
				color.NoColor = true
			}
			switch opts.output {
			case OutputTable, OutputJSON, OutputYAML:
			default:
				return fmt.Errorf("invalid output format %q (must be table, json or yaml)", opts.output)
			}
			return storage.ValidatePage(opts.size, opts.offset)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), defaultTimeout)
			defer cancel()

			cfg, err := config.LoadConfig(opts.configFile)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if err := config.LoadSecrets(cfg); err != nil {
				return fmt.Errorf("failed to load secrets: %w", err)
			}

			return runLogs(ctx, cmd.OutOrStdout(), cmd.ErrOrStderr(), cfg, opts)
		},
	}

	cmd.Flags().IntVar(&opts.size, "size", 10, "Number of records to show (1-100)")
	cmd.Flags().IntVar(&opts.offset, "offset", 0, "Number of records to skip")
	cmd.Flags().StringVarP(&opts.output, "output", "o", OutputTable, "Output format: table, json or yaml")
	cmd.Flags().StringVar(&opts.configFile, "config", "", "Config file path")
	cmd.Flags().BoolVar(&opts.noColor, "no-color", false, "Disable colored output")
	cmd.Flags().BoolVar(&opts.quiet, "quiet", false, "Suppress non-essential output")

	return cmd
}

// storageOpenError prints the remediation text and unwraps to the driver error
type storageOpenError struct {
	err  error
	hint string
}

func (e *storageOpenError) Error() string {
	return "failed to open storage: " + e.hint
}

func (e *storageOpenError) Unwrap() error {
	return e.err
}

func runLogs(ctx context.Context, out, errOut io.Writer, cfg *config.Config, opts *logsOptions) error {
	db, err := storage.Open(bootstrap.StorageOptions(cfg), zap.NewNop().Sugar())
	if err != nil {
		return &storageOpenError{
			err:  err,
			hint: bootstrap.ClassifyStorageError(err, cfg.Storage.Driver, bootstrap.StorageTarget(cfg)),
		}
	}
	defer db.Close()

	logs, err := storage.NewLogStorage(db, cfg.Storage.Table, cfg.Storage.QueryTimeout, zap.NewNop().Sugar())
	if err != nil {
		return err
	}

	var s *spinner.Spinner
	if opts.output == OutputTable && !opts.quiet {
		s = spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(errOut))
		s.Suffix = " Loading logs..."
		s.Start()
	}

	page, err := fetchPage(ctx, logs, opts.size, opts.offset)

	if s != nil {
		s.Stop()
	}

	if err != nil {
		if isMissingTable(err) {
			return fmt.Errorf("log table %q does not exist yet; start the server once to create it: %w", logs.Table(), err)
		}
		return fmt.Errorf("failed to read logs: %w", err)
	}

	switch opts.output {
	case OutputJSON:
		return outputAsJSON(out, page)
	case OutputYAML:
		return outputAsYAML(out, page)
	default:
		renderLogsTable(out, page, opts.quiet)
		return nil
	}
}

func fetchPage(ctx context.Context, logs *storage.LogStorage, size, offset int) (*logPage, error) {
	records, err := logs.ListLogs(ctx, size, offset)
	if err != nil {
		return nil, err
	}
	total, err := logs.CountLogs(ctx)
	if err != nil {
		return nil, err
	}

	items := make([]api.LogItem, 0, len(records))
	for _, rec := range records {
		items = append(items, api.NewLogItem(rec))
	}
	return &logPage{Items: items, Total: total, Size: size, Offset: offset}, nil
}

// isMissingTable matches the SQLite and PostgreSQL missing relation errors
func isMissingTable(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "no such table") ||
		(strings.Contains(msg, "relation") && strings.Contains(msg, "does not exist"))
}
