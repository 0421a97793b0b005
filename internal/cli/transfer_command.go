package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"media-relay/internal/config"
	"media-relay/internal/drive"
	"media-relay/internal/errlog"
	"media-relay/internal/pipeline"
	"media-relay/internal/source"
	"media-relay/internal/worklist"
)

// WorkListReadError distinguishes "could not read the list at all" (fatal,
// nothing processed) from per-item failures (logged, run continues).
type WorkListReadError struct {
	Err error
}

func (e *WorkListReadError) Error() string { return "read work list: " + e.Err.Error() }
func (e *WorkListReadError) Unwrap() error { return e.Err }

func runTransfer(args []string) error {
	fs := flag.NewFlagSet("transfer", flag.ContinueOnError)
	list := fs.String("list", "", "comma-separated source keys (overrides WORK_LIST)")
	listFile := fs.String("list-file", "", "file containing the comma-separated work list")
	envFile := fs.String("env", "", "env file path (default .env if present)")
	shardIndex := fs.Int("shard-index", -1, "this instance's shard index (overrides SHARD_INDEX)")
	shardTotal := fs.Int("shard-total", 0, "total cooperating instances (overrides SHARD_TOTAL)")
	encoder := fs.String("encoder", "", "cpu|gpu (overrides ENCODER)")
	workDir := fs.String("workdir", "", "local scratch directory (overrides WORK_DIR)")
	noDrive := fs.Bool("no-drive", false, "skip the destination store; keep transcoded files locally")
	progress := fs.Bool("progress", true, "render live transcode progress")
	errorLog := fs.String("error-log", "", "failure ledger path (overrides ERROR_LOG)")
	jsonOut := fs.Bool("json", false, "print JSON summary")
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(*envFile)
	if err != nil {
		return err
	}
	if *encoder != "" {
		enc, err := config.ParseEncoder(*encoder)
		if err != nil {
			return err
		}
		cfg.Encoder = enc
	}
	if *workDir != "" {
		cfg.WorkDir = *workDir
	}
	if *errorLog != "" {
		cfg.ErrorLogPath = *errorLog
	}
	if *shardIndex >= 0 {
		cfg.Shard.Index = *shardIndex
	}
	if *shardTotal > 0 {
		cfg.Shard.Total = *shardTotal
	}
	if *noDrive {
		cfg.DriveEnabled = false
	}
	if err := cfg.ValidateSource(); err != nil {
		return err
	}

	keys, err := resolveWorkList(*list, *listFile, cfg.WorkList, os.Stdin)
	if err != nil {
		return err
	}
	shardKeys, err := worklist.Partition(keys, cfg.Shard.Index, cfg.Shard.Total)
	if err != nil {
		return err
	}
	if len(shardKeys) == 0 {
		fmt.Printf("shard %d/%d: no items to process\n", cfg.Shard.Index, cfg.Shard.Total)
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	src, err := source.New(ctx, source.Options{
		Bucket:    cfg.SourceBucket,
		Region:    cfg.SourceRegion,
		Endpoint:  cfg.SourceEndpoint,
		AccessKey: cfg.SourceAccessKey,
		SecretKey: cfg.SourceSecretKey,
	})
	if err != nil {
		return err
	}

	// Destination auth trouble degrades to a destination-less run instead
	// of aborting: the expensive transcode work still gets done and kept.
	var dest pipeline.DestStore
	if cfg.DriveEnabled {
		client, err := drive.New(ctx, cfg.DriveCredentials)
		if err != nil {
			var authErr *drive.AuthError
			if !errors.As(err, &authErr) {
				return err
			}
			fmt.Printf("warning: %v; continuing without the destination store\n", err)
		} else {
			dest = &destAdapter{client}
		}
	}

	log := errlog.New(cfg.ErrorLogPath)
	if err := log.EnsureInitialized(); err != nil {
		return err
	}

	stats := pipeline.Run(ctx, shardKeys, pipeline.Options{
		Config:       cfg,
		Source:       src,
		Dest:         dest,
		ErrLog:       log,
		Logf:         func(format string, a ...any) { fmt.Printf(format+"\n", a...) },
		ShowProgress: *progress && stdinIsTTY(),
	})

	if *jsonOut {
		return printJSON(transferSummary(cfg, stats))
	}
	printTransferSummary(cfg, stats)
	// Per-item failures are in the ledger, not the exit code; the run
	// itself completed.
	if stats.Failed > 0 {
		fmt.Printf("%d of %d items failed, see %s\n", stats.Failed, stats.Total, log.Path())
	}
	return nil
}

// resolveWorkList picks the first populated work-list input: the --list
// flag, a --list-file, the environment, then stdin when piped.
func resolveWorkList(inline, file, env string, stdin io.Reader) ([]string, error) {
	switch {
	case inline != "":
		return parseNonEmpty(inline)
	case file != "":
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, &WorkListReadError{Err: err}
		}
		return parseNonEmpty(string(data))
	case env != "":
		return parseNonEmpty(env)
	case !stdinIsTTY():
		data, err := io.ReadAll(stdin)
		if err != nil {
			return nil, &WorkListReadError{Err: err}
		}
		if strings.TrimSpace(string(data)) != "" {
			return parseNonEmpty(string(data))
		}
	}
	return nil, errors.New("work list required: set --list, --list-file, WORK_LIST, or pipe keys on stdin")
}

func parseNonEmpty(raw string) ([]string, error) {
	keys := worklist.Parse(strings.ReplaceAll(raw, "\n", ","))
	if len(keys) == 0 {
		return nil, errors.New("work list is empty after trimming")
	}
	return keys, nil
}

func loadConfig(envFile string) (config.RunConfig, error) {
	if envFile != "" {
		return config.Load(envFile, true)
	}
	return config.Load(".env", false)
}

type summaryJSON struct {
	Shard       string `json:"shard"`
	Total       int    `json:"total"`
	Done        int    `json:"done"`
	Skipped     int    `json:"skipped"`
	Failed      int    `json:"failed"`
	InputBytes  int64  `json:"input_bytes"`
	OutputBytes int64  `json:"output_bytes"`
}

func transferSummary(cfg config.RunConfig, stats pipeline.RunStats) summaryJSON {
	return summaryJSON{
		Shard:       fmt.Sprintf("%d/%d", cfg.Shard.Index, cfg.Shard.Total),
		Total:       stats.Total,
		Done:        stats.Done,
		Skipped:     stats.Skipped,
		Failed:      stats.Failed,
		InputBytes:  stats.TotalInputBytes,
		OutputBytes: stats.TotalOutputBytes,
	}
}

func printTransferSummary(cfg config.RunConfig, stats pipeline.RunStats) {
	fmt.Printf("shard %d/%d: %d done, %d skipped, %d failed of %d\n",
		cfg.Shard.Index, cfg.Shard.Total, stats.Done, stats.Skipped, stats.Failed, stats.Total)
	if stats.TotalInputBytes > 0 {
		fmt.Printf("transferred %s in, %s out\n",
			formatBytesIEC(stats.TotalInputBytes), formatBytesIEC(stats.TotalOutputBytes))
	}
}
