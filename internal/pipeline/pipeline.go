// Package pipeline drives each work item through its stage sequence:
// destination check, fetch, transcode, publish, cleanup. Items are strictly
// sequential within a shard; re-running is safe because every stage probes
// durable state before doing work.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"media-relay/internal/config"
	"media-relay/internal/errlog"
	"media-relay/internal/ffmpeg"
	"media-relay/internal/model"
)

// SourceStore is the blob store work items are fetched from. A missing key
// is reported distinctly from transport errors.
type SourceStore interface {
	Exists(ctx context.Context, key string) (bool, error)
	Fetch(ctx context.Context, key, localPath string) error
}

// Uploaded is what a successful publish reports back.
type Uploaded struct {
	ID       string
	ViewLink string
}

// DestStore is the hierarchical store transcoded artifacts are published
// to. FindFolder never creates; EnsureFolder queries before creating.
type DestStore interface {
	FindFolder(ctx context.Context, parentID, name string) (string, error)
	EnsureFolder(ctx context.Context, parentID, name string) (string, error)
	FileExists(ctx context.Context, parentID, name string) (bool, error)
	UploadFile(ctx context.Context, parentID, name, mimeHint string, r io.Reader) (Uploaded, error)
}

// TranscodeFunc runs one blocking transcode; ffmpeg.Run in production.
type TranscodeFunc func(ctx context.Context, opts ffmpeg.Options) error

type Options struct {
	Config    config.RunConfig
	Source    SourceStore
	Dest      DestStore // nil disables destination integration for the run
	Transcode TranscodeFunc
	ErrLog    *errlog.Log
	Logf      func(format string, args ...any) // console; optional

	// ShowProgress enables the single-line live transcode display.
	ShowProgress bool
}

// RunStats aggregates one shard's run. Items holds the terminal state of
// every processed item in work-list order.
type RunStats struct {
	Total   int
	Done    int
	Skipped int
	Failed  int

	TotalInputBytes  int64
	TotalOutputBytes int64

	Items []model.WorkItem
}

type runner struct {
	opts  Options
	stats RunStats

	// seenOutputs maps category/destinationName to the source key that
	// claimed it first, to catch derivation collisions inside one run.
	seenOutputs map[string]string
}

// Run processes every key sequentially. Per-item failures never propagate
// past the item boundary; the returned stats plus the error log describe
// exactly what did not complete.
func Run(ctx context.Context, keys []string, opts Options) RunStats {
	if opts.Transcode == nil {
		opts.Transcode = ffmpeg.Run
	}
	r := &runner{opts: opts, seenOutputs: map[string]string{}}
	r.stats.Total = len(keys)

	for i, key := range keys {
		if ctx.Err() != nil {
			r.logf("interrupted, stopping after %d of %d items", i, len(keys))
			break
		}
		item := model.NewWorkItem(key)
		r.processItem(ctx, &item, i+1)
		r.stats.Items = append(r.stats.Items, item)
	}
	return r.stats
}

func (r *runner) processItem(ctx context.Context, item *model.WorkItem, position int) {
	cfg := r.opts.Config
	r.logf("[%d/%d] %s", position, r.stats.Total, item.SourceKey)

	localIn := filepath.Join(cfg.WorkDir, "src", filepath.FromSlash(item.SourceKey))
	localOut := filepath.Join(cfg.WorkDir, "out", item.CategoryKey, item.DestinationName)

	// Output-name derivation is assumed injective per category; detect the
	// cases where it is not instead of silently overwriting.
	outputKey := item.CategoryKey + "/" + item.DestinationName
	if prev, ok := r.seenOutputs[outputKey]; ok && prev != item.SourceKey {
		r.fail(item, fmt.Sprintf("output name collision: %s also derives %s", prev, outputKey))
		return
	}
	r.seenOutputs[outputKey] = item.SourceKey

	// --- Destination check ---
	r.advance(item, model.StatusCheckingDestination)
	if r.alreadyPublished(ctx, item) {
		r.removeArtifacts(localIn, localOut)
		r.advance(item, model.StatusSkippedExisting)
		r.stats.Skipped++
		r.logf("  skip (already in destination): %s", item.DestinationName)
		return
	}

	// --- Fetch ---
	r.advance(item, model.StatusFetching)
	freshlyFetched := false
	if _, err := os.Stat(localIn); err != nil {
		if err := r.opts.Source.Fetch(ctx, item.SourceKey, localIn); err != nil {
			r.fail(item, "fetch failed: "+err.Error())
			return
		}
		freshlyFetched = true
	} else {
		r.logf("  reusing local copy from a previous run")
	}

	// --- Transcode ---
	r.advance(item, model.StatusTranscoding)
	if err := os.MkdirAll(filepath.Dir(localOut), 0o755); err != nil {
		r.fail(item, "create output directory: "+err.Error())
		return
	}

	live := newLiveProgress(r.opts.ShowProgress, position, r.stats.Total, item.SourceKey)
	live.Start()
	err := r.opts.Transcode(ctx, ffmpeg.Options{
		InputPath:    localIn,
		OutputPath:   localOut,
		Encoder:      cfg.Encoder,
		VideoBitrate: cfg.VideoBitrate,
		OnProgress:   live.Handle,
	})
	live.Stop()

	if err != nil {
		// Partial output is useless; remove it. The input is kept for
		// manual inspection unless this run fetched it.
		_ = os.Remove(localOut)
		if freshlyFetched {
			_ = os.Remove(localIn)
		}
		r.fail(item, transcodeFailureMessage(err))
		return
	}

	if in, statErr := os.Stat(localIn); statErr == nil {
		r.stats.TotalInputBytes += in.Size()
	}
	if out, statErr := os.Stat(localOut); statErr == nil {
		r.stats.TotalOutputBytes += out.Size()
	}

	// --- Publish ---
	publishAttempted := false
	if r.opts.Dest != nil {
		r.advance(item, model.StatusPublishing)
		publishAttempted = true
		if err := r.publish(ctx, item, localOut); err != nil {
			// Transcode already succeeded; record the upload failure but
			// let the item finish so a re-run can publish it cheaply.
			r.logErr(item.SourceKey, "upload failed: "+err.Error())
		}
	}

	// --- Cleanup ---
	r.advance(item, model.StatusCleaningUp)
	_ = os.Remove(localIn)
	if publishAttempted {
		_ = os.Remove(localOut)
	} else {
		r.logf("  destination disabled, keeping %s", localOut)
	}

	r.advance(item, model.StatusDone)
	r.stats.Done++
}

// alreadyPublished consults the flat converted prefix and the destination
// category folder. Probe errors are logged and treated as "not found": a
// wasted re-transcode beats a silently skipped item.
func (r *runner) alreadyPublished(ctx context.Context, item *model.WorkItem) bool {
	cfg := r.opts.Config
	if cfg.ConvertedPrefix != "" {
		key := joinKey(cfg.ConvertedPrefix, item.DestinationName)
		exists, err := r.opts.Source.Exists(ctx, key)
		if err != nil {
			r.logf("  converted-prefix probe failed: %v", err)
		} else if exists {
			return true
		}
	}
	if r.opts.Dest != nil {
		folderID, err := r.opts.Dest.FindFolder(ctx, cfg.DriveRootFolderID, item.CategoryKey)
		if err != nil {
			r.logf("  destination folder probe failed: %v", err)
			return false
		}
		if folderID == "" {
			return false
		}
		exists, err := r.opts.Dest.FileExists(ctx, folderID, item.DestinationName)
		if err != nil {
			r.logf("  destination file probe failed: %v", err)
			return false
		}
		return exists
	}
	return false
}

func (r *runner) publish(ctx context.Context, item *model.WorkItem, localOut string) error {
	folderID, err := r.opts.Dest.EnsureFolder(ctx, r.opts.Config.DriveRootFolderID, item.CategoryKey)
	if err != nil {
		return err
	}
	f, err := os.Open(localOut)
	if err != nil {
		return err
	}
	defer f.Close()

	uploaded, err := r.opts.Dest.UploadFile(ctx, folderID, item.DestinationName, "video/mp4", f)
	if err != nil {
		return err
	}
	r.logf("  published %s (%s)", item.DestinationName, uploaded.ID)
	return nil
}

func (r *runner) fail(item *model.WorkItem, message string) {
	r.logErr(item.SourceKey, message)
	r.advance(item, model.StatusFailed)
	r.stats.Failed++
}

// logErr writes to the durable ledger; ledger trouble is only reported on
// the console so the batch keeps moving.
func (r *runner) logErr(sourceKey, message string) {
	r.logf("  %s", message)
	if r.opts.ErrLog == nil {
		return
	}
	if err := r.opts.ErrLog.Append(sourceKey, message); err != nil {
		r.logf("  error log write failed: %v", err)
	}
}

func (r *runner) advance(item *model.WorkItem, to string) {
	if err := model.TransitionItemStatus(item, to); err != nil {
		r.logf("  %v", err)
	}
}

func (r *runner) removeArtifacts(paths ...string) {
	for _, p := range paths {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			r.logf("  remove %s: %v", p, err)
		}
	}
}

func (r *runner) logf(format string, args ...any) {
	if r.opts.Logf != nil {
		r.opts.Logf(format, args...)
	}
}

func transcodeFailureMessage(err error) string {
	var exitErr *ffmpeg.ExitError
	if errors.As(err, &exitErr) {
		return fmt.Sprintf("transcode exited with code %d", exitErr.Code)
	}
	var spawnErr *ffmpeg.SpawnError
	if errors.As(err, &spawnErr) {
		return "transcode could not start: " + spawnErr.Err.Error()
	}
	return "transcode failed: " + err.Error()
}

func joinKey(prefix, name string) string {
	if prefix == "" {
		return name
	}
	if prefix[len(prefix)-1] == '/' {
		return prefix + name
	}
	return prefix + "/" + name
}
