package dedupe

import (
	"context"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"google.golang.org/api/googleapi"

	"media-relay/internal/model"
)

const (
	defaultBatchSize    = 10
	defaultBatchDelay   = 500 * time.Millisecond
	defaultProbeTimeout = 5 * time.Second
)

// ErrDeclined is returned when the approver refuses a destructive batch;
// nothing has been mutated in that case.
var ErrDeclined = errors.New("batch mutation declined")

// UnsupportedStrategyError covers strategies that are recognized but not
// implemented (currently keep_newest, whose ordering semantics were never
// specified).
type UnsupportedStrategyError struct {
	Strategy model.Strategy
}

func (e *UnsupportedStrategyError) Error() string {
	return fmt.Sprintf("strategy %q is not supported", e.Strategy)
}

// MutationStore is the write side of the destination store, plus the probes
// the resolver needs before mutating.
type MutationStore interface {
	Exists(ctx context.Context, id string) (bool, error)
	Delete(ctx context.Context, id string) error
	Trash(ctx context.Context, id string) error
	Rename(ctx context.Context, id, newName string) error
	FolderName(ctx context.Context, id string) (string, error)
}

// Approver decides whether a destructive batch may start. It sees a
// human-readable summary of what is about to happen and returns the verdict
// synchronously. Keeping this injected keeps the resolver terminal-free.
type Approver func(summary string) bool

type Resolver struct {
	Store   MutationStore
	Approve Approver

	// Zero values fall back to the package defaults.
	BatchSize    int
	BatchDelay   time.Duration
	ProbeTimeout time.Duration

	Logf  func(format string, args ...any) // optional
	sleep func(time.Duration)              // test hook
}

// Refresh re-verifies that tracked records still exist and drops groups
// that shrink below two survivors. Probe errors and timeouts count as
// "assume exists": a false removal would be harmless, but a false positive
// would feed a destructive batch. Groups only ever shrink here.
func (r *Resolver) Refresh(ctx context.Context, groups model.DuplicateGroups) model.DuplicateGroups {
	out := model.DuplicateGroups{}
	for name, recs := range groups {
		var survivors []model.RemoteFileRecord
		for _, rec := range recs {
			probeCtx, cancel := context.WithTimeout(ctx, r.probeTimeout())
			exists, err := r.Store.Exists(probeCtx, rec.ID)
			cancel()
			if err != nil {
				r.logf("probe %s failed (%v), assuming it still exists", rec.ID, err)
				survivors = append(survivors, rec)
				continue
			}
			if exists {
				survivors = append(survivors, rec)
			}
		}
		if len(survivors) >= 2 {
			out[name] = survivors
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// Resolve applies the chosen strategy. The first record of every group is
// never a mutation target under any strategy.
func (r *Resolver) Resolve(ctx context.Context, groups model.DuplicateGroups, strategy model.Strategy) (model.BatchMutationResult, error) {
	var zero model.BatchMutationResult
	if len(groups) == 0 {
		return zero, nil
	}

	switch strategy {
	case model.StrategyListOnly:
		return zero, nil

	case model.StrategyKeepFirstDelete, model.StrategyKeepFirstTrash:
		targets := collectTargets(groups)
		if len(targets) == 0 {
			return zero, nil
		}
		verb := "delete"
		op := r.Store.Delete
		if strategy == model.StrategyKeepFirstTrash {
			verb = "trash"
			op = r.Store.Trash
		}
		summary := fmt.Sprintf("%s %d redundant files across %d duplicate groups (first occurrences kept)",
			verb, len(targets), len(groups))
		if r.Approve == nil || !r.Approve(summary) {
			return zero, ErrDeclined
		}
		return r.mutateBatches(ctx, targets, op), nil

	case model.StrategyRenameParentSuffix:
		return r.renameAll(ctx, groups), nil

	default:
		return zero, &UnsupportedStrategyError{Strategy: strategy}
	}
}

// collectTargets flattens every non-first record id, group names in sorted
// order so batch composition is stable between runs.
func collectTargets(groups model.DuplicateGroups) []string {
	names := make([]string, 0, len(groups))
	for name := range groups {
		names = append(names, name)
	}
	sort.Strings(names)

	var targets []string
	for _, name := range names {
		for _, rec := range groups[name][1:] {
			targets = append(targets, rec.ID)
		}
	}
	return targets
}

// mutateBatches applies op to targets in fixed-size batches: bounded
// concurrency inside a batch, a serializing delay between batches for the
// store's rate limits. Failures are captured per item so one permission
// error never aborts its batch siblings.
func (r *Resolver) mutateBatches(ctx context.Context, targets []string, op func(ctx context.Context, id string) error) model.BatchMutationResult {
	var result model.BatchMutationResult
	size := r.batchSize()

	for start := 0; start < len(targets); start += size {
		end := start + size
		if end > len(targets) {
			end = len(targets)
		}
		batch := targets[start:end]

		outcomes := make([]error, len(batch))
		var wg sync.WaitGroup
		for i, id := range batch {
			wg.Add(1)
			go func(i int, id string) {
				defer wg.Done()
				outcomes[i] = op(ctx, id)
			}(i, id)
		}
		wg.Wait()

		var batchResult model.BatchMutationResult
		for i, err := range outcomes {
			r.tally(&batchResult, batch[i], err)
		}
		result.Merge(batchResult)
		if end < len(targets) {
			r.sleepFn()(r.batchDelay())
		}
	}
	return result
}

// renameAll appends each redundant record's parent folder name to its own
// name. Reversible, so no approval gate; applied per record, not batched.
func (r *Resolver) renameAll(ctx context.Context, groups model.DuplicateGroups) model.BatchMutationResult {
	var result model.BatchMutationResult
	parentNames := map[string]string{}

	names := make([]string, 0, len(groups))
	for name := range groups {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		for _, rec := range groups[name][1:] {
			parent, ok := parentNames[rec.ParentID]
			if !ok {
				resolved, err := r.Store.FolderName(ctx, rec.ParentID)
				if err != nil {
					r.tally(&result, rec.ID, err)
					continue
				}
				parent = resolved
				parentNames[rec.ParentID] = parent
			}
			r.tally(&result, rec.ID, r.Store.Rename(ctx, rec.ID, SuffixedName(rec.Name, parent)))
		}
	}
	return result
}

// SuffixedName inserts the parent folder name before the extension:
// "x.mp4" in "FolderA" becomes "x_FolderA.mp4".
func SuffixedName(name, parent string) string {
	ext := path.Ext(name)
	return strings.TrimSuffix(name, ext) + "_" + parent + ext
}

func (r *Resolver) tally(result *model.BatchMutationResult, id string, err error) {
	switch classify(err) {
	case outcomeSuccess:
		result.Success++
	case outcomeNotFound:
		result.NotFound++
	case outcomePermissionDenied:
		result.PermissionDenied++
	default:
		r.logf("mutation of %s failed: %v", id, err)
		result.OtherErrors++
	}
}

type outcome int

const (
	outcomeSuccess outcome = iota
	outcomeNotFound
	outcomePermissionDenied
	outcomeOther
)

func classify(err error) outcome {
	if err == nil {
		return outcomeSuccess
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case 404:
			return outcomeNotFound
		case 403:
			return outcomePermissionDenied
		}
	}
	return outcomeOther
}

func (r *Resolver) batchSize() int {
	if r.BatchSize > 0 {
		return r.BatchSize
	}
	return defaultBatchSize
}

func (r *Resolver) batchDelay() time.Duration {
	if r.BatchDelay > 0 {
		return r.BatchDelay
	}
	return defaultBatchDelay
}

func (r *Resolver) probeTimeout() time.Duration {
	if r.ProbeTimeout > 0 {
		return r.ProbeTimeout
	}
	return defaultProbeTimeout
}

func (r *Resolver) sleepFn() func(time.Duration) {
	if r.sleep != nil {
		return r.sleep
	}
	return time.Sleep
}

func (r *Resolver) logf(format string, args ...any) {
	if r.Logf != nil {
		r.Logf(format, args...)
	}
}
