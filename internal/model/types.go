package model

import (
	"path"
	"regexp"
	"strings"
)

// WorkItem identifies one source asset for the duration of a single run.
// Items are rebuilt from the work list on every run; nothing is persisted.
// Resumability comes from existence checks against the durable stores.
type WorkItem struct {
	SourceKey       string `json:"source_key"`
	CategoryKey     string `json:"category_key"`
	DestinationName string `json:"destination_name"`
	Status          string `json:"status"`
}

// DefaultCategory is used when a source key carries no category prefix.
const DefaultCategory = "misc"

// ConvertedSuffix replaces the source extension on the published name.
const ConvertedSuffix = "_converted.mp4"

// reCategory captures the top-level prefix of a slash-separated source key.
var reCategory = regexp.MustCompile(`^([^/]+)/`)

// NewWorkItem derives the category and destination name for a source key.
// Derivation is pure so repeated runs route the same key identically.
func NewWorkItem(sourceKey string) WorkItem {
	return WorkItem{
		SourceKey:       sourceKey,
		CategoryKey:     DeriveCategory(sourceKey),
		DestinationName: DeriveDestinationName(sourceKey),
		Status:          StatusPending,
	}
}

func DeriveCategory(sourceKey string) string {
	if m := reCategory.FindStringSubmatch(sourceKey); m != nil {
		return m[1]
	}
	return DefaultCategory
}

func DeriveDestinationName(sourceKey string) string {
	base := path.Base(sourceKey)
	ext := path.Ext(base)
	return strings.TrimSuffix(base, ext) + ConvertedSuffix
}

// RemoteFileRecord is one entry in the destination hierarchy. ID is stable
// for the record's lifetime; Name is display-only and not unique.
type RemoteFileRecord struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	ParentID string `json:"parent_id"`
}

// DuplicateGroups maps a display name to its occurrences in first-seen scan
// order. A name is present only when it has at least two occurrences, and
// resolution never targets the first occurrence.
type DuplicateGroups map[string][]RemoteFileRecord

// Records returns the total number of tracked records across all groups.
func (g DuplicateGroups) Records() int {
	n := 0
	for _, recs := range g {
		n += len(recs)
	}
	return n
}

// Redundant returns how many records are candidates for mutation, i.e.
// everything beyond each group's first occurrence.
func (g DuplicateGroups) Redundant() int {
	n := 0
	for _, recs := range g {
		if len(recs) > 1 {
			n += len(recs) - 1
		}
	}
	return n
}

// BatchMutationResult tallies per-target outcomes of a batch mutation.
// The counts always sum to the number of targeted records.
type BatchMutationResult struct {
	Success          int `json:"success"`
	NotFound         int `json:"not_found"`
	PermissionDenied int `json:"permission_denied"`
	OtherErrors      int `json:"other_errors"`
}

func (r BatchMutationResult) Total() int {
	return r.Success + r.NotFound + r.PermissionDenied + r.OtherErrors
}

func (r *BatchMutationResult) Merge(other BatchMutationResult) {
	r.Success += other.Success
	r.NotFound += other.NotFound
	r.PermissionDenied += other.PermissionDenied
	r.OtherErrors += other.OtherErrors
}

// Strategy selects how the resolver handles a set of duplicate groups.
type Strategy string

const (
	StrategyKeepFirstDelete    Strategy = "keep_first_delete"
	StrategyKeepFirstTrash     Strategy = "keep_first_trash"
	StrategyRenameParentSuffix Strategy = "rename_parent_suffix"
	StrategyListOnly           Strategy = "list_only"

	// StrategyKeepNewest is recognized but rejected: which metadata field
	// defines "newest" was never settled, so the resolver refuses it
	// instead of guessing.
	StrategyKeepNewest Strategy = "keep_newest"
)

func ParseStrategy(raw string) (Strategy, bool) {
	switch Strategy(strings.ToLower(strings.TrimSpace(raw))) {
	case StrategyKeepFirstDelete:
		return StrategyKeepFirstDelete, true
	case StrategyKeepFirstTrash:
		return StrategyKeepFirstTrash, true
	case StrategyRenameParentSuffix:
		return StrategyRenameParentSuffix, true
	case StrategyListOnly:
		return StrategyListOnly, true
	case StrategyKeepNewest:
		return StrategyKeepNewest, true
	default:
		return "", false
	}
}

// Destructive reports whether the strategy permanently or reversibly removes
// records and therefore requires explicit approval before any batch starts.
func (s Strategy) Destructive() bool {
	return s == StrategyKeepFirstDelete || s == StrategyKeepFirstTrash
}
