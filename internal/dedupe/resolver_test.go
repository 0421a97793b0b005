package dedupe

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"google.golang.org/api/googleapi"

	"media-relay/internal/model"
)

// fakeMutator records every mutation and returns configured errors per id.
type fakeMutator struct {
	mu       sync.Mutex
	deleted  []string
	trashed  []string
	renamed  map[string]string
	errs     map[string]error
	existing map[string]bool
	names    map[string]string // folder id -> display name
}

func newFakeMutator() *fakeMutator {
	return &fakeMutator{
		renamed:  map[string]string{},
		errs:     map[string]error{},
		existing: map[string]bool{},
		names:    map[string]string{},
	}
}

func (f *fakeMutator) Exists(ctx context.Context, id string) (bool, error) {
	if err, ok := f.errs["exists:"+id]; ok {
		return false, err
	}
	return f.existing[id], nil
}

func (f *fakeMutator) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.errs[id]; err != nil {
		return err
	}
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeMutator) Trash(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.errs[id]; err != nil {
		return err
	}
	f.trashed = append(f.trashed, id)
	return nil
}

func (f *fakeMutator) Rename(_ context.Context, id, newName string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.errs[id]; err != nil {
		return err
	}
	f.renamed[id] = newName
	return nil
}

func (f *fakeMutator) FolderName(_ context.Context, id string) (string, error) {
	if name, ok := f.names[id]; ok {
		return name, nil
	}
	return "", errors.New("unknown folder " + id)
}

func approveAll(string) bool  { return true }
func approveNone(string) bool { return false }

func groupsFixture() model.DuplicateGroups {
	return model.DuplicateGroups{
		"x.mp4": {
			{ID: "id1", Name: "x.mp4", ParentID: "folderA"},
			{ID: "id2", Name: "x.mp4", ParentID: "folderB"},
			{ID: "id3", Name: "x.mp4", ParentID: "folderA"},
		},
	}
}

func TestKeepFirstDeleteTargetsExactlyNonFirst(t *testing.T) {
	store := newFakeMutator()
	r := &Resolver{Store: store, Approve: approveAll, sleep: func(time.Duration) {}}

	result, err := r.Resolve(context.Background(), groupsFixture(), model.StrategyKeepFirstDelete)
	if err != nil {
		t.Fatal(err)
	}
	sort.Strings(store.deleted)
	if len(store.deleted) != 2 || store.deleted[0] != "id2" || store.deleted[1] != "id3" {
		t.Fatalf("deleted %v, want exactly {id2, id3}", store.deleted)
	}
	if result.Success != 2 || result.Total() != 2 {
		t.Fatalf("result = %+v", result)
	}
}

func TestFirstRecordNeverTargetedAnyShape(t *testing.T) {
	groups := model.DuplicateGroups{}
	firsts := map[string]bool{}
	for _, g := range []struct {
		name string
		n    int
	}{{"a.mp4", 2}, {"b.mp4", 5}, {"c.mp4", 3}} {
		var recs []model.RemoteFileRecord
		for i := 0; i < g.n; i++ {
			id := g.name + string(rune('0'+i))
			recs = append(recs, model.RemoteFileRecord{ID: id, Name: g.name, ParentID: "p"})
			if i == 0 {
				firsts[id] = true
			}
		}
		groups[g.name] = recs
	}

	store := newFakeMutator()
	r := &Resolver{Store: store, Approve: approveAll, sleep: func(time.Duration) {}}
	if _, err := r.Resolve(context.Background(), groups, model.StrategyKeepFirstTrash); err != nil {
		t.Fatal(err)
	}
	for _, id := range store.trashed {
		if firsts[id] {
			t.Errorf("first-seen record %s was mutated", id)
		}
	}
	if len(store.trashed) != groups.Redundant() {
		t.Errorf("trashed %d, want %d", len(store.trashed), groups.Redundant())
	}
}

func TestDeclinedConfirmationMutatesNothing(t *testing.T) {
	store := newFakeMutator()
	r := &Resolver{Store: store, Approve: approveNone}

	result, err := r.Resolve(context.Background(), groupsFixture(), model.StrategyKeepFirstDelete)
	if !errors.Is(err, ErrDeclined) {
		t.Fatalf("err = %v, want ErrDeclined", err)
	}
	if len(store.deleted) != 0 || result.Total() != 0 {
		t.Fatalf("declined batch still mutated: %v %+v", store.deleted, result)
	}

	// Missing approver counts as declined, never as approval.
	r2 := &Resolver{Store: store}
	if _, err := r2.Resolve(context.Background(), groupsFixture(), model.StrategyKeepFirstDelete); !errors.Is(err, ErrDeclined) {
		t.Fatalf("nil approver: err = %v, want ErrDeclined", err)
	}
}

func TestTallySumsToTargetCount(t *testing.T) {
	groups := model.DuplicateGroups{
		"x.mp4": {
			{ID: "keep", Name: "x.mp4"},
			{ID: "ok1", Name: "x.mp4"},
			{ID: "gone", Name: "x.mp4"},
			{ID: "forbidden", Name: "x.mp4"},
			{ID: "flaky", Name: "x.mp4"},
		},
	}
	store := newFakeMutator()
	store.errs["gone"] = &googleapi.Error{Code: 404}
	store.errs["forbidden"] = &googleapi.Error{Code: 403}
	store.errs["flaky"] = errors.New("connection reset")

	r := &Resolver{Store: store, Approve: approveAll, BatchSize: 2, sleep: func(time.Duration) {}}
	result, err := r.Resolve(context.Background(), groups, model.StrategyKeepFirstDelete)
	if err != nil {
		t.Fatal(err)
	}
	if result.Total() != 4 {
		t.Fatalf("counts sum to %d, want 4: %+v", result.Total(), result)
	}
	want := model.BatchMutationResult{Success: 1, NotFound: 1, PermissionDenied: 1, OtherErrors: 1}
	if result != want {
		t.Fatalf("result = %+v, want %+v", result, want)
	}
}

func TestBatchDelayBetweenBatchesOnly(t *testing.T) {
	groups := model.DuplicateGroups{"x.mp4": {
		{ID: "keep"}, {ID: "a"}, {ID: "b"}, {ID: "c"}, {ID: "d"}, {ID: "e"},
	}}
	store := newFakeMutator()
	var sleeps []time.Duration
	r := &Resolver{
		Store:      store,
		Approve:    approveAll,
		BatchSize:  2,
		BatchDelay: 123 * time.Millisecond,
		sleep:      func(d time.Duration) { sleeps = append(sleeps, d) },
	}
	if _, err := r.Resolve(context.Background(), groups, model.StrategyKeepFirstDelete); err != nil {
		t.Fatal(err)
	}
	// 5 targets in batches of 2 → 3 batches → 2 inter-batch delays.
	if len(sleeps) != 2 {
		t.Fatalf("slept %d times, want 2", len(sleeps))
	}
	for _, d := range sleeps {
		if d != 123*time.Millisecond {
			t.Errorf("sleep = %v", d)
		}
	}
}

func TestRenameParentSuffixNoConfirmation(t *testing.T) {
	store := newFakeMutator()
	store.names["folderA"] = "FolderA"
	store.names["folderB"] = "FolderB"

	// No approver at all: rename is reversible and must not require one.
	r := &Resolver{Store: store}
	result, err := r.Resolve(context.Background(), groupsFixture(), model.StrategyRenameParentSuffix)
	if err != nil {
		t.Fatal(err)
	}
	if result.Success != 2 {
		t.Fatalf("result = %+v", result)
	}
	if got := store.renamed["id2"]; got != "x_FolderB.mp4" {
		t.Errorf("id2 renamed to %q", got)
	}
	if got := store.renamed["id3"]; got != "x_FolderA.mp4" {
		t.Errorf("id3 renamed to %q", got)
	}
	if _, ok := store.renamed["id1"]; ok {
		t.Error("first-seen record renamed")
	}
}

func TestListOnlyAndUnsupportedStrategies(t *testing.T) {
	store := newFakeMutator()
	r := &Resolver{Store: store, Approve: approveAll}

	result, err := r.Resolve(context.Background(), groupsFixture(), model.StrategyListOnly)
	if err != nil || result.Total() != 0 {
		t.Fatalf("list_only: %v %+v", err, result)
	}

	_, err = r.Resolve(context.Background(), groupsFixture(), model.StrategyKeepNewest)
	var unsupported *UnsupportedStrategyError
	if !errors.As(err, &unsupported) {
		t.Fatalf("keep_newest: err = %v, want UnsupportedStrategyError", err)
	}
	if len(store.deleted)+len(store.trashed)+len(store.renamed) != 0 {
		t.Fatal("non-mutating strategies touched the store")
	}
}

func TestRefreshShrinksAndAssumesExistsOnTimeout(t *testing.T) {
	store := newFakeMutator()
	store.existing["id1"] = true
	store.existing["id2"] = false // removed remotely since the scan
	store.errs["exists:id3"] = context.DeadlineExceeded

	r := &Resolver{Store: store, ProbeTimeout: 10 * time.Millisecond}
	refreshed := r.Refresh(context.Background(), groupsFixture())

	recs := refreshed["x.mp4"]
	if len(recs) != 2 {
		t.Fatalf("survivors = %v, want id1 and id3", recs)
	}
	if recs[0].ID != "id1" || recs[1].ID != "id3" {
		t.Fatalf("survivors = %v (timeout must mean assume-exists)", recs)
	}
}

func TestRefreshDropsCollapsedGroups(t *testing.T) {
	store := newFakeMutator()
	store.existing["id1"] = true
	// id2, id3 gone remotely: group collapses below two survivors.
	r := &Resolver{Store: store}
	if got := r.Refresh(context.Background(), groupsFixture()); got != nil {
		t.Fatalf("expected nil groups, got %v", got)
	}
}

func TestSuffixedName(t *testing.T) {
	if got := SuffixedName("x.mp4", "GoPro"); got != "x_GoPro.mp4" {
		t.Errorf("SuffixedName = %q", got)
	}
	if got := SuffixedName("noext", "P"); got != "noext_P" {
		t.Errorf("SuffixedName without extension = %q", got)
	}
}
