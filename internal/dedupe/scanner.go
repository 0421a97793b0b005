// Package dedupe reconciles name-duplicates in the destination hierarchy:
// a recursive scan builds name-collision groups, and a resolver applies
// confirmation-gated batch mutations to everything past each group's
// first-seen occurrence.
package dedupe

import (
	"context"

	"media-relay/internal/model"
)

// Page is one listing page of a folder's children. NextPageToken is empty
// on the last page.
type Page struct {
	Files         []model.RemoteFileRecord
	Folders       []model.RemoteFileRecord
	NextPageToken string
}

// TreeLister is the read side of the destination store.
type TreeLister interface {
	ListChildren(ctx context.Context, folderID, pageToken string) (Page, error)
}

type Scanner struct {
	Store TreeLister
	Logf  func(format string, args ...any) // optional
}

// Scan enumerates the tree under rootID and returns every display name that
// occurs at least twice, occurrences in first-seen order. complete is false
// when any subtree listing failed; partial results are returned rather than
// nothing, but the caller must treat them as non-exhaustive. groups is nil
// when no name has two or more occurrences.
func (s *Scanner) Scan(ctx context.Context, rootID string) (groups model.DuplicateGroups, complete bool) {
	occurrences := map[string][]model.RemoteFileRecord{}
	complete = s.walk(ctx, rootID, occurrences)

	groups = model.DuplicateGroups{}
	for name, recs := range occurrences {
		if len(recs) >= 2 {
			groups[name] = recs
		}
	}
	if len(groups) == 0 {
		return nil, complete
	}
	return groups, complete
}

// walk lists one folder across all its pages, appending files and recursing
// into subfolders as they appear. A page failure abandons the rest of this
// folder but keeps whatever was already gathered.
func (s *Scanner) walk(ctx context.Context, folderID string, occurrences map[string][]model.RemoteFileRecord) bool {
	complete := true
	pageToken := ""
	for {
		page, err := s.Store.ListChildren(ctx, folderID, pageToken)
		if err != nil {
			s.logf("listing folder %s failed, keeping partial subtree: %v", folderID, err)
			return false
		}
		for _, f := range page.Files {
			occurrences[f.Name] = append(occurrences[f.Name], f)
		}
		for _, sub := range page.Folders {
			if !s.walk(ctx, sub.ID, occurrences) {
				complete = false
			}
		}
		if page.NextPageToken == "" {
			return complete
		}
		pageToken = page.NextPageToken
	}
}

func (s *Scanner) logf(format string, args ...any) {
	if s.Logf != nil {
		s.Logf(format, args...)
	}
}
