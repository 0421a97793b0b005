// Package drive is the hierarchical destination store. It wraps the Drive
// v3 API with the handful of operations the pipeline and the duplicate
// reconciler need; folder lookup-or-create is idempotent by querying before
// any create call.
package drive

import (
	"context"
	"fmt"
	"io"
	"strings"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"media-relay/internal/model"
)

const folderMimeType = "application/vnd.google-apps.folder"

// AuthError reports that the destination store could not be initialized.
// A transfer run may tolerate it and proceed source-side only; a dedupe run
// cannot.
type AuthError struct {
	Err error
}

func (e *AuthError) Error() string { return "destination store auth: " + e.Err.Error() }
func (e *AuthError) Unwrap() error { return e.Err }

type Client struct {
	svc *drive.Service
}

func New(ctx context.Context, credentialsFile string) (*Client, error) {
	if strings.TrimSpace(credentialsFile) == "" {
		return nil, &AuthError{Err: fmt.Errorf("credentials file is required")}
	}
	svc, err := drive.NewService(ctx,
		option.WithCredentialsFile(credentialsFile),
		option.WithScopes(drive.DriveScope),
	)
	if err != nil {
		return nil, &AuthError{Err: err}
	}
	return &Client{svc: svc}, nil
}

// Page is one listing page of a folder's children, files and subfolders
// separated. NextPageToken is empty on the last page.
type Page struct {
	Files         []model.RemoteFileRecord
	Folders       []model.RemoteFileRecord
	NextPageToken string
}

// ListChildren lists direct children of a folder, following Drive's
// pagination contract: pass the returned token back until it comes back
// empty. Trashed entries are excluded.
func (c *Client) ListChildren(ctx context.Context, parentID, pageToken string) (Page, error) {
	call := c.svc.Files.List().
		Context(ctx).
		Q(fmt.Sprintf("'%s' in parents and trashed = false", escapeQuery(parentID))).
		Fields("nextPageToken, files(id, name, mimeType, parents)").
		PageSize(1000)
	if pageToken != "" {
		call = call.PageToken(pageToken)
	}

	list, err := call.Do()
	if err != nil {
		return Page{}, fmt.Errorf("list children of %s: %w", parentID, err)
	}

	page := Page{NextPageToken: list.NextPageToken}
	for _, f := range list.Files {
		rec := model.RemoteFileRecord{ID: f.Id, Name: f.Name, ParentID: parentID}
		if f.MimeType == folderMimeType {
			page.Folders = append(page.Folders, rec)
		} else {
			page.Files = append(page.Files, rec)
		}
	}
	return page, nil
}

// FindFolder returns the id of a child folder by display name, or "" when
// absent. The first match wins when the store holds several.
func (c *Client) FindFolder(ctx context.Context, parentID, name string) (string, error) {
	list, err := c.svc.Files.List().
		Context(ctx).
		Q(fmt.Sprintf("'%s' in parents and name = '%s' and mimeType = '%s' and trashed = false",
			escapeQuery(parentID), escapeQuery(name), folderMimeType)).
		Fields("files(id)").
		PageSize(1).
		Do()
	if err != nil {
		return "", fmt.Errorf("find folder %q under %s: %w", name, parentID, err)
	}
	if len(list.Files) == 0 {
		return "", nil
	}
	return list.Files[0].Id, nil
}

// EnsureFolder returns the id of the named child folder, creating it only
// when the lookup finds nothing. Safe to repeat across runs and shards; two
// racing shards may still both create, which Drive permits and the
// duplicate reconciler later repairs.
func (c *Client) EnsureFolder(ctx context.Context, parentID, name string) (string, error) {
	id, err := c.FindFolder(ctx, parentID, name)
	if err != nil {
		return "", err
	}
	if id != "" {
		return id, nil
	}

	created, err := c.svc.Files.Create(&drive.File{
		Name:     name,
		MimeType: folderMimeType,
		Parents:  []string{parentID},
	}).Context(ctx).Fields("id").Do()
	if err != nil {
		return "", fmt.Errorf("create folder %q under %s: %w", name, parentID, err)
	}
	return created.Id, nil
}

// FileExists reports whether a non-folder child with the exact name exists.
func (c *Client) FileExists(ctx context.Context, parentID, name string) (bool, error) {
	list, err := c.svc.Files.List().
		Context(ctx).
		Q(fmt.Sprintf("'%s' in parents and name = '%s' and mimeType != '%s' and trashed = false",
			escapeQuery(parentID), escapeQuery(name), folderMimeType)).
		Fields("files(id)").
		PageSize(1).
		Do()
	if err != nil {
		return false, fmt.Errorf("query %q under %s: %w", name, parentID, err)
	}
	return len(list.Files) > 0, nil
}

// UploadedFile is what a successful upload reports back.
type UploadedFile struct {
	ID       string
	ViewLink string
}

func (c *Client) UploadFile(ctx context.Context, parentID, name, mimeHint string, r io.Reader) (UploadedFile, error) {
	created, err := c.svc.Files.Create(&drive.File{
		Name:    name,
		Parents: []string{parentID},
	}).
		Context(ctx).
		Media(r, googleapi.ContentType(mimeHint)).
		Fields("id, webViewLink").
		Do()
	if err != nil {
		return UploadedFile{}, fmt.Errorf("upload %q to %s: %w", name, parentID, err)
	}
	return UploadedFile{ID: created.Id, ViewLink: created.WebViewLink}, nil
}

// Metadata is the subset of file metadata the reconciler inspects.
type Metadata struct {
	ID       string
	Name     string
	MimeType string
}

func (c *Client) GetMetadata(ctx context.Context, id string) (Metadata, error) {
	f, err := c.svc.Files.Get(id).Context(ctx).Fields("id, name, mimeType").Do()
	if err != nil {
		return Metadata{}, err
	}
	return Metadata{ID: f.Id, Name: f.Name, MimeType: f.MimeType}, nil
}

// Exists probes a record id. Errors other than 404 propagate so the caller
// can decide whether to treat them as "assume exists".
func (c *Client) Exists(ctx context.Context, id string) (bool, error) {
	_, err := c.svc.Files.Get(id).Context(ctx).Fields("id").Do()
	if err != nil {
		if apiErr, ok := err.(*googleapi.Error); ok && apiErr.Code == 404 {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (c *Client) Delete(ctx context.Context, id string) error {
	return c.svc.Files.Delete(id).Context(ctx).Do()
}

// Trash soft-removes a record; recoverable for Drive's retention window.
func (c *Client) Trash(ctx context.Context, id string) error {
	_, err := c.svc.Files.Update(id, &drive.File{Trashed: true}).Context(ctx).Do()
	return err
}

func (c *Client) Rename(ctx context.Context, id, newName string) error {
	_, err := c.svc.Files.Update(id, &drive.File{Name: newName}).Context(ctx).Do()
	return err
}

// FolderName resolves a folder id to its display name.
func (c *Client) FolderName(ctx context.Context, id string) (string, error) {
	meta, err := c.GetMetadata(ctx, id)
	if err != nil {
		return "", fmt.Errorf("resolve folder name %s: %w", id, err)
	}
	return meta.Name, nil
}

// escapeQuery escapes the characters Drive's query language treats
// specially inside single-quoted strings.
func escapeQuery(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `'`, `\'`)
}
