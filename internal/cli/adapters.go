package cli

import (
	"context"
	"io"

	"media-relay/internal/dedupe"
	"media-relay/internal/drive"
	"media-relay/internal/pipeline"
)

// destAdapter narrows drive.Client to the pipeline's view of the
// destination store.
type destAdapter struct {
	client *drive.Client
}

func (a *destAdapter) FindFolder(ctx context.Context, parentID, name string) (string, error) {
	return a.client.FindFolder(ctx, parentID, name)
}

func (a *destAdapter) EnsureFolder(ctx context.Context, parentID, name string) (string, error) {
	return a.client.EnsureFolder(ctx, parentID, name)
}

func (a *destAdapter) FileExists(ctx context.Context, parentID, name string) (bool, error) {
	return a.client.FileExists(ctx, parentID, name)
}

func (a *destAdapter) UploadFile(ctx context.Context, parentID, name, mimeHint string, r io.Reader) (pipeline.Uploaded, error) {
	up, err := a.client.UploadFile(ctx, parentID, name, mimeHint, r)
	if err != nil {
		return pipeline.Uploaded{}, err
	}
	return pipeline.Uploaded{ID: up.ID, ViewLink: up.ViewLink}, nil
}

// treeAdapter maps drive listing pages onto the scanner's page shape.
type treeAdapter struct {
	client *drive.Client
}

func (a *treeAdapter) ListChildren(ctx context.Context, folderID, pageToken string) (dedupe.Page, error) {
	page, err := a.client.ListChildren(ctx, folderID, pageToken)
	if err != nil {
		return dedupe.Page{}, err
	}
	return dedupe.Page{
		Files:         page.Files,
		Folders:       page.Folders,
		NextPageToken: page.NextPageToken,
	}, nil
}
