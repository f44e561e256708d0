package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// DriveConfig holds the credentials of the Google account that owns the
// uploaded files. The refresh token is obtained once, offline, for the
// drive.file scope.
type DriveConfig struct {
	ClientID     string
	ClientSecret string
	RefreshToken string
	FolderID     string // optional parent folder
}

// DriveProvider stores files in Google Drive.
type DriveProvider struct {
	files    *drive.FilesService
	folderID string
	logger   *slog.Logger
}

var _ Provider = (*DriveProvider)(nil)

// NewDriveProvider builds a Drive client that refreshes its access token
// from cfg.RefreshToken as needed.
func NewDriveProvider(ctx context.Context, cfg DriveConfig, logger *slog.Logger) (*DriveProvider, error) {
	oauthCfg := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Endpoint:     google.Endpoint,
		Scopes:       []string{drive.DriveFileScope},
	}
	ts := oauthCfg.TokenSource(ctx, &oauth2.Token{RefreshToken: cfg.RefreshToken})

	srv, err := drive.NewService(ctx, option.WithTokenSource(ts))
	if err != nil {
		return nil, fmt.Errorf("storage: creating drive client: %w", err)
	}
	return newDriveProvider(srv, cfg.FolderID, logger), nil
}

func newDriveProvider(srv *drive.Service, folderID string, logger *slog.Logger) *DriveProvider {
	return &DriveProvider{files: srv.Files, folderID: folderID, logger: logger}
}

func (p *DriveProvider) Store(ctx context.Context, r io.Reader, name, mimeType string) (*StoredObject, error) {
	meta := &drive.File{Name: name}
	if p.folderID != "" {
		meta.Parents = []string{p.folderID}
	}

	call := p.files.Create(meta).Fields("id", "webViewLink").Context(ctx)
	if mimeType != "" {
		call = call.Media(r, googleapi.ContentType(mimeType))
	} else {
		call = call.Media(r)
	}

	f, err := call.Do()
	if err != nil {
		return nil, fmt.Errorf("storage: uploading %s to drive: %w", name, err)
	}

	p.logger.Info("file uploaded to drive",
		slog.String("name", name),
		slog.String("externalID", f.Id),
	)
	return &StoredObject{ExternalID: f.Id, ViewURL: f.WebViewLink}, nil
}

// Delete removes the Drive file. A 404 from Drive counts as success.
func (p *DriveProvider) Delete(ctx context.Context, externalID string) error {
	err := p.files.Delete(externalID).Context(ctx).Do()
	if err == nil {
		return nil
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && gerr.Code == http.StatusNotFound {
		return nil
	}
	return fmt.Errorf("storage: deleting drive file %s: %w", externalID, err)
}
