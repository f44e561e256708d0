package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// LocalProvider keeps files in one directory on disk under random names.
// The server exposes that directory read-only at BaseURL.
type LocalProvider struct {
	dir     string
	baseURL string
	logger  *slog.Logger
}

var _ Provider = (*LocalProvider)(nil)

// NewLocalProvider creates dir if needed.
func NewLocalProvider(dir, baseURL string, logger *slog.Logger) (*LocalProvider, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("storage: creating directory %s: %w", dir, err)
	}
	return &LocalProvider{
		dir:     dir,
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger,
	}, nil
}

// Dir is the directory files are written to.
func (p *LocalProvider) Dir() string { return p.dir }

// BaseURL is the URL prefix files are served under.
func (p *LocalProvider) BaseURL() string { return p.baseURL }

// Store writes r to <uuid><ext>. A partial file is removed on error.
func (p *LocalProvider) Store(ctx context.Context, r io.Reader, name, mimeType string) (*StoredObject, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	id := uuid.New().String() + strings.ToLower(filepath.Ext(name))
	dst := filepath.Join(p.dir, id)

	f, err := os.Create(dst)
	if err != nil {
		return nil, fmt.Errorf("storage: creating %s: %w", dst, err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(dst)
		return nil, fmt.Errorf("storage: writing %s: %w", dst, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(dst)
		return nil, fmt.Errorf("storage: closing %s: %w", dst, err)
	}

	p.logger.Debug("file stored",
		slog.String("name", name),
		slog.String("externalID", id),
		slog.String("mimeType", mimeType),
	)
	return &StoredObject{ExternalID: id, ViewURL: p.baseURL + "/" + id}, nil
}

// Delete removes the file. A missing file is not an error.
func (p *LocalProvider) Delete(ctx context.Context, externalID string) error {
	if externalID == "" || filepath.Base(externalID) != externalID || externalID == "." || externalID == ".." {
		return fmt.Errorf("storage: invalid external id %q", externalID)
	}
	err := os.Remove(filepath.Join(p.dir, externalID))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("storage: deleting %s: %w", externalID, err)
	}
	return nil
}
