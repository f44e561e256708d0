// Package storage holds the uploaded exam files. Exams only keep the handle
// returned by Store; everything else about the blob is the provider's business.
package storage

import (
	"context"
	"io"
)

// StoredObject identifies a stored blob.
type StoredObject struct {
	ExternalID string // handle passed back to Delete
	ViewURL    string // where a browser can open the file
}

// Provider stores and deletes file blobs.
//
// Delete is called best-effort during exam deletion: callers log its error
// and carry on. Deleting an object that is already gone returns nil.
type Provider interface {
	Store(ctx context.Context, r io.Reader, name, mimeType string) (*StoredObject, error)
	Delete(ctx context.Context, externalID string) error
}
