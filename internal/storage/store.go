package storage

import (
	"context"
	"io"
)

// BlobStore is the artifact persistence capability handed to the import and
// export paths: uploaded sources are archived through it and export artifacts
// are written to and deleted from it. Object names are slash-separated paths
// inside one bucket (e.g. "exports/products_20260831120000.csv").
type BlobStore interface {
	// Save writes the object and returns its externally addressable URL.
	Save(ctx context.Context, objectName, contentType string, data []byte) (string, error)
	// Open returns the object's contents and content type.
	Open(ctx context.Context, objectName string) (io.ReadCloser, string, error)
	Delete(ctx context.Context, objectName string) error
	// List returns object names under the given prefix.
	List(ctx context.Context, prefix string) ([]string, error)
}
