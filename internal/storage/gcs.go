package storage

import (
	"context"
	"fmt"
	"io"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
)

// newGCSClientHook exists so tests can point the store at a fake server.
var newGCSClientHook = func(ctx context.Context) (*gcs.Client, error) {
	return gcs.NewClient(ctx)
}

// GCSStore is the Google Cloud Storage BlobStore. Credentials come from the
// ambient ADC environment.
type GCSStore struct {
	Bucket string
}

func (s *GCSStore) Save(ctx context.Context, objectName, contentType string, data []byte) (string, error) {
	client, err := newGCSClientHook(ctx)
	if err != nil {
		return "", err
	}
	defer client.Close()

	w := client.Bucket(s.Bucket).Object(objectName).NewWriter(ctx)
	w.ContentType = contentType

	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return "", err
	}
	if err := w.Close(); err != nil {
		return "", err
	}

	return fmt.Sprintf("gs://%s/%s", s.Bucket, objectName), nil
}

func (s *GCSStore) Open(ctx context.Context, objectName string) (io.ReadCloser, string, error) {
	client, err := newGCSClientHook(ctx)
	if err != nil {
		return nil, "", err
	}

	rc, err := client.Bucket(s.Bucket).Object(objectName).NewReader(ctx)
	if err != nil {
		_ = client.Close()
		return nil, "", err
	}

	return &clientReadCloser{client: client, rc: rc}, rc.Attrs.ContentType, nil
}

func (s *GCSStore) Delete(ctx context.Context, objectName string) error {
	client, err := newGCSClientHook(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	return client.Bucket(s.Bucket).Object(objectName).Delete(ctx)
}

func (s *GCSStore) List(ctx context.Context, prefix string) ([]string, error) {
	client, err := newGCSClientHook(ctx)
	if err != nil {
		return nil, err
	}
	defer client.Close()

	var names []string
	it := client.Bucket(s.Bucket).Objects(ctx, &gcs.Query{Prefix: prefix})
	for {
		obj, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, err
		}
		names = append(names, obj.Name)
	}

	return names, nil
}

// clientReadCloser closes the client together with the reader so Open callers
// hold a single handle.
type clientReadCloser struct {
	client *gcs.Client
	rc     *gcs.Reader
}

func (c *clientReadCloser) Read(p []byte) (int, error) {
	return c.rc.Read(p)
}

func (c *clientReadCloser) Close() error {
	if err := c.rc.Close(); err != nil {
		_ = c.client.Close()
		return err
	}
	return c.client.Close()
}
