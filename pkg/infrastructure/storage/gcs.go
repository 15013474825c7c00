package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
)

// maxComposeSources is the per-request source limit of the compose API.
const maxComposeSources = 32

// StorageAdapter provides blob storage operations using Google Cloud Storage
type StorageAdapter struct {
	Client *storage.Client
}

func (a *StorageAdapter) object(bucketName, objectName string) *storage.ObjectHandle {
	return a.Client.Bucket(bucketName).Object(objectName)
}

func (a *StorageAdapter) Exists(ctx context.Context, bucketName, objectName string) (bool, error) {
	_, err := a.object(bucketName, objectName).Attrs(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (a *StorageAdapter) Write(ctx context.Context, bucketName, objectName string, data []byte) error {
	wc := a.object(bucketName, objectName).NewWriter(ctx)
	if _, err := wc.Write(data); err != nil {
		wc.Close()
		return err
	}
	return wc.Close()
}

func (a *StorageAdapter) Read(ctx context.Context, bucketName, objectName string) ([]byte, error) {
	rc, err := a.object(bucketName, objectName).NewReader(ctx)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// Download streams an object into a local file, replacing it if present.
func (a *StorageAdapter) Download(ctx context.Context, bucketName, objectName, localPath string) error {
	rc, err := a.object(bucketName, objectName).NewReader(ctx)
	if err != nil {
		return fmt.Errorf("open gs://%s/%s: %w", bucketName, objectName, err)
	}
	defer rc.Close()

	f, err := os.Create(localPath)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, rc); err != nil {
		f.Close()
		os.Remove(localPath)
		return fmt.Errorf("download gs://%s/%s: %w", bucketName, objectName, err)
	}
	return f.Close()
}

// Upload streams a local file into an object.
func (a *StorageAdapter) Upload(ctx context.Context, bucketName, objectName, localPath string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return err
	}
	defer f.Close()

	wc := a.object(bucketName, objectName).NewWriter(ctx)
	if _, err := io.Copy(wc, f); err != nil {
		wc.Close()
		return fmt.Errorf("upload gs://%s/%s: %w", bucketName, objectName, err)
	}
	return wc.Close()
}

// Compose concatenates srcs into dst server-side. dst may be one of srcs.
func (a *StorageAdapter) Compose(ctx context.Context, bucketName, dst string, srcs ...string) error {
	if len(srcs) == 0 || len(srcs) > maxComposeSources {
		return fmt.Errorf("compose needs 1..%d sources, got %d", maxComposeSources, len(srcs))
	}
	bucket := a.Client.Bucket(bucketName)
	handles := make([]*storage.ObjectHandle, len(srcs))
	for i, src := range srcs {
		handles[i] = bucket.Object(src)
	}
	if _, err := bucket.Object(dst).ComposerFrom(handles...).Run(ctx); err != nil {
		return fmt.Errorf("compose gs://%s/%s: %w", bucketName, dst, err)
	}
	return nil
}

func (a *StorageAdapter) Delete(ctx context.Context, bucketName, objectName string) error {
	return a.object(bucketName, objectName).Delete(ctx)
}

// List returns the names of all objects under prefix.
func (a *StorageAdapter) List(ctx context.Context, bucketName, prefix string) ([]string, error) {
	it := a.Client.Bucket(bucketName).Objects(ctx, &storage.Query{Prefix: prefix})
	var names []string
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list gs://%s/%s: %w", bucketName, prefix, err)
		}
		names = append(names, attrs.Name)
	}
	return names, nil
}
