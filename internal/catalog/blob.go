package catalog

import (
	"context"
	"fmt"
	"path"
	"strconv"

	"gocloud.dev/blob"
	_ "gocloud.dev/blob/azureblob"
	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/gcsblob"
	_ "gocloud.dev/blob/memblob"
	_ "gocloud.dev/blob/s3blob"
	"gocloud.dev/gcerrors"
)

// BlobCatalog keeps tiles as objects named {layer}/{zoom}/{col}/{row}.
type BlobCatalog struct {
	bucket *blob.Bucket
}

// OpenBlob opens a gocloud bucket URL.
func OpenBlob(ctx context.Context, bucketURL string) (*BlobCatalog, error) {
	bucket, err := blob.OpenBucket(ctx, bucketURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open bucket %s: %w", bucketURL, err)
	}
	return &BlobCatalog{bucket: bucket}, nil
}

// NewBlobCatalog wraps an open bucket. Close closes it.
func NewBlobCatalog(bucket *blob.Bucket) *BlobCatalog {
	return &BlobCatalog{bucket: bucket}
}

func objectKey(layer string, zoom, col, row int) string {
	return path.Join(layer, strconv.Itoa(zoom), strconv.Itoa(col), strconv.Itoa(row))
}

func (b *BlobCatalog) Get(ctx context.Context, layer string, zoom, col, row int) ([]byte, error) {
	if err := validKey(layer, zoom, col, row); err != nil {
		return nil, err
	}
	key := objectKey(layer, zoom, col, row)
	data, err := b.bucket.ReadAll(ctx, key)
	if err != nil {
		if gcerrors.Code(err) == gcerrors.NotFound {
			return nil, fmt.Errorf("%w: %s", ErrTileNotFound, key)
		}
		return nil, fmt.Errorf("failed to read %s: %w", key, err)
	}
	return data, nil
}

func (b *BlobCatalog) Put(ctx context.Context, layer string, zoom, col, row int, data []byte) error {
	if err := validKey(layer, zoom, col, row); err != nil {
		return err
	}
	key := objectKey(layer, zoom, col, row)
	if err := b.bucket.WriteAll(ctx, key, data, &blob.WriterOptions{ContentType: "application/octet-stream"}); err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	return nil
}

func (b *BlobCatalog) Close() error {
	return b.bucket.Close()
}
