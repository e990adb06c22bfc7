package storage

import (
	"context"
	"path"
	"strings"
)

// ObjectStore is the remote collection interface the pipeline depends
// on: listing under a prefix, fetch-by-key, store-by-key. Nothing else
// about the storage backend leaks into the pipeline.
type ObjectStore interface {
	List(ctx context.Context, bucket, prefix, suffix string) ([]string, error)
	Fetch(ctx context.Context, bucket, key, localPath string) error
	Store(ctx context.Context, bucket, key, localPath string) error
}

// BaseName returns the object key's file name without its extension.
// Destination object names are derived from it, so it is the unit of
// cross-key collision checking.
func BaseName(key string) string {
	base := path.Base(key)
	return strings.TrimSuffix(base, path.Ext(base))
}

// HasSuffixFold reports whether key ends in suffix, ignoring case
func HasSuffixFold(key, suffix string) bool {
	return strings.HasSuffix(strings.ToLower(key), strings.ToLower(suffix))
}
