// Package backup moves the encrypted outer vault envelope to and from an
// off-device blob store. Only envelope bytes ever leave the device; the
// store never sees a key or plaintext.
package backup

import "context"

// BlobStore is the off-device storage the vault backs up to.
type BlobStore interface {
	// Put stores data under key, overwriting any previous blob.
	Put(ctx context.Context, key string, data []byte) error
	// Get retrieves the blob stored under key.
	Get(ctx context.Context, key string) ([]byte, error)
}
