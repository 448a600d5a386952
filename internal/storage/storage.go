// Package storage keeps opaque blobs (template bodies) under string keys.
// Blobs are encrypted before they leave the process and verified against a
// SHA-256 hash when read back.
package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"
)

// ErrObjectNotFound is returned by Get when no blob is stored under the key.
var ErrObjectNotFound = errors.New("object not found")

// BlobStore is implemented by S3Store and MemoryStore.
type BlobStore interface {
	Put(ctx context.Context, key string, data []byte, meta map[string]string) (*PutResult, error)
	Get(ctx context.Context, key string) (*Object, error)
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
}

type PutResult struct {
	Key        string
	Hash       string // SHA-256 of the plaintext
	Size       int64
	UploadedAt time.Time
}

type Object struct {
	Data []byte
	Hash string
	Size int64
}

// Hash returns the hex SHA-256 of data.
func Hash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// VerifyIntegrity validates data against its stored hash.
func VerifyIntegrity(data []byte, expectedHash string) error {
	if actual := Hash(data); actual != expectedHash {
		return fmt.Errorf("integrity check failed: expected %s, got %s", expectedHash, actual)
	}
	return nil
}
